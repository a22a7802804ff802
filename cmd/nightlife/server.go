package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/IBM/sarama"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"nightlife/internal/app/events"
	"nightlife/internal/app/orders"
	"nightlife/internal/app/recommendations"
	"nightlife/internal/app/users"
	"nightlife/internal/app/waitlist"
	"nightlife/internal/auth"
	"nightlife/internal/config"
	"nightlife/internal/http/middleware"
	"nightlife/internal/httpapi"
	"nightlife/internal/idempotency"
	"nightlife/internal/metrics"
	"nightlife/internal/notify"
)

// dataStore is satisfied by both the Postgres store and the in-memory store.
type dataStore interface {
	events.Store
	orders.Store
	recommendations.Store
	waitlist.Store
	users.Store
	httpapi.Pinger
}

// services groups the domain services built on top of a dataStore.
type services struct {
	users           users.Service
	events          events.Service
	orders          orders.Service
	recommendations recommendations.Service
	waitlist        waitlist.Service
}

func newServices(cfg *config.Config, ds dataStore, notifier notify.Notifier, tokens *auth.TokenManager, m *metrics.Metrics) (*services, error) {
	policy, err := waitlist.ParsePolicy(cfg.Waitlist.ExpiryPolicy)
	if err != nil {
		return nil, err
	}

	return &services{
		users:           users.New(ds, tokens),
		events:          events.New(ds),
		orders:          orders.New(ds, notifier, orders.WithMetrics(m)),
		recommendations: recommendations.New(ds),
		waitlist:        waitlist.New(ds, notifier, waitlist.WithPolicy(policy), waitlist.WithMetrics(m)),
	}, nil
}

func newHTTPHandler(cfg *config.Config, ds dataStore, svc *services, tokens *auth.TokenManager, guard idempotency.Guard, m *metrics.Metrics) http.Handler {
	api := httpapi.New(
		svc.users,
		svc.events,
		svc.orders,
		svc.recommendations,
		svc.waitlist,
		tokens,
		httpapi.WithWebhook(cfg.Payments.WebhookSecret, guard),
		httpapi.WithMetrics(m),
		httpapi.WithReadiness(ds),
	)

	return middleware.Chain(api.Routes(),
		middleware.Recovery(),
		middleware.RequestLogging(),
		middleware.CORS(cfg.CORS.AllowedOrigins),
	)
}

func newHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// newNotifier returns a Kafka notifier when enabled, falling back to logging
// notifications otherwise. The returned close function is never nil.
func newNotifier(cfg *config.Config) (notify.Notifier, func() error, error) {
	if !cfg.Kafka.Enabled {
		log.Info().Msg("kafka disabled, notifications will be logged")
		return notify.LogNotifier{}, func() error { return nil }, nil
	}

	prod, err := notify.NewProducer(notify.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		RetryMax:     3,
		RequiredAcks: int(sarama.WaitForAll),
	})
	if err != nil {
		return nil, nil, err
	}
	notifier := notify.NewKafkaNotifier(prod, cfg.Kafka.NotificationsTopic)
	log.Info().
		Strs("brokers", cfg.Kafka.Brokers).
		Str("topic", cfg.Kafka.NotificationsTopic).
		Msg("kafka notifier ready")
	return notifier, notifier.Close, nil
}

// newDeliveryGuard shares webhook delivery ids through Redis when configured.
func newDeliveryGuard(ctx context.Context, cfg *config.Config) (idempotency.Guard, func() error, error) {
	if cfg.Redis.Addr == "" {
		log.Info().Msg("redis not configured, webhook deliveries tracked in memory")
		return idempotency.NewMemoryGuard(), func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	log.Info().Str("addr", cfg.Redis.Addr).Msg("redis delivery guard ready")
	return idempotency.NewRedisGuard(client, "nightlife:webhook:"), client.Close, nil
}

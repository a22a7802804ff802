package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"nightlife/internal/auth"
	"nightlife/internal/config"
	"nightlife/internal/logging"
	"nightlife/internal/metrics"
	"nightlife/internal/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("nightlife stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logging.SetGlobalLogger(logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ds dataStore
	if cfg.Database.URL != "" {
		db, err := openDatabase(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer db.Close()
		ds = store.New(db)
		log.Info().Msg("using postgres store")
	} else {
		ds = store.NewMemory()
		log.Warn().Msg("DATABASE_URL not set, using in-memory store")
	}

	notifier, closeNotifier, err := newNotifier(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeNotifier(); err != nil {
			log.Error().Err(err).Msg("close notifier")
		}
	}()

	guard, closeGuard, err := newDeliveryGuard(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeGuard(); err != nil {
			log.Error().Err(err).Msg("close delivery guard")
		}
	}()

	m := metrics.New()
	tokens := auth.NewTokenManager(cfg.Security.JWTSecret, cfg.Security.JWTExpiry)

	svc, err := newServices(cfg, ds, notifier, tokens, m)
	if err != nil {
		return err
	}

	if cfg.SeedDemoData {
		if err := bootstrapDemoData(ctx, svc, time.Now()); err != nil {
			return err
		}
	}

	server := newHTTPServer(cfg, newHTTPHandler(cfg, ds, svc, tokens, guard, m))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Str("env", cfg.Env).Msg("API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

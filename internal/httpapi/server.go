package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nightlife/internal/app/events"
	"nightlife/internal/app/orders"
	"nightlife/internal/app/recommendations"
	"nightlife/internal/app/users"
	"nightlife/internal/app/waitlist"
	"nightlife/internal/auth"
	"nightlife/internal/idempotency"
	"nightlife/internal/logging"
	"nightlife/internal/metrics"
	"nightlife/internal/models"
	"nightlife/internal/store"
)

// UserService captures the account operations needed by the HTTP handlers.
type UserService interface {
	Signup(ctx context.Context, req users.SignupRequest) (*users.Session, error)
	Login(ctx context.Context, email, password string) (*users.Session, error)
}

// EventService describes the event catalog workflows.
type EventService interface {
	Create(ctx context.Context, host auth.Principal, input events.CreateInput) (*models.Event, error)
	Get(ctx context.Context, idOrSlug string) (*models.Event, error)
	List(ctx context.Context, opts events.ListOptions) ([]*models.Event, error)
	Manage(ctx context.Context, principal auth.Principal, idOrSlug string) (*models.Event, error)
	UpdateTickets(ctx context.Context, principal auth.Principal, idOrSlug string, tiers []models.TicketTier) (*models.Event, error)
	RecordEngagement(ctx context.Context, idOrSlug string, kind models.EngagementKind) error
}

// OrderService coordinates checkout and payment updates.
type OrderService interface {
	Create(ctx context.Context, buyer *auth.Principal, req orders.CreateRequest) (*models.Order, error)
	Get(ctx context.Context, id string) (*models.Order, error)
	Cancel(ctx context.Context, caller *auth.Principal, id string) (*models.Order, error)
	UpdateStatus(ctx context.Context, id string, status models.OrderStatus, details map[string]string) (*models.Order, bool, error)
	SalesStats(ctx context.Context, eventID string) (*models.SalesStats, error)
}

// RecommendationService ranks events for a user or around an event.
type RecommendationService interface {
	Recommended(ctx context.Context, userID string, limit int) ([]recommendations.Scored, error)
	Similar(ctx context.Context, idOrSlug string, limit int) ([]recommendations.Scored, error)
}

// WaitlistService manages sold-out queues.
type WaitlistService interface {
	Join(ctx context.Context, req waitlist.JoinRequest) (*models.WaitlistEntry, bool, error)
	Process(ctx context.Context, eventID, ticketID string) (*models.WaitlistEntry, error)
	VerifyAccess(ctx context.Context, eventID, email string) (bool, error)
	MarkPurchased(ctx context.Context, eventID, email string) error
}

// TokenParser turns a bearer token into the calling principal.
type TokenParser interface {
	Parse(token string) (auth.Principal, error)
}

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping() error
}

// deliveryTTL is how long a webhook delivery id is remembered.
const deliveryTTL = 24 * time.Hour

// Server wires HTTP handlers to the underlying services.
type Server struct {
	users           UserService
	events          EventService
	orders          OrderService
	recommendations RecommendationService
	waitlist        WaitlistService
	tokens          TokenParser

	deliveries    idempotency.Guard
	webhookSecret string
	metrics       *metrics.Metrics
	store         Pinger
}

// Option customises a Server.
type Option func(*Server)

// WithWebhook enables the payment webhook. Requests must carry secret in the
// X-Webhook-Secret header; delivery ids are de-duplicated through guard.
func WithWebhook(secret string, guard idempotency.Guard) Option {
	return func(s *Server) {
		s.webhookSecret = secret
		if guard != nil {
			s.deliveries = guard
		}
	}
}

// WithMetrics exposes m on /metrics and records webhook outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithReadiness serves /ready backed by p.
func WithReadiness(p Pinger) Option {
	return func(s *Server) { s.store = p }
}

// New configures a Server with the given services.
func New(
	users UserService,
	events EventService,
	orders OrderService,
	recommendations RecommendationService,
	waitlist WaitlistService,
	tokens TokenParser,
	opts ...Option,
) *Server {
	s := &Server{
		users:           users,
		events:          events,
		orders:          orders,
		recommendations: recommendations,
		waitlist:        waitlist,
		tokens:          tokens,
		deliveries:      idempotency.NewMemoryGuard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Routes exposes the HTTP handlers.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	if s.store != nil {
		mux.HandleFunc("GET /ready", s.handleReady)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("POST /api/auth/signup", s.handleSignup)
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)

	// Event routes
	mux.HandleFunc("GET /api/events", s.handleListEvents)
	mux.HandleFunc("POST /api/events", s.handleCreateEvent)
	mux.HandleFunc("GET /api/events/{id}", s.handleGetEvent)
	mux.HandleFunc("PUT /api/events/{id}/tickets", s.handleUpdateTickets)
	mux.HandleFunc("POST /api/events/{id}/engagement", s.handleEngagement)
	mux.HandleFunc("GET /api/events/{id}/similar", s.handleSimilarEvents)
	mux.HandleFunc("GET /api/events/{id}/stats", s.handleEventStats)

	// Waitlist routes
	mux.HandleFunc("POST /api/events/{id}/waitlist", s.handleJoinWaitlist)
	mux.HandleFunc("POST /api/events/{id}/waitlist/process", s.handleProcessWaitlist)
	mux.HandleFunc("GET /api/events/{id}/waitlist/access", s.handleWaitlistAccess)

	// Order routes
	mux.HandleFunc("POST /api/orders", s.handleCreateOrder)
	mux.HandleFunc("GET /api/orders/{id}", s.handleGetOrder)
	mux.HandleFunc("POST /api/orders/{id}/cancel", s.handleCancelOrder)
	mux.HandleFunc("POST /api/payments/webhook", s.handlePaymentWebhook)

	mux.HandleFunc("GET /api/recommendations", s.handleRecommendations)

	return mux
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		logging.FromContext(r.Context()).Warn().Err(err).Msg("readiness check failed")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "store unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var shortage *store.InsufficientInventoryError
	switch {
	case errors.As(err, &shortage):
		return http.StatusConflict
	case errors.Is(err, store.ErrValidation),
		errors.Is(err, store.ErrInvalidOrder),
		errors.Is(err, store.ErrInvalidTickets):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTokenEmpty),
		errors.Is(err, auth.ErrTokenInvalid):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, store.ErrEventNotFound),
		errors.Is(err, store.ErrTicketNotFound),
		errors.Is(err, store.ErrOrderNotFound),
		errors.Is(err, store.ErrWaitlistEmpty),
		errors.Is(err, store.ErrWaitlistEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrSlugTaken),
		errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, store.ErrUserExists),
		errors.Is(err, store.ErrAlreadyWaiting):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError reports err to the client. Unexpected failures are logged and
// hidden behind a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.FromContext(r.Context()).Error().Err(err).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeJSON(w, status, errorResponse{Error: "internal server error"})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// principal returns the caller when a bearer token is present. A missing
// header yields nil without error; a malformed or rejected token is an error.
func (s *Server) principal(r *http.Request) (*auth.Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}
	token := parseBearerToken(header)
	if token == "" {
		return nil, auth.ErrTokenInvalid
	}
	p, err := s.tokens.Parse(token)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Server) requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	p, err := s.principal(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return auth.Principal{}, false
	}
	if p == nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing bearer token"})
		return auth.Principal{}, false
	}
	return *p, true
}

// optionalPrincipal lets guests through but still rejects bad tokens.
func (s *Server) optionalPrincipal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	p, err := s.principal(r)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
		return nil, false
	}
	return p, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON payload"})
		return false
	}
	return true
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + name + " parameter"})
		return 0, false
	}
	return n, true
}

func parseBearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nightlife/internal/app/events"
	"nightlife/internal/app/orders"
	"nightlife/internal/app/recommendations"
	"nightlife/internal/app/users"
	"nightlife/internal/app/waitlist"
	"nightlife/internal/auth"
	"nightlife/internal/idempotency"
	"nightlife/internal/models"
	"nightlife/internal/store"
)

const (
	testSecret        = "test-signing-secret-0123456789"
	testWebhookSecret = "whsec-test"
)

type stubUserService struct {
	session *users.Session
	err     error

	lastSignup users.SignupRequest
	lastEmail  string
}

func (s *stubUserService) Signup(ctx context.Context, req users.SignupRequest) (*users.Session, error) {
	s.lastSignup = req
	return s.session, s.err
}

func (s *stubUserService) Login(ctx context.Context, email, password string) (*users.Session, error) {
	s.lastEmail = email
	return s.session, s.err
}

type stubEventService struct {
	event    *models.Event
	list     []*models.Event
	err      error
	viewErr  error
	lastOpts events.ListOptions

	lastPrincipal auth.Principal
	lastInput     events.CreateInput
	engagements   []models.EngagementKind
}

func (s *stubEventService) Create(ctx context.Context, host auth.Principal, input events.CreateInput) (*models.Event, error) {
	s.lastPrincipal = host
	s.lastInput = input
	return s.event, s.err
}

func (s *stubEventService) Get(ctx context.Context, idOrSlug string) (*models.Event, error) {
	return s.event, s.err
}

func (s *stubEventService) List(ctx context.Context, opts events.ListOptions) ([]*models.Event, error) {
	s.lastOpts = opts
	return s.list, s.err
}

func (s *stubEventService) Manage(ctx context.Context, principal auth.Principal, idOrSlug string) (*models.Event, error) {
	s.lastPrincipal = principal
	return s.event, s.err
}

func (s *stubEventService) UpdateTickets(ctx context.Context, principal auth.Principal, idOrSlug string, tiers []models.TicketTier) (*models.Event, error) {
	s.lastPrincipal = principal
	return s.event, s.err
}

func (s *stubEventService) RecordEngagement(ctx context.Context, idOrSlug string, kind models.EngagementKind) error {
	s.engagements = append(s.engagements, kind)
	return s.viewErr
}

type stubOrderService struct {
	order   *models.Order
	changed bool
	err     error
	stats   *models.SalesStats

	lastBuyer   *auth.Principal
	createCalls int
	updateCalls int
}

func (s *stubOrderService) Create(ctx context.Context, buyer *auth.Principal, req orders.CreateRequest) (*models.Order, error) {
	s.createCalls++
	s.lastBuyer = buyer
	return s.order, s.err
}

func (s *stubOrderService) Get(ctx context.Context, id string) (*models.Order, error) {
	return s.order, s.err
}

func (s *stubOrderService) Cancel(ctx context.Context, caller *auth.Principal, id string) (*models.Order, error) {
	s.lastBuyer = caller
	return s.order, s.err
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, id string, status models.OrderStatus, details map[string]string) (*models.Order, bool, error) {
	s.updateCalls++
	return s.order, s.changed, s.err
}

func (s *stubOrderService) SalesStats(ctx context.Context, eventID string) (*models.SalesStats, error) {
	return s.stats, s.err
}

type stubRecommendationService struct {
	ranked     []recommendations.Scored
	lastUserID string
	lastLimit  int
}

func (s *stubRecommendationService) Recommended(ctx context.Context, userID string, limit int) ([]recommendations.Scored, error) {
	s.lastUserID = userID
	s.lastLimit = limit
	return s.ranked, nil
}

func (s *stubRecommendationService) Similar(ctx context.Context, idOrSlug string, limit int) ([]recommendations.Scored, error) {
	s.lastLimit = limit
	return s.ranked, nil
}

type stubWaitlistService struct {
	entry       *models.WaitlistEntry
	created     bool
	access      bool
	err         error
	purchaseErr error

	lastJoin  waitlist.JoinRequest
	purchased []string
}

func (s *stubWaitlistService) Join(ctx context.Context, req waitlist.JoinRequest) (*models.WaitlistEntry, bool, error) {
	s.lastJoin = req
	return s.entry, s.created, s.err
}

func (s *stubWaitlistService) Process(ctx context.Context, eventID, ticketID string) (*models.WaitlistEntry, error) {
	return s.entry, s.err
}

func (s *stubWaitlistService) VerifyAccess(ctx context.Context, eventID, email string) (bool, error) {
	return s.access, s.err
}

func (s *stubWaitlistService) MarkPurchased(ctx context.Context, eventID, email string) error {
	s.purchased = append(s.purchased, eventID+"/"+email)
	return s.purchaseErr
}

type stubs struct {
	users    *stubUserService
	events   *stubEventService
	orders   *stubOrderService
	recs     *stubRecommendationService
	waitlist *stubWaitlistService
	guard    *idempotency.MemoryGuard
	tokens   *auth.TokenManager
}

func newTestServer(t *testing.T) (*Server, *stubs) {
	t.Helper()
	st := &stubs{
		users:    &stubUserService{},
		events:   &stubEventService{},
		orders:   &stubOrderService{},
		recs:     &stubRecommendationService{},
		waitlist: &stubWaitlistService{},
		guard:    idempotency.NewMemoryGuard(),
		tokens:   auth.NewTokenManager(testSecret, time.Hour),
	}
	srv := New(st.users, st.events, st.orders, st.recs, st.waitlist, st.tokens,
		WithWebhook(testWebhookSecret, st.guard))
	return srv, st
}

func (st *stubs) bearer(t *testing.T, id string, role models.Role) string {
	t.Helper()
	token, _, err := st.tokens.Issue(&models.User{ID: id, Email: id + "@example.com", Name: id, Role: role})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + token
}

func doRequest(t *testing.T, h http.Handler, method, path, authorization string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	return resp.Error
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv.Routes(), http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
}

type stubPinger struct{ err error }

func (p stubPinger) Ping() error { return p.err }

func TestReady(t *testing.T) {
	srv := New(nil, nil, nil, nil, nil, nil, WithReadiness(stubPinger{}))
	if rec := doRequest(t, srv.Routes(), http.MethodGet, "/ready", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	srv = New(nil, nil, nil, nil, nil, nil, WithReadiness(stubPinger{err: errors.New("connection refused")}))
	rec := doRequest(t, srv.Routes(), http.MethodGet, "/ready", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != "store unavailable" {
		t.Fatalf("unexpected error message %q", msg)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{&store.InsufficientInventoryError{Tier: "GA", Requested: 3, Available: 1}, http.StatusConflict},
		{fmt.Errorf("create: %w", &store.InsufficientInventoryError{}), http.StatusConflict},
		{fmt.Errorf("%w: title is required", store.ErrValidation), http.StatusBadRequest},
		{store.ErrInvalidOrder, http.StatusBadRequest},
		{store.ErrInvalidTickets, http.StatusBadRequest},
		{store.ErrInvalidCredentials, http.StatusUnauthorized},
		{auth.ErrTokenInvalid, http.StatusUnauthorized},
		{store.ErrForbidden, http.StatusForbidden},
		{store.ErrEventNotFound, http.StatusNotFound},
		{store.ErrTicketNotFound, http.StatusNotFound},
		{store.ErrOrderNotFound, http.StatusNotFound},
		{store.ErrWaitlistEmpty, http.StatusNotFound},
		{store.ErrSlugTaken, http.StatusConflict},
		{store.ErrInvalidTransition, http.StatusConflict},
		{store.ErrUserExists, http.StatusConflict},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestInternalErrorsAreHidden(t *testing.T) {
	srv, st := newTestServer(t)
	st.orders.err = errors.New("pq: connection reset by peer")

	rec := doRequest(t, srv.Routes(), http.MethodGet, "/api/orders/ORD-1", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != "internal server error" {
		t.Fatalf("unexpected error message %q", msg)
	}
}

func TestSignupReturnsSession(t *testing.T) {
	srv, st := newTestServer(t)
	st.users.session = &users.Session{Token: "tok", User: &models.User{ID: "u1", Email: "dj@example.com"}}

	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email":    "dj@example.com",
		"password": "supersecret",
		"role":     "host",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	if st.users.lastSignup.Role != models.RoleHost {
		t.Fatalf("expected host role to be forwarded, got %q", st.users.lastSignup.Role)
	}

	var session users.Session
	if err := json.NewDecoder(rec.Body).Decode(&session); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if session.Token != "tok" {
		t.Fatalf("expected token tok, got %q", session.Token)
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	srv, st := newTestServer(t)
	st.users.err = store.ErrInvalidCredentials

	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "dj@example.com", "password": "nope",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
}

func TestInvalidJSONPayload(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != "invalid JSON payload" {
		t.Fatalf("unexpected error message %q", msg)
	}
}

func TestListEventsForwardsQuery(t *testing.T) {
	srv, st := newTestServer(t)
	st.events.list = []*models.Event{{ID: "evt-1", Title: "Warehouse Rave"}}

	rec := doRequest(t, srv.Routes(), http.MethodGet,
		"/api/events?city=Berlin&sort=soonest&limit=5&search=techno&host=host-1&includePast=true", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}

	opts := st.events.lastOpts
	if opts.Filter.City != "Berlin" || opts.Filter.Search != "techno" || opts.Filter.Host != "host-1" {
		t.Fatalf("unexpected filter %+v", opts.Filter)
	}
	if opts.Sort != "soonest" || opts.Limit != 5 || !opts.IncludePast {
		t.Fatalf("unexpected options %+v", opts)
	}

	var resp eventsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Events) != 1 || resp.Events[0].ID != "evt-1" {
		t.Fatalf("unexpected events %+v", resp.Events)
	}
}

func TestListEventsRejectsBadLimit(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv.Routes(), http.MethodGet, "/api/events?limit=lots", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestCreateEventRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/events", "", map[string]string{"title": "x"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}

	rec = doRequest(t, srv.Routes(), http.MethodPost, "/api/events", "Bearer not-a-jwt", map[string]string{"title": "x"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401 for bad token, got %d", rec.Code)
	}
}

func TestCreateEventPassesPrincipal(t *testing.T) {
	srv, st := newTestServer(t)
	st.events.event = &models.Event{ID: "evt-1", Slug: "warehouse-rave"}

	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/events", st.bearer(t, "host-1", models.RoleHost),
		map[string]any{"title": "Warehouse Rave", "city": "Berlin"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	if st.events.lastPrincipal.UserID != "host-1" || st.events.lastPrincipal.Role != models.RoleHost {
		t.Fatalf("unexpected principal %+v", st.events.lastPrincipal)
	}
	if st.events.lastInput.Title != "Warehouse Rave" {
		t.Fatalf("unexpected input %+v", st.events.lastInput)
	}
}

func TestCreateEventForbiddenForGuests(t *testing.T) {
	srv, st := newTestServer(t)
	st.events.err = fmt.Errorf("%w: only hosts can publish events", store.ErrForbidden)

	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/events", st.bearer(t, "guest-1", models.RoleGuest),
		map[string]any{"title": "Warehouse Rave"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
}

func TestGetEventRecordsView(t *testing.T) {
	srv, st := newTestServer(t)
	st.events.event = &models.Event{ID: "evt-1"}
	st.events.viewErr = errors.New("counter unavailable")

	rec := doRequest(t, srv.Routes(), http.MethodGet, "/api/events/warehouse-rave", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 even when the view counter fails, got %d", rec.Code)
	}
	if len(st.events.engagements) != 1 || st.events.engagements[0] != models.EngagementView {
		t.Fatalf("expected one view to be recorded, got %v", st.events.engagements)
	}
}

func TestEngagementRejectsUnknownKind(t *testing.T) {
	srv, st := newTestServer(t)

	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/events/evt-1/engagement", "", map[string]string{"kind": "like"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if len(st.events.engagements) != 0 {
		t.Fatalf("expected no engagement to be recorded")
	}

	rec = doRequest(t, srv.Routes(), http.MethodPost, "/api/events/evt-1/engagement", "", map[string]string{"kind": "share"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}
}

func TestCreateOrderConflict(t *testing.T) {
	srv, st := newTestServer(t)
	st.orders.err = &store.InsufficientInventoryError{TicketID: "ga", Tier: "GA", Requested: 5, Available: 2}

	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/orders", "", map[string]any{
		"eventId": "evt-1",
		"tickets": []map[string]any{{"ticketId": "ga", "quantity": 5}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d", rec.Code)
	}
	if msg := decodeError(t, rec); msg != `not enough "GA" tickets: requested 5, only 2 available` {
		t.Fatalf("unexpected error message %q", msg)
	}
}

func TestCreateOrderValidatesBeforeService(t *testing.T) {
	srv, st := newTestServer(t)

	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/orders", "", map[string]any{"eventId": "evt-1"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
	if st.orders.createCalls != 0 {
		t.Fatalf("service should not be reached")
	}
}

func TestCreateOrderMarksWaitlistPurchase(t *testing.T) {
	srv, st := newTestServer(t)
	st.orders.order = &models.Order{ID: "ORD-1", EventID: "evt-1", UserEmail: "fan@example.com"}
	st.waitlist.purchaseErr = store.ErrWaitlistEntryNotFound

	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/orders", st.bearer(t, "fan", models.RoleGuest), map[string]any{
		"eventId": "evt-1",
		"tickets": []map[string]any{{"ticketId": "ga", "quantity": 1}},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	if st.orders.lastBuyer == nil || st.orders.lastBuyer.UserID != "fan" {
		t.Fatalf("expected buyer from token, got %+v", st.orders.lastBuyer)
	}
	if len(st.waitlist.purchased) != 1 || st.waitlist.purchased[0] != "evt-1/fan@example.com" {
		t.Fatalf("unexpected waitlist purchases %v", st.waitlist.purchased)
	}
}

func TestCancelOrderForbidden(t *testing.T) {
	srv, st := newTestServer(t)
	st.orders.err = fmt.Errorf("%w: order belongs to another user", store.ErrForbidden)

	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/orders/ORD-1/cancel", st.bearer(t, "intruder", models.RoleGuest), nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rec.Code)
	}
}

func webhookRequestFor(t *testing.T, secret string, body webhookRequest) *http.Request {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal webhook: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewReader(payload))
	req.Header.Set("X-Webhook-Secret", secret)
	return req
}

func TestPaymentWebhookRejectsBadSecret(t *testing.T) {
	srv, st := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, webhookRequestFor(t, "wrong", webhookRequest{
		DeliveryID: "dlv-1", OrderID: "ORD-1", Status: models.OrderStatusConfirmed,
	}))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rec.Code)
	}
	if st.orders.updateCalls != 0 {
		t.Fatalf("order should not be touched")
	}
}

func TestPaymentWebhookDeduplicatesDeliveries(t *testing.T) {
	srv, st := newTestServer(t)
	st.orders.order = &models.Order{ID: "ORD-1", Status: models.OrderStatusConfirmed}
	st.orders.changed = true
	h := srv.Routes()

	body := webhookRequest{DeliveryID: "dlv-1", OrderID: "ORD-1", Status: models.OrderStatusConfirmed}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, webhookRequestFor(t, testWebhookSecret, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var first webhookResponse
	if err := json.NewDecoder(rec.Body).Decode(&first); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if first.Duplicate || !first.Changed {
		t.Fatalf("unexpected first response %+v", first)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, webhookRequestFor(t, testWebhookSecret, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200 for duplicate, got %d", rec.Code)
	}
	var second webhookResponse
	if err := json.NewDecoder(rec.Body).Decode(&second); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !second.Duplicate {
		t.Fatalf("expected duplicate response, got %+v", second)
	}
	if st.orders.updateCalls != 1 {
		t.Fatalf("expected exactly one status update, got %d", st.orders.updateCalls)
	}
}

func TestPaymentWebhookReleasesFailedDelivery(t *testing.T) {
	srv, st := newTestServer(t)
	st.orders.err = store.ErrOrderNotFound
	h := srv.Routes()

	body := webhookRequest{DeliveryID: "dlv-9", OrderID: "ORD-404", Status: models.OrderStatusConfirmed}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, webhookRequestFor(t, testWebhookSecret, body))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}

	st.orders.err = nil
	st.orders.order = &models.Order{ID: "ORD-404", Status: models.OrderStatusConfirmed}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, webhookRequestFor(t, testWebhookSecret, body))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected retry to be processed, got %d", rec.Code)
	}
	if st.orders.updateCalls != 2 {
		t.Fatalf("expected two status updates, got %d", st.orders.updateCalls)
	}
}

func TestPaymentWebhookRejectsUnknownStatus(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Routes().ServeHTTP(rec, webhookRequestFor(t, testWebhookSecret, webhookRequest{
		DeliveryID: "dlv-1", OrderID: "ORD-1", Status: "refunded",
	}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rec.Code)
	}
}

func TestRecommendationsForGuestsAndUsers(t *testing.T) {
	srv, st := newTestServer(t)
	h := srv.Routes()

	rec := doRequest(t, h, http.MethodGet, "/api/recommendations?limit=3", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if st.recs.lastUserID != "" || st.recs.lastLimit != 3 {
		t.Fatalf("expected trending request, got user %q limit %d", st.recs.lastUserID, st.recs.lastLimit)
	}

	rec = doRequest(t, h, http.MethodGet, "/api/recommendations", st.bearer(t, "fan", models.RoleGuest), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if st.recs.lastUserID != "fan" {
		t.Fatalf("expected personalised request, got user %q", st.recs.lastUserID)
	}

	var resp recommendationsResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Events == nil {
		t.Fatalf("expected an empty list rather than null")
	}
}

func TestJoinWaitlistUsesToken(t *testing.T) {
	srv, st := newTestServer(t)
	st.events.event = &models.Event{ID: "evt-1", Slug: "warehouse-rave"}
	st.waitlist.entry = &models.WaitlistEntry{ID: "w1", EventID: "evt-1"}
	st.waitlist.created = true

	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/events/warehouse-rave/waitlist",
		st.bearer(t, "fan", models.RoleGuest), map[string]string{"ticketId": "vip"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}

	join := st.waitlist.lastJoin
	if join.EventID != "evt-1" || join.TicketID != "vip" {
		t.Fatalf("unexpected join request %+v", join)
	}
	if join.UserID == nil || *join.UserID != "fan" || join.Email != "fan@example.com" {
		t.Fatalf("expected caller identity to fill the request, got %+v", join)
	}
}

func TestProcessWaitlistEmpty(t *testing.T) {
	srv, st := newTestServer(t)
	st.events.event = &models.Event{ID: "evt-1"}
	st.waitlist.err = store.ErrWaitlistEmpty

	rec := doRequest(t, srv.Routes(), http.MethodPost, "/api/events/evt-1/waitlist/process",
		st.bearer(t, "host-1", models.RoleHost), nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}
}

func TestWaitlistAccess(t *testing.T) {
	srv, st := newTestServer(t)
	st.events.event = &models.Event{ID: "evt-1"}
	st.waitlist.access = true

	rec := doRequest(t, srv.Routes(), http.MethodGet, "/api/events/evt-1/waitlist/access?email=fan@example.com", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var resp accessResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.HasAccess {
		t.Fatalf("expected access to be granted")
	}
}

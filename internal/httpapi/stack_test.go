package httpapi

import (
	"encoding/json"
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
	"nightlife/internal/metrics"
	"nightlife/internal/models"
	"nightlife/internal/notify"
	"nightlife/internal/store"
)

func newStackServer(t *testing.T) http.Handler {
	t.Helper()
	mem := store.NewMemory()
	m := metrics.New()
	tokens := auth.NewTokenManager(testSecret, time.Hour)
	notifier := notify.LogNotifier{}

	srv := New(
		users.New(mem, tokens),
		events.New(mem),
		orders.New(mem, notifier, orders.WithMetrics(m)),
		recommendations.New(mem),
		waitlist.New(mem, notifier, waitlist.WithMetrics(m)),
		tokens,
		WithWebhook(testWebhookSecret, idempotency.NewMemoryGuard()),
		WithMetrics(m),
	)
	return srv.Routes()
}

func mustStatus(t *testing.T, rec *httptest.ResponseRecorder, want int, dst any) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
	if dst != nil {
		if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
}

func TestSoldOutWaitlistFlow(t *testing.T) {
	h := newStackServer(t)

	var host users.Session
	mustStatus(t, doRequest(t, h, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "promoter@example.com", "name": "Night Owls", "password": "correct-horse", "role": "host",
	}), http.StatusCreated, &host)
	hostAuth := "Bearer " + host.Token

	start := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
	var event models.Event
	mustStatus(t, doRequest(t, h, http.MethodPost, "/api/events", hostAuth, map[string]any{
		"title":     "Warehouse Rave",
		"startDate": start,
		"endDate":   start.Add(6 * time.Hour),
		"city":      "Berlin",
		"tags":      []string{"Techno"},
		"tickets":   []map[string]any{{"id": "ga", "name": "GA", "price": 2500, "quantity": 2}},
	}), http.StatusCreated, &event)
	if event.Slug != "warehouse-rave" {
		t.Fatalf("expected derived slug, got %q", event.Slug)
	}

	var first models.Order
	mustStatus(t, doRequest(t, h, http.MethodPost, "/api/orders", "", map[string]any{
		"eventId":   event.ID,
		"userEmail": "early@example.com",
		"tickets":   []map[string]any{{"ticketId": "ga", "quantity": 2}},
	}), http.StatusCreated, &first)
	if first.Status != models.OrderStatusPendingPayment || first.TotalAmount != 5000 {
		t.Fatalf("unexpected order %+v", first)
	}

	mustStatus(t, doRequest(t, h, http.MethodPost, "/api/orders", "", map[string]any{
		"eventId": event.ID,
		"tickets": []map[string]any{{"ticketId": "ga", "quantity": 1}},
	}), http.StatusConflict, nil)

	var joined joinWaitlistResponse
	mustStatus(t, doRequest(t, h, http.MethodPost, "/api/events/warehouse-rave/waitlist", "", map[string]string{
		"email": "Late@Example.com",
	}), http.StatusCreated, &joined)
	if joined.Entry.Email != "late@example.com" || joined.Entry.TicketID != "any" {
		t.Fatalf("unexpected entry %+v", joined.Entry)
	}

	var cancelled models.Order
	mustStatus(t, doRequest(t, h, http.MethodPost, "/api/orders/"+first.ID+"/cancel", "", nil),
		http.StatusOK, &cancelled)
	if cancelled.Status != models.OrderStatusCancelled {
		t.Fatalf("expected cancelled order, got %q", cancelled.Status)
	}

	var notified models.WaitlistEntry
	mustStatus(t, doRequest(t, h, http.MethodPost, "/api/events/warehouse-rave/waitlist/process", hostAuth, nil),
		http.StatusOK, &notified)
	if notified.Status != models.WaitlistNotified || notified.ExpiresAt == nil {
		t.Fatalf("unexpected notified entry %+v", notified)
	}

	var access accessResponse
	mustStatus(t, doRequest(t, h, http.MethodGet, "/api/events/"+event.ID+"/waitlist/access?email=late@example.com", "", nil),
		http.StatusOK, &access)
	if !access.HasAccess {
		t.Fatalf("expected notified user to have access")
	}

	var second models.Order
	mustStatus(t, doRequest(t, h, http.MethodPost, "/api/orders", "", map[string]any{
		"eventId":   event.ID,
		"userEmail": "late@example.com",
		"tickets":   []map[string]any{{"ticketId": "ga", "quantity": 1}},
	}), http.StatusCreated, &second)

	mustStatus(t, doRequest(t, h, http.MethodGet, "/api/events/"+event.ID+"/waitlist/access?email=late@example.com", "", nil),
		http.StatusOK, &access)
	if access.HasAccess {
		t.Fatalf("expected access to end once the hold was used")
	}

	req := webhookRequestFor(t, testWebhookSecret, webhookRequest{
		DeliveryID: "dlv-1", OrderID: second.ID, Status: models.OrderStatusConfirmed,
		Payment: map[string]string{"provider": "stripe"},
	})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	mustStatus(t, rec, http.StatusOK, nil)

	var stats models.SalesStats
	mustStatus(t, doRequest(t, h, http.MethodGet, "/api/events/warehouse-rave/stats", hostAuth, nil),
		http.StatusOK, &stats)
	if stats.OrderCount != 1 || stats.TotalTicketsSold != 1 || stats.TotalRevenue != 2500 {
		t.Fatalf("unexpected stats %+v", stats)
	}

	rec = doRequest(t, h, http.MethodGet, "/metrics", "", nil)
	mustStatus(t, rec, http.StatusOK, nil)
}

func TestStatsRequireOwner(t *testing.T) {
	h := newStackServer(t)

	var host, other users.Session
	mustStatus(t, doRequest(t, h, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "a@example.com", "password": "password-a", "role": "host",
	}), http.StatusCreated, &host)
	mustStatus(t, doRequest(t, h, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"email": "b@example.com", "password": "password-b", "role": "host",
	}), http.StatusCreated, &other)

	start := time.Now().Add(24 * time.Hour).UTC()
	var event models.Event
	mustStatus(t, doRequest(t, h, http.MethodPost, "/api/events", "Bearer "+host.Token, map[string]any{
		"title":     "Rooftop Sessions",
		"startDate": start,
		"city":      "Lisbon",
		"tickets":   []map[string]any{{"id": "ga", "name": "GA", "price": 1500, "quantity": 50}},
	}), http.StatusCreated, &event)

	mustStatus(t, doRequest(t, h, http.MethodGet, "/api/events/"+event.ID+"/stats", "Bearer "+other.Token, nil),
		http.StatusForbidden, nil)
	mustStatus(t, doRequest(t, h, http.MethodPost, "/api/events/"+event.ID+"/waitlist/process", "Bearer "+other.Token, nil),
		http.StatusForbidden, nil)
}

package store

import (
	"errors"
	"math"
	"testing"
	"time"

	"nightlife/internal/models"
)

func TestReserveTickets(t *testing.T) {
	tests := []struct {
		name    string
		reqs    []models.TicketRequest
		wantErr error
		total   int64
	}{
		{
			name:  "single tier",
			reqs:  []models.TicketRequest{{TicketID: "ga", Quantity: 3}},
			total: 1500,
		},
		{
			name:  "duplicate ids are merged",
			reqs:  []models.TicketRequest{{TicketID: "ga", Quantity: 1}, {TicketID: "ga", Quantity: 2}},
			total: 1500,
		},
		{
			name:  "rsvp tier is free",
			reqs:  []models.TicketRequest{{TicketID: "rsvp", Quantity: 2}},
			total: 0,
		},
		{
			name:    "unknown tier",
			reqs:    []models.TicketRequest{{TicketID: "vip", Quantity: 1}},
			wantErr: ErrTicketNotFound,
		},
		{
			name:    "zero quantity",
			reqs:    []models.TicketRequest{{TicketID: "ga", Quantity: 0}},
			wantErr: ErrInvalidOrder,
		},
		{
			name:    "no tickets",
			wantErr: ErrInvalidOrder,
		},
		{
			name:    "above max per order",
			reqs:    []models.TicketRequest{{TicketID: "table", Quantity: 5}},
			wantErr: ErrInvalidOrder,
		},
		{
			name:    "subtotal overflows",
			reqs:    []models.TicketRequest{{TicketID: "gold", Quantity: 3}},
			wantErr: ErrInvalidOrder,
		},
		{
			name: "total overflows",
			reqs: []models.TicketRequest{
				{TicketID: "gold", Quantity: 1},
				{TicketID: "platinum", Quantity: 1},
			},
			wantErr: ErrInvalidOrder,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			tiers := []models.TicketTier{
				{ID: "ga", Name: "GA", Price: 500, Quantity: 10, Remaining: 10},
				{ID: "rsvp", Name: "RSVP", Price: 900, Quantity: 5, Remaining: 5, RSVPOnly: true},
				{ID: "table", Name: "Table", Price: 10000, Quantity: 4, Remaining: 4, MaxPerOrder: 2},
				{ID: "gold", Name: "Gold", Price: math.MaxInt64 / 2, Quantity: 10, Remaining: 10},
				{ID: "platinum", Name: "Platinum", Price: math.MaxInt64/2 + 2, Quantity: 10, Remaining: 10},
			}
			items, err := reserveTickets(tiers, tc.reqs)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("reserveTickets: %v", err)
			}
			var total int64
			for _, item := range items {
				if item.Subtotal != item.Price*int64(item.Quantity) {
					t.Fatalf("subtotal mismatch for %s: %+v", item.TicketID, item)
				}
				total += item.Subtotal
			}
			if total != tc.total {
				t.Fatalf("expected total %d, got %d", tc.total, total)
			}
		})
	}
}

func TestReserveTicketsInsufficient(t *testing.T) {
	tiers := []models.TicketTier{{ID: "ga", Name: "GA", Price: 500, Quantity: 10, Remaining: 7}}

	_, err := reserveTickets(tiers, []models.TicketRequest{{TicketID: "ga", Quantity: 8}})

	var inv *InsufficientInventoryError
	if !errors.As(err, &inv) {
		t.Fatalf("expected InsufficientInventoryError, got %v", err)
	}
	if inv.Requested != 8 || inv.Available != 7 {
		t.Fatalf("unexpected error detail: %+v", inv)
	}
	if got := inv.Error(); got != `not enough "GA" tickets: requested 8, only 7 available` {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestRestockTicketsClampsToQuantity(t *testing.T) {
	tiers := []models.TicketTier{{ID: "ga", Quantity: 10, Remaining: 9}}

	restockTickets(tiers, []models.LineItem{
		{TicketID: "ga", Quantity: 3},
		{TicketID: "gone", Quantity: 1},
	})

	if tiers[0].Remaining != 10 {
		t.Fatalf("expected remaining clamped to 10, got %d", tiers[0].Remaining)
	}
}

func TestMergeTiers(t *testing.T) {
	current := []models.TicketTier{
		{ID: "ga", Name: "GA", Quantity: 10, Remaining: 6},
		{ID: "early", Name: "Early", Quantity: 5, Remaining: 5},
	}

	merged, err := mergeTiers(current, []models.TicketTier{
		{ID: "ga", Name: "GA", Quantity: 20},
		{ID: "vip", Name: "VIP", Quantity: 3},
	})
	if err != nil {
		t.Fatalf("mergeTiers: %v", err)
	}
	if merged[0].Remaining != 16 {
		t.Fatalf("expected ga remaining 16, got %d", merged[0].Remaining)
	}
	if merged[1].Remaining != 3 {
		t.Fatalf("expected new tier to start full, got %d", merged[1].Remaining)
	}

	if _, err := mergeTiers(current, []models.TicketTier{{ID: "ga", Quantity: 3}}); !errors.Is(err, ErrInvalidTickets) {
		t.Fatalf("expected ErrInvalidTickets when shrinking below sold, got %v", err)
	}
	if _, err := mergeTiers(current, []models.TicketTier{{ID: "early", Quantity: 5}}); !errors.Is(err, ErrInvalidTickets) {
		t.Fatalf("expected ErrInvalidTickets when dropping a tier with sales, got %v", err)
	}
}

func TestApplyTransition(t *testing.T) {
	now := time.Date(2026, 5, 1, 20, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		from    models.OrderStatus
		to      models.OrderStatus
		changed bool
		wantErr bool
	}{
		{name: "pending to confirmed", from: models.OrderStatusPendingPayment, to: models.OrderStatusConfirmed, changed: true},
		{name: "pending to cancelled", from: models.OrderStatusPendingPayment, to: models.OrderStatusCancelled, changed: true},
		{name: "confirmed to cancelled", from: models.OrderStatusConfirmed, to: models.OrderStatusCancelled, changed: true},
		{name: "confirmed again", from: models.OrderStatusConfirmed, to: models.OrderStatusConfirmed},
		{name: "cancelled to confirmed", from: models.OrderStatusCancelled, to: models.OrderStatusConfirmed, wantErr: true},
		{name: "confirmed to pending", from: models.OrderStatusConfirmed, to: models.OrderStatusPendingPayment, wantErr: true},
		{name: "unknown status", from: models.OrderStatusPendingPayment, to: "refunded", wantErr: true},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			order := &models.Order{Status: tc.from}
			changed, err := applyTransition(order, tc.to, map[string]string{"ref": "pi_1"}, now)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidTransition) {
					t.Fatalf("expected ErrInvalidTransition, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("applyTransition: %v", err)
			}
			if changed != tc.changed {
				t.Fatalf("expected changed=%v, got %v", tc.changed, changed)
			}
			if changed && (order.Payment["ref"] != "pi_1" || !order.UpdatedAt.Equal(now)) {
				t.Fatalf("payment details or timestamp not applied: %+v", order)
			}
		})
	}
}

package store

import (
	"fmt"
	"math"
	"time"

	"nightlife/internal/models"
)

// InsufficientInventoryError reports a tier that cannot cover a request.
type InsufficientInventoryError struct {
	TicketID  string
	Tier      string
	Requested int
	Available int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("not enough %q tickets: requested %d, only %d available", e.Tier, e.Requested, e.Available)
}

// MergeTicketRequests folds repeated tier ids into one request, keeping first-seen order.
func MergeTicketRequests(reqs []models.TicketRequest) []models.TicketRequest {
	merged := make([]models.TicketRequest, 0, len(reqs))
	index := make(map[string]int, len(reqs))
	for _, r := range reqs {
		if i, ok := index[r.TicketID]; ok {
			merged[i].Quantity += r.Quantity
			continue
		}
		index[r.TicketID] = len(merged)
		merged = append(merged, r)
	}
	return merged
}

// reserveTickets validates the requests against tiers and decrements the
// matching tiers in place. On error tiers may be partially modified, so
// callers must only apply the slice once reserveTickets succeeded.
func reserveTickets(tiers []models.TicketTier, reqs []models.TicketRequest) ([]models.LineItem, error) {
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: at least one ticket is required", ErrInvalidOrder)
	}

	var total int64
	items := make([]models.LineItem, 0, len(reqs))
	for _, req := range MergeTicketRequests(reqs) {
		if req.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for %q must be positive", ErrInvalidOrder, req.TicketID)
		}

		tier := findTier(tiers, req.TicketID)
		if tier == nil {
			return nil, fmt.Errorf("%w: %q", ErrTicketNotFound, req.TicketID)
		}
		if tier.MinPerOrder > 0 && req.Quantity < tier.MinPerOrder {
			return nil, fmt.Errorf("%w: at least %d %q tickets per order", ErrInvalidOrder, tier.MinPerOrder, tier.Name)
		}
		if tier.MaxPerOrder > 0 && req.Quantity > tier.MaxPerOrder {
			return nil, fmt.Errorf("%w: at most %d %q tickets per order", ErrInvalidOrder, tier.MaxPerOrder, tier.Name)
		}
		if tier.Remaining < req.Quantity {
			return nil, &InsufficientInventoryError{
				TicketID:  tier.ID,
				Tier:      tier.Name,
				Requested: req.Quantity,
				Available: tier.Remaining,
			}
		}

		tier.Remaining -= req.Quantity
		price := tier.Price
		if tier.RSVPOnly {
			price = 0
		}
		if price < 0 || (price > 0 && int64(req.Quantity) > math.MaxInt64/price) {
			return nil, fmt.Errorf("%w: %q subtotal is out of range", ErrInvalidOrder, tier.Name)
		}
		subtotal := price * int64(req.Quantity)
		if total > math.MaxInt64-subtotal {
			return nil, fmt.Errorf("%w: order total is out of range", ErrInvalidOrder)
		}
		total += subtotal
		items = append(items, models.LineItem{
			TicketID: tier.ID,
			Name:     tier.Name,
			Price:    price,
			Quantity: req.Quantity,
			Subtotal: subtotal,
		})
	}
	return items, nil
}

// restockTickets returns the line items to their tiers, never exceeding the
// tier capacity. Tiers removed since the purchase are skipped.
func restockTickets(tiers []models.TicketTier, items []models.LineItem) {
	for _, item := range items {
		tier := findTier(tiers, item.TicketID)
		if tier == nil {
			continue
		}
		tier.Remaining += item.Quantity
		if tier.Remaining > tier.Quantity {
			tier.Remaining = tier.Quantity
		}
	}
}

func findTier(tiers []models.TicketTier, id string) *models.TicketTier {
	for i := range tiers {
		if tiers[i].ID == id {
			return &tiers[i]
		}
	}
	return nil
}

func buildOrder(n models.NewOrder, items []models.LineItem) *models.Order {
	var total int64
	for _, item := range items {
		total += item.Subtotal
	}

	status := models.OrderStatusPendingPayment
	if total == 0 {
		status = models.OrderStatusConfirmed
	}

	return &models.Order{
		ID:            n.ID,
		EventID:       n.EventID,
		UserID:        n.UserID,
		UserEmail:     n.UserEmail,
		UserName:      n.UserName,
		Tickets:       items,
		TotalAmount:   total,
		Status:        status,
		PaymentMethod: n.PaymentMethod,
		Payment:       map[string]string{},
		CreatedAt:     n.Now,
		UpdatedAt:     n.Now,
	}
}

// mergeTiers applies a host edit to the current tiers. Existing tiers keep
// their sold count, so remaining becomes newQuantity - sold.
func mergeTiers(current, incoming []models.TicketTier) ([]models.TicketTier, error) {
	seen := make(map[string]bool, len(incoming))
	out := make([]models.TicketTier, 0, len(incoming))
	for _, in := range incoming {
		if in.ID == "" {
			return nil, fmt.Errorf("%w: tier id is required", ErrInvalidTickets)
		}
		if seen[in.ID] {
			return nil, fmt.Errorf("%w: duplicate tier id %q", ErrInvalidTickets, in.ID)
		}
		seen[in.ID] = true

		sold := 0
		if existing := findTier(current, in.ID); existing != nil {
			sold = existing.Sold()
		}
		if in.Quantity < sold {
			return nil, fmt.Errorf("%w: %q quantity %d is below the %d already sold", ErrInvalidTickets, in.Name, in.Quantity, sold)
		}
		in.Remaining = in.Quantity - sold
		out = append(out, in)
	}

	for _, t := range current {
		if !seen[t.ID] && t.Sold() > 0 {
			return nil, fmt.Errorf("%w: %q has sales and cannot be removed", ErrInvalidTickets, t.Name)
		}
	}
	return out, nil
}

// applyTransition moves order to status and merges the payment details. It
// reports whether anything changed; repeating the current status is a no-op.
func applyTransition(order *models.Order, status models.OrderStatus, details map[string]string, now time.Time) (bool, error) {
	if !status.Valid() {
		return false, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
	if order.Status == status {
		return false, nil
	}
	if !order.Status.CanTransition(status) {
		return false, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, order.Status, status)
	}

	if order.Payment == nil {
		order.Payment = make(map[string]string, len(details))
	}
	for k, v := range details {
		order.Payment[k] = v
	}
	order.Status = status
	order.UpdatedAt = now
	return true, nil
}

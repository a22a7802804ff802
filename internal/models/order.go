package models

import "time"

// OrderStatus tracks an order through payment.
type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPendingPayment, OrderStatusConfirmed, OrderStatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether an order may move from s to next.
// Staying in the same status is always allowed.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case OrderStatusPendingPayment:
		return next == OrderStatusConfirmed || next == OrderStatusCancelled
	case OrderStatusConfirmed:
		return next == OrderStatusCancelled
	}
	return false
}

// Order is a purchase against the tiers of a single event.
type Order struct {
	ID            string            `json:"id"`
	EventID       string            `json:"eventId"`
	UserID        *string           `json:"userId"`
	UserEmail     string            `json:"userEmail,omitempty"`
	UserName      string            `json:"userName,omitempty"`
	Tickets       []LineItem        `json:"tickets"`
	TotalAmount   int64             `json:"totalAmount"`
	Status        OrderStatus       `json:"status"`
	PaymentMethod string            `json:"paymentMethod,omitempty"`
	Payment       map[string]string `json:"payment,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	UpdatedAt     time.Time         `json:"updatedAt"`
}

// LineItem snapshots a tier at purchase time.
type LineItem struct {
	TicketID string `json:"ticketId"`
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
	Subtotal int64  `json:"subtotal"`
}

// TicketRequest asks for quantity tickets of one tier.
type TicketRequest struct {
	TicketID string `json:"ticketId"`
	Quantity int    `json:"quantity"`
}

// NewOrder carries everything the store needs to create an order.
type NewOrder struct {
	ID            string
	EventID       string
	UserID        *string
	UserEmail     string
	UserName      string
	Tickets       []TicketRequest
	PaymentMethod string
	Now           time.Time
}

// Clone returns a deep copy safe to hand out of a store.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.UserID != nil {
		id := *o.UserID
		c.UserID = &id
	}
	if o.Tickets != nil {
		c.Tickets = append([]LineItem(nil), o.Tickets...)
	}
	if o.Payment != nil {
		c.Payment = make(map[string]string, len(o.Payment))
		for k, v := range o.Payment {
			c.Payment[k] = v
		}
	}
	return &c
}

// SalesStats aggregates confirmed orders of one event.
type SalesStats struct {
	EventID          string               `json:"eventId"`
	TotalRevenue     int64                `json:"totalRevenue"`
	TotalTicketsSold int                  `json:"totalTicketsSold"`
	OrderCount       int                  `json:"orderCount"`
	ByTier           map[string]TierSales `json:"byTier"`
}

// TierSales is the per-tier slice of SalesStats.
type TierSales struct {
	Name         string `json:"name"`
	QuantitySold int    `json:"quantitySold"`
	Revenue      int64  `json:"revenue"`
}

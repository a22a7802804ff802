package models

import (
	"strings"
	"time"
)

// EventStatus is derived from the schedule at read time.
type EventStatus string

const (
	EventStatusUpcoming EventStatus = "upcoming"
	EventStatusLive     EventStatus = "live"
	EventStatusPast     EventStatus = "past"
)

// Event is a nightlife event with its embedded ticket tiers.
type Event struct {
	ID          string       `json:"id"`
	Slug        string       `json:"slug"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	StartDate   time.Time    `json:"startDate"`
	EndDate     time.Time    `json:"endDate"`
	Category    string       `json:"category,omitempty"`
	Tags        []string     `json:"tags"`
	City        string       `json:"city"`
	Location    string       `json:"location,omitempty"`
	HostID      string       `json:"hostId"`
	Host        string       `json:"host"`
	Tickets     []TicketTier `json:"tickets"`
	Stats       EventStats   `json:"stats"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`

	// Computed on read, never persisted.
	Status     EventStatus `json:"status"`
	HeatScore  float64     `json:"heatScore"`
	PriceRange PriceRange  `json:"priceRange"`
	IsFree     bool        `json:"isFree"`
}

// Tier limits, in minor currency units and tickets.
const (
	MaxTicketPrice   int64 = 1_000_000_000
	MaxTierQuantity        = 1_000_000
)

// TicketTier is a purchasable tier owned by exactly one event.
type TicketTier struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       int64  `json:"price"`
	Quantity    int    `json:"quantity"`
	Remaining   int    `json:"remaining"`
	MinPerOrder int    `json:"minPerOrder,omitempty"`
	MaxPerOrder int    `json:"maxPerOrder,omitempty"`
	RSVPOnly    bool   `json:"rsvpOnly,omitempty"`
}

// Sold returns how many tickets of the tier are currently allocated.
func (t TicketTier) Sold() int {
	return t.Quantity - t.Remaining
}

// EventStats holds the engagement counters feeding the heat score.
type EventStats struct {
	Views      int `json:"views"`
	Saves      int `json:"saves"`
	Shares     int `json:"shares"`
	RSVPs      int `json:"rsvps"`
	GuestCount int `json:"guestCount"`
}

// PriceRange spans the cheapest and most expensive tier.
type PriceRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// EngagementKind names a counter that can be bumped from the outside.
type EngagementKind string

const (
	EngagementView  EngagementKind = "view"
	EngagementSave  EngagementKind = "save"
	EngagementShare EngagementKind = "share"
)

// Valid reports whether k is a known engagement counter.
func (k EngagementKind) Valid() bool {
	switch k {
	case EngagementView, EngagementSave, EngagementShare:
		return true
	}
	return false
}

// StatusAt derives the lifecycle status of the event at now.
func (e *Event) StatusAt(now time.Time) EventStatus {
	end := e.EndDate
	if end.IsZero() {
		end = e.StartDate
	}
	switch {
	case now.Before(e.StartDate):
		return EventStatusUpcoming
	case !now.After(end):
		return EventStatusLive
	default:
		return EventStatusPast
	}
}

// Ticket returns the tier with the given id.
func (e *Event) Ticket(id string) (*TicketTier, bool) {
	for i := range e.Tickets {
		if e.Tickets[i].ID == id {
			return &e.Tickets[i], true
		}
	}
	return nil, false
}

// HasTag reports whether the event carries tag, ignoring case.
func (e *Event) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// MinPrice is the cheapest tier price, or 0 for events without tiers.
func (e *Event) MinPrice() int64 {
	return e.priceRange().Min
}

func (e *Event) priceRange() PriceRange {
	if len(e.Tickets) == 0 {
		return PriceRange{}
	}
	r := PriceRange{Min: e.Tickets[0].Price, Max: e.Tickets[0].Price}
	for _, t := range e.Tickets[1:] {
		if t.Price < r.Min {
			r.Min = t.Price
		}
		if t.Price > r.Max {
			r.Max = t.Price
		}
	}
	return r
}

// Derive fills the computed fields. The heat score is supplied by the caller
// since it depends on the ranking rules of the catalog.
func (e *Event) Derive(now time.Time, heat float64) {
	e.Status = e.StatusAt(now)
	e.HeatScore = heat
	e.PriceRange = e.priceRange()
	e.IsFree = true
	for _, t := range e.Tickets {
		if t.Price != 0 {
			e.IsFree = false
			break
		}
	}
}

// Clone returns a deep copy safe to hand out of a store.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	if e.Tags != nil {
		c.Tags = append([]string(nil), e.Tags...)
	}
	if e.Tickets != nil {
		c.Tickets = append([]TicketTier(nil), e.Tickets...)
	}
	return &c
}

// EventFilter narrows event listings. Sorting happens after derived fields
// are computed and is not part of the store contract.
type EventFilter struct {
	City   string
	Host   string
	Search string
}

// NormalizeCity produces the label used for city matching.
func NormalizeCity(city string) string {
	return strings.ToLower(strings.Join(strings.Fields(city), " "))
}

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"nightlife/internal/models"
)

// Memory keeps every record in process. A single mutex serialises all writes,
// so the read-check-write of an order is atomic without further locking.
type Memory struct {
	mu       sync.RWMutex
	events   map[string]*models.Event
	slugs    map[string]string
	order    []string
	orders   map[string]*models.Order
	waitlist []*models.WaitlistEntry
	users    map[string]*models.User
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		events: make(map[string]*models.Event),
		slugs:  make(map[string]string),
		orders: make(map[string]*models.Order),
		users:  make(map[string]*models.User),
	}
}

// Ping always succeeds.
func (m *Memory) Ping() error {
	return nil
}

// CreateEvent stores a copy of event.
func (m *Memory) CreateEvent(ctx context.Context, event *models.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event == nil {
		return fmt.Errorf("event is required")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.slugs[event.Slug]; ok {
		return ErrSlugTaken
	}
	if _, ok := m.events[event.ID]; ok {
		return ErrSlugTaken
	}

	m.events[event.ID] = event.Clone()
	m.slugs[event.Slug] = event.ID
	m.order = append(m.order, event.ID)
	return nil
}

// GetEvent returns the event with the given id or slug.
func (m *Memory) GetEvent(ctx context.Context, idOrSlug string) (*models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	event, ok := m.lookupEvent(idOrSlug)
	if !ok {
		return nil, ErrEventNotFound
	}
	return event.Clone(), nil
}

// ListEvents returns events matching filter ordered by start date.
func (m *Memory) ListEvents(ctx context.Context, filter models.EventFilter) ([]*models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	city := models.NormalizeCity(filter.City)
	host := strings.TrimSpace(filter.Host)
	search := strings.ToLower(strings.TrimSpace(filter.Search))

	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*models.Event, 0, len(m.order))
	for _, id := range m.order {
		e := m.events[id]
		if city != "" && models.NormalizeCity(e.City) != city {
			continue
		}
		if host != "" && e.HostID != host && e.Host != host {
			continue
		}
		if search != "" && !matchesSearch(e, search) {
			continue
		}
		events = append(events, e.Clone())
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].StartDate.Equal(events[j].StartDate) {
			return events[i].StartDate.Before(events[j].StartDate)
		}
		return events[i].ID < events[j].ID
	})
	return events, nil
}

func matchesSearch(e *models.Event, search string) bool {
	for _, field := range []string{e.Title, e.Location, e.Host} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return e.HasTag(search)
}

// UpdateTicketTiers replaces the tier definitions of an event while keeping
// sold counts intact.
func (m *Memory) UpdateTicketTiers(ctx context.Context, eventID string, tiers []models.TicketTier, now time.Time) (*models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	event, ok := m.events[eventID]
	if !ok {
		return nil, ErrEventNotFound
	}

	merged, err := mergeTiers(event.Tickets, tiers)
	if err != nil {
		return nil, err
	}
	event.Tickets = merged
	event.UpdatedAt = now
	return event.Clone(), nil
}

// RecordEngagement bumps a single engagement counter.
func (m *Memory) RecordEngagement(ctx context.Context, idOrSlug string, kind models.EngagementKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("unknown engagement kind %q", kind)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	event, ok := m.lookupEvent(idOrSlug)
	if !ok {
		return ErrEventNotFound
	}
	switch kind {
	case models.EngagementView:
		event.Stats.Views++
	case models.EngagementSave:
		event.Stats.Saves++
	case models.EngagementShare:
		event.Stats.Shares++
	}
	return nil
}

// CreateOrder validates the requested tiers against live inventory,
// decrements it and records the order in one critical section.
func (m *Memory) CreateOrder(ctx context.Context, n models.NewOrder) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	event, ok := m.events[n.EventID]
	if !ok {
		return nil, ErrEventNotFound
	}

	// Reserve against a scratch copy so a failed request leaves inventory untouched.
	tiers := append([]models.TicketTier(nil), event.Tickets...)
	items, err := reserveTickets(tiers, n.Tickets)
	if err != nil {
		return nil, err
	}

	order := buildOrder(n, items)
	if _, exists := m.orders[order.ID]; exists {
		return nil, fmt.Errorf("order %s already exists", order.ID)
	}

	event.Tickets = tiers
	m.orders[order.ID] = order
	return order.Clone(), nil
}

// CancelOrder cancels the order and restocks its tickets. Cancelling an
// already cancelled order returns it unchanged.
func (m *Memory) CancelOrder(ctx context.Context, id string, now time.Time) (*models.Order, error) {
	order, _, err := m.UpdateOrderStatus(ctx, id, models.OrderStatusCancelled, nil, now)
	return order, err
}

// UpdateOrderStatus moves an order to status, merging payment details. The
// boolean result is false when the order already had that status.
func (m *Memory) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, details map[string]string, now time.Time) (*models.Order, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.orders[id]
	if !ok {
		return nil, false, ErrOrderNotFound
	}

	order := stored.Clone()
	changed, err := applyTransition(order, status, details, now)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return order, false, nil
	}

	if status == models.OrderStatusCancelled {
		if event, ok := m.events[order.EventID]; ok {
			restockTickets(event.Tickets, order.Tickets)
		}
	}

	m.orders[id] = order
	return order.Clone(), true, nil
}

// GetOrder returns a single order.
func (m *Memory) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	order, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return order.Clone(), nil
}

// ListOrdersByUser returns the most recent orders placed by a user.
func (m *Memory) ListOrdersByUser(ctx context.Context, userID string, limit int) ([]*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	var orders []*models.Order
	for _, o := range m.orders {
		if o.UserID != nil && *o.UserID == userID {
			orders = append(orders, o.Clone())
		}
	}
	m.mu.RUnlock()

	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID > orders[j].ID
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}

// ListOrdersByEvent returns the orders of an event, optionally narrowed to a status.
func (m *Memory) ListOrdersByEvent(ctx context.Context, eventID string, status models.OrderStatus) ([]*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	var orders []*models.Order
	for _, o := range m.orders {
		if o.EventID != eventID {
			continue
		}
		if status != "" && o.Status != status {
			continue
		}
		orders = append(orders, o.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.Before(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
	return orders, nil
}

// JoinWaitlist appends a waiting entry unless the email already waits for the
// event, in which case the existing entry is returned with created=false.
func (m *Memory) JoinWaitlist(ctx context.Context, entry *models.WaitlistEntry) (*models.WaitlistEntry, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.events[entry.EventID]; !ok {
		return nil, false, ErrEventNotFound
	}
	for _, w := range m.waitlist {
		if w.EventID == entry.EventID && w.Email == entry.Email && w.Status == models.WaitlistWaiting {
			return w.Clone(), false, nil
		}
	}

	m.waitlist = append(m.waitlist, entry.Clone())
	return entry.Clone(), true, nil
}

// NotifyNextWaiting moves the oldest matching waiting entry to notified and
// opens its purchase window.
func (m *Memory) NotifyNextWaiting(ctx context.Context, eventID, ticketID string, now time.Time, window time.Duration) (*models.WaitlistEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var next *models.WaitlistEntry
	for _, w := range m.waitlist {
		if w.EventID != eventID || w.Status != models.WaitlistWaiting || !w.Matches(ticketID) {
			continue
		}
		if next == nil || w.CreatedAt.Before(next.CreatedAt) {
			next = w
		}
	}
	if next == nil {
		return nil, ErrWaitlistEmpty
	}

	notifiedAt := now
	expiresAt := now.Add(window)
	next.Status = models.WaitlistNotified
	next.NotifiedAt = &notifiedAt
	next.ExpiresAt = &expiresAt
	return next.Clone(), nil
}

// ListWaitlistByEmail returns every entry an email holds for an event, oldest first.
func (m *Memory) ListWaitlistByEmail(ctx context.Context, eventID, email string) ([]*models.WaitlistEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var entries []*models.WaitlistEntry
	for _, w := range m.waitlist {
		if w.EventID == eventID && w.Email == email {
			entries = append(entries, w.Clone())
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})
	return entries, nil
}

// SetWaitlistStatus moves an entry from one status to another. Moving back to
// waiting clears the purchase window.
func (m *Memory) SetWaitlistStatus(ctx context.Context, id string, from, to models.WaitlistStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var target *models.WaitlistEntry
	for _, w := range m.waitlist {
		if w.ID == id && w.Status == from {
			target = w
			break
		}
	}
	if target == nil {
		return ErrWaitlistEntryNotFound
	}

	if to == models.WaitlistWaiting {
		for _, w := range m.waitlist {
			if w != target && w.EventID == target.EventID && w.Email == target.Email && w.Status == models.WaitlistWaiting {
				return ErrAlreadyWaiting
			}
		}
		target.NotifiedAt = nil
		target.ExpiresAt = nil
	}
	target.Status = to
	return nil
}

// CreateUser registers an account. The password must already be hashed.
func (m *Memory) CreateUser(ctx context.Context, user *models.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.users[user.Email]; ok {
		return ErrUserExists
	}
	u := *user
	u.PasswordHash = append([]byte(nil), user.PasswordHash...)
	m.users[user.Email] = &u
	return nil
}

// UserByEmail looks up an account by its normalized email.
func (m *Memory) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[email]
	if !ok {
		return nil, ErrUserNotFound
	}
	u := *user
	return &u, nil
}

func (m *Memory) lookupEvent(idOrSlug string) (*models.Event, bool) {
	if event, ok := m.events[idOrSlug]; ok {
		return event, true
	}
	if id, ok := m.slugs[idOrSlug]; ok {
		event, ok := m.events[id]
		return event, ok
	}
	return nil, false
}

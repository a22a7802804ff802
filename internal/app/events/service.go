package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"nightlife/internal/auth"
	"nightlife/internal/models"
	"nightlife/internal/store"
)

// Listing sort orders.
const (
	SortHeat    = "heat"
	SortNew     = "new"
	SortSoonest = "soonest"
	SortPrice   = "price"
)

// Listing limits.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Store describes the persistence operations required by the catalog.
type Store interface {
	CreateEvent(ctx context.Context, event *models.Event) error
	GetEvent(ctx context.Context, idOrSlug string) (*models.Event, error)
	ListEvents(ctx context.Context, filter models.EventFilter) ([]*models.Event, error)
	UpdateTicketTiers(ctx context.Context, eventID string, tiers []models.TicketTier, now time.Time) (*models.Event, error)
	RecordEngagement(ctx context.Context, idOrSlug string, kind models.EngagementKind) error
}

// ListOptions narrows and orders a listing.
type ListOptions struct {
	Filter      models.EventFilter
	Sort        string
	Limit       int
	IncludePast bool
}

// Service exposes the event catalog.
type Service interface {
	Create(ctx context.Context, host auth.Principal, input CreateInput) (*models.Event, error)
	Get(ctx context.Context, idOrSlug string) (*models.Event, error)
	List(ctx context.Context, opts ListOptions) ([]*models.Event, error)
	// Manage returns the event when principal may manage it.
	Manage(ctx context.Context, principal auth.Principal, idOrSlug string) (*models.Event, error)
	UpdateTickets(ctx context.Context, principal auth.Principal, idOrSlug string, tiers []models.TicketTier) (*models.Event, error)
	RecordEngagement(ctx context.Context, idOrSlug string, kind models.EngagementKind) error
}

type service struct {
	store Store
	now   func() time.Time
}

// Option customises the service.
type Option func(*service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// New wires a Service backed by the provided Store.
func New(store Store, opts ...Option) Service {
	s := &service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// slugAttempts bounds the suffix retries for derived slugs.
const slugAttempts = 3

func (s *service) Create(ctx context.Context, host auth.Principal, input CreateInput) (*models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !host.Role.CanHost() {
		return nil, fmt.Errorf("%w: only hosts can publish events", store.ErrForbidden)
	}
	if err := input.validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	end := input.EndDate
	if end.IsZero() {
		end = input.StartDate
	}

	tiers := normalizeTiers(input.Tickets)
	for i := range tiers {
		tiers[i].Remaining = tiers[i].Quantity
	}

	hostName := host.Name
	if hostName == "" {
		hostName = host.Email
	}

	event := &models.Event{
		ID:          uuid.NewString(),
		Title:       strings.TrimSpace(input.Title),
		Description: strings.TrimSpace(input.Description),
		StartDate:   input.StartDate.UTC(),
		EndDate:     end.UTC(),
		Category:    strings.TrimSpace(input.Category),
		Tags:        normalizeTags(input.Tags),
		City:        strings.Join(strings.Fields(input.City), " "),
		Location:    strings.TrimSpace(input.Location),
		HostID:      host.UserID,
		Host:        hostName,
		Tickets:     tiers,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// An explicit slug must be free; a derived one gets a short suffix on clash.
	base := input.Slug
	derived := base == ""
	if derived {
		base = Slugify(event.Title)
		if base == "" {
			base = "event"
		}
	}

	event.Slug = base
	for attempt := 0; ; attempt++ {
		err := s.store.CreateEvent(ctx, event)
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrSlugTaken) || !derived || attempt+1 >= slugAttempts {
			return nil, err
		}
		event.Slug = base + "-" + strings.ToLower(uuid.NewString()[:6])
	}

	return Decorate(event, now), nil
}

func (s *service) Get(ctx context.Context, idOrSlug string) (*models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	event, err := s.store.GetEvent(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	return Decorate(event, s.now()), nil
}

func (s *service) List(ctx context.Context, opts ListOptions) ([]*models.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	less, err := sorter(opts.Sort)
	if err != nil {
		return nil, err
	}
	limit, err := normalizeLimit(opts.Limit)
	if err != nil {
		return nil, err
	}

	events, err := s.store.ListEvents(ctx, opts.Filter)
	if err != nil {
		return nil, err
	}

	now := s.now()
	visible := events[:0]
	for _, e := range events {
		Decorate(e, now)
		if !opts.IncludePast && e.Status == models.EventStatusPast {
			continue
		}
		visible = append(visible, e)
	}

	sort.SliceStable(visible, func(i, j int) bool { return less(visible[i], visible[j]) })
	if len(visible) > limit {
		visible = visible[:limit]
	}
	return visible, nil
}

func (s *service) Manage(ctx context.Context, principal auth.Principal, idOrSlug string) (*models.Event, error) {
	event, err := s.Get(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	if !principal.CanManage(event.HostID) {
		return nil, fmt.Errorf("%w: event belongs to another host", store.ErrForbidden)
	}
	return event, nil
}

func (s *service) UpdateTickets(ctx context.Context, principal auth.Principal, idOrSlug string, tiers []models.TicketTier) (*models.Event, error) {
	event, err := s.Manage(ctx, principal, idOrSlug)
	if err != nil {
		return nil, err
	}
	if err := validateTiers(tiers); err != nil {
		return nil, fmt.Errorf("%w: %s", store.ErrValidation, err)
	}

	now := s.now().UTC()
	updated, err := s.store.UpdateTicketTiers(ctx, event.ID, normalizeTiers(tiers), now)
	if err != nil {
		return nil, err
	}
	return Decorate(updated, now), nil
}

func (s *service) RecordEngagement(ctx context.Context, idOrSlug string, kind models.EngagementKind) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: engagement kind must be view, save or share", store.ErrValidation)
	}
	return s.store.RecordEngagement(ctx, idOrSlug, kind)
}

func sorter(name string) (func(a, b *models.Event) bool, error) {
	switch name {
	case "", SortHeat:
		return func(a, b *models.Event) bool {
			if a.HeatScore != b.HeatScore {
				return a.HeatScore > b.HeatScore
			}
			return a.StartDate.Before(b.StartDate)
		}, nil
	case SortNew:
		return func(a, b *models.Event) bool {
			return a.CreatedAt.After(b.CreatedAt)
		}, nil
	case SortSoonest:
		return func(a, b *models.Event) bool {
			return a.StartDate.Before(b.StartDate)
		}, nil
	case SortPrice:
		return func(a, b *models.Event) bool {
			if a.MinPrice() != b.MinPrice() {
				return a.MinPrice() < b.MinPrice()
			}
			return a.StartDate.Before(b.StartDate)
		}, nil
	}
	return nil, fmt.Errorf("%w: sort must be one of heat, new, soonest, price", store.ErrValidation)
}

func normalizeLimit(limit int) (int, error) {
	switch {
	case limit == 0:
		return DefaultLimit, nil
	case limit < 0:
		return 0, fmt.Errorf("%w: limit must be positive", store.ErrValidation)
	case limit > MaxLimit:
		return MaxLimit, nil
	}
	return limit, nil
}

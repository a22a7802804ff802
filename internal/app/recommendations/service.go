package recommendations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"nightlife/internal/app/events"
	"nightlife/internal/models"
	"nightlife/internal/store"
)

// Scoring weights.
const (
	tagMatchWeight   = 5.0
	hostMatchWeight  = 15.0
	cityMatchWeight  = 10.0
	heatWeight       = 0.1
	pastEventPenalty = -100.0

	similarTagWeight      = 10.0
	similarCategoryWeight = 5.0
	similarHostWeight     = 8.0
	similarCityWeight     = 3.0
)

// Limits.
const (
	ProfileOrderLimit = 50
	DefaultLimit      = 10
	MaxLimit          = 50
)

// Store describes the reads the engine needs.
type Store interface {
	GetEvent(ctx context.Context, idOrSlug string) (*models.Event, error)
	ListEvents(ctx context.Context, filter models.EventFilter) ([]*models.Event, error)
	ListOrdersByUser(ctx context.Context, userID string, limit int) ([]*models.Order, error)
}

// Profile summarises what a user has bought before.
type Profile struct {
	UserID          string          `json:"userId"`
	PreferredTags   map[string]bool `json:"preferredTags"`
	PreferredCities map[string]bool `json:"preferredCities"`
	PreferredHosts  map[string]bool `json:"preferredHosts"`
	PastEventIDs    map[string]bool `json:"pastEventIds"`
}

// Scored pairs an event with its score.
type Scored struct {
	Event *models.Event `json:"event"`
	Score float64       `json:"score"`
}

// Service exposes personalised and item-to-item recommendations.
type Service interface {
	BuildProfile(ctx context.Context, userID string) (*Profile, error)
	Recommended(ctx context.Context, userID string, limit int) ([]Scored, error)
	Similar(ctx context.Context, idOrSlug string, limit int) ([]Scored, error)
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

func (s *service) BuildProfile(ctx context.Context, userID string) (*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	profile := &Profile{
		UserID:          userID,
		PreferredTags:   map[string]bool{},
		PreferredCities: map[string]bool{},
		PreferredHosts:  map[string]bool{},
		PastEventIDs:    map[string]bool{},
	}

	orders, err := s.store.ListOrdersByUser(ctx, userID, ProfileOrderLimit)
	if err != nil {
		return nil, err
	}

	for _, o := range orders {
		if profile.PastEventIDs[o.EventID] {
			continue
		}
		profile.PastEventIDs[o.EventID] = true

		event, err := s.store.GetEvent(ctx, o.EventID)
		if err != nil {
			if errors.Is(err, store.ErrEventNotFound) {
				continue
			}
			return nil, err
		}
		for _, tag := range event.Tags {
			profile.PreferredTags[strings.ToLower(tag)] = true
		}
		if city := models.NormalizeCity(event.City); city != "" {
			profile.PreferredCities[city] = true
		}
		if host := hostKey(event); host != "" {
			profile.PreferredHosts[host] = true
		}
	}
	return profile, nil
}

// MatchScore weighs event against profile. Events already bought are
// penalised, not excluded.
func MatchScore(event *models.Event, profile *Profile) float64 {
	score := 0.0
	for _, tag := range event.Tags {
		if profile.PreferredTags[strings.ToLower(tag)] {
			score += tagMatchWeight
		}
	}
	if profile.PreferredHosts[hostKey(event)] {
		score += hostMatchWeight
	}
	if profile.PreferredCities[models.NormalizeCity(event.City)] {
		score += cityMatchWeight
	}
	score += heatWeight * event.HeatScore
	if profile.PastEventIDs[event.ID] {
		score += pastEventPenalty
	}
	return score
}

// SimilarityScore weighs how close candidate is to source.
func SimilarityScore(source, candidate *models.Event) float64 {
	score := 0.0
	for _, tag := range candidate.Tags {
		if source.HasTag(tag) {
			score += similarTagWeight
		}
	}
	if source.Category != "" && strings.EqualFold(source.Category, candidate.Category) {
		score += similarCategoryWeight
	}
	if hostKey(source) != "" && hostKey(source) == hostKey(candidate) {
		score += similarHostWeight
	}
	if city := models.NormalizeCity(source.City); city != "" && city == models.NormalizeCity(candidate.City) {
		score += similarCityWeight
	}
	return score
}

func (s *service) Recommended(ctx context.Context, userID string, limit int) ([]Scored, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}

	candidates, err := s.candidates(ctx)
	if err != nil {
		return nil, err
	}

	scored := make([]Scored, 0, len(candidates))
	if userID == "" {
		for _, e := range candidates {
			scored = append(scored, Scored{Event: e, Score: e.HeatScore})
		}
		return top(scored, limit), nil
	}

	profile, err := s.BuildProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, e := range candidates {
		scored = append(scored, Scored{Event: e, Score: MatchScore(e, profile)})
	}
	return top(scored, limit), nil
}

func (s *service) Similar(ctx context.Context, idOrSlug string, limit int) ([]Scored, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}

	source, err := s.store.GetEvent(ctx, idOrSlug)
	if err != nil {
		return nil, err
	}
	candidates, err := s.candidates(ctx)
	if err != nil {
		return nil, err
	}

	scored := make([]Scored, 0, len(candidates))
	for _, e := range candidates {
		if e.ID == source.ID {
			continue
		}
		scored = append(scored, Scored{Event: e, Score: SimilarityScore(source, e)})
	}
	return top(scored, limit), nil
}

// candidates returns every non-past event with derived fields filled.
func (s *service) candidates(ctx context.Context) ([]*models.Event, error) {
	all, err := s.store.ListEvents(ctx, models.EventFilter{})
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := all[:0]
	for _, e := range all {
		events.Decorate(e, now)
		if e.Status != models.EventStatusPast {
			out = append(out, e)
		}
	}
	return out, nil
}

func top(scored []Scored, limit int) []Scored {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Event.HeatScore != b.Event.HeatScore {
			return a.Event.HeatScore > b.Event.HeatScore
		}
		return a.Event.StartDate.Before(b.Event.StartDate)
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored
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

func hostKey(e *models.Event) string {
	if e.HostID != "" {
		return e.HostID
	}
	return strings.ToLower(strings.TrimSpace(e.Host))
}

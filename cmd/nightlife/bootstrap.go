package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"nightlife/internal/app/events"
	"nightlife/internal/app/users"
	"nightlife/internal/auth"
	"nightlife/internal/models"
	"nightlife/internal/store"
)

const demoHostEmail = "demo-host@nightlife.local"

// bootstrapDemoData publishes a handful of events owned by a demo host. It is
// a no-op once the demo host exists.
func bootstrapDemoData(ctx context.Context, svc *services, now time.Time) error {
	session, err := svc.users.Signup(ctx, users.SignupRequest{
		Email:    demoHostEmail,
		Name:     "Night Owls Collective",
		Password: "demo-host-123",
		Role:     models.RoleHost,
	})
	if err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return nil
		}
		return fmt.Errorf("bootstrap demo host: %w", err)
	}

	host := auth.Principal{
		UserID: session.User.ID,
		Email:  session.User.Email,
		Name:   session.User.Name,
		Role:   session.User.Role,
	}

	day := now.UTC().Truncate(24 * time.Hour)
	at := func(days, hour int) time.Time {
		return day.AddDate(0, 0, days).Add(time.Duration(hour) * time.Hour)
	}

	seeds := []events.CreateInput{
		{
			Title:     "Warehouse Techno All Nighter",
			StartDate: at(1, 22),
			EndDate:   at(2, 6),
			Category:  "club",
			Tags:      []string{"techno", "warehouse"},
			City:      "Berlin",
			Location:  "Halle am Wasser",
			Tickets: []models.TicketTier{
				{ID: "early", Name: "Early Bird", Price: 1500, Quantity: 100, MaxPerOrder: 4},
				{ID: "ga", Name: "General Admission", Price: 2500, Quantity: 400},
			},
		},
		{
			Title:     "Rooftop Jazz Sessions",
			StartDate: at(3, 19),
			EndDate:   at(3, 23),
			Category:  "concert",
			Tags:      []string{"jazz", "rooftop"},
			City:      "Lisbon",
			Location:  "Terraço Alto",
			Tickets: []models.TicketTier{
				{ID: "ga", Name: "General Admission", Price: 1800, Quantity: 120},
				{ID: "table", Name: "Table for Four", Price: 12000, Quantity: 10, MaxPerOrder: 1},
			},
		},
		{
			Title:     "Sunday Vinyl Swap",
			StartDate: at(6, 14),
			EndDate:   at(6, 18),
			Category:  "social",
			Tags:      []string{"vinyl", "house"},
			City:      "Berlin",
			Location:  "Plattenladen Kreuzberg",
			Tickets: []models.TicketTier{
				{ID: "rsvp", Name: "RSVP", Quantity: 60, RSVPOnly: true},
			},
		},
	}

	for _, input := range seeds {
		event, err := svc.events.Create(ctx, host, input)
		if err != nil {
			return fmt.Errorf("bootstrap event %q: %w", input.Title, err)
		}
		log.Info().Str("event_id", event.ID).Str("slug", event.Slug).Msg("demo event created")
	}
	return nil
}

package events

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"nightlife/internal/models"
	"nightlife/internal/store"
)

// CreateInput is the payload accepted when a host publishes an event.
type CreateInput struct {
	Title       string              `json:"title"`
	Slug        string              `json:"slug"`
	Description string              `json:"description"`
	StartDate   time.Time           `json:"startDate"`
	EndDate     time.Time           `json:"endDate"`
	Category    string              `json:"category"`
	Tags        []string            `json:"tags"`
	City        string              `json:"city"`
	Location    string              `json:"location"`
	Tickets     []models.TicketTier `json:"tickets"`
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lower-cases title and joins its words with dashes.
func Slugify(title string) string {
	return strings.Trim(slugInvalid.ReplaceAllString(strings.ToLower(title), "-"), "-")
}

func (in CreateInput) validate() error {
	var problems []string
	if strings.TrimSpace(in.Title) == "" {
		problems = append(problems, "title is required")
	}
	if in.StartDate.IsZero() {
		problems = append(problems, "startDate is required")
	}
	if !in.EndDate.IsZero() && in.EndDate.Before(in.StartDate) {
		problems = append(problems, "endDate must not be before startDate")
	}
	if in.Slug != "" && Slugify(in.Slug) != in.Slug {
		problems = append(problems, "slug may only contain lower-case letters, digits and dashes")
	}
	if err := validateTiers(in.Tickets); err != nil {
		problems = append(problems, err.Error())
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", store.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

func validateTiers(tiers []models.TicketTier) error {
	seen := make(map[string]bool, len(tiers))
	for i, t := range tiers {
		switch {
		case strings.TrimSpace(t.ID) == "":
			return fmt.Errorf("tickets[%d].id is required", i)
		case seen[t.ID]:
			return fmt.Errorf("tickets[%d].id %q is duplicated", i, t.ID)
		case strings.TrimSpace(t.Name) == "":
			return fmt.Errorf("tickets[%d].name is required", i)
		case t.Quantity <= 0:
			return fmt.Errorf("tickets[%d].quantity must be positive", i)
		case t.Quantity > models.MaxTierQuantity:
			return fmt.Errorf("tickets[%d].quantity must not exceed %d", i, models.MaxTierQuantity)
		case t.Price < 0:
			return fmt.Errorf("tickets[%d].price must not be negative", i)
		case t.Price > models.MaxTicketPrice:
			return fmt.Errorf("tickets[%d].price must not exceed %d", i, models.MaxTicketPrice)
		case t.MinPerOrder < 0 || t.MaxPerOrder < 0:
			return fmt.Errorf("tickets[%d] order bounds must not be negative", i)
		case t.MaxPerOrder > 0 && t.MinPerOrder > t.MaxPerOrder:
			return fmt.Errorf("tickets[%d].minPerOrder exceeds maxPerOrder", i)
		}
		seen[t.ID] = true
	}
	return nil
}

// normalizeTiers forces RSVP tiers free. Remaining is left to the caller.
func normalizeTiers(tiers []models.TicketTier) []models.TicketTier {
	out := make([]models.TicketTier, len(tiers))
	for i, t := range tiers {
		t.ID = strings.TrimSpace(t.ID)
		t.Name = strings.TrimSpace(t.Name)
		if t.RSVPOnly {
			t.Price = 0
		}
		out[i] = t
	}
	return out
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}

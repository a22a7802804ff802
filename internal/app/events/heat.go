package events

import (
	"math"
	"time"

	"nightlife/internal/models"
)

// Heat score weights.
const (
	recencyWindowHours = 168.0
	guestWeight        = 4.0
	rsvpWeight         = 3.0
	viewWeight         = 0.1
	saveWeight         = 0.4
	shareWeight        = 0.8
)

// CalculateHeatScore ranks an event by proximity and engagement. Once the
// event has started hoursUntilStart turns negative, so live and past events
// keep growing their recency term.
func CalculateHeatScore(e *models.Event, now time.Time) float64 {
	hoursUntilStart := e.StartDate.Sub(now).Hours()
	recency := math.Max(recencyWindowHours-hoursUntilStart, 0)

	rsvps := e.Stats.RSVPs
	if rsvps == 0 {
		rsvps = e.Stats.GuestCount
	}

	score := recency +
		float64(e.Stats.GuestCount)*guestWeight +
		float64(rsvps)*rsvpWeight +
		float64(e.Stats.Views)*viewWeight +
		float64(e.Stats.Saves)*saveWeight +
		float64(e.Stats.Shares)*shareWeight

	return math.Round(score)
}

// Decorate fills the derived fields of e at now.
func Decorate(e *models.Event, now time.Time) *models.Event {
	e.Derive(now, CalculateHeatScore(e, now))
	return e
}

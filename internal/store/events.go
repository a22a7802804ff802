package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"nightlife/internal/models"
)

const (
	eventSelectSQL = `
		SELECT e.id, e.slug, e.title, e.description, e.start_date, e.end_date, e.category,
		       e.tags, e.city, e.location, e.host_id, e.host,
		       e.views, e.saves, e.shares, e.rsvps, e.guest_count,
		       e.created_at, e.updated_at,
		       COALESCE((
		           SELECT jsonb_agg(jsonb_build_object(
		               'id', t.id, 'name', t.name, 'price', t.price,
		               'quantity', t.quantity, 'remaining', t.remaining,
		               'minPerOrder', t.min_per_order, 'maxPerOrder', t.max_per_order,
		               'rsvpOnly', t.rsvp_only
		           ) ORDER BY t.position)
		           FROM event_tickets t
		           WHERE t.event_id = e.id
		       ), '[]'::jsonb) AS tickets
		FROM events e`

	insertEventSQL = `
		INSERT INTO events (id, slug, title, description, start_date, end_date, category, tags,
		                    city, location, host_id, host,
		                    views, saves, shares, rsvps, guest_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $18)
	`

	insertTicketSQL = `
		INSERT INTO event_tickets (event_id, id, position, name, price, quantity, remaining,
		                           min_per_order, max_per_order, rsvp_only)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	lockEventSQL = `SELECT id FROM events WHERE id = $1 FOR UPDATE`

	selectTiersForUpdateSQL = `
		SELECT id, name, price, quantity, remaining, min_per_order, max_per_order, rsvp_only
		FROM event_tickets
		WHERE event_id = $1
		ORDER BY position ASC
		FOR UPDATE
	`

	deleteTicketsSQL = `DELETE FROM event_tickets WHERE event_id = $1`

	touchEventSQL = `UPDATE events SET updated_at = $2 WHERE id = $1`
)

var engagementColumns = map[models.EngagementKind]string{
	models.EngagementView:  "views",
	models.EngagementSave:  "saves",
	models.EngagementShare: "shares",
}

// CreateEvent persists an event together with its ticket tiers.
func (s *Store) CreateEvent(ctx context.Context, event *models.Event) error {
	if event == nil {
		return errors.New("event is required")
	}

	tagsJSON, err := json.Marshal(nonNilStrings(event.Tags))
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, insertEventSQL,
		event.ID, event.Slug, event.Title, event.Description, event.StartDate, event.EndDate,
		event.Category, string(tagsJSON), event.City, event.Location, event.HostID, event.Host,
		event.Stats.Views, event.Stats.Saves, event.Stats.Shares, event.Stats.RSVPs, event.Stats.GuestCount,
		event.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return ErrSlugTaken
		}
		return fmt.Errorf("insert event: %w", err)
	}

	if err := insertTickets(ctx, tx, event.ID, event.Tickets); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return commitErr(err)
	}
	tx = nil

	return nil
}

// GetEvent returns the event with the given id or slug.
func (s *Store) GetEvent(ctx context.Context, idOrSlug string) (*models.Event, error) {
	event, err := scanEvent(s.db.QueryRowContext(ctx, eventSelectSQL+`
		WHERE e.id = $1 OR e.slug = $1`, idOrSlug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("select event: %w", err)
	}
	return event, nil
}

// likeEscaper makes a search term match literally inside an ILIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// ListEvents returns events matching filter ordered by start date.
func (s *Store) ListEvents(ctx context.Context, filter models.EventFilter) ([]*models.Event, error) {
	var (
		clauses []string
		args    []any
	)

	if city := models.NormalizeCity(filter.City); city != "" {
		args = append(args, city)
		clauses = append(clauses, fmt.Sprintf("LOWER(e.city) = $%d", len(args)))
	}
	if host := strings.TrimSpace(filter.Host); host != "" {
		args = append(args, host)
		clauses = append(clauses, fmt.Sprintf("(e.host_id = $%d OR e.host = $%d)", len(args), len(args)))
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		tagJSON, err := json.Marshal([]string{strings.ToLower(search)})
		if err != nil {
			return nil, fmt.Errorf("marshal search tag: %w", err)
		}
		args = append(args, "%"+likeEscaper.Replace(search)+"%", string(tagJSON))
		like, tag := len(args)-1, len(args)
		clauses = append(clauses, fmt.Sprintf(
			`(e.title ILIKE $%d ESCAPE '\' OR e.location ILIKE $%d ESCAPE '\' OR e.host ILIKE $%d ESCAPE '\' OR e.tags @> $%d::jsonb)`,
			like, like, like, tag,
		))
	}

	query := eventSelectSQL
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY e.start_date ASC, e.id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}

	return events, nil
}

// UpdateTicketTiers replaces the tier definitions of an event while keeping
// sold counts intact.
func (s *Store) UpdateTicketTiers(ctx context.Context, eventID string, tiers []models.TicketTier, now time.Time) (*models.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	if err := lockEvent(ctx, tx, eventID); err != nil {
		return nil, err
	}

	current, err := selectTiersForUpdate(ctx, tx, eventID)
	if err != nil {
		return nil, err
	}

	merged, err := mergeTiers(current, tiers)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, deleteTicketsSQL, eventID); err != nil {
		return nil, fmt.Errorf("delete tiers: %w", err)
	}
	if err := insertTickets(ctx, tx, eventID, merged); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx, touchEventSQL, eventID, now); err != nil {
		return nil, fmt.Errorf("touch event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, commitErr(err)
	}
	tx = nil

	return s.GetEvent(ctx, eventID)
}

// RecordEngagement bumps a single engagement counter.
func (s *Store) RecordEngagement(ctx context.Context, idOrSlug string, kind models.EngagementKind) error {
	column, ok := engagementColumns[kind]
	if !ok {
		return fmt.Errorf("unknown engagement kind %q", kind)
	}

	result, err := s.db.ExecContext(ctx, fmt.Sprintf(
		`UPDATE events SET %s = %s + 1 WHERE id = $1 OR slug = $1`, column, column,
	), idOrSlug)
	if err != nil {
		return fmt.Errorf("update %s: %w", column, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrEventNotFound
	}
	return nil
}

func lockEvent(ctx context.Context, tx *sql.Tx, eventID string) error {
	var id string
	if err := tx.QueryRowContext(ctx, lockEventSQL, eventID).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrEventNotFound
		}
		return fmt.Errorf("lock event: %w", err)
	}
	return nil
}

func selectTiersForUpdate(ctx context.Context, tx *sql.Tx, eventID string) ([]models.TicketTier, error) {
	rows, err := tx.QueryContext(ctx, selectTiersForUpdateSQL, eventID)
	if err != nil {
		return nil, fmt.Errorf("select tiers: %w", err)
	}
	defer rows.Close()

	var tiers []models.TicketTier
	for rows.Next() {
		var t models.TicketTier
		if err := rows.Scan(
			&t.ID, &t.Name, &t.Price, &t.Quantity, &t.Remaining,
			&t.MinPerOrder, &t.MaxPerOrder, &t.RSVPOnly,
		); err != nil {
			return nil, fmt.Errorf("scan tier: %w", err)
		}
		tiers = append(tiers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tiers: %w", err)
	}
	return tiers, nil
}

func insertTickets(ctx context.Context, tx *sql.Tx, eventID string, tiers []models.TicketTier) error {
	for i, t := range tiers {
		if _, err := tx.ExecContext(ctx, insertTicketSQL,
			eventID, t.ID, i, t.Name, t.Price, t.Quantity, t.Remaining,
			t.MinPerOrder, t.MaxPerOrder, t.RSVPOnly,
		); err != nil {
			return fmt.Errorf("insert tier %q: %w", t.ID, err)
		}
	}
	return nil
}

func scanEvent(row rowScanner) (*models.Event, error) {
	var (
		e           models.Event
		tagsJSON    []byte
		ticketsJSON []byte
	)
	if err := row.Scan(
		&e.ID, &e.Slug, &e.Title, &e.Description, &e.StartDate, &e.EndDate, &e.Category,
		&tagsJSON, &e.City, &e.Location, &e.HostID, &e.Host,
		&e.Stats.Views, &e.Stats.Saves, &e.Stats.Shares, &e.Stats.RSVPs, &e.Stats.GuestCount,
		&e.CreatedAt, &e.UpdatedAt,
		&ticketsJSON,
	); err != nil {
		return nil, err
	}

	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &e.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	if len(ticketsJSON) > 0 {
		if err := json.Unmarshal(ticketsJSON, &e.Tickets); err != nil {
			return nil, fmt.Errorf("decode tickets: %w", err)
		}
	}
	e.Tags = nonNilStrings(e.Tags)
	if e.Tickets == nil {
		e.Tickets = []models.TicketTier{}
	}

	return &e, nil
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

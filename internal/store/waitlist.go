package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"nightlife/internal/models"
)

// ErrAlreadyWaiting is returned when a requeue collides with a newer waiting entry.
var ErrAlreadyWaiting = errors.New("already waiting for this event")

const (
	waitlistSelectSQL = `
		SELECT id, event_id, ticket_id, email, user_id, phone, status,
		       created_at, notified_at, expires_at
		FROM waitlist`

	eventExistsSQL = `SELECT EXISTS(SELECT 1 FROM events WHERE id = $1)`

	insertWaitlistSQL = `
		INSERT INTO waitlist (id, event_id, ticket_id, email, user_id, phone, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	markNotifiedSQL = `
		UPDATE waitlist
		SET status = 'notified', notified_at = $2, expires_at = $3
		WHERE id = $1
	`

	setWaitlistStatusSQL = `
		UPDATE waitlist
		SET status = $3
		WHERE id = $1 AND status = $2
	`

	requeueWaitlistSQL = `
		UPDATE waitlist
		SET status = 'waiting', notified_at = NULL, expires_at = NULL
		WHERE id = $1 AND status = $2
	`
)

// JoinWaitlist inserts a waiting entry unless the email already waits for the
// event, in which case the existing entry is returned with created=false.
// The partial unique index on (event_id, email) WHERE status = 'waiting'
// turns a concurrent duplicate insert into a re-read of the winner.
func (s *Store) JoinWaitlist(ctx context.Context, entry *models.WaitlistEntry) (*models.WaitlistEntry, bool, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, eventExistsSQL, entry.EventID).Scan(&exists); err != nil {
		return nil, false, fmt.Errorf("check event existence: %w", err)
	}
	if !exists {
		return nil, false, ErrEventNotFound
	}

	existing, err := s.findWaiting(ctx, entry.EventID, entry.Email)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	if _, err := s.db.ExecContext(ctx, insertWaitlistSQL,
		entry.ID, entry.EventID, entry.TicketID, entry.Email, nullString(entry.UserID),
		entry.Phone, string(entry.Status), entry.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			existing, findErr := s.findWaiting(ctx, entry.EventID, entry.Email)
			if findErr != nil {
				return nil, false, findErr
			}
			if existing != nil {
				return existing, false, nil
			}
		}
		return nil, false, fmt.Errorf("insert waitlist entry: %w", err)
	}

	return entry.Clone(), true, nil
}

// NotifyNextWaiting moves the oldest matching waiting entry to notified and
// opens its purchase window.
func (s *Store) NotifyNextWaiting(ctx context.Context, eventID, ticketID string, now time.Time, window time.Duration) (*models.WaitlistEntry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	if ticketID == models.AnyTicket {
		ticketID = ""
	}

	entry, err := scanWaitlistEntry(tx.QueryRowContext(ctx, waitlistSelectSQL+`
		WHERE event_id = $1 AND status = 'waiting'
		  AND ($2::text = '' OR ticket_id = $2 OR ticket_id = 'any')
		ORDER BY created_at ASC, id ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`, eventID, ticketID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWaitlistEmpty
		}
		return nil, fmt.Errorf("select waiting entry: %w", err)
	}

	notifiedAt := now
	expiresAt := now.Add(window)
	if _, err := tx.ExecContext(ctx, markNotifiedSQL, entry.ID, notifiedAt, expiresAt); err != nil {
		return nil, fmt.Errorf("mark notified: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, commitErr(err)
	}
	tx = nil

	entry.Status = models.WaitlistNotified
	entry.NotifiedAt = &notifiedAt
	entry.ExpiresAt = &expiresAt
	return entry, nil
}

// ListWaitlistByEmail returns every entry an email holds for an event, oldest first.
func (s *Store) ListWaitlistByEmail(ctx context.Context, eventID, email string) ([]*models.WaitlistEntry, error) {
	rows, err := s.db.QueryContext(ctx, waitlistSelectSQL+`
		WHERE event_id = $1 AND email = $2
		ORDER BY created_at ASC, id ASC`, eventID, email)
	if err != nil {
		return nil, fmt.Errorf("select waitlist: %w", err)
	}
	defer rows.Close()

	var entries []*models.WaitlistEntry
	for rows.Next() {
		entry, err := scanWaitlistEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan waitlist entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate waitlist: %w", err)
	}
	return entries, nil
}

// SetWaitlistStatus moves an entry from one status to another. Moving back to
// waiting clears the purchase window.
func (s *Store) SetWaitlistStatus(ctx context.Context, id string, from, to models.WaitlistStatus) error {
	var (
		result sql.Result
		err    error
	)
	if to == models.WaitlistWaiting {
		result, err = s.db.ExecContext(ctx, requeueWaitlistSQL, id, string(from))
	} else {
		result, err = s.db.ExecContext(ctx, setWaitlistStatusSQL, id, string(from), string(to))
	}
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyWaiting
		}
		return fmt.Errorf("update waitlist status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if rows == 0 {
		return ErrWaitlistEntryNotFound
	}
	return nil
}

func (s *Store) findWaiting(ctx context.Context, eventID, email string) (*models.WaitlistEntry, error) {
	entry, err := scanWaitlistEntry(s.db.QueryRowContext(ctx, waitlistSelectSQL+`
		WHERE event_id = $1 AND email = $2 AND status = 'waiting'`, eventID, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select waiting entry: %w", err)
	}
	return entry, nil
}

func scanWaitlistEntry(row rowScanner) (*models.WaitlistEntry, error) {
	var (
		w          models.WaitlistEntry
		userID     sql.NullString
		status     string
		notifiedAt sql.NullTime
		expiresAt  sql.NullTime
	)
	if err := row.Scan(
		&w.ID, &w.EventID, &w.TicketID, &w.Email, &userID, &w.Phone, &status,
		&w.CreatedAt, &notifiedAt, &expiresAt,
	); err != nil {
		return nil, err
	}

	w.Status = models.WaitlistStatus(status)
	if userID.Valid {
		id := userID.String
		w.UserID = &id
	}
	if notifiedAt.Valid {
		t := notifiedAt.Time
		w.NotifiedAt = &t
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		w.ExpiresAt = &t
	}
	return &w, nil
}

package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrEventNotFound is returned when no event matches the id or slug.
	ErrEventNotFound = errors.New("event not found")
	// ErrTicketNotFound is returned when an event has no tier with the requested id.
	ErrTicketNotFound = errors.New("ticket tier not found")
	// ErrOrderNotFound is returned when no order matches the id.
	ErrOrderNotFound = errors.New("order not found")
	// ErrSlugTaken signals another event already owns the slug.
	ErrSlugTaken = errors.New("event slug already taken")
	// ErrInvalidOrder wraps order payload problems detected against tier rules.
	ErrInvalidOrder = errors.New("invalid order")
	// ErrInvalidTickets wraps tier edits that would break inventory invariants.
	ErrInvalidTickets = errors.New("invalid ticket tiers")
	// ErrInvalidTransition is returned for order status changes the lifecycle forbids.
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrWaitlistEmpty is returned when nobody is waiting for the tier.
	ErrWaitlistEmpty = errors.New("no waiting entries")
	// ErrWaitlistEntryNotFound is returned when a waitlist entry disappeared.
	ErrWaitlistEntryNotFound = errors.New("waitlist entry not found")
	// ErrUserExists signals the email is already registered.
	ErrUserExists = errors.New("user already exists")
	// ErrUserNotFound is returned when no user matches the email.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidCredentials is returned when an email and password do not match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrForbidden is returned when the caller may not act on the resource.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation wraps request payload problems caught before touching storage.
	ErrValidation = errors.New("validation failed")
)

// Store provides persistence backed by Postgres.
type Store struct {
	db *sql.DB
}

// New sets up a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping checks the database connection.
func (s *Store) Ping() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}

func commitErr(err error) error {
	if isSerializationFailure(err) {
		return fmt.Errorf("commit tx: concurrent update, retry the request: %w", err)
	}
	return fmt.Errorf("commit tx: %w", err)
}

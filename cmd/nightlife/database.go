package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog/log"

	"nightlife/internal/config"
)

// retryPolicy bounds the startup wait for the database.
type retryPolicy struct {
	timeout     time.Duration
	pingTimeout time.Duration
	backoff     time.Duration
	maxBackoff  time.Duration
}

func defaultRetryPolicy(timeout time.Duration) retryPolicy {
	return retryPolicy{
		timeout:     timeout,
		pingTimeout: 5 * time.Second,
		backoff:     500 * time.Millisecond,
		maxBackoff:  5 * time.Second,
	}
}

// openDatabase opens the pgx pool sized from cfg and blocks until Postgres
// answers or cfg.ConnectTimeout elapses.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := waitForDatabase(ctx, db, defaultRetryPolicy(cfg.ConnectTimeout)); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Info().
		Int("max_open_conns", cfg.MaxOpenConns).
		Int("max_idle_conns", cfg.MaxIdleConns).
		Msg("database ready")
	return db, nil
}

func waitForDatabase(ctx context.Context, db *sql.DB, policy retryPolicy) error {
	ctx, cancel := context.WithTimeout(ctx, policy.timeout)
	defer cancel()

	backoff := policy.backoff
	for attempt := 1; ; attempt++ {
		pingCtx, cancelPing := context.WithTimeout(ctx, policy.pingTimeout)
		err := db.PingContext(pingCtx)
		cancelPing()
		if err == nil {
			return nil
		}

		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", backoff).Msg("database not ready")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("ping database after %d attempts: %w", attempt, err)
		case <-timer.C:
		}

		backoff = min(backoff*2, policy.maxBackoff)
	}
}

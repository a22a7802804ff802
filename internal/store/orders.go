package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nightlife/internal/models"
)

const (
	orderSelectSQL = `
		SELECT id, event_id, user_id, user_email, user_name, tickets, total_amount,
		       status, payment_method, payment, created_at, updated_at
		FROM orders`

	decrementTicketSQL = `
		UPDATE event_tickets
		SET remaining = remaining - $3
		WHERE event_id = $1 AND id = $2 AND remaining >= $3
	`

	restockTicketSQL = `
		UPDATE event_tickets
		SET remaining = LEAST(quantity, remaining + $3)
		WHERE event_id = $1 AND id = $2
	`

	insertOrderSQL = `
		INSERT INTO orders (id, event_id, user_id, user_email, user_name, tickets, total_amount,
		                    status, payment_method, payment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10::jsonb, $11, $12)
	`

	updateOrderStatusSQL = `
		UPDATE orders
		SET status = $2, payment = $3::jsonb, updated_at = $4
		WHERE id = $1
	`
)

// CreateOrder validates the requested tiers against live inventory, decrements
// it and inserts the order in a single transaction scoped to the event row.
func (s *Store) CreateOrder(ctx context.Context, n models.NewOrder) (*models.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	if err := lockEvent(ctx, tx, n.EventID); err != nil {
		return nil, err
	}

	tiers, err := selectTiersForUpdate(ctx, tx, n.EventID)
	if err != nil {
		return nil, err
	}

	items, err := reserveTickets(tiers, n.Tickets)
	if err != nil {
		return nil, err
	}

	for _, item := range items {
		result, err := tx.ExecContext(ctx, decrementTicketSQL, n.EventID, item.TicketID, item.Quantity)
		if err != nil {
			return nil, fmt.Errorf("decrement %q: %w", item.TicketID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("rows affected: %w", err)
		}
		if affected != 1 {
			// The row lock makes this unreachable unless the schema drifted.
			return nil, fmt.Errorf("decrement %q: inventory changed during checkout", item.TicketID)
		}
	}

	order := buildOrder(n, items)
	ticketsJSON, paymentJSON, err := encodeOrder(order)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, insertOrderSQL,
		order.ID, order.EventID, nullString(order.UserID), order.UserEmail, order.UserName,
		ticketsJSON, order.TotalAmount, string(order.Status), order.PaymentMethod, paymentJSON,
		order.CreatedAt, order.UpdatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, commitErr(err)
	}
	tx = nil

	return order, nil
}

// CancelOrder cancels the order and restocks its tickets. Cancelling an
// already cancelled order returns it unchanged.
func (s *Store) CancelOrder(ctx context.Context, id string, now time.Time) (*models.Order, error) {
	order, _, err := s.UpdateOrderStatus(ctx, id, models.OrderStatusCancelled, nil, now)
	return order, err
}

// UpdateOrderStatus moves an order to status, merging payment details. The
// boolean result is false when the order already had that status.
func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, details map[string]string, now time.Time) (*models.Order, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	order, err := scanOrder(tx.QueryRowContext(ctx, orderSelectSQL+`
		WHERE id = $1
		FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, ErrOrderNotFound
		}
		return nil, false, fmt.Errorf("select order: %w", err)
	}

	changed, err := applyTransition(order, status, details, now)
	if err != nil {
		return nil, false, err
	}
	if !changed {
		return order, false, nil
	}

	if status == models.OrderStatusCancelled {
		if err := lockEvent(ctx, tx, order.EventID); err != nil {
			return nil, false, err
		}
		for _, item := range order.Tickets {
			if _, err := tx.ExecContext(ctx, restockTicketSQL, order.EventID, item.TicketID, item.Quantity); err != nil {
				return nil, false, fmt.Errorf("restock %q: %w", item.TicketID, err)
			}
		}
	}

	paymentJSON, err := json.Marshal(order.Payment)
	if err != nil {
		return nil, false, fmt.Errorf("marshal payment: %w", err)
	}
	if _, err := tx.ExecContext(ctx, updateOrderStatusSQL, order.ID, string(order.Status), string(paymentJSON), order.UpdatedAt); err != nil {
		return nil, false, fmt.Errorf("update order: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, false, commitErr(err)
	}
	tx = nil

	return order, true, nil
}

// GetOrder returns a single order.
func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	order, err := scanOrder(s.db.QueryRowContext(ctx, orderSelectSQL+`
		WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("select order: %w", err)
	}
	return order, nil
}

// ListOrdersByUser returns the most recent orders placed by a user.
func (s *Store) ListOrdersByUser(ctx context.Context, userID string, limit int) ([]*models.Order, error) {
	return s.queryOrders(ctx, orderSelectSQL+`
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`, userID, limit)
}

// ListOrdersByEvent returns the orders of an event, optionally narrowed to a status.
func (s *Store) ListOrdersByEvent(ctx context.Context, eventID string, status models.OrderStatus) ([]*models.Order, error) {
	if status == "" {
		return s.queryOrders(ctx, orderSelectSQL+`
		WHERE event_id = $1
		ORDER BY created_at ASC, id ASC`, eventID)
	}
	return s.queryOrders(ctx, orderSelectSQL+`
		WHERE event_id = $1 AND status = $2
		ORDER BY created_at ASC, id ASC`, eventID, string(status))
}

func (s *Store) queryOrders(ctx context.Context, query string, args ...any) ([]*models.Order, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var (
		o           models.Order
		userID      sql.NullString
		status      string
		ticketsJSON []byte
		paymentJSON []byte
	)
	if err := row.Scan(
		&o.ID, &o.EventID, &userID, &o.UserEmail, &o.UserName, &ticketsJSON, &o.TotalAmount,
		&status, &o.PaymentMethod, &paymentJSON, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return nil, err
	}

	o.Status = models.OrderStatus(status)
	if userID.Valid {
		id := userID.String
		o.UserID = &id
	}
	if err := json.Unmarshal(ticketsJSON, &o.Tickets); err != nil {
		return nil, fmt.Errorf("decode line items: %w", err)
	}
	o.Payment = map[string]string{}
	if len(paymentJSON) > 0 {
		if err := json.Unmarshal(paymentJSON, &o.Payment); err != nil {
			return nil, fmt.Errorf("decode payment: %w", err)
		}
	}
	return &o, nil
}

func encodeOrder(order *models.Order) (string, string, error) {
	ticketsJSON, err := json.Marshal(order.Tickets)
	if err != nil {
		return "", "", fmt.Errorf("marshal line items: %w", err)
	}
	paymentJSON, err := json.Marshal(order.Payment)
	if err != nil {
		return "", "", fmt.Errorf("marshal payment: %w", err)
	}
	return string(ticketsJSON), string(paymentJSON), nil
}

func nullString(value *string) sql.NullString {
	if value == nil || *value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

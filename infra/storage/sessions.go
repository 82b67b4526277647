package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mstgnz/oxipay/checkout"
	"github.com/shopspring/decimal"
)

// FindPendingSession loads a session by its id or, failing that, by its reserved order id
func (s *SQLiteStorage) FindPendingSession(ctx context.Context, ref string) (*checkout.PendingSession, error) {
	var session *checkout.PendingSession
	err := s.retryOperation(func() error {
		var data string
		err := s.db.QueryRowContext(ctx, `
			SELECT data FROM sessions
			WHERE id = ? OR (reserved_order_id != '' AND reserved_order_id = ?)
			ORDER BY id = ? DESC
			LIMIT 1`, ref, ref, ref).Scan(&data)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return checkout.ErrSessionNotFound
			}
			return fmt.Errorf("failed to load session: %w", err)
		}

		session = &checkout.PendingSession{}
		if err := json.Unmarshal([]byte(data), session); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}
		return nil
	}, 3)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// SaveSession inserts or replaces a session
func (s *SQLiteStorage) SaveSession(ctx context.Context, session *checkout.PendingSession) error {
	if session == nil || session.ID == "" {
		return fmt.Errorf("session id cannot be empty")
	}
	if session.TotalDue.IsNegative() {
		return fmt.Errorf("session %s: total due cannot be negative", session.ID)
	}

	session.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	return s.retryOperation(func() error {
		query := `
		INSERT INTO sessions (id, status, checkout_method, reserved_order_id, total_due, data, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id)
		DO UPDATE SET
			status = excluded.status,
			checkout_method = excluded.checkout_method,
			reserved_order_id = excluded.reserved_order_id,
			total_due = excluded.total_due,
			data = excluded.data,
			updated_at = excluded.updated_at
		`
		_, err := s.db.ExecContext(ctx, query,
			session.ID, string(session.Status), session.CheckoutMethod, session.ReservedOrderID,
			session.TotalDue.String(), string(data), session.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}
		return nil
	}, 3)
}

// CollectTotals refreshes the session's total from the stored record
func (s *SQLiteStorage) CollectTotals(ctx context.Context, session *checkout.PendingSession) error {
	var total string
	err := s.retryOperation(func() error {
		return s.db.QueryRowContext(ctx, `SELECT total_due FROM sessions WHERE id = ?`, session.ID).Scan(&total)
	}, 3)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return checkout.ErrSessionNotFound
		}
		return fmt.Errorf("failed to collect totals: %w", err)
	}

	d, err := decimal.NewFromString(total)
	if err != nil {
		return fmt.Errorf("failed to parse total %q: %w", total, err)
	}
	if d.IsNegative() {
		return fmt.Errorf("session %s: total due cannot be negative", session.ID)
	}
	session.TotalDue = d
	return nil
}

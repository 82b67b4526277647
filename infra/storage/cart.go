package storage

import (
	"context"
	"fmt"

	"github.com/mstgnz/oxipay/checkout"
)

// Clear removes the session from the shopper's working cart
func (s *SQLiteStorage) Clear(ctx context.Context, sessionID string) error {
	return s.retryOperation(func() error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM carts WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}
		return nil
	}, 3)
}

// Replace makes the session the shopper's working cart again
func (s *SQLiteStorage) Replace(ctx context.Context, session *checkout.PendingSession) error {
	return s.retryOperation(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO carts (session_id, updated_at) VALUES (?, CURRENT_TIMESTAMP)
			ON CONFLICT(session_id) DO UPDATE SET updated_at = CURRENT_TIMESTAMP`, session.ID)
		if err != nil {
			return fmt.Errorf("failed to replace cart: %w", err)
		}
		return nil
	}, 3)
}

// IsCartActive reports whether the session is currently a working cart
func (s *SQLiteStorage) IsCartActive(ctx context.Context, sessionID string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM carts WHERE session_id = ?`, sessionID).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check cart: %w", err)
	}
	return n > 0, nil
}

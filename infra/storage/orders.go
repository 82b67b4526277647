package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/oxipay/checkout"
	"github.com/shopspring/decimal"
)

// ErrOrderNotFound is returned when no order exists for the given key
var ErrOrderNotFound = errors.New("storage: order not found")

// SubmitOrder creates the order for session. A session never gets a second order:
// when one already exists it is returned unchanged.
func (s *SQLiteStorage) SubmitOrder(ctx context.Context, session *checkout.PendingSession) (*checkout.FinalizedOrder, error) {
	if len(session.Items) == 0 {
		return nil, nil
	}

	orderID := session.ReservedOrderID
	if orderID == "" {
		orderID = uuid.New().String()
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (id, session_id, state, grand_total, can_invoice, created_at)
			VALUES (?, ?, ?, ?, 1, ?)
			ON CONFLICT(session_id) DO NOTHING`,
			orderID, session.ID, string(checkout.OrderStateNew), session.TotalDue.String(), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to insert order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.GetOrderBySession(ctx, session.ID)
}

// GetOrderBySession returns the order created for a session
func (s *SQLiteStorage) GetOrderBySession(ctx context.Context, sessionID string) (*checkout.FinalizedOrder, error) {
	var order *checkout.FinalizedOrder
	err := s.retryOperation(func() error {
		o := &checkout.FinalizedOrder{}
		var state, total string
		err := s.db.QueryRowContext(ctx, `
			SELECT id, session_id, state, comment, notified, can_invoice, grand_total, created_at
			FROM orders WHERE session_id = ?`, sessionID,
		).Scan(&o.ID, &o.SessionID, &state, &o.Comment, &o.Notified, &o.CanInvoice, &total, &o.CreatedAt)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("failed to load order: %w", err)
		}
		o.State = checkout.OrderState(state)
		o.GrandTotal, err = decimal.NewFromString(total)
		if err != nil {
			return fmt.Errorf("failed to parse order total: %w", err)
		}
		order = o
		return nil
	}, 3)
	return order, err
}

// SetProcessing moves the order to processing with a status history comment
func (s *SQLiteStorage) SetProcessing(ctx context.Context, order *checkout.FinalizedOrder, comment string, notified bool) error {
	err := s.retryOperation(func() error {
		res, err := s.db.ExecContext(ctx,
			`UPDATE orders SET state = ?, comment = ?, notified = ? WHERE id = ?`,
			string(checkout.OrderStateProcessing), comment, notified, order.ID)
		if err != nil {
			return fmt.Errorf("failed to update order: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return ErrOrderNotFound
		}
		return nil
	}, 3)
	if err != nil {
		return err
	}

	order.State = checkout.OrderStateProcessing
	order.Comment = comment
	order.Notified = notified
	return nil
}

// NotifyCustomer queues the new-order email in the notifications outbox
func (s *SQLiteStorage) NotifyCustomer(ctx context.Context, order *checkout.FinalizedOrder) error {
	session, err := s.FindPendingSession(ctx, order.SessionID)
	if err != nil {
		return fmt.Errorf("failed to load session for notification: %w", err)
	}

	return s.retryOperation(func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO notifications (id, order_id, recipient, template, status, created_at)
			VALUES (?, ?, ?, 'new_order', 'queued', ?)`,
			uuid.New().String(), order.ID, session.Customer.Email, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to queue notification: %w", err)
		}
		return nil
	}, 3)
}

// PrepareInvoice builds an unsaved invoice covering every unit of the order
func (s *SQLiteStorage) PrepareInvoice(ctx context.Context, order *checkout.FinalizedOrder) (*checkout.Invoice, error) {
	session, err := s.FindPendingSession(ctx, order.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load session for invoice: %w", err)
	}

	return &checkout.Invoice{
		ID:         uuid.New().String(),
		OrderID:    order.ID,
		TotalQty:   session.TotalQty(),
		GrandTotal: order.GrandTotal,
		State:      checkout.InvoiceStateOpen,
	}, nil
}

// SaveWithOrder stores the invoice and links it to its order in one transaction
func (s *SQLiteStorage) SaveWithOrder(ctx context.Context, invoice *checkout.Invoice, order *checkout.FinalizedOrder) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO invoices (id, order_id, total_qty, grand_total, capture_case, state, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			invoice.ID, order.ID, invoice.TotalQty, invoice.GrandTotal.String(),
			string(invoice.CaptureCase), string(invoice.State), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to insert invoice: %w", err)
		}

		res, err := tx.ExecContext(ctx,
			`UPDATE orders SET invoice_id = ?, can_invoice = 0 WHERE id = ?`, invoice.ID, order.ID)
		if err != nil {
			return fmt.Errorf("failed to link invoice: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			return ErrOrderNotFound
		}
		order.CanInvoice = false
		return nil
	})
}

// InvoiceIDForOrder returns the invoice linked to an order, or "" when none
func (s *SQLiteStorage) InvoiceIDForOrder(ctx context.Context, orderID string) (string, error) {
	var id sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT invoice_id FROM orders WHERE id = ?`, orderID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrOrderNotFound
		}
		return "", err
	}
	return id.String, nil
}

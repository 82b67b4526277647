package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mstgnz/oxipay/checkout"
)

// GetCatalogStock returns the stock record for productRef, or nil when the catalog has none
func (s *SQLiteStorage) GetCatalogStock(ctx context.Context, productRef string) (*checkout.StockRecord, error) {
	var record *checkout.StockRecord
	err := s.retryOperation(func() error {
		var qty int
		var manage bool
		err := s.db.QueryRowContext(ctx,
			`SELECT qty, manage_qty FROM stock WHERE product_ref = ?`, productRef,
		).Scan(&qty, &manage)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			return fmt.Errorf("failed to load stock: %w", err)
		}
		record = &checkout.StockRecord{ProductRef: productRef, Qty: qty, ManageQty: manage}
		return nil
	}, 3)
	return record, err
}

// SaveStock inserts or replaces a stock record
func (s *SQLiteStorage) SaveStock(ctx context.Context, record checkout.StockRecord) error {
	return s.retryOperation(func() error {
		query := `
		INSERT INTO stock (product_ref, qty, manage_qty, updated_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(product_ref)
		DO UPDATE SET qty = excluded.qty, manage_qty = excluded.manage_qty, updated_at = CURRENT_TIMESTAMP
		`
		if _, err := s.db.ExecContext(ctx, query, record.ProductRef, record.Qty, record.ManageQty); err != nil {
			return fmt.Errorf("failed to save stock: %w", err)
		}
		return nil
	}, 3)
}

// RevertProductsSale returns the given quantities to stock in one transaction.
// Products without a record or with unmanaged stock are skipped.
func (s *SQLiteStorage) RevertProductsSale(ctx context.Context, reversals []checkout.StockReversal) error {
	if len(reversals) == 0 {
		return nil
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range reversals {
			if r.Stock == nil || !r.Stock.ManageQty || r.Qty <= 0 {
				continue
			}
			_, err := tx.ExecContext(ctx,
				`UPDATE stock SET qty = qty + ?, updated_at = CURRENT_TIMESTAMP WHERE product_ref = ?`,
				r.Qty, r.ProductRef)
			if err != nil {
				return fmt.Errorf("failed to revert sale of %s: %w", r.ProductRef, err)
			}
		}
		return nil
	})
}

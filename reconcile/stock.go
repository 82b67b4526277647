package reconcile

import (
	"context"
	"fmt"

	"github.com/mstgnz/oxipay/checkout"
)

// restore reopens a dispatched session as the shopper's cart and returns its units to stock.
// Stock is only taken when the order id is reserved, so only a session still holding that
// reservation is reverted. Clearing it is saved before the reversal so neither a retried request
// nor a later re-dispatch can revert the same sale twice.
func (e *Engine) restore(ctx context.Context, session *checkout.PendingSession) error {
	var reversals []checkout.StockReversal
	if session.ReservedOrderID != "" {
		var err error
		if reversals, err = e.stockReversals(ctx, session.Items); err != nil {
			return err
		}
	}

	session.Status = checkout.StatusActive
	session.CheckoutMethod = ""
	session.ReservedOrderID = ""
	if err := e.sessions.SaveSession(ctx, session); err != nil {
		return fmt.Errorf("save restored session %s: %w", session.ID, err)
	}

	units, err := e.revertSale(ctx, reversals)
	if err != nil {
		e.log(session.ID).AddField("alert", true).Error("Session restored but stock was not reverted", err)
		return err
	}

	if err := e.cart.Replace(ctx, session); err != nil {
		e.log(session.ID).AddField("error", err.Error()).Warn("Failed to replace cart")
	}

	e.log(session.ID).AddField("units", units).Info("Session restored to cart")
	return nil
}

// stockReversals accumulates the session's quantities per product and attaches each stock record
func (e *Engine) stockReversals(ctx context.Context, items []checkout.LineItem) ([]checkout.StockReversal, error) {
	quantities := checkout.ProductQuantities(items)
	reversals := make([]checkout.StockReversal, 0, len(quantities))

	for _, pq := range quantities {
		stock, err := e.catalog.GetCatalogStock(ctx, pq.ProductRef)
		if err != nil {
			return nil, fmt.Errorf("load stock for %s: %w", pq.ProductRef, err)
		}
		reversals = append(reversals, checkout.StockReversal{
			ProductRef: pq.ProductRef,
			Qty:        pq.Qty,
			Stock:      stock,
		})
	}
	return reversals, nil
}

// revertSale issues one inventory call for the whole batch
func (e *Engine) revertSale(ctx context.Context, reversals []checkout.StockReversal) (int, error) {
	if len(reversals) == 0 {
		return 0, nil
	}
	if err := e.inventory.RevertProductsSale(ctx, reversals); err != nil {
		return 0, fmt.Errorf("revert products sale: %w", err)
	}

	units := 0
	for _, r := range reversals {
		units += r.Qty
	}
	e.metrics.RecordStockReverted(units)
	return units, nil
}

package reconcile

import (
	"context"
	"fmt"

	"github.com/mstgnz/oxipay/checkout"
)

// invoiceOrder captures an invoice for order and saves it with the order in one transaction
func (e *Engine) invoiceOrder(ctx context.Context, order *checkout.FinalizedOrder) error {
	if !order.CanInvoice {
		return checkout.ErrInvoiceNotAllowed
	}

	invoice, err := e.invoices.PrepareInvoice(ctx, order)
	if err != nil {
		return fmt.Errorf("prepare invoice: %w", err)
	}
	if invoice == nil || invoice.TotalQty <= 0 {
		return checkout.ErrInvoiceEmpty
	}

	invoice.CaptureCase = checkout.CaptureOnline
	invoice.Register()

	if err := e.invoices.SaveWithOrder(ctx, invoice, order); err != nil {
		return fmt.Errorf("save invoice: %w", err)
	}
	return nil
}

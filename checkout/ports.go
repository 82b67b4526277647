package checkout

import "context"

// SessionStore loads and persists pending sessions
type SessionStore interface {
	// FindPendingSession returns ErrSessionNotFound when no session has the reference
	FindPendingSession(ctx context.Context, ref string) (*PendingSession, error)
	SaveSession(ctx context.Context, session *PendingSession) error
}

// Catalog exposes per-product stock records
type Catalog interface {
	// GetCatalogStock returns nil, nil when the product has no stock record
	GetCatalogStock(ctx context.Context, productRef string) (*StockRecord, error)
}

// Inventory returns previously sold quantities to stock
type Inventory interface {
	RevertProductsSale(ctx context.Context, reversals []StockReversal) error
}

// OrderService turns sessions into orders
type OrderService interface {
	CollectTotals(ctx context.Context, session *PendingSession) error
	// SubmitOrder may return nil, nil when the order subsystem declined to create an order
	SubmitOrder(ctx context.Context, session *PendingSession) (*FinalizedOrder, error)
	SetProcessing(ctx context.Context, order *FinalizedOrder, comment string, notified bool) error
}

// Notifier sends the new-order email to the customer
type Notifier interface {
	NotifyCustomer(ctx context.Context, order *FinalizedOrder) error
}

// InvoiceService prepares invoices and persists them together with their order
type InvoiceService interface {
	PrepareInvoice(ctx context.Context, order *FinalizedOrder) (*Invoice, error)
	// SaveWithOrder stores the invoice and the order update atomically
	SaveWithOrder(ctx context.Context, invoice *Invoice, order *FinalizedOrder) error
}

// Cart is the shopper's working cart
type Cart interface {
	Clear(ctx context.Context, sessionID string) error
	// Replace makes the session the shopper's working cart again
	Replace(ctx context.Context, session *PendingSession) error
}

// ConfigSource resolves store configuration values by key
type ConfigSource interface {
	Get(key string) string
}

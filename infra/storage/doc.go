// Package storage is the SQLite adapter for the checkout collaborators:
// sessions, catalog stock, sale reversal, orders, invoices, carts,
// the notification outbox and merchant setting overrides.
package storage

import "github.com/mstgnz/oxipay/checkout"

var (
	_ checkout.SessionStore   = (*SQLiteStorage)(nil)
	_ checkout.Catalog        = (*SQLiteStorage)(nil)
	_ checkout.Inventory      = (*SQLiteStorage)(nil)
	_ checkout.OrderService   = (*SQLiteStorage)(nil)
	_ checkout.Notifier       = (*SQLiteStorage)(nil)
	_ checkout.InvoiceService = (*SQLiteStorage)(nil)
	_ checkout.Cart           = (*SQLiteStorage)(nil)
)

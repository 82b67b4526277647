package checkout

import "errors"

var (
	ErrSessionNotFound   = errors.New("checkout: session not found")
	ErrOrderNotCreated   = errors.New("checkout: order subsystem returned no order")
	ErrInvoiceNotAllowed = errors.New("checkout: cannot create an invoice")
	ErrInvoiceEmpty      = errors.New("checkout: cannot create an invoice without products")
	ErrLockNotAcquired   = errors.New("checkout: session lock not acquired")
)

package checkout

import (
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus represents where a pending session sits in the payment flow
type SessionStatus string

const (
	StatusActive     SessionStatus = "active"
	StatusDispatched SessionStatus = "dispatched"
	StatusFinalized  SessionStatus = "finalized"
)

// PaymentMethodCode marks a session as finalized by this payment method
const PaymentMethodCode = "oxipay"

// Address represents a billing or shipping address
type Address struct {
	Street    string `json:"street"` // up to two lines separated by "\n"
	City      string `json:"city"`
	Region    string `json:"region"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country" validate:"omitempty,len=2"`
	Telephone string `json:"telephone,omitempty"`
}

// Customer represents the shopper attached to a session
type Customer struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone,omitempty"`
}

// LineItem represents a cart line. Bundles carry their components in Children and
// the parent quantity is never counted against stock.
type LineItem struct {
	ID         string     `json:"id"`
	ProductRef string     `json:"productRef"`
	Name       string     `json:"name,omitempty"`
	Qty        int        `json:"qty"`
	Children   []LineItem `json:"children,omitempty"`
}

// PendingSession represents a shopper's in-progress purchase that has not become an order yet
type PendingSession struct {
	ID             string        `json:"id" validate:"required"`
	Status         SessionStatus `json:"status"`
	CheckoutMethod string        `json:"checkoutMethod,omitempty"`
	// ReservedOrderID is set upstream when stock is taken for the sale and cleared on restore
	ReservedOrderID string          `json:"reservedOrderId,omitempty"`
	OrderID         string          `json:"orderId,omitempty"`
	Items           []LineItem      `json:"items"`
	Currency        string          `json:"currency" validate:"required,len=3"`
	TotalDue        decimal.Decimal `json:"totalDue"`
	Customer        Customer        `json:"customer"`
	Billing         Address         `json:"billing"`
	Shipping        *Address        `json:"shipping,omitempty"`
	IsVirtual       bool            `json:"isVirtual"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// IsFinalizedByGateway reports whether this payment method already turned the session into an order
func (s *PendingSession) IsFinalizedByGateway() bool {
	return s.Status == StatusFinalized || s.CheckoutMethod == PaymentMethodCode
}

// OrderReference returns the reference shown on the cancel link
func (s *PendingSession) OrderReference() string {
	if s.ReservedOrderID != "" {
		return s.ReservedOrderID
	}
	return s.ID
}

// OrderState represents the lifecycle state of a finalized order
type OrderState string

const (
	OrderStateNew        OrderState = "new"
	OrderStateProcessing OrderState = "processing"
)

// FinalizedOrder is the order created from a session by the order subsystem
type FinalizedOrder struct {
	ID         string          `json:"id"`
	SessionID  string          `json:"sessionId"`
	State      OrderState      `json:"state"`
	Comment    string          `json:"comment,omitempty"`
	Notified   bool            `json:"notified"`
	CanInvoice bool            `json:"canInvoice"`
	GrandTotal decimal.Decimal `json:"grandTotal"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// CaptureCase tells the invoice how payment is captured
type CaptureCase string

const CaptureOnline CaptureCase = "online"

// InvoiceState represents the state of an invoice
type InvoiceState string

const (
	InvoiceStateOpen InvoiceState = "open"
	InvoiceStatePaid InvoiceState = "paid"
)

// Invoice represents an invoice prepared for a finalized order
type Invoice struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"orderId"`
	TotalQty    int             `json:"totalQty"`
	GrandTotal  decimal.Decimal `json:"grandTotal"`
	CaptureCase CaptureCase     `json:"captureCase"`
	State       InvoiceState    `json:"state"`
}

// Register captures the invoice. The order link is stored by the caller in the same transaction.
func (i *Invoice) Register() {
	if i.CaptureCase == "" {
		i.CaptureCase = CaptureOnline
	}
	i.State = InvoiceStatePaid
}

// StockRecord is the catalog's stock item for a product
type StockRecord struct {
	ProductRef string `json:"productRef"`
	Qty        int    `json:"qty"`
	ManageQty  bool   `json:"manageQty"`
}

// StockReversal is one product's share of a sale being returned to stock
type StockReversal struct {
	ProductRef string
	Qty        int
	Stock      *StockRecord // nil when the catalog has no stock record
}

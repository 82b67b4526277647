package reconcile

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mstgnz/oxipay/checkout"
	"github.com/mstgnz/oxipay/infra/lock"
	"github.com/mstgnz/oxipay/provider"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-api-key"

// fakeCommerce is an in-memory stand-in for every commerce collaborator
type fakeCommerce struct {
	mu sync.Mutex

	sessions map[string]checkout.PendingSession
	stock    map[string]*checkout.StockRecord
	orders   map[string]*checkout.FinalizedOrder

	findCalls   int
	saveCalls   int
	submitCalls int
	reversals   [][]checkout.StockReversal
	processing  []string
	notified    []string
	invoices    []*checkout.Invoice
	cleared     []string
	replaced    []string

	findErr     error
	saveErr     error
	submitFunc  func(session *checkout.PendingSession) (*checkout.FinalizedOrder, error)
	submitDelay time.Duration
	notifyErr   error
	prepareFunc func(order *checkout.FinalizedOrder) (*checkout.Invoice, error)
	invoiceErr  error
	revertErr   error
	canInvoice  bool
}

func newFakeCommerce(sessions ...*checkout.PendingSession) *fakeCommerce {
	f := &fakeCommerce{
		sessions:   make(map[string]checkout.PendingSession),
		stock:      make(map[string]*checkout.StockRecord),
		orders:     make(map[string]*checkout.FinalizedOrder),
		canInvoice: true,
	}
	for _, s := range sessions {
		f.sessions[s.ID] = *s
	}
	return f
}

func (f *fakeCommerce) session(id string) checkout.PendingSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id]
}

func (f *fakeCommerce) FindPendingSession(_ context.Context, ref string) (*checkout.PendingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findCalls++
	if f.findErr != nil {
		return nil, f.findErr
	}
	if s, ok := f.sessions[ref]; ok {
		return &s, nil
	}
	for _, s := range f.sessions {
		if s.ReservedOrderID != "" && s.ReservedOrderID == ref {
			return &s, nil
		}
	}
	return nil, checkout.ErrSessionNotFound
}

func (f *fakeCommerce) SaveSession(_ context.Context, session *checkout.PendingSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.sessions[session.ID] = *session
	return nil
}

func (f *fakeCommerce) GetCatalogStock(_ context.Context, productRef string) (*checkout.StockRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stock[productRef], nil
}

func (f *fakeCommerce) RevertProductsSale(_ context.Context, reversals []checkout.StockReversal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revertErr != nil {
		return f.revertErr
	}
	f.reversals = append(f.reversals, reversals)
	return nil
}

func (f *fakeCommerce) CollectTotals(context.Context, *checkout.PendingSession) error {
	return nil
}

func (f *fakeCommerce) SubmitOrder(_ context.Context, session *checkout.PendingSession) (*checkout.FinalizedOrder, error) {
	if f.submitDelay > 0 {
		time.Sleep(f.submitDelay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	if f.submitFunc != nil {
		return f.submitFunc(session)
	}
	if order, ok := f.orders[session.ID]; ok {
		return order, nil
	}
	order := &checkout.FinalizedOrder{
		ID:         "1000" + session.ID,
		SessionID:  session.ID,
		State:      checkout.OrderStateNew,
		CanInvoice: f.canInvoice,
		GrandTotal: session.TotalDue,
	}
	f.orders[session.ID] = order
	return order, nil
}

func (f *fakeCommerce) SetProcessing(_ context.Context, order *checkout.FinalizedOrder, comment string, notified bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	order.State = checkout.OrderStateProcessing
	order.Comment = comment
	order.Notified = notified
	f.processing = append(f.processing, order.ID)
	return nil
}

func (f *fakeCommerce) NotifyCustomer(_ context.Context, order *checkout.FinalizedOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notifyErr != nil {
		return f.notifyErr
	}
	f.notified = append(f.notified, order.ID)
	return nil
}

func (f *fakeCommerce) PrepareInvoice(_ context.Context, order *checkout.FinalizedOrder) (*checkout.Invoice, error) {
	if f.prepareFunc != nil {
		return f.prepareFunc(order)
	}
	return &checkout.Invoice{ID: "INV-" + order.ID, OrderID: order.ID, TotalQty: 2, GrandTotal: order.GrandTotal}, nil
}

func (f *fakeCommerce) SaveWithOrder(_ context.Context, invoice *checkout.Invoice, order *checkout.FinalizedOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.invoiceErr != nil {
		return f.invoiceErr
	}
	order.CanInvoice = false
	f.invoices = append(f.invoices, invoice)
	return nil
}

func (f *fakeCommerce) Clear(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = append(f.cleared, sessionID)
	return nil
}

func (f *fakeCommerce) Replace(_ context.Context, session *checkout.PendingSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replaced = append(f.replaced, session.ID)
	return nil
}

// funcLocker delegates to lockFunc and records every key it is asked for
type funcLocker struct {
	mu       sync.Mutex
	keys     []string
	lockFunc func(ctx context.Context, key string) (func(), error)
}

func (l *funcLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	if l.lockFunc != nil {
		return l.lockFunc(ctx, key)
	}
	return func() {}, nil
}

// recordingSink keeps every emitted event
type recordingSink struct {
	mu     sync.Mutex
	events []checkout.Event
}

func (s *recordingSink) Emit(_ context.Context, event checkout.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) last() checkout.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return checkout.Event{}
	}
	return s.events[len(s.events)-1]
}

func testOptions() Options {
	return Options{
		APIKey:         testSecret,
		MerchantNumber: "30190",
		Country:        "AU",
		CheckoutURL:    "https://securesandbox.oxipay.com.au/Checkout?platform=Default",
		ShopName:       "Test Shop",
		TestMode:       true,
		EmailCustomer:  true,
		SignatureBase:  provider.BaseInsertion,
		URLs: provider.URLs{
			Callback: "https://shop.test/oxipay/payment/complete",
			Complete: "https://shop.test/oxipay/payment/complete",
			Cancel:   "https://shop.test/oxipay/payment/cancel",
		},
	}
}

func newTestEngine(t testing.TB, fake *fakeCommerce, opts Options) (*Engine, *recordingSink) {
	t.Helper()
	return newTestEngineWithLocker(t, fake, opts, lock.NewMemoryLocker())
}

func newTestEngineWithLocker(t testing.TB, fake *fakeCommerce, opts Options, locker Locker) (*Engine, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	engine, err := NewEngine(Deps{
		Sessions:  fake,
		Catalog:   fake,
		Inventory: fake,
		Orders:    fake,
		Notifier:  fake,
		Invoices:  fake,
		Cart:      fake,
		Locker:    locker,
		Events:    sink,
	}, opts)
	require.NoError(t, err)
	return engine, sink
}

func dispatchedSession(id string, items ...checkout.LineItem) *checkout.PendingSession {
	if len(items) == 0 {
		items = []checkout.LineItem{{ID: "1", ProductRef: "P", Qty: 2}}
	}
	return &checkout.PendingSession{
		ID:              id,
		Status:          checkout.StatusDispatched,
		ReservedOrderID: "1000" + id,
		Items:           items,
		Currency:        "AUD",
		TotalDue:        decimal.RequireFromString("45.00"),
		Customer:        checkout.Customer{FirstName: "Jane", LastName: "Citizen", Email: "jane@example.com"},
		Billing:         checkout.Address{Street: "1 George St", City: "Sydney", Region: "NSW", Postcode: "2000", Country: "AU"},
		Shipping:        &checkout.Address{Street: "1 George St", City: "Sydney", Region: "NSW", Postcode: "2000", Country: "AU"},
	}
}

// signedCallback returns callback parameters signed the way the gateway signs them
func signedCallback(ref, result string) *provider.Fields {
	fields := provider.FieldsFromPairs(
		provider.FieldAccountID, "30190",
		provider.FieldReference, ref,
		provider.FieldGatewayReference, "TX-"+ref,
		provider.FieldResult, result,
	)
	fields.Set(provider.FieldSignature, provider.Sign(fields, testSecret))
	return fields
}

func signedCancel(session *checkout.PendingSession) *provider.Fields {
	query := provider.CancelFields(session)
	query.Set(provider.CancelFieldSignature, provider.Sign(query, testSecret))
	return query
}

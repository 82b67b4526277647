package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/oxipay/checkout"
	"github.com/mstgnz/oxipay/handler"
	"github.com/mstgnz/oxipay/infra/config"
	"github.com/mstgnz/oxipay/infra/lock"
	"github.com/mstgnz/oxipay/infra/metrics"
	"github.com/mstgnz/oxipay/infra/storage"
	"github.com/mstgnz/oxipay/provider"
	"github.com/mstgnz/oxipay/reconcile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const integrationSecret = "integration-key"

type stack struct {
	router chi.Router
	store  *storage.SQLiteStorage
}

func newStack(t *testing.T) *stack {
	t.Helper()
	ctx := context.Background()

	store, err := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "oxipay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.SaveStock(ctx, checkout.StockRecord{ProductRef: "P", Qty: 8, ManageQty: true}))
	require.NoError(t, store.SaveSession(ctx, &checkout.PendingSession{
		ID:              "Q1",
		Status:          checkout.StatusActive,
		ReservedOrderID: "1000Q1",
		Currency:        "AUD",
		TotalDue:        decimal.RequireFromString("50.00"),
		Customer:        checkout.Customer{FirstName: "Jane", LastName: "Citizen", Email: "jane@example.com"},
		Billing:         checkout.Address{Street: "1 George St", City: "Sydney", Postcode: "2000", Country: "AU"},
		Shipping:        &checkout.Address{Street: "1 George St", City: "Sydney", Postcode: "2000", Country: "AU"},
		Items:           []checkout.LineItem{{ID: "1", ProductRef: "P", Qty: 2}},
	}))

	merchant := config.Merchant{
		APIKey:         integrationSecret,
		MerchantNumber: "30190000",
		Country:        "AU",
		CheckoutURL:    "https://gateway.example/checkout",
		SignatureBase:  "insertion",
		ShopName:       "Test Shop",
		SuccessURL:     "/checkout/onepage/success",
		FailureURL:     "/checkout/onepage/failure",
		ErrorURL:       "/checkout/onepage/error",
		CartURL:        "/checkout/cart",
	}
	opts, err := reconcile.OptionsFromMerchant(merchant, provider.URLs{
		Callback: "https://shop.example/oxipay/payment/complete",
		Complete: "https://shop.example/oxipay/payment/complete",
		Cancel:   "https://shop.example/oxipay/payment/cancel",
	})
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	engine, err := reconcile.NewEngine(reconcile.Deps{
		Sessions:  store,
		Catalog:   store,
		Inventory: store,
		Orders:    store,
		Notifier:  store,
		Invoices:  store,
		Cart:      store,
		Locker:    lock.NewMemoryLocker(),
		Metrics:   m,
		Validator: config.App().Validator,
	}, opts)
	require.NoError(t, err)

	r := chi.NewRouter()
	Routes(r, Deps{
		Checkout: handler.NewCheckoutHandler(engine, merchant),
		Health:   handler.NewHealthHandler(store, "test"),
		Metrics:  m,
		Gatherer: reg,
	})
	return &stack{router: r, store: store}
}

func callbackURL(ref, result string) string {
	fields := provider.FieldsFromPairs(
		provider.FieldReference, ref,
		provider.FieldAccountID, "30190000",
		provider.FieldAmount, "50.00",
		provider.FieldResult, result,
		provider.FieldGatewayReference, "GW-"+result,
	)
	fields.Set(provider.FieldSignature, provider.Sign(fields, integrationSecret))
	return "/oxipay/payment/complete?" + fields.Encode()
}

func (s *stack) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func (s *stack) session(t *testing.T) *checkout.PendingSession {
	t.Helper()
	session, err := s.store.FindPendingSession(context.Background(), "Q1")
	require.NoError(t, err)
	return session
}

func (s *stack) stock(t *testing.T) int {
	t.Helper()
	rec, err := s.store.GetCatalogStock(context.Background(), "P")
	require.NoError(t, err)
	return rec.Qty
}

func TestIntegration_FailedThenCompleted(t *testing.T) {
	s := newStack(t)

	w := s.get(t, "/oxipay/payment/start?ref=Q1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `action="https://gateway.example/checkout"`)
	assert.Equal(t, checkout.StatusDispatched, s.session(t).Status)

	w = s.get(t, callbackURL("Q1", "failed"))
	assert.Equal(t, "/checkout/onepage/failure", w.Header().Get("Location"))
	assert.Equal(t, checkout.StatusActive, s.session(t).Status)
	assert.Equal(t, 10, s.stock(t))

	// a replayed failure does not revert twice
	s.get(t, callbackURL("Q1", "failed"))
	assert.Equal(t, 10, s.stock(t))

	require.Equal(t, http.StatusOK, s.get(t, "/oxipay/payment/start?ref=Q1").Code)

	w = s.get(t, callbackURL("Q1", "completed"))
	assert.Equal(t, "/checkout/onepage/success", w.Header().Get("Location"))

	session := s.session(t)
	assert.Equal(t, checkout.StatusFinalized, session.Status)
	assert.Equal(t, checkout.PaymentMethodCode, session.CheckoutMethod)
	require.NotEmpty(t, session.OrderID)

	order, err := s.store.GetOrderBySession(context.Background(), "Q1")
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, session.OrderID, order.ID)
	assert.Equal(t, checkout.OrderStateProcessing, order.State)

	// the browser return after the async callback
	w = s.get(t, callbackURL("Q1", "completed"))
	assert.Equal(t, "/checkout/onepage/success", w.Header().Get("Location"))
	again, err := s.store.GetOrderBySession(context.Background(), "Q1")
	require.NoError(t, err)
	assert.Equal(t, order.ID, again.ID)

	// a late failure never reopens the order
	w = s.get(t, callbackURL("Q1", "failed"))
	assert.Equal(t, "/checkout/onepage/failure", w.Header().Get("Location"))
	assert.Equal(t, checkout.StatusFinalized, s.session(t).Status)
	assert.Equal(t, 10, s.stock(t))
}

func TestIntegration_ForgedCallback(t *testing.T) {
	s := newStack(t)
	require.Equal(t, http.StatusOK, s.get(t, "/oxipay/payment/start?ref=Q1").Code)

	forged := "/oxipay/payment/complete?x_reference=Q1&x_result=completed&x_signature=deadbeef"
	w := s.get(t, forged)
	assert.Equal(t, "/checkout/onepage/error", w.Header().Get("Location"))
	assert.Equal(t, checkout.StatusDispatched, s.session(t).Status)

	_, err := s.store.GetOrderBySession(context.Background(), "Q1")
	assert.ErrorIs(t, err, storage.ErrOrderNotFound)
}

func TestIntegration_CancelLink(t *testing.T) {
	s := newStack(t)
	require.Equal(t, http.StatusOK, s.get(t, "/oxipay/payment/start?ref=Q1").Code)

	builder := provider.NewPayloadBuilder(config.App().Validator, "Test Shop", true)
	cancelURL := builder.CancelURL(s.session(t), "/oxipay/payment/cancel", integrationSecret)

	w := s.get(t, cancelURL)
	assert.Equal(t, "/checkout/cart", w.Header().Get("Location"))
	assert.Equal(t, checkout.StatusActive, s.session(t).Status)
	assert.Equal(t, 10, s.stock(t))
}

package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/mstgnz/oxipay/handler"
	"github.com/mstgnz/oxipay/infra/config"
	"github.com/mstgnz/oxipay/infra/metrics"
	"github.com/mstgnz/oxipay/provider"
	"github.com/mstgnz/oxipay/reconcile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEngine struct {
	outcome reconcile.Outcome
	calls   int
}

func (s *stubEngine) Dispatch(_ context.Context, ref string) (*reconcile.DispatchResult, error) {
	return &reconcile.DispatchResult{
		Payload: provider.FieldsFromPairs("x_reference", ref),
		Action:  "https://gateway.example/checkout",
	}, nil
}

func (s *stubEngine) HandleCallback(context.Context, *provider.Fields) reconcile.Result {
	s.calls++
	return reconcile.Result{Outcome: s.outcome}
}

func (s *stubEngine) HandleCancel(context.Context, *provider.Fields) reconcile.Result {
	s.calls++
	return reconcile.Result{Outcome: reconcile.OutcomeCart}
}

type okStorage struct{}

func (okStorage) Ping(context.Context) error                       { return nil }
func (okStorage) GetStats(context.Context) (map[string]any, error) { return map[string]any{}, nil }

func newTestRouter(t *testing.T, engine *stubEngine) chi.Router {
	t.Helper()
	reg := prometheus.NewRegistry()
	merchant := config.Merchant{
		SuccessURL: "https://shop.example/success",
		FailureURL: "https://shop.example/failure",
		ErrorURL:   "https://shop.example/error",
		CartURL:    "https://shop.example/cart",
	}

	r := chi.NewRouter()
	Routes(r, Deps{
		Checkout: handler.NewCheckoutHandler(engine, merchant),
		Health:   handler.NewHealthHandler(okStorage{}, "test"),
		Metrics:  metrics.New(reg),
		Gatherer: reg,
	})
	return r
}

func serve(r http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRoutes(t *testing.T) {
	assert.NotPanics(t, func() {
		newTestRouter(t, &stubEngine{})
	})
}

func TestRoutes_Gateway(t *testing.T) {
	engine := &stubEngine{outcome: reconcile.OutcomeSuccess}
	r := newTestRouter(t, engine)

	tests := []struct {
		name         string
		method       string
		target       string
		contentType  string
		body         string
		wantCode     int
		wantLocation string
	}{
		{"start renders form", http.MethodGet, "/oxipay/payment/start?ref=Q1", "", "", http.StatusOK, ""},
		{"callback get", http.MethodGet, "/oxipay/payment/complete?x_reference=Q1", "", "", http.StatusFound, "https://shop.example/success"},
		{"callback form post", http.MethodPost, "/oxipay/payment/complete", "application/x-www-form-urlencoded", "x_reference=Q1", http.StatusFound, "https://shop.example/success"},
		{"callback plain text rejected", http.MethodPost, "/oxipay/payment/complete", "text/plain", "x_reference=Q1", http.StatusUnsupportedMediaType, ""},
		{"cancel", http.MethodGet, "/oxipay/payment/cancel?orderId=Q1", "", "", http.StatusFound, "https://shop.example/cart"},
		{"cancel post not routed", http.MethodPost, "/oxipay/payment/cancel", "application/x-www-form-urlencoded", "", http.StatusMethodNotAllowed, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			w := serve(r, req)

			assert.Equal(t, tt.wantCode, w.Code)
			if tt.wantLocation != "" {
				assert.Equal(t, tt.wantLocation, w.Header().Get("Location"))
			}
			assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
		})
	}
}

func TestRoutes_HealthAndMetrics(t *testing.T) {
	r := newTestRouter(t, &stubEngine{outcome: reconcile.OutcomeFailure})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)

	serve(r, httptest.NewRequest(http.MethodGet, "/oxipay/payment/complete?x_reference=Q1", nil))

	w = serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `oxipay_http_requests_total{method="GET",path="/oxipay/payment/complete",status="302"} 1`)
}

func TestRoutes_MetricsWhitelist(t *testing.T) {
	t.Setenv("IP_WHITELIST", "10.0.0.1")
	r := newTestRouter(t, &stubEngine{})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusForbidden, w.Code)

	// gateway routes stay open
	w = serve(r, httptest.NewRequest(http.MethodGet, "/oxipay/payment/cancel?orderId=Q1", nil))
	assert.Equal(t, http.StatusFound, w.Code)
}

func TestRoutes_NotFound(t *testing.T) {
	r := newTestRouter(t, &stubEngine{})

	w := serve(r, httptest.NewRequest(http.MethodGet, "/v1/payments", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Not Found")
}

package middle

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mstgnz/oxipay/infra/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("success"))
	})
}

func TestRateLimiter(t *testing.T) {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     2,
		window:   100 * time.Millisecond,
	}

	clientIP := "192.168.1.1"
	assert.True(t, rl.Allow(clientIP), "first request")
	assert.True(t, rl.Allow(clientIP), "second request")
	assert.False(t, rl.Allow(clientIP), "third request is over the limit")
	assert.True(t, rl.Allow("10.0.0.1"), "other clients are independent")

	time.Sleep(150 * time.Millisecond)
	assert.True(t, rl.Allow(clientIP), "new window")
}

func TestNewRateLimiter(t *testing.T) {
	rl := NewRateLimiter(0)
	defer rl.Stop()

	assert.Equal(t, 120, rl.rate)
	assert.Equal(t, time.Minute, rl.window)
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := &RateLimiter{
		visitors: make(map[string]*visitor),
		rate:     1,
		window:   time.Second,
	}
	handler := RateLimitMiddleware(rl)(okHandler())

	req1 := httptest.NewRequest("GET", "/oxipay/payment/complete", nil)
	req1.RemoteAddr = "192.168.1.1:12345"
	rr1 := httptest.NewRecorder()
	handler.ServeHTTP(rr1, req1)
	assert.Equal(t, http.StatusOK, rr1.Code)

	req2 := httptest.NewRequest("GET", "/oxipay/payment/complete", nil)
	req2.RemoteAddr = "192.168.1.1:12346"
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req2)
	assert.Equal(t, http.StatusTooManyRequests, rr2.Code)
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		remote   string
		expected string
	}{
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, remote: "10.0.0.2:1", expected: "203.0.113.5"},
		{name: "forwarded single", headers: map[string]string{"X-Forwarded-For": " 203.0.113.6 "}, remote: "10.0.0.2:1", expected: "203.0.113.6"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.7"}, remote: "10.0.0.2:1", expected: "198.51.100.7"},
		{name: "remote addr", remote: "192.0.2.1:5555", expected: "192.0.2.1"},
		{name: "ipv6 localhost", remote: "[::1]:5555", expected: "127.0.0.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.expected, GetClientIP(req))
		})
	}
}

func TestSecurityHeadersMiddleware(t *testing.T) {
	handler := SecurityHeadersMiddleware()(okHandler())

	req := httptest.NewRequest("GET", "/oxipay/payment/start", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	expectedHeaders := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"X-XSS-Protection":        "1; mode=block",
		"Content-Security-Policy": "default-src 'self'; script-src 'self' 'unsafe-inline'",
		"Referrer-Policy":         "strict-origin-when-cross-origin",
	}

	for header, expectedValue := range expectedHeaders {
		assert.Equal(t, expectedValue, rr.Header().Get(header), header)
	}
}

func TestIPWhitelistMiddleware(t *testing.T) {
	t.Setenv("IP_WHITELIST", "127.0.0.1,192.168.1.100")
	handler := IPWhitelistMiddleware()(okHandler())

	tests := []struct {
		name           string
		clientIP       string
		expectedStatus int
	}{
		{name: "Whitelisted IP", clientIP: "127.0.0.1", expectedStatus: http.StatusOK},
		{name: "Another whitelisted IP", clientIP: "192.168.1.100", expectedStatus: http.StatusOK},
		{name: "Non-whitelisted IP", clientIP: "192.168.1.99", expectedStatus: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/metrics", nil)
			req.RemoteAddr = tt.clientIP + ":12345"

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}
}

func TestRequestValidationMiddleware(t *testing.T) {
	handler := RequestValidationMiddleware()(okHandler())

	tests := []struct {
		name           string
		method         string
		path           string
		contentType    string
		contentLength  int64
		expectedStatus int
	}{
		{name: "gateway form post", method: "POST", path: "/oxipay/payment/complete", contentType: "application/x-www-form-urlencoded", contentLength: 100, expectedStatus: http.StatusOK},
		{name: "gateway post without content type", method: "POST", path: "/oxipay/payment/complete", contentLength: 0, expectedStatus: http.StatusOK},
		{name: "gateway plain text", method: "POST", path: "/oxipay/payment/complete", contentType: "text/plain", contentLength: 100, expectedStatus: http.StatusUnsupportedMediaType},
		{name: "api json post", method: "POST", path: "/api/test", contentType: "application/json", contentLength: 100, expectedStatus: http.StatusOK},
		{name: "api form post", method: "POST", path: "/api/test", contentType: "application/x-www-form-urlencoded", contentLength: 100, expectedStatus: http.StatusUnsupportedMediaType},
		{name: "api post without content type", method: "POST", path: "/api/test", contentLength: 100, expectedStatus: http.StatusBadRequest},
		{name: "GET request", method: "GET", path: "/oxipay/payment/cancel", expectedStatus: http.StatusOK},
		{name: "request too large", method: "POST", path: "/oxipay/payment/complete", contentType: "application/x-www-form-urlencoded", contentLength: 2 << 20, expectedStatus: http.StatusRequestEntityTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader("test body"))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			req.ContentLength = tt.contentLength

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			assert.Equal(t, tt.expectedStatus, rr.Code)
		})
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	existing := uuid.New().String()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", existing)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, existing, seen)
	assert.Equal(t, existing, rr.Header().Get("X-Request-ID"))

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "<script>")
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	_, err := uuid.Parse(seen)
	assert.NoError(t, err, "invalid ids are replaced")
	assert.NotEqual(t, "<script>", seen)
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())

	r := chi.NewRouter()
	r.Use(MetricsMiddleware(m))
	r.Get("/oxipay/payment/cancel", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/checkout/cart", http.StatusFound)
	})

	req := httptest.NewRequest("GET", "/oxipay/payment/cancel?orderId=1", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/oxipay/payment/cancel", "302")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.HTTPRequestsInFlight))

	assert.NotPanics(t, func() {
		MetricsMiddleware(nil)(okHandler()).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	})
}

func TestRequestLoggingMiddleware(t *testing.T) {
	handler := RequestIDMiddleware()(RequestLoggingMiddleware()(okHandler()))

	req := httptest.NewRequest("GET", "/oxipay/payment/complete?x_reference=Q1&x_signature=abc", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

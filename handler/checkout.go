package handler

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/mstgnz/oxipay/infra/config"
	"github.com/mstgnz/oxipay/infra/logger"
	"github.com/mstgnz/oxipay/infra/middle"
	"github.com/mstgnz/oxipay/infra/response"
	"github.com/mstgnz/oxipay/provider"
	"github.com/mstgnz/oxipay/reconcile"
)

const (
	maxCallbackBody   = 1 << 20
	startErrorMessage = "Unable to start Oxipay Checkout."
)

// Reconciler is the part of the reconciliation engine the HTTP surface drives
type Reconciler interface {
	Dispatch(ctx context.Context, ref string) (*reconcile.DispatchResult, error)
	HandleCallback(ctx context.Context, params *provider.Fields) reconcile.Result
	HandleCancel(ctx context.Context, query *provider.Fields) reconcile.Result
}

// CheckoutHandler serves the shopper-facing gateway endpoints.
// It never shows raw errors, every path ends in a redirect or the auto-post form.
type CheckoutHandler struct {
	engine   Reconciler
	merchant config.Merchant
	timeout  time.Duration
}

// NewCheckoutHandler creates a new checkout handler
func NewCheckoutHandler(engine Reconciler, merchant config.Merchant) *CheckoutHandler {
	return &CheckoutHandler{
		engine:   engine,
		merchant: merchant,
		timeout:  30 * time.Second,
	}
}

// Start dispatches the session named by ?ref= and renders the self-posting gateway form
func (h *CheckoutHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	ref := r.URL.Query().Get("ref")
	if ref == "" && r.Method == http.MethodPost {
		ref = r.PostFormValue("ref")
	}

	res, err := h.engine.Dispatch(ctx, ref)
	if err != nil {
		h.redirectCart(w, r, startErrorMessage)
		return
	}
	if res.Rejected() {
		h.redirectCart(w, r, res.Eligibility.Message())
		return
	}

	if err := response.AutoPostForm(w, "Oxipay", res.Action, res.Payload); err != nil {
		h.requestLog(r).AddField("session_ref", ref).Error("Failed to render checkout form", err)
	}
}

// Complete handles both the asynchronous callback and the shopper's browser return
func (h *CheckoutHandler) Complete(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	params, err := callbackParams(r)
	if err != nil {
		h.requestLog(r).Warn("Unreadable Oxipay callback: " + err.Error())
		response.Redirect(w, r, h.merchant.ErrorURL, nil)
		return
	}

	res := h.engine.HandleCallback(ctx, params)
	response.Redirect(w, r, h.destination(res.Outcome), nil)
}

// Cancel handles the signed cancel link and always lands on the cart
func (h *CheckoutHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	query, err := provider.ParseQuery(r.URL.RawQuery)
	if err != nil {
		h.requestLog(r).Warn("Unreadable cancel link: " + err.Error())
		response.Redirect(w, r, h.merchant.CartURL, nil)
		return
	}

	res := h.engine.HandleCancel(ctx, query)
	response.Redirect(w, r, h.destination(res.Outcome), nil)
}

func (h *CheckoutHandler) destination(outcome reconcile.Outcome) string {
	switch outcome {
	case reconcile.OutcomeSuccess:
		return h.merchant.SuccessURL
	case reconcile.OutcomeFailure:
		return h.merchant.FailureURL
	case reconcile.OutcomeCart:
		return h.merchant.CartURL
	default:
		return h.merchant.ErrorURL
	}
}

func (h *CheckoutHandler) redirectCart(w http.ResponseWriter, r *http.Request, message string) {
	response.Redirect(w, r, h.merchant.CartURL, url.Values{"error": {message}})
}

func (h *CheckoutHandler) requestLog(r *http.Request) *logger.ContextLogger {
	return logger.WithContext(logger.LogContext{
		RequestID: middle.GetRequestID(r.Context()),
		Component: "checkout",
	})
}

// callbackParams collects the callback fields in wire order. Body fields come first,
// query fields fill in keys the body did not carry.
func callbackParams(r *http.Request) (*provider.Fields, error) {
	params := provider.NewFields()

	if r.Method == http.MethodPost && r.Body != nil {
		body, err := bodyFields(r)
		if err != nil {
			return nil, err
		}
		for _, k := range body.Keys() {
			params.Set(k, body.Get(k))
		}
	}

	query, err := provider.ParseQuery(r.URL.RawQuery)
	if err != nil {
		return nil, err
	}
	for _, k := range query.Keys() {
		if _, exists := params.Lookup(k); !exists {
			params.Set(k, query.Get(k))
		}
	}
	return params, nil
}

func bodyFields(r *http.Request) (*provider.Fields, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxCallbackBody); err != nil {
			return nil, err
		}
		// multipart carries no usable order, fall back to sorted keys
		keys := make([]string, 0, len(r.MultipartForm.Value))
		for k := range r.MultipartForm.Value {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := provider.NewFields()
		for _, k := range keys {
			if v := r.MultipartForm.Value[k]; len(v) > 0 {
				fields.Set(k, v[0])
			}
		}
		return fields, nil
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxCallbackBody {
		return nil, errors.New("callback body too large")
	}
	return provider.ParseQuery(string(raw))
}

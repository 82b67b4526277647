package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mstgnz/oxipay/checkout"
	"github.com/mstgnz/oxipay/infra/config"
	"github.com/mstgnz/oxipay/infra/logger"
	"github.com/mstgnz/oxipay/infra/metrics"
	"github.com/mstgnz/oxipay/provider"
)

const (
	componentName     = "reconcile"
	processingComment = "Oxipay processed."
)

// Outcome is the named destination the shopper is redirected to
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeError   Outcome = "error"
	OutcomeCart    Outcome = "cart"
)

// Result is the decision taken for one callback or cancel request
type Result struct {
	Outcome    Outcome
	Verdict    provider.Verdict
	SessionRef string
	OrderID    string
	// Err is set when a collaborator failed unexpectedly
	Err error
}

// Locker serializes work on one session
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Options is the merchant configuration injected into the engine
type Options struct {
	APIKey           string
	MerchantNumber   string
	Country          string
	CheckoutURL      string
	ShopName         string
	TestMode         bool
	EmailCustomer    bool
	AutomaticInvoice bool
	SignatureBase    provider.SignatureBase
	URLs             provider.URLs
}

// OptionsFromMerchant converts a merchant settings snapshot into engine options
func OptionsFromMerchant(m config.Merchant, urls provider.URLs) (Options, error) {
	base, err := provider.ParseSignatureBase(m.SignatureBase)
	if err != nil {
		return Options{}, err
	}
	return Options{
		APIKey:           m.APIKey,
		MerchantNumber:   m.MerchantNumber,
		Country:          m.Country,
		CheckoutURL:      m.CheckoutURL,
		ShopName:         m.ShopName,
		TestMode:         m.TestMode,
		EmailCustomer:    m.EmailCustomer,
		AutomaticInvoice: m.AutomaticInvoice,
		SignatureBase:    base,
		URLs:             urls,
	}, nil
}

// Deps are the collaborators the engine drives. Events and Metrics are optional.
type Deps struct {
	Sessions  checkout.SessionStore
	Catalog   checkout.Catalog
	Inventory checkout.Inventory
	Orders    checkout.OrderService
	Notifier  checkout.Notifier
	Invoices  checkout.InvoiceService
	Cart      checkout.Cart
	Locker    Locker
	Events    checkout.EventSink
	Metrics   *metrics.Metrics
	Validator *validator.Validate
}

// Engine reconciles pending sessions with gateway notifications
type Engine struct {
	sessions  checkout.SessionStore
	catalog   checkout.Catalog
	inventory checkout.Inventory
	orders    checkout.OrderService
	notifier  checkout.Notifier
	invoices  checkout.InvoiceService
	cart      checkout.Cart
	locker    Locker
	events    checkout.EventSink
	metrics   *metrics.Metrics

	opts       Options
	classifier *provider.Classifier
	builder    *provider.PayloadBuilder
	gate       *provider.EligibilityGate
}

// NewEngine creates an engine. Every collaborator except Events and Metrics is required.
func NewEngine(deps Deps, opts Options) (*Engine, error) {
	required := map[string]any{
		"sessions":  deps.Sessions,
		"catalog":   deps.Catalog,
		"inventory": deps.Inventory,
		"orders":    deps.Orders,
		"notifier":  deps.Notifier,
		"invoices":  deps.Invoices,
		"cart":      deps.Cart,
		"locker":    deps.Locker,
	}
	for name, dep := range required {
		if dep == nil {
			return nil, fmt.Errorf("reconcile: %s collaborator is required", name)
		}
	}
	if opts.APIKey == "" {
		return nil, errors.New("reconcile: api key is required")
	}
	if opts.SignatureBase == "" {
		opts.SignatureBase = provider.BaseInsertion
	}

	events := deps.Events
	if events == nil {
		events = nopSink{}
	}

	return &Engine{
		sessions:   deps.Sessions,
		catalog:    deps.Catalog,
		inventory:  deps.Inventory,
		orders:     deps.Orders,
		notifier:   deps.Notifier,
		invoices:   deps.Invoices,
		cart:       deps.Cart,
		locker:     deps.Locker,
		events:     events,
		metrics:    deps.Metrics,
		opts:       opts,
		classifier: provider.NewClassifier(opts.SignatureBase, deps.Sessions, opts.APIKey),
		builder:    provider.NewPayloadBuilder(deps.Validator, opts.ShopName, opts.TestMode),
		gate:       provider.NewEligibilityGate(opts.Country),
	}, nil
}

// Options returns the configuration the engine was built with
func (e *Engine) Options() Options {
	return e.opts
}

// lockSession takes the per-session lock and records the wait
func (e *Engine) lockSession(ctx context.Context, id string) (func(), error) {
	start := time.Now()
	unlock, err := e.locker.Lock(ctx, id)
	e.metrics.ObserveLockWait(time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", checkout.ErrLockNotAcquired, id, err)
	}
	return unlock, nil
}

func (e *Engine) log(ref string) *logger.ContextLogger {
	return logger.WithContext(logger.LogContext{SessionRef: ref, Component: componentName})
}

func (e *Engine) emit(ctx context.Context, event checkout.Event) {
	if event.Severity == "" {
		event.Severity = checkout.SeverityInfo
	}
	e.events.Emit(ctx, event)
}

type nopSink struct{}

func (nopSink) Emit(context.Context, checkout.Event) {}

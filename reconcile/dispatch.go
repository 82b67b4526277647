package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/mstgnz/oxipay/checkout"
	"github.com/mstgnz/oxipay/provider"
)

// ErrAlreadyFinalized is returned when checkout is started for a session that already became an order
var ErrAlreadyFinalized = errors.New("reconcile: session already finalized")

// DispatchResult is either a signed payload ready to post or an eligibility rejection
type DispatchResult struct {
	Session     *checkout.PendingSession
	Eligibility provider.Eligibility
	Payload     *provider.Fields
	Action      string
}

// Rejected reports whether the session failed the eligibility gate
func (r *DispatchResult) Rejected() bool {
	return !r.Eligibility.OK()
}

// Dispatch checks eligibility, builds the gateway payload and marks the session dispatched.
// A rejected session is returned untouched.
func (e *Engine) Dispatch(ctx context.Context, ref string) (*DispatchResult, error) {
	res, err := e.dispatch(ctx, ref)
	switch {
	case err != nil:
		e.metrics.RecordDispatch("error")
		e.log(ref).Error("Unable to start Oxipay checkout", err)
		e.emit(ctx, checkout.Event{
			Kind:       "dispatch",
			SessionRef: ref,
			Outcome:    string(OutcomeError),
			Severity:   checkout.SeverityError,
			Message:    "unable to start checkout",
			Error:      err.Error(),
		})
	case res.Rejected():
		e.metrics.RecordDispatch("rejected")
		e.emit(ctx, checkout.Event{
			Kind:       "dispatch",
			SessionRef: ref,
			Outcome:    string(res.Eligibility.Reason),
			Message:    res.Eligibility.Message(),
		})
	default:
		e.metrics.RecordDispatch("dispatched")
		e.log(ref).Info("Session dispatched to Oxipay")
		e.emit(ctx, checkout.Event{
			Kind:       "dispatch",
			SessionRef: ref,
			Outcome:    "dispatched",
			Message:    "payload built and session dispatched",
		})
	}
	return res, err
}

func (e *Engine) dispatch(ctx context.Context, ref string) (*DispatchResult, error) {
	if ref == "" {
		return nil, checkout.ErrSessionNotFound
	}

	found, err := e.sessions.FindPendingSession(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("find session %s: %w", ref, err)
	}
	if found == nil {
		return nil, checkout.ErrSessionNotFound
	}

	// ref may be the reserved order id, callbacks lock on the session id
	unlock, err := e.lockSession(ctx, found.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	session, err := e.sessions.FindPendingSession(ctx, found.ID)
	if err != nil {
		return nil, fmt.Errorf("reload session %s: %w", found.ID, err)
	}
	if session == nil {
		return nil, checkout.ErrSessionNotFound
	}
	if session.IsFinalizedByGateway() {
		return nil, ErrAlreadyFinalized
	}

	res := &DispatchResult{Session: session, Eligibility: e.gate.Check(session)}
	if res.Rejected() {
		return res, nil
	}

	payload, err := e.builder.Build(session, e.opts.URLs, e.opts.MerchantNumber, e.opts.APIKey)
	if err != nil {
		return nil, fmt.Errorf("build payload: %w", err)
	}

	session.Status = checkout.StatusDispatched
	session.CheckoutMethod = ""
	if err := e.sessions.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("save session %s: %w", session.ID, err)
	}

	res.Payload = payload
	res.Action = e.opts.CheckoutURL
	return res, nil
}

package reconcile

import (
	"context"
	"fmt"

	"github.com/mstgnz/oxipay/checkout"
	"github.com/mstgnz/oxipay/provider"
)

// HandleCallback classifies a gateway notification and applies the matching transition.
// Untrusted notifications never take the session lock or touch commerce state.
func (e *Engine) HandleCallback(ctx context.Context, params *provider.Fields) Result {
	cls, err := e.classifier.Classify(ctx, params)
	if err != nil {
		res := Result{Outcome: OutcomeError, Verdict: cls.Verdict, SessionRef: cls.SessionRef, Err: err}
		e.metrics.RecordCallback("error")
		e.finishCallback(ctx, params, res, "session lookup failed")
		return res
	}
	e.metrics.RecordCallback(cls.Verdict.String())

	res := Result{Verdict: cls.Verdict, SessionRef: cls.SessionRef}
	if !cls.Verdict.Trusted() {
		res.Outcome = OutcomeError
		e.reject(ctx, params, res)
		return res
	}

	switch cls.Verdict {
	case provider.VerdictCompleted:
		res = e.withSession(ctx, cls.Session.ID, res, func(session *checkout.PendingSession) Result {
			return e.finalize(ctx, session, res)
		})
	case provider.VerdictFailed:
		res = e.withSession(ctx, cls.Session.ID, res, func(session *checkout.PendingSession) Result {
			return e.fail(ctx, session, res)
		})
	default:
		res.Outcome = OutcomeFailure
		e.log(cls.SessionRef).AddField("x_result", cls.Result).Warn("Oxipay returned an unrecognised result")
	}

	e.finishCallback(ctx, params, res, "callback handled")
	return res
}

// reject logs an untrusted notification. Signature failures are raised as alerts.
func (e *Engine) reject(ctx context.Context, params *provider.Fields, res Result) {
	l := e.log(res.SessionRef)
	switch res.Verdict {
	case provider.VerdictInvalid:
		l.AddField("alert", true).Error("Possible site forgery detected: invalid response signature", nil)
	case provider.VerdictMissingReference:
		l.Error("Oxipay returned a null quote id", nil)
	case provider.VerdictQuoteNotFound:
		l.Error("Oxipay returned an id for a quote that could not be retrieved", nil)
	}

	event := checkout.Event{
		Kind:       "callback",
		SessionRef: res.SessionRef,
		Verdict:    res.Verdict.String(),
		Outcome:    string(res.Outcome),
		Severity:   checkout.SeverityError,
		Alert:      res.Verdict == provider.VerdictInvalid,
		Message:    "callback rejected",
	}
	if params != nil {
		event.Fields = params.Map()
	}
	e.metrics.RecordOutcome("callback", string(res.Outcome))
	e.emit(ctx, event)
}

func (e *Engine) finishCallback(ctx context.Context, params *provider.Fields, res Result, message string) {
	event := checkout.Event{
		Kind:       "callback",
		SessionRef: res.SessionRef,
		Verdict:    res.Verdict.String(),
		Outcome:    string(res.Outcome),
		OrderID:    res.OrderID,
		Message:    message,
	}
	if params != nil {
		event.TransactionID = params.Get(provider.FieldGatewayReference)
		event.Fields = params.Map()
	}
	switch {
	case res.Err != nil:
		event.Severity = checkout.SeverityError
		event.Error = res.Err.Error()
		if !res.Verdict.Trusted() {
			// classification never finished
			event.Verdict = ""
		}
		e.log(res.SessionRef).Error("Unable to complete Oxipay checkout", res.Err)
	case res.Outcome != OutcomeSuccess:
		event.Severity = checkout.SeverityWarn
	}
	e.metrics.RecordOutcome("callback", string(res.Outcome))
	e.emit(ctx, event)
}

// withSession runs fn under the session lock against a freshly loaded session
func (e *Engine) withSession(ctx context.Context, id string, res Result, fn func(*checkout.PendingSession) Result) Result {
	unlock, err := e.lockSession(ctx, id)
	if err != nil {
		res.Outcome, res.Err = OutcomeError, err
		return res
	}
	defer unlock()

	session, err := e.sessions.FindPendingSession(ctx, id)
	if err == nil && session == nil {
		err = checkout.ErrSessionNotFound
	}
	if err != nil {
		res.Outcome, res.Err = OutcomeError, fmt.Errorf("reload session %s: %w", id, err)
		return res
	}
	return fn(session)
}

// finalize turns the session into an order. A duplicate completion only clears the cart.
func (e *Engine) finalize(ctx context.Context, session *checkout.PendingSession, res Result) Result {
	if session.IsFinalizedByGateway() {
		e.log(session.ID).Info("Session already finalized by Oxipay, skipping order submission")
		e.clearCart(ctx, session)
		res.Outcome, res.OrderID = OutcomeSuccess, session.OrderID
		return res
	}

	if err := e.orders.CollectTotals(ctx, session); err != nil {
		res.Outcome, res.Err = OutcomeError, fmt.Errorf("collect totals: %w", err)
		return res
	}

	order, err := e.orders.SubmitOrder(ctx, session)
	if err != nil {
		res.Outcome, res.Err = OutcomeError, fmt.Errorf("submit order: %w", err)
		return res
	}
	if order == nil {
		e.log(session.ID).Warn(checkout.ErrOrderNotCreated.Error())
		res.Outcome = OutcomeFailure
		return res
	}

	session.Status = checkout.StatusFinalized
	session.CheckoutMethod = checkout.PaymentMethodCode
	session.OrderID = order.ID
	if err := e.sessions.SaveSession(ctx, session); err != nil {
		res.Outcome, res.Err = OutcomeError, fmt.Errorf("save finalized session: %w", err)
		return res
	}
	res.OrderID = order.ID

	if err := e.orders.SetProcessing(ctx, order, processingComment, e.opts.EmailCustomer); err != nil {
		e.warnOrder(session.ID, order.ID, "Failed to move order to processing", err)
	}

	if e.opts.EmailCustomer {
		if err := e.notifier.NotifyCustomer(ctx, order); err != nil {
			e.warnOrder(session.ID, order.ID, "Failed to send new order email", err)
		}
	}

	if e.opts.AutomaticInvoice {
		if err := e.invoiceOrder(ctx, order); err != nil {
			e.warnOrder(session.ID, order.ID, "Failed to invoice order", err)
		}
	}

	e.clearCart(ctx, session)
	e.log(session.ID).AddField("order_id", order.ID).Info("Order created from Oxipay payment")

	res.Outcome = OutcomeSuccess
	return res
}

// fail restores a dispatched session. Finalized sessions are never reopened.
func (e *Engine) fail(ctx context.Context, session *checkout.PendingSession, res Result) Result {
	res.Outcome = OutcomeFailure

	switch {
	case session.IsFinalizedByGateway():
		e.log(session.ID).Warn("Ignoring failed result for a session that is already finalized")
	case session.Status == checkout.StatusDispatched:
		if err := e.restore(ctx, session); err != nil {
			res.Outcome, res.Err = OutcomeError, err
		}
	}
	return res
}

// warnOrder logs a best-effort step that failed after the order was committed
func (e *Engine) warnOrder(sessionID, orderID, message string, err error) {
	e.log(sessionID).
		AddField("order_id", orderID).
		AddField("error", err.Error()).
		Warn(message)
}

func (e *Engine) clearCart(ctx context.Context, session *checkout.PendingSession) {
	if err := e.cart.Clear(ctx, session.ID); err != nil {
		e.log(session.ID).AddField("error", err.Error()).Warn("Failed to clear cart")
	}
}

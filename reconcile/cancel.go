package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/mstgnz/oxipay/checkout"
	"github.com/mstgnz/oxipay/provider"
)

// HandleCancel handles the shopper returning through the signed cancel link.
// The shopper always lands on the cart. Only a valid link for a dispatched session restores it.
func (e *Engine) HandleCancel(ctx context.Context, query *provider.Fields) Result {
	res := Result{Outcome: OutcomeCart}
	if query != nil {
		res.SessionRef = query.Get(provider.CancelFieldOrderID)
	}

	event := checkout.Event{
		Kind:       "cancel",
		SessionRef: res.SessionRef,
		Outcome:    string(OutcomeCart),
		Message:    "cancel handled",
	}
	if query != nil {
		event.Fields = query.Map()
	}

	if !provider.VerifyCancel(query, e.opts.APIKey) {
		e.metrics.RecordSignatureAlert()
		e.log(res.SessionRef).AddField("alert", true).Error("Invalid cancel link signature", nil)
		event.Severity, event.Alert, event.Verdict = checkout.SeverityError, true, provider.VerdictInvalid.String()
		event.Message = "cancel rejected"
		e.metrics.RecordOutcome("cancel", string(res.Outcome))
		e.emit(ctx, event)
		return res
	}

	if err := e.cancel(ctx, res.SessionRef); err != nil {
		res.Err = err
		event.Severity, event.Error = checkout.SeverityError, err.Error()
		e.log(res.SessionRef).Error("Unable to restore cancelled session", err)
	}

	e.metrics.RecordOutcome("cancel", string(res.Outcome))
	e.emit(ctx, event)
	return res
}

func (e *Engine) cancel(ctx context.Context, ref string) error {
	// the link carries the order reference, which may be the reserved order id
	found, err := e.sessions.FindPendingSession(ctx, ref)
	if errors.Is(err, checkout.ErrSessionNotFound) || (err == nil && found == nil) {
		e.log(ref).Warn("Cancelled session could not be retrieved")
		return nil
	}
	if err != nil {
		return fmt.Errorf("find session %s: %w", ref, err)
	}

	unlock, err := e.lockSession(ctx, found.ID)
	if err != nil {
		return err
	}
	defer unlock()

	session, err := e.sessions.FindPendingSession(ctx, found.ID)
	if err != nil {
		return fmt.Errorf("reload session %s: %w", found.ID, err)
	}
	if session == nil || session.IsFinalizedByGateway() || session.Status != checkout.StatusDispatched {
		return nil
	}
	return e.restore(ctx, session)
}

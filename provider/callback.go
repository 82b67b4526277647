package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mstgnz/oxipay/checkout"
)

// Verdict is the typed outcome of classifying an inbound notification
type Verdict int

const (
	VerdictInvalid Verdict = iota
	VerdictMissingReference
	VerdictQuoteNotFound
	VerdictCompleted
	VerdictFailed
	VerdictIndeterminate
)

func (v Verdict) String() string {
	switch v {
	case VerdictInvalid:
		return "invalid"
	case VerdictMissingReference:
		return "missing_reference"
	case VerdictQuoteNotFound:
		return "quote_not_found"
	case VerdictCompleted:
		return "completed"
	case VerdictFailed:
		return "failed"
	case VerdictIndeterminate:
		return "indeterminate"
	default:
		return "unknown"
	}
}

// Trusted reports whether the notification passed verification and resolved to a session
func (v Verdict) Trusted() bool {
	return v == VerdictCompleted || v == VerdictFailed || v == VerdictIndeterminate
}

// Classification is what the classifier learned about a notification.
// Session is set only for trusted verdicts.
type Classification struct {
	Verdict       Verdict
	SessionRef    string
	TransactionID string
	Result        string
	Session       *checkout.PendingSession
}

// Classifier turns raw callback parameters into a Classification
type Classifier struct {
	codec    Codec
	sessions checkout.SessionStore
	secret   string
}

// NewClassifier creates a classifier that verifies with base and resolves sessions from store
func NewClassifier(base SignatureBase, store checkout.SessionStore, secret string) *Classifier {
	return &Classifier{
		codec:    NewCodec(base),
		sessions: store,
		secret:   secret,
	}
}

// Classify verifies the signature before anything else is read from params.
// An error is returned only when the session store fails unexpectedly.
func (c *Classifier) Classify(ctx context.Context, params *Fields) (Classification, error) {
	if params == nil || !c.codec.Verify(params.Without(FieldSignature), params.Get(FieldSignature), c.secret) {
		return Classification{Verdict: VerdictInvalid}, nil
	}

	ref := strings.TrimSpace(params.Get(FieldReference))
	if ref == "" {
		return Classification{Verdict: VerdictMissingReference}, nil
	}

	out := Classification{
		SessionRef:    ref,
		TransactionID: params.Get(FieldGatewayReference),
		Result:        params.Get(FieldResult),
	}

	session, err := c.sessions.FindPendingSession(ctx, ref)
	if err != nil {
		if errors.Is(err, checkout.ErrSessionNotFound) {
			out.Verdict = VerdictQuoteNotFound
			return out, nil
		}
		return out, fmt.Errorf("provider: find session %s: %w", ref, err)
	}
	if session == nil {
		out.Verdict = VerdictQuoteNotFound
		return out, nil
	}
	out.Session = session

	// the gateway sends lowercase literals, any other casing is not a decision
	switch out.Result {
	case resultCompleted:
		out.Verdict = VerdictCompleted
	case resultFailed:
		out.Verdict = VerdictFailed
	default:
		out.Verdict = VerdictIndeterminate
	}
	return out, nil
}

package checkout

import (
	"context"
	"time"
)

// EventSeverity mirrors log severity for diagnostic events
type EventSeverity string

const (
	SeverityInfo  EventSeverity = "info"
	SeverityWarn  EventSeverity = "warn"
	SeverityError EventSeverity = "error"
)

// Event is a diagnostic record of one callback, cancel or dispatch decision
type Event struct {
	ID            string            `json:"id"`
	Timestamp     time.Time         `json:"timestamp"`
	Kind          string            `json:"kind"`
	SessionRef    string            `json:"session_ref,omitempty"`
	TransactionID string            `json:"transaction_id,omitempty"`
	OrderID       string            `json:"order_id,omitempty"`
	Verdict       string            `json:"verdict,omitempty"`
	Outcome       string            `json:"outcome,omitempty"`
	Severity      EventSeverity     `json:"severity"`
	Alert         bool              `json:"alert,omitempty"`
	Message       string            `json:"message"`
	Error         string            `json:"error,omitempty"`
	Fields        map[string]string `json:"fields,omitempty"`
}

// EventSink receives diagnostic events. Implementations must not block the caller for long.
type EventSink interface {
	Emit(ctx context.Context, event Event)
}

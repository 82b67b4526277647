package opensearch

import (
	"context"
	"testing"

	"github.com/mstgnz/oxipay/checkout"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_LogEvent(t *testing.T) {
	client, cluster := newTestClient(t, true)
	l := NewLogger(client)

	err := l.LogEvent(context.Background(), checkout.Event{
		Kind:       "callback",
		SessionRef: "Q123",
		Verdict:    "invalid",
		Severity:   checkout.SeverityError,
		Alert:      true,
		Message:    "callback signature mismatch",
		Fields:     map[string]string{"x_signature": "deadbeef", "x_result": "completed"},
	})
	require.NoError(t, err)

	docs := cluster.docs(EventIndex)
	require.Len(t, docs, 1)
	assert.Equal(t, "Q123", docs[0]["session_ref"])
	assert.NotEmpty(t, docs[0]["id"])
	fields := docs[0]["fields"].(map[string]any)
	assert.Equal(t, "***REDACTED***", fields["x_signature"])
	assert.Equal(t, "completed", fields["x_result"])
}

func TestLogger_EmitIsAsync(t *testing.T) {
	client, cluster := newTestClient(t, true)
	l := NewLogger(client)

	l.Emit(context.Background(), checkout.Event{Kind: "cancel", SessionRef: "Q1"})
	l.Emit(context.Background(), checkout.Event{Kind: "cancel", SessionRef: "Q2"})
	l.Wait()

	assert.Len(t, cluster.docs(EventIndex), 2)
}

func TestLogger_Disabled(t *testing.T) {
	client, cluster := newTestClient(t, false)
	l := NewLogger(client)

	assert.NoError(t, l.LogEvent(context.Background(), checkout.Event{Kind: "callback"}))
	assert.NoError(t, l.LogSystemEvent(context.Background(), map[string]string{"message": "x"}))
	l.Emit(context.Background(), checkout.Event{Kind: "callback"})
	l.Wait()

	_, err := l.SearchEvents(context.Background(), "Q1", 10)
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Empty(t, cluster.docs(EventIndex))
}

func TestLogger_SearchEvents(t *testing.T) {
	client, _ := newTestClient(t, true)
	l := NewLogger(client)

	require.NoError(t, l.LogEvent(context.Background(), checkout.Event{Kind: "callback", SessionRef: "Q123", Outcome: "success"}))

	events, err := l.SearchEvents(context.Background(), "Q123", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "success", events[0].Outcome)
}

func TestLogger_LogSystemEvent(t *testing.T) {
	client, cluster := newTestClient(t, true)
	l := NewLogger(client)

	require.NoError(t, l.LogSystemEvent(context.Background(), map[string]string{"level": "warn", "message": "hello"}))
	docs := cluster.docs(SystemIndex)
	require.Len(t, docs, 1)
	assert.Equal(t, "hello", docs[0]["message"])
}

func TestLogger_BreakerOpensAfterFailures(t *testing.T) {
	client, cluster := newTestClient(t, true)
	cluster.failIndex = true
	l := NewLogger(client)

	for i := 0; i < 5; i++ {
		assert.Error(t, l.LogEvent(context.Background(), checkout.Event{Kind: "callback"}))
	}
	assert.Equal(t, gobreaker.StateOpen, l.BreakerState())

	err := l.LogEvent(context.Background(), checkout.Event{Kind: "callback"})
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
}

func TestSanitizeFields(t *testing.T) {
	assert.Nil(t, SanitizeFields(nil))

	in := map[string]string{"signature": "abc", "X_SIGNATURE": "def", "orderId": "Q1"}
	out := SanitizeFields(in)
	assert.Equal(t, "***REDACTED***", out["signature"])
	assert.Equal(t, "***REDACTED***", out["X_SIGNATURE"])
	assert.Equal(t, "Q1", out["orderId"])
	assert.Equal(t, "abc", in["signature"], "input is not modified")
}

func TestSanitizeForLog(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
		absent   []string
	}{
		{
			name:     "query string",
			input:    "orderId=Q1&amount=45.00&signature=abc123",
			contains: []string{"orderId=Q1", "signature=***REDACTED***"},
			absent:   []string{"abc123"},
		},
		{
			name:     "callback query",
			input:    "x_reference=Q1&x_signature=abc123&x_result=completed",
			contains: []string{"x_signature=***REDACTED***", "x_result=completed"},
			absent:   []string{"abc123"},
		},
		{
			name:     "json",
			input:    `{"apiKey":"secret-key","amount":"45.00"}`,
			contains: []string{`"apiKey":"***REDACTED***"`, `"amount":"45.00"`},
			absent:   []string{"secret-key"},
		},
		{
			name:     "nothing sensitive",
			input:    "x_reference=Q1",
			contains: []string{"x_reference=Q1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := SanitizeForLog(tt.input)
			for _, c := range tt.contains {
				assert.Contains(t, out, c)
			}
			for _, a := range tt.absent {
				assert.NotContains(t, out, a)
			}
		})
	}
}

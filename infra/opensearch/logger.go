package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mstgnz/oxipay/checkout"
	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"
	"github.com/sony/gobreaker/v2"
)

// ErrDisabled is returned by read operations when logging is disabled
var ErrDisabled = errors.New("opensearch: logging is disabled")

// Logger indexes reconciliation events and system logs. Writes go through a
// circuit breaker so an unavailable cluster is skipped instead of retried on every request.
type Logger struct {
	client  *Client
	breaker *gobreaker.CircuitBreaker[any]
	timeout time.Duration
	wg      sync.WaitGroup
}

var _ checkout.EventSink = (*Logger)(nil)

// NewLogger creates a new OpenSearch logger
func NewLogger(client *Client) *Logger {
	settings := gobreaker.Settings{
		Name:        "opensearch",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("Circuit breaker %s: %s -> %s", name, from, to)
		},
	}

	return &Logger{
		client:  client,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		timeout: 5 * time.Second,
	}
}

// BreakerState reports the current circuit breaker state
func (l *Logger) BreakerState() gobreaker.State {
	return l.breaker.State()
}

// LogEvent indexes a reconciliation event
func (l *Logger) LogEvent(ctx context.Context, event checkout.Event) error {
	if !l.client.IsEnabled() {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	event.Fields = SanitizeFields(event.Fields)

	return l.index(ctx, EventIndex, event.ID, event)
}

// Emit indexes event in the background. Failures are logged and dropped.
func (l *Logger) Emit(_ context.Context, event checkout.Event) {
	if !l.client.IsEnabled() {
		return
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
		defer cancel()

		if err := l.LogEvent(ctx, event); err != nil {
			log.Printf("Failed to index reconcile event: %v", err)
		}
	}()
}

// Wait blocks until background writes have finished
func (l *Logger) Wait() {
	l.wg.Wait()
}

// LogSystemEvent logs a system event to OpenSearch
func (l *Logger) LogSystemEvent(ctx context.Context, entry any) error {
	if !l.client.IsEnabled() {
		return nil
	}
	return l.index(ctx, SystemIndex, "", entry)
}

func (l *Logger) index(ctx context.Context, indexName, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	_, err = l.breaker.Execute(func() (any, error) {
		req := opensearchapi.IndexRequest{
			Index:      indexName,
			DocumentID: id,
			Body:       bytes.NewReader(body),
		}

		res, err := req.Do(ctx, l.client.GetClient())
		if err != nil {
			return nil, fmt.Errorf("failed to index document: %w", err)
		}
		defer res.Body.Close()

		if res.IsError() {
			return nil, fmt.Errorf("opensearch error: %s", res.String())
		}
		return nil, nil
	})
	return err
}

// SearchEvents returns the most recent events for a session, newest first
func (l *Logger) SearchEvents(ctx context.Context, sessionRef string, size int) ([]checkout.Event, error) {
	if !l.client.IsEnabled() {
		return nil, ErrDisabled
	}
	if size <= 0 {
		size = 50
	}

	searchQuery := map[string]any{
		"query": map[string]any{
			"term": map[string]any{"session_ref": sessionRef},
		},
		"sort": []map[string]any{
			{"timestamp": map[string]string{"order": "desc"}},
		},
		"size": size,
	}

	queryJSON, err := json.Marshal(searchQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	req := opensearchapi.SearchRequest{
		Index: []string{EventIndex},
		Body:  bytes.NewReader(queryJSON),
	}

	res, err := req.Do(ctx, l.client.GetClient())
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("opensearch search error: %s", res.String())
	}

	var searchResult struct {
		Hits struct {
			Hits []struct {
				Source checkout.Event `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&searchResult); err != nil {
		return nil, fmt.Errorf("failed to decode search results: %w", err)
	}

	events := make([]checkout.Event, len(searchResult.Hits.Hits))
	for i, hit := range searchResult.Hits.Hits {
		events[i] = hit.Source
	}
	return events, nil
}

var sensitiveKeys = []string{
	"x_signature", "signature", "apiKey", "api_key", "OXIPAY_API_KEY",
	"password", "token", "authorization",
}

// SanitizeFields returns a copy of fields with sensitive values redacted
func SanitizeFields(fields map[string]string) map[string]string {
	if fields == nil {
		return nil
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
		for _, s := range sensitiveKeys {
			if strings.EqualFold(k, s) {
				out[k] = "***REDACTED***"
				break
			}
		}
	}
	return out
}

// SanitizeForLog removes sensitive values from a JSON or query string before logging
func SanitizeForLog(data string) string {
	result := data
	for _, field := range sensitiveKeys {
		patterns := []string{
			fmt.Sprintf(`"%s"\s*:\s*"[^"]*"`, regexp.QuoteMeta(field)),
			fmt.Sprintf(`(^|[?&])%s=[^&]*`, regexp.QuoteMeta(field)),
		}

		jsonRe := regexp.MustCompile(patterns[0])
		result = jsonRe.ReplaceAllString(result, fmt.Sprintf(`"%s":"***REDACTED***"`, field))

		queryRe := regexp.MustCompile(patterns[1])
		result = queryRe.ReplaceAllString(result, fmt.Sprintf(`${1}%s=***REDACTED***`, field))
	}
	return result
}

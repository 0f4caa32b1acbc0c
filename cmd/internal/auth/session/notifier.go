package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// EventSessionCompromised is the alert type for detected refresh token reuse.
const EventSessionCompromised = "session.compromised"

// CompromiseEvent is the out-of-band alert payload.
type CompromiseEvent struct {
	EventID    string    `json:"event_id"`
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	IP         string    `json:"ip,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Notifier delivers security alerts. The Service calls it from a background
// goroutine; errors are logged and never reach the caller.
type Notifier interface {
	SessionCompromised(ctx context.Context, ev CompromiseEvent) error
}

// NoopNotifier drops every alert.
type NoopNotifier struct{}

func (NoopNotifier) SessionCompromised(context.Context, CompromiseEvent) error { return nil }

// WebhookNotifier POSTs alerts as JSON to a URL.
type WebhookNotifier struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewWebhookNotifier returns a notifier posting to url with the given timeout.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &WebhookNotifier{
		url:     url,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

// SessionCompromised implements Notifier.
func (n *WebhookNotifier) SessionCompromised(ctx context.Context, ev CompromiseEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Laba-Event", ev.Type)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("session: webhook status %d", resp.StatusCode)
	}
	return nil
}

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	EventSignup   = "signup"
	EventPurchase = "purchase"
)

// Event is the outbound notification payload. It deliberately carries only
// the customer's name, email and order total; no platform identifiers leave
// this system.
type Event struct {
	Type          string `json:"type"`
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`
	OrderTotal    int64  `json:"order_total,omitempty"`
}

// Notifier is what the post-purchase flow uses to tell external systems about
// customer events.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// WebhookNotifier delivers events over HTTP, fire-and-forget: failures are
// logged and swallowed, never retried in the user-facing flow and never
// surfaced to the customer.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url: url,
		client: &http.Client{
			Timeout:   5 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, event Event) {
	if n.url == "" {
		return
	}

	if err := n.send(ctx, event); err != nil {
		log.Printf("webhook delivery failed for %s event: %v", event.Type, err)
	}
}

func (n *WebhookNotifier) send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook endpoint returned %s", resp.Status)
	}
	return nil
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// IntakeChecker reports whether a customer already completed the onboarding
// questionnaire. The check is advisory: callers must treat any error as
// "skip the gate", never as "block the customer".
type IntakeChecker interface {
	Completed(ctx context.Context, customerEmail string) (bool, error)
}

// IntakeClient queries the external intake-status endpoint. A circuit breaker
// keeps a flapping upstream from adding latency to every confirmation page.
type IntakeClient struct {
	baseURL string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[bool]
}

func NewIntakeClient(baseURL string) *IntakeClient {
	return &IntakeClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout:   3 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: gobreaker.NewCircuitBreaker[bool](gobreaker.Settings{
			Name: "intake-status",
		}),
	}
}

func (c *IntakeClient) Completed(ctx context.Context, customerEmail string) (bool, error) {
	return c.breaker.Execute(func() (bool, error) {
		return c.fetch(ctx, customerEmail)
	})
}

func (c *IntakeClient) fetch(ctx context.Context, customerEmail string) (bool, error) {
	u := fmt.Sprintf("%s?email=%s", c.baseURL, url.QueryEscape(customerEmail))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("create intake request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("intake endpoint returned %s", resp.Status)
	}

	var payload struct {
		Completed bool `json:"completed"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return false, fmt.Errorf("decode intake response: %w", err)
	}
	return payload.Completed, nil
}

package payment

import (
	"context"
	"errors"
)

var ErrChargeRefused = errors.New("payment was refused")

// ChargeResult carries the gateway's confirmation token. PaymentRef is opaque
// and is the idempotency key for order recording.
type ChargeResult struct {
	PaymentRef string
	Refusal    string
}

// Client abstracts the external payment gateway. The real gateway lives on
// the other side of a browser redirect; this interface exists so local
// environments and end-to-end tests can run the full checkout flow.
type Client interface {
	Charge(ctx context.Context, sessionID string, amount int64) (*ChargeResult, error)
}

package session

import (
	"context"
	"errors"
	"time"

	"github.com/itspokchop93/fasho-backend/internal/pricing"
)

var (
	ErrSessionNotFound = errors.New("checkout session not found or expired")
	ErrSessionConsumed = errors.New("checkout session already consumed")
)

const (
	// SessionTTL is how long an unconsumed session survives. It must outlive
	// a typical payment-gateway round trip.
	SessionTTL = 30 * time.Minute

	// CleanupInterval is how often the background cleanup runs.
	CleanupInterval = time.Minute
)

// Session is the pre-payment cart snapshot handed across the redirect to the
// external payment page. Never mutated after creation.
type Session struct {
	ID          string              `json:"id"`
	Cart        *pricing.PricedCart `json:"cart"`
	CustomerRef string              `json:"customer_ref,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
}

// Store holds checkout sessions between cart finalization and the payment
// confirmation callback.
type Store interface {
	// Create stores a cart snapshot under a fresh unguessable id.
	Create(ctx context.Context, cart *pricing.PricedCart, customerRef string) (string, error)

	// Consume returns the stored session and atomically marks it consumed.
	// A second Consume on the same id fails with ErrSessionConsumed; an
	// unknown or expired id fails with ErrSessionNotFound.
	Consume(ctx context.Context, sessionID string) (*Session, error)

	Close() error
}

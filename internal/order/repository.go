package order

import (
	"context"
	"errors"
	"time"

	"github.com/itspokchop93/fasho-backend/internal/pricing"
)

var ErrOrderNotFound = errors.New("order not found")

// EventOrderRecorded is the outbox event type written when an order is first
// recorded. Downstream fulfillment consumes it from Kafka.
const EventOrderRecorded = "order.recorded"

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

// OutboxEvent is an unpublished domain event persisted alongside the order
// write so the Kafka publish can never be lost to a crash in between.
type OutboxEvent struct {
	ID          int
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

type Repository interface {
	// RecordOrder writes the finalized order. paymentRef is the idempotency
	// key: a duplicate returns the existing order with created == false, so
	// gateway webhook retries can never produce a second order.
	RecordOrder(ctx context.Context, cart *pricing.PricedCart, customer Customer, paymentRef string) (o *Order, created bool, err error)

	// GetOrderByNumber returns ErrOrderNotFound for unknown order numbers.
	GetOrderByNumber(ctx context.Context, orderNumber string) (*Order, error)

	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int) error

	Close() error
}

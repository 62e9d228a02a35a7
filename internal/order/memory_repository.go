package order

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/itspokchop93/fasho-backend/internal/pricing"
)

// MemoryRepository implements Repository with in-memory storage, for local
// development and tests.
type MemoryRepository struct {
	mu        sync.Mutex
	byPayment map[string]*Order
	byNumber  map[string]*Order
	outbox    []*OutboxEvent
	nextID    int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byPayment: make(map[string]*Order),
		byNumber:  make(map[string]*Order),
		nextID:    1,
	}
}

func (r *MemoryRepository) RecordOrder(_ context.Context, cart *pricing.PricedCart, customer Customer, paymentRef string) (*Order, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.byPayment[paymentRef]; ok {
		return existing, false, nil
	}

	orderNumber, err := NewOrderNumber()
	if err != nil {
		return nil, false, err
	}

	o := &Order{
		OrderNumber:    orderNumber,
		Items:          cart.LineItems,
		AddonItems:     cart.AddonItems,
		Subtotal:       cart.Subtotal,
		Discount:       cart.Discount,
		CouponCode:     cart.CouponCode,
		CouponDiscount: cart.CouponDiscount,
		Total:          cart.Total,
		CustomerName:   customer.Name,
		CustomerEmail:  customer.Email,
		PaymentRef:     paymentRef,
		CreatedAt:      time.Now(),
	}

	payload, err := json.Marshal(o)
	if err != nil {
		return nil, false, fmt.Errorf("failed to marshal outbox payload: %w", err)
	}

	r.byPayment[paymentRef] = o
	r.byNumber[orderNumber] = o
	r.outbox = append(r.outbox, &OutboxEvent{
		ID:          r.nextID,
		AggregateID: orderNumber,
		EventType:   EventOrderRecorded,
		Payload:     payload,
		CreatedAt:   o.CreatedAt,
	})
	r.nextID++

	return o, true, nil
}

func (r *MemoryRepository) GetOrderByNumber(_ context.Context, orderNumber string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.byNumber[orderNumber]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o, nil
}

func (r *MemoryRepository) GetUnprocessedEvents(_ context.Context, limit int) ([]*OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var events []*OutboxEvent
	for _, ev := range r.outbox {
		if len(events) == limit {
			break
		}
		events = append(events, ev)
	}
	return events, nil
}

func (r *MemoryRepository) MarkEventAsProcessed(_ context.Context, id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, ev := range r.outbox {
		if ev.ID == id {
			r.outbox = append(r.outbox[:i], r.outbox[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *MemoryRepository) Close() error {
	return nil
}

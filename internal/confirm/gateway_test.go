package confirm

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/itspokchop93/fasho-backend/internal/order"
	"github.com/itspokchop93/fasho-backend/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRepository implements order.Repository for testing
type mockRepository struct {
	orders    map[string]*order.Order
	getCalls  atomic.Int64
	getDelay  time.Duration
	getErr    error
}

func newMockRepository() *mockRepository {
	return &mockRepository{orders: make(map[string]*order.Order)}
}

func (m *mockRepository) RecordOrder(context.Context, *pricing.PricedCart, order.Customer, string) (*order.Order, bool, error) {
	return nil, false, nil
}

func (m *mockRepository) GetOrderByNumber(_ context.Context, orderNumber string) (*order.Order, error) {
	m.getCalls.Add(1)
	if m.getDelay > 0 {
		time.Sleep(m.getDelay)
	}
	if m.getErr != nil {
		return nil, m.getErr
	}
	o, ok := m.orders[orderNumber]
	if !ok {
		return nil, order.ErrOrderNotFound
	}
	return o, nil
}

func (m *mockRepository) GetUnprocessedEvents(context.Context, int) ([]*order.OutboxEvent, error) {
	return nil, nil
}

func (m *mockRepository) MarkEventAsProcessed(context.Context, int) error {
	return nil
}

func (m *mockRepository) Close() error {
	return nil
}

func orderCreatedAt(createdAt time.Time) *order.Order {
	return &order.Order{
		OrderNumber:   "FS-TESTABCD",
		Total:         7900,
		Subtotal:      7900,
		CustomerName:  "Jo Vance",
		CustomerEmail: "jo@example.com",
		PaymentRef:    "pay_gw",
		CreatedAt:     createdAt,
	}
}

func TestLookup_WithinWindow(t *testing.T) {
	repo := newMockRepository()
	createdAt := time.Now()
	repo.orders["FS-TESTABCD"] = orderCreatedAt(createdAt)
	gw := NewGateway(repo)

	res, err := gw.Lookup(context.Background(), "FS-TESTABCD", createdAt.Add(9*time.Minute+59*time.Second))
	require.NoError(t, err)
	assert.Equal(t, "FS-TESTABCD", res.Order.OrderNumber)
	assert.Equal(t, time.Second, res.TimeRemaining)
}

func TestLookup_ExactBoundaryStillVisible(t *testing.T) {
	repo := newMockRepository()
	createdAt := time.Now()
	repo.orders["FS-TESTABCD"] = orderCreatedAt(createdAt)
	gw := NewGateway(repo)

	res, err := gw.Lookup(context.Background(), "FS-TESTABCD", createdAt.Add(Window))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), res.TimeRemaining)
}

func TestLookup_Expired(t *testing.T) {
	repo := newMockRepository()
	createdAt := time.Now()
	repo.orders["FS-TESTABCD"] = orderCreatedAt(createdAt)
	gw := NewGateway(repo)

	res, err := gw.Lookup(context.Background(), "FS-TESTABCD", createdAt.Add(10*time.Minute+time.Second))
	assert.ErrorIs(t, err, ErrOrderExpired)
	assert.Nil(t, res)
}

func TestLookup_NotFound(t *testing.T) {
	gw := NewGateway(newMockRepository())

	res, err := gw.Lookup(context.Background(), "FS-UNKNOWN2", time.Now())
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
	assert.Nil(t, res)
}

func TestLookup_WindowRelativeToCreation(t *testing.T) {
	// The window is always computed from the true order timestamp; reading the
	// order earlier must not extend it.
	repo := newMockRepository()
	createdAt := time.Now().Add(-11 * time.Minute)
	repo.orders["FS-TESTABCD"] = orderCreatedAt(createdAt)
	gw := NewGateway(repo)

	_, err := gw.Lookup(context.Background(), "FS-TESTABCD", time.Now())
	assert.ErrorIs(t, err, ErrOrderExpired)
}

func TestLookup_ConcurrentReadsCollapse(t *testing.T) {
	repo := newMockRepository()
	repo.orders["FS-TESTABCD"] = orderCreatedAt(time.Now())
	repo.getDelay = 50 * time.Millisecond
	gw := NewGateway(repo)

	const readers = 10
	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := gw.Lookup(context.Background(), "FS-TESTABCD", time.Now())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Less(t, repo.getCalls.Load(), int64(readers), "singleflight should collapse concurrent reads")
}

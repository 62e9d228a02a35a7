package confirm

import (
	"context"
	"errors"
	"time"

	"github.com/itspokchop93/fasho-backend/internal/order"
	"golang.org/x/sync/singleflight"
)

// Window is how long an order stays fetchable by its public order number.
// Order details carry the customer's name and email, so the shareable
// confirmation link must stop resolving shortly after purchase.
const Window = 10 * time.Minute

var ErrOrderExpired = errors.New("order confirmation window has passed")

// Result is a successful lookup. TimeRemaining is display-only.
type Result struct {
	Order         *order.Order
	TimeRemaining time.Duration
}

// Gateway is the read path for the public confirmation page.
type Gateway struct {
	repo order.Repository
	sfg  singleflight.Group // collapses concurrent reads of the same order
}

func NewGateway(repo order.Repository) *Gateway {
	return &Gateway{repo: repo}
}

// Lookup returns the order only while now is within the confirmation window.
// Exactly at the boundary the order is still visible; one instant past it the
// caller gets ErrOrderExpired. The window is computed from the stored
// CreatedAt at read time, never from when the order was first viewed.
func (g *Gateway) Lookup(ctx context.Context, orderNumber string, now time.Time) (*Result, error) {
	v, err, _ := g.sfg.Do(orderNumber, func() (interface{}, error) {
		return g.repo.GetOrderByNumber(ctx, orderNumber)
	})
	if err != nil {
		return nil, err
	}
	o := v.(*order.Order)

	expiresAt := o.CreatedAt.Add(Window)
	if now.After(expiresAt) {
		return nil, ErrOrderExpired
	}

	return &Result{
		Order:         o,
		TimeRemaining: expiresAt.Sub(now),
	}, nil
}

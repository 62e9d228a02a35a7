package coupon

import (
	"context"
	"errors"
)

var ErrCouponNotFound = errors.New("coupon not found")

// Coupon is a flat-amount discount code managed by marketing. DiscountAmount
// is in minor currency units; the pricing engine clamps it at apply time.
type Coupon struct {
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discount_amount"`
	Active         bool   `json:"active"`
}

type Repository interface {
	// GetByCode returns ErrCouponNotFound for unknown or inactive codes.
	GetByCode(ctx context.Context, code string) (*Coupon, error)
	Close() error
}

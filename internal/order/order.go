package order

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/itspokchop93/fasho-backend/internal/catalog"
	"github.com/itspokchop93/fasho-backend/internal/pricing"
)

// Customer is the buyer as reported by the payment confirmation.
type Customer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Order is the finalized record of a paid campaign. Written exactly once at
// payment confirmation and immutable thereafter; fulfillment status lives in
// an external system.
type Order struct {
	OrderNumber    string                   `json:"order_number"`
	Items          []pricing.PricedLineItem `json:"items"`
	AddonItems     []catalog.Addon          `json:"addon_items"`
	Subtotal       int64                    `json:"subtotal"`
	Discount       int64                    `json:"discount"`
	CouponCode     string                   `json:"coupon_code,omitempty"`
	CouponDiscount int64                    `json:"coupon_discount"`
	Total          int64                    `json:"total"`
	CustomerName   string                   `json:"customer_name"`
	CustomerEmail  string                   `json:"customer_email"`
	PaymentRef     string                   `json:"payment_ref"`
	CreatedAt      time.Time                `json:"created_at"`
}

// orderNumberAlphabet drops easily-confused characters; order numbers are read
// aloud and typed from confirmation emails.
const orderNumberAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// NewOrderNumber returns a human-shareable order number like "FS-K7M2Q9WD".
func NewOrderNumber() (string, error) {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate order number: %w", err)
	}
	for i, b := range buf {
		buf[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	return fmt.Sprintf("FS-%s", buf), nil
}

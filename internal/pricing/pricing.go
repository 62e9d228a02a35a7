package pricing

import (
	"errors"

	"github.com/itspokchop93/fasho-backend/internal/catalog"
)

var ErrEmptyCart = errors.New("cart is empty, nothing to price")

// Track identifies the song a campaign promotes. The ID is opaque, it comes
// from the streaming platform the track was picked from.
type Track struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Artist   string `json:"artist"`
	ImageURL string `json:"image_url"`
}

// CartLineItem is one (track, package) pairing. PositionIndex is the 0-based
// order the item entered the cart. It is assigned once and never recomputed
// when other items change.
type CartLineItem struct {
	Track         Track           `json:"track"`
	Package       catalog.Package `json:"package"`
	PositionIndex int             `json:"position_index"`
}

type PricedLineItem struct {
	CartLineItem
	OriginalPrice   int64 `json:"original_price"`
	DiscountedPrice int64 `json:"discounted_price"`
	IsDiscounted    bool  `json:"is_discounted"`
}

type Coupon struct {
	Code           string `json:"code"`
	DiscountAmount int64  `json:"discount_amount"`
}

type PricedCart struct {
	LineItems      []PricedLineItem `json:"line_items"`
	AddonItems     []catalog.Addon  `json:"addon_items"`
	Subtotal       int64            `json:"subtotal"`
	Discount       int64            `json:"discount"`
	CouponCode     string           `json:"coupon_code,omitempty"`
	CouponDiscount int64            `json:"coupon_discount"`
	Total          int64            `json:"total"`
}

// DiscountedUnitPrice returns 75% of the unit price rounded up to the next
// minor-currency unit. Rounding is always up, even when 75% lands on a whole
// number plus a fraction of a unit.
func DiscountedUnitPrice(unitPrice int64) int64 {
	return (3*unitPrice + 3) / 4
}

// Price computes a deterministic priced cart. Pure, no I/O, safe for
// concurrent use.
//
// The item at PositionIndex 0 pays full package price, every later item pays
// the discounted unit price. Addon prices are never position-discounted. The
// coupon is applied last and clamped so the total cannot go negative; the
// recorded CouponDiscount is the amount actually applied, which keeps
// Subtotal - Discount - CouponDiscount == Total exact.
func Price(lineItems []CartLineItem, addons []catalog.Addon, coupon *Coupon) (*PricedCart, error) {
	if len(lineItems) == 0 {
		return nil, ErrEmptyCart
	}

	cart := &PricedCart{
		LineItems:  make([]PricedLineItem, 0, len(lineItems)),
		AddonItems: addons,
	}
	if cart.AddonItems == nil {
		cart.AddonItems = []catalog.Addon{}
	}

	var subtotal, discount int64
	for _, item := range lineItems {
		original := item.Package.UnitPrice
		discounted := original
		isDiscounted := item.PositionIndex > 0
		if isDiscounted {
			discounted = DiscountedUnitPrice(original)
		}

		cart.LineItems = append(cart.LineItems, PricedLineItem{
			CartLineItem:    item,
			OriginalPrice:   original,
			DiscountedPrice: discounted,
			IsDiscounted:    isDiscounted,
		})

		subtotal += original
		discount += original - discounted
	}

	for _, addon := range addons {
		subtotal += addon.Price
	}

	cart.Subtotal = subtotal
	cart.Discount = discount

	afterDiscount := subtotal - discount
	if coupon != nil {
		cart.CouponCode = coupon.Code
		cart.CouponDiscount = coupon.DiscountAmount
		if cart.CouponDiscount > afterDiscount {
			cart.CouponDiscount = afterDiscount
		}
		if cart.CouponDiscount < 0 {
			cart.CouponDiscount = 0
		}
	}

	cart.Total = afterDiscount - cart.CouponDiscount
	return cart, nil
}

package checkout

import (
	"context"
	"errors"
	"fmt"

	"github.com/itspokchop93/fasho-backend/internal/catalog"
	"github.com/itspokchop93/fasho-backend/internal/confirm"
	"github.com/itspokchop93/fasho-backend/internal/coupon"
	"github.com/itspokchop93/fasho-backend/internal/order"
	"github.com/itspokchop93/fasho-backend/internal/pricing"
	"github.com/itspokchop93/fasho-backend/internal/session"
)

// LineItemRequest pairs a chosen track with a promotion package.
type LineItemRequest struct {
	Track     pricing.Track `json:"track"`
	PackageID string        `json:"package_id"`
}

type CheckoutRequest struct {
	Items       []LineItemRequest `json:"items"`
	AddonIDs    []string          `json:"addon_ids"`
	CouponCode  string            `json:"coupon_code"`
	CustomerRef string            `json:"customer_ref"`
}

type CheckoutResult struct {
	SessionID string              `json:"session_id"`
	Cart      *pricing.PricedCart `json:"cart"`
}

type ConfirmResult struct {
	Order        *order.Order `json:"order"`
	HandoffToken string       `json:"handoff_token"`
	Created      bool         `json:"-"`
}

// Service drives the two checkout operations: pricing a cart into a session
// before the payment redirect, and turning a payment confirmation back into a
// durable order.
type Service struct {
	sessions session.Store
	orders   order.Repository
	coupons  coupon.Repository
	handoff  *confirm.HandoffCache
}

func NewService(sessions session.Store, orders order.Repository, coupons coupon.Repository, handoff *confirm.HandoffCache) *Service {
	return &Service{
		sessions: sessions,
		orders:   orders,
		coupons:  coupons,
		handoff:  handoff,
	}
}

// BeginCheckout prices the selection and parks it in the session store. Only
// the opaque session id travels to the payment page; no cart data is placed
// in the URL.
func (s *Service) BeginCheckout(ctx context.Context, req *CheckoutRequest) (*CheckoutResult, error) {
	if len(req.Items) == 0 {
		return nil, pricing.ErrEmptyCart
	}

	lineItems := make([]pricing.CartLineItem, 0, len(req.Items))
	for i, item := range req.Items {
		pkg, err := catalog.PackageByID(item.PackageID)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		lineItems = append(lineItems, pricing.CartLineItem{
			Track:         item.Track,
			Package:       pkg,
			PositionIndex: i,
		})
	}

	var addons []catalog.Addon
	for _, id := range req.AddonIDs {
		addon, err := catalog.AddonByID(id)
		if err != nil {
			return nil, fmt.Errorf("addon %q: %w", id, err)
		}
		addons = append(addons, addon)
	}

	var cartCoupon *pricing.Coupon
	if req.CouponCode != "" {
		c, err := s.coupons.GetByCode(ctx, req.CouponCode)
		if err != nil {
			return nil, err
		}
		cartCoupon = &pricing.Coupon{Code: c.Code, DiscountAmount: c.DiscountAmount}
	}

	cart, err := pricing.Price(lineItems, addons, cartCoupon)
	if err != nil {
		return nil, err
	}

	sessionID, err := s.sessions.Create(ctx, cart, req.CustomerRef)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}

	return &CheckoutResult{SessionID: sessionID, Cart: cart}, nil
}

// ConfirmPayment is called when the gateway redirects back with a payment
// confirmation token. The session consume and the order write are each
// atomic, so neither a replayed redirect nor a webhook retry can double-record.
func (s *Service) ConfirmPayment(ctx context.Context, sessionID, paymentRef string, customer order.Customer) (*ConfirmResult, error) {
	sess, err := s.sessions.Consume(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	o, created, err := s.orders.RecordOrder(ctx, sess.Cart, customer, paymentRef)
	if err != nil {
		return nil, fmt.Errorf("record order: %w", err)
	}

	token, err := s.handoff.Put(o)
	if err != nil {
		return nil, err
	}

	return &ConfirmResult{Order: o, HandoffToken: token, Created: created}, nil
}

// IsRestartCheckout reports whether the error means the customer has to start
// the checkout over. These are never retried automatically; a retry would
// risk double-charge semantics.
func IsRestartCheckout(err error) bool {
	return errors.Is(err, session.ErrSessionNotFound) || errors.Is(err, session.ErrSessionConsumed)
}

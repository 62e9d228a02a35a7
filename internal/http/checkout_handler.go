package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/itspokchop93/fasho-backend/internal/catalog"
	"github.com/itspokchop93/fasho-backend/internal/checkout"
	"github.com/itspokchop93/fasho-backend/internal/coupon"
	"github.com/itspokchop93/fasho-backend/internal/pricing"
)

type CheckoutHandler struct {
	service *checkout.Service
	timeout time.Duration
}

func NewCheckoutHandler(service *checkout.Service, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		service: service,
		timeout: timeout,
	}
}

type CheckoutResponseDTO struct {
	SessionID string              `json:"session_id"`
	Cart      *pricing.PricedCart `json:"cart"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req checkout.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	result, err := h.service.BeginCheckout(ctx, &req)
	if err != nil {
		handleCheckoutError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, CheckoutResponseDTO{
		SessionID: result.SessionID,
		Cart:      result.Cart,
	})
}

func handleCheckoutError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pricing.ErrEmptyCart):
		respondError(w, http.StatusBadRequest, "empty_cart", "at least one track is required")
	case errors.Is(err, catalog.ErrPackageNotFound):
		respondError(w, http.StatusBadRequest, "unknown_package", err.Error())
	case errors.Is(err, catalog.ErrAddonNotFound):
		respondError(w, http.StatusBadRequest, "unknown_addon", err.Error())
	case errors.Is(err, coupon.ErrCouponNotFound):
		respondError(w, http.StatusBadRequest, "unknown_coupon", "coupon code is not valid")
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

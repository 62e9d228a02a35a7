package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/itspokchop93/fasho-backend/internal/checkout"
	"github.com/itspokchop93/fasho-backend/internal/order"
	"github.com/itspokchop93/fasho-backend/internal/payment"
	"github.com/itspokchop93/fasho-backend/internal/session"
)

type PaymentHandler struct {
	service *checkout.Service
	gateway payment.Client
	timeout time.Duration
}

func NewPaymentHandler(service *checkout.Service, gateway payment.Client, timeout time.Duration) *PaymentHandler {
	return &PaymentHandler{
		service: service,
		gateway: gateway,
		timeout: timeout,
	}
}

type ChargeRequestDTO struct {
	SessionID string `json:"session_id"`
	Amount    int64  `json:"amount"`
}

type ChargeResponseDTO struct {
	PaymentRef string `json:"payment_ref"`
}

type ConfirmRequestDTO struct {
	SessionID  string         `json:"session_id"`
	PaymentRef string         `json:"payment_ref"`
	Customer   order.Customer `json:"customer"`
}

type ConfirmResponseDTO struct {
	Order        *order.Order `json:"order"`
	HandoffToken string       `json:"handoff_token"`
}

// POST /api/v1/payment/charge
//
// Stand-in for the external gateway so local environments can run the full
// redirect flow without one. Production points the redirect at the real
// gateway instead.
func (h *PaymentHandler) Charge(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ChargeRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "session_id is required")
		return
	}

	result, err := h.gateway.Charge(ctx, req.SessionID, req.Amount)
	if err != nil {
		if errors.Is(err, payment.ErrChargeRefused) {
			refusal := "charge refused"
			if result != nil && result.Refusal != "" {
				refusal = result.Refusal
			}
			respondError(w, http.StatusPaymentRequired, "charge_refused", refusal)
			return
		}
		respondError(w, http.StatusBadGateway, "gateway_error", "payment gateway unavailable")
		return
	}

	respondJSON(w, http.StatusOK, ChargeResponseDTO{PaymentRef: result.PaymentRef})
}

// POST /api/v1/payment/confirm
func (h *PaymentHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ConfirmRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "session_id is required")
		return
	}
	if req.PaymentRef == "" {
		respondError(w, http.StatusBadRequest, "missing_payment_ref", "payment_ref is required")
		return
	}

	result, err := h.service.ConfirmPayment(ctx, req.SessionID, req.PaymentRef, req.Customer)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionConsumed):
			respondError(w, http.StatusConflict, "session_consumed", "checkout session was already used")
		case errors.Is(err, session.ErrSessionNotFound):
			respondError(w, http.StatusNotFound, "session_not_found", "checkout session not found or expired")
		default:
			log.Printf("payment confirm failed request_id=%s: %v", getRequestID(r.Context()), err)
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		}
		return
	}

	respondJSON(w, http.StatusOK, ConfirmResponseDTO{
		Order:        result.Order,
		HandoffToken: result.HandoffToken,
	})
}

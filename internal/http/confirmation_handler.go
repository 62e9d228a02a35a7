package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/itspokchop93/fasho-backend/internal/confirm"
	"github.com/itspokchop93/fasho-backend/internal/order"
	"github.com/itspokchop93/fasho-backend/internal/postpurchase"
)

type ConfirmationHandler struct {
	gateway *confirm.Gateway
	handoff *confirm.HandoffCache
	timeout time.Duration
}

func NewConfirmationHandler(gateway *confirm.Gateway, handoff *confirm.HandoffCache, timeout time.Duration) *ConfirmationHandler {
	return &ConfirmationHandler{
		gateway: gateway,
		handoff: handoff,
		timeout: timeout,
	}
}

type OrderResponseDTO struct {
	Order           *order.Order `json:"order"`
	OrderNumber     string       `json:"order_number"`
	TimeRemainingMS int64        `json:"time_remaining_ms"`
}

// GET /api/v1/thank-you
//
// Resolution is two-tier: the order query param goes through the gateway and
// its expiration window; with no param, a one-shot handoff token fills the
// gap right after the payment redirect. The response always carries the order
// number so the page can promote it into its URL.
func (h *ConfirmationHandler) ThankYou(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderNumber := r.URL.Query().Get("order")
	if orderNumber != "" {
		res, err := h.gateway.Lookup(ctx, orderNumber, time.Now())
		switch {
		case err == nil:
			respondJSON(w, http.StatusOK, OrderResponseDTO{
				Order:           res.Order,
				OrderNumber:     res.Order.OrderNumber,
				TimeRemainingMS: res.TimeRemaining.Milliseconds(),
			})
		case errors.Is(err, confirm.ErrOrderExpired):
			respondJSON(w, http.StatusGone, map[string]interface{}{
				"expired": true,
				"error":   "order confirmation is no longer available",
			})
		case errors.Is(err, order.ErrOrderNotFound):
			respondError(w, http.StatusNotFound, "order_not_found", "order not found")
		default:
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		}
		return
	}

	if token := r.URL.Query().Get("handoff"); token != "" {
		if o, ok := h.handoff.Take(token); ok {
			expiresAt := o.CreatedAt.Add(confirm.Window)
			respondJSON(w, http.StatusOK, OrderResponseDTO{
				Order:           o,
				OrderNumber:     o.OrderNumber,
				TimeRemainingMS: time.Until(expiresAt).Milliseconds(),
			})
			return
		}
	}

	respondError(w, http.StatusNotFound, "order_not_found", "order not found")
}

// FlowHandler drives the post-purchase state machine over HTTP. Each page
// load creates one flow; the id is returned to the client and scopes all
// later form actions.
type FlowHandler struct {
	newFlow  func() *postpurchase.Orchestrator
	timeout  time.Duration
	maxFlows int

	mu    sync.Mutex
	flows map[string]*flowEntry
}

type flowEntry struct {
	orch      *postpurchase.Orchestrator
	createdAt time.Time
}

func NewFlowHandler(newFlow func() *postpurchase.Orchestrator, timeout time.Duration) *FlowHandler {
	return &FlowHandler{
		newFlow:  newFlow,
		timeout:  timeout,
		maxFlows: 10000,
		flows:    make(map[string]*flowEntry),
	}
}

type StartFlowRequestDTO struct {
	Order   string `json:"order"`
	Handoff string `json:"handoff"`
}

type FlowResponseDTO struct {
	FlowID              string                 `json:"flow_id"`
	State               string                 `json:"state"`
	ErrorReason         string                 `json:"error_reason,omitempty"`
	Order               *order.Order           `json:"order,omitempty"`
	PromotedOrderNumber string                 `json:"promoted_order_number,omitempty"`
	Question            *postpurchase.Question `json:"question,omitempty"`
}

// POST /api/v1/confirmation/flow
func (h *FlowHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req StartFlowRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	orch := h.newFlow()
	orch.Start(ctx, req.Order, req.Handoff)

	id, err := newFlowID()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	h.mu.Lock()
	if len(h.flows) >= h.maxFlows {
		h.evictOldestLocked()
	}
	h.flows[id] = &flowEntry{orch: orch, createdAt: time.Now()}
	h.mu.Unlock()

	respondJSON(w, http.StatusCreated, h.flowResponse(id, orch))
}

// GET /api/v1/confirmation/flow/{id}
func (h *FlowHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	orch, ok := h.lookup(id)
	if !ok {
		respondError(w, http.StatusNotFound, "flow_not_found", "flow not found")
		return
	}
	respondJSON(w, http.StatusOK, h.flowResponse(id, orch))
}

type AnswerRequestDTO struct {
	Choice string `json:"choice"`
}

// POST /api/v1/confirmation/flow/{id}/answer
func (h *FlowHandler) Answer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	orch, ok := h.lookup(id)
	if !ok {
		respondError(w, http.StatusNotFound, "flow_not_found", "flow not found")
		return
	}

	var req AnswerRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	if err := orch.AnswerCurrent(req.Choice); err != nil {
		switch {
		case errors.Is(err, postpurchase.ErrInvalidChoice):
			respondError(w, http.StatusBadRequest, "invalid_choice", err.Error())
		case errors.Is(err, postpurchase.ErrFormComplete):
			respondError(w, http.StatusConflict, "form_complete", "no question to answer")
		default:
			respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		}
		return
	}

	respondJSON(w, http.StatusOK, h.flowResponse(id, orch))
}

// POST /api/v1/confirmation/flow/{id}/back
func (h *FlowHandler) Back(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	orch, ok := h.lookup(id)
	if !ok {
		respondError(w, http.StatusNotFound, "flow_not_found", "flow not found")
		return
	}
	orch.BackForm()
	respondJSON(w, http.StatusOK, h.flowResponse(id, orch))
}

// POST /api/v1/confirmation/flow/{id}/dismiss
func (h *FlowHandler) Dismiss(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	orch, ok := h.lookup(id)
	if !ok {
		respondError(w, http.StatusNotFound, "flow_not_found", "flow not found")
		return
	}
	orch.DismissForm()
	respondJSON(w, http.StatusOK, h.flowResponse(id, orch))
}

func (h *FlowHandler) lookup(id string) (*postpurchase.Orchestrator, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.flows[id]
	if !ok {
		return nil, false
	}
	return entry.orch, true
}

// evictOldestLocked keeps the registry bounded; flows are page-lifetime
// objects and abandoned ones just age out under pressure.
func (h *FlowHandler) evictOldestLocked() {
	var oldestID string
	var oldestAt time.Time
	for id, entry := range h.flows {
		if oldestID == "" || entry.createdAt.Before(oldestAt) {
			oldestID = id
			oldestAt = entry.createdAt
		}
	}
	if oldestID != "" {
		h.flows[oldestID].orch.Stop()
		delete(h.flows, oldestID)
	}
}

func (h *FlowHandler) flowResponse(id string, orch *postpurchase.Orchestrator) FlowResponseDTO {
	resp := FlowResponseDTO{
		FlowID:              id,
		State:               string(orch.State()),
		ErrorReason:         string(orch.ErrorReason()),
		Order:               orch.Order(),
		PromotedOrderNumber: orch.PromotedOrderNumber(),
	}
	if q, ok := orch.CurrentQuestion(); ok {
		resp.Question = &q
	}
	return resp
}

func newFlowID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

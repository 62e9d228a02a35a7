package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itspokchop93/fasho-backend/internal/checkout"
	"github.com/itspokchop93/fasho-backend/internal/confirm"
	"github.com/itspokchop93/fasho-backend/internal/coupon"
	"github.com/itspokchop93/fasho-backend/internal/notify"
	"github.com/itspokchop93/fasho-backend/internal/order"
	"github.com/itspokchop93/fasho-backend/internal/payment"
	"github.com/itspokchop93/fasho-backend/internal/postpurchase"
	"github.com/itspokchop93/fasho-backend/internal/pricing"
	"github.com/itspokchop93/fasho-backend/internal/session"
)

type testEnv struct {
	sessions *session.MemoryStore
	orders   *order.MemoryRepository
	handoff  *confirm.HandoffCache
	service  *checkout.Service
	gateway  *confirm.Gateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	sessions := session.NewMemoryStore()
	t.Cleanup(func() { sessions.Close() })

	orders := order.NewMemoryRepository()
	coupons := coupon.NewStaticRepository(coupon.Coupon{Code: "LAUNCH10", DiscountAmount: 1000, Active: true})
	handoff := confirm.NewHandoffCache()

	return &testEnv{
		sessions: sessions,
		orders:   orders,
		handoff:  handoff,
		service:  checkout.NewService(sessions, orders, coupons, handoff),
		gateway:  confirm.NewGateway(orders),
	}
}

func postJSON(t *testing.T, handler http.HandlerFunc, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", target, bytes.NewReader(buf))
	handler(recorder, request)
	return recorder
}

func checkoutBody(trackCount int, couponCode string) checkout.CheckoutRequest {
	req := checkout.CheckoutRequest{CouponCode: couponCode}
	for i := 0; i < trackCount; i++ {
		req.Items = append(req.Items, checkout.LineItemRequest{
			Track: pricing.Track{
				ID:     fmt.Sprintf("track-%d", i),
				Title:  fmt.Sprintf("Night Drive %d", i),
				Artist: "Ava Rivers",
			},
			PackageID: "momentum",
		})
	}
	return req
}

// --- checkout ---

func TestBeginCheckout_Success(t *testing.T) {
	env := newTestEnv(t)
	handler := NewCheckoutHandler(env.service, 5*time.Second)

	recorder := postJSON(t, handler.BeginCheckout, "/api/v1/checkout", checkoutBody(2, ""))

	require.Equal(t, http.StatusCreated, recorder.Code)

	var resp CheckoutResponseDTO
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.SessionID)
	require.Len(t, resp.Cart.LineItems, 2)
	assert.True(t, resp.Cart.LineItems[1].IsDiscounted)
}

func TestBeginCheckout_EmptyCart(t *testing.T) {
	env := newTestEnv(t)
	handler := NewCheckoutHandler(env.service, 5*time.Second)

	recorder := postJSON(t, handler.BeginCheckout, "/api/v1/checkout", checkoutBody(0, ""))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assertErrorCode(t, recorder, "empty_cart")
}

func TestBeginCheckout_UnknownPackage(t *testing.T) {
	env := newTestEnv(t)
	handler := NewCheckoutHandler(env.service, 5*time.Second)

	body := checkoutBody(1, "")
	body.Items[0].PackageID = "mega-ultra-platinum"
	recorder := postJSON(t, handler.BeginCheckout, "/api/v1/checkout", body)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assertErrorCode(t, recorder, "unknown_package")
}

func TestBeginCheckout_UnknownCoupon(t *testing.T) {
	env := newTestEnv(t)
	handler := NewCheckoutHandler(env.service, 5*time.Second)

	recorder := postJSON(t, handler.BeginCheckout, "/api/v1/checkout", checkoutBody(1, "NOPE"))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assertErrorCode(t, recorder, "unknown_coupon")
}

func TestBeginCheckout_MalformedJSON(t *testing.T) {
	env := newTestEnv(t)
	handler := NewCheckoutHandler(env.service, 5*time.Second)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("POST", "/api/v1/checkout", bytes.NewReader([]byte(`{nope`)))
	handler.BeginCheckout(recorder, request)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

// --- payment ---

func TestCharge_Success(t *testing.T) {
	env := newTestEnv(t)
	handler := NewPaymentHandler(env.service, payment.NewStubClient(0, 1), 5*time.Second)

	recorder := postJSON(t, handler.Charge, "/api/v1/payment/charge", ChargeRequestDTO{SessionID: "sess", Amount: 9000})

	require.Equal(t, http.StatusOK, recorder.Code)
	var resp ChargeResponseDTO
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Contains(t, resp.PaymentRef, "TXN-")
}

func TestCharge_Refused(t *testing.T) {
	env := newTestEnv(t)
	handler := NewPaymentHandler(env.service, payment.NewStubClient(100, 1), 5*time.Second)

	recorder := postJSON(t, handler.Charge, "/api/v1/payment/charge", ChargeRequestDTO{SessionID: "sess", Amount: 9000})

	assert.Equal(t, http.StatusPaymentRequired, recorder.Code)
	assertErrorCode(t, recorder, "charge_refused")
}

func TestConfirm_Success(t *testing.T) {
	env := newTestEnv(t)
	handler := NewPaymentHandler(env.service, payment.NewStubClient(0, 1), 5*time.Second)

	begin, err := env.service.BeginCheckout(context.Background(), reqPtr(checkoutBody(1, "")))
	require.NoError(t, err)

	recorder := postJSON(t, handler.Confirm, "/api/v1/payment/confirm", ConfirmRequestDTO{
		SessionID:  begin.SessionID,
		PaymentRef: "TXN-1",
		Customer:   order.Customer{Name: "Ava Rivers", Email: "ava@example.com"},
	})

	require.Equal(t, http.StatusOK, recorder.Code)
	var resp ConfirmResponseDTO
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Regexp(t, `^FS-`, resp.Order.OrderNumber)
	assert.NotEmpty(t, resp.HandoffToken)
}

func TestConfirm_ReplayedSessionConflicts(t *testing.T) {
	env := newTestEnv(t)
	handler := NewPaymentHandler(env.service, payment.NewStubClient(0, 1), 5*time.Second)

	begin, err := env.service.BeginCheckout(context.Background(), reqPtr(checkoutBody(1, "")))
	require.NoError(t, err)

	body := ConfirmRequestDTO{
		SessionID:  begin.SessionID,
		PaymentRef: "TXN-1",
		Customer:   order.Customer{Name: "Ava Rivers", Email: "ava@example.com"},
	}
	require.Equal(t, http.StatusOK, postJSON(t, handler.Confirm, "/api/v1/payment/confirm", body).Code)

	recorder := postJSON(t, handler.Confirm, "/api/v1/payment/confirm", body)
	assert.Equal(t, http.StatusConflict, recorder.Code)
	assertErrorCode(t, recorder, "session_consumed")
}

func TestConfirm_UnknownSession(t *testing.T) {
	env := newTestEnv(t)
	handler := NewPaymentHandler(env.service, payment.NewStubClient(0, 1), 5*time.Second)

	recorder := postJSON(t, handler.Confirm, "/api/v1/payment/confirm", ConfirmRequestDTO{
		SessionID:  "no-such-session",
		PaymentRef: "TXN-1",
		Customer:   order.Customer{Name: "Ava Rivers", Email: "ava@example.com"},
	})

	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assertErrorCode(t, recorder, "session_not_found")
}

// --- thank-you ---

func placeOrder(t *testing.T, env *testEnv) *checkout.ConfirmResult {
	t.Helper()
	begin, err := env.service.BeginCheckout(context.Background(), reqPtr(checkoutBody(1, "")))
	require.NoError(t, err)
	result, err := env.service.ConfirmPayment(context.Background(), begin.SessionID, "TXN-"+begin.SessionID,
		order.Customer{Name: "Ava Rivers", Email: "ava@example.com"})
	require.NoError(t, err)
	return result
}

func TestThankYou_ByOrderNumber(t *testing.T) {
	env := newTestEnv(t)
	placed := placeOrder(t, env)
	handler := NewConfirmationHandler(env.gateway, env.handoff, 5*time.Second)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("GET", "/api/v1/thank-you?order="+placed.Order.OrderNumber, nil)
	handler.ThankYou(recorder, request)

	require.Equal(t, http.StatusOK, recorder.Code)
	var resp OrderResponseDTO
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, placed.Order.OrderNumber, resp.OrderNumber)
	assert.Greater(t, resp.TimeRemainingMS, int64(0))
}

func TestThankYou_UnknownOrderIs404(t *testing.T) {
	env := newTestEnv(t)
	handler := NewConfirmationHandler(env.gateway, env.handoff, 5*time.Second)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("GET", "/api/v1/thank-you?order=FS-NOPE2222", nil)
	handler.ThankYou(recorder, request)

	assert.Equal(t, http.StatusNotFound, recorder.Code)
	assertErrorCode(t, recorder, "order_not_found")
}

func TestThankYou_ExpiredOrderIs410(t *testing.T) {
	env := newTestEnv(t)
	placed := placeOrder(t, env)
	// The repository hands back the stored pointer, so backdating here
	// backdates the stored order.
	placed.Order.CreatedAt = time.Now().Add(-confirm.Window - time.Minute)
	handler := NewConfirmationHandler(env.gateway, env.handoff, 5*time.Second)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("GET", "/api/v1/thank-you?order="+placed.Order.OrderNumber, nil)
	handler.ThankYou(recorder, request)

	require.Equal(t, http.StatusGone, recorder.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["expired"])
}

func TestThankYou_HandoffTokenResolvesOnce(t *testing.T) {
	env := newTestEnv(t)
	placed := placeOrder(t, env)
	handler := NewConfirmationHandler(env.gateway, env.handoff, 5*time.Second)

	target := "/api/v1/thank-you?handoff=" + placed.HandoffToken

	recorder := httptest.NewRecorder()
	handler.ThankYou(recorder, httptest.NewRequest("GET", target, nil))
	require.Equal(t, http.StatusOK, recorder.Code)

	var resp OrderResponseDTO
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, placed.Order.OrderNumber, resp.OrderNumber, "response carries the order number for URL promotion")

	// Token is single-use.
	recorder = httptest.NewRecorder()
	handler.ThankYou(recorder, httptest.NewRequest("GET", target, nil))
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

// --- confirmation flow ---

type stubIntake struct{ completed bool }

func (s stubIntake) Completed(context.Context, string) (bool, error) { return s.completed, nil }

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, notify.Event) {}

func flowRouter(env *testEnv, intakeCompleted bool) http.Handler {
	newFlow := func() *postpurchase.Orchestrator {
		orch := postpurchase.NewOrchestrator(env.gateway, env.handoff, stubIntake{completed: intakeCompleted}, noopNotifier{})
		orch.SetConfettiDuration(0)
		return orch
	}
	handler := NewFlowHandler(newFlow, 5*time.Second)

	r := chi.NewRouter()
	r.Route("/api/v1/confirmation/flow", func(r chi.Router) {
		r.Post("/", handler.Start)
		r.Get("/{id}", handler.Get)
		r.Post("/{id}/answer", handler.Answer)
		r.Post("/{id}/back", handler.Back)
		r.Post("/{id}/dismiss", handler.Dismiss)
	})
	return r
}

func startFlow(t *testing.T, router http.Handler, body StartFlowRequestDTO) FlowResponseDTO {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest("POST", "/api/v1/confirmation/flow", bytes.NewReader(buf)))
	require.Equal(t, http.StatusCreated, recorder.Code)

	var resp FlowResponseDTO
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	return resp
}

func TestFlow_CompletedIntakeEndsInDone(t *testing.T) {
	env := newTestEnv(t)
	placed := placeOrder(t, env)
	router := flowRouter(env, true)

	resp := startFlow(t, router, StartFlowRequestDTO{Order: placed.Order.OrderNumber})

	assert.Equal(t, string(postpurchase.StateDone), resp.State)
	assert.NotEmpty(t, resp.FlowID)
	assert.Nil(t, resp.Question)
}

func TestFlow_IncompleteIntakeWalksForm(t *testing.T) {
	env := newTestEnv(t)
	placed := placeOrder(t, env)
	router := flowRouter(env, false)

	resp := startFlow(t, router, StartFlowRequestDTO{Order: placed.Order.OrderNumber})
	require.Equal(t, string(postpurchase.StateIntakeForm), resp.State)
	require.NotNil(t, resp.Question)
	assert.Equal(t, "genre", resp.Question.ID)

	answer := func(choice string) FlowResponseDTO {
		buf, _ := json.Marshal(AnswerRequestDTO{Choice: choice})
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest("POST", "/api/v1/confirmation/flow/"+resp.FlowID+"/answer", bytes.NewReader(buf)))
		require.Equal(t, http.StatusOK, recorder.Code)
		var out FlowResponseDTO
		require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &out))
		return out
	}

	answer("Pop")
	answer("Monthly")
	answer("Grow my audience")
	final := answer("Search")

	assert.Equal(t, string(postpurchase.StateDone), final.State)
}

func TestFlow_InvalidChoiceRejected(t *testing.T) {
	env := newTestEnv(t)
	placed := placeOrder(t, env)
	router := flowRouter(env, false)

	resp := startFlow(t, router, StartFlowRequestDTO{Order: placed.Order.OrderNumber})

	buf, _ := json.Marshal(AnswerRequestDTO{Choice: "Polka"})
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest("POST", "/api/v1/confirmation/flow/"+resp.FlowID+"/answer", bytes.NewReader(buf)))

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assertErrorCode(t, recorder, "invalid_choice")
}

func TestFlow_HandoffStartPromotesOrderNumber(t *testing.T) {
	env := newTestEnv(t)
	placed := placeOrder(t, env)
	router := flowRouter(env, true)

	resp := startFlow(t, router, StartFlowRequestDTO{Handoff: placed.HandoffToken})

	assert.Equal(t, string(postpurchase.StateDone), resp.State)
	assert.Equal(t, placed.Order.OrderNumber, resp.PromotedOrderNumber)
}

func TestFlow_UnknownOrderShowsError(t *testing.T) {
	env := newTestEnv(t)
	router := flowRouter(env, true)

	resp := startFlow(t, router, StartFlowRequestDTO{Order: "FS-NOPE2222"})

	assert.Equal(t, string(postpurchase.StateErrorDisplay), resp.State)
	assert.Equal(t, string(postpurchase.ReasonNotFound), resp.ErrorReason)
}

func TestFlow_ConcurrentFormTrafficIsSafe(t *testing.T) {
	env := newTestEnv(t)
	placed := placeOrder(t, env)
	router := flowRouter(env, false)

	resp := startFlow(t, router, StartFlowRequestDTO{Order: placed.Order.OrderNumber})
	require.Equal(t, string(postpurchase.StateIntakeForm), resp.State)

	answerBody, _ := json.Marshal(AnswerRequestDTO{Choice: "Pop"})
	base := "/api/v1/confirmation/flow/" + resp.FlowID

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				router.ServeHTTP(httptest.NewRecorder(),
					httptest.NewRequest("POST", base+"/answer", bytes.NewReader(answerBody)))
				router.ServeHTTP(httptest.NewRecorder(),
					httptest.NewRequest("POST", base+"/back", nil))
				router.ServeHTTP(httptest.NewRecorder(),
					httptest.NewRequest("GET", base, nil))
			}
		}()
	}
	wg.Wait()

	// The flow is still coherent: a final read returns a well-formed state.
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest("GET", base, nil))
	require.Equal(t, http.StatusOK, recorder.Code)
	var final FlowResponseDTO
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &final))
	assert.NotEmpty(t, final.State)
}

func TestFlow_UnknownFlowIDIs404(t *testing.T) {
	env := newTestEnv(t)
	router := flowRouter(env, true)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest("GET", "/api/v1/confirmation/flow/deadbeef", nil))

	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

// --- helpers ---

func assertErrorCode(t *testing.T, recorder *httptest.ResponseRecorder, code string) {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	assert.Equal(t, code, resp.Code)
}

func reqPtr(req checkout.CheckoutRequest) *checkout.CheckoutRequest { return &req }

package handlers_test

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/meridianinvest/platform/internal/handlers"
	"github.com/meridianinvest/platform/internal/ratelimit"
	"github.com/meridianinvest/platform/pkg/security"
)

func newTradingHandler() (*handlers.TradingHandler, *security.TradingCircuitBreaker) {
	breaker := security.NewTradingCircuitBreaker(5, time.Minute)
	limiters := ratelimit.NewRegistry(ratelimit.DefaultRules())
	return handlers.NewTradingHandler(limiters, breaker), breaker
}

func TestSubmitOrder_Accepted(t *testing.T) {
	handler, _ := newTradingHandler()
	req := handlers.NewTestRequest(t, "POST", "/trading/orders", handlers.TradeOrderRequest{
		Amount: 250.50,
		Pair:   "EUR/USD",
		Type:   "buy",
	})
	req = handlers.WithAuthContext(req, uuid.New(), "trader@example.com")

	w := httptest.NewRecorder()
	handler.SubmitOrder(w, req)

	var resp map[string]interface{}
	handlers.AssertJSONResponse(t, w, 202, &resp)
	assert.Equal(t, true, resp["accepted"])
}

func TestSubmitOrder_Unauthenticated(t *testing.T) {
	handler, _ := newTradingHandler()
	req := handlers.NewTestRequest(t, "POST", "/trading/orders", handlers.TradeOrderRequest{
		Amount: 100,
		Pair:   "EUR/USD",
		Type:   "buy",
	})

	w := httptest.NewRecorder()
	handler.SubmitOrder(w, req)

	handlers.AssertErrorResponse(t, w, 401, "unauthorized")
}

func TestSubmitOrder_BreakerOpen(t *testing.T) {
	handler, breaker := newTradingHandler()
	for i := 0; i < 5; i++ {
		breaker.RecordFailure()
	}

	req := handlers.NewTestRequest(t, "POST", "/trading/orders", handlers.TradeOrderRequest{
		Amount: 100,
		Pair:   "EUR/USD",
		Type:   "buy",
	})
	req = handlers.WithAuthContext(req, uuid.New(), "trader@example.com")

	w := httptest.NewRecorder()
	handler.SubmitOrder(w, req)

	handlers.AssertErrorResponse(t, w, 503, "trading_suspended")
}

func TestSubmitOrder_InvalidOrderRejected(t *testing.T) {
	handler, _ := newTradingHandler()
	req := handlers.NewTestRequest(t, "POST", "/trading/orders", handlers.TradeOrderRequest{
		Amount: 50,
		Pair:   "EUR/USD",
		Type:   "short", // only buy and sell are valid
	})
	req = handlers.WithAuthContext(req, uuid.New(), "trader@example.com")

	w := httptest.NewRecorder()
	handler.SubmitOrder(w, req)

	handlers.AssertErrorResponse(t, w, 400, "invalid_order")
}

func TestSubmitOrder_PerSessionRateLimit(t *testing.T) {
	handler, _ := newTradingHandler()
	userID := uuid.New()

	// The trading budget is 10 orders per minute per session
	for i := 0; i < 10; i++ {
		req := handlers.NewTestRequest(t, "POST", "/trading/orders", handlers.TradeOrderRequest{
			Amount: 100,
			Pair:   "EUR/USD",
			Type:   "buy",
		})
		req = handlers.WithAuthContext(req, userID, "trader@example.com")
		w := httptest.NewRecorder()
		handler.SubmitOrder(w, req)
		assert.Equal(t, 202, w.Code)
	}

	req := handlers.NewTestRequest(t, "POST", "/trading/orders", handlers.TradeOrderRequest{
		Amount: 100,
		Pair:   "EUR/USD",
		Type:   "buy",
	})
	req = handlers.WithAuthContext(req, userID, "trader@example.com")
	w := httptest.NewRecorder()
	handler.SubmitOrder(w, req)

	handlers.AssertErrorResponse(t, w, 429, "rate_limit_exceeded")
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// A different session is unaffected
	other := handlers.NewTestRequest(t, "POST", "/trading/orders", handlers.TradeOrderRequest{
		Amount: 100,
		Pair:   "EUR/USD",
		Type:   "buy",
	})
	other = handlers.WithAuthContext(other, uuid.New(), "other@example.com")
	w = httptest.NewRecorder()
	handler.SubmitOrder(w, other)
	assert.Equal(t, 202, w.Code)
}

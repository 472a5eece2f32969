package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/meridianinvest/platform/internal/auth"
	"github.com/meridianinvest/platform/internal/ratelimit"
	pkghttp "github.com/meridianinvest/platform/pkg/http"
	"github.com/meridianinvest/platform/pkg/security"
)

// TradingHandler validates trade order submissions. Orders pass through the
// per-session trading rate limit and the circuit breaker before any
// execution backend would see them.
type TradingHandler struct {
	limiters *ratelimit.Registry
	breaker  *security.TradingCircuitBreaker
}

// NewTradingHandler creates a new TradingHandler
func NewTradingHandler(limiters *ratelimit.Registry, breaker *security.TradingCircuitBreaker) *TradingHandler {
	return &TradingHandler{
		limiters: limiters,
		breaker:  breaker,
	}
}

// TradeOrderRequest represents an order submission
type TradeOrderRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
	Pair   string  `json:"pair" validate:"required"`
	Type   string  `json:"type" validate:"required"`
}

// SubmitOrder validates and accepts a trade order.
func (h *TradingHandler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserFromContext(r)
	if claims == nil {
		pkghttp.WriteUnauthorized(w, "unauthorized")
		return
	}

	if !h.breaker.CanExecute() {
		pkghttp.WriteError(w, http.StatusServiceUnavailable, "trading_suspended",
			"Trading is temporarily suspended. Please try again shortly.")
		return
	}

	limiter := h.limiters.For(claims.UserID)
	if !limiter.CanProceed(ratelimit.CategoryTrading) {
		retry := limiter.RemainingTime(ratelimit.CategoryTrading)
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(retry)))
		pkghttp.WriteTooManyRequests(w, "Too many orders. Please slow down.")
		return
	}
	limiter.RecordAttempt(ratelimit.CategoryTrading)

	var req TradeOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result := security.ValidateTradeRequest(security.TradeRequest{
		Amount: req.Amount,
		Pair:   req.Pair,
		Type:   req.Type,
	})
	if !result.Valid {
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "invalid_order",
			"Order validation failed", result.Errors[0])
		return
	}

	// No execution backend is wired up; accepted orders are acknowledged
	// for downstream processing.
	pkghttp.WriteJSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted": true,
		"order": map[string]interface{}{
			"amount": req.Amount,
			"pair":   req.Pair,
			"type":   req.Type,
		},
	})
}

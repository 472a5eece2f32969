package security

import (
	"sync"
	"time"
)

// TradingCircuitBreaker halts order execution after repeated failures. The
// circuit opens once the failure threshold is reached and closes again
// after the timeout elapses with no intervening check.
type TradingCircuitBreaker struct {
	mu              sync.Mutex
	failures        int
	lastFailureTime time.Time
	threshold       int
	timeout         time.Duration
	now             func() time.Time
}

// NewTradingCircuitBreaker creates a breaker that opens after threshold
// consecutive failures and resets after timeout.
func NewTradingCircuitBreaker(threshold int, timeout time.Duration) *TradingCircuitBreaker {
	return &TradingCircuitBreaker{
		threshold: threshold,
		timeout:   timeout,
		now:       time.Now,
	}
}

// CanExecute reports whether an order may be submitted. A breaker whose
// timeout has elapsed resets itself before answering.
func (cb *TradingCircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.failures >= cb.threshold {
		if cb.now().Sub(cb.lastFailureTime) < cb.timeout {
			return false // Circuit is open
		}
		cb.reset()
	}

	return true
}

// RecordFailure counts a failed execution
func (cb *TradingCircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	cb.lastFailureTime = cb.now()
}

// RecordSuccess closes the circuit
func (cb *TradingCircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
}

func (cb *TradingCircuitBreaker) reset() {
	cb.failures = 0
	cb.lastFailureTime = time.Time{}
}

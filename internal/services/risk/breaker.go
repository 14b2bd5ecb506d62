package risk

import (
	"sync"
	"time"
)

type BreakerState string

const (
	BreakerClosed   BreakerState = "closed"
	BreakerOpen     BreakerState = "open"
	BreakerHalfOpen BreakerState = "half_open"
)

// CircuitBreaker trips after consecutive collaborator failures and probes
// again once the recovery timeout has passed.
type CircuitBreaker struct {
	mu        sync.Mutex
	threshold int
	recovery  time.Duration
	state     BreakerState
	failures  int
	openedAt  time.Time
	onTrip    func(failures int)
}

func NewCircuitBreaker(threshold int, recovery time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = 5
	}
	if recovery <= 0 {
		recovery = 60 * time.Second
	}
	return &CircuitBreaker{threshold: threshold, recovery: recovery, state: BreakerClosed}
}

// OnTrip sets a callback invoked when the breaker opens.
func (cb *CircuitBreaker) OnTrip(fn func(failures int)) {
	cb.mu.Lock()
	cb.onTrip = fn
	cb.mu.Unlock()
}

// Allow reports whether a call may proceed at now.
func (cb *CircuitBreaker) Allow(now time.Time) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == BreakerOpen {
		if now.Sub(cb.openedAt) < cb.recovery {
			return false
		}
		cb.state = BreakerHalfOpen
	}
	return true
}

func (cb *CircuitBreaker) Success() {
	cb.mu.Lock()
	cb.failures = 0
	cb.state = BreakerClosed
	cb.mu.Unlock()
}

func (cb *CircuitBreaker) Failure(now time.Time) {
	cb.mu.Lock()
	cb.failures++
	tripped := false
	if cb.state == BreakerHalfOpen || cb.failures >= cb.threshold {
		tripped = cb.state != BreakerOpen
		cb.state = BreakerOpen
		cb.openedAt = now
	}
	fn, n := cb.onTrip, cb.failures
	cb.mu.Unlock()
	if tripped && fn != nil {
		fn(n)
	}
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

package syncer

import (
	"sync"

	apperrors "github.com/good12834/shoestore/pkg/errors"
)

// BreakerState is a point-in-time copy of a Breaker.
type BreakerState struct {
	ConsecutiveFailures int
	Open                bool
	Threshold           int
	LastError           string
}

// Breaker counts consecutive remote failures. Once the count reaches the
// threshold the circuit stays open until a success is recorded; there is no
// timed half-open state. Unauthorized errors leave the count unchanged.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	failures  int
	open      bool
	lastErr   string
}

// NewBreaker creates a closed breaker. A threshold of zero never opens.
func NewBreaker(threshold int) *Breaker {
	if threshold < 0 {
		threshold = 0
	}
	return &Breaker{threshold: threshold}
}

// Allow reports whether a call may be attempted.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.open
}

// Record updates the breaker with the outcome of one call.
func (b *Breaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case err == nil:
		b.failures = 0
		b.open = false
		b.lastErr = ""
	case apperrors.IsUnauthorized(err):
		b.lastErr = err.Error()
	default:
		b.failures++
		b.lastErr = err.Error()
		if b.threshold > 0 && b.failures >= b.threshold {
			b.open = true
		}
	}
}

// Reset closes the circuit and clears the counter.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.open = false
	b.lastErr = ""
}

// State returns a copy of the breaker's state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerState{
		ConsecutiveFailures: b.failures,
		Open:                b.open,
		Threshold:           b.threshold,
		LastError:           b.lastErr,
	}
}

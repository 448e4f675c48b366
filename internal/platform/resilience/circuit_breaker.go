package resilience

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type CircuitStatus string

const (
	CircuitClosed   CircuitStatus = "CLOSED"
	CircuitOpen     CircuitStatus = "OPEN"
	CircuitHalfOpen CircuitStatus = "HALF_OPEN"
)

// Level is the numeric form used by the state gauge.
func (s CircuitStatus) Level() float64 {
	switch s {
	case CircuitHalfOpen:
		return 1
	case CircuitOpen:
		return 2
	default:
		return 0
	}
}

type CircuitSnapshot struct {
	Status              CircuitStatus `json:"status"`
	ConsecutiveFailures int           `json:"consecutiveFailures"`
	OpenedAt            time.Time     `json:"openedAt"`
}

type TransitionFunc func(from, to CircuitStatus)

// CircuitBreaker trips after consecutive failures and lets a bounded
// number of trial calls through once the cooldown has elapsed.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	cooldown         time.Duration
	halfOpenMaxReq   int

	state               CircuitStatus
	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int
	halfOpenSuccesses   int
	now                 func() time.Time
	onTransition        TransitionFunc
}

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	cfg = NormalizeCircuitBreakerConfig(cfg)
	return &CircuitBreaker{
		failureThreshold: cfg.FailureThreshold,
		cooldown:         cfg.Cooldown,
		halfOpenMaxReq:   cfg.HalfOpenMaxReq,
		state:            CircuitClosed,
		now:              time.Now,
	}
}

// OnTransition registers fn, called outside the lock after every state change.
func (b *CircuitBreaker) OnTransition(fn TransitionFunc) {
	b.mu.Lock()
	b.onTransition = fn
	b.mu.Unlock()
}

// Allow admits a call or returns ErrCircuitOpen. An admitted call must be
// finished with exactly one of RecordSuccess, RecordFailure or Release.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	from := b.state

	if b.state == CircuitOpen {
		if b.now().Sub(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrCircuitOpen
		}
		b.toHalfOpen()
	}

	if b.state == CircuitHalfOpen {
		if b.halfOpenInFlight >= b.halfOpenMaxReq {
			b.unlockAndNotify(from)
			return ErrCircuitOpen
		}
		b.halfOpenInFlight++
	}

	b.unlockAndNotify(from)
	return nil
}

func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	from := b.state

	switch b.state {
	case CircuitClosed:
		b.consecutiveFailures = 0
	case CircuitHalfOpen:
		if b.halfOpenInFlight > 0 {
			b.halfOpenInFlight--
		}
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.halfOpenMaxReq && b.halfOpenInFlight == 0 {
			b.toClosed()
		}
	}

	b.unlockAndNotify(from)
}

func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	from := b.state

	switch b.state {
	case CircuitClosed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.failureThreshold {
			b.toOpen()
		}
	case CircuitHalfOpen:
		b.consecutiveFailures++
		b.toOpen()
	case CircuitOpen:
		b.openedAt = b.now()
	}

	b.unlockAndNotify(from)
}

// Release frees an admitted call without counting it either way.
func (b *CircuitBreaker) Release() {
	b.mu.Lock()
	if b.state == CircuitHalfOpen && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}
	b.mu.Unlock()
}

// State reports HALF_OPEN once an open breaker's cooldown has elapsed,
// even before the next call performs the transition.
func (b *CircuitBreaker) State() CircuitStatus {
	return b.Snapshot().Status
}

func (b *CircuitBreaker) Snapshot() CircuitSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	status := b.state
	if status == CircuitOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		status = CircuitHalfOpen
	}
	return CircuitSnapshot{
		Status:              status,
		ConsecutiveFailures: b.consecutiveFailures,
		OpenedAt:            b.openedAt,
	}
}

func (b *CircuitBreaker) unlockAndNotify(from CircuitStatus) {
	to := b.state
	fn := b.onTransition
	b.mu.Unlock()
	if fn != nil && from != to {
		fn(from, to)
	}
}

func (b *CircuitBreaker) toClosed() {
	b.state = CircuitClosed
	b.consecutiveFailures = 0
	b.halfOpenInFlight = 0
	b.halfOpenSuccesses = 0
	b.openedAt = time.Time{}
}

func (b *CircuitBreaker) toOpen() {
	b.state = CircuitOpen
	b.openedAt = b.now()
	b.halfOpenInFlight = 0
	b.halfOpenSuccesses = 0
}

func (b *CircuitBreaker) toHalfOpen() {
	b.state = CircuitHalfOpen
	b.halfOpenInFlight = 0
	b.halfOpenSuccesses = 0
}

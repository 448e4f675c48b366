package resilience

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/riskibarqy/lineup-orchestrator/internal/platform/fault"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/logging"
	"github.com/riskibarqy/lineup-orchestrator/internal/platform/metrics"
	"golang.org/x/time/rate"
)

// OperationClass names a family of remote calls sharing one breaker.
type OperationClass string

const (
	OpLineupRead         OperationClass = "lineup.read"
	OpLineupWrite        OperationClass = "lineup.write"
	OpOptimizationSubmit OperationClass = "optimization.submit"
	OpTradeSubmit        OperationClass = "trade.submit"
	OpOptimizationStatus OperationClass = "optimization.status"
	OpOptimizationCancel OperationClass = "optimization.cancel"
)

// Guard runs remote calls through a retry policy, a per-class circuit
// breaker and an optional per-class rate limiter.
type Guard struct {
	cfg     GuardConfig
	logger  *logging.Logger
	metrics *metrics.Collectors

	mu       sync.Mutex
	breakers map[OperationClass]*CircuitBreaker
	limiters map[OperationClass]*rate.Limiter

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewGuard(cfg GuardConfig, logger *logging.Logger, collectors *metrics.Collectors) *Guard {
	if logger == nil {
		logger = logging.Default()
	}
	cfg = NormalizeGuardConfig(cfg)

	limiters := make(map[OperationClass]*rate.Limiter, len(cfg.RateLimits))
	for class, limit := range cfg.RateLimits {
		if limit.PerMinute <= 0 {
			continue
		}
		burst := limit.Burst
		if burst < 1 {
			burst = 1
		}
		limiters[class] = rate.NewLimiter(rate.Every(time.Minute/time.Duration(limit.PerMinute)), burst)
	}

	return &Guard{
		cfg:      cfg,
		logger:   logger,
		metrics:  collectors,
		breakers: make(map[OperationClass]*CircuitBreaker),
		limiters: limiters,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// Execute runs fn under the policies of class. The returned error always
// classifies through fault.KindOf; CircuitOpen means fn was not invoked.
func (g *Guard) Execute(ctx context.Context, class OperationClass, fn func(ctx context.Context) error) error {
	started := g.now()

	// Throttling is local: a refused token never reaches the breaker.
	if err := g.throttle(ctx, class); err != nil {
		g.logger.WarnContext(ctx, "rate limiter refused call", "class", class, "error", err)
		g.metrics.GuardCall(string(class), "throttled", 0)
		return err
	}

	breaker := g.breaker(class)
	if g.cfg.CircuitBreaker.Enabled {
		if err := breaker.Allow(); err != nil {
			g.logger.WarnContext(ctx, "circuit breaker rejected call", "class", class, "state", breaker.State())
			g.metrics.GuardCall(string(class), fault.CircuitOpen.String(), 0)
			return fault.Wrap(fault.CircuitOpen, string(class), err)
		}
	}

	err := g.run(ctx, class, fn)
	kind := fault.KindOf(err)

	if g.cfg.CircuitBreaker.Enabled {
		switch {
		case err == nil:
			breaker.RecordSuccess()
		case kind.PenalizesCircuit():
			breaker.RecordFailure()
		default:
			// Cancellations and client-side rejections leave the breaker as it was.
			breaker.Release()
		}
	}

	outcome := "ok"
	if err != nil {
		outcome = kind.String()
	}
	g.metrics.GuardCall(string(class), outcome, g.now().Sub(started))
	return err
}

// throttle waits for a token of class. The refusal is Canceled or Timeout
// when the caller's context ends or its deadline would pass first.
func (g *Guard) throttle(ctx context.Context, class OperationClass) error {
	limiter := g.limiter(class)
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fault.Wrap(fault.KindOf(ctxErr), string(class), ctxErr)
		}
		return fault.Wrap(fault.Timeout, string(class), err)
	}
	return nil
}

func (g *Guard) run(ctx context.Context, class OperationClass, fn func(ctx context.Context) error) error {
	policy := g.cfg.Retry
	var lastErr error
	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		g.metrics.GuardAttempt(string(class))

		attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.AttemptTimeout)
		err := fn(attemptCtx)
		attemptExpired := errors.Is(attemptCtx.Err(), context.DeadlineExceeded)
		cancel()
		if err == nil {
			return nil
		}

		lastErr = classify(ctx, class, err, attemptExpired)
		kind := fault.KindOf(lastErr)
		if !kind.Retryable() || ctx.Err() != nil || attempt == policy.MaxAttempts-1 {
			break
		}

		delay := policy.Delay(attempt)
		g.logger.DebugContext(ctx, "retrying remote call",
			"class", class,
			"attempt", attempt+1,
			"delay", delay,
			"error", lastErr,
		)
		if sleepErr := g.sleep(ctx, delay); sleepErr != nil {
			return fault.Wrap(fault.KindOf(sleepErr), string(class), sleepErr)
		}
	}

	return lastErr
}

// classify makes the kind of an attempt failure explicit. A caller-side
// cancellation wins over whatever the attempt returned.
func classify(ctx context.Context, class OperationClass, err error, attemptExpired bool) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		kind := fault.KindOf(ctxErr)
		if fault.KindOf(err) == kind {
			return err
		}
		return fault.Wrap(kind, string(class), err)
	}

	var fe *fault.Error
	if errors.As(err, &fe) {
		return err
	}
	if attemptExpired {
		return fault.Wrap(fault.Timeout, string(class), err)
	}
	return fault.Wrap(fault.KindOf(err), string(class), err)
}

func (g *Guard) Snapshot(class OperationClass) CircuitSnapshot {
	return g.breaker(class).Snapshot()
}

// Snapshots returns the state of every class that has seen traffic.
func (g *Guard) Snapshots() map[OperationClass]CircuitSnapshot {
	g.mu.Lock()
	classes := make([]OperationClass, 0, len(g.breakers))
	for class := range g.breakers {
		classes = append(classes, class)
	}
	g.mu.Unlock()

	sort.Slice(classes, func(i, j int) bool { return classes[i] < classes[j] })
	out := make(map[OperationClass]CircuitSnapshot, len(classes))
	for _, class := range classes {
		out[class] = g.Snapshot(class)
	}
	return out
}

func (g *Guard) breaker(class OperationClass) *CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	if b, ok := g.breakers[class]; ok {
		return b
	}

	b := NewCircuitBreaker(g.cfg.CircuitBreaker)
	b.now = func() time.Time { return g.now() }
	b.OnTransition(func(from, to CircuitStatus) {
		g.logger.Warn("circuit breaker transition", "class", class, "from", from, "to", to)
		g.metrics.CircuitTransition(string(class), string(from), string(to), to.Level())
	})
	g.breakers[class] = b
	return b
}

func (g *Guard) limiter(class OperationClass) *rate.Limiter {
	return g.limiters[class]
}

// Call is Execute for functions that return a value.
func Call[T any](ctx context.Context, g *Guard, class OperationClass, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := g.Execute(ctx, class, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package resilience

import "time"

type CircuitBreakerConfig struct {
	Enabled          bool
	FailureThreshold int
	Cooldown         time.Duration
	HalfOpenMaxReq   int
}

func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Enabled:          true,
		FailureThreshold: 5,
		Cooldown:         300 * time.Second,
		HalfOpenMaxReq:   1,
	}
}

func NormalizeCircuitBreakerConfig(cfg CircuitBreakerConfig) CircuitBreakerConfig {
	defaults := DefaultCircuitBreakerConfig()
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = defaults.FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = defaults.Cooldown
	}
	if cfg.HalfOpenMaxReq < 1 {
		cfg.HalfOpenMaxReq = defaults.HalfOpenMaxReq
	}
	return cfg
}

// RetryPolicy bounds attempts per guarded call. The delay before attempt
// n+1 is BaseDelay * 2^n, capped at MaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
	}
}

func NormalizeRetryPolicy(p RetryPolicy) RetryPolicy {
	defaults := DefaultRetryPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = defaults.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaults.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	return p
}

func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := p.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= p.MaxDelay || delay <= 0 {
			return p.MaxDelay
		}
	}
	if delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// RateLimit allows PerMinute calls with the given burst. Zero disables it.
type RateLimit struct {
	PerMinute int
	Burst     int
}

type GuardConfig struct {
	Retry          RetryPolicy
	CircuitBreaker CircuitBreakerConfig
	AttemptTimeout time.Duration
	RateLimits     map[OperationClass]RateLimit
}

func DefaultGuardConfig() GuardConfig {
	return GuardConfig{
		Retry:          DefaultRetryPolicy(),
		CircuitBreaker: DefaultCircuitBreakerConfig(),
		AttemptTimeout: 10 * time.Second,
	}
}

func NormalizeGuardConfig(cfg GuardConfig) GuardConfig {
	cfg.Retry = NormalizeRetryPolicy(cfg.Retry)
	cfg.CircuitBreaker = NormalizeCircuitBreakerConfig(cfg.CircuitBreaker)
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultGuardConfig().AttemptTimeout
	}
	return cfg
}

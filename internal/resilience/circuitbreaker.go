// Package resilience provides circuit breaker and provider failover
// primitives for the synthesis pipeline.
//
// The central type is [CircuitBreaker], a three-state breaker
// (closed → open → half-open) that keeps a failing TTS backend from being
// hammered while it is down. [SynthFallback] composes several backends with
// per-backend breakers so a failing primary is bypassed in favour of healthy
// fallbacks.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [CircuitBreaker.Execute] when the breaker is
// open and the recovery timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// BreakerState represents the current operating mode of a [CircuitBreaker].
type BreakerState int

const (
	// BreakerClosed is the normal operating state; all calls are forwarded.
	BreakerClosed BreakerState = iota

	// BreakerOpen means the breaker tripped on consecutive failures. Calls
	// are rejected with [ErrCircuitOpen] until the recovery timeout elapses.
	BreakerOpen

	// BreakerHalfOpen is the probe state entered after the recovery timeout.
	// A limited number of calls go through; success closes the breaker,
	// failure re-opens it.
	BreakerHalfOpen
)

// String returns the human-readable name of the state.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds tuning knobs for a [CircuitBreaker].
type BreakerConfig struct {
	// Name is a human-readable label used in log messages.
	Name string

	// FailureThreshold is the number of consecutive failures in the closed
	// state before the breaker opens. Default: 5.
	FailureThreshold int

	// RecoveryTimeout is how long the breaker stays open before probing
	// again. Default: 30s.
	RecoveryTimeout time.Duration

	// ProbeBudget is the maximum number of probe calls allowed in the
	// half-open state. Default: 3.
	ProbeBudget int
}

// CircuitBreaker implements the three-state circuit breaker pattern.
type CircuitBreaker struct {
	name      string
	threshold int
	recovery  time.Duration
	probes    int

	mu            sync.Mutex
	state         BreakerState
	failures      int
	lastFailure   time.Time
	probeCalls    int
	probeFailures int
}

// NewCircuitBreaker creates a [CircuitBreaker] from cfg. Zero-value fields
// are replaced with defaults.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 30 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 3
	}
	return &CircuitBreaker{
		name:      cfg.Name,
		threshold: cfg.FailureThreshold,
		recovery:  cfg.RecoveryTimeout,
		probes:    cfg.ProbeBudget,
		state:     BreakerClosed,
	}
}

// Execute runs fn if the breaker allows it. In the open state it returns
// [ErrCircuitOpen] without calling fn; in the half-open state only the probe
// budget goes through.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	probing, err := cb.allow()
	if err != nil {
		return err
	}

	err = fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if err != nil {
		cb.recordFailure(probing)
	} else {
		cb.recordSuccess(probing)
	}
	return err
}

// allow decides whether a call may proceed and reports whether it counts as
// a half-open probe.
func (cb *CircuitBreaker) allow() (probing bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerOpen:
		if time.Since(cb.lastFailure) < cb.recovery {
			return false, ErrCircuitOpen
		}
		cb.state = BreakerHalfOpen
		cb.probeCalls = 0
		cb.probeFailures = 0
		slog.Info("circuit breaker transitioning to half-open", "name", cb.name)

	case BreakerHalfOpen:
		if cb.probeCalls >= cb.probes {
			return false, ErrCircuitOpen
		}
	}

	if cb.state == BreakerHalfOpen {
		cb.probeCalls++
		return true, nil
	}
	return false, nil
}

// recordFailure handles failure accounting. Caller holds mu.
func (cb *CircuitBreaker) recordFailure(probing bool) {
	cb.lastFailure = time.Now()

	if probing {
		cb.probeFailures++
		// Any failure in half-open immediately re-opens.
		cb.state = BreakerOpen
		cb.failures = cb.threshold
		slog.Warn("circuit breaker re-opened from half-open", "name", cb.name)
		return
	}

	cb.failures++
	if cb.failures >= cb.threshold {
		cb.state = BreakerOpen
		slog.Warn("circuit breaker opened",
			"name", cb.name, "consecutive_failures", cb.failures)
	}
}

// recordSuccess handles success accounting. Caller holds mu.
func (cb *CircuitBreaker) recordSuccess(probing bool) {
	if probing {
		if cb.probeCalls-cb.probeFailures >= cb.probes {
			cb.state = BreakerClosed
			cb.failures = 0
			cb.probeCalls = 0
			cb.probeFailures = 0
			slog.Info("circuit breaker closed after successful probes", "name", cb.name)
		}
		return
	}
	cb.failures = 0
}

// State returns the current [BreakerState]. If the breaker is open and the
// recovery timeout has elapsed, the returned state is [BreakerHalfOpen] (the
// actual transition happens on the next Execute call).
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == BreakerOpen && time.Since(cb.lastFailure) >= cb.recovery {
		return BreakerHalfOpen
	}
	return cb.state
}

// Reset manually forces the breaker back to [BreakerClosed], clearing all
// failure counters.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = BreakerClosed
	cb.failures = 0
	cb.probeCalls = 0
	cb.probeFailures = 0
	slog.Info("circuit breaker manually reset", "name", cb.name)
}

// Package resilience implements the Retry & Circuit Breaker component (spec
// §4.6): a three-state breaker per provider kind plus jittered exponential
// backoff, generalizing the teacher's internal/resilience.CircuitBreaker
// from a named-entry fallback group to a ProviderKind-keyed executor.
package resilience

import (
	"log/slog"
	"sync"
	"time"

	"github.com/brightloom/aicore/pkg/coretypes"
)

const (
	defaultFailureThreshold = 5
	defaultSuccessThreshold = 2
	defaultOpenDuration     = 30 * time.Second
)

// breaker is the three-state machine from spec §4.6, scoped to one provider
// kind. Unlike the teacher's CircuitBreaker (a single probe budget in
// half-open), this breaker counts successes toward successThreshold and
// re-opens immediately on any half-open failure, matching §4.6 step 3
// exactly.
type breaker struct {
	mu sync.Mutex

	state            coretypes.BreakerState
	failureThreshold int
	successThreshold int
	openDuration     time.Duration

	consecutiveFail int
	halfOpenSuccess int
	openedAt        time.Time
}

func newBreaker() *breaker {
	return &breaker{
		state:            coretypes.BreakerClosed,
		failureThreshold: defaultFailureThreshold,
		successThreshold: defaultSuccessThreshold,
		openDuration:     defaultOpenDuration,
	}
}

// admit reports whether a call should proceed, transitioning Open->HalfOpen
// when the open duration has elapsed. Must be called before every attempt.
func (b *breaker) admit(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == coretypes.BreakerOpen {
		if time.Since(b.openedAt) < b.openDuration {
			return false
		}
		b.state = coretypes.BreakerHalfOpen
		b.halfOpenSuccess = 0
		slog.Info("circuit breaker transitioning to half-open", "provider", name)
	}
	return true
}

func (b *breaker) recordSuccess(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case coretypes.BreakerHalfOpen:
		b.halfOpenSuccess++
		if b.halfOpenSuccess >= b.successThreshold {
			b.state = coretypes.BreakerClosed
			b.consecutiveFail = 0
			slog.Info("circuit breaker closed after successful probes", "provider", name)
		}
	case coretypes.BreakerClosed:
		b.consecutiveFail = 0
	}
}

func (b *breaker) recordFailure(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case coretypes.BreakerHalfOpen:
		b.state = coretypes.BreakerOpen
		b.openedAt = time.Now()
		slog.Warn("circuit breaker re-opened from half-open", "provider", name)
	case coretypes.BreakerClosed:
		b.consecutiveFail++
		if b.consecutiveFail >= b.failureThreshold {
			b.state = coretypes.BreakerOpen
			b.openedAt = time.Now()
			slog.Warn("circuit breaker opened", "provider", name, "consecutive_failures", b.consecutiveFail)
		}
	}
}

func (b *breaker) currentState() coretypes.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == coretypes.BreakerOpen && time.Since(b.openedAt) >= b.openDuration {
		return coretypes.BreakerHalfOpen
	}
	return b.state
}

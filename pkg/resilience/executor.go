package resilience

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/brightloom/aicore/pkg/coretypes"
	"github.com/brightloom/aicore/pkg/gatewayerr"
	"github.com/brightloom/aicore/pkg/observe"
)

// Executor runs provider calls through a per-ProviderKind retry policy and
// circuit breaker (spec §4.6's retry_execute). Kinds are registered lazily
// on first use with the supplied or default RetryPolicy.
type Executor struct {
	mu       sync.Mutex
	breakers map[coretypes.ProviderKind]*breaker
	stats    map[coretypes.ProviderKind]*stats
	policies map[coretypes.ProviderKind]coretypes.RetryPolicy
	metrics  *observe.Metrics
}

// NewExecutor constructs an empty Executor using observe.DefaultMetrics().
// Kinds default to coretypes.DefaultRetryPolicy() unless overridden with
// SetPolicy.
func NewExecutor() *Executor {
	return NewExecutorWithMetrics(observe.DefaultMetrics())
}

// NewExecutorWithMetrics constructs an Executor that reports retry/circuit
// activity through m, letting callers supply a test-scoped MeterProvider's
// Metrics instead of the process-wide default.
func NewExecutorWithMetrics(m *observe.Metrics) *Executor {
	return &Executor{
		breakers: make(map[coretypes.ProviderKind]*breaker),
		stats:    make(map[coretypes.ProviderKind]*stats),
		policies: make(map[coretypes.ProviderKind]coretypes.RetryPolicy),
		metrics:  m,
	}
}

// SetPolicy overrides the retry policy for kind (spec §4.6: "per-provider
// overrides: longer max-delay for one family, higher max_retries for
// another, higher base_delay for free-tier endpoints").
func (e *Executor) SetPolicy(kind coretypes.ProviderKind, policy coretypes.RetryPolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[kind] = policy
}

func (e *Executor) entry(kind coretypes.ProviderKind) (*breaker, *stats, coretypes.RetryPolicy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	b, ok := e.breakers[kind]
	if !ok {
		b = newBreaker()
		e.breakers[kind] = b
	}
	s, ok := e.stats[kind]
	if !ok {
		s = &stats{}
		e.stats[kind] = s
	}
	policy, ok := e.policies[kind]
	if !ok {
		policy = coretypes.DefaultRetryPolicy()
		e.policies[kind] = policy
	}
	return b, s, policy
}

// Statistics returns the current snapshot for kind, or a zero-value
// Statistics if kind has never been executed.
func (e *Executor) Statistics(kind coretypes.ProviderKind) Statistics {
	b, s, _ := e.entry(kind)
	return s.snapshot(b.currentState())
}

// Execute runs fn under kind's breaker and retry policy, per spec §4.6:
//  1. An Open breaker whose duration has not elapsed rejects immediately
//     with RateLimit.
//  2. On success, record and return.
//  3. On a non-retryable error, or once retries are exhausted, record a
//     failure and return the error.
//  4. Otherwise sleep for an exponential, jittered backoff and retry.
func (e *Executor) Execute(ctx context.Context, kind coretypes.ProviderKind, fn func() error) error {
	b, s, policy := e.entry(kind)
	name := string(kind)

	if !b.admit(name) {
		s.recordRejection()
		e.metrics.RecordCircuitRejection(ctx, name)
		return gatewayerr.New(coretypes.ErrRateLimit, "circuit breaker open for "+name)
	}

	var totalDelay time.Duration
	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			b.recordSuccess(name)
			s.recordAttemptOutcome(true, attempt, totalDelay)
			e.metrics.RecordProviderRequest(ctx, name, "success")
			return nil
		}

		var gwErr *gatewayerr.Error
		retryable := errors.As(lastErr, &gwErr) && isRetryableForPolicy(gwErr.Kind, policy)
		if !retryable || attempt >= policy.MaxRetries {
			b.recordFailure(name)
			s.recordAttemptOutcome(false, attempt, totalDelay)
			e.metrics.RecordProviderRequest(ctx, name, "failure")
			if gwErr != nil {
				e.metrics.RecordProviderError(ctx, name, string(gwErr.Kind))
			}
			return lastErr
		}

		e.metrics.RecordRetry(ctx, name)
		delay := backoffDelay(policy, attempt)
		totalDelay += delay
		if err := interruptibleSleep(ctx, delay); err != nil {
			b.recordFailure(name)
			s.recordAttemptOutcome(false, attempt, totalDelay)
			e.metrics.RecordProviderRequest(ctx, name, "failure")
			return err
		}
	}
}

func isRetryableForPolicy(kind coretypes.ErrorKind, policy coretypes.RetryPolicy) bool {
	switch kind {
	case coretypes.ErrTimeout:
		return policy.RetryOnTimeout
	case coretypes.ErrRateLimit:
		return policy.RetryOnRateLimit
	case coretypes.ErrOverloaded:
		return policy.RetryOnServerErr
	case coretypes.ErrNetwork:
		return true
	default:
		return false
	}
}

// backoffDelay computes min(max_delay, base_delay * multiplier^attempt)
// perturbed by uniform jitter in [-jitter/2, +jitter/2], per spec §4.6's
// invariant delay ∈ [base·mult^n·(1−jitter), min(max, base·mult^n·(1+jitter))].
func backoffDelay(policy coretypes.RetryPolicy, attempt int) time.Duration {
	base := float64(policy.BaseDelay)
	delay := base * pow(policy.BackoffMultiplier, attempt)
	maxDelay := float64(policy.MaxDelay)
	if delay > maxDelay {
		delay = maxDelay
	}

	jitterSpan := delay * policy.JitterFactor
	jitter := (rand.Float64() - 0.5) * jitterSpan
	delay += jitter
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// interruptibleSleep blocks for d or until ctx is cancelled, whichever comes
// first, replacing the source's sig_atomic_t-style cancel flag with ctx
// cancellation for the retry path (spec §9 "Cancellation").
func interruptibleSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

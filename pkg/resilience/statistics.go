package resilience

import (
	"sync"
	"time"

	"github.com/brightloom/aicore/pkg/coretypes"
)

// Statistics is a point-in-time snapshot of one provider kind's retry and
// breaker history (spec §4.6: "total_requests, successful, failed, retried,
// total_retries, circuit_rejections, accumulated_delay, derived
// success_rate, average retry delay, current state").
type Statistics struct {
	TotalRequests     uint64
	Successful        uint64
	Failed            uint64
	Retried           uint64
	TotalRetries      uint64
	CircuitRejections uint64
	AccumulatedDelay  time.Duration
	State             coretypes.BreakerState
}

// SuccessRate returns Successful/TotalRequests, or 0 when no requests have
// been made.
func (s Statistics) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.Successful) / float64(s.TotalRequests)
}

// AverageRetryDelay returns AccumulatedDelay/TotalRetries, or 0 when no
// retries have occurred.
func (s Statistics) AverageRetryDelay() time.Duration {
	if s.TotalRetries == 0 {
		return 0
	}
	return s.AccumulatedDelay / time.Duration(s.TotalRetries)
}

// stats is the mutable, mutex-guarded accumulator backing one provider
// kind's Statistics snapshot. Each provider kind's accumulator has its own
// mutex; no single mutex is shared across the entries of different kinds.
type stats struct {
	mu sync.Mutex
	Statistics
}

func (s *stats) recordAttemptOutcome(succeeded bool, retriesUsed int, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalRequests++
	if succeeded {
		s.Successful++
	} else {
		s.Failed++
	}
	if retriesUsed > 0 {
		s.Retried++
		s.TotalRetries += uint64(retriesUsed)
	}
	s.AccumulatedDelay += delay
}

func (s *stats) recordRejection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.TotalRequests++
	s.CircuitRejections++
}

func (s *stats) snapshot(state coretypes.BreakerState) Statistics {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.Statistics
	out.State = state
	return out
}

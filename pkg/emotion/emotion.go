// Package emotion implements the Emotion & Activity Heuristics component
// (spec component K): a sliding window of per-buffer mean amplitudes,
// recomputed on a fixed cadence into a courtesy EmotionLabel. The
// age-bounded sliding window is grounded in the teacher's
// internal/agent/orchestrator.UtteranceBuffer eviction strategy, generalized
// from utterance entries to bare amplitude samples.
package emotion

import (
	"math"
	"sync"
	"time"

	"github.com/brightloom/aicore/pkg/coretypes"
)

// WindowDuration is how far back the sliding window of amplitude samples
// extends (spec §4.10, "≈4 seconds").
const WindowDuration = 4 * time.Second

// RecomputeInterval is the cadence at which the window is reclassified
// (spec §4.10, "Every 2 seconds").
const RecomputeInterval = 2 * time.Second

// Thresholds are the tunable constants gating classification (spec §4.10).
// Field names mirror the spec's H1/H2/H3/L1/L2 notation.
type Thresholds struct {
	H1 float64 // excitement mean-amplitude floor
	H2 float64 // excitement std-amplitude floor
	L1 float64 // boredom mean-amplitude ceiling
	L2 float64 // boredom std-amplitude ceiling
	H3 float64 // curiosity/confusion std-amplitude floor
}

// DefaultThresholds are reasonable starting constants for a 0-1 normalized
// amplitude scale, tuned so that typical conversational speech lands in
// neutral and sustained loud/erratic input reads as excitement.
func DefaultThresholds() Thresholds {
	return Thresholds{H1: 0.5, H2: 0.2, L1: 0.1, L2: 0.05, H3: 0.3}
}

type sample struct {
	amp float32
	at  time.Time
}

// Detector maintains the sliding window and the last-computed label. One
// Detector per realtime session.
type Detector struct {
	mu         sync.Mutex
	thresholds Thresholds
	samples    []sample
	lastLabel  coretypes.EmotionLabel
	lastCompute time.Time
}

// New constructs a Detector with thresholds.
func New(thresholds Thresholds) *Detector {
	return &Detector{thresholds: thresholds, lastLabel: coretypes.EmotionNeutral}
}

// Tick records one buffer's mean amplitude, evicts samples older than
// WindowDuration, and recomputes the label if RecomputeInterval has
// elapsed since the last computation. now is supplied by the caller so
// tests can drive the cadence deterministically.
func (d *Detector) Tick(meanAmp float32, now time.Time) coretypes.EmotionLabel {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.samples = append(d.samples, sample{amp: meanAmp, at: now})
	d.evict(now)

	if d.lastCompute.IsZero() || now.Sub(d.lastCompute) >= RecomputeInterval {
		d.lastLabel = classify(d.samples, d.thresholds)
		d.lastCompute = now
	}
	return d.lastLabel
}

// Current returns the most recently computed label without recording a new
// sample.
func (d *Detector) Current() coretypes.EmotionLabel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastLabel
}

// evict drops samples older than WindowDuration relative to now. Must be
// called with d.mu held.
func (d *Detector) evict(now time.Time) {
	cutoff := now.Add(-WindowDuration)
	start := 0
	for start < len(d.samples) && d.samples[start].at.Before(cutoff) {
		start++
	}
	if start == 0 {
		return
	}
	fresh := make([]sample, len(d.samples)-start)
	copy(fresh, d.samples[start:])
	d.samples = fresh
}

// classify computes mean_amp and std_amp over samples and applies the
// spec §4.10 decision tree: excitement, boredom, curiosity, confusion, or
// neutral.
func classify(samples []sample, t Thresholds) coretypes.EmotionLabel {
	if len(samples) == 0 {
		return coretypes.EmotionNeutral
	}

	var sum float64
	for _, s := range samples {
		sum += float64(s.amp)
	}
	mean := sum / float64(len(samples))

	var sumSq float64
	for _, s := range samples {
		d := float64(s.amp) - mean
		sumSq += d * d
	}
	std := math.Sqrt(sumSq / float64(len(samples)))

	switch {
	case mean > t.H1 && std > t.H2:
		return coretypes.EmotionExcitement
	case mean < t.L1 && std < t.L2:
		return coretypes.EmotionBoredom
	case std > t.H3 && mean >= t.L1 && mean <= t.H1:
		return coretypes.EmotionCuriosity
	case std > t.H3 && mean < t.L1:
		return coretypes.EmotionConfusion
	default:
		return coretypes.EmotionNeutral
	}
}

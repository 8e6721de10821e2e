// Package audioengine implements the Audio Engine (spec component J): the
// capture-side pipeline that validates, resamples, and PCM16-encodes raw
// microphone buffers for transmission, plus the playback-side pipeline that
// decodes and schedules incoming PCM16 frames. Resampling and PCM16
// conversion are grounded in the teacher's pkg/audio.FormatConverter and
// ResampleMono16/ResampleStereo16; level metering generalizes the validation
// threshold constants already carried in coretypes.
package audioengine

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/brightloom/aicore/pkg/coretypes"
)

// WireSampleRate is the PCM16 wire format's fixed sample rate (spec §4.9).
const WireSampleRate = 24000

// logEveryNDrops caps how often a dropped-buffer warning is logged, matching
// the teacher's sync.Once-per-mismatch logging discipline generalized to a
// periodic counter (spec §4.9 step 1: "log at most every 100 drops").
const logEveryNDrops = 100

// Pipeline owns the capture-side validate→resample→convert→enqueue chain and
// the mirrored playback-side decode→schedule chain. Create one per realtime
// session; not designed for use across multiple concurrent sessions.
type Pipeline struct {
	inputLevels  coretypes.LevelMeter
	outputLevels coretypes.LevelMeter

	dropCount       atomic.Int64
	playbackStarted atomic.Bool
	playbackCount   atomic.Int64

	prevInputBars  [coretypes.NBars]float32
	prevOutputBars [coretypes.NBars]float32
	mu             sync.Mutex

	onEncoded func(pcm16 []byte)
	onPlay    func(samples []float32)
}

// Option configures a Pipeline at construction.
type Option func(*Pipeline)

// WithEncodedHandler registers the callback invoked with each successfully
// validated and encoded PCM16 frame (spec §4.9 step 5, "hand off to the
// session for transmission").
func WithEncodedHandler(fn func(pcm16 []byte)) Option {
	return func(p *Pipeline) { p.onEncoded = fn }
}

// WithPlaybackHandler registers the callback invoked with each decoded
// playback buffer, in float32 samples ready for a player node.
func WithPlaybackHandler(fn func(samples []float32)) Option {
	return func(p *Pipeline) { p.onPlay = fn }
}

// New constructs a Pipeline.
func New(opts ...Option) *Pipeline {
	p := &Pipeline{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// InputLevels returns a read-only snapshot of the input level-meter bars.
func (p *Pipeline) InputLevels() coretypes.LevelSnapshot { return p.inputLevels.Snapshot() }

// OutputLevels returns a read-only snapshot of the output level-meter bars.
func (p *Pipeline) OutputLevels() coretypes.LevelSnapshot { return p.outputLevels.Snapshot() }

// DropCount returns the number of capture buffers dropped by validation or
// post-conversion silence checks.
func (p *Pipeline) DropCount() int64 { return p.dropCount.Load() }

// PlaybackBufferCount returns the number of playback buffers scheduled.
func (p *Pipeline) PlaybackBufferCount() int64 { return p.playbackCount.Load() }

// PlaybackStarted reports whether the player node has been lazily started.
func (p *Pipeline) PlaybackStarted() bool { return p.playbackStarted.Load() }

// ProcessCapture runs one captured buffer through validate→resample→
// convert→verify→enqueue→meter (spec §4.9 steps 1-6). inRate is the
// platform-native capture sample rate; samples are planar mono float32 in
// [-1, 1]. Returns the encoded PCM16 bytes, or nil if the buffer was
// dropped.
func (p *Pipeline) ProcessCapture(samples []float32, inRate int) []byte {
	if !p.validate(samples) {
		p.recordDrop()
		return nil
	}

	resampled := resampleMonoFloat(samples, inRate, WireSampleRate)
	pcm16 := encodePCM16(resampled)

	if allZeroBytes(pcm16) {
		p.recordDrop()
		return nil
	}

	p.meterInput(resampled)
	if p.onEncoded != nil {
		p.onEncoded(pcm16)
	}
	return pcm16
}

// validate scans up to 100 leading samples for the non-silence and peak
// thresholds (spec §4.9 step 1).
func (p *Pipeline) validate(samples []float32) bool {
	n := len(samples)
	if n > 100 {
		n = 100
	}
	var peak float32
	hasAboveThreshold := false
	for i := 0; i < n; i++ {
		v := samples[i]
		if v < 0 {
			v = -v
		}
		if v > coretypes.ValiditySampleThreshold {
			hasAboveThreshold = true
		}
		if v > peak {
			peak = v
		}
	}
	return hasAboveThreshold && peak > coretypes.PeakThreshold
}

func (p *Pipeline) recordDrop() {
	n := p.dropCount.Add(1)
	if n%logEveryNDrops == 0 {
		slog.Warn("audio engine: dropping capture buffers", "total_drops", n)
	}
}

// resampleMonoFloat linearly interpolates samples from srcRate to dstRate,
// clamping each output sample to [-1, 1] (spec §4.9 step 2), mirroring the
// teacher's ResampleMono16 algorithm on a float32 source instead of int16
// PCM bytes.
func resampleMonoFloat(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	srcLen := len(samples)
	ratio := float64(dstRate) / float64(srcRate)
	dstLen := int(math.Ceil(float64(srcLen) * ratio))
	if dstLen == 0 {
		return nil
	}

	out := make([]float32, dstLen)
	stepRatio := float64(srcRate) / float64(dstRate)
	for i := 0; i < dstLen; i++ {
		srcPos := float64(i) * stepRatio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		s0 := samples[srcIdx]
		s1 := s0
		if srcIdx+1 < srcLen {
			s1 = samples[srcIdx+1]
		}

		v := float32(float64(s0)*(1-frac) + float64(s1)*frac)
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = v
	}
	return out
}

// encodePCM16 clamps each sample to [-1, 1], multiplies it by 32767,
// truncates to signed 16-bit, and little-endian encodes it (spec §4.9
// step 3).
func encodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		v := int16(s * 32767)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

func allZeroBytes(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// ProcessPlayback decodes a base64-free raw PCM16 buffer, deinterleaves it
// if channels > 1, converts to float32, and schedules it on the player node
// (spec §4.9 "Playback"). Empty buffers and zero-frame buffers are
// rejected. The player is started lazily on first valid buffer.
func (p *Pipeline) ProcessPlayback(pcm16 []byte, channels int) {
	if len(pcm16) == 0 || channels <= 0 {
		return
	}
	frameBytes := 2 * channels
	if len(pcm16) < frameBytes {
		return
	}

	mono := decodePCM16Mono(pcm16, channels)
	if len(mono) == 0 {
		return
	}

	p.playbackStarted.Store(true)
	p.playbackCount.Add(1)
	p.meterOutput(mono)

	if p.onPlay != nil {
		p.onPlay(mono)
	}
}

// decodePCM16Mono little-endian-decodes interleaved PCM16 into float32
// samples in [-1, 1], averaging multi-channel frames down to mono for level
// metering and playback scheduling (mirrors the teacher's StereoToMono
// averaging approach, generalized to N channels).
func decodePCM16Mono(pcm16 []byte, channels int) []float32 {
	frameBytes := 2 * channels
	frames := len(pcm16) / frameBytes
	if frames == 0 {
		return nil
	}

	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum int32
		for c := 0; c < channels; c++ {
			off := i*frameBytes + c*2
			sample := int16(pcm16[off]) | int16(pcm16[off+1])<<8
			sum += int32(sample)
		}
		avg := sum / int32(channels)
		out[i] = float32(avg) / 32768
	}
	return out
}

// meterInput partitions resampled into NBars bars, computes a blended
// RMS/peak level per bar, amplifies, clamps, and smooths against the
// previous snapshot (spec §4.9 step 6).
func (p *Pipeline) meterInput(samples []float32) {
	bars := levelBars(samples)
	p.mu.Lock()
	smoothed := smoothBars(p.prevInputBars, bars)
	p.prevInputBars = smoothed
	p.mu.Unlock()
	p.inputLevels.SetInput(smoothed)
}

func (p *Pipeline) meterOutput(samples []float32) {
	bars := levelBars(samples)
	p.mu.Lock()
	smoothed := smoothBars(p.prevOutputBars, bars)
	p.prevOutputBars = smoothed
	p.mu.Unlock()
	p.outputLevels.SetOutput(smoothed)
}

// gain approximates the spec's "amplify (gain ≈ 5–8)" instruction.
const gain = 6.0

func levelBars(samples []float32) [coretypes.NBars]float32 {
	var bars [coretypes.NBars]float32
	if len(samples) == 0 {
		return bars
	}
	perBar := len(samples) / coretypes.NBars
	if perBar == 0 {
		perBar = 1
	}
	for bar := 0; bar < coretypes.NBars; bar++ {
		start := bar * perBar
		if start >= len(samples) {
			break
		}
		end := start + perBar
		if end > len(samples) {
			end = len(samples)
		}

		var sumSquares float64
		var peak float32
		for _, s := range samples[start:end] {
			sumSquares += float64(s) * float64(s)
			abs := s
			if abs < 0 {
				abs = -abs
			}
			if abs > peak {
				peak = abs
			}
		}
		rms := float32(0)
		if end > start {
			rms = float32(math.Sqrt(sumSquares / float64(end-start)))
		}

		level := (0.7*rms + 0.3*peak) * gain
		if level > 1 {
			level = 1
		} else if level < 0 {
			level = 0
		}
		bars[bar] = level
	}
	return bars
}

// smoothBars applies the spec's exponential smoothing: new = 0.15*prev +
// 0.85*sample (spec §4.9 step 6).
func smoothBars(prev, sample [coretypes.NBars]float32) [coretypes.NBars]float32 {
	var out [coretypes.NBars]float32
	for i := range out {
		out[i] = 0.15*prev[i] + 0.85*sample[i]
	}
	return out
}

package audioengine

import (
	"math"
	"testing"
)

func silentBuffer(n int) []float32 {
	return make([]float32, n)
}

func toneBuffer(n int, amplitude float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = amplitude
	}
	return out
}

func TestProcessCaptureDropsSilentBuffer(t *testing.T) {
	p := New()
	got := p.ProcessCapture(silentBuffer(200), 48000)
	if got != nil {
		t.Errorf("ProcessCapture(silence) = %v, want nil", got)
	}
	if p.DropCount() != 1 {
		t.Errorf("DropCount() = %d, want 1", p.DropCount())
	}
}

func TestProcessCaptureDropsBelowPeakThreshold(t *testing.T) {
	p := New()
	// Above the sample threshold (0.001) but below the peak threshold (0.01).
	got := p.ProcessCapture(toneBuffer(200, 0.005), 48000)
	if got != nil {
		t.Errorf("ProcessCapture(quiet) = %v, want nil", got)
	}
}

func TestProcessCapturePassesLoudBuffer(t *testing.T) {
	var encoded []byte
	p := New(WithEncodedHandler(func(pcm16 []byte) { encoded = pcm16 }))

	got := p.ProcessCapture(toneBuffer(4800, 0.5), 48000)
	if got == nil {
		t.Fatal("ProcessCapture(loud) = nil, want encoded bytes")
	}
	if len(encoded) == 0 {
		t.Error("expected onEncoded handler to be invoked")
	}
	if p.DropCount() != 0 {
		t.Errorf("DropCount() = %d, want 0", p.DropCount())
	}
}

func TestProcessCaptureResamplesToWireRate(t *testing.T) {
	p := New()
	// 48kHz input over 0.1s = 4800 samples; at 24kHz wire rate that's 2400
	// samples -> 4800 bytes of PCM16.
	got := p.ProcessCapture(toneBuffer(4800, 0.5), 48000)
	if len(got) != 4800 {
		t.Errorf("len(encoded) = %d, want 4800 (2400 samples * 2 bytes)", len(got))
	}
}

func TestProcessCaptureNoResampleWhenRateMatches(t *testing.T) {
	p := New()
	got := p.ProcessCapture(toneBuffer(2400, 0.5), WireSampleRate)
	if len(got) != 4800 {
		t.Errorf("len(encoded) = %d, want 4800", len(got))
	}
}

func TestEncodePCM16ClampsAndEncodesLittleEndian(t *testing.T) {
	samples := []float32{1.0, -1.0, 0.0}
	out := encodePCM16(samples)
	if len(out) != 6 {
		t.Fatalf("len(out) = %d, want 6", len(out))
	}
	v0 := int16(out[0]) | int16(out[1])<<8
	if v0 != 32767 {
		t.Errorf("v0 = %d, want 32767", v0)
	}

	over := encodePCM16([]float32{1.5, -1.5})
	if hi, lo := int16(over[0])|int16(over[1])<<8, int16(over[2])|int16(over[3])<<8; hi != 32767 || lo != -32767 {
		t.Errorf("clamped = (%d, %d), want (32767, -32767)", hi, lo)
	}
}

func TestInputLevelsReflectCaptureActivity(t *testing.T) {
	p := New()
	p.ProcessCapture(toneBuffer(4800, 0.5), 48000)
	snap := p.InputLevels()
	var anyNonZero bool
	for _, v := range snap.Input {
		if v > 0 {
			anyNonZero = true
			break
		}
	}
	if !anyNonZero {
		t.Error("expected at least one non-zero input level bar")
	}
}

func TestProcessPlaybackRejectsEmptyBuffer(t *testing.T) {
	p := New()
	p.ProcessPlayback(nil, 1)
	if p.PlaybackStarted() {
		t.Error("expected player not to start on empty buffer")
	}
	if p.PlaybackBufferCount() != 0 {
		t.Errorf("PlaybackBufferCount() = %d, want 0", p.PlaybackBufferCount())
	}
}

func TestProcessPlaybackStartsPlayerLazily(t *testing.T) {
	var played []float32
	p := New(WithPlaybackHandler(func(samples []float32) { played = samples }))

	pcm16 := encodePCM16(toneBuffer(100, 0.5))
	p.ProcessPlayback(pcm16, 1)

	if !p.PlaybackStarted() {
		t.Error("expected player to start on first valid buffer")
	}
	if p.PlaybackBufferCount() != 1 {
		t.Errorf("PlaybackBufferCount() = %d, want 1", p.PlaybackBufferCount())
	}
	if len(played) != 100 {
		t.Errorf("len(played) = %d, want 100", len(played))
	}
}

func TestProcessPlaybackDeinterleavesStereo(t *testing.T) {
	// Two stereo frames: (1.0, -1.0), (0.5, -0.5) -> mono averages ~(0, 0).
	mono := []float32{1.0, -1.0, 0.5, -0.5}
	pcm16 := encodePCM16(mono)

	var played []float32
	p := New(WithPlaybackHandler(func(samples []float32) { played = samples }))
	p.ProcessPlayback(pcm16, 2)

	if len(played) != 2 {
		t.Fatalf("len(played) = %d, want 2 stereo frames collapsed to mono", len(played))
	}
	for i, v := range played {
		if math.Abs(float64(v)) > 0.01 {
			t.Errorf("played[%d] = %v, want near 0", i, v)
		}
	}
}

func TestOutputLevelsReflectPlaybackActivity(t *testing.T) {
	p := New()
	pcm16 := encodePCM16(toneBuffer(100, 0.5))
	p.ProcessPlayback(pcm16, 1)

	snap := p.OutputLevels()
	var anyNonZero bool
	for _, v := range snap.Output {
		if v > 0 {
			anyNonZero = true
			break
		}
	}
	if !anyNonZero {
		t.Error("expected at least one non-zero output level bar")
	}
}

func TestResampleMonoFloatIdentityWhenRatesMatch(t *testing.T) {
	in := toneBuffer(10, 0.3)
	out := resampleMonoFloat(in, 24000, 24000)
	if len(out) != len(in) {
		t.Errorf("len(out) = %d, want %d", len(out), len(in))
	}
}

func TestResampleMonoFloatCeilsNonExactRatio(t *testing.T) {
	// 44100 -> 24000 is a non-exact ratio; 100 input frames scale to
	// 100*24000/44100 = 54.42, which must round up to 55, not floor to 54
	// (spec invariant: ceil(in_frames * dst_rate/src_rate) output frames).
	in := toneBuffer(100, 0.3)
	out := resampleMonoFloat(in, 44100, 24000)
	if len(out) != 55 {
		t.Errorf("len(out) = %d, want 55", len(out))
	}
}

func TestLevelBarsEmptySamplesReturnsZeroBars(t *testing.T) {
	bars := levelBars(nil)
	for i, v := range bars {
		if v != 0 {
			t.Errorf("bars[%d] = %v, want 0", i, v)
		}
	}
}

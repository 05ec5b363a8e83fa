package audio_test

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/MrWong99/attune/pkg/audio"
)

// samplesToBytes converts a slice of int16 samples to little-endian byte representation.
func samplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

func TestFromPCM16_Mono(t *testing.T) {
	ts := time.Unix(100, 0)
	f, err := audio.FromPCM16(audio.PCM{
		Data:       samplesToBytes([]int16{0, 16384, -32768, 32767}),
		SampleRate: 16000,
		Channels:   1,
		Timestamp:  ts,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []float64{0, 0.5, -1, 32767.0 / 32768}
	if f.Len() != len(want) {
		t.Fatalf("len = %d, want %d", f.Len(), len(want))
	}
	for i := range want {
		if math.Abs(f.Samples[i]-want[i]) > 1e-9 {
			t.Errorf("sample %d = %v, want %v", i, f.Samples[i], want[i])
		}
	}
	if f.SampleRate != 16000 || !f.Timestamp.Equal(ts) {
		t.Errorf("metadata not carried over: %+v", f)
	}
}

func TestFromPCM16_StereoDownmix(t *testing.T) {
	f, err := audio.FromPCM16(audio.PCM{
		Data:     samplesToBytes([]int16{100, 200, -100, -200}),
		Channels: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.Len() != 2 {
		t.Fatalf("len = %d, want 2", f.Len())
	}
	if got := f.Samples[0] * 32768; math.Abs(got-150) > 1e-9 {
		t.Errorf("sample 0 = %v, want 150/32768", got)
	}
}

func TestFromPCM16_Errors(t *testing.T) {
	if _, err := audio.FromPCM16(audio.PCM{Data: []byte{1, 2, 3}, Channels: 1}); !errors.Is(err, audio.ErrOddLength) {
		t.Errorf("odd length: err = %v, want ErrOddLength", err)
	}
	if _, err := audio.FromPCM16(audio.PCM{Data: []byte{1, 2}, Channels: 6}); err == nil {
		t.Error("expected error for 6 channels")
	}
}

func TestToPCM16_RoundTripAndClip(t *testing.T) {
	in := audio.Frame{Samples: []float64{0, 0.5, -0.5, 2, math.NaN()}}
	got := bytesToSamples(audio.ToPCM16(in))
	want := []int16{0, 16384, -16384, 32767, 0}
	for i := range want {
		if d := int(got[i]) - int(want[i]); d < -1 || d > 1 {
			t.Errorf("sample %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestFrame_ValidateAndDuration(t *testing.T) {
	f := audio.Frame{Samples: make([]float64, 8000), SampleRate: 16000}
	if f.Duration() != 500*time.Millisecond {
		t.Errorf("duration = %v, want 500ms", f.Duration())
	}
	if err := f.Validate(); err != nil {
		t.Errorf("silence should validate: %v", err)
	}
	f.Samples[10] = math.Inf(-1)
	if err := f.Validate(); err == nil {
		t.Error("expected error for -Inf sample")
	}
	if (audio.Frame{Samples: []float64{0}}).Duration() != 0 {
		t.Error("duration with unknown rate should be zero")
	}
}

func TestNormalizer_ResamplesAndDownmixes(t *testing.T) {
	n := audio.Normalizer{SampleRate: 16000}
	stereo := make([]int16, 48000*2/10) // 100ms at 48 kHz stereo
	f, err := n.Normalize(audio.PCM{Data: samplesToBytes(stereo), SampleRate: 48000, Channels: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.SampleRate != 16000 {
		t.Errorf("rate = %d, want 16000", f.SampleRate)
	}
	if f.Len() != 1600 {
		t.Errorf("len = %d, want 1600", f.Len())
	}
	if _, err := n.Normalize(audio.PCM{Data: []byte{1}, Channels: 1}); !errors.Is(err, audio.ErrOddLength) {
		t.Errorf("err = %v, want ErrOddLength", err)
	}
}

func TestStereoToMono(t *testing.T) {
	mono := audio.StereoToMono(samplesToBytes([]int16{100, 200, -100, -200}))
	got := bytesToSamples(mono)
	want := []int16{150, -150}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d: got %d, want %d", i, got[i], want[i])
		}
	}
}

func TestResampleMono16(t *testing.T) {
	pcm := samplesToBytes([]int16{0, 100, 200, 300})
	up := bytesToSamples(audio.ResampleMono16(pcm, 8000, 16000))
	if len(up) != 8 {
		t.Fatalf("upsampled len = %d, want 8", len(up))
	}
	if up[1] != 50 {
		t.Errorf("interpolated sample = %d, want 50", up[1])
	}
	for _, rates := range [][2]int{{0, 16000}, {16000, 0}, {-1, 16000}, {16000, 16000}} {
		if out := audio.ResampleMono16(pcm, rates[0], rates[1]); len(out) != len(pcm) {
			t.Errorf("rates %v: expected unchanged output, got len %d", rates, len(out))
		}
	}
}

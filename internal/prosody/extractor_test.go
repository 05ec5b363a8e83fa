package prosody_test

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/MrWong99/attune/internal/prosody"
	"github.com/MrWong99/attune/pkg/affect"
	"github.com/MrWong99/attune/pkg/audio"
)

// sine returns n samples of a sine wave at hz with the given amplitude.
func sine(n, rate int, hz, amp float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*hz*float64(i)/float64(rate))
	}
	return out
}

// agitated alternates silent chunks with full-scale square-wave chunks, the
// most unstable frame the extractor can see.
func agitated(chunks, size int) []float64 {
	out := make([]float64, chunks*size)
	for c := 1; c < chunks; c += 2 {
		for i := 0; i < size; i++ {
			v := 1.0
			if i%2 == 1 {
				v = -1
			}
			out[c*size+i] = v
		}
	}
	return out
}

func inRange(t *testing.T, p affect.ProsodyFeatures) {
	t.Helper()
	fields := map[string]float64{
		"pitchVariation": p.PitchVariation, "rhythm": p.Rhythm, "tempo": p.Tempo,
		"tremor": p.Tremor, "clarity": p.Clarity, "breathiness": p.Breathiness,
		"resonance": p.Resonance, "stability": p.Stability, "energy": p.Energy,
	}
	for name, v := range fields {
		if v < 0 || v > 1 || math.IsNaN(v) {
			t.Errorf("%s = %v, want within [0,1]", name, v)
		}
	}
	if p.Intonation < -1 || p.Intonation > 1 {
		t.Errorf("intonation = %v, want within [-1,1]", p.Intonation)
	}
	if math.Abs(p.Stability-(1-p.Tremor)) > 1e-12 {
		t.Errorf("stability %v != 1 - tremor %v", p.Stability, p.Tremor)
	}
}

func TestExtract_DegenerateInput(t *testing.T) {
	t.Parallel()
	ex := prosody.New()
	for name, samples := range map[string][]float64{
		"nil":   nil,
		"empty": {},
		"zeros": make([]float64, 2048),
	} {
		got, err := ex.Extract(audio.Frame{Samples: samples, SampleRate: 16000})
		if err != nil {
			t.Errorf("%s: unexpected error %v", name, err)
		}
		if got != affect.NeutralProsody() {
			t.Errorf("%s: got %+v, want neutral", name, got)
		}
	}
}

func TestExtract_NonFinite(t *testing.T) {
	t.Parallel()
	samples := sine(1024, 16000, 200, 0.3)
	samples[17] = math.NaN()
	_, err := prosody.New().Extract(audio.Frame{Samples: samples})
	if !errors.Is(err, affect.ErrInput) {
		t.Fatalf("err = %v, want ErrInput", err)
	}
	var ie *affect.InputError
	if !errors.As(err, &ie) {
		t.Fatalf("err %T is not *affect.InputError", err)
	}
}

func TestExtract_RangeInvariantRandom(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(7, 11))
	ex := prosody.New(prosody.WithChunkSize(256))
	for i := 0; i < 200; i++ {
		n := rng.IntN(5000) + 1
		amp := rng.Float64()
		x := make([]float64, n)
		for j := range x {
			x[j] = (rng.Float64()*2 - 1) * amp
		}
		p, err := ex.Extract(audio.Frame{Samples: x, SampleRate: 16000})
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		inRange(t, p)
	}
}

func TestExtract_Deterministic(t *testing.T) {
	t.Parallel()
	x := sine(4000, 16000, 330, 0.4)
	ex := prosody.New()
	a, _ := ex.Extract(audio.Frame{Samples: x, SampleRate: 16000})
	b, _ := ex.Extract(audio.Frame{Samples: x, SampleRate: 16000})
	if a != b {
		t.Fatalf("non-deterministic: %+v vs %+v", a, b)
	}
}

func TestExtract_SteadySine(t *testing.T) {
	t.Parallel()
	p, err := prosody.New().Extract(audio.Frame{Samples: sine(4096, 16000, 200, 0.3), SampleRate: 16000})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inRange(t, p)
	if p.Tremor > 0.05 {
		t.Errorf("tremor = %v, want near 0 for a steady tone", p.Tremor)
	}
	if p.PitchVariation > 0.05 {
		t.Errorf("pitchVariation = %v, want near 0", p.PitchVariation)
	}
	if p.Clarity < 0.9 {
		t.Errorf("clarity = %v, want high for a clean tone", p.Clarity)
	}
	if math.Abs(p.DominantHz-200) > 8 {
		t.Errorf("dominantHz = %v, want about 200", p.DominantHz)
	}
}

func TestExtract_AgitatedFrame(t *testing.T) {
	t.Parallel()
	p, err := prosody.New().Extract(audio.Frame{Samples: agitated(8, 512)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inRange(t, p)
	if p.Tremor != 1 || p.PitchVariation != 1 {
		t.Errorf("tremor=%v pitchVariation=%v, want both saturated", p.Tremor, p.PitchVariation)
	}
	if p.Stability != 0 {
		t.Errorf("stability = %v, want 0", p.Stability)
	}
	if p.DominantHz != 0 {
		t.Errorf("dominantHz = %v, want 0 with unknown sample rate", p.DominantHz)
	}
}

func TestExtract_WithoutSpectrum(t *testing.T) {
	t.Parallel()
	p, _ := prosody.New(prosody.WithoutSpectrum()).Extract(audio.Frame{Samples: sine(2048, 16000, 200, 0.3), SampleRate: 16000})
	if p.DominantHz != 0 {
		t.Errorf("dominantHz = %v, want 0 when spectrum is disabled", p.DominantHz)
	}
}

func TestWithChunkSize_IgnoresInvalid(t *testing.T) {
	t.Parallel()
	if got := prosody.New(prosody.WithChunkSize(1)).ChunkSize(); got != prosody.DefaultChunkSize {
		t.Errorf("chunk size = %d, want default", got)
	}
}

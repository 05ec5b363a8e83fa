// Package prosody derives scalar acoustic features from a mono audio frame.
//
// The extractor is a pure function of its input: the same frame always yields
// the same [affect.ProsodyFeatures]. It does no pitch tracking; every feature is
// a scaled statistic of the waveform computed over fixed-size chunks, which is
// cheap enough to run inside the per-turn latency budget.
package prosody

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/MrWong99/attune/pkg/affect"
	"github.com/MrWong99/attune/pkg/audio"
)

const (
	// DefaultChunkSize is the number of samples per analysis chunk.
	DefaultChunkSize = 512

	// maxSpectrumSamples bounds the FFT window used for DominantHz.
	maxSpectrumSamples = 8192

	epsilon = 1e-6
)

// Scaling factors mapping raw statistics onto [0, 1].
const (
	pitchScale   = 50
	tempoScale   = 4
	rhythmScale  = 2
	tremorScale  = 100
	clarityScale = 0.25
	breathScale  = 2
	levelScale   = 2
)

// Extractor computes [affect.ProsodyFeatures]. It holds no mutable state and is
// safe for concurrent use.
type Extractor struct {
	chunkSize  int
	dominantHz bool
}

// Option configures an [Extractor].
type Option func(*Extractor)

// WithChunkSize sets the analysis chunk length in samples. Values below 2 are
// ignored.
func WithChunkSize(n int) Option {
	return func(e *Extractor) {
		if n >= 2 {
			e.chunkSize = n
		}
	}
}

// WithoutSpectrum disables the FFT used to compute DominantHz.
func WithoutSpectrum() Option {
	return func(e *Extractor) { e.dominantHz = false }
}

// New returns an Extractor with the given options applied.
func New(opts ...Option) *Extractor {
	e := &Extractor{chunkSize: DefaultChunkSize, dominantHz: true}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ChunkSize returns the configured analysis chunk length.
func (e *Extractor) ChunkSize() int { return e.chunkSize }

// Extract computes the prosodic features of f. Empty and all-zero frames
// produce [affect.NeutralProsody]. The only error is an [affect.InputError]
// for frames containing NaN or infinite samples.
func (e *Extractor) Extract(f audio.Frame) (affect.ProsodyFeatures, error) {
	if err := f.Validate(); err != nil {
		return affect.ProsodyFeatures{}, &affect.InputError{Op: "prosody: extract", Reason: "malformed frame", Err: err}
	}
	x := f.Samples
	if len(x) == 0 || isSilent(x) {
		return affect.NeutralProsody(), nil
	}

	abs := make([]float64, len(x))
	for i, v := range x {
		abs[i] = math.Abs(v)
	}
	meanAbs := stat.Mean(abs, nil)

	c := e.chunkStats(x, abs)

	var p affect.ProsodyFeatures
	p.PitchVariation = stat.PopVariance(c.means, nil) * pitchScale
	p.Tempo = stat.Mean(c.zcr, nil) * tempoScale
	p.Rhythm = meanAbsDelta(x) * rhythmScale
	p.Tremor = stat.PopVariance(c.vars, nil) * tremorScale
	p.Clarity = meanAbs / (stat.PopVariance(x, nil) + epsilon) * clarityScale
	p.Breathiness = stat.Mean(everyFourth(abs), nil) * breathScale

	level := affect.Clamp01(meanAbs * levelScale)
	p.PitchVariation = affect.Clamp01(p.PitchVariation)
	p.Clarity = affect.Clamp01(p.Clarity)
	p.Resonance = (level + p.Clarity) / 2
	p.Intonation = (p.PitchVariation - 0.5) * 2
	p.Energy = floats.Norm(x, 2) / math.Sqrt(float64(len(x))) * levelScale

	p.BreathVariance = stat.PopVariance(c.breath, nil)
	p.LevelVariance = stat.PopVariance(c.rms, nil)

	if e.dominantHz && f.SampleRate > 0 {
		p.DominantHz = dominantFrequency(x, f.SampleRate)
	}
	return p.Clamp(), nil
}

// chunks holds one value per analysis chunk for each statistic.
type chunks struct {
	means  []float64 // mean |x|
	vars   []float64 // population variance of x
	zcr    []float64 // zero crossings per sample
	breath []float64 // mean |x| of every 4th sample
	rms    []float64
}

func (e *Extractor) chunkStats(x, abs []float64) chunks {
	n := (len(x) + e.chunkSize - 1) / e.chunkSize
	c := chunks{
		means:  make([]float64, 0, n),
		vars:   make([]float64, 0, n),
		zcr:    make([]float64, 0, n),
		breath: make([]float64, 0, n),
		rms:    make([]float64, 0, n),
	}
	for start := 0; start < len(x); start += e.chunkSize {
		end := min(start+e.chunkSize, len(x))
		seg, segAbs := x[start:end], abs[start:end]
		c.means = append(c.means, stat.Mean(segAbs, nil))
		c.vars = append(c.vars, stat.PopVariance(seg, nil))
		c.zcr = append(c.zcr, float64(zeroCrossings(seg))/float64(len(seg)))
		c.breath = append(c.breath, stat.Mean(everyFourth(segAbs), nil))
		c.rms = append(c.rms, floats.Norm(seg, 2)/math.Sqrt(float64(len(seg))))
	}
	return c
}

func isSilent(x []float64) bool {
	for _, v := range x {
		if v != 0 {
			return false
		}
	}
	return true
}

func zeroCrossings(x []float64) int {
	n := 0
	for i := 1; i < len(x); i++ {
		if (x[i-1] >= 0) != (x[i] >= 0) {
			n++
		}
	}
	return n
}

func meanAbsDelta(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	var sum float64
	for i := 1; i < len(x); i++ {
		sum += math.Abs(x[i] - x[i-1])
	}
	return sum / float64(len(x)-1)
}

func everyFourth(x []float64) []float64 {
	out := make([]float64, 0, (len(x)+3)/4)
	for i := 0; i < len(x); i += 4 {
		out = append(out, x[i])
	}
	return out
}

// dominantFrequency returns the centre frequency of the strongest non-DC bin
// of the frame's spectrum.
func dominantFrequency(x []float64, sampleRate int) float64 {
	if len(x) > maxSpectrumSamples {
		x = x[:maxSpectrumSamples]
	}
	if len(x) < 4 {
		return 0
	}
	spec := fft.FFTReal(x)
	best, bestMag := 0, 0.0
	for k := 1; k <= len(spec)/2; k++ {
		if m := cmplx.Abs(spec[k]); m > bestMag {
			best, bestMag = k, m
		}
	}
	return float64(best) * float64(sampleRate) / float64(len(x))
}

package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
)

// ErrOddLength is returned when int16 PCM data has an odd byte count.
var ErrOddLength = errors.New("audio: odd byte count in int16 PCM data")

// FromPCM16 converts little-endian int16 PCM (mono or stereo) into a mono
// [Frame] with samples normalised to [-1, 1]. Stereo input is downmixed by
// averaging the channels.
func FromPCM16(p PCM) (Frame, error) {
	if len(p.Data)%2 != 0 {
		return Frame{}, ErrOddLength
	}
	data := p.Data
	switch p.Channels {
	case 0, 1:
	case 2:
		data = StereoToMono(data)
	default:
		return Frame{}, fmt.Errorf("audio: unsupported channel count %d", p.Channels)
	}
	samples := make([]float64, len(data)/2)
	for i := range samples {
		s := int16(data[i*2]) | int16(data[i*2+1])<<8
		samples[i] = float64(s) / 32768
	}
	return Frame{Samples: samples, SampleRate: p.SampleRate, Timestamp: p.Timestamp}, nil
}

// ToPCM16 encodes a frame as mono little-endian int16 PCM. Samples outside
// [-1, 1] are clipped; non-finite samples encode as silence.
func ToPCM16(f Frame) []byte {
	out := make([]byte, len(f.Samples)*2)
	for i, s := range f.Samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			s = 0
		}
		v := int32(math.Round(s * 32767))
		if v > 32767 {
			v = 32767
		} else if v < -32768 {
			v = -32768
		}
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

// Normalizer turns PCM of any supported layout into mono frames at a fixed
// analysis sample rate. It logs a warning on the first rate mismatch and on
// the first malformed payload. Create one per stream; not designed for shared
// use across goroutines.
type Normalizer struct {
	// SampleRate is the analysis rate. Zero keeps the source rate.
	SampleRate int

	warnedMismatch sync.Once
	warnedCorrupt  sync.Once
}

// Normalize downmixes, resamples and decodes p. Conversion order: downmix
// first, then resample, so stereo input is only resampled once.
func (n *Normalizer) Normalize(p PCM) (Frame, error) {
	if len(p.Data)%2 != 0 {
		n.warnedCorrupt.Do(func() {
			slog.Warn("audio normalizer: odd byte count in PCM data",
				"bytes", len(p.Data),
				"sampleRate", p.SampleRate,
				"channels", p.Channels,
			)
		})
		return Frame{}, ErrOddLength
	}
	if p.Channels == 2 {
		p.Data = StereoToMono(p.Data)
		p.Channels = 1
	}
	if n.SampleRate > 0 && p.SampleRate > 0 && p.SampleRate != n.SampleRate {
		n.warnedMismatch.Do(func() {
			slog.Warn("audio sample rate mismatch: resampling",
				"from", p.SampleRate,
				"to", n.SampleRate,
			)
		})
		p.Data = ResampleMono16(p.Data, p.SampleRate, n.SampleRate)
		p.SampleRate = n.SampleRate
	}
	return FromPCM16(p)
}

// StereoToMono averages L+R per stereo frame (4 bytes) to produce mono output.
// A trailing partial frame is dropped.
func StereoToMono(pcm []byte) []byte {
	frames := len(pcm) / 4
	out := make([]byte, frames*2)
	for i := range frames {
		l := int32(int16(pcm[i*4]) | int16(pcm[i*4+1])<<8)
		r := int32(int16(pcm[i*4+2]) | int16(pcm[i*4+3])<<8)
		avg := (l + r) / 2
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// ResampleMono16 resamples 16-bit mono PCM from srcRate to dstRate using linear
// interpolation. Non-positive or equal rates return the input unchanged.
func ResampleMono16(pcm []byte, srcRate, dstRate int) []byte {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(pcm) < 2 {
		return pcm
	}
	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil
	}

	out := make([]byte, dstSamples*2)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range dstSamples {
		pos := float64(i) * ratio
		idx := int(pos)
		frac := pos - float64(idx)

		s0 := int16(pcm[idx*2]) | int16(pcm[idx*2+1])<<8
		s1 := s0
		if idx+1 < srcSamples {
			s1 = int16(pcm[(idx+1)*2]) | int16(pcm[(idx+1)*2+1])<<8
		}
		v := int16(float64(s0)*(1-frac) + float64(s1)*frac)
		out[i*2] = byte(v)
		out[i*2+1] = byte(v >> 8)
	}
	return out
}

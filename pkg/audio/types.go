// Package audio holds the frame type consumed by the prosody extractor and the
// helpers that turn raw little-endian int16 PCM into it.
package audio

import (
	"fmt"
	"math"
	"time"
)

// Frame is one analysis window of mono audio. Samples are normalised to
// [-1, 1]; the capture collaborator owns the slice and must not modify it
// after handing the frame to the pipeline.
type Frame struct {
	// Samples in [-1, 1], mono.
	Samples []float64

	// SampleRate in Hz (e.g. 16000). Zero means unknown; spectral features
	// that need it are then left at zero.
	SampleRate int

	// Timestamp marks when the frame was captured.
	Timestamp time.Time
}

// Len returns the number of samples in the frame.
func (f Frame) Len() int { return len(f.Samples) }

// Duration returns the wall-clock length of the frame, or zero when the
// sample rate is unknown.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// Validate reports the first non-finite sample, if any.
func (f Frame) Validate() error {
	for i, s := range f.Samples {
		if math.IsNaN(s) || math.IsInf(s, 0) {
			return fmt.Errorf("audio: non-finite sample %v at index %d", s, i)
		}
	}
	return nil
}

// PCM is raw interleaved little-endian int16 audio as delivered by a capture
// device or an API client.
type PCM struct {
	Data []byte

	// SampleRate in Hz (e.g., 48000 for a browser capture, 16000 for telephony).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	Timestamp time.Time
}

// Package fusion estimates emotional states from each modality and combines
// the voice and text estimates of a turn into one [affect.EmotionalState].
//
// Voice is weighted higher than text for the continuous dimensions and is the
// sole source of stability and crisis level, except that a crisis phrase in
// the text always forces a critical crisis.
package fusion

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/MrWong99/attune/pkg/affect"
)

// Weights are the relative reliabilities of the two modalities. They need not
// sum to one; they are normalised before use.
type Weights struct {
	Voice float64 `yaml:"voice"`
	Text  float64 `yaml:"text"`
}

// DefaultWeights returns the 0.7/0.3 voice/text split.
func DefaultWeights() Weights { return Weights{Voice: 0.7, Text: 0.3} }

// Validate rejects negative weights and an all-zero pair.
func (w Weights) Validate() error {
	var errs []error
	if w.Voice < 0 || w.Text < 0 {
		errs = append(errs, fmt.Errorf("weights must be non-negative, got voice=%v text=%v", w.Voice, w.Text))
	}
	if w.Voice+w.Text <= 0 {
		errs = append(errs, errors.New("weights must not both be zero"))
	}
	return errors.Join(errs...)
}

func (w Weights) normalised() (voice, text float64) {
	sum := w.Voice + w.Text
	return w.Voice / sum, w.Text / sum
}

// Engine fuses per-modality states. Weights can be swapped at runtime with
// [Engine.SetWeights]; all methods are safe for concurrent use.
type Engine struct {
	weights atomic.Pointer[Weights]
}

// NewEngine returns an Engine using w.
func NewEngine(w Weights) (*Engine, error) {
	e := &Engine{}
	if err := e.SetWeights(w); err != nil {
		return nil, err
	}
	return e, nil
}

// SetWeights replaces the fusion weights.
func (e *Engine) SetWeights(w Weights) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("fusion: %w", err)
	}
	e.weights.Store(&w)
	return nil
}

// Weights returns the current fusion weights.
func (e *Engine) Weights() Weights { return *e.weights.Load() }

// Fuse combines the voice and text estimates of one turn. With only one
// estimate present that estimate is returned unchanged apart from clamping.
// Both absent is an [affect.InputError].
func (e *Engine) Fuse(voice, text *affect.EmotionalState) (affect.EmotionalState, error) {
	switch {
	case voice == nil && text == nil:
		return affect.EmotionalState{}, &affect.InputError{Op: "fusion: fuse", Reason: "no modality available"}
	case text == nil:
		return voice.Clamp(), nil
	case voice == nil:
		return text.Clamp(), nil
	}

	v, t := voice.Clamp(), text.Clamp()
	wv, wt := e.Weights().normalised()
	mix := func(a, b float64) float64 { return wv*a + wt*b }

	out := affect.EmotionalState{
		Pleasure:           mix(v.Pleasure, t.Pleasure),
		Arousal:            mix(v.Arousal, t.Arousal),
		Dominance:          mix(v.Dominance, t.Dominance),
		Confidence:         mix(v.Confidence, t.Confidence),
		Stress:             mix(v.Stress, t.Stress),
		Engagement:         mix(v.Engagement, t.Engagement),
		Trust:              mix(v.Trust, t.Trust),
		EmotionalIntensity: mix(v.EmotionalIntensity, t.EmotionalIntensity),
		ConversationalFlow: mix(v.ConversationalFlow, t.ConversationalFlow),
		EmotionalStability: v.EmotionalStability,
		CrisisLevel:        v.CrisisLevel,
	}
	out.Empathy = affect.DeriveEmpathy(out.Pleasure, out.Stress)

	switch {
	case t.CrisisLevel == affect.CrisisCritical && t.PrimaryEmotion == affect.EmotionCrisis:
		out.CrisisLevel = affect.CrisisCritical
		out.PrimaryEmotion = affect.EmotionCrisis
		out.SecondaryEmotion = nonCrisis(t.SecondaryEmotion, v)
	case v.CrisisLevel == affect.CrisisCritical:
		out.PrimaryEmotion = affect.EmotionCrisis
		out.SecondaryEmotion = t.PrimaryEmotion
	default:
		out.PrimaryEmotion = t.PrimaryEmotion
		out.SecondaryEmotion = v.PrimaryEmotion
	}
	return out.Clamp(), nil
}

// nonCrisis picks a descriptive secondary label for a keyword crisis: the
// text's own runner-up if it has one, else the voice label.
func nonCrisis(textSecondary affect.Emotion, v affect.EmotionalState) affect.Emotion {
	if textSecondary != affect.EmotionNeutral && textSecondary != affect.EmotionCrisis {
		return textSecondary
	}
	if v.PrimaryEmotion != affect.EmotionCrisis {
		return v.PrimaryEmotion
	}
	return v.SecondaryEmotion
}

// DefaultEngine returns an Engine with [DefaultWeights].
func DefaultEngine() *Engine {
	e := &Engine{}
	w := DefaultWeights()
	e.weights.Store(&w)
	return e
}

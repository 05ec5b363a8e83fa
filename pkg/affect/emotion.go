// Package affect defines the shared data model of the attune emotional-state
// pipeline: emotion labels, crisis levels, prosody features, the fused
// [EmotionalState], rendering parameters, response-style hints, structured
// events and the error taxonomy.
//
// These types are the lingua franca between the extractor, classifiers, fusion
// engine, session memory, crisis tracker and the external collaborators. They
// carry no behaviour beyond clamping, parsing and formatting.
package affect

import "fmt"

// Emotion is a discrete emotion label. The set is closed: every label the
// pipeline can produce is declared below, so adding an emotion is a
// compile-time-checked change to [Emotions] and the prototype table.
type Emotion string

const (
	EmotionNeutral     Emotion = "neutral"
	EmotionJoy         Emotion = "joy"
	EmotionExcitement  Emotion = "excitement"
	EmotionGratitude   Emotion = "gratitude"
	EmotionCalm        Emotion = "calm"
	EmotionSurprise    Emotion = "surprise"
	EmotionSadness     Emotion = "sadness"
	EmotionLoneliness  Emotion = "loneliness"
	EmotionAnger       Emotion = "anger"
	EmotionFrustration Emotion = "frustration"
	EmotionFear        Emotion = "fear"
	EmotionAnxiety     Emotion = "anxiety"
	EmotionDisgust     Emotion = "disgust"

	// EmotionCrisis marks a turn whose content or voice indicates acute risk.
	// It is never produced by PAD scoring, only by crisis detection.
	EmotionCrisis Emotion = "crisis"
)

// PAD is a point in Pleasure-Arousal-Dominance space.
type PAD struct {
	Pleasure  float64 // [-1, 1]
	Arousal   float64 // [0, 1]
	Dominance float64 // [-1, 1]
}

// prototype pairs an emotion with its reference point in PAD space.
type prototype struct {
	emotion Emotion
	pad     PAD
}

// prototypes is ordered; the order is the registration order used for
// deterministic tie-breaking everywhere a label is chosen.
var prototypes = [...]prototype{
	{EmotionNeutral, PAD{0, 0.5, 0.5}},
	{EmotionJoy, PAD{0.8, 0.7, 0.5}},
	{EmotionExcitement, PAD{0.7, 0.9, 0.4}},
	{EmotionGratitude, PAD{0.7, 0.4, 0.2}},
	{EmotionCalm, PAD{0.5, 0.2, 0.3}},
	{EmotionSurprise, PAD{0.2, 0.85, 0}},
	{EmotionSadness, PAD{-0.7, 0.3, -0.4}},
	{EmotionLoneliness, PAD{-0.6, 0.25, -0.5}},
	{EmotionAnger, PAD{-0.6, 0.85, 0.5}},
	{EmotionFrustration, PAD{-0.5, 0.7, 0.1}},
	{EmotionFear, PAD{-0.7, 0.8, -0.6}},
	{EmotionAnxiety, PAD{-0.5, 0.75, -0.4}},
	{EmotionDisgust, PAD{-0.6, 0.5, 0.3}},
	{EmotionCrisis, PAD{-0.9, 0.8, -0.8}},
}

// Emotions returns every known emotion label in registration order.
func Emotions() []Emotion {
	out := make([]Emotion, len(prototypes))
	for i, p := range prototypes {
		out[i] = p.emotion
	}
	return out
}

// IsValid reports whether e is a recognised emotion label.
func (e Emotion) IsValid() bool {
	_, ok := e.Prototype()
	return ok
}

// Prototype returns the reference PAD point for e.
func (e Emotion) Prototype() (PAD, bool) {
	for _, p := range prototypes {
		if p.emotion == e {
			return p.pad, true
		}
	}
	return PAD{}, false
}

// IsNegative reports whether e sits on the unpleasant half of the pleasure axis.
func (e Emotion) IsNegative() bool {
	pad, ok := e.Prototype()
	return ok && pad.Pleasure < 0
}

// ParseEmotion converts s into an [Emotion], rejecting unknown labels.
func ParseEmotion(s string) (Emotion, error) {
	e := Emotion(s)
	if !e.IsValid() {
		return "", fmt.Errorf("affect: unknown emotion %q", s)
	}
	return e, nil
}

// Nearest returns the two emotions whose prototypes are closest to pad,
// ignoring [EmotionCrisis]. Arousal spans half the range of the other axes, so
// its distance is doubled to give every axis equal weight. Ties resolve to the
// earlier-registered emotion.
func Nearest(pad PAD) (primary, secondary Emotion) {
	best, second := -1.0, -1.0
	primary, secondary = EmotionNeutral, EmotionNeutral
	for _, p := range prototypes {
		if p.emotion == EmotionCrisis {
			continue
		}
		dp := pad.Pleasure - p.pad.Pleasure
		da := 2 * (pad.Arousal - p.pad.Arousal)
		dd := pad.Dominance - p.pad.Dominance
		d := dp*dp + da*da + dd*dd
		switch {
		case best < 0 || d < best:
			second, secondary = best, primary
			best, primary = d, p.emotion
		case second < 0 || d < second:
			second, secondary = d, p.emotion
		}
	}
	return primary, secondary
}

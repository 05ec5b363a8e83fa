package fusion

import (
	"github.com/MrWong99/attune/internal/lexical"
	"github.com/MrWong99/attune/pkg/affect"
)

// Text-only crisis levels are derived from the estimated stress when no
// crisis phrase was found.
const (
	textMediumStress = 0.8
	textLowStress    = 0.6
)

// TextState converts a lexical verdict into an emotional state. A crisis
// phrase yields a critical state with primary emotion crisis; otherwise the
// crisis level follows the stress the text implies.
func TextState(r lexical.Result) affect.EmotionalState {
	pad := r.PAD
	neg := r.Primary.IsNegative()

	var stress float64
	switch {
	case r.Crisis:
		stress = 1
	case neg:
		stress = 0.3 + 0.4*pad.Arousal + 0.3*r.Intensity
	default:
		stress = 0.05 * (1 - pad.Pleasure)
	}
	stress = affect.Clamp01(stress)

	confidence := 0.3
	if r.Matched() {
		confidence = 0.4 + 0.5*r.Intensity
	}

	s := affect.EmotionalState{
		Pleasure:           pad.Pleasure,
		Arousal:            pad.Arousal,
		Dominance:          pad.Dominance,
		Confidence:         confidence,
		Stress:             stress,
		Empathy:            affect.DeriveEmpathy(pad.Pleasure, stress),
		Engagement:         0.4 + 0.4*pad.Arousal,
		Trust:              0.5 + 0.2*pad.Pleasure,
		PrimaryEmotion:     r.Primary,
		SecondaryEmotion:   r.Secondary,
		EmotionalIntensity: r.Intensity,
		EmotionalStability: 1 - 0.5*stress,
		ConversationalFlow: 0.5,
		CrisisLevel:        textLevel(r.Crisis, stress),
	}
	return s.Clamp()
}

func textLevel(keyword bool, stress float64) affect.CrisisLevel {
	switch {
	case keyword:
		return affect.CrisisCritical
	case stress >= textMediumStress:
		return affect.CrisisMedium
	case stress >= textLowStress:
		return affect.CrisisLow
	}
	return affect.CrisisNone
}

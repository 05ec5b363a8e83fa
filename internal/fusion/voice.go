package fusion

import (
	"math"

	"github.com/MrWong99/attune/internal/crisis"
	"github.com/MrWong99/attune/pkg/affect"
)

// VoiceClassifier turns prosodic features and the crisis assessment of the
// same frame into an emotional state. [VoiceEstimator] is the built-in
// heuristic; a trained model can be substituted behind this interface.
//
// Implementations must be pure and safe for concurrent use, and must return a
// clamped state whose CrisisLevel equals a.Level.
type VoiceClassifier interface {
	Classify(p affect.ProsodyFeatures, a crisis.Assessment) affect.EmotionalState
}

// VoiceEstimator is the heuristic [VoiceClassifier].
type VoiceEstimator struct{}

var _ VoiceClassifier = VoiceEstimator{}

// Classify implements [VoiceClassifier].
func (VoiceEstimator) Classify(p affect.ProsodyFeatures, a crisis.Assessment) affect.EmotionalState {
	p = p.Clamp()
	ind := a.Indicators

	arousal := 0.4*p.Tempo + 0.3*p.Rhythm + 0.3*p.Energy
	stress := affect.Clamp01(0.6*ind.VoiceStress + 0.2*p.Tremor + 0.2*ind.BreathIrregularity)
	pleasure := affect.ClampSigned(0.4*(2*p.Clarity-1) + 0.2*p.Intonation - 0.8*stress + 0.2)
	dominance := affect.ClampSigned(p.Energy + 0.5*p.Stability - 0.8*stress - 0.25)

	s := affect.EmotionalState{
		Pleasure:           pleasure,
		Arousal:            arousal,
		Dominance:          dominance,
		Confidence:         0.5*p.Clarity + 0.5*p.Stability,
		Stress:             stress,
		Empathy:            affect.DeriveEmpathy(pleasure, stress),
		Engagement:         0.6*arousal + 0.4*p.Resonance,
		Trust:              0.5 + 0.25*pleasure - 0.2*stress,
		EmotionalIntensity: 0.5*math.Abs(pleasure) + 0.3*arousal + 0.2*stress,
		EmotionalStability: p.Stability,
		ConversationalFlow: 1 - math.Abs(p.Tempo-0.5) - 0.5*p.Tremor,
		CrisisLevel:        a.Level,
	}
	s.PrimaryEmotion, s.SecondaryEmotion = affect.Nearest(s.PAD())
	if a.Level == affect.CrisisCritical {
		s.SecondaryEmotion = s.PrimaryEmotion
		s.PrimaryEmotion = affect.EmotionCrisis
	}
	return s.Clamp()
}

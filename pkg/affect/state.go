package affect

import "math"

// EmotionalState is the fused affective estimate for one conversational turn.
// Every bounded field is clamped by [EmotionalState.Clamp] after derivation.
// States are values: they are copied into session history and never mutated
// there.
type EmotionalState struct {
	Pleasure  float64 `json:"pleasure"`  // [-1, 1]
	Arousal   float64 `json:"arousal"`   // [0, 1]
	Dominance float64 `json:"dominance"` // [-1, 1]

	Confidence float64 `json:"confidence"`
	Stress     float64 `json:"stress"`
	Empathy    float64 `json:"empathy"`
	Engagement float64 `json:"engagement"`
	Trust      float64 `json:"trust"`

	PrimaryEmotion   Emotion `json:"primary_emotion"`
	SecondaryEmotion Emotion `json:"secondary_emotion"`

	EmotionalIntensity float64 `json:"emotional_intensity"`
	EmotionalStability float64 `json:"emotional_stability"`
	ConversationalFlow float64 `json:"conversational_flow"`

	CrisisLevel CrisisLevel `json:"crisis_level"`
}

// NeutralState is the state assumed when nothing is known about the speaker.
func NeutralState() EmotionalState {
	return EmotionalState{
		Pleasure:           0,
		Arousal:            0.5,
		Dominance:          0.5,
		Confidence:         0.5,
		Stress:             0,
		Empathy:            DeriveEmpathy(0, 0),
		Engagement:         0.5,
		Trust:              0.5,
		PrimaryEmotion:     EmotionNeutral,
		SecondaryEmotion:   EmotionNeutral,
		EmotionalIntensity: 0.5,
		EmotionalStability: 1,
		ConversationalFlow: 0.5,
		CrisisLevel:        CrisisNone,
	}
}

// PAD returns the pleasure-arousal-dominance projection of s.
func (s EmotionalState) PAD() PAD {
	return PAD{Pleasure: s.Pleasure, Arousal: s.Arousal, Dominance: s.Dominance}
}

// Clamp returns s with every bounded field forced into range, unknown labels
// replaced by neutral and an invalid crisis level reset to none. NaN fields
// collapse to the lower bound.
func (s EmotionalState) Clamp() EmotionalState {
	s.Pleasure = ClampSigned(s.Pleasure)
	s.Arousal = Clamp01(s.Arousal)
	s.Dominance = ClampSigned(s.Dominance)
	s.Confidence = Clamp01(s.Confidence)
	s.Stress = Clamp01(s.Stress)
	s.Empathy = Clamp01(s.Empathy)
	s.Engagement = Clamp01(s.Engagement)
	s.Trust = Clamp01(s.Trust)
	s.EmotionalIntensity = Clamp01(s.EmotionalIntensity)
	s.EmotionalStability = Clamp01(s.EmotionalStability)
	s.ConversationalFlow = Clamp01(s.ConversationalFlow)
	if !s.PrimaryEmotion.IsValid() {
		s.PrimaryEmotion = EmotionNeutral
	}
	if !s.SecondaryEmotion.IsValid() {
		s.SecondaryEmotion = EmotionNeutral
	}
	if !s.CrisisLevel.IsValid() {
		s.CrisisLevel = CrisisNone
	}
	return s
}

// InRange reports whether every bounded field of s is within its declared
// range and both labels are known.
func (s EmotionalState) InRange() bool {
	in01 := func(v float64) bool { return v >= 0 && v <= 1 }
	inSigned := func(v float64) bool { return v >= -1 && v <= 1 }
	return inSigned(s.Pleasure) && in01(s.Arousal) && inSigned(s.Dominance) &&
		in01(s.Confidence) && in01(s.Stress) && in01(s.Empathy) &&
		in01(s.Engagement) && in01(s.Trust) &&
		in01(s.EmotionalIntensity) && in01(s.EmotionalStability) && in01(s.ConversationalFlow) &&
		s.PrimaryEmotion.IsValid() && s.SecondaryEmotion.IsValid() && s.CrisisLevel.IsValid()
}

// DeriveEmpathy is the single formula used for the empathy a reply should
// carry: more for unpleasant and stressed states.
func DeriveEmpathy(pleasure, stress float64) float64 {
	return Clamp01(0.5 + 0.3*math.Max(0, -pleasure) + 0.4*stress)
}

// Clamp01 limits v to [0, 1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	return clamp(v, 0, 1)
}

// ClampSigned limits v to [-1, 1]. NaN maps to -1.
func ClampSigned(v float64) float64 {
	return clamp(v, -1, 1)
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v), v < lo:
		return lo
	case v > hi:
		return hi
	}
	return v
}

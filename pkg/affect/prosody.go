package affect

// ProsodyFeatures are the scalar acoustic features derived from one audio
// frame. All fields except Intonation and DominantHz are in [0, 1].
type ProsodyFeatures struct {
	Intonation     float64 `json:"intonation"` // [-1, 1]
	PitchVariation float64 `json:"pitch_variation"`
	Rhythm         float64 `json:"rhythm"`
	Tempo          float64 `json:"tempo"`
	Tremor         float64 `json:"tremor"`
	Clarity        float64 `json:"clarity"`
	Breathiness    float64 `json:"breathiness"`
	Resonance      float64 `json:"resonance"`
	Stability      float64 `json:"stability"` // 1 - Tremor

	// Energy is the scaled RMS level of the frame.
	Energy float64 `json:"energy"`

	// DominantHz is the frequency of the strongest spectral bin. Zero when the
	// sample rate is unknown or the frame is silent.
	DominantHz float64 `json:"dominant_hz"`

	// BreathVariance and LevelVariance describe how much the low-frequency
	// subsample and the per-chunk amplitude move across the frame. They are
	// the chunk dynamics the crisis scorer derives its indicators from.
	BreathVariance float64 `json:"breath_variance"`
	LevelVariance  float64 `json:"level_variance"`
}

// NeutralProsody is the feature set returned for empty or silent frames:
// midpoint values, no tremor, full stability.
func NeutralProsody() ProsodyFeatures {
	return ProsodyFeatures{
		Intonation:     0,
		PitchVariation: 0.5,
		Rhythm:         0.5,
		Tempo:          0.5,
		Tremor:         0,
		Clarity:        0.5,
		Breathiness:    0.5,
		Resonance:      0.5,
		Stability:      1,
		Energy:         0,
	}
}

// Clamp forces every field into its declared range and re-derives Stability.
func (p ProsodyFeatures) Clamp() ProsodyFeatures {
	p.Intonation = ClampSigned(p.Intonation)
	p.PitchVariation = Clamp01(p.PitchVariation)
	p.Rhythm = Clamp01(p.Rhythm)
	p.Tempo = Clamp01(p.Tempo)
	p.Tremor = Clamp01(p.Tremor)
	p.Clarity = Clamp01(p.Clarity)
	p.Breathiness = Clamp01(p.Breathiness)
	p.Resonance = Clamp01(p.Resonance)
	p.Stability = 1 - p.Tremor
	p.Energy = Clamp01(p.Energy)
	if p.DominantHz < 0 {
		p.DominantHz = 0
	}
	p.BreathVariance = Clamp01(p.BreathVariance)
	p.LevelVariance = Clamp01(p.LevelVariance)
	return p
}

// CrisisIndicators are the voice-derived risk signals fed to the crisis
// scorer. Every field is in [0, 1]; higher means more concerning.
type CrisisIndicators struct {
	VoiceStress         float64 `json:"voice_stress"`
	BreathIrregularity  float64 `json:"breath_irregularity"`
	VoiceTremor         float64 `json:"voice_tremor"`
	PitchInstability    float64 `json:"pitch_instability"`
	VolumeInconsistency float64 `json:"volume_inconsistency"`
}

// Clamp forces every indicator into [0, 1].
func (c CrisisIndicators) Clamp() CrisisIndicators {
	c.VoiceStress = Clamp01(c.VoiceStress)
	c.BreathIrregularity = Clamp01(c.BreathIrregularity)
	c.VoiceTremor = Clamp01(c.VoiceTremor)
	c.PitchInstability = Clamp01(c.PitchInstability)
	c.VolumeInconsistency = Clamp01(c.VolumeInconsistency)
	return c
}

// LessOrEqual reports whether every indicator of c is <= the matching
// indicator of o (componentwise order).
func (c CrisisIndicators) LessOrEqual(o CrisisIndicators) bool {
	return c.VoiceStress <= o.VoiceStress &&
		c.BreathIrregularity <= o.BreathIrregularity &&
		c.VoiceTremor <= o.VoiceTremor &&
		c.PitchInstability <= o.PitchInstability &&
		c.VolumeInconsistency <= o.VolumeInconsistency
}

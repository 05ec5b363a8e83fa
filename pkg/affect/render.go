package affect

import "fmt"

// StyleTag names the delivery style handed to the TTS collaborator.
type StyleTag string

const (
	StyleWarm       StyleTag = "warm"
	StyleCheerful   StyleTag = "cheerful"
	StyleGentle     StyleTag = "gentle"
	StyleCalm       StyleTag = "calm"
	StyleComforting StyleTag = "comforting"
)

// StyleTags returns every known style tag.
func StyleTags() []StyleTag {
	return []StyleTag{StyleWarm, StyleCheerful, StyleGentle, StyleCalm, StyleComforting}
}

// ParseStyleTag validates s as a [StyleTag].
func ParseStyleTag(s string) (StyleTag, error) {
	for _, t := range StyleTags() {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("affect: unknown style tag %q", s)
}

// Bounds of the speed, pitch and volume multipliers.
const (
	MinRenderFactor = 0.5
	MaxRenderFactor = 2.0
)

// VoiceRenderParams control how the reply is synthesised. Speed, Pitch and
// Volume are multipliers around 1.0 within [MinRenderFactor, MaxRenderFactor].
type VoiceRenderParams struct {
	VoiceID string   `json:"voice_id"`
	Speed   float64  `json:"speed"`
	Pitch   float64  `json:"pitch"`
	Volume  float64  `json:"volume"`
	Style   StyleTag `json:"style"`
}

// NeutralVoiceParams returns unit multipliers with the warm default style.
func NeutralVoiceParams(voiceID string) VoiceRenderParams {
	return VoiceRenderParams{VoiceID: voiceID, Speed: 1, Pitch: 1, Volume: 1, Style: StyleWarm}
}

// ClampFactor limits a render multiplier to its allowed range.
func ClampFactor(v float64) float64 {
	return clamp(v, MinRenderFactor, MaxRenderFactor)
}

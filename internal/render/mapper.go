// Package render maps a fused emotional state onto speech-synthesis
// parameters for the TTS collaborator.
//
// Rules are evaluated in priority order and the first match wins. The chosen
// rule's multipliers are scaled by the configured base factors and clamped to
// [affect.MinRenderFactor, affect.MaxRenderFactor].
package render

import (
	"fmt"
	"sync/atomic"

	"github.com/MrWong99/attune/pkg/affect"
)

// Rule thresholds.
const (
	highStress       = 0.7
	negativePleasure = -0.3
	highIntensity    = 0.7
	positivePleasure = 0.3
)

// Config holds the voice and the base factors every rule is scaled by.
type Config struct {
	// VoiceID is the default synthesiser voice.
	VoiceID string `yaml:"voice_id"`

	// SpeedFactor and PitchFactor scale the rule outputs. Zero means 1.
	SpeedFactor float64 `yaml:"speed_factor"`
	PitchFactor float64 `yaml:"pitch_factor"`

	// Styles optionally maps a style tag to a different voice id.
	Styles map[affect.StyleTag]string `yaml:"styles"`
}

// Validate checks factor bounds and style names.
func (c Config) Validate() error {
	for name, f := range map[string]float64{"speed_factor": c.SpeedFactor, "pitch_factor": c.PitchFactor} {
		if f != 0 && (f < affect.MinRenderFactor || f > affect.MaxRenderFactor) {
			return fmt.Errorf("render: %s %v outside [%v, %v]", name, f, affect.MinRenderFactor, affect.MaxRenderFactor)
		}
	}
	for tag := range c.Styles {
		if _, err := affect.ParseStyleTag(string(tag)); err != nil {
			return fmt.Errorf("render: styles: %w", err)
		}
	}
	return nil
}

// rule is one row of the mapping table.
type rule struct {
	name                 string
	match                func(s affect.EmotionalState, level affect.CrisisLevel) bool
	speed, pitch, volume float64
	style                affect.StyleTag
}

var rules = []rule{
	{
		name:  "crisis",
		match: func(_ affect.EmotionalState, l affect.CrisisLevel) bool { return l == affect.CrisisCritical },
		speed: 0.75, pitch: 0.9, volume: 0.85, style: affect.StyleComforting,
	},
	{
		name: "stressed",
		match: func(s affect.EmotionalState, l affect.CrisisLevel) bool {
			return s.Stress > highStress || l == affect.CrisisHigh
		},
		speed: 0.85, pitch: 0.95, volume: 0.9, style: affect.StyleCalm,
	},
	{
		name:  "low mood",
		match: func(s affect.EmotionalState, _ affect.CrisisLevel) bool { return s.Pleasure < negativePleasure },
		speed: 0.9, pitch: 0.97, volume: 0.95, style: affect.StyleGentle,
	},
	{
		name: "upbeat",
		match: func(s affect.EmotionalState, _ affect.CrisisLevel) bool {
			return s.EmotionalIntensity > highIntensity && s.Pleasure > positivePleasure
		},
		speed: 1.15, pitch: 1.08, volume: 1.05, style: affect.StyleCheerful,
	},
}

var defaultRule = rule{name: "default", speed: 1, pitch: 1, volume: 1, style: affect.StyleWarm}

// Mapper is safe for concurrent use; [Mapper.SetConfig] swaps the
// configuration atomically.
type Mapper struct {
	cfg atomic.Pointer[Config]
}

// NewMapper returns a Mapper for cfg.
func NewMapper(cfg Config) (*Mapper, error) {
	m := &Mapper{}
	if err := m.SetConfig(cfg); err != nil {
		return nil, err
	}
	return m, nil
}

// SetConfig replaces the mapper configuration.
func (m *Mapper) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.SpeedFactor == 0 {
		cfg.SpeedFactor = 1
	}
	if cfg.PitchFactor == 0 {
		cfg.PitchFactor = 1
	}
	m.cfg.Store(&cfg)
	return nil
}

// Map derives render parameters from the state's own crisis level.
func (m *Mapper) Map(s affect.EmotionalState) affect.VoiceRenderParams {
	return m.MapAt(s, s.CrisisLevel)
}

// MapAt derives render parameters using the more severe of the state's level
// and the committed session level, so that a held critical level keeps the
// comforting voice even when a single turn reads lower.
func (m *Mapper) MapAt(s affect.EmotionalState, committed affect.CrisisLevel) affect.VoiceRenderParams {
	s = s.Clamp()
	level := affect.MaxLevel(s.CrisisLevel, committed)
	r := defaultRule
	for _, candidate := range rules {
		if candidate.match(s, level) {
			r = candidate
			break
		}
	}

	cfg := m.cfg.Load()
	voice := cfg.VoiceID
	if v, ok := cfg.Styles[r.style]; ok && v != "" {
		voice = v
	}
	return affect.VoiceRenderParams{
		VoiceID: voice,
		Speed:   affect.ClampFactor(r.speed * cfg.SpeedFactor),
		Pitch:   affect.ClampFactor(r.pitch * cfg.PitchFactor),
		Volume:  affect.ClampFactor(r.volume),
		Style:   r.style,
	}
}

// RuleName reports which rule [Mapper.MapAt] would apply.
func RuleName(s affect.EmotionalState, committed affect.CrisisLevel) string {
	s = s.Clamp()
	level := affect.MaxLevel(s.CrisisLevel, committed)
	for _, r := range rules {
		if r.match(s, level) {
			return r.name
		}
	}
	return defaultRule.name
}

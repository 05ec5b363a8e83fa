// Package crisis scores voice-derived risk indicators and tracks the committed
// crisis level of each session with hysteresis.
//
// The [Scorer] is stateless: indicators go in, a weighted score and a level
// come out. The [Tracker] is the per-session state machine that turns noisy
// per-turn readings into a stable level and reports every change through an
// [affect.EventSink].
package crisis

import (
	"errors"
	"fmt"

	"github.com/MrWong99/attune/pkg/affect"
)

// MaxScore is the highest score [Scorer.Score] can return.
const MaxScore = 13

// Thresholds are the minimum scores for each level above none. They must be
// strictly increasing and within (0, MaxScore].
type Thresholds struct {
	Low      int `yaml:"low"`
	Medium   int `yaml:"medium"`
	High     int `yaml:"high"`
	Critical int `yaml:"critical"`
}

// DefaultThresholds returns the 2/4/6/8 banding.
func DefaultThresholds() Thresholds {
	return Thresholds{Low: 2, Medium: 4, High: 6, Critical: 8}
}

// Validate checks ordering and bounds.
func (t Thresholds) Validate() error {
	var errs []error
	if t.Low < 1 {
		errs = append(errs, fmt.Errorf("low threshold %d must be at least 1", t.Low))
	}
	if !(t.Low < t.Medium && t.Medium < t.High && t.High < t.Critical) {
		errs = append(errs, fmt.Errorf("thresholds %d/%d/%d/%d must be strictly increasing", t.Low, t.Medium, t.High, t.Critical))
	}
	if t.Critical > MaxScore {
		errs = append(errs, fmt.Errorf("critical threshold %d exceeds max score %d", t.Critical, MaxScore))
	}
	return errors.Join(errs...)
}

// Assessment is the scorer's verdict on one frame.
type Assessment struct {
	Indicators affect.CrisisIndicators
	Score      int
	Level      affect.CrisisLevel
}

// Scorer maps crisis indicators to a score and a level. It is safe for
// concurrent use.
type Scorer struct {
	thresholds Thresholds
}

// NewScorer returns a Scorer using t. Invalid thresholds are rejected.
func NewScorer(t Thresholds) (*Scorer, error) {
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("crisis: %w", err)
	}
	return &Scorer{thresholds: t}, nil
}

// DefaultScorer returns a Scorer with [DefaultThresholds].
func DefaultScorer() *Scorer {
	return &Scorer{thresholds: DefaultThresholds()}
}

// Thresholds returns the scorer's banding.
func (s *Scorer) Thresholds() Thresholds { return s.thresholds }

// Score sums the weighted bands of every indicator. Each band is a strict
// lower bound, so the result is monotone non-decreasing in every indicator.
func (s *Scorer) Score(ind affect.CrisisIndicators) int {
	ind = ind.Clamp()
	return band3(ind.VoiceStress, 0.8, 0.6, 0.4) +
		band3(ind.BreathIrregularity, 0.7, 0.5, 0.3) +
		band3(ind.VoiceTremor, 0.7, 0.5, 0.3) +
		band2(ind.PitchInstability, 0.6, 0.4) +
		band2(ind.VolumeInconsistency, 0.6, 0.4)
}

// Level maps a score onto a crisis level.
func (s *Scorer) Level(score int) affect.CrisisLevel {
	t := s.thresholds
	switch {
	case score >= t.Critical:
		return affect.CrisisCritical
	case score >= t.High:
		return affect.CrisisHigh
	case score >= t.Medium:
		return affect.CrisisMedium
	case score >= t.Low:
		return affect.CrisisLow
	default:
		return affect.CrisisNone
	}
}

// Assess derives indicators from p and scores them.
func (s *Scorer) Assess(p affect.ProsodyFeatures) Assessment {
	ind := DeriveIndicators(p)
	score := s.Score(ind)
	return Assessment{Indicators: ind, Score: score, Level: s.Level(score)}
}

// DeriveIndicators maps prosodic features onto crisis indicators.
func DeriveIndicators(p affect.ProsodyFeatures) affect.CrisisIndicators {
	p = p.Clamp()
	return affect.CrisisIndicators{
		VoiceStress:         (p.Tremor + (1 - p.Clarity) + p.PitchVariation) / 3,
		BreathIrregularity:  0.5*p.Breathiness + 4*p.BreathVariance,
		VoiceTremor:         p.Tremor,
		PitchInstability:    0.7*p.PitchVariation + 0.3*p.Tremor,
		VolumeInconsistency: 4 * p.LevelVariance,
	}.Clamp()
}

func band3(v, hi, mid, lo float64) int {
	switch {
	case v > hi:
		return 3
	case v > mid:
		return 2
	case v > lo:
		return 1
	}
	return 0
}

func band2(v, hi, lo float64) int {
	switch {
	case v > hi:
		return 2
	case v > lo:
		return 1
	}
	return 0
}

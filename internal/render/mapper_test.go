package render_test

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/MrWong99/attune/internal/render"
	"github.com/MrWong99/attune/pkg/affect"
)

func mustMapper(t *testing.T, cfg render.Config) *render.Mapper {
	t.Helper()
	m, err := render.NewMapper(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return m
}

func TestMapper_Rules(t *testing.T) {
	t.Parallel()
	m := mustMapper(t, render.Config{VoiceID: "v1"})
	with := func(f func(*affect.EmotionalState)) affect.EmotionalState {
		s := affect.NeutralState()
		f(&s)
		return s
	}
	tests := []struct {
		name  string
		state affect.EmotionalState
		style affect.StyleTag
		speed float64
	}{
		{"critical", with(func(s *affect.EmotionalState) { s.CrisisLevel = affect.CrisisCritical; s.Pleasure = 0.9; s.EmotionalIntensity = 1 }), affect.StyleComforting, 0.75},
		{"stress", with(func(s *affect.EmotionalState) { s.Stress = 0.8 }), affect.StyleCalm, 0.85},
		{"high crisis", with(func(s *affect.EmotionalState) { s.CrisisLevel = affect.CrisisHigh }), affect.StyleCalm, 0.85},
		{"low mood", with(func(s *affect.EmotionalState) { s.Pleasure = -0.5 }), affect.StyleGentle, 0.9},
		{"upbeat", with(func(s *affect.EmotionalState) { s.Pleasure = 0.6; s.EmotionalIntensity = 0.8 }), affect.StyleCheerful, 1.15},
		{"positive but mild", with(func(s *affect.EmotionalState) { s.Pleasure = 0.6; s.EmotionalIntensity = 0.5 }), affect.StyleWarm, 1},
		{"neutral", affect.NeutralState(), affect.StyleWarm, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := m.Map(tt.state)
			if got.Style != tt.style || math.Abs(got.Speed-tt.speed) > 1e-9 {
				t.Errorf("Map = %+v, want style %q speed %v", got, tt.style, tt.speed)
			}
			if got.VoiceID != "v1" {
				t.Errorf("voice = %q, want v1", got.VoiceID)
			}
		})
	}
}

func TestMapper_CriticalDirection(t *testing.T) {
	t.Parallel()
	m := mustMapper(t, render.Config{})
	s := affect.NeutralState()
	s.CrisisLevel = affect.CrisisCritical
	got := m.Map(s)
	if got.Speed >= 1 || got.Pitch >= 1 || got.Volume >= 1 {
		t.Errorf("critical params %+v should be slower, lower and softer", got)
	}
}

func TestMapper_MapAtCommittedLevel(t *testing.T) {
	t.Parallel()
	m := mustMapper(t, render.Config{})
	s := affect.NeutralState()
	if got := m.MapAt(s, affect.CrisisCritical); got.Style != affect.StyleComforting {
		t.Errorf("committed critical ignored: %+v", got)
	}
	if got := render.RuleName(s, affect.CrisisCritical); got != "crisis" {
		t.Errorf("RuleName = %q, want crisis", got)
	}
}

func TestMapper_FactorsAndClamp(t *testing.T) {
	t.Parallel()
	m := mustMapper(t, render.Config{SpeedFactor: 2, PitchFactor: 0.5})
	s := affect.NeutralState()
	s.Pleasure, s.EmotionalIntensity = 0.9, 0.9
	got := m.Map(s)
	if got.Speed != affect.MaxRenderFactor {
		t.Errorf("speed = %v, want clamped to %v", got.Speed, affect.MaxRenderFactor)
	}
	s = affect.NeutralState()
	s.CrisisLevel = affect.CrisisCritical
	if got := m.Map(s); got.Pitch != affect.MinRenderFactor {
		t.Errorf("pitch = %v, want clamped to %v", got.Pitch, affect.MinRenderFactor)
	}
}

func TestMapper_RangeInvariant(t *testing.T) {
	t.Parallel()
	m := mustMapper(t, render.Config{SpeedFactor: 1.9, PitchFactor: 0.6})
	rng := rand.New(rand.NewPCG(8, 1))
	for i := 0; i < 500; i++ {
		s := affect.EmotionalState{
			Pleasure: rng.Float64()*4 - 2, Stress: rng.Float64() * 2, EmotionalIntensity: rng.Float64() * 2,
			CrisisLevel: affect.CrisisLevel(rng.IntN(5)),
		}
		got := m.Map(s)
		for _, v := range []float64{got.Speed, got.Pitch, got.Volume} {
			if v < affect.MinRenderFactor || v > affect.MaxRenderFactor {
				t.Fatalf("param %v out of range for %+v", v, s)
			}
		}
	}
}

func TestMapper_StyleVoiceOverride(t *testing.T) {
	t.Parallel()
	m := mustMapper(t, render.Config{VoiceID: "default", Styles: map[affect.StyleTag]string{affect.StyleComforting: "soft"}})
	s := affect.NeutralState()
	s.CrisisLevel = affect.CrisisCritical
	if got := m.Map(s).VoiceID; got != "soft" {
		t.Errorf("voice = %q, want soft", got)
	}
	if got := m.Map(affect.NeutralState()).VoiceID; got != "default" {
		t.Errorf("voice = %q, want default", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()
	if _, err := render.NewMapper(render.Config{SpeedFactor: 3}); err == nil {
		t.Error("expected error for speed factor 3")
	}
	if _, err := render.NewMapper(render.Config{Styles: map[affect.StyleTag]string{"shouty": "x"}}); err == nil {
		t.Error("expected error for unknown style")
	}
	m := mustMapper(t, render.Config{})
	if err := m.SetConfig(render.Config{PitchFactor: 1.2}); err != nil {
		t.Fatal(err)
	}
	if got := m.Map(affect.NeutralState()).Pitch; math.Abs(got-1.2) > 1e-9 {
		t.Errorf("pitch after SetConfig = %v, want 1.2", got)
	}
}

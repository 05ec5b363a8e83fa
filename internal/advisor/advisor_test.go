package advisor_test

import (
	"strings"
	"testing"

	"github.com/MrWong99/attune/internal/advisor"
	"github.com/MrWong99/attune/internal/session"
	"github.com/MrWong99/attune/pkg/affect"
)

func state(e affect.Emotion, intensity float64) affect.EmotionalState {
	s := affect.NeutralState()
	s.PrimaryEmotion = e
	s.EmotionalIntensity = intensity
	return s
}

func TestAdvise(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		state affect.EmotionalState
		level affect.CrisisLevel
		want  affect.ResponseStyle
	}{
		{"critical overrides joy", state(affect.EmotionJoy, 1), affect.CrisisCritical,
			affect.ResponseStyle{Tone: affect.ToneUrgent, Length: affect.LengthShort, Style: affect.StyleCrisis, Urgency: affect.UrgencyImmediate}},
		{"state critical counts too", func() affect.EmotionalState {
			s := state(affect.EmotionNeutral, 0.5)
			s.CrisisLevel = affect.CrisisCritical
			return s
		}(), affect.CrisisNone,
			affect.ResponseStyle{Tone: affect.ToneUrgent, Length: affect.LengthShort, Style: affect.StyleCrisis, Urgency: affect.UrgencyImmediate}},
		{"high crisis", state(affect.EmotionJoy, 1), affect.CrisisHigh,
			affect.ResponseStyle{Tone: affect.ToneCalm, Length: affect.LengthShort, Style: affect.StyleSupportive, Urgency: affect.UrgencyHigh}},
		{"sad and intense", state(affect.EmotionSadness, 0.8), affect.CrisisNone,
			affect.ResponseStyle{Tone: affect.ToneGentle, Length: affect.LengthMedium, Style: affect.StyleSupportive, Urgency: affect.UrgencyHigh}},
		{"joy and intense", state(affect.EmotionJoy, 0.7), affect.CrisisNone,
			affect.ResponseStyle{Tone: affect.ToneEnthusiastic, Length: affect.LengthMedium, Style: affect.StyleCelebratory, Urgency: affect.UrgencyNormal}},
		{"anger", state(affect.EmotionAnger, 0.9), affect.CrisisLow,
			affect.ResponseStyle{Tone: affect.ToneCalm, Length: affect.LengthShort, Style: affect.StyleDeEscalating, Urgency: affect.UrgencyElevated}},
		{"anxiety", state(affect.EmotionAnxiety, 0.6), affect.CrisisNone,
			affect.ResponseStyle{Tone: affect.ToneReassuring, Length: affect.LengthShort, Style: affect.StyleGrounding, Urgency: affect.UrgencyHigh}},
		{"medium crisis mild emotion", state(affect.EmotionSadness, 0.3), affect.CrisisMedium,
			affect.ResponseStyle{Tone: affect.ToneGentle, Length: affect.LengthMedium, Style: affect.StyleSupportive, Urgency: affect.UrgencyElevated}},
		{"sad but mild", state(affect.EmotionSadness, 0.3), affect.CrisisNone, affect.DefaultResponseStyle()},
		{"neutral", affect.NeutralState(), affect.CrisisNone, affect.DefaultResponseStyle()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := advisor.Advise(tt.state, tt.level); got != tt.want {
				t.Errorf("Advise = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPromptHints(t *testing.T) {
	t.Parallel()
	if got := advisor.PromptHints(affect.DefaultResponseStyle(), affect.NeutralState(), nil); got != "" {
		t.Errorf("default hints = %q, want empty", got)
	}

	s := state(affect.EmotionSadness, 0.8)
	style := advisor.Advise(s, affect.CrisisNone)
	ctx := &session.Context{Turns: 4, Trend: session.TrendNegative}
	got := advisor.PromptHints(style, s, ctx)
	for _, want := range []string{"tone=gentle", "style=supportive", "Acknowledge", "sadness", "trending negative over the last 4 turns"} {
		if !strings.Contains(got, want) {
			t.Errorf("hints %q missing %q", got, want)
		}
	}

	crisis := advisor.PromptHints(advisor.Advise(affect.NeutralState(), affect.CrisisCritical), affect.NeutralState(), nil)
	if !strings.Contains(crisis, "safety") {
		t.Errorf("crisis hints %q do not mention safety", crisis)
	}

	trendOnly := advisor.PromptHints(affect.DefaultResponseStyle(), affect.NeutralState(), &session.Context{Turns: 6, Trend: session.TrendPositive})
	if !strings.Contains(trendOnly, "trending positive") {
		t.Errorf("trend-only hints = %q", trendOnly)
	}
}

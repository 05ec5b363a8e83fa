package affect_test

import (
	"testing"

	"github.com/MrWong99/attune/pkg/affect"
)

func TestEmotions_AllValidWithPrototype(t *testing.T) {
	t.Parallel()
	seen := map[affect.Emotion]bool{}
	for _, e := range affect.Emotions() {
		if seen[e] {
			t.Errorf("duplicate emotion %q", e)
		}
		seen[e] = true
		pad, ok := e.Prototype()
		if !ok {
			t.Errorf("%q has no prototype", e)
		}
		if pad.Pleasure < -1 || pad.Pleasure > 1 || pad.Arousal < 0 || pad.Arousal > 1 {
			t.Errorf("%q prototype out of range: %+v", e, pad)
		}
	}
	if affect.Emotion("bliss").IsValid() {
		t.Error("unknown emotion reported valid")
	}
}

func TestParseEmotion(t *testing.T) {
	t.Parallel()
	if e, err := affect.ParseEmotion("sadness"); err != nil || e != affect.EmotionSadness {
		t.Errorf("ParseEmotion(sadness) = %q, %v", e, err)
	}
	if _, err := affect.ParseEmotion("Sadness"); err == nil {
		t.Error("expected error for unknown label")
	}
}

func TestNearest(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		pad  affect.PAD
		want affect.Emotion
	}{
		{"neutral prototype", affect.PAD{0, 0.5, 0.5}, affect.EmotionNeutral},
		{"joy prototype", affect.PAD{0.8, 0.7, 0.5}, affect.EmotionJoy},
		{"sad region", affect.PAD{-0.75, 0.3, -0.4}, affect.EmotionSadness},
		{"angry region", affect.PAD{-0.7, 0.9, 0.6}, affect.EmotionAnger},
		{"crisis prototype never chosen", affect.PAD{-0.9, 0.8, -0.8}, affect.EmotionFear},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, second := affect.Nearest(tt.pad)
			if got != tt.want {
				t.Errorf("Nearest(%+v) primary = %q, want %q", tt.pad, got, tt.want)
			}
			if second == got {
				t.Errorf("secondary equals primary %q", got)
			}
		})
	}
}

func TestEmotion_IsNegative(t *testing.T) {
	t.Parallel()
	if !affect.EmotionSadness.IsNegative() || affect.EmotionJoy.IsNegative() || affect.EmotionNeutral.IsNegative() {
		t.Error("IsNegative disagrees with prototype pleasure")
	}
}

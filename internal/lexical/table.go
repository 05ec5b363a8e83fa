package lexical

import (
	"fmt"
	"strings"

	"github.com/MrWong99/attune/pkg/affect"
)

// Entry is one row of the keyword table. Keywords may be single words or
// multi-word phrases; matching is case-insensitive.
type Entry struct {
	Emotion   affect.Emotion
	Keywords  []string
	Intensity float64 // base intensity in [0, 1]
}

// Table is an ordered keyword table. Order is significant: when two emotions
// score the same, the one registered first wins.
type Table []Entry

// Validate checks that every entry names a known, non-crisis emotion, carries
// at least one keyword and appears only once.
func (t Table) Validate() error {
	seen := make(map[affect.Emotion]bool, len(t))
	for i, e := range t {
		switch {
		case !e.Emotion.IsValid():
			return fmt.Errorf("lexical: entry %d: unknown emotion %q", i, e.Emotion)
		case e.Emotion == affect.EmotionCrisis || e.Emotion == affect.EmotionNeutral:
			return fmt.Errorf("lexical: entry %d: %q cannot be keyword-scored", i, e.Emotion)
		case len(e.Keywords) == 0:
			return fmt.Errorf("lexical: entry %d (%s): no keywords", i, e.Emotion)
		case e.Intensity <= 0 || e.Intensity > 1:
			return fmt.Errorf("lexical: entry %d (%s): intensity %v out of (0, 1]", i, e.Emotion, e.Intensity)
		case seen[e.Emotion]:
			return fmt.Errorf("lexical: entry %d: duplicate emotion %q", i, e.Emotion)
		}
		seen[e.Emotion] = true
		for _, kw := range e.Keywords {
			if strings.TrimSpace(kw) == "" {
				return fmt.Errorf("lexical: entry %d (%s): empty keyword", i, e.Emotion)
			}
		}
	}
	return nil
}

// DefaultTable returns the built-in English keyword table.
func DefaultTable() Table {
	return Table{
		{affect.EmotionJoy, []string{"happy", "glad", "joyful", "delighted", "amazing", "wonderful", "great", "love"}, 0.8},
		{affect.EmotionExcitement, []string{"excited", "thrilled", "can't wait", "awesome", "pumped", "stoked"}, 0.9},
		{affect.EmotionGratitude, []string{"thank you", "thanks", "grateful", "appreciate", "thankful"}, 0.7},
		{affect.EmotionCalm, []string{"calm", "relaxed", "peaceful", "fine", "okay", "content"}, 0.4},
		{affect.EmotionSurprise, []string{"surprised", "wow", "unexpected", "shocked", "can't believe"}, 0.7},
		{affect.EmotionSadness, []string{"sad", "unhappy", "depressed", "crying", "miserable", "heartbroken", "devastated", "hopeless"}, 0.8},
		{affect.EmotionLoneliness, []string{"lonely", "alone", "isolated", "nobody", "no one", "abandoned"}, 0.7},
		{affect.EmotionAnger, []string{"angry", "furious", "mad", "hate", "rage", "pissed"}, 0.9},
		{affect.EmotionFrustration, []string{"frustrated", "annoyed", "annoying", "stuck", "fed up", "irritated"}, 0.7},
		{affect.EmotionFear, []string{"scared", "afraid", "terrified", "frightened", "panic"}, 0.9},
		{affect.EmotionAnxiety, []string{"anxious", "worried", "nervous", "stressed", "overwhelmed", "uneasy"}, 0.8},
		{affect.EmotionDisgust, []string{"disgusted", "gross", "disgusting", "sick of", "revolting"}, 0.7},
	}
}

// DefaultCrisisPhrases returns phrases that indicate self-harm or suicidal
// ideation. Any occurrence forces a crisis classification.
func DefaultCrisisPhrases() []string {
	return []string{
		"kill myself",
		"killing myself",
		"end my life",
		"ending my life",
		"take my own life",
		"want to die",
		"wanna die",
		"suicide",
		"suicidal",
		"hurt myself",
		"harm myself",
		"self harm",
		"no reason to live",
		"better off dead",
		"end it all",
		"can't go on",
	}
}

// negators flip the meaning of a keyword that follows within negationWindow
// tokens in the same clause.
var negators = map[string]bool{
	"not": true, "no": true, "never": true, "nor": true, "neither": true,
	"don't": true, "dont": true, "doesn't": true, "didn't": true,
	"isn't": true, "wasn't": true, "aren't": true, "weren't": true, "ain't": true,
	"hardly": true, "without": true, "barely": true,
}

// intensifiers raise the intensity of a non-neutral classification.
var intensifiers = map[string]bool{
	"so": true, "very": true, "really": true, "extremely": true,
	"incredibly": true, "totally": true, "absolutely": true,
}

const negationWindow = 3

package lexical

import (
	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.90
	defaultFuzzyThreshold    = 0.96

	// minFuzzyLength is the shortest token considered for fuzzy matching.
	// Short words collide too easily ("mad"/"man", "sad"/"said").
	minFuzzyLength = 5
)

// fuzzyMatcher tolerates speech-to-text misspellings of single-word keywords.
//
// Matching proceeds in two tiers. A keyword whose Double Metaphone code
// overlaps the token's code is accepted at the lower phonetic threshold;
// otherwise a pure Jaro-Winkler score must reach the higher fuzzy threshold.
// The matcher is read-only after construction and safe for concurrent use.
type fuzzyMatcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// match returns the keyword from candidates that best matches tok, if any.
func (m *fuzzyMatcher) match(tok string, candidates []string) (keyword string, score float64, ok bool) {
	if m == nil || len(tok) < minFuzzyLength {
		return "", 0, false
	}
	tokCodes := metaphoneCodes(tok)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, kw := range candidates {
		if len(kw) < minFuzzyLength {
			continue
		}
		jw := matchr.JaroWinkler(tok, kw, false)
		phonetic := overlaps(tokCodes, metaphoneCodes(kw))
		switch {
		case phonetic && jw >= m.phoneticThreshold:
			if !bestPhonetic || jw > bestScore {
				best, bestScore, bestPhonetic = kw, jw, true
			}
		case !bestPhonetic && jw >= m.fuzzyThreshold && jw > bestScore:
			best, bestScore = kw, jw
		}
	}
	if best == "" {
		return "", 0, false
	}
	return best, bestScore, true
}

// metaphoneCodes returns the non-empty Double Metaphone codes of w.
func metaphoneCodes(w string) [2]string {
	p, s := matchr.DoubleMetaphone(w)
	return [2]string{p, s}
}

func overlaps(a, b [2]string) bool {
	for _, x := range a {
		if x == "" {
			continue
		}
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

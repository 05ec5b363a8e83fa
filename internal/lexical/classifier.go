// Package lexical classifies transcript text into a discrete emotion with an
// intensity and a PAD estimate, using a statically-typed keyword table.
//
// Each emotion scores base intensity × matched keywords / total keywords; the
// highest score wins and ties go to the first-registered emotion. A separate
// scan for self-harm phrases overrides the scoring entirely. Keywords preceded
// by a negator in the same clause ("not happy") do not count, and single-word
// keywords tolerate small transcription errors through fuzzy matching.
package lexical

import (
	"fmt"
	"strings"

	"github.com/MrWong99/attune/pkg/affect"
)

const (
	// NeutralIntensity is reported when no keyword matches.
	NeutralIntensity = 0.5

	boostStep = 0.1
	boostCap  = 0.2
)

// Hit records one keyword occurrence found in the text.
type Hit struct {
	Emotion affect.Emotion `json:"emotion"`
	Keyword string         `json:"keyword"`

	// Token is the transcript word that matched; it differs from Keyword for
	// fuzzy matches.
	Token   string  `json:"token"`
	Score   float64 `json:"score"` // 1 for exact matches
	Negated bool    `json:"negated,omitempty"`
}

// Result is the lexical verdict for one transcript.
type Result struct {
	Primary   affect.Emotion `json:"primary"`
	Secondary affect.Emotion `json:"secondary"`
	Intensity float64        `json:"intensity"`
	PAD       affect.PAD     `json:"pad"`

	// Crisis is set when a crisis phrase was found. Primary is then
	// [affect.EmotionCrisis].
	Crisis       bool   `json:"crisis"`
	CrisisPhrase string `json:"crisis_phrase,omitempty"`

	// Scores maps every emotion with at least one counted hit to its
	// candidate intensity.
	Scores map[affect.Emotion]float64 `json:"scores,omitempty"`
	Hits   []Hit                      `json:"hits,omitempty"`
}

// Matched reports whether any keyword or crisis phrase contributed.
func (r Result) Matched() bool { return r.Crisis || len(r.Scores) > 0 }

// compiledEntry is a table entry with pre-tokenised keywords.
type compiledEntry struct {
	Entry
	phrases [][]string // tokenised keywords, same order as Keywords
}

// Classifier is the keyword-table emotion classifier. It is read-only after
// construction and safe for concurrent use.
type Classifier struct {
	entries []compiledEntry
	crisis  [][]string
	fuzzy   *fuzzyMatcher

	// singles is every single-word keyword, for fuzzy candidate lookup.
	singles []string
	// exact holds every single-word keyword so exact hits never go fuzzy.
	exact map[string]bool

	negation bool
}

// Option configures a [Classifier].
type Option func(*options)

type options struct {
	table             Table
	crisisPhrases     []string
	fuzzyThreshold    float64
	phoneticThreshold float64
	fuzzy             bool
	negation          bool
}

// WithTable replaces the built-in keyword table.
func WithTable(t Table) Option {
	return func(o *options) { o.table = t }
}

// WithCrisisPhrases replaces the built-in crisis phrase list.
func WithCrisisPhrases(phrases []string) Option {
	return func(o *options) { o.crisisPhrases = phrases }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler similarity for a
// non-phonetic fuzzy keyword match. Zero or negative disables fuzzy matching.
func WithFuzzyThreshold(threshold float64) Option {
	return func(o *options) {
		if threshold <= 0 {
			o.fuzzy = false
			return
		}
		o.fuzzy = true
		o.fuzzyThreshold = threshold
	}
}

// WithPhoneticThreshold sets the minimum Jaro-Winkler similarity for a fuzzy
// match whose Double Metaphone codes agree with the keyword.
func WithPhoneticThreshold(threshold float64) Option {
	return func(o *options) { o.phoneticThreshold = threshold }
}

// WithoutNegation disables negation handling.
func WithoutNegation() Option {
	return func(o *options) { o.negation = false }
}

// New builds a Classifier. It fails only when a custom table is invalid.
func New(opts ...Option) (*Classifier, error) {
	o := options{
		table:             DefaultTable(),
		crisisPhrases:     DefaultCrisisPhrases(),
		fuzzyThreshold:    defaultFuzzyThreshold,
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzy:             true,
		negation:          true,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.table.Validate(); err != nil {
		return nil, err
	}

	c := &Classifier{exact: make(map[string]bool), negation: o.negation}
	for _, e := range o.table {
		ce := compiledEntry{Entry: e, phrases: make([][]string, len(e.Keywords))}
		for i, kw := range e.Keywords {
			ce.phrases[i] = phraseTokens(kw)
			if len(ce.phrases[i]) == 1 && !c.exact[ce.phrases[i][0]] {
				c.exact[ce.phrases[i][0]] = true
				c.singles = append(c.singles, ce.phrases[i][0])
			}
		}
		c.entries = append(c.entries, ce)
	}
	for _, p := range o.crisisPhrases {
		if toks := phraseTokens(p); len(toks) > 0 {
			c.crisis = append(c.crisis, toks)
		}
	}
	if o.fuzzy {
		c.fuzzy = &fuzzyMatcher{phoneticThreshold: o.phoneticThreshold, fuzzyThreshold: o.fuzzyThreshold}
	}
	return c, nil
}

// MustNew is like [New] but panics on error. Intended for the built-in table.
func MustNew(opts ...Option) *Classifier {
	c, err := New(opts...)
	if err != nil {
		panic(fmt.Sprintf("lexical: %v", err))
	}
	return c
}

// Classify scores text against the keyword table. Empty text yields the
// neutral result.
func (c *Classifier) Classify(text string) Result {
	res := neutralResult()
	toks := tokenize(text)
	if len(toks) == 0 {
		return res
	}

	if phrase, ok := c.scanCrisis(toks); ok {
		res.Crisis = true
		res.CrisisPhrase = phrase
	}

	fuzzyHits := c.fuzzyHits(toks)
	bestIdx, runnerIdx := -1, -1
	var bestScore, runnerScore float64
	for i, e := range c.entries {
		matched := 0
		for k, phrase := range e.phrases {
			hit, counted := c.matchKeyword(toks, e, k, phrase, fuzzyHits)
			if hit != nil {
				res.Hits = append(res.Hits, *hit)
			}
			if counted {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		score := e.Intensity * float64(matched) / float64(len(e.Keywords))
		if res.Scores == nil {
			res.Scores = make(map[affect.Emotion]float64)
		}
		res.Scores[e.Emotion] = score
		switch {
		case bestIdx < 0 || score > bestScore:
			runnerIdx, runnerScore = bestIdx, bestScore
			bestIdx, bestScore = i, score
		case runnerIdx < 0 || score > runnerScore:
			runnerIdx, runnerScore = i, score
		}
	}

	if bestIdx >= 0 {
		e := c.entries[bestIdx].Emotion
		res.Primary = e
		res.PAD, _ = e.Prototype()
		res.Intensity = affect.Clamp01(bestScore + boost(toks, text))
		if runnerIdx >= 0 {
			res.Secondary = c.entries[runnerIdx].Emotion
		}
	}

	if res.Crisis {
		if res.Primary != affect.EmotionNeutral {
			res.Secondary = res.Primary
		}
		res.Primary = affect.EmotionCrisis
		res.PAD, _ = affect.EmotionCrisis.Prototype()
		res.Intensity = 1
	}
	return res
}

func neutralResult() Result {
	pad, _ := affect.EmotionNeutral.Prototype()
	return Result{
		Primary:   affect.EmotionNeutral,
		Secondary: affect.EmotionNeutral,
		Intensity: NeutralIntensity,
		PAD:       pad,
	}
}

func (c *Classifier) scanCrisis(toks []token) (string, bool) {
	for _, phrase := range c.crisis {
		if len(findSequence(toks, phrase, false)) > 0 {
			return strings.Join(phrase, " "), true
		}
	}
	return "", false
}

// fuzzyHit is a transcript token matched to a keyword it does not spell.
type fuzzyHit struct {
	index   int
	keyword string
	score   float64
}

// fuzzyHits resolves every token that is not itself a keyword to its best
// fuzzy keyword, keyed by keyword.
func (c *Classifier) fuzzyHits(toks []token) map[string][]fuzzyHit {
	if c.fuzzy == nil {
		return nil
	}
	var hits map[string][]fuzzyHit
	for i, t := range toks {
		if c.exact[t.text] {
			continue
		}
		kw, score, ok := c.fuzzy.match(t.text, c.singles)
		if !ok {
			continue
		}
		if hits == nil {
			hits = make(map[string][]fuzzyHit)
		}
		hits[kw] = append(hits[kw], fuzzyHit{index: i, keyword: kw, score: score})
	}
	return hits
}

// matchKeyword looks for keyword k of entry e. It returns the hit to report
// (nil when absent) and whether it counts towards the score. A keyword counts
// once however often it occurs; it counts if any occurrence is not negated.
func (c *Classifier) matchKeyword(toks []token, e compiledEntry, k int, phrase []string, fuzzy map[string][]fuzzyHit) (*Hit, bool) {
	var report *Hit
	for _, start := range findSequence(toks, phrase, true) {
		h := &Hit{Emotion: e.Emotion, Keyword: e.Keywords[k], Token: strings.Join(phrase, " "), Score: 1}
		if c.negation && negated(toks, start) {
			h.Negated = true
			report = h
			continue
		}
		return h, true
	}
	if len(phrase) == 1 {
		for _, fh := range fuzzy[phrase[0]] {
			h := &Hit{Emotion: e.Emotion, Keyword: e.Keywords[k], Token: toks[fh.index].text, Score: fh.score}
			if c.negation && negated(toks, fh.index) {
				h.Negated = true
				report = h
				continue
			}
			return h, true
		}
	}
	return report, false
}

// boost adds up to boostCap for intensifier words and up to boostCap for
// repeated exclamation marks.
func boost(toks []token, text string) float64 {
	var words float64
	for _, t := range toks {
		if intensifiers[t.text] {
			words += boostStep
		}
	}
	var excl float64
	if n := strings.Count(text, "!"); n >= 2 {
		excl = float64(n) * boostStep
	}
	return min(words, boostCap) + min(excl, boostCap)
}

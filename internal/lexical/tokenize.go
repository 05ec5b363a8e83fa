package lexical

import (
	"strings"
	"unicode"
)

// token is a lower-cased word together with the clause it belongs to.
// Clauses are separated by sentence punctuation and bound negation scope.
type token struct {
	text   string
	clause int
}

var apostrophes = strings.NewReplacer("’", "'", "‘", "'", "`", "'")

func isClauseBreak(r rune) bool {
	switch r {
	case '.', ',', '!', '?', ';', ':', '\n':
		return true
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\''
}

// tokenize splits text into lower-cased word tokens.
func tokenize(text string) []token {
	text = apostrophes.Replace(strings.ToLower(text))
	var (
		out    []token
		clause int
		b      strings.Builder
	)
	flush := func() {
		if w := strings.Trim(b.String(), "'"); w != "" {
			out = append(out, token{text: w, clause: clause})
		}
		b.Reset()
	}
	for _, r := range text {
		switch {
		case isWordRune(r):
			b.WriteRune(r)
		case isClauseBreak(r):
			flush()
			clause++
		default:
			flush()
		}
	}
	flush()
	return out
}

// phraseTokens splits a keyword or phrase into its word sequence.
func phraseTokens(phrase string) []string {
	toks := tokenize(phrase)
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = t.text
	}
	return out
}

// findSequence returns the start index of every occurrence of seq in toks
// whose words all sit in one clause. When sameClause is false, clause
// boundaries are ignored.
func findSequence(toks []token, seq []string, sameClause bool) []int {
	if len(seq) == 0 || len(seq) > len(toks) {
		return nil
	}
	var starts []int
outer:
	for i := 0; i+len(seq) <= len(toks); i++ {
		for j, w := range seq {
			t := toks[i+j]
			if t.text != w || (sameClause && t.clause != toks[i].clause) {
				continue outer
			}
		}
		starts = append(starts, i)
	}
	return starts
}

// negated reports whether a negator precedes index i within the window and
// the same clause.
func negated(toks []token, i int) bool {
	for k := i - 1; k >= 0 && k >= i-negationWindow; k-- {
		if toks[k].clause != toks[i].clause {
			return false
		}
		if negators[toks[k].text] {
			return true
		}
	}
	return false
}

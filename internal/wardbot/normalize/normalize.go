// Package normalize implements the canonical text form shared by the
// prohibited-lexicon cache and the moderation pipeline's matcher.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
)

// apostrophes is the class of characters stripped as apostrophe-equivalents,
// per spec: {' ’ ‘ ʻ ʼ ` ´ ˈ}.
const apostrophes = "'’‘ʻʼ`´ˈ"

var foldCaser = cases.Fold()

// Kind selects the rejoin rule applied in the final normalization step.
type Kind int

const (
	// Token rejoins alphanumeric runs with no separator, producing a single
	// concatenated identifier. Used for ProhibitedWord.word when it is a
	// single TOKEN and for lexicon-token lookups.
	Token Kind = iota
	// Phrase rejoins alphanumeric runs with single spaces, preserving word
	// boundaries. Used for free text and multi-word PHRASE entries.
	Phrase
)

// Text runs the full normalization pipeline on s using the given caseFold
// setting (CASE_INSENSITIVE) and rejoin Kind.
//
// Steps: trim outer whitespace; case-fold (if caseFold); collapse a
// decimal-digit run followed by '+' into the digit run followed by the
// literal "plus" (defeats "1+bet" → "1plusbet" evasions); strip apostrophes
// and bare '+'; extract maximal ASCII-alphanumeric runs; rejoin per kind.
func Text(s string, caseFold bool, kind Kind) string {
	s = strings.TrimSpace(s)
	if caseFold {
		s = foldCaser.String(s)
	}
	s = collapseDigitPlus(s)
	s = stripApostrophes(s)

	runs := tokenizeRunes([]rune(s))
	switch kind {
	case Phrase:
		return strings.Join(runs, " ")
	default:
		return strings.Join(runs, "")
	}
}

// Word normalizes a single lexicon entry as a TOKEN (no separator on rejoin).
// Callers that need PHRASE semantics (entry.word contains inner whitespace)
// should call Text directly with Phrase.
func Word(s string, caseFold bool) string {
	return Text(s, caseFold, Token)
}

// Tokenize returns the ordered sequence of maximal ASCII-alphanumeric runs in
// text, after case-folding and digit-plus collapsing but before any
// rejoining — i.e. the same runs Text would rejoin.
func Tokenize(text string, caseFold bool) []string {
	s := strings.TrimSpace(text)
	if caseFold {
		s = foldCaser.String(s)
	}
	s = collapseDigitPlus(s)
	s = stripApostrophes(s)
	return tokenizeRunes([]rune(s))
}

func collapseDigitPlus(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		if unicode.IsDigit(runes[i]) {
			start := i
			for i < len(runes) && unicode.IsDigit(runes[i]) {
				i++
			}
			if i < len(runes) && runes[i] == '+' {
				b.WriteString(string(runes[start:i]))
				b.WriteString("plus")
				i++ // consume the '+'
				i--
				continue
			}
			b.WriteString(string(runes[start:i]))
			i--
			continue
		}
		b.WriteRune(runes[i])
	}
	return b.String()
}

func stripApostrophes(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '+' || strings.ContainsRune(apostrophes, r) {
			return -1
		}
		return r
	}, s)
}

func tokenizeRunes(runes []rune) []string {
	var runs []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			runs = append(runs, cur.String())
			cur.Reset()
		}
	}
	for _, r := range runes {
		if isASCIIAlphanumeric(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return runs
}

func isASCIIAlphanumeric(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

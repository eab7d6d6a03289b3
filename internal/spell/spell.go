// Package spell corrects misspelled input tokens toward the rule lexicon
// before pattern matching, so that "helo" still reaches the "HELLO" rules.
//
// Correction proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     the input token and for each lexicon word. Words sharing a code with
//     the token become phonetic candidates.
//
//  2. Jaro-Winkler ranking: among phonetic candidates, the word with the
//     highest Jaro-Winkler similarity (case-insensitive) replaces the token,
//     provided its score exceeds the phonetic threshold.
//
//     When no phonetic candidate exists, a secondary pass tests pure
//     Jaro-Winkler similarity against the whole lexicon using a higher
//     fuzzy threshold.
//
// Tokens already present in the lexicon are never touched, so names the
// rules don't know pass through unchanged.
package spell

import (
	"strings"
	"sync/atomic"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.88
)

// Option configures a [Corrector] during construction.
type Option func(*Corrector)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched lexicon word to replace a token. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic candidate is found and correction falls back to pure string
// similarity. Default: 0.88.
func WithFuzzyThreshold(threshold float64) Option {
	return func(c *Corrector) {
		c.fuzzyThreshold = threshold
	}
}

// Corrector maps out-of-lexicon tokens to their closest lexicon word.
// The lexicon tables live behind an atomic pointer so [Corrector.Rebuild]
// can swap in a new lexicon after a rule hot reload while corrections are
// in flight. Thresholds are fixed at construction.
type Corrector struct {
	tables            atomic.Pointer[tables]
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// tables is one immutable lexicon snapshot.
type tables struct {
	words  []string            // lowercased lexicon
	known  map[string]bool     // membership test
	byCode map[string][]string // metaphone code → lexicon words
}

// NewCorrector builds a Corrector over lexicon. Word case is ignored.
func NewCorrector(lexicon []string, opts ...Option) *Corrector {
	c := &Corrector{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tables.Store(buildTables(lexicon))
	return c
}

// Rebuild replaces the lexicon atomically. Corrections already in flight
// keep using the old tables; new calls see the new lexicon.
func (c *Corrector) Rebuild(lexicon []string) {
	c.tables.Store(buildTables(lexicon))
}

func buildTables(lexicon []string) *tables {
	t := &tables{
		known:  make(map[string]bool, len(lexicon)),
		byCode: make(map[string][]string),
	}
	for _, w := range lexicon {
		lower := strings.ToLower(w)
		if lower == "" || t.known[lower] {
			continue
		}
		t.known[lower] = true
		t.words = append(t.words, lower)
		primary, secondary := matchr.DoubleMetaphone(lower)
		for _, code := range []string{primary, secondary} {
			if code != "" {
				t.byCode[code] = append(t.byCode[code], lower)
			}
		}
	}
	return t
}

// Correct returns tokens with out-of-lexicon words replaced by their best
// lexicon match, preserving the order and count of the input. Tokens with
// no acceptable match pass through unchanged.
func (c *Corrector) Correct(tokens []string) []string {
	t := c.tables.Load()
	out := make([]string, len(tokens))
	for i, tok := range tokens {
		out[i] = c.correctOne(t, tok)
	}
	return out
}

func (c *Corrector) correctOne(t *tables, tok string) string {
	lower := strings.ToLower(tok)
	if len(lower) < 2 || t.known[lower] {
		return tok
	}

	if best, score := bestPhonetic(t, lower); best != "" && score >= c.phoneticThreshold {
		return best
	}
	if best, score := bestOverall(t, lower); best != "" && score >= c.fuzzyThreshold {
		return best
	}
	return tok
}

func bestPhonetic(t *tables, lower string) (string, float64) {
	primary, secondary := matchr.DoubleMetaphone(lower)
	seen := make(map[string]bool)
	best, bestScore := "", 0.0
	for _, code := range []string{primary, secondary} {
		if code == "" {
			continue
		}
		for _, w := range t.byCode[code] {
			if seen[w] {
				continue
			}
			seen[w] = true
			if score := matchr.JaroWinkler(lower, w, true); score > bestScore {
				best, bestScore = w, score
			}
		}
	}
	return best, bestScore
}

func bestOverall(t *tables, lower string) (string, float64) {
	best, bestScore := "", 0.0
	for _, w := range t.words {
		if score := matchr.JaroWinkler(lower, w, true); score > bestScore {
			best, bestScore = w, score
		}
	}
	return best, bestScore
}

// Package brain implements the wildcard pattern index at the heart of the
// Synapse dialogue engine: an immutable trie over stimulus patterns,
// optionally scoped by conversation topic and the prior bot utterance, with
// a deterministic backtracking matcher.
//
// An [Index] is read-only after construction; lookups never block, never
// mutate, and are safe to run concurrently without coordination. Hot reload
// is done by building a fresh Index and swapping it into a [Brain].
package brain

import (
	"fmt"
	"strings"

	"github.com/synapsebot/synapse/internal/template"
)

// Rule is one stimulus-response entry of the rule library. Immutable after
// load; uniquely identified by its (pattern, topic, that) triple.
type Rule struct {
	// ID is the canonical identity string derived from the triple.
	ID string

	// Pattern is the tokenized, case-folded stimulus pattern. Never empty.
	Pattern []string

	// Topic is the tokenized topic constraint, or nil when the rule applies
	// under any topic.
	Topic []string

	// That is the tokenized prior-bot-utterance constraint, or nil when the
	// rule applies after any utterance.
	That []string

	// Template is the parsed response specification.
	Template []template.Node
}

// Wildcards returns the total wildcard count across the rule's pattern,
// topic, and that sections.
func (r *Rule) Wildcards() int {
	n := 0
	for _, sec := range [][]string{r.Pattern, r.Topic, r.That} {
		for _, tok := range sec {
			if isWildcard(tok) {
				n++
			}
		}
	}
	return n
}

// firstWildcard returns the index of the first wildcard in the rule's
// pattern, or len(pattern) when the pattern has none.
func (r *Rule) firstWildcard() int {
	for i, tok := range r.Pattern {
		if isWildcard(tok) {
			return i
		}
	}
	return len(r.Pattern)
}

// ruleKey builds the canonical identity for a (pattern, topic, that) triple.
// Two rules with the same key are duplicates and rejected at load time.
func ruleKey(pattern, topic, that []string) string {
	var sb strings.Builder
	sb.WriteString(strings.Join(pattern, " "))
	if len(topic) > 0 {
		sb.WriteString(" " + sepTopic + " ")
		sb.WriteString(strings.Join(topic, " "))
	}
	if len(that) > 0 {
		sb.WriteString(" " + sepThat + " ")
		sb.WriteString(strings.Join(that, " "))
	}
	return sb.String()
}

// compileSection tokenizes and folds one rule section, validating wildcard
// placement. A section token must be a word, "_", or "*"; wildcards glued to
// word characters (such as "*foo") are malformed.
func compileSection(raw, section string) ([]string, error) {
	var toks []string
	for _, f := range strings.Fields(raw) {
		if f == WildcardOne || f == WildcardMany {
			toks = append(toks, f)
			continue
		}
		if strings.ContainsAny(f, "*_") {
			return nil, fmt.Errorf("brain: %s: malformed wildcard token %q", section, f)
		}
		words := Tokenize(f)
		if len(words) == 0 {
			return nil, fmt.Errorf("brain: %s: token %q normalises to nothing", section, f)
		}
		toks = append(toks, foldAll(words)...)
	}
	return toks, nil
}

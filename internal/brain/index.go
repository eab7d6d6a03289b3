package brain

import (
	"fmt"
	"slices"
	"strings"
)

// node is one trie position. children hold literal-token branches; single
// and multi are the wildcard branches. A terminal node carries the rule
// whose full (pattern, topic, that) path ends here.
type node struct {
	children    map[string]*node
	literalKeys []string // sorted copy of children keys, for deterministic relaxed traversal
	single      *node    // "_" branch
	multi       *node    // "*" branch
	rule        *Rule
}

func (n *node) child(tok string) *node {
	if n.children == nil {
		n.children = make(map[string]*node)
	}
	c := n.children[tok]
	if c == nil {
		c = &node{}
		n.children[tok] = c
	}
	return c
}

// Index is the immutable pattern index. Construction happens once from the
// full rule set; lookups are pure reads and safe for unlimited concurrency.
type Index struct {
	root    *node
	rules   []*Rule
	lexicon []string
}

// NewIndex builds the trie from rules. It fails on the first duplicate
// (pattern, topic, that) triple; rule compilation errors are the loader's
// responsibility and rules arriving here are assumed well formed.
func NewIndex(rules []*Rule) (*Index, error) {
	ix := &Index{root: &node{}}
	seen := make(map[string]bool, len(rules))
	words := make(map[string]bool)

	for _, r := range rules {
		if seen[r.ID] {
			return nil, fmt.Errorf("brain: duplicate rule %q", r.ID)
		}
		seen[r.ID] = true

		n := ix.root
		for _, tok := range insertPath(r) {
			switch tok {
			case WildcardOne:
				if n.single == nil {
					n.single = &node{}
				}
				n = n.single
			case WildcardMany:
				if n.multi == nil {
					n.multi = &node{}
				}
				n = n.multi
			default:
				n = n.child(tok)
			}
			if !isWildcard(tok) && !isMarker(tok) {
				words[tok] = true
			}
		}
		n.rule = r
		ix.rules = append(ix.rules, r)
	}

	freezeKeys(ix.root)

	ix.lexicon = make([]string, 0, len(words))
	for w := range words {
		ix.lexicon = append(ix.lexicon, w)
	}
	slices.Sort(ix.lexicon)
	return ix, nil
}

// insertPath flattens a rule into its full trie path:
// pattern, topic marker, topic (or "*" when unconstrained), that marker,
// that (or "*"). The topic section precedes the that section so that topic
// specificity outranks that specificity at equal pattern specificity.
func insertPath(r *Rule) []string {
	path := make([]string, 0, len(r.Pattern)+len(r.Topic)+len(r.That)+4)
	path = append(path, r.Pattern...)
	path = append(path, sepTopic)
	if len(r.Topic) == 0 {
		path = append(path, WildcardMany)
	} else {
		path = append(path, r.Topic...)
	}
	path = append(path, sepThat)
	if len(r.That) == 0 {
		path = append(path, WildcardMany)
	} else {
		path = append(path, r.That...)
	}
	return path
}

func freezeKeys(n *node) {
	if n == nil {
		return
	}
	if len(n.children) > 0 {
		n.literalKeys = make([]string, 0, len(n.children))
		for k := range n.children {
			n.literalKeys = append(n.literalKeys, k)
		}
		slices.Sort(n.literalKeys)
		for _, k := range n.literalKeys {
			freezeKeys(n.children[k])
		}
	}
	freezeKeys(n.single)
	freezeKeys(n.multi)
}

// Rules returns the rules the index was built from, in load order.
func (ix *Index) Rules() []*Rule { return ix.rules }

// Len returns the number of rules in the index.
func (ix *Index) Len() int { return len(ix.rules) }

// Lexicon returns the sorted set of literal words appearing in any rule
// section. Used to seed the spell corrector.
func (ix *Index) Lexicon() []string { return ix.lexicon }

// Specificity ranks a match. Lower Wildcards is more specific; at equal
// counts, a later FirstWildcard is more specific. The trie's branch
// precedence (literal, then "_", then "*") realises this ordering during
// the search itself; the rank is reported for diagnostics.
type Specificity struct {
	// Wildcards is the total wildcard count of the matched rule.
	Wildcards int

	// FirstWildcard is the index of the first wildcard in the matched
	// rule's pattern, or the pattern length when it has none.
	FirstWildcard int
}

// Match is the transient result of one lookup, consumed immediately by the
// template resolver.
type Match struct {
	Rule *Rule

	// Star, TopicStar, and ThatStar hold the wildcard captures of the
	// corresponding rule section, in order. The capture count always equals
	// the section's wildcard count.
	Star      []string
	TopicStar []string
	ThatStar  []string

	Rank Specificity
}

// Lookup finds the best-matching rule for the given conversational context.
// Input tokens keep their original form; matching is case-insensitive.
//
// An unset topic (or that) becomes a sentinel that matches only rules
// without the corresponding constraint. If nothing matches under that
// restriction, a second relaxed pass lets the sentinel match every branch;
// only when the relaxed pass also misses does Lookup report no match.
func (ix *Index) Lookup(topic, that string, input []string) (*Match, bool) {
	if len(input) == 0 {
		return nil, false
	}
	if len(input) > maxInputTokens {
		input = input[:maxInputTokens]
	}

	topicToks := Tokenize(topic)
	thatToks := Tokenize(that)

	folded, orig := buildPath(input, topicToks, thatToks)

	if m := ix.search(folded, orig, false); m != nil {
		return m, true
	}
	if len(topicToks) == 0 || len(thatToks) == 0 {
		if m := ix.search(folded, orig, true); m != nil {
			return m, true
		}
	}
	return nil, false
}

// LookupText is [Index.Lookup] over raw text, used by recursive-match
// directives.
func (ix *Index) LookupText(topic, that, input string) (*Match, bool) {
	return ix.Lookup(topic, that, Tokenize(input))
}

// buildPath assembles the aligned folded/original token paths:
// input, topic marker, topic tokens (or sentinel), that marker, that tokens
// (or sentinel).
func buildPath(input, topicToks, thatToks []string) (folded, orig []string) {
	n := len(input) + len(topicToks) + len(thatToks) + 4
	folded = make([]string, 0, n)
	orig = make([]string, 0, n)

	appendSection := func(toks []string) {
		if len(toks) == 0 {
			folded = append(folded, anyToken)
			orig = append(orig, anyToken)
			return
		}
		folded = append(folded, foldAll(toks)...)
		orig = append(orig, toks...)
	}

	appendSection(input)
	folded = append(folded, sepTopic)
	orig = append(orig, sepTopic)
	appendSection(topicToks)
	folded = append(folded, sepThat)
	orig = append(orig, sepThat)
	appendSection(thatToks)
	return folded, orig
}

func (ix *Index) search(folded, orig []string, relax bool) *Match {
	m := &matcher{relax: relax}
	rule := m.match(ix.root, folded, orig, sectionPattern)
	if rule == nil {
		return nil
	}

	result := &Match{
		Rule: rule,
		Star: slices.Clone(m.caps[sectionPattern]),
		Rank: Specificity{Wildcards: rule.Wildcards(), FirstWildcard: rule.firstWildcard()},
	}
	// Captures from the implicit "*" stored for an unconstrained section are
	// dropped: the rule has no wildcard there to bind.
	if len(rule.Topic) > 0 {
		result.TopicStar = slices.Clone(m.caps[sectionTopic])
	}
	if len(rule.That) > 0 {
		result.ThatStar = slices.Clone(m.caps[sectionThat])
	}
	return result
}

const (
	sectionPattern = 0
	sectionTopic   = 1
	sectionThat    = 2
)

// matcher carries the mutable capture state of one depth-first search.
type matcher struct {
	relax bool
	caps  [3][]string
}

func (m *matcher) push(section int, capture string) {
	m.caps[section] = append(m.caps[section], capture)
}

func (m *matcher) pop(section int) {
	m.caps[section] = m.caps[section][:len(m.caps[section])-1]
}

// match walks the trie depth-first. Branch precedence at every node is
// literal first, then "_", then "*", the ordering that makes the most
// specific rule win. The "*" branch is greedy and backtracks from the
// longest possible span down to a single token. Recursion depth is bounded
// by the path length, which maxInputTokens caps.
func (m *matcher) match(n *node, folded, orig []string, section int) *Rule {
	if len(folded) == 0 {
		return n.rule
	}
	tok := folded[0]

	// Section markers match only their literal branch and advance the
	// capture section; wildcards never consume them.
	if tok == sepTopic || tok == sepThat {
		next := sectionTopic
		if tok == sepThat {
			next = sectionThat
		}
		if c := n.children[tok]; c != nil {
			return m.match(c, folded[1:], orig[1:], next)
		}
		return nil
	}

	if c := n.children[tok]; c != nil {
		if r := m.match(c, folded[1:], orig[1:], section); r != nil {
			return r
		}
	}

	// Relaxed pass: the unset-context sentinel matches every literal branch.
	if m.relax && tok == anyToken {
		for _, k := range n.literalKeys {
			if k == sepTopic || k == sepThat {
				continue
			}
			if r := m.match(n.children[k], folded[1:], orig[1:], section); r != nil {
				return r
			}
		}
	}

	if n.single != nil && (tok != anyToken || m.relax) {
		m.push(section, captureText(orig[:1]))
		if r := m.match(n.single, folded[1:], orig[1:], section); r != nil {
			return r
		}
		m.pop(section)
	}

	if n.multi != nil {
		span := 0
		for span < len(folded) && folded[span] != sepTopic && folded[span] != sepThat {
			span++
		}
		for k := span; k >= 1; k-- {
			m.push(section, captureText(orig[:k]))
			if r := m.match(n.multi, folded[k:], orig[k:], section); r != nil {
				return r
			}
			m.pop(section)
		}
	}
	return nil
}

// captureText joins captured original tokens, dropping internal sentinels so
// an unset context never leaks marker text into a binding.
func captureText(orig []string) string {
	kept := make([]string, 0, len(orig))
	for _, t := range orig {
		if !isMarker(t) {
			kept = append(kept, t)
		}
	}
	return strings.Join(kept, " ")
}

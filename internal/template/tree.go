// Package template models response specifications as a closed tree of
// directive nodes and resolves them against session state, wildcard
// bindings, and the knowledge graph.
//
// A response specification is a sequence of [Node] values whose resolved
// texts are concatenated. The node set is closed: every directive kind is a
// distinct type and the resolver handles all of them exhaustively, so an
// unhandled directive cannot slip through at runtime.
package template

// Node is one element of a response specification tree.
//
// The concrete types are [Literal], [Get], [BotProp], [Star], [ThatStar],
// [TopicStar], [Set], [Random], [Recurse], and [GraphQuery].
type Node interface {
	isNode()
}

// Literal is plain response text passed through unchanged.
type Literal string

// Get reads a session variable by name. An unset variable resolves to the
// empty string, never an error.
type Get string

// BotProp reads a read-only bot property by name (e.g., "name", "location").
type BotProp string

// Star substitutes the Nth pattern wildcard binding (1-based).
type Star int

// ThatStar substitutes the Nth that-pattern wildcard binding (1-based).
type ThatStar int

// TopicStar substitutes the Nth topic-pattern wildcard binding (1-based).
type TopicStar int

// Set resolves Value, emits the resolved text, and records it as a pending
// session-variable update. Updates are applied atomically by the context
// store after the turn completes; resolution itself never mutates session
// state. The reserved name "topic" switches the conversation topic.
type Set struct {
	Name  string
	Value []Node
}

// Tone labels a [Random] alternative for sentiment-aware selection.
type Tone string

const (
	ToneEmpathetic Tone = "empathetic"
	ToneNeutral    Tone = "neutral"
	TonePlayful    Tone = "playful"
)

// IsValid reports whether t is a recognised tone label.
func (t Tone) IsValid() bool {
	switch t {
	case ToneEmpathetic, ToneNeutral, TonePlayful:
		return true
	}
	return false
}

// Alternative is one candidate sub-tree of a [Random] node. Tone is optional;
// untagged alternatives survive every tone filter.
type Alternative struct {
	Tone  Tone
	Value []Node
}

// Random picks one alternative. Selection is uniform over the candidate set
// after tone filtering, driven by the per-turn seeded RNG so that identical
// turns replay identically in tests.
type Random struct {
	Alternatives []Alternative
}

// Recurse resolves Value to a string and re-invokes pattern matching on it,
// substituting the resolution of the matched rule's template. Nesting is
// bounded by the resolver's depth limit.
type Recurse struct {
	Value []Node
}

// GraphQuery resolves Entity to an entity name, follows Path through the
// knowledge graph, and substitutes the values reached joined by the
// configured separator. Backend errors, timeouts, and empty results all
// substitute the not-found placeholder.
type GraphQuery struct {
	Entity []Node
	Path   []string
}

func (Literal) isNode()    {}
func (Get) isNode()        {}
func (BotProp) isNode()    {}
func (Star) isNode()       {}
func (ThatStar) isNode()   {}
func (TopicStar) isNode()  {}
func (Set) isNode()        {}
func (Random) isNode()     {}
func (Recurse) isNode()    {}
func (GraphQuery) isNode() {}

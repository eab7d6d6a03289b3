// Package graph defines the query interface between the dialogue engine and
// an external knowledge-graph backend.
//
// The engine consumes the backend exclusively through [Querier]; any error,
// timeout, or empty result is treated identically to "not found" by the
// template resolver, so a backend outage degrades response content without
// failing the turn. [Recorder] is the optional write side: a best-effort
// archive of completed turns for later graph exploration.
//
// Every implementation must be safe for concurrent use.
package graph

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by [Querier.Query] when the entity exists but the
// relationship path yields no values, or when the entity is unknown.
var ErrNotFound = errors.New("graph: not found")

// Querier answers relationship-path queries against the knowledge graph.
type Querier interface {
	// Query starts at the entity with the given name, follows the named
	// relationships in order, and returns the names of the nodes reached.
	// Returns [ErrNotFound] when nothing is reached. The query must respect
	// ctx cancellation and deadlines.
	Query(ctx context.Context, entity string, path []string) ([]string, error)
}

// Turn is one completed exchange archived to the graph.
type Turn struct {
	// SessionID identifies the conversation this turn belongs to.
	SessionID string

	// TurnID uniquely identifies this turn.
	TurnID string

	// PrevTurnID links to the previous turn in the same session.
	// Empty for the first turn of a conversation.
	PrevTurnID string

	// Input is the user's utterance, Response the bot's reply.
	Input    string
	Response string

	// Intents are the detected intent labels for Input.
	Intents []string

	// Polarity is the sentiment polarity of Input in [-1, 1];
	// Label is its coarse classification (Positive/Negative/Neutral).
	Polarity float64
	Label    string

	// Timestamp is when the turn completed.
	Timestamp time.Time
}

// Recorder archives completed turns. Implementations must tolerate being
// called concurrently from many in-flight turns.
type Recorder interface {
	RecordTurn(ctx context.Context, t Turn) error
}

// Package mock provides in-memory mock implementations of [graph.Querier]
// and [graph.Recorder] for use in unit tests.
//
// All mocks are safe for concurrent use, record method calls, and expose
// exported fields for configuring return values.
package mock

import (
	"context"
	"sync"

	"github.com/synapsebot/synapse/pkg/graph"
)

// QueryCall records the arguments of a single [Querier.Query] invocation.
type QueryCall struct {
	Entity string
	Path   []string
}

// Querier is a mock implementation of [graph.Querier].
type Querier struct {
	mu sync.Mutex

	// QueryResult is returned by [Querier.Query] when QueryFunc is nil.
	QueryResult []string

	// QueryError is returned by [Querier.Query] when QueryFunc is nil.
	QueryError error

	// QueryFunc, when non-nil, is invoked instead of the canned results.
	QueryFunc func(ctx context.Context, entity string, path []string) ([]string, error)

	// Delay, when non-nil, makes Query block until the returned channel
	// fires or ctx expires, whichever comes first. Used to simulate slow
	// backends.
	Delay func() <-chan struct{}

	// QueryCalls records every invocation.
	QueryCalls []QueryCall
}

// Query implements [graph.Querier].
func (q *Querier) Query(ctx context.Context, entity string, path []string) ([]string, error) {
	q.mu.Lock()
	q.QueryCalls = append(q.QueryCalls, QueryCall{Entity: entity, Path: append([]string(nil), path...)})
	fn := q.QueryFunc
	delay := q.Delay
	result := append([]string(nil), q.QueryResult...)
	qerr := q.QueryError
	q.mu.Unlock()

	if delay != nil {
		select {
		case <-delay():
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fn != nil {
		return fn(ctx, entity, path)
	}
	return result, qerr
}

// Calls returns a copy of the recorded query calls.
func (q *Querier) Calls() []QueryCall {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]QueryCall(nil), q.QueryCalls...)
}

// Recorder is a mock implementation of [graph.Recorder].
type Recorder struct {
	mu sync.Mutex

	// RecordError is returned by [Recorder.RecordTurn].
	RecordError error

	// Turns records every archived turn.
	Turns []graph.Turn
}

// RecordTurn implements [graph.Recorder].
func (r *Recorder) RecordTurn(_ context.Context, t graph.Turn) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.RecordError != nil {
		return r.RecordError
	}
	r.Turns = append(r.Turns, t)
	return nil
}

// Recorded returns a copy of the archived turns.
func (r *Recorder) Recorded() []graph.Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]graph.Turn(nil), r.Turns...)
}

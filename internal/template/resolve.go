package template

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/synapsebot/synapse/internal/observe"
	"github.com/synapsebot/synapse/pkg/graph"
)

// Bindings holds the wildcard captures of one pattern match, split by the
// section of the rule that produced them.
type Bindings struct {
	Star      []string
	ThatStar  []string
	TopicStar []string
}

// MatchFunc re-invokes pattern matching on a derived input string. It is
// supplied per turn by the orchestrator so that recursive matches see the
// session's current topic and that-context.
type MatchFunc func(input string) (tree []Node, binds Bindings, ok bool)

// Sentiment is the score used to bias tone-tagged alternative selection.
type Sentiment struct {
	// Polarity is in [-1, 1]; negative values lean empathetic, positive
	// values lean playful.
	Polarity float64

	// Intensity is in [0, 1]; tone filtering only engages above the
	// resolver's threshold.
	Intensity float64
}

// Request carries everything needed to resolve one response tree.
type Request struct {
	// Tree is the matched rule's response specification.
	Tree []Node

	// Binds are the wildcard captures from the match.
	Binds Bindings

	// Vars is a read-only snapshot of the session's variables.
	Vars map[string]string

	// Bot holds the read-only bot properties.
	Bot map[string]string

	// Match handles recursive-match directives. A nil Match treats every
	// recursion as a miss.
	Match MatchFunc

	// Sentiment biases tone-tagged random alternatives.
	Sentiment Sentiment

	// Seed drives the per-turn RNG; identical requests resolve identically.
	Seed uint64
}

// Diagnostics flags degradations that occurred during resolution. The turn
// still completes; these surface in the reply metadata.
type Diagnostics struct {
	// GraphDegraded is set when a graph query errored, timed out, or
	// returned nothing and the not-found placeholder was substituted.
	GraphDegraded bool

	// RecursionClipped is set when a recursive match exceeded the depth
	// limit and the fallback string was substituted for that branch.
	RecursionClipped bool

	// UnsetVariable is set when a variable-get read an undefined variable.
	UnsetVariable bool
}

// Any reports whether at least one degradation occurred.
func (d Diagnostics) Any() bool {
	return d.GraphDegraded || d.RecursionClipped || d.UnsetVariable
}

// Result is the outcome of resolving one response tree.
type Result struct {
	// Text is the final response text.
	Text string

	// Updates are the pending session-variable writes produced by set
	// directives, keyed by variable name, last write per key winning. The
	// reserved key "topic" carries a topic switch.
	Updates map[string]string

	// Diagnostics flags degradations encountered along the way.
	Diagnostics Diagnostics
}

// Resolver walks response trees. It is read-only after construction and safe
// for concurrent use; all per-turn state lives in the [Request] and in the
// walker it spawns.
type Resolver struct {
	// Querier answers graph-query directives. A nil Querier resolves every
	// graph query to the not-found placeholder.
	Querier graph.Querier

	// QueryTimeout bounds each individual graph query.
	QueryTimeout time.Duration

	// Separator joins multiple graph-query values.
	Separator string

	// NotFound is substituted for failed or empty graph queries.
	NotFound string

	// Fallback is substituted when a recursion branch is aborted.
	Fallback string

	// DepthLimit caps recursive-match nesting. Values below 1 use 10.
	DepthLimit int

	// ToneThreshold is the minimum sentiment intensity before tone
	// filtering engages on random alternatives.
	ToneThreshold float64

	// Metrics receives per-query graph instrumentation. Nil disables it.
	Metrics *observe.Metrics
}

// Resolve expands req.Tree into final text plus pending variable updates.
// It never returns an error: every failure mode inside a template degrades
// to placeholder text and a diagnostic flag.
func (r *Resolver) Resolve(ctx context.Context, req Request) Result {
	w := &walker{
		resolver: r,
		req:      req,
		rng:      rand.New(rand.NewPCG(req.Seed, 0x9e3779b97f4a7c15)),
		updates:  make(map[string]string),
	}
	limit := r.DepthLimit
	if limit < 1 {
		limit = 10
	}
	w.limit = limit

	text := w.resolveSeq(ctx, req.Tree, req.Binds, 0)
	return Result{
		Text:        collapseSpace(text),
		Updates:     w.updates,
		Diagnostics: w.diags,
	}
}

// walker carries the mutable state of one resolution pass.
type walker struct {
	resolver *Resolver
	req      Request
	rng      *rand.Rand
	limit    int
	updates  map[string]string
	diags    Diagnostics
}

func (w *walker) resolveSeq(ctx context.Context, nodes []Node, binds Bindings, depth int) string {
	var sb strings.Builder
	for _, n := range nodes {
		sb.WriteString(w.resolveNode(ctx, n, binds, depth))
	}
	return sb.String()
}

func (w *walker) resolveNode(ctx context.Context, n Node, binds Bindings, depth int) string {
	switch node := n.(type) {
	case Literal:
		return string(node)

	case Get:
		// Reads see writes made earlier in the same turn.
		if v, ok := w.updates[string(node)]; ok {
			return v
		}
		if v, ok := w.req.Vars[string(node)]; ok {
			return v
		}
		w.diags.UnsetVariable = true
		return ""

	case BotProp:
		return w.req.Bot[string(node)]

	case Star:
		return bindingAt(binds.Star, int(node))

	case ThatStar:
		return bindingAt(binds.ThatStar, int(node))

	case TopicStar:
		return bindingAt(binds.TopicStar, int(node))

	case Set:
		value := collapseSpace(w.resolveSeq(ctx, node.Value, binds, depth))
		w.updates[node.Name] = value
		return value

	case Random:
		alt := selectAlternative(node.Alternatives, w.req.Sentiment, w.resolver.ToneThreshold, w.rng)
		return w.resolveSeq(ctx, alt.Value, binds, depth)

	case Recurse:
		return w.recurse(ctx, node, binds, depth)

	case GraphQuery:
		return w.graphQuery(ctx, node, binds, depth)
	}
	// The node set is closed; reaching here means a new kind was added
	// without extending this switch.
	slog.Error("template: unhandled node kind", "node", n)
	return ""
}

func (w *walker) recurse(ctx context.Context, node Recurse, binds Bindings, depth int) string {
	if depth+1 > w.limit {
		w.diags.RecursionClipped = true
		return w.resolver.Fallback
	}
	input := collapseSpace(w.resolveSeq(ctx, node.Value, binds, depth))
	if w.req.Match == nil {
		return w.resolver.Fallback
	}
	tree, subBinds, ok := w.req.Match(input)
	if !ok {
		return w.resolver.Fallback
	}
	return w.resolveSeq(ctx, tree, subBinds, depth+1)
}

func (w *walker) graphQuery(ctx context.Context, node GraphQuery, binds Bindings, depth int) string {
	entity := collapseSpace(w.resolveSeq(ctx, node.Entity, binds, depth))
	if w.resolver.Querier == nil || entity == "" {
		w.diags.GraphDegraded = true
		return w.resolver.NotFound
	}

	timeout := w.resolver.QueryTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	values, err := w.resolver.Querier.Query(qctx, entity, node.Path)
	switch {
	case errors.Is(err, graph.ErrNotFound), err == nil && len(values) == 0:
		w.resolver.Metrics.RecordGraphQuery(ctx, "empty")
	case err != nil:
		w.resolver.Metrics.RecordGraphQuery(ctx, "error")
		if ctx.Err() == nil {
			slog.Debug("template: graph query degraded", "entity", entity, "path", node.Path, "err", err)
		}
	default:
		w.resolver.Metrics.RecordGraphQuery(ctx, "ok")
		return strings.Join(values, w.resolver.Separator)
	}
	w.diags.GraphDegraded = true
	return w.resolver.NotFound
}

func bindingAt(binds []string, index int) string {
	if index < 1 || index > len(binds) {
		return ""
	}
	return binds[index-1]
}

// collapseSpace normalises runs of whitespace to single spaces and trims the
// ends, so adjacent template fragments join cleanly.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

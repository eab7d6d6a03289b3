// Package dialogue composes the resolution pipeline for one conversational
// turn: acquire the session, score sentiment, normalise and spell-correct the
// input, match a rule against the session's topic and prior utterance,
// resolve its response tree, commit the session update, and archive the turn.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/synapsebot/synapse/internal/brain"
	"github.com/synapsebot/synapse/internal/intent"
	"github.com/synapsebot/synapse/internal/observe"
	"github.com/synapsebot/synapse/internal/sentiment"
	"github.com/synapsebot/synapse/internal/session"
	"github.com/synapsebot/synapse/internal/spell"
	"github.com/synapsebot/synapse/internal/template"
	"github.com/synapsebot/synapse/pkg/graph"
)

// Reply sources, reported in metrics and turn metadata.
const (
	SourceRule    = "rule"
	SourceDefault = "default"
)

// Reply is the outcome of one turn.
type Reply struct {
	// Text is the response to show the user. Never empty.
	Text string

	// SessionID and TurnID identify the exchange.
	SessionID string
	TurnID    string

	// Source is [SourceRule] when a rule matched and produced text,
	// [SourceDefault] when the fallback response was used.
	Source string

	// RuleID names the matched rule; empty for default replies.
	RuleID string

	// Intents are the coarse intent labels detected in the input.
	Intents []string

	// Sentiment is the score of the user input for this turn.
	Sentiment sentiment.Score

	// Trend is the session's rolling sentiment trend after this turn.
	Trend float64

	// Diagnostics flags degradations that occurred during resolution.
	Diagnostics template.Diagnostics
}

// Config wires an [Orchestrator]. Brain, Sessions, Analyzer, and Resolver are
// required; the rest degrade gracefully when absent.
type Config struct {
	Brain    *brain.Brain
	Sessions *session.Store
	Analyzer *sentiment.Analyzer
	Resolver *template.Resolver

	// Corrector normalises out-of-lexicon tokens before matching. Nil
	// disables spell correction.
	Corrector *spell.Corrector

	// Recorder archives completed turns. Nil disables archiving.
	Recorder graph.Recorder

	// RecordTimeout bounds each background archive write. Zero defaults to
	// 5 seconds.
	RecordTimeout time.Duration

	// Bot holds the read-only bot properties exposed to templates.
	Bot map[string]string

	// DefaultResponse is returned when no rule matches or resolution yields
	// empty text. Empty defaults to ":)".
	DefaultResponse string

	// Metrics receives turn instrumentation. Nil uses [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Logger defaults to [slog.Default].
	Logger *slog.Logger
}

// Orchestrator runs turns. It is read-only after construction and safe for
// concurrent use across sessions; turns within one session are serialised by
// the session store.
type Orchestrator struct {
	brain     *brain.Brain
	sessions  *session.Store
	analyzer  *sentiment.Analyzer
	resolver  *template.Resolver
	corrector *spell.Corrector
	recorder  graph.Recorder

	recordTimeout   time.Duration
	bot             map[string]string
	defaultResponse string
	metrics         *observe.Metrics
	logger          *slog.Logger
}

// New validates cfg and builds an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	var errs []error
	if cfg.Brain == nil {
		errs = append(errs, errors.New("brain is required"))
	}
	if cfg.Sessions == nil {
		errs = append(errs, errors.New("session store is required"))
	}
	if cfg.Analyzer == nil {
		errs = append(errs, errors.New("sentiment analyzer is required"))
	}
	if cfg.Resolver == nil {
		errs = append(errs, errors.New("template resolver is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("dialogue: invalid config: %w", err)
	}

	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 5 * time.Second
	}
	if cfg.DefaultResponse == "" {
		cfg.DefaultResponse = ":)"
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Orchestrator{
		brain:           cfg.Brain,
		sessions:        cfg.Sessions,
		analyzer:        cfg.Analyzer,
		resolver:        cfg.Resolver,
		corrector:       cfg.Corrector,
		recorder:        cfg.Recorder,
		recordTimeout:   cfg.RecordTimeout,
		bot:             cfg.Bot,
		defaultResponse: cfg.DefaultResponse,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
	}, nil
}

// Respond runs one turn for the given session. It returns
// [session.ErrSessionBusy] (wrapped) when a turn is already in flight for
// the session; callers should retry rather than drop the input.
func (o *Orchestrator) Respond(ctx context.Context, sessionID, input string) (*Reply, error) {
	start := time.Now()

	input = strings.TrimSpace(input)
	if sessionID == "" {
		return nil, errors.New("dialogue: session id is required")
	}
	if input == "" {
		return nil, errors.New("dialogue: empty input")
	}

	ctx, span := observe.StartSpan(ctx, "dialogue.turn",
		trace.WithAttributes(attribute.String("session.id", sessionID)))
	defer span.End()

	sess, err := o.sessions.Acquire(sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionBusy) {
			o.metrics.RecordContention(ctx)
		}
		return nil, fmt.Errorf("dialogue: acquire session %q: %w", sessionID, err)
	}
	defer o.sessions.Release(sess)

	// Sentiment scoring and input normalisation are independent stages.
	var (
		score  sentiment.Score
		tokens []string
	)
	var g errgroup.Group
	g.Go(func() error {
		score = o.analyzer.Score(input)
		return nil
	})
	g.Go(func() error {
		tokens = brain.Tokenize(input)
		if o.corrector != nil {
			tokens = o.corrector.Correct(tokens)
		}
		return nil
	})
	_ = g.Wait() // neither stage errors

	topic, that := sess.Topic(), sess.That()
	turnID := uuid.NewString()
	prevID := sess.LastTurnID()

	reply := &Reply{
		Text:      o.defaultResponse,
		SessionID: sessionID,
		TurnID:    turnID,
		Source:    SourceDefault,
		Intents:   intent.Detect(input),
		Sentiment: score,
	}

	var updates map[string]string
	if m, ok := o.brain.Lookup(topic, that, tokens); ok {
		res := o.resolver.Resolve(ctx, template.Request{
			Tree: m.Rule.Template,
			Binds: template.Bindings{
				Star:      m.Star,
				ThatStar:  m.ThatStar,
				TopicStar: m.TopicStar,
			},
			Vars:      sess.Vars(),
			Bot:       o.bot,
			Match:     o.matchFunc(topic, that),
			Sentiment: template.Sentiment{Polarity: score.Polarity, Intensity: score.Intensity},
			Seed:      turnSeed(sessionID, turnID),
		})
		updates = res.Updates
		reply.Diagnostics = res.Diagnostics
		if res.Text != "" {
			reply.Text = res.Text
			reply.Source = SourceRule
			reply.RuleID = m.Rule.ID
		}
	}

	o.sessions.ApplyTurn(sess, session.Turn{
		TurnID:     turnID,
		Input:      input,
		Response:   reply.Text,
		Polarity:   score.Polarity,
		VarUpdates: updates,
		Timestamp:  time.Now(),
	})
	reply.Trend = sess.Trend()

	span.SetAttributes(
		attribute.String("turn.id", turnID),
		attribute.String("turn.source", reply.Source),
	)

	o.instrument(ctx, start, reply)
	o.archive(graph.Turn{
		SessionID:  sessionID,
		TurnID:     turnID,
		PrevTurnID: prevID,
		Input:      input,
		Response:   reply.Text,
		Intents:    reply.Intents,
		Polarity:   score.Polarity,
		Label:      string(score.Label),
		Timestamp:  time.Now(),
	})

	return reply, nil
}

// matchFunc bridges recursive-match directives back into pattern lookup,
// preserving the turn's conversational context.
func (o *Orchestrator) matchFunc(topic, that string) template.MatchFunc {
	return func(input string) ([]template.Node, template.Bindings, bool) {
		m, ok := o.brain.LookupText(topic, that, input)
		if !ok {
			return nil, template.Bindings{}, false
		}
		return m.Rule.Template, template.Bindings{
			Star:      m.Star,
			ThatStar:  m.ThatStar,
			TopicStar: m.TopicStar,
		}, true
	}
}

func (o *Orchestrator) instrument(ctx context.Context, start time.Time, reply *Reply) {
	o.metrics.RecordTurn(ctx, time.Since(start).Seconds(), reply.Source)
	d := reply.Diagnostics
	if d.GraphDegraded {
		o.metrics.RecordDegradation(ctx, "graph")
	}
	if d.RecursionClipped {
		o.metrics.RecordDegradation(ctx, "recursion")
	}
	if d.UnsetVariable {
		o.metrics.RecordDegradation(ctx, "variable")
	}
}

// archive writes the completed turn to the knowledge graph in the background.
// Archiving is best effort: failures are logged, never surfaced to the turn.
func (o *Orchestrator) archive(t graph.Turn) {
	if o.recorder == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), o.recordTimeout)
		defer cancel()
		if err := o.recorder.RecordTurn(ctx, t); err != nil {
			o.logger.Warn("dialogue: turn archive failed",
				"session_id", t.SessionID, "turn_id", t.TurnID, "err", err)
		}
	}()
}

// turnSeed derives the per-turn RNG seed so that a turn's random choices are
// reproducible from its identifiers.
func turnSeed(sessionID, turnID string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(sessionID))
	h.Write([]byte{0})
	h.Write([]byte(turnID))
	return h.Sum64()
}

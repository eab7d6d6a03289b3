package dialogue_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/synapsebot/synapse/internal/brain"
	"github.com/synapsebot/synapse/internal/dialogue"
	"github.com/synapsebot/synapse/internal/sentiment"
	"github.com/synapsebot/synapse/internal/session"
	"github.com/synapsebot/synapse/internal/template"
	graphmock "github.com/synapsebot/synapse/pkg/graph/mock"
)

const testRules = `
rules:
  - pattern: "hello"
    template: "Hi there!"
  - pattern: "i feel *"
    template:
      - "Why do you feel "
      - star: 1
      - "?"
  - pattern: "because *"
    that: "why do you feel *"
    template: "That sounds hard."
  - pattern: "let us talk about the weather"
    template:
      - set:
          name: "topic"
          value: "weather"
      - "Sure, is it nice out?"
  - pattern: "yes"
    topic: "weather"
    template: "Lovely!"
  - pattern: "yes"
    template: "Yes to what?"
  - pattern: "let us change the subject"
    template:
      - set:
          name: "topic"
          value: ""
      - "Okay, what else?"
  - pattern: "who is *"
    template:
      - graph:
          entity:
            star: 1
          path: ["IS_A"]
  - pattern: "what is your name"
    template:
      - "I'm "
      - bot: "name"
      - "."
`

type fixture struct {
	orch     *dialogue.Orchestrator
	store    *session.Store
	recorder *graphmock.Recorder
	querier  *graphmock.Querier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	rules, err := brain.LoadFromReader(strings.NewReader(testRules))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	idx, err := brain.NewIndex(rules)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}

	f := &fixture{
		store:    session.NewStore(session.Config{}),
		recorder: &graphmock.Recorder{},
		querier:  &graphmock.Querier{QueryResult: []string{"a cat"}},
	}

	f.orch, err = dialogue.New(dialogue.Config{
		Brain:    brain.New(idx),
		Sessions: f.store,
		Analyzer: sentiment.NewAnalyzer(),
		Resolver: &template.Resolver{
			Querier:       f.querier,
			QueryTimeout:  time.Second,
			Separator:     ", ",
			NotFound:      "I don't know about that yet",
			Fallback:      ":)",
			DepthLimit:    10,
			ToneThreshold: 0.4,
		},
		Recorder:        f.recorder,
		Bot:             map[string]string{"name": "Synapse"},
		DefaultResponse: ":)",
	})
	if err != nil {
		t.Fatalf("dialogue.New: %v", err)
	}
	return f
}

func (f *fixture) respond(t *testing.T, sessionID, input string) *dialogue.Reply {
	t.Helper()
	reply, err := f.orch.Respond(context.Background(), sessionID, input)
	if err != nil {
		t.Fatalf("Respond(%q, %q): %v", sessionID, input, err)
	}
	return reply
}

func TestOrchestrator_RuleTurn(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	reply := f.respond(t, "alice", "Hello!")

	if got, want := reply.Text, "Hi there!"; got != want {
		t.Errorf("Text = %q, want %q", got, want)
	}
	if reply.Source != dialogue.SourceRule {
		t.Errorf("Source = %q, want rule", reply.Source)
	}
	if reply.RuleID == "" || reply.TurnID == "" {
		t.Errorf("RuleID = %q, TurnID = %q, want both set", reply.RuleID, reply.TurnID)
	}
	if len(reply.Intents) == 0 || reply.Intents[0] != "greeting" {
		t.Errorf("Intents = %v, want greeting first", reply.Intents)
	}
}

func TestOrchestrator_WildcardCaptureFlowsIntoTemplate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	reply := f.respond(t, "alice", "I feel exhausted today")

	if got, want := reply.Text, "Why do you feel exhausted today?"; got != want {
		t.Errorf("Text = %q, want %q", got, want)
	}
}

func TestOrchestrator_ThatContextLinksTurns(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.respond(t, "alice", "I feel exhausted")

	// "because *" only matches after the bot asked why.
	reply := f.respond(t, "alice", "Because work is endless")
	if got, want := reply.Text, "That sounds hard."; got != want {
		t.Errorf("Text = %q, want the that-scoped rule %q", got, want)
	}

	// In a fresh session the same input has no that-context and misses.
	other := f.respond(t, "bob", "Because work is endless")
	if other.Source != dialogue.SourceDefault {
		t.Errorf("fresh-session Source = %q, want default", other.Source)
	}
}

func TestOrchestrator_TopicSwitchScopesLaterTurns(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.respond(t, "alice", "Let us talk about the weather")

	reply := f.respond(t, "alice", "yes")
	if got, want := reply.Text, "Lovely!"; got != want {
		t.Errorf("Text = %q, want topic-scoped %q", got, want)
	}

	// Resetting the topic puts the scoped rule back out of reach; the same
	// input now falls back to the generic rule.
	f.respond(t, "alice", "Let us change the subject")
	after := f.respond(t, "alice", "yes")
	if got, want := after.Text, "Yes to what?"; got != want {
		t.Errorf("post-reset Text = %q, want generic %q", got, want)
	}
}

func TestOrchestrator_DefaultResponseOnMiss(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	reply := f.respond(t, "alice", "zzz qqq xxx")

	if got, want := reply.Text, ":)"; got != want {
		t.Errorf("Text = %q, want default %q", got, want)
	}
	if reply.Source != dialogue.SourceDefault {
		t.Errorf("Source = %q, want default", reply.Source)
	}
	if reply.RuleID != "" {
		t.Errorf("RuleID = %q, want empty on default reply", reply.RuleID)
	}
}

func TestOrchestrator_BotProperties(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	reply := f.respond(t, "alice", "What is your name?")
	if got, want := reply.Text, "I'm Synapse."; got != want {
		t.Errorf("Text = %q, want %q", got, want)
	}
}

func TestOrchestrator_GraphBackedRule(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	reply := f.respond(t, "alice", "Who is Whiskers")

	if got, want := reply.Text, "a cat"; got != want {
		t.Errorf("Text = %q, want %q", got, want)
	}
	calls := f.querier.Calls()
	if len(calls) != 1 || calls[0].Entity != "Whiskers" {
		t.Errorf("graph calls = %+v, want one query for Whiskers", calls)
	}
}

func TestOrchestrator_GraphDegradationNeverFailsTurn(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.querier.QueryError = errors.New("backend down")

	reply := f.respond(t, "alice", "Who is Whiskers")
	if got, want := reply.Text, "I don't know about that yet"; got != want {
		t.Errorf("Text = %q, want placeholder %q", got, want)
	}
	if !reply.Diagnostics.GraphDegraded {
		t.Error("GraphDegraded diagnostic not set")
	}
}

func TestOrchestrator_BusySessionSurfacesRetry(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	held, err := f.store.Acquire("alice")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer f.store.Release(held)

	if _, err := f.orch.Respond(context.Background(), "alice", "hello"); !errors.Is(err, session.ErrSessionBusy) {
		t.Fatalf("Respond on a held session err = %v, want ErrSessionBusy", err)
	}
}

func TestOrchestrator_RejectsEmptyInput(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	if _, err := f.orch.Respond(context.Background(), "alice", "   "); err == nil {
		t.Error("Respond accepted blank input")
	}
	if _, err := f.orch.Respond(context.Background(), "", "hello"); err == nil {
		t.Error("Respond accepted empty session id")
	}
}

func TestOrchestrator_ArchivesTurnsWithChaining(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	first := f.respond(t, "alice", "hello")
	second := f.respond(t, "alice", "I feel fine")

	// Archiving is asynchronous; wait for both turns to land.
	deadline := time.Now().Add(2 * time.Second)
	for len(f.recorder.Recorded()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("recorded %d turns, want 2", len(f.recorder.Recorded()))
		}
		time.Sleep(10 * time.Millisecond)
	}

	byID := make(map[string]int)
	turns := f.recorder.Recorded()
	for i, turn := range turns {
		byID[turn.TurnID] = i
	}

	ft := turns[byID[first.TurnID]]
	st := turns[byID[second.TurnID]]

	if ft.PrevTurnID != "" {
		t.Errorf("first turn PrevTurnID = %q, want empty", ft.PrevTurnID)
	}
	if st.PrevTurnID != first.TurnID {
		t.Errorf("second turn PrevTurnID = %q, want %q", st.PrevTurnID, first.TurnID)
	}
	if ft.SessionID != "alice" || ft.Response != "Hi there!" {
		t.Errorf("archived turn = %+v, want session and response recorded", ft)
	}
}

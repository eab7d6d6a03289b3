package brain_test

import (
	"strings"
	"testing"

	"github.com/synapsebot/synapse/internal/brain"
)

// mustIndex builds an index from YAML rule literals.
func mustIndex(t *testing.T, yml string) *brain.Index {
	t.Helper()
	rules, err := brain.LoadFromReader(strings.NewReader(yml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	idx, err := brain.NewIndex(rules)
	if err != nil {
		t.Fatalf("NewIndex: %v", err)
	}
	return idx
}

const precedenceRules = `
rules:
  - pattern: "HELLO THERE"
    template: "literal"
  - pattern: "HELLO _"
    template: "one"
  - pattern: "HELLO *"
    template: "many"
  - pattern: "*"
    template: "catchall"
`

func TestIndex_LiteralBeatsWildcards(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, precedenceRules)

	m, ok := idx.LookupText("", "", "hello there")
	if !ok {
		t.Fatal("LookupText(hello there): no match")
	}
	if got, want := m.Rule.ID, "HELLO THERE"; got != want {
		t.Errorf("matched rule %q, want %q", got, want)
	}
	if len(m.Star) != 0 {
		t.Errorf("Star = %v, want no captures for an all-literal pattern", m.Star)
	}
}

func TestIndex_UnderscoreBeatsStar(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, precedenceRules)

	m, ok := idx.LookupText("", "", "hello friend")
	if !ok {
		t.Fatal("LookupText(hello friend): no match")
	}
	if got, want := m.Rule.ID, "HELLO _"; got != want {
		t.Errorf("matched rule %q, want %q", got, want)
	}
	if len(m.Star) != 1 || m.Star[0] != "friend" {
		t.Errorf("Star = %v, want [friend]", m.Star)
	}
}

func TestIndex_StarMatchesMultipleTokens(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, precedenceRules)

	m, ok := idx.LookupText("", "", "hello my old friend")
	if !ok {
		t.Fatal("LookupText(hello my old friend): no match")
	}
	if got, want := m.Rule.ID, "HELLO *"; got != want {
		t.Errorf("matched rule %q, want %q", got, want)
	}
	if len(m.Star) != 1 || m.Star[0] != "my old friend" {
		t.Errorf("Star = %v, want [my old friend]", m.Star)
	}
}

func TestIndex_CatchallWhenNothingElseFits(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, precedenceRules)

	m, ok := idx.LookupText("", "", "completely unrelated words")
	if !ok {
		t.Fatal("LookupText: no match, want catchall")
	}
	if got, want := m.Rule.ID, "*"; got != want {
		t.Errorf("matched rule %q, want %q", got, want)
	}
}

func TestIndex_MatchingIsCaseInsensitiveAndIgnoresPunctuation(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, precedenceRules)

	m, ok := idx.LookupText("", "", "Hello, THERE!!!")
	if !ok {
		t.Fatal("LookupText(Hello, THERE!!!): no match")
	}
	if got, want := m.Rule.ID, "HELLO THERE"; got != want {
		t.Errorf("matched rule %q, want %q", got, want)
	}
}

func TestIndex_CapturesPreserveOriginalCase(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, precedenceRules)

	m, ok := idx.LookupText("", "", "hello Doctor Watson")
	if !ok {
		t.Fatal("LookupText(hello Doctor Watson): no match")
	}
	if len(m.Star) != 1 || m.Star[0] != "Doctor Watson" {
		t.Errorf("Star = %v, want original casing [Doctor Watson]", m.Star)
	}
}

func TestIndex_GreedyStarBacktracks(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, `
rules:
  - pattern: "* IS *"
    template: "x"
`)

	// Greedy capture would swallow the first IS; backtracking must still find
	// a split. The greedy strategy takes the longest left span that admits a
	// full match.
	m, ok := idx.LookupText("", "", "what is is is here")
	if !ok {
		t.Fatal("LookupText(what is is is here): no match")
	}
	if got, want := m.Star[0], "what is is"; got != want {
		t.Errorf("first capture %q, want greedy %q", got, want)
	}
	if got, want := m.Star[1], "here"; got != want {
		t.Errorf("second capture %q, want %q", got, want)
	}
}

const scopedRules = `
rules:
  - pattern: "YES"
    template: "plain yes"
  - pattern: "YES"
    topic: "WEATHER"
    template: "weather yes"
  - pattern: "YES"
    that: "DO YOU LIKE TEA"
    template: "tea yes"
  - pattern: "TELL ME ABOUT *"
    topic: "SPACE *"
    template: "space"
`

func TestIndex_TopicScopedRuleWinsUnderItsTopic(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, scopedRules)

	m, ok := idx.LookupText("weather", "", "yes")
	if !ok {
		t.Fatal("LookupText under weather topic: no match")
	}
	if got, want := m.Rule.ID, "YES <topic> WEATHER"; got != want {
		t.Errorf("matched rule %q, want %q", got, want)
	}
}

func TestIndex_UnsetTopicFallsBackToUnconstrainedRule(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, scopedRules)

	m, ok := idx.LookupText("", "", "yes")
	if !ok {
		t.Fatal("LookupText with unset topic: no match")
	}
	if got, want := m.Rule.ID, "YES"; got != want {
		t.Errorf("matched rule %q, want unconstrained %q", got, want)
	}
}

func TestIndex_ThatScopedRuleWinsAfterMatchingUtterance(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, scopedRules)

	m, ok := idx.LookupText("", "Do you like tea?", "yes")
	if !ok {
		t.Fatal("LookupText with that context: no match")
	}
	if got, want := m.Rule.ID, "YES <that> DO YOU LIKE TEA"; got != want {
		t.Errorf("matched rule %q, want %q", got, want)
	}
}

func TestIndex_UnrelatedTopicDoesNotLeakScopedRule(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, scopedRules)

	m, ok := idx.LookupText("cooking", "", "yes")
	if !ok {
		t.Fatal("LookupText under cooking topic: no match")
	}
	if got, want := m.Rule.ID, "YES"; got != want {
		t.Errorf("matched rule %q, want unconstrained %q", got, want)
	}
}

func TestIndex_TopicWildcardCaptures(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, scopedRules)

	m, ok := idx.LookupText("space travel", "", "tell me about rockets")
	if !ok {
		t.Fatal("LookupText under space topic: no match")
	}
	if len(m.Star) != 1 || m.Star[0] != "rockets" {
		t.Errorf("Star = %v, want [rockets]", m.Star)
	}
	if len(m.TopicStar) != 1 || m.TopicStar[0] != "travel" {
		t.Errorf("TopicStar = %v, want [travel]", m.TopicStar)
	}
}

func TestIndex_UnconstrainedSectionsNeverBind(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, scopedRules)

	// The unconstrained "YES" rule matches regardless of topic, but must not
	// report topic or that captures it has no wildcards for.
	m, ok := idx.LookupText("cooking", "Anything else?", "yes")
	if !ok {
		t.Fatal("LookupText: no match")
	}
	if len(m.TopicStar) != 0 || len(m.ThatStar) != 0 {
		t.Errorf("TopicStar = %v, ThatStar = %v, want both empty", m.TopicStar, m.ThatStar)
	}
}

func TestIndex_LookupIsIdempotent(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, scopedRules)

	first, ok := idx.LookupText("space travel", "", "tell me about rockets")
	if !ok {
		t.Fatal("first lookup: no match")
	}
	for i := 0; i < 10; i++ {
		m, ok := idx.LookupText("space travel", "", "tell me about rockets")
		if !ok {
			t.Fatalf("lookup %d: no match", i)
		}
		if m.Rule.ID != first.Rule.ID {
			t.Fatalf("lookup %d matched %q, first matched %q", i, m.Rule.ID, first.Rule.ID)
		}
	}
}

func TestIndex_EmptyInputNeverMatches(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, precedenceRules)

	if _, ok := idx.LookupText("", "", "   ...   "); ok {
		t.Error("LookupText on punctuation-only input matched, want miss")
	}
	if _, ok := idx.Lookup("", "", nil); ok {
		t.Error("Lookup(nil) matched, want miss")
	}
}

func TestIndex_StarNeverMatchesZeroTokens(t *testing.T) {
	t.Parallel()

	idx := mustIndex(t, `
rules:
  - pattern: "HELLO *"
    template: "x"
`)

	if _, ok := idx.LookupText("", "", "hello"); ok {
		t.Error(`"HELLO *" matched bare "hello", want miss: "*" binds at least one token`)
	}
}

func TestNewIndex_RejectsDuplicateTriple(t *testing.T) {
	t.Parallel()

	rules, err := brain.LoadFromReader(strings.NewReader(`
rules:
  - pattern: "HI"
    template: "a"
  - pattern: "hi"
    template: "b"
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if _, err := brain.NewIndex(rules); err == nil {
		t.Error("NewIndex accepted two rules with the same (pattern, topic, that) triple")
	}
}

package intent_test

import (
	"slices"
	"testing"

	"github.com/synapsebot/synapse/internal/intent"
)

func TestDetect(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want []string
	}{
		{"Hello there!", []string{"greeting"}},
		{"good morning everyone", []string{"greeting"}},
		{"What is the meaning of life?", []string{"question", "information"}},
		{"could you help me out", []string{"request"}},
		{"thanks a lot", []string{"gratitude"}},
		{"I'm sorry about that", []string{"apology"}},
		{"yes absolutely", []string{"affirmation"}},
		{"no never", []string{"negation"}},
		{"I think the weather is fine", []string{"opinion"}},
		{"bye, take care", []string{"farewell"}},
		{"the quick brown fox", []string{"general"}},
		{"", []string{"general"}},
	}

	for _, tc := range cases {
		got := intent.Detect(tc.in)
		if !slices.Equal(got, tc.want) {
			t.Errorf("Detect(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestDetect_SingleWordsMatchWholeTokensOnly(t *testing.T) {
	t.Parallel()

	// "no" must not fire inside "nothing", and "hi" must not fire inside
	// "this".
	got := intent.Detect("nothing matters in this")
	if slices.Contains(got, "negation") {
		t.Errorf("Detect fired negation on a substring token: %v", got)
	}
	if slices.Contains(got, "greeting") {
		t.Errorf("Detect fired greeting on a substring token: %v", got)
	}
}

func TestDetect_OrderIsStable(t *testing.T) {
	t.Parallel()

	first := intent.Detect("hello, what is your opinion? thanks")
	for i := 0; i < 10; i++ {
		if got := intent.Detect("hello, what is your opinion? thanks"); !slices.Equal(got, first) {
			t.Fatalf("order varied between calls: %v vs %v", got, first)
		}
	}
}

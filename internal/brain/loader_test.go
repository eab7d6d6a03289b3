package brain_test

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/synapsebot/synapse/internal/brain"
	"github.com/synapsebot/synapse/internal/template"
)

func TestLoadFromReader_CompilesRules(t *testing.T) {
	t.Parallel()

	rules, err := brain.LoadFromReader(strings.NewReader(`
rules:
  - pattern: "I feel *"
    template:
      - "Why do you feel "
      - star: 1
      - "?"
  - pattern: "yes"
    topic: "Weather"
    that: "Is it nice out?"
    template: "Good to hear."
`))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("loaded %d rules, want 2", len(rules))
	}

	if got, want := strings.Join(rules[0].Pattern, " "), "I FEEL *"; got != want {
		t.Errorf("pattern = %q, want folded %q", got, want)
	}
	if rules[0].Topic != nil {
		t.Errorf("topic = %v, want nil for an unconstrained rule", rules[0].Topic)
	}

	if got, want := strings.Join(rules[1].Topic, " "), "WEATHER"; got != want {
		t.Errorf("topic = %q, want %q", got, want)
	}
	if got, want := strings.Join(rules[1].That, " "), "IS IT NICE OUT"; got != want {
		t.Errorf("that = %q, want punctuation stripped %q", got, want)
	}

	// Both template shapes must decode: the sequence with a nested star
	// directive and the bare scalar.
	want0 := []template.Node{template.Literal("Why do you feel "), template.Star(1), template.Literal("?")}
	if !reflect.DeepEqual(rules[0].Template, want0) {
		t.Errorf("sequence template = %#v, want %#v", rules[0].Template, want0)
	}
	want1 := []template.Node{template.Literal("Good to hear.")}
	if !reflect.DeepEqual(rules[1].Template, want1) {
		t.Errorf("scalar template = %#v, want %#v", rules[1].Template, want1)
	}
}

func TestLoadFromReader_Rejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		yml  string
	}{
		{"empty pattern", `
rules:
  - pattern: "   "
    template: "x"
`},
		{"glued wildcard", `
rules:
  - pattern: "*foo"
    template: "x"
`},
		{"missing template", `
rules:
  - pattern: "hello"
`},
		{"unknown directive", `
rules:
  - pattern: "hello"
    template:
      frobnicate: 1
`},
		{"unknown field", `
rules:
  - pattern: "hello"
    response: "x"
    template: "x"
`},
		{"zero star index", `
rules:
  - pattern: "hello *"
    template:
      star: 0
`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := brain.LoadFromReader(strings.NewReader(tc.yml)); err == nil {
				t.Errorf("LoadFromReader accepted malformed library:\n%s", tc.yml)
			}
		})
	}
}

func TestLoadPaths_ScansDirectoriesAndDetectsCrossFileDuplicates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	write := func(name, body string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write("a.yaml", `
rules:
  - pattern: "hello"
    template: "hi"
`)
	write("b.yml", `
rules:
  - pattern: "bye"
    template: "bye"
`)
	write("notes.txt", "not a rule file")

	rules, err := brain.LoadPaths([]string{dir})
	if err != nil {
		t.Fatalf("LoadPaths: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("loaded %d rules, want 2 (txt files must be skipped)", len(rules))
	}

	// A duplicate triple across files fails the whole load.
	write("c.yaml", `
rules:
  - pattern: "HELLO"
    template: "again"
`)
	if _, err := brain.LoadPaths([]string{dir}); err == nil {
		t.Error("LoadPaths accepted a duplicate rule defined across two files")
	}
}

func TestLoadPaths_EmptyLibraryFails(t *testing.T) {
	t.Parallel()

	if _, err := brain.LoadPaths([]string{t.TempDir()}); err == nil {
		t.Error("LoadPaths succeeded on an empty directory, want error")
	}
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want []string
	}{
		{"Hello, world!", []string{"Hello", "world"}},
		{"don't stop", []string{"don't", "stop"}},
		{"'quoted'", []string{"quoted"}},
		{"  spaced   out  ", []string{"spaced", "out"}},
		{"...", nil},
		{"", nil},
	}

	for _, tc := range cases {
		got := brain.Tokenize(tc.in)
		if len(got) != len(tc.want) {
			t.Errorf("Tokenize(%q) = %v, want %v", tc.in, got, tc.want)
			continue
		}
		for i := range got {
			if got[i] != tc.want[i] {
				t.Errorf("Tokenize(%q) = %v, want %v", tc.in, got, tc.want)
				break
			}
		}
	}
}

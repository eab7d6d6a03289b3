package brain_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/synapsebot/synapse/internal/brain"
)

func TestBrain_ReloadSwapsIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	writeRules := func(body string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	writeRules(`
rules:
  - pattern: "ping"
    template: "pong"
`)
	idx, err := brain.LoadIndex([]string{path})
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	b := brain.New(idx)

	if _, ok := b.LookupText("", "", "marco"); ok {
		t.Fatal("matched a rule that is not loaded yet")
	}

	writeRules(`
rules:
  - pattern: "ping"
    template: "pong"
  - pattern: "marco"
    template: "polo"
`)
	if err := b.Reload([]string{path}); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if _, ok := b.LookupText("", "", "marco"); !ok {
		t.Error("new rule not visible after reload")
	}
}

func TestBrain_FailedReloadKeepsLiveIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte(`
rules:
  - pattern: "ping"
    template: "pong"
`), 0o644); err != nil {
		t.Fatal(err)
	}

	idx, err := brain.LoadIndex([]string{path})
	if err != nil {
		t.Fatalf("LoadIndex: %v", err)
	}
	b := brain.New(idx)

	if err := os.WriteFile(path, []byte(`rules: [{pattern: "*bad", template: "x"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := b.Reload([]string{path}); err == nil {
		t.Fatal("Reload succeeded on a malformed library, want error")
	}
	if _, ok := b.LookupText("", "", "ping"); !ok {
		t.Error("live index stopped serving after a failed reload")
	}
}

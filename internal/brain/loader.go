package brain

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/synapsebot/synapse/internal/template"
)

// ruleFile is the top-level structure of a rule library YAML file.
//
// Example:
//
//	rules:
//	  - pattern: "I FEEL *"
//	    template:
//	      - "Why do you feel "
//	      - star: 1
//	      - "?"
//	  - pattern: "TELL ME MORE"
//	    topic: "WEATHER"
//	    template: "It will stay sunny all week."
type ruleFile struct {
	Rules []rawRule `yaml:"rules"`
}

// rawRule is the YAML form of one rule before compilation. Template is a
// value yaml.Node so yaml.v3 defers its decoding; template shapes are
// handled by [template.Parse].
type rawRule struct {
	Pattern  string    `yaml:"pattern"`
	That     string    `yaml:"that"`
	Topic    string    `yaml:"topic"`
	Template yaml.Node `yaml:"template"`
}

// LoadPaths loads every rule file named by paths. Directory entries are
// scanned non-recursively for *.yaml and *.yml files, in lexical order so
// that repeated loads see an identical rule order. Any malformed or
// duplicate rule fails the whole load; a partially loaded library never
// reaches the index.
func LoadPaths(paths []string) ([]*Rule, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("brain: stat rule path %q: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		entries, err := os.ReadDir(p)
		if err != nil {
			return nil, fmt.Errorf("brain: read rule dir %q: %w", p, err)
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if ext := filepath.Ext(e.Name()); ext == ".yaml" || ext == ".yml" {
				files = append(files, filepath.Join(p, e.Name()))
			}
		}
	}
	slices.Sort(files)

	var rules []*Rule
	seen := make(map[string]string) // rule ID → file that first defined it
	for _, f := range files {
		loaded, err := LoadFile(f)
		if err != nil {
			return nil, err
		}
		for _, r := range loaded {
			if origin, dup := seen[r.ID]; dup {
				return nil, fmt.Errorf("brain: duplicate rule %q in %q (first defined in %q)", r.ID, f, origin)
			}
			seen[r.ID] = f
			rules = append(rules, r)
		}
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("brain: no rules found under %v", paths)
	}
	return rules, nil
}

// LoadFile loads and compiles the rules of a single YAML file.
func LoadFile(path string) ([]*Rule, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("brain: open rule file %q: %w", path, err)
	}
	defer f.Close()

	rules, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("brain: rule file %q: %w", path, err)
	}
	return rules, nil
}

// LoadFromReader parses rule YAML from r. Useful in tests where rule
// libraries are constructed from string literals.
func LoadFromReader(r io.Reader) ([]*Rule, error) {
	var rf ruleFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&rf); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	rules := make([]*Rule, 0, len(rf.Rules))
	for i, raw := range rf.Rules {
		rule, err := compileRule(raw)
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// compileRule turns one raw YAML rule into its compiled form.
func compileRule(raw rawRule) (*Rule, error) {
	if strings.TrimSpace(raw.Pattern) == "" {
		return nil, fmt.Errorf("brain: pattern must not be empty")
	}
	pattern, err := compileSection(raw.Pattern, "pattern")
	if err != nil {
		return nil, err
	}
	topic, err := compileSection(raw.Topic, "topic")
	if err != nil {
		return nil, err
	}
	that, err := compileSection(raw.That, "that")
	if err != nil {
		return nil, err
	}

	tmpl, err := template.Parse(&raw.Template)
	if err != nil {
		return nil, fmt.Errorf("brain: pattern %q: %w", raw.Pattern, err)
	}

	return &Rule{
		ID:       ruleKey(pattern, topic, that),
		Pattern:  pattern,
		Topic:    topic,
		That:     that,
		Template: tmpl,
	}, nil
}

// LoadIndex is the startup helper: load every rule under paths and build
// the index in one step.
func LoadIndex(paths []string) (*Index, error) {
	rules, err := LoadPaths(paths)
	if err != nil {
		return nil, err
	}
	return NewIndex(rules)
}

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [Validate] when the corresponding field is unset.
const (
	DefaultListenAddr        = ":8080"
	DefaultResponse          = ":)"
	DefaultRecursionLimit    = 10
	DefaultHistoryLimit      = 20
	DefaultIdleTimeout       = 30 * time.Minute
	DefaultSweepInterval     = time.Minute
	DefaultTrendSmoothing    = 0.3
	DefaultToneThreshold     = 0.4
	DefaultGraphQueryTimeout = 2 * time.Second
	DefaultGraphSeparator    = ", "
	DefaultGraphNotFound     = "I don't know about that yet"
	DefaultPhoneticThreshold = 0.70
	DefaultFuzzyThreshold    = 0.88
)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values and fills in
// defaults for unset fields. It returns a joined error listing all
// validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("config: unknown log level %q", cfg.Server.LogLevel))
	}

	if len(cfg.Brain.RulePaths) == 0 {
		errs = append(errs, errors.New("config: brain.rule_paths must list at least one rule file or directory"))
	}
	if cfg.Brain.DefaultResponse == "" {
		cfg.Brain.DefaultResponse = DefaultResponse
	}
	if cfg.Brain.RecursionLimit == 0 {
		cfg.Brain.RecursionLimit = DefaultRecursionLimit
	}
	if cfg.Brain.RecursionLimit < 1 {
		errs = append(errs, fmt.Errorf("config: brain.recursion_limit must be positive, got %d", cfg.Brain.RecursionLimit))
	}

	if cfg.Spell.PhoneticThreshold == 0 {
		cfg.Spell.PhoneticThreshold = DefaultPhoneticThreshold
	}
	if cfg.Spell.FuzzyThreshold == 0 {
		cfg.Spell.FuzzyThreshold = DefaultFuzzyThreshold
	}
	if cfg.Spell.PhoneticThreshold < 0 || cfg.Spell.PhoneticThreshold > 1 {
		errs = append(errs, fmt.Errorf("config: spell.phonetic_threshold must be in [0, 1], got %v", cfg.Spell.PhoneticThreshold))
	}
	if cfg.Spell.FuzzyThreshold < 0 || cfg.Spell.FuzzyThreshold > 1 {
		errs = append(errs, fmt.Errorf("config: spell.fuzzy_threshold must be in [0, 1], got %v", cfg.Spell.FuzzyThreshold))
	}

	if cfg.Session.HistoryLimit == 0 {
		cfg.Session.HistoryLimit = DefaultHistoryLimit
	}
	if cfg.Session.HistoryLimit < 1 {
		errs = append(errs, fmt.Errorf("config: session.history_limit must be positive, got %d", cfg.Session.HistoryLimit))
	}
	if cfg.Session.IdleTimeout == 0 {
		cfg.Session.IdleTimeout = Duration(DefaultIdleTimeout)
	}
	if cfg.Session.SweepInterval == 0 {
		cfg.Session.SweepInterval = Duration(DefaultSweepInterval)
	}
	if cfg.Session.TrendSmoothing == 0 {
		cfg.Session.TrendSmoothing = DefaultTrendSmoothing
	}
	if cfg.Session.TrendSmoothing <= 0 || cfg.Session.TrendSmoothing > 1 {
		errs = append(errs, fmt.Errorf("config: session.trend_smoothing must be in (0, 1], got %v", cfg.Session.TrendSmoothing))
	}

	if cfg.Sentiment.ToneThreshold == 0 {
		cfg.Sentiment.ToneThreshold = DefaultToneThreshold
	}
	if cfg.Sentiment.ToneThreshold < 0 || cfg.Sentiment.ToneThreshold > 1 {
		errs = append(errs, fmt.Errorf("config: sentiment.tone_threshold must be in [0, 1], got %v", cfg.Sentiment.ToneThreshold))
	}

	if cfg.Graph.QueryTimeout == 0 {
		cfg.Graph.QueryTimeout = Duration(DefaultGraphQueryTimeout)
	}
	if cfg.Graph.Separator == "" {
		cfg.Graph.Separator = DefaultGraphSeparator
	}
	if cfg.Graph.NotFoundText == "" {
		cfg.Graph.NotFoundText = DefaultGraphNotFound
	}
	if cfg.Graph.URI != "" && cfg.Graph.Username == "" {
		errs = append(errs, errors.New("config: graph.username is required when graph.uri is set"))
	}

	return errors.Join(errs...)
}

// Package config provides the configuration schema and loader for the
// Synapse dialogue engine.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// LogLevel controls log verbosity for the Synapse server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Duration is a [time.Duration] that unmarshals from YAML strings such as
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements [yaml.Unmarshaler].
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("config: duration must be a string like \"30s\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns d as a [time.Duration].
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the root configuration structure for Synapse.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Brain     BrainConfig       `yaml:"brain"`
	Spell     SpellConfig       `yaml:"spell"`
	Session   SessionConfig     `yaml:"session"`
	Sentiment SentimentConfig   `yaml:"sentiment"`
	Graph     GraphConfig       `yaml:"graph"`
	Bot       map[string]string `yaml:"bot"`
}

// ServerConfig holds network and logging settings for the Synapse server.
type ServerConfig struct {
	// ListenAddr is the TCP address the chat boundary listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`
}

// BrainConfig configures the rule library and template resolution.
type BrainConfig struct {
	// RulePaths lists YAML rule files or directories loaded at startup.
	// Directories are scanned non-recursively for *.yaml / *.yml files.
	RulePaths []string `yaml:"rule_paths"`

	// DefaultResponse is returned when no rule matches the input.
	DefaultResponse string `yaml:"default_response"`

	// RecursionLimit caps nested recursive-match expansion inside one turn.
	RecursionLimit int `yaml:"recursion_limit"`
}

// SpellConfig configures input spell correction against the rule lexicon.
type SpellConfig struct {
	// Enabled toggles spell correction of input tokens before matching.
	Enabled bool `yaml:"enabled"`

	// PhoneticThreshold is the minimum Jaro-Winkler score for a phonetically
	// matched lexicon word to replace an input token.
	PhoneticThreshold float64 `yaml:"phonetic_threshold"`

	// FuzzyThreshold is the minimum Jaro-Winkler score when no phonetic
	// candidate exists and correction falls back to pure string similarity.
	FuzzyThreshold float64 `yaml:"fuzzy_threshold"`
}

// SessionConfig configures per-session conversation state.
type SessionConfig struct {
	// HistoryLimit is the maximum number of retained (input, response,
	// sentiment) records per session. The oldest record is evicted on overflow.
	HistoryLimit int `yaml:"history_limit"`

	// IdleTimeout is how long a session may stay inactive before the
	// background sweep removes it.
	IdleTimeout Duration `yaml:"idle_timeout"`

	// SweepInterval is how often the eviction sweep runs.
	SweepInterval Duration `yaml:"sweep_interval"`

	// TrendSmoothing is the EWMA factor in (0, 1] applied when folding a
	// turn's sentiment into the session trend. Higher values weigh the most
	// recent turn more heavily.
	TrendSmoothing float64 `yaml:"trend_smoothing"`
}

// SentimentConfig configures sentiment-aware response selection.
type SentimentConfig struct {
	// ToneThreshold is the minimum sentiment intensity before tone-tagged
	// response alternatives are filtered by polarity.
	ToneThreshold float64 `yaml:"tone_threshold"`
}

// GraphConfig configures the knowledge-graph backend.
// An empty URI disables the backend; graph-query directives then resolve to
// the not-found placeholder.
type GraphConfig struct {
	// URI is the bolt/neo4j connection URI (e.g., "bolt://localhost:7687").
	URI string `yaml:"uri"`

	// Username and Password are the basic-auth credentials.
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	// Database selects the target database. Empty uses the server default.
	Database string `yaml:"database"`

	// QueryTimeout bounds each graph query issued during template resolution.
	QueryTimeout Duration `yaml:"query_timeout"`

	// Separator joins multiple values returned by one graph query.
	Separator string `yaml:"separator"`

	// NotFoundText is substituted when a graph query times out, errors, or
	// returns no values.
	NotFoundText string `yaml:"not_found_text"`
}

// Package session implements the per-session conversation state of the
// Synapse dialogue engine: topic, prior bot utterance, variable bindings,
// bounded turn history, and a rolling sentiment trend.
//
// Concurrency model: every session owns a slot that serialises turns: at
// most one turn is in flight per session while different sessions proceed
// independently. [Store.Acquire] takes the slot without blocking and
// reports [ErrSessionBusy] when a turn is already running, so contention is
// caller-visible rather than silently queued. The background sweep never
// evicts a session whose slot is held.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/synapsebot/synapse/internal/observe"
)

// ErrSessionBusy is reported by [Store.Acquire] when a turn is already in
// flight for the session. Callers surface it as a retry, never a drop.
var ErrSessionBusy = errors.New("session: turn already in flight")

// topicVar is the reserved variable name that switches the conversation
// topic when it appears in a turn's variable updates.
const topicVar = "topic"

// Record is one completed exchange retained in the bounded turn history.
type Record struct {
	Input     string
	Response  string
	Polarity  float64
	Timestamp time.Time
}

// Session is the state of one live conversation. All fields below the slot
// are owned by whichever goroutine currently holds the slot; they must only
// be touched between [Store.Acquire] and [Store.Release].
type Session struct {
	// ID is the caller-issued session identifier.
	ID string

	// StartedAt is when the session was created.
	StartedAt time.Time

	slot chan struct{} // holds one token when the session is free

	topic      string
	that       string
	vars       map[string]string
	history    []Record
	trend      float64
	hasTrend   bool
	lastTurnID string
	lastActive time.Time
}

// LastTurnID returns the identifier of the session's most recent turn, or ""
// before the first turn. The caller must hold the session slot.
func (s *Session) LastTurnID() string { return s.lastTurnID }

// Topic returns the current conversation topic ("" when unset).
// The caller must hold the session slot.
func (s *Session) Topic() string { return s.topic }

// That returns the prior bot utterance ("" before the first turn).
// The caller must hold the session slot.
func (s *Session) That() string { return s.that }

// Vars returns a copy of the session's variable bindings.
// The caller must hold the session slot.
func (s *Session) Vars() map[string]string {
	out := make(map[string]string, len(s.vars))
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}

// History returns a copy of the retained turn records, oldest first.
// The caller must hold the session slot.
func (s *Session) History() []Record {
	return append([]Record(nil), s.history...)
}

// Trend returns the exponentially weighted sentiment trend of the session.
// Zero before the first turn. The caller must hold the session slot.
func (s *Session) Trend() float64 { return s.trend }

func (s *Session) tryLock() bool {
	select {
	case <-s.slot:
		return true
	default:
		return false
	}
}

func (s *Session) unlock() { s.slot <- struct{}{} }

// Config holds the tunables of a [Store].
type Config struct {
	// HistoryLimit bounds the per-session turn history. Values below 1
	// default to 20.
	HistoryLimit int

	// IdleTimeout is how long a session may stay inactive before the sweep
	// removes it. Values below or equal to zero default to 30 minutes.
	IdleTimeout time.Duration

	// TrendSmoothing is the EWMA factor in (0, 1] for the sentiment trend.
	// Out-of-range values default to 0.3.
	TrendSmoothing float64

	// Metrics receives the live-session gauge. Nil disables it.
	Metrics *observe.Metrics
}

func (c Config) withDefaults() Config {
	if c.HistoryLimit < 1 {
		c.HistoryLimit = 20
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Minute
	}
	if c.TrendSmoothing <= 0 || c.TrendSmoothing > 1 {
		c.TrendSmoothing = 0.3
	}
	return c
}

// Store owns all live sessions. All exported methods are safe for
// concurrent use.
type Store struct {
	cfg Config

	mu       sync.Mutex
	sessions map[string]*Session

	now func() time.Time // overridable in tests
}

// NewStore creates an empty session store.
func NewStore(cfg Config) *Store {
	return &Store{
		cfg:      cfg.withDefaults(),
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Acquire returns the session for id, creating it on first use, with its
// slot held. Returns [ErrSessionBusy] when another turn currently holds the
// slot. Every successful Acquire must be paired with [Store.Release] on all
// exit paths.
func (s *Store) Acquire(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sessions[id]
	if sess == nil {
		sess = &Session{
			ID:        id,
			StartedAt: s.now(),
			slot:      make(chan struct{}, 1),
			vars:      make(map[string]string),
		}
		sess.slot <- struct{}{}
		sess.lastActive = sess.StartedAt
		s.sessions[id] = sess
		s.cfg.Metrics.AddActiveSessions(context.Background(), 1)
	}
	if !sess.tryLock() {
		return nil, ErrSessionBusy
	}
	return sess, nil
}

// Release returns the session's slot. Safe to call exactly once per
// successful [Store.Acquire].
func (s *Store) Release(sess *Session) {
	sess.unlock()
}

// Turn is the atomic state update applied at the end of one exchange.
type Turn struct {
	// TurnID identifies this exchange; retained so the next turn can be
	// chained to it in external stores.
	TurnID string

	Input    string
	Response string
	Polarity float64

	// VarUpdates are merged into the session variables, last write per key
	// winning. The reserved key "topic" switches the conversation topic
	// instead of becoming a variable; an empty value resets to the default
	// topic.
	VarUpdates map[string]string

	Timestamp time.Time
}

// ApplyTurn is the single mutation point for session state. The caller must
// hold the session slot. It sets the prior bot utterance to the response
// just produced, appends to the bounded history (evicting the oldest record
// on overflow), merges variable updates, applies any topic switch, and
// folds the sentiment polarity into the rolling trend.
func (s *Store) ApplyTurn(sess *Session, turn Turn) {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = s.now()
	}

	for k, v := range turn.VarUpdates {
		if k == topicVar {
			sess.topic = v
			continue
		}
		sess.vars[k] = v
	}

	sess.that = turn.Response
	sess.history = append(sess.history, Record{
		Input:     turn.Input,
		Response:  turn.Response,
		Polarity:  turn.Polarity,
		Timestamp: turn.Timestamp,
	})
	if over := len(sess.history) - s.cfg.HistoryLimit; over > 0 {
		sess.history = append(sess.history[:0], sess.history[over:]...)
	}

	alpha := s.cfg.TrendSmoothing
	if sess.hasTrend {
		sess.trend = alpha*turn.Polarity + (1-alpha)*sess.trend
	} else {
		sess.trend = turn.Polarity
		sess.hasTrend = true
	}

	if turn.TurnID != "" {
		sess.lastTurnID = turn.TurnID
	}
	sess.lastActive = turn.Timestamp
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// EvictIdle removes sessions whose last activity is older than the idle
// timeout, skipping sessions whose slot is currently held (an in-flight
// session is never evicted mid-turn). Returns the number of sessions
// removed.
func (s *Store) EvictIdle() int {
	cutoff := s.now().Add(-s.cfg.IdleTimeout)

	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, sess := range s.sessions {
		if !sess.tryLock() {
			continue
		}
		if sess.lastActive.Before(cutoff) {
			delete(s.sessions, id)
			evicted++
		}
		sess.unlock()
	}
	if evicted > 0 {
		s.cfg.Metrics.AddActiveSessions(context.Background(), -int64(evicted))
	}
	return evicted
}

// Run executes the background eviction sweep until ctx is cancelled.
func (s *Store) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(); n > 0 {
				slog.Debug("session: evicted idle sessions", "count", n, "remaining", s.Len())
			}
		}
	}
}

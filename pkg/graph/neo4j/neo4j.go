// Package neo4j implements [graph.Querier] and [graph.Recorder] on a Neo4j
// database reached through the official Bolt driver.
//
// Entities are :Entity nodes identified by a case-insensitive name property;
// relationship paths are followed hop by hop. Conversations are archived as
// :Conversation nodes owning a chain of :Chat nodes, so a session's turns
// can be walked in order from the graph.
package neo4j

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/synapsebot/synapse/pkg/graph"
)

// Config holds the connection settings for [New].
type Config struct {
	// URI is the bolt/neo4j connection URI (e.g., "bolt://localhost:7687").
	URI string

	// Username and Password are the basic-auth credentials.
	Username string
	Password string

	// Database selects the target database. Empty uses the server default.
	Database string

	// ConnectTimeout bounds socket connection and the startup connectivity
	// check. Zero defaults to 10 seconds.
	ConnectTimeout time.Duration

	// MaxPoolSize caps the driver's connection pool. Zero defaults to 50.
	MaxPoolSize int
}

// Client is a Neo4j-backed knowledge-graph client. It implements
// [graph.Querier] and [graph.Recorder] and is safe for concurrent use.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
}

// Compile-time checks that *Client satisfies the graph interfaces.
var (
	_ graph.Querier  = (*Client)(nil)
	_ graph.Recorder = (*Client)(nil)
)

// New connects to Neo4j and verifies connectivity before returning.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("neo4j: uri required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	maxPool := cfg.MaxPoolSize
	if maxPool <= 0 {
		maxPool = 50
	}

	auth := neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth, func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = maxPool
		c.SocketConnectTimeout = timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: init driver: %w", err)
	}

	vctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(vctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}

	return &Client{driver: driver, database: cfg.Database}, nil
}

// Ping verifies connectivity to the server, for readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

// Close shuts down the underlying driver.
func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.driver == nil {
		return nil
	}
	return c.driver.Close(ctx)
}

// relName validates relationship identifiers interpolated into Cypher.
// Relationship types cannot be parameterised, so anything outside this set
// is rejected before query construction.
var relName = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// Query implements [graph.Querier]. It starts at the :Entity node whose
// name matches entity case-insensitively, follows the relationships in path
// in order, and returns the distinct names of the nodes reached.
func (c *Client) Query(ctx context.Context, entity string, path []string) ([]string, error) {
	cypher, err := buildPathQuery(path)
	if err != nil {
		return nil, err
	}

	result, err := neo4j.ExecuteQuery(ctx, c.driver, cypher,
		map[string]any{"entity": entity},
		neo4j.EagerResultTransformer,
		c.queryOptions()...,
	)
	if err != nil {
		return nil, fmt.Errorf("neo4j: query entity %q: %w", entity, err)
	}

	values := make([]string, 0, len(result.Records))
	for _, rec := range result.Records {
		if v, ok := rec.Get("value"); ok {
			if s, ok := v.(string); ok && s != "" {
				values = append(values, s)
			}
		}
	}
	if len(values) == 0 {
		return nil, graph.ErrNotFound
	}
	return values, nil
}

// buildPathQuery constructs the hop-by-hop Cypher for a relationship path.
func buildPathQuery(path []string) (string, error) {
	if len(path) == 0 {
		return "", fmt.Errorf("neo4j: empty relationship path")
	}
	var sb strings.Builder
	sb.WriteString("MATCH (e:Entity) WHERE toLower(e.name) = toLower($entity)\nMATCH (e)")
	for i, rel := range path {
		if !relName.MatchString(rel) {
			return "", fmt.Errorf("neo4j: invalid relationship name %q", rel)
		}
		fmt.Fprintf(&sb, "-[:%s]->(n%d)", rel, i)
	}
	fmt.Fprintf(&sb, "\nRETURN DISTINCT n%d.name AS value ORDER BY value", len(path)-1)
	return sb.String(), nil
}

// recordTurnCypher archives one turn and links it to its predecessor when
// one exists.
const recordTurnCypher = `
MERGE (c:Conversation {id: $session_id})
  ON CREATE SET c.started_at = $timestamp
SET c.last_active = $timestamp
CREATE (t:Chat {
  id: $turn_id,
  input: $input,
  response: $response,
  intents: $intents,
  polarity: $polarity,
  sentiment: $label,
  timestamp: $timestamp
})
CREATE (c)-[:HAS_CHAT]->(t)
WITH t
OPTIONAL MATCH (p:Chat {id: $prev_turn_id})
FOREACH (_ IN CASE WHEN p IS NULL THEN [] ELSE [1] END |
  CREATE (p)-[:NEXT]->(t))`

// RecordTurn implements [graph.Recorder].
func (c *Client) RecordTurn(ctx context.Context, t graph.Turn) error {
	params := map[string]any{
		"session_id":   t.SessionID,
		"turn_id":      t.TurnID,
		"prev_turn_id": t.PrevTurnID,
		"input":        t.Input,
		"response":     t.Response,
		"intents":      t.Intents,
		"polarity":     t.Polarity,
		"label":        t.Label,
		"timestamp":    t.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	_, err := neo4j.ExecuteQuery(ctx, c.driver, recordTurnCypher, params,
		neo4j.EagerResultTransformer,
		c.queryOptions()...,
	)
	if err != nil {
		return fmt.Errorf("neo4j: record turn %q: %w", t.TurnID, err)
	}
	return nil
}

func (c *Client) queryOptions() []neo4j.ExecuteQueryConfigurationOption {
	if c.database == "" {
		return nil
	}
	return []neo4j.ExecuteQueryConfigurationOption{neo4j.ExecuteQueryWithDatabase(c.database)}
}

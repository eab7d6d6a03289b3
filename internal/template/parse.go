package template

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Parse converts the YAML form of a response specification into a [Node]
// tree. The YAML form accepts three shapes:
//
//   - a scalar string, treated as a single [Literal];
//   - a sequence, whose parsed items are concatenated;
//   - a mapping with exactly one directive key: get, bot, star, thatstar,
//     topicstar, set, random, recurse, or graph.
//
// Malformed directives are load-time errors; the rule library refuses to
// build rather than degrade at runtime.
func Parse(n *yaml.Node) ([]Node, error) {
	// A zero Kind means the field was absent from the source document.
	if n == nil || n.Kind == 0 {
		return nil, fmt.Errorf("template: missing template value")
	}
	switch n.Kind {
	case yaml.ScalarNode:
		var s string
		if err := n.Decode(&s); err != nil {
			return nil, fmt.Errorf("template: decode literal: %w", err)
		}
		return []Node{Literal(s)}, nil

	case yaml.SequenceNode:
		var out []Node
		for i, item := range n.Content {
			nodes, err := Parse(item)
			if err != nil {
				return nil, fmt.Errorf("template: item %d: %w", i, err)
			}
			out = append(out, nodes...)
		}
		return out, nil

	case yaml.MappingNode:
		node, err := parseDirective(n)
		if err != nil {
			return nil, err
		}
		return []Node{node}, nil

	case yaml.AliasNode:
		return Parse(n.Alias)
	}
	return nil, fmt.Errorf("template: unsupported YAML node kind at line %d", n.Line)
}

func parseDirective(n *yaml.Node) (Node, error) {
	if len(n.Content) != 2 {
		return nil, fmt.Errorf("template: directive mapping at line %d must have exactly one key", n.Line)
	}
	key := n.Content[0].Value
	val := n.Content[1]

	switch key {
	case "get":
		return decodeName[Get](val, "get")
	case "bot":
		return decodeName[BotProp](val, "bot")
	case "star":
		return decodeIndex[Star](val, "star")
	case "thatstar":
		return decodeIndex[ThatStar](val, "thatstar")
	case "topicstar":
		return decodeIndex[TopicStar](val, "topicstar")
	case "set":
		return parseSet(val)
	case "random":
		return parseRandom(val)
	case "recurse":
		value, err := Parse(val)
		if err != nil {
			return nil, fmt.Errorf("template: recurse: %w", err)
		}
		return Recurse{Value: value}, nil
	case "graph":
		return parseGraph(val)
	}
	return nil, fmt.Errorf("template: unknown directive %q at line %d", key, n.Line)
}

func decodeName[T interface {
	~string
	Node
}](val *yaml.Node, directive string) (Node, error) {
	var s string
	if err := val.Decode(&s); err != nil {
		return nil, fmt.Errorf("template: %s: expected a name: %w", directive, err)
	}
	if s == "" {
		return nil, fmt.Errorf("template: %s: name must not be empty (line %d)", directive, val.Line)
	}
	return T(s), nil
}

func decodeIndex[T interface {
	~int
	Node
}](val *yaml.Node, directive string) (Node, error) {
	var i int
	if err := val.Decode(&i); err != nil {
		return nil, fmt.Errorf("template: %s: expected a 1-based index: %w", directive, err)
	}
	if i < 1 {
		return nil, fmt.Errorf("template: %s: index must be >= 1, got %d (line %d)", directive, i, val.Line)
	}
	return T(i), nil
}

func parseSet(val *yaml.Node) (Node, error) {
	var raw struct {
		// Value stays a raw node so nested directives parse recursively;
		// yaml.v3 only defers decoding for value-typed yaml.Node fields.
		Name  string    `yaml:"name"`
		Value yaml.Node `yaml:"value"`
	}
	if err := val.Decode(&raw); err != nil {
		return nil, fmt.Errorf("template: set: %w", err)
	}
	if raw.Name == "" {
		return nil, fmt.Errorf("template: set: name must not be empty (line %d)", val.Line)
	}
	value, err := Parse(&raw.Value)
	if err != nil {
		return nil, fmt.Errorf("template: set %q: %w", raw.Name, err)
	}
	return Set{Name: raw.Name, Value: value}, nil
}

func parseRandom(val *yaml.Node) (Node, error) {
	if val.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("template: random: expected a sequence of alternatives (line %d)", val.Line)
	}
	if len(val.Content) == 0 {
		return nil, fmt.Errorf("template: random: must list at least one alternative (line %d)", val.Line)
	}
	alts := make([]Alternative, 0, len(val.Content))
	for i, item := range val.Content {
		alt, err := parseAlternative(item)
		if err != nil {
			return nil, fmt.Errorf("template: random alternative %d: %w", i, err)
		}
		alts = append(alts, alt)
	}
	return Random{Alternatives: alts}, nil
}

// parseAlternative accepts either a bare template (string, sequence, or
// directive mapping) or a {tone, value} wrapper. A mapping containing a
// "value" key is the wrapper form; any other mapping is a directive.
func parseAlternative(n *yaml.Node) (Alternative, error) {
	if n.Kind == yaml.MappingNode {
		for i := 0; i < len(n.Content)-1; i += 2 {
			if n.Content[i].Value == "value" {
				return parseTonedAlternative(n)
			}
		}
	}
	value, err := Parse(n)
	if err != nil {
		return Alternative{}, err
	}
	return Alternative{Value: value}, nil
}

func parseTonedAlternative(n *yaml.Node) (Alternative, error) {
	var raw struct {
		Tone  string    `yaml:"tone"`
		Value yaml.Node `yaml:"value"`
	}
	if err := n.Decode(&raw); err != nil {
		return Alternative{}, err
	}
	tone := Tone(raw.Tone)
	if raw.Tone != "" && !tone.IsValid() {
		return Alternative{}, fmt.Errorf("unknown tone %q (line %d)", raw.Tone, n.Line)
	}
	value, err := Parse(&raw.Value)
	if err != nil {
		return Alternative{}, err
	}
	return Alternative{Tone: tone, Value: value}, nil
}

func parseGraph(val *yaml.Node) (Node, error) {
	var raw struct {
		Entity yaml.Node `yaml:"entity"`
		Path   []string  `yaml:"path"`
	}
	if err := val.Decode(&raw); err != nil {
		return nil, fmt.Errorf("template: graph: %w", err)
	}
	if len(raw.Path) == 0 {
		return nil, fmt.Errorf("template: graph: path must list at least one relationship (line %d)", val.Line)
	}
	entity, err := Parse(&raw.Entity)
	if err != nil {
		return nil, fmt.Errorf("template: graph entity: %w", err)
	}
	return GraphQuery{Entity: entity, Path: raw.Path}, nil
}

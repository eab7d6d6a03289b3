package brain

import "strings"

// Wildcard pattern tokens. An underscore binds exactly one input token, an
// asterisk binds one or more.
const (
	WildcardOne  = "_"
	WildcardMany = "*"
)

// Internal path markers. They contain characters the tokenizer strips, so a
// normalized input token can never collide with them.
const (
	sepTopic = "<topic>"
	sepThat  = "<that>"
	anyToken = "<any>"
)

// maxInputTokens caps the matched portion of one input. Longer inputs are
// truncated before matching so adversarial input cannot blow up the
// backtracking search.
const maxInputTokens = 256

// Tokenize splits text into match tokens, preserving the original word form.
// Punctuation is treated as whitespace except for apostrophes inside words;
// case is preserved (matching folds case separately via [Fold]).
func Tokenize(text string) []string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '\'':
			return r
		case r > 127: // keep non-ASCII letters intact
			return r
		}
		return ' '
	}, text)

	fields := strings.Fields(mapped)
	for i, f := range fields {
		fields[i] = strings.Trim(f, "'")
	}
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	if len(out) > maxInputTokens {
		out = out[:maxInputTokens]
	}
	return out
}

// Fold normalises a token for case-insensitive comparison.
func Fold(tok string) string { return strings.ToUpper(tok) }

func foldAll(toks []string) []string {
	out := make([]string, len(toks))
	for i, t := range toks {
		out[i] = Fold(t)
	}
	return out
}

func isWildcard(tok string) bool { return tok == WildcardOne || tok == WildcardMany }

func isMarker(tok string) bool {
	return tok == sepTopic || tok == sepThat || tok == anyToken
}

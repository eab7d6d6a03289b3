// Package intent classifies utterances into coarse intent labels using
// keyword tables. The labels are diagnostic metadata attached to each turn;
// they never influence pattern matching.
package intent

import "strings"

// General is the fallback label when no keyword table matches.
const General = "general"

// patterns maps each intent label to the phrases that signal it. A phrase
// containing a space matches as a substring of the lowercased input; a
// single word matches whole tokens only, so "no" does not fire inside
// "nothing".
var patterns = map[string][]string{
	"greeting":    {"hello", "hi", "hey", "good morning", "good evening", "good afternoon", "howdy", "greetings"},
	"farewell":    {"bye", "goodbye", "see you", "take care", "later", "farewell"},
	"question":    {"what", "why", "how", "when", "where", "who", "which", "whose", "whom"},
	"request":     {"please", "can you", "could you", "would you", "help me", "i need", "i want"},
	"gratitude":   {"thank", "thanks", "appreciate", "grateful"},
	"apology":     {"sorry", "apologize", "my bad", "forgive"},
	"affirmation": {"yes", "yeah", "yep", "sure", "ok", "okay", "alright", "correct", "right"},
	"negation":    {"no", "nope", "not", "never", "none", "neither"},
	"opinion":     {"think", "believe", "feel", "opinion", "view"},
	"information": {"tell me", "explain", "describe", "define", "meaning of", "what is"},
}

// order fixes the output ordering of detected labels.
var order = []string{
	"greeting", "farewell", "question", "request", "gratitude",
	"apology", "affirmation", "negation", "opinion", "information",
}

// Detect returns the intent labels present in text, in a stable order.
// Text with no recognised signal yields [General].
func Detect(text string) []string {
	lower := strings.ToLower(text)
	tokens := make(map[string]bool)
	for _, t := range strings.FieldsFunc(lower, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '\'')
	}) {
		tokens[strings.Trim(t, "'")] = true
	}

	var detected []string
	for _, label := range order {
		for _, phrase := range patterns[label] {
			if matches(lower, tokens, phrase) {
				detected = append(detected, label)
				break
			}
		}
	}
	if len(detected) == 0 {
		detected = []string{General}
	}
	return detected
}

func matches(lower string, tokens map[string]bool, phrase string) bool {
	if strings.Contains(phrase, " ") {
		return strings.Contains(lower, phrase)
	}
	if tokens[phrase] {
		return true
	}
	// Stemless prefix match for verb forms like "thanks" → "thank".
	for t := range tokens {
		if strings.HasPrefix(t, phrase) && len(phrase) >= 5 {
			return true
		}
	}
	return false
}

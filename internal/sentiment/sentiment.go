// Package sentiment scores utterance polarity using the VADER lexicon.
//
// The score is advisory only: it biases response selection and feeds the
// session trend, but never gates a turn. Accordingly the scorer's failure
// mode is a neutral score, not an error.
package sentiment

import (
	"log/slog"

	"github.com/jonreiter/govader"
)

// Label is the coarse polarity classification of an utterance.
type Label string

const (
	LabelPositive Label = "Positive"
	LabelNegative Label = "Negative"
	LabelNeutral  Label = "Neutral"
)

// Compound-score thresholds for the coarse labels, matching the standard
// VADER classification bounds.
const (
	positiveThreshold = 0.05
	negativeThreshold = -0.05
)

// Score is the sentiment of one utterance.
type Score struct {
	// Polarity is the compound VADER score in [-1, 1].
	Polarity float64

	// Intensity is the magnitude of Polarity in [0, 1].
	Intensity float64

	// Label is the coarse classification of Polarity.
	Label Label
}

// Neutral is the zero-signal score substituted on any scoring failure.
var Neutral = Score{Label: LabelNeutral}

// Analyzer scores text with a VADER lexicon. It is read-only after
// construction and safe for concurrent use. Identical inputs always produce
// identical scores.
type Analyzer struct {
	scores func(text string) govader.Sentiment
}

// NewAnalyzer creates an Analyzer with the built-in English lexicon.
func NewAnalyzer() *Analyzer {
	sia := govader.NewSentimentIntensityAnalyzer()
	return &Analyzer{scores: sia.PolarityScores}
}

// Score rates the polarity and intensity of text. Empty input and any
// internal scoring failure return [Neutral].
func (a *Analyzer) Score(text string) (score Score) {
	if text == "" {
		return Neutral
	}
	// Sentiment is never safety-critical; a lexicon panic on unusual input
	// degrades to neutral instead of failing the turn.
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("sentiment: scorer recovered, returning neutral", "panic", r)
			score = Neutral
		}
	}()

	compound := a.scores(text).Compound
	return classify(compound)
}

func classify(compound float64) Score {
	s := Score{Polarity: compound, Intensity: compound, Label: LabelNeutral}
	if s.Intensity < 0 {
		s.Intensity = -s.Intensity
	}
	switch {
	case compound >= positiveThreshold:
		s.Label = LabelPositive
	case compound <= negativeThreshold:
		s.Label = LabelNegative
	}
	return s
}

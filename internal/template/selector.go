package template

import "math/rand/v2"

// selectAlternative picks one candidate from a random-choice node.
//
// When the sentiment intensity reaches threshold and at least one
// alternative carries a tone tag, candidates are first narrowed to those
// whose tone matches the polarity sign (untagged alternatives always
// survive). A filter that would leave no candidates is discarded and the
// full set is used instead. The final pick is uniform under the per-turn
// seeded RNG.
func selectAlternative(alts []Alternative, s Sentiment, threshold float64, rng *rand.Rand) Alternative {
	if len(alts) == 1 {
		return alts[0]
	}

	candidates := alts
	if s.Intensity >= threshold && anyTagged(alts) {
		want := toneFor(s.Polarity)
		var filtered []Alternative
		for _, a := range alts {
			if a.Tone == "" || a.Tone == want {
				filtered = append(filtered, a)
			}
		}
		if len(filtered) > 0 {
			candidates = filtered
		}
	}
	return candidates[rng.IntN(len(candidates))]
}

func anyTagged(alts []Alternative) bool {
	for _, a := range alts {
		if a.Tone != "" {
			return true
		}
	}
	return false
}

// toneFor maps a polarity sign to the tone it favours.
func toneFor(polarity float64) Tone {
	switch {
	case polarity < 0:
		return ToneEmpathetic
	case polarity > 0:
		return TonePlayful
	}
	return ToneNeutral
}

package coi

import "sort"

// KeyPhrases selects the top key phrases for a CoI from its member
// snippets' candidate phrases, scored by a blend of the CoI's own
// relevance and each phrase's average pairwise similarity to the other
// candidates (a simple centrality proxy), then truncated by the
// configured penalty sequence.
//
// candidates maps each candidate phrase to a pairwise-similarity score
// in [0,1] already computed by the caller (e.g. average embedding
// cosine similarity against the CoI's member snippets).
func (e *Engine) KeyPhrases(coiRelevance float64, candidates map[string]float64) []string {
	type scored struct {
		phrase string
		score  float64
	}
	scoredPhrases := make([]scored, 0, len(candidates))
	for phrase, pairwise := range candidates {
		if phrase == "" {
			continue
		}
		score := e.cfg.Gamma*coiRelevance + (1-e.cfg.Gamma)*pairwise
		scoredPhrases = append(scoredPhrases, scored{phrase, score})
	}
	sort.Slice(scoredPhrases, func(i, j int) bool {
		if scoredPhrases[i].score != scoredPhrases[j].score {
			return scoredPhrases[i].score > scoredPhrases[j].score
		}
		return scoredPhrases[i].phrase < scoredPhrases[j].phrase
	})

	maxPhrases := len(e.cfg.Penalty)
	if maxPhrases > len(scoredPhrases) {
		maxPhrases = len(scoredPhrases)
	}

	out := make([]string, 0, maxPhrases)
	for i := 0; i < maxPhrases; i++ {
		// Only the length of the penalty sequence is used: it bounds how
		// many phrases are returned. The penalty values themselves are
		// not applied to the scores.
		_ = e.cfg.Penalty[i]
		out = append(out, scoredPhrases[i].phrase)
	}
	return out
}

package rag

import "sort"

// DefaultFusionAlpha is the dense weight used when no alpha is configured.
// The lexical branch gets the remaining 1-alpha.
const DefaultFusionAlpha = 0.7

// scoredID is a chunk id with a raw score from one retrieval branch.
type scoredID struct {
	ID    string
	Score float64
}

// fusedCandidate carries a chunk through fusion with both raw scores and
// the combined score.
type fusedCandidate struct {
	ID         string
	Fused      float64
	Dense      float64
	Lexical    float64
	hasDense   bool
	hasLexical bool
}

// fuseCandidates combines the dense and lexical result lists into one
// ranking. Scores are min-max normalized within each list so the two
// branches are comparable, then blended with the alpha weight. A chunk
// present in only one list keeps that list's normalized score rather
// than being averaged against a zero for the branch that never saw it.
// Ties break toward the higher raw lexical score, then the smaller chunk
// id, so identical inputs always produce identical orderings.
func fuseCandidates(dense, lexical []scoredID, alpha float64) []fusedCandidate {
	if alpha <= 0 || alpha >= 1 {
		alpha = DefaultFusionAlpha
	}

	denseNorm := normalizeScores(dense)
	lexNorm := normalizeScores(lexical)

	byID := make(map[string]*fusedCandidate, len(dense)+len(lexical))
	order := make([]string, 0, len(dense)+len(lexical))
	for _, d := range dense {
		if _, ok := byID[d.ID]; !ok {
			byID[d.ID] = &fusedCandidate{ID: d.ID}
			order = append(order, d.ID)
		}
		c := byID[d.ID]
		c.Dense = d.Score
		c.hasDense = true
	}
	for _, l := range lexical {
		if _, ok := byID[l.ID]; !ok {
			byID[l.ID] = &fusedCandidate{ID: l.ID}
			order = append(order, l.ID)
		}
		c := byID[l.ID]
		c.Lexical = l.Score
		c.hasLexical = true
	}

	out := make([]fusedCandidate, 0, len(order))
	for _, id := range order {
		c := byID[id]
		switch {
		case c.hasDense && c.hasLexical:
			c.Fused = alpha*denseNorm[id] + (1-alpha)*lexNorm[id]
		case c.hasDense:
			c.Fused = denseNorm[id]
		default:
			c.Fused = lexNorm[id]
		}
		out = append(out, *c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Fused != out[j].Fused {
			return out[i].Fused > out[j].Fused
		}
		if out[i].Lexical != out[j].Lexical {
			return out[i].Lexical > out[j].Lexical
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// normalizeScores min-max normalizes a branch's scores into [0, 1]. A
// single-element or constant-score list maps to 1.0 so a lone hit still
// counts fully.
func normalizeScores(hits []scoredID) map[string]float64 {
	norm := make(map[string]float64, len(hits))
	if len(hits) == 0 {
		return norm
	}
	min, max := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < min {
			min = h.Score
		}
		if h.Score > max {
			max = h.Score
		}
	}
	span := max - min
	for _, h := range hits {
		if span == 0 {
			norm[h.ID] = 1.0
			continue
		}
		norm[h.ID] = (h.Score - min) / span
	}
	return norm
}

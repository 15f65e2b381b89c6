package usecase

import (
	"sort"

	"github.com/SHIVAAKARTHIK/project-server-rag/internal/core/domain"
)

type fusedCandidate struct {
	fragment domain.ScoredFragment
	score    float64
	order    int
}

// FuseRRF merges ranked lists with weighted reciprocal rank fusion.
// Each fragment gets sum(w_i / (k + rank + 1)) over the lists it appears in,
// where rank is its 0-based position. Missing or mismatched weights mean
// equal weights 1/N. Fragments without an id are skipped. Ties keep the
// order in which fragments were first seen.
func FuseRRF(lists [][]domain.ScoredFragment, weights []float64, k int) []domain.FusedResult {
	if len(lists) == 0 {
		return []domain.FusedResult{}
	}
	if k <= 0 {
		k = domain.DefaultRRFK
	}
	if len(weights) != len(lists) {
		weights = equalWeights(len(lists))
	}

	acc := make(map[string]*fusedCandidate)
	seen := 0
	for i, list := range lists {
		w := weights[i]
		for rank, fragment := range list {
			if fragment.ID == "" {
				continue
			}
			c, ok := acc[fragment.ID]
			if !ok {
				c = &fusedCandidate{fragment: fragment, order: seen}
				acc[fragment.ID] = c
				seen++
			}
			c.score += w / float64(k+rank+1)
		}
	}

	candidates := make([]*fusedCandidate, 0, len(acc))
	for _, c := range acc {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].order < candidates[j].order
	})

	out := make([]domain.FusedResult, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, domain.FusedResult{ScoredFragment: c.fragment, RRFScore: c.score})
	}
	return out
}

func equalWeights(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1.0 / float64(n)
	}
	return w
}

// fusedToFragments turns a fused list back into a ranked list so it can be
// fused again, e.g. per-variant hybrid lists inside multi-query-hybrid.
func fusedToFragments(fused []domain.FusedResult) []domain.ScoredFragment {
	out := make([]domain.ScoredFragment, 0, len(fused))
	for i, f := range fused {
		fragment := f.ScoredFragment
		fragment.RelevanceScore = f.RRFScore
		fragment.Rank = i
		out = append(out, fragment)
	}
	return out
}

func trimFused(fused []domain.FusedResult, limit int) []domain.FusedResult {
	if limit <= 0 || len(fused) <= limit {
		return fused
	}
	return fused[:limit]
}

package rag

import (
	"math"
	"sort"

	"github.com/mwiater/loremaster/internal/lore"
)

// scoreCandidates ranks candidates by cosine similarity to queryVec. Candidates
// without a vector, or with a vector of another dimension, are dropped. Ties
// keep recall order.
func scoreCandidates(candidates []lore.SearchResult, vectors map[string][]float64, queryVec []float64) []Candidate {
	scored := make([]Candidate, 0, len(candidates))
	queryNorm := vectorNorm(queryVec)
	for _, c := range candidates {
		vec, ok := vectors[c.Entry.UUID]
		if !ok || len(vec) != len(queryVec) {
			continue
		}
		scored = append(scored, Candidate{
			Entry:        c.Entry,
			CategoryPath: c.CategoryPath,
			Score:        cosineSimilarity(queryVec, vec, queryNorm),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored
}

// CosineSimilarity returns dot(a,b)/(|a||b|), or 0 when either vector is zero
// or the dimensions differ.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0
	}
	return cosineSimilarity(a, b, vectorNorm(a))
}

func cosineSimilarity(a, b []float64, normA float64) float64 {
	if normA == 0 {
		return 0
	}
	normB := vectorNorm(b)
	if normB == 0 {
		return 0
	}
	dot := 0.0
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / (normA * normB)
}

func vectorNorm(v []float64) float64 {
	sum := 0.0
	for _, val := range v {
		sum += val * val
	}
	return math.Sqrt(sum)
}

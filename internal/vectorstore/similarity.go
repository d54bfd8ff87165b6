package vectorstore

import (
	"sort"

	"movierag/internal/domain"
)

// Dot returns the inner product over the common prefix of a and b.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// TopK scores every entry passing filter against vector and returns the k
// best. Ties keep insertion order.
func TopK(entries []domain.IndexEntry, vector []float32, k int, filter *domain.Filter) []domain.SearchResult {
	if k <= 0 {
		return nil
	}
	candidates := make([]domain.SearchResult, 0, len(entries))
	for _, e := range entries {
		if !filter.Matches(e.Metadata) {
			continue
		}
		candidates = append(candidates, domain.SearchResult{Entry: e, Score: Dot(e.Vector, vector)})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if k > len(candidates) {
		k = len(candidates)
	}
	return candidates[:k]
}

package domain

import (
	"strconv"
	"strings"
)

// Chunk is a window of a corpus document's text.
type Chunk struct {
	DocumentID int
	Index      int
	Text       string
}

// IndexEntry is one embedded chunk stored in the vector index.
type IndexEntry struct {
	DocumentID int
	ChunkIndex int
	Text       string
	Vector     []float32
	Metadata   map[string]string
}

// Key returns the stable identifier of the entry, "doc:chunk".
func (e IndexEntry) Key() string {
	return strconv.Itoa(e.DocumentID) + ":" + strconv.Itoa(e.ChunkIndex)
}

// SearchResult is an index entry with its similarity to the query.
type SearchResult struct {
	Entry IndexEntry
	Score float64
}

// Filter restricts search results by entry metadata. A nil Filter matches
// everything. Comparisons are case-insensitive.
type Filter struct {
	// Equals requires metadata[key] to equal the value.
	Equals map[string]string
	// Contains requires metadata[key] to contain the value.
	Contains map[string]string
	// Min requires metadata[key] to parse as a number >= the value.
	Min map[string]float64
}

// IsZero reports whether the filter has no conditions.
func (f *Filter) IsZero() bool {
	return f == nil || (len(f.Equals) == 0 && len(f.Contains) == 0 && len(f.Min) == 0)
}

// Matches reports whether metadata satisfies every condition.
func (f *Filter) Matches(metadata map[string]string) bool {
	if f.IsZero() {
		return true
	}
	for k, want := range f.Equals {
		got, ok := metadata[k]
		if !ok || !strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(want)) {
			return false
		}
	}
	for k, want := range f.Contains {
		got, ok := metadata[k]
		if !ok || !strings.Contains(strings.ToLower(got), strings.ToLower(want)) {
			return false
		}
	}
	for k, min := range f.Min {
		got, ok := metadata[k]
		if !ok {
			return false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(got), 64)
		if err != nil || v < min {
			return false
		}
	}
	return true
}

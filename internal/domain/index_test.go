package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterMatches(t *testing.T) {
	meta := map[string]string{
		ColGenre:  "action, sci-fi",
		ColRating: "8.2",
		ColTitle:  "the matrix",
	}

	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{"nil filter", nil, true},
		{"empty filter", &Filter{}, true},
		{"contains genre", &Filter{Contains: map[string]string{ColGenre: "Sci-Fi"}}, true},
		{"missing genre", &Filter{Contains: map[string]string{ColGenre: "drama"}}, false},
		{"equals title", &Filter{Equals: map[string]string{ColTitle: "The Matrix"}}, true},
		{"min rating met", &Filter{Min: map[string]float64{ColRating: 8}}, true},
		{"min rating missed", &Filter{Min: map[string]float64{ColRating: 8.5}}, false},
		{"min on absent key", &Filter{Min: map[string]float64{ColVotes: 1}}, false},
		{"all conditions", &Filter{
			Equals:   map[string]string{ColTitle: "the matrix"},
			Contains: map[string]string{ColGenre: "action"},
			Min:      map[string]float64{ColRating: 8},
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(meta))
		})
	}
}

func TestFilterMinRejectsNonNumeric(t *testing.T) {
	f := &Filter{Min: map[string]float64{ColRating: 1}}
	assert.False(t, f.Matches(map[string]string{ColRating: "Unknown"}))
}

func TestIndexEntryKey(t *testing.T) {
	assert.Equal(t, "3:1", IndexEntry{DocumentID: 3, ChunkIndex: 1}.Key())
}

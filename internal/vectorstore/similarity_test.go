package vectorstore

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"movierag/internal/domain"
)

func TestDot(t *testing.T) {
	assert.InDelta(t, 11.0, Dot([]float32{1, 2}, []float32{3, 4}), 1e-9)
	assert.InDelta(t, 3.0, Dot([]float32{1, 2, 9}, []float32{3}), 1e-9)
}

func TestTopKStableTies(t *testing.T) {
	entries := []domain.IndexEntry{
		{DocumentID: 0, Vector: []float32{1, 0}},
		{DocumentID: 1, Vector: []float32{1, 0}},
		{DocumentID: 2, Vector: []float32{0, 1}},
	}
	res := TopK(entries, []float32{1, 0}, 3, nil)
	assert.Len(t, res, 3)
	assert.Equal(t, 0, res[0].Entry.DocumentID)
	assert.Equal(t, 1, res[1].Entry.DocumentID)
	assert.Equal(t, 2, res[2].Entry.DocumentID)

	assert.Empty(t, TopK(entries, []float32{1, 0}, 0, nil))
}

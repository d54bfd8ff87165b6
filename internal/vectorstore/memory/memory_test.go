package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movierag/internal/domain"
	"movierag/internal/vectorstore"
)

func entry(doc int, genre string, v ...float32) domain.IndexEntry {
	return domain.IndexEntry{DocumentID: doc, Text: genre, Vector: v, Metadata: map[string]string{"genre": genre}}
}

func seeded(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.Reset(ctx, 2))
	require.NoError(t, s.Upsert(ctx, []domain.IndexEntry{
		entry(0, "drama", 0, 1),
		entry(1, "sci-fi", 1, 0),
		entry(2, "sci-fi", 0.8, 0.6),
	}))
	return s
}

func TestSearchOrdersByScore(t *testing.T) {
	s := seeded(t)
	assert.Equal(t, 3, s.Count())

	res, err := s.Search(context.Background(), []float32{1, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, 1, res[0].Entry.DocumentID)
	assert.Equal(t, 2, res[1].Entry.DocumentID)
	assert.GreaterOrEqual(t, res[0].Score, res[1].Score)
}

func TestSearchAppliesFilterBeforeLimit(t *testing.T) {
	s := seeded(t)
	res, err := s.Search(context.Background(), []float32{1, 0}, 5,
		&domain.Filter{Equals: map[string]string{"genre": "drama"}})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, 0, res[0].Entry.DocumentID)
}

func TestSearchEmptyStore(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Reset(context.Background(), 4))
	res, err := s.Search(context.Background(), []float32{1, 0, 0, 0}, 3, nil)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestUpsertRejectsWrongDimension(t *testing.T) {
	s := NewStorage()
	require.NoError(t, s.Reset(context.Background(), 3))
	err := s.Upsert(context.Background(), []domain.IndexEntry{entry(0, "x", 1, 0)})
	assert.ErrorIs(t, err, vectorstore.ErrDimensionMismatch)
	assert.Error(t, s.Reset(context.Background(), 0))
}

func TestResetClearsAndLoadIsEmpty(t *testing.T) {
	s := seeded(t)
	require.NoError(t, s.Reset(context.Background(), 2))
	assert.Equal(t, 0, s.Count())
	n, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

// Package vectorstore defines the storage backends behind the vector index.
package vectorstore

import (
	"context"
	"errors"

	"movierag/internal/domain"
)

// ErrDimensionMismatch indicates a vector whose length differs from the
// store's dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Storage persists index entries and answers nearest-neighbour queries.
// Vectors are expected to be L2-normalised so inner product is cosine
// similarity.
type Storage interface {
	// Load reads previously persisted entries and returns how many are
	// available. A backend without persistence returns 0.
	Load(ctx context.Context) (int, error)
	// Reset discards all entries and prepares for vectors of dimension.
	Reset(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, entries []domain.IndexEntry) error
	// Search returns at most k entries matching filter, most similar first.
	Search(ctx context.Context, vector []float32, k int, filter *domain.Filter) ([]domain.SearchResult, error)
	Count() int
	Close() error
}

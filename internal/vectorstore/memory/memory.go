package memory

import (
	"context"
	"errors"
	"sync"

	"movierag/internal/domain"
	"movierag/internal/vectorstore"
)

var _ vectorstore.Storage = (*Storage)(nil)

// Storage is a non-persistent vector store using brute-force cosine similarity.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	entries   []domain.IndexEntry
}

func NewStorage() *Storage { return &Storage{} }

// Load always reports 0: nothing survives the process.
func (s *Storage) Load(context.Context) (int, error) { return 0, nil }

// Ephemeral reports that entries are lost on Close.
func (s *Storage) Ephemeral() bool { return true }

func (s *Storage) Reset(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	s.entries = nil
	return nil
}

func (s *Storage) Upsert(_ context.Context, entries []domain.IndexEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if len(e.Vector) != s.dimension {
			return vectorstore.ErrDimensionMismatch
		}
	}
	s.entries = append(s.entries, entries...)
	return nil
}

func (s *Storage) Search(_ context.Context, vector []float32, k int, filter *domain.Filter) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return vectorstore.TopK(s.entries, vector, k, filter), nil
}

func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
	return nil
}

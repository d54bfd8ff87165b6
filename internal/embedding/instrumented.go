package embedding

import (
	"context"

	"movierag/internal/domain"
	"movierag/internal/metrics"
)

var _ domain.Embedder = (*Instrumented)(nil)

// Instrumented records prometheus metrics around an embedder.
type Instrumented struct {
	domain.Embedder
}

// Instrument wraps e unless it is already instrumented.
func Instrument(e domain.Embedder) domain.Embedder {
	if _, ok := e.(*Instrumented); ok {
		return e
	}
	return &Instrumented{Embedder: e}
}

// Embed delegates and records the call.
func (i *Instrumented) Embed(ctx context.Context, text string) ([]float32, error) {
	v, err := i.Embedder.Embed(ctx, text)
	metrics.RecordEmbedding(i.Name(), 1, err)
	return v, err
}

// EmbedBatch delegates and records the call.
func (i *Instrumented) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	v, err := i.Embedder.EmbedBatch(ctx, texts)
	metrics.RecordEmbedding(i.Name(), len(texts), err)
	return v, err
}

package domain

import "context"

// Embedder converts text into fixed-dimension vectors. The same text always
// yields the same vector for a given configuration.
type Embedder interface {
	// Name identifies the provider, e.g. "openai" or "hashing".
	Name() string
	Model() string
	// Dimension returns the vector size, or 0 when not yet known.
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerationRequest is the prompt material handed to a generator.
type GenerationRequest struct {
	Query   string
	Context string
}

// Generator produces free-text recommendations from retrieved context.
// An empty answer with a nil error means the provider returned no answer.
type Generator interface {
	Name() string
	Model() string
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// Chunker splits a corpus document into index chunks.
type Chunker interface {
	Chunk(doc CorpusDocument) []Chunk
}

// Credentials resolves secrets by name.
type Credentials interface {
	Lookup(name string) (string, bool)
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"movierag/internal/chunker"
	"movierag/internal/config"
	"movierag/internal/corpus"
	"movierag/internal/domain"
	"movierag/internal/embedding"
	"movierag/internal/generator"
	"movierag/internal/index"
	"movierag/internal/logging"
	"movierag/internal/recommend"
	"movierag/internal/vectorstore"
	"movierag/internal/vectorstore/memory"
	"movierag/internal/vectorstore/qdrant"
	"movierag/internal/vectorstore/sqlite"
)

// FromConfig wires an orchestrator from application configuration. A
// missing embedding credential selects the local fallback embedder and is
// reported in Providers. A missing generator credential is kept and fails
// the recommender initialization stage, so data loading and indexing still
// run.
func FromConfig(ctx context.Context, cfg *config.AppConfig, creds domain.Credentials) (*Orchestrator, error) {
	emb, err := embedding.Select(ctx, cfg.Embedder, creds)
	if err != nil {
		return nil, err
	}
	var (
		gen    domain.Generator
		genErr error
	)
	sel, err := generator.Select(ctx, cfg.Generator, creds)
	switch {
	case errors.Is(err, domain.ErrCredentialMissing):
		genErr = err
		logging.Ctx(ctx).Warn().Err(err).Str("generator", cfg.Generator.Type).
			Msg("generator unavailable, recommender initialization will fail")
	case err != nil:
		return nil, err
	default:
		gen = sel.Generator
	}
	store, err := newStorage(cfg.VectorStore, creds)
	if err != nil {
		return nil, err
	}

	providers := ProviderInfo{
		Embedder:           emb.Embedder.Name(),
		EmbedderConfigured: emb.Configured,
		EmbedderFallback:   emb.Fallback,
		Generator:          cfg.Generator.Type,
	}
	if emb.Fallback {
		providers.FallbackReason = emb.Reason
	}
	if genErr != nil {
		providers.GeneratorError = genErr.Error()
	}

	return New(Components{
		Loader: corpus.NewLoader(corpus.Paths{
			Source:   cfg.Data.SourcePath,
			Cleaned:  cfg.CleanedPath(),
			Combined: cfg.CombinedPath(),
			Encoders: cfg.EncodersPath(),
			Scaler:   cfg.ScalerPath(),
		}),
		Index: index.NewManager(index.Options{
			Dir:      cfg.VectorStore.Dir,
			Storage:  store,
			Embedder: emb.Embedder,
			Chunker:  chunker.NewWindowChunker(cfg.Chunker.Size, cfg.Chunker.Overlap),
		}),
		Generator:    gen,
		GeneratorErr: genErr,
		Engine: recommend.Options{
			ContextK: cfg.Recommender.ContextK,
			SimilarK: cfg.Recommender.SimilarK,
		},
		Incremental:    cfg.VectorStore.Incremental,
		SmokeTestQuery: cfg.Recommender.SmokeTestQuery,
		Providers:      providers,
	}), nil
}

func newStorage(cfg config.VectorStoreConfig, creds domain.Credentials) (vectorstore.Storage, error) {
	switch cfg.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "sqlite", "":
		return sqlite.NewStorage(cfg.Dir), nil
	case "qdrant":
		qc := config.QdrantConfig{}
		if cfg.Qdrant != nil {
			qc = *cfg.Qdrant
		}
		if qc.URL == "" {
			return nil, fmt.Errorf("qdrant vector store requires a url")
		}
		key := ""
		if qc.APIKeyEnv != "" {
			key, _ = creds.Lookup(qc.APIKeyEnv)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        qc.URL,
			APIKey:     key,
			Collection: qc.Collection,
			Timeout:    time.Duration(qc.TimeoutSecs) * time.Second,
		}), nil
	}
	return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
}

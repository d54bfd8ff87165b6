// Package embedding chooses the embedder for a run and instruments it.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"movierag/internal/config"
	"movierag/internal/domain"
	"movierag/internal/embedding/hashing"
	"movierag/internal/embedding/ollama"
	"movierag/internal/embedding/openai"
	"movierag/internal/logging"
	"movierag/internal/metrics"
)

// Selection reports which embedder was chosen and why.
type Selection struct {
	Embedder domain.Embedder
	// Configured is the provider named in configuration.
	Configured string
	// Fallback is true when the local hashing embedder replaced Configured.
	Fallback bool
	Reason   string
}

// Select builds the configured embedder. A missing credential for the
// primary provider is not an error: the hashing embedder is substituted and
// the substitution is logged and counted.
func Select(ctx context.Context, cfg config.EmbedderConfig, creds domain.Credentials) (Selection, error) {
	dim := hashing.DefaultDimension
	if cfg.Hashing != nil && cfg.Hashing.Dimension > 0 {
		dim = cfg.Hashing.Dimension
	}

	switch cfg.Type {
	case "hashing", "":
		return Selection{Embedder: Instrument(hashing.NewEmbedder(dim)), Configured: "hashing"}, nil

	case "ollama":
		oc := config.OllamaEmbedderConfig{}
		if cfg.Ollama != nil {
			oc = *cfg.Ollama
		}
		e := ollama.NewClient(ollama.Config{
			BaseURL: oc.BaseURL,
			Model:   oc.Model,
			Timeout: time.Duration(oc.TimeoutSecs) * time.Second,
		})
		return Selection{Embedder: Instrument(e), Configured: "ollama"}, nil

	case "openai":
		oc := config.OpenAIEmbedderConfig{APIKeyEnv: "OPENAI_API_KEY"}
		if cfg.OpenAI != nil {
			oc = *cfg.OpenAI
		}
		key, ok := creds.Lookup(oc.APIKeyEnv)
		if !ok {
			return fallback(ctx, "openai", &domain.CredentialMissingError{Name: oc.APIKeyEnv}, dim), nil
		}
		e, err := openai.NewClient(openai.Config{
			BaseURL:           oc.BaseURL,
			APIKey:            key,
			Model:             oc.Model,
			Timeout:           time.Duration(oc.TimeoutSecs) * time.Second,
			BatchSize:         oc.BatchSize,
			RequestsPerSecond: oc.RequestsPerSecond,
		})
		if err != nil {
			return Selection{}, fmt.Errorf("openai embedder: %w", err)
		}
		return Selection{Embedder: Instrument(e), Configured: "openai"}, nil
	}
	return Selection{}, fmt.Errorf("unknown embedder: %s", cfg.Type)
}

func fallback(ctx context.Context, configured string, cause error, dim int) Selection {
	reason := "unavailable"
	if errors.Is(cause, domain.ErrCredentialMissing) {
		reason = "credential_missing"
	}
	logging.Ctx(ctx).Warn().
		Err(cause).
		Str("configured", configured).
		Str("using", "hashing").
		Msg("embedding provider unavailable, falling back to local embedder")
	metrics.RecordFallback(configured, reason)
	return Selection{
		Embedder:   Instrument(hashing.NewEmbedder(dim)),
		Configured: configured,
		Fallback:   true,
		Reason:     cause.Error(),
	}
}

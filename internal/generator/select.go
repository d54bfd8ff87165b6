package generator

import (
	"context"
	"fmt"
	"time"

	"movierag/internal/config"
	"movierag/internal/domain"
	"movierag/internal/generator/extractive"
	"movierag/internal/generator/ollama"
	"movierag/internal/generator/openai"
)

// Selection reports which generator was chosen.
type Selection struct {
	Generator  *Breaker
	Configured string
}

// Select builds the configured generator wrapped in a circuit breaker.
// There is no local substitute for a remote provider: a missing credential
// is returned as a *domain.CredentialMissingError.
func Select(_ context.Context, cfg config.GeneratorConfig, creds domain.Credentials) (Selection, error) {
	settings := BreakerSettings{
		MaxFailures: cfg.Breaker.MaxFailures,
		OpenTimeout: time.Duration(cfg.Breaker.OpenTimeoutSecs) * time.Second,
	}
	maxItems := extractive.DefaultMaxItems
	if cfg.Extractive != nil && cfg.Extractive.MaxSentences > 0 {
		maxItems = cfg.Extractive.MaxSentences
	}

	switch cfg.Type {
	case "extractive", "":
		return Selection{Generator: WithBreaker(extractive.New(maxItems), settings), Configured: "extractive"}, nil

	case "ollama":
		oc := config.OllamaGeneratorConfig{}
		if cfg.Ollama != nil {
			oc = *cfg.Ollama
		}
		g := ollama.NewClient(ollama.Config{
			BaseURL:     oc.BaseURL,
			Model:       oc.Model,
			Temperature: oc.Temperature,
			Timeout:     time.Duration(oc.TimeoutSecs) * time.Second,
		})
		return Selection{Generator: WithBreaker(g, settings), Configured: "ollama"}, nil

	case "openai":
		oc := config.OpenAIGeneratorConfig{APIKeyEnv: "OPENAI_API_KEY", Temperature: 0.7}
		if cfg.OpenAI != nil {
			oc = *cfg.OpenAI
		}
		key, ok := creds.Lookup(oc.APIKeyEnv)
		if !ok {
			return Selection{Configured: "openai"},
				fmt.Errorf("openai generator requires an API key: %w", &domain.CredentialMissingError{Name: oc.APIKeyEnv})
		}
		g, err := openai.NewClient(openai.Config{
			BaseURL:     oc.BaseURL,
			APIKey:      key,
			Model:       oc.Model,
			Temperature: oc.Temperature,
			MaxTokens:   oc.MaxTokens,
			Timeout:     time.Duration(oc.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return Selection{}, fmt.Errorf("openai generator: %w", err)
		}
		return Selection{Generator: WithBreaker(g, settings), Configured: "openai"}, nil
	}
	return Selection{}, fmt.Errorf("unknown generator: %s", cfg.Type)
}

package generator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movierag/internal/config"
	"movierag/internal/domain"
)

type stubGenerator struct {
	answer string
	err    error
	calls  int
}

func (s *stubGenerator) Name() string  { return "stub" }
func (s *stubGenerator) Model() string { return "stub-1" }
func (s *stubGenerator) Generate(context.Context, domain.GenerationRequest) (string, error) {
	s.calls++
	return s.answer, s.err
}

func TestBreakerPassesAnswersThrough(t *testing.T) {
	b := WithBreaker(&stubGenerator{answer: "watch Alien"}, BreakerSettings{})
	out, err := b.Generate(context.Background(), domain.GenerationRequest{Query: "q"})
	require.NoError(t, err)
	assert.Equal(t, "watch Alien", out)
	assert.Equal(t, "stub", b.Name())
	assert.Equal(t, "stub-1", b.Model())
}

func TestBreakerWrapsFailuresAndOpens(t *testing.T) {
	stub := &stubGenerator{err: errors.New("upstream 500")}
	b := WithBreaker(stub, BreakerSettings{MaxFailures: 2, OpenTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := b.Generate(context.Background(), domain.GenerationRequest{})
		require.Error(t, err)
		assert.ErrorIs(t, err, domain.ErrGeneration)
		var ge *domain.GenerationError
		require.ErrorAs(t, err, &ge)
		assert.Equal(t, "stub", ge.Provider)
	}
	assert.Equal(t, "open", b.State())

	_, err := b.Generate(context.Background(), domain.GenerationRequest{})
	assert.ErrorIs(t, err, domain.ErrGeneration)
	assert.Equal(t, 2, stub.calls, "open circuit must not reach the provider")
}

func TestSelectRequiresKeyForOpenAI(t *testing.T) {
	cfg := config.GeneratorConfig{Type: "openai", OpenAI: &config.OpenAIGeneratorConfig{APIKeyEnv: "MOVIERAG_TEST_MISSING_KEY"}}
	sel, err := Select(context.Background(), cfg, config.StaticCredentials{})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCredentialMissing)
	assert.Contains(t, err.Error(), "MOVIERAG_TEST_MISSING_KEY")
	assert.Nil(t, sel.Generator)
	assert.Equal(t, "openai", sel.Configured)
}

func TestSelectExtractiveNeedsNoCredential(t *testing.T) {
	sel, err := Select(context.Background(), config.GeneratorConfig{Type: "extractive"}, config.StaticCredentials{})
	require.NoError(t, err)
	assert.Equal(t, "extractive", sel.Generator.Name())
	assert.Equal(t, "extractive", sel.Configured)
}

func TestSelectUsesConfiguredProviders(t *testing.T) {
	cfg := config.GeneratorConfig{Type: "openai", OpenAI: &config.OpenAIGeneratorConfig{APIKeyEnv: "KEY", Model: "gpt-4o-mini"}}
	sel, err := Select(context.Background(), cfg, config.StaticCredentials{"KEY": "sk-test"})
	require.NoError(t, err)
	assert.Equal(t, "openai", sel.Generator.Name())
	assert.Equal(t, "gpt-4o-mini", sel.Generator.Model())

	sel, err = Select(context.Background(), config.GeneratorConfig{Type: "ollama"}, config.StaticCredentials{})
	require.NoError(t, err)
	assert.Equal(t, "ollama", sel.Generator.Name())

	_, err = Select(context.Background(), config.GeneratorConfig{Type: "telepathy"}, config.StaticCredentials{})
	assert.Error(t, err)
}

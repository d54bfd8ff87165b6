package recommend

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movierag/internal/chunker"
	"movierag/internal/domain"
	"movierag/internal/embedding/hashing"
	"movierag/internal/index"
	"movierag/internal/vectorstore/memory"
)

type stubGenerator struct {
	answer string
	err    error
	last   domain.GenerationRequest
}

func (s *stubGenerator) Name() string  { return "stub" }
func (s *stubGenerator) Model() string { return "stub-model" }
func (s *stubGenerator) Generate(_ context.Context, req domain.GenerationRequest) (string, error) {
	s.last = req
	return s.answer, s.err
}

func catalogue() []domain.CorpusDocument {
	rows := []map[string]string{
		{"title": "inception", "genre": "action, sci-fi", "rating": "8.8", "runtime": "148", "certificate": "pg-13", "description": "a thief steals secrets through dreams"},
		{"title": "the notebook", "genre": "drama, romance", "rating": "7.8", "runtime": "123", "certificate": "pg-13", "description": "a young couple falls in love"},
		{"title": "interstellar", "genre": "adventure, drama, sci-fi", "rating": "8.6", "runtime": "169", "certificate": "pg-13", "description": "explorers travel through a wormhole in space"},
		{"title": "the room", "genre": "drama", "rating": "3.6", "runtime": "99", "certificate": "r", "description": "a banker's life falls apart"},
		{"title": "alien", "genre": "horror, sci-fi", "rating": "8.5", "runtime": "117", "certificate": "r", "description": "the crew of a spaceship meets a deadly creature"},
	}
	cols := []string{"title", "genre", "rating", "runtime", "certificate", "description"}
	docs := make([]domain.CorpusDocument, len(rows))
	for i, r := range rows {
		var parts []string
		for _, c := range cols {
			parts = append(parts, c+": "+r[c])
		}
		docs[i] = domain.CorpusDocument{ID: i, Text: strings.Join(parts, " "), Fields: r}
	}
	return docs
}

func newEngine(t *testing.T, gen domain.Generator) (*Engine, *index.Manager) {
	t.Helper()
	idx := index.NewManager(index.Options{
		Storage:  memory.NewStorage(),
		Embedder: hashing.NewEmbedder(256),
		Chunker:  chunker.NewWindowChunker(1000, 200),
	})
	return NewEngine(idx, gen, catalogue(), []string{"title", "genre"}, Options{}), idx
}

func TestQueryBeforeInitializeFails(t *testing.T) {
	e, idx := newEngine(t, &stubGenerator{answer: "x"})

	_, err := e.GetRecommendations(context.Background(), "space")
	assert.ErrorIs(t, err, domain.ErrEngineNotInitialized)
	_, err = e.ByGenre(context.Background(), "drama", 3)
	assert.ErrorIs(t, err, domain.ErrEngineNotInitialized)
	_, err = e.ByRating(context.Background(), 8, 3)
	assert.ErrorIs(t, err, domain.ErrEngineNotInitialized)
	_, err = e.SimilarItems(context.Background(), "space", 3)
	assert.ErrorIs(t, err, domain.ErrEngineNotInitialized)

	assert.False(t, e.Initialized())
	assert.False(t, idx.Ready(), "a failed query must not initialize anything")
}

func TestInitializeIsIdempotent(t *testing.T) {
	e, idx := newEngine(t, &stubGenerator{answer: "x"})
	require.NoError(t, e.Initialize(context.Background()))
	require.NoError(t, e.Initialize(context.Background()))
	assert.True(t, e.Initialized())
	assert.Equal(t, 5, idx.Info().Entries)
}

func TestGetRecommendations(t *testing.T) {
	gen := &stubGenerator{answer: "Watch Interstellar."}
	e, _ := newEngine(t, gen)
	require.NoError(t, e.Initialize(context.Background()))

	res, err := e.GetRecommendations(context.Background(), "space adventure")
	require.NoError(t, err)
	assert.Equal(t, "space adventure", res.Query)
	assert.Equal(t, "\n=============\nWatch Interstellar.\n=============\n", res.Recommendations)
	assert.Equal(t, "stub-model", res.Model)
	assert.False(t, res.Timestamp.IsZero())
	assert.Len(t, res.SimilarItems, DefaultSimilarK)
	for _, item := range res.SimilarItems {
		assert.True(t, strings.HasSuffix(item.ContentSnippet, "..."))
		assert.NotEmpty(t, item.Metadata["title"])
	}

	assert.Equal(t, "space adventure", gen.last.Query)
	assert.Equal(t, 5, strings.Count(gen.last.Context, "title: "), "context holds every retrieved entry up to k")
}

func TestEmptyAnswerUsesPlaceholder(t *testing.T) {
	e, _ := newEngine(t, &stubGenerator{answer: "   "})
	require.NoError(t, e.Initialize(context.Background()))

	res, err := e.GetRecommendations(context.Background(), "anything")
	require.NoError(t, err)
	assert.Contains(t, res.Recommendations, NoRecommendations)
}

func TestGeneratorFailureIsGenerationError(t *testing.T) {
	e, _ := newEngine(t, &stubGenerator{err: errors.New("connection refused")})
	require.NoError(t, e.Initialize(context.Background()))

	_, err := e.GetRecommendations(context.Background(), "anything")
	require.Error(t, err)
	var ge *domain.GenerationError
	require.ErrorAs(t, err, &ge)
	assert.Equal(t, "stub", ge.Provider)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestByGenreFiltersOnMetadata(t *testing.T) {
	e, _ := newEngine(t, &stubGenerator{})
	require.NoError(t, e.Initialize(context.Background()))

	movies, err := e.ByGenre(context.Background(), "Sci-Fi", 10)
	require.NoError(t, err)
	require.Len(t, movies, 3)
	titles := map[string]bool{}
	for _, m := range movies {
		titles[m.Title] = true
		assert.Contains(t, m.Genre, "sci-fi")
	}
	assert.True(t, titles["inception"] && titles["interstellar"] && titles["alien"])
	for i := 1; i < len(movies); i++ {
		assert.GreaterOrEqual(t, movies[i-1].SimilarityScore, movies[i].SimilarityScore)
	}
}

func TestByRatingRespectsMinimumAndLimit(t *testing.T) {
	e, _ := newEngine(t, &stubGenerator{})
	require.NoError(t, e.Initialize(context.Background()))

	movies, err := e.ByRating(context.Background(), 8.5, 10)
	require.NoError(t, err)
	require.Len(t, movies, 3)
	for _, m := range movies {
		assert.Contains(t, []string{"8.8", "8.6", "8.5"}, m.Rating)
	}

	movies, err = e.ByRating(context.Background(), 7, 2)
	require.NoError(t, err)
	assert.Len(t, movies, 2)
}

func TestFilteredLookupsCountMoviesNotChunks(t *testing.T) {
	idx := index.NewManager(index.Options{
		Storage:  memory.NewStorage(),
		Embedder: hashing.NewEmbedder(256),
		Chunker:  chunker.NewWindowChunker(30, 6),
	})
	e := NewEngine(idx, &stubGenerator{}, catalogue(), nil, Options{})
	require.NoError(t, e.Initialize(context.Background()))
	require.Greater(t, idx.Info().Entries, len(catalogue()))

	movies, err := e.ByGenre(context.Background(), "drama", 3)
	require.NoError(t, err)
	require.Len(t, movies, 3)
	titles := map[string]bool{}
	for _, m := range movies {
		titles[m.Title] = true
	}
	assert.True(t, titles["the notebook"] && titles["interstellar"] && titles["the room"])

	movies, err = e.ByRating(context.Background(), 8.5, 5)
	require.NoError(t, err)
	assert.Len(t, movies, 3)

	movies, err = e.ByGenre(context.Background(), "sci-fi", 2)
	require.NoError(t, err)
	assert.Len(t, movies, 2)
}

func TestFilterFallsBackToTextWithoutMetadata(t *testing.T) {
	docs := catalogue()
	for i := range docs {
		docs[i].Fields = nil
	}
	idx := index.NewManager(index.Options{
		Storage:  memory.NewStorage(),
		Embedder: hashing.NewEmbedder(256),
		Chunker:  chunker.NewWindowChunker(1000, 200),
	})
	e := NewEngine(idx, &stubGenerator{}, docs, nil, Options{})
	require.NoError(t, e.Initialize(context.Background()))

	movies, err := e.ByGenre(context.Background(), "romance", 5)
	require.NoError(t, err)
	require.Len(t, movies, 1)
	assert.Equal(t, "the notebook", movies[0].Title)
	assert.Equal(t, "123", movies[0].Runtime)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "short...", Snippet("short"))
	long := strings.Repeat("é", 250)
	assert.Equal(t, strings.Repeat("é", 200)+"...", Snippet(long))
}

func TestStats(t *testing.T) {
	e, _ := newEngine(t, &stubGenerator{})
	s := e.Stats()
	assert.False(t, s.Initialized)
	assert.Equal(t, 5, s.Documents)
	assert.Equal(t, DefaultContextK, s.ContextK)
	assert.Equal(t, "stub", s.Generator)

	require.NoError(t, e.Initialize(context.Background()))
	s = e.Stats()
	assert.True(t, s.Initialized)
	assert.Equal(t, 5, s.Index.Entries)
	assert.Equal(t, 256, s.Index.Dimension)
}

func TestFormatRating(t *testing.T) {
	assert.Equal(t, "8.0", formatRating(8))
	assert.Equal(t, "7.5", formatRating(7.5))
}

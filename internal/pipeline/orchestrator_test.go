package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"movierag/internal/chunker"
	"movierag/internal/config"
	"movierag/internal/corpus"
	"movierag/internal/domain"
	"movierag/internal/embedding/hashing"
	"movierag/internal/index"
	"movierag/internal/vectorstore/memory"
)

const moviesCSV = "title,genre,rating,runtime,description\n" +
	"Alien (1979),\"Horror, Sci-Fi\",8.5,117 min,The crew of a spaceship meets a deadly creature.\n" +
	"Heat (1995),\"Crime, Drama\",,170 min,A group of professional bank robbers.\n" +
	"Up (2009),\"Animation, Adventure\",8.3,96 min,An old man flies his house to South America.\n" +
	"Interstellar (2014),\"Adventure, Sci-Fi\",8.6,169 min,Explorers travel through a wormhole in space.\n" +
	"The Notebook (2004),\"Drama, Romance\",7.8,123 min,A young couple falls in love.\n"

func writeSource(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	src := filepath.Join(dir, "movies.csv")
	require.NoError(t, os.WriteFile(src, []byte(moviesCSV), 0o644))
	return dir, src
}

type scriptedGenerator struct {
	fail map[string]error
}

func (g *scriptedGenerator) Name() string  { return "scripted" }
func (g *scriptedGenerator) Model() string { return "scripted-1" }
func (g *scriptedGenerator) Generate(_ context.Context, req domain.GenerationRequest) (string, error) {
	if err := g.fail[req.Query]; err != nil {
		return "", err
	}
	return "recommended for " + req.Query, nil
}

type failingLoader struct{}

func (failingLoader) Load(context.Context) (*corpus.Result, error) {
	return nil, &domain.DataLoadError{Source: "missing.csv", Err: os.ErrNotExist}
}

func newTestOrchestrator(t *testing.T, gen domain.Generator) (*Orchestrator, *index.Manager) {
	t.Helper()
	dir, src := writeSource(t)
	idx := index.NewManager(index.Options{
		Storage:  memory.NewStorage(),
		Embedder: hashing.NewEmbedder(128),
		Chunker:  chunker.NewWindowChunker(1000, 200),
	})
	o := New(Components{
		Loader: corpus.NewLoader(corpus.Paths{
			Source:   src,
			Combined: filepath.Join(dir, "combined_info.csv"),
		}),
		Index:     idx,
		Generator: gen,
	})
	return o, idx
}

func TestRunCompletesAllStages(t *testing.T) {
	o, idx := newTestOrchestrator(t, &scriptedGenerator{})
	assert.Equal(t, State{Status: StatusNotStarted}, o.Status())

	res, err := o.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, []string{StageDataLoading, StageVectorStore, StageRecommenderInit}, res.CompletedStages)
	assert.Empty(t, res.Errors)
	require.NotNil(t, res.Stats.Corpus)
	assert.Equal(t, 5, res.Stats.Corpus.Rows)
	require.NotNil(t, res.Stats.Index)
	assert.Equal(t, index.OutcomeBuilt, res.Stats.Index.Outcome)
	require.NotNil(t, res.Stats.Engine)
	assert.True(t, res.Stats.Engine.Initialized)
	assert.Len(t, res.Stats.Durations, 3)

	assert.Equal(t, State{CorpusBuilt: true, IndexBuilt: true, EngineInitialized: true, Status: StatusCompleted}, o.Status())
	assert.True(t, idx.Ready())
}

func TestRunFailureStopsAtFirstStage(t *testing.T) {
	idx := index.NewManager(index.Options{
		Storage:  memory.NewStorage(),
		Embedder: hashing.NewEmbedder(32),
		Chunker:  chunker.NewWindowChunker(0, 0),
	})
	o := New(Components{Loader: failingLoader{}, Index: idx, Generator: &scriptedGenerator{}})

	res, err := o.Run(context.Background(), false)
	require.Error(t, err)
	var stageErr *domain.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageDataLoading, stageErr.Stage)
	assert.ErrorIs(t, err, domain.ErrDataLoad)

	assert.Equal(t, StatusFailed, res.Status)
	assert.Empty(t, res.CompletedStages)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "data_loading")
	assert.Equal(t, State{Status: StatusFailed}, o.Status())
	assert.Nil(t, o.Engine())
}

func TestEnsureReadyRunsOnce(t *testing.T) {
	o, idx := newTestOrchestrator(t, &scriptedGenerator{})
	ready, err := o.EnsureReady(context.Background())
	require.NoError(t, err)
	assert.True(t, ready)
	engine := o.Engine()
	require.NotNil(t, engine)

	ready, err = o.EnsureReady(context.Background())
	require.NoError(t, err)
	assert.True(t, ready)
	assert.Same(t, engine, o.Engine())
	assert.Equal(t, index.StateReady, idx.State())
}

func TestGetRecommendationsRunsPipelineOnDemand(t *testing.T) {
	o, _ := newTestOrchestrator(t, &scriptedGenerator{})
	res, err := o.GetRecommendations(context.Background(), "space adventure")
	require.NoError(t, err)
	assert.Contains(t, res.Recommendations, "recommended for space adventure")
	assert.True(t, o.Status().EngineInitialized)
}

func TestAnswerManyIsolatesFailures(t *testing.T) {
	gen := &scriptedGenerator{fail: map[string]error{"broken": errors.New("rate limited")}}
	o, _ := newTestOrchestrator(t, gen)

	answers := o.AnswerMany(context.Background(), []string{"space adventure", "broken", "romance"})
	require.Len(t, answers, 3)
	assert.NoError(t, answers["space adventure"].Err)
	assert.NoError(t, answers["romance"].Err)
	assert.Contains(t, answers["romance"].Text(), "recommended for romance")

	broken := answers["broken"]
	require.Error(t, broken.Err)
	assert.ErrorIs(t, broken.Err, domain.ErrGeneration)
	assert.True(t, strings.HasPrefix(broken.Text(), "Error: "))
	assert.Contains(t, broken.Text(), "rate limited")
}

func TestAnswerManyWhenPipelineFails(t *testing.T) {
	idx := index.NewManager(index.Options{Storage: memory.NewStorage(), Embedder: hashing.NewEmbedder(32), Chunker: chunker.NewWindowChunker(0, 0)})
	o := New(Components{Loader: failingLoader{}, Index: idx, Generator: &scriptedGenerator{}})

	answers := o.AnswerMany(context.Background(), []string{"a", "b"})
	require.Len(t, answers, 2)
	for _, a := range answers {
		assert.ErrorIs(t, a.Err, domain.ErrDataLoad)
	}
}

func TestFromConfigFallsBackWithoutCredentials(t *testing.T) {
	dir, src := writeSource(t)
	cfg := config.Default()
	cfg.Generator.Type = "extractive"
	cfg.Data.SourcePath = src
	cfg.Data.OutputDir = filepath.Join(dir, "out")
	cfg.VectorStore.Dir = filepath.Join(dir, "vector_store")

	o, err := FromConfig(context.Background(), cfg, config.StaticCredentials{})
	require.NoError(t, err)
	defer o.Close()

	p := o.Providers()
	assert.True(t, p.EmbedderFallback)
	assert.Equal(t, "openai", p.EmbedderConfigured)
	assert.Equal(t, "hashing", p.Embedder)
	assert.Equal(t, "extractive", p.Generator)
	assert.Empty(t, p.GeneratorError)
	assert.Contains(t, p.FallbackReason, "OPENAI_API_KEY")

	res, err := o.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)

	info := o.Index().Info()
	assert.Equal(t, hashing.DefaultDimension, info.Dimension)
	assert.Equal(t, 5, info.Entries)
	assert.Equal(t, cfg.VectorStore.Dir, info.Dir)

	for _, p := range []string{cfg.CleanedPath(), cfg.CombinedPath(), cfg.EncodersPath(), cfg.ScalerPath()} {
		assert.FileExists(t, p)
	}
	assert.FileExists(t, filepath.Join(cfg.VectorStore.Dir, index.ManifestFile))

	answer, err := o.GetRecommendations(context.Background(), "sci-fi space")
	require.NoError(t, err)
	assert.Contains(t, answer.Recommendations, "=============")
}

func TestFromConfigMissingGeneratorKeyFailsInitialization(t *testing.T) {
	dir, src := writeSource(t)
	cfg := config.Default()
	cfg.Data.SourcePath = src
	cfg.Data.OutputDir = filepath.Join(dir, "out")
	cfg.VectorStore.Dir = filepath.Join(dir, "vector_store")

	o, err := FromConfig(context.Background(), cfg, config.StaticCredentials{})
	require.NoError(t, err)
	defer o.Close()

	p := o.Providers()
	assert.Equal(t, "openai", p.Generator)
	assert.Contains(t, p.GeneratorError, "OPENAI_API_KEY")

	res, err := o.Run(context.Background(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCredentialMissing)
	var stageErr *domain.StageError
	require.True(t, errors.As(err, &stageErr))
	assert.Equal(t, StageRecommenderInit, stageErr.Stage)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, []string{StageDataLoading, StageVectorStore}, res.CompletedStages)

	st := o.Status()
	assert.True(t, st.IndexBuilt)
	assert.False(t, st.EngineInitialized)
	assert.Nil(t, o.Engine())

	_, err = o.GetRecommendations(context.Background(), "sci-fi space")
	assert.ErrorIs(t, err, domain.ErrCredentialMissing)
}

func TestFromConfigReusesPersistedIndex(t *testing.T) {
	dir, src := writeSource(t)
	cfg := config.Default()
	cfg.Embedder.Type = "hashing"
	cfg.Generator.Type = "extractive"
	cfg.Data.SourcePath = src
	cfg.Data.OutputDir = filepath.Join(dir, "out")
	cfg.VectorStore.Dir = filepath.Join(dir, "vector_store")

	first, err := FromConfig(context.Background(), cfg, config.StaticCredentials{})
	require.NoError(t, err)
	_, err = first.Run(context.Background(), false)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := FromConfig(context.Background(), cfg, config.StaticCredentials{})
	require.NoError(t, err)
	defer second.Close()
	res, err := second.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, index.OutcomeLoaded, res.Stats.Index.Outcome)

	res, err = second.Run(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, index.OutcomeRebuiltForced, res.Stats.Index.Outcome)
	assert.Equal(t, 5, res.Stats.Index.Entries)
}

func TestFromConfigRejectsUnknownStore(t *testing.T) {
	cfg := config.Default()
	cfg.VectorStore.Type = "cassandra"
	_, err := FromConfig(context.Background(), cfg, config.StaticCredentials{})
	assert.Error(t, err)
}

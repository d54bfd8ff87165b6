// Package pipeline sequences corpus building, index creation and engine
// initialization, and serves queries once the engine is ready.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"movierag/internal/corpus"
	"movierag/internal/domain"
	"movierag/internal/index"
	"movierag/internal/logging"
	"movierag/internal/metrics"
	"movierag/internal/recommend"
)

// Stage names, in execution order.
const (
	StageDataLoading     = "data_loading"
	StageVectorStore     = "vector_store_creation"
	StageRecommenderInit = "recommender_initialization"
)

// Status is the overall pipeline status.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// State records which stages have completed. Flags are never rolled back.
type State struct {
	CorpusBuilt       bool   `json:"corpus_built"`
	IndexBuilt        bool   `json:"index_built"`
	EngineInitialized bool   `json:"engine_initialized"`
	Status            Status `json:"status"`
}

// ProviderInfo reports which embedder and generator serve the pipeline.
type ProviderInfo struct {
	Embedder           string `json:"embedder"`
	EmbedderConfigured string `json:"embedder_configured"`
	EmbedderFallback   bool   `json:"embedder_fallback"`
	FallbackReason     string `json:"fallback_reason,omitempty"`
	Generator          string `json:"generator"`
	GeneratorError     string `json:"generator_error,omitempty"`
}

// StageStats holds what each completed stage reported.
type StageStats struct {
	Corpus    *corpus.Stats            `json:"corpus,omitempty"`
	Index     *index.BuildReport       `json:"index,omitempty"`
	Engine    *recommend.Stats         `json:"engine,omitempty"`
	Providers ProviderInfo             `json:"providers"`
	Durations map[string]time.Duration `json:"durations"`
}

// Result is the outcome of one Run.
type Result struct {
	Status          Status     `json:"status"`
	CompletedStages []string   `json:"completed_stages"`
	Stats           StageStats `json:"stats"`
	Errors          []string   `json:"errors,omitempty"`
}

// CorpusLoader produces the corpus. *corpus.Loader satisfies it.
type CorpusLoader interface {
	Load(ctx context.Context) (*corpus.Result, error)
}

// IndexManager is the index surface the pipeline drives. *index.Manager
// satisfies it.
type IndexManager interface {
	recommend.Index
	Delete(ctx context.Context) error
	Close() error
}

// Components are the collaborators of an Orchestrator.
type Components struct {
	Loader    CorpusLoader
	Index     IndexManager
	Generator domain.Generator
	// GeneratorErr, when set, fails recommender initialization.
	GeneratorErr error
	Engine       recommend.Options
	// Incremental enables corpus marker comparison when loading the index.
	Incremental bool
	// SmokeTestQuery, when set, is answered once after initialization.
	SmokeTestQuery string
	Providers      ProviderInfo
}

// Orchestrator owns one pipeline state.
type Orchestrator struct {
	c Components

	mu     sync.Mutex
	state  State
	corpus *corpus.Result
	engine *recommend.Engine
}

// New creates an orchestrator in the not_started state.
func New(c Components) *Orchestrator {
	return &Orchestrator{c: c, state: State{Status: StatusNotStarted}}
}

// Run executes every stage in order. The first failing stage aborts the
// run; the returned error is a *domain.StageError and the result lists the
// stages completed before it.
func (o *Orchestrator) Run(ctx context.Context, forceRebuild bool) (Result, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.run(ctx, forceRebuild)
}

func (o *Orchestrator) run(ctx context.Context, forceRebuild bool) (Result, error) {
	if logging.RunIDFromContext(ctx) == "" {
		ctx = logging.ContextWithNewRunID(ctx)
	}
	log := logging.Ctx(ctx)
	log.Info().Bool("force_rebuild", forceRebuild).Msg("pipeline run started")

	o.state.Status = StatusRunning
	res := Result{
		Status: StatusRunning,
		Stats: StageStats{
			Providers: o.c.Providers,
			Durations: map[string]time.Duration{},
		},
	}

	stages := []struct {
		name string
		fn   func(context.Context, *Result) error
	}{
		{StageDataLoading, o.loadCorpus},
		{StageVectorStore, func(ctx context.Context, r *Result) error { return o.buildIndex(ctx, r, forceRebuild) }},
		{StageRecommenderInit, o.initEngine},
	}
	for _, st := range stages {
		start := time.Now()
		log.Info().Str("stage", st.name).Msg("stage started")
		err := st.fn(ctx, &res)
		elapsed := time.Since(start)
		res.Stats.Durations[st.name] = elapsed
		if err != nil {
			metrics.ObserveStage(st.name, string(StatusFailed), elapsed)
			stageErr := &domain.StageError{Stage: st.name, Err: err}
			o.state.Status = StatusFailed
			res.Status = StatusFailed
			res.Errors = append(res.Errors, stageErr.Error())
			log.Error().Err(err).Str("stage", st.name).Msg("pipeline stage failed")
			return res, stageErr
		}
		metrics.ObserveStage(st.name, string(StatusCompleted), elapsed)
		res.CompletedStages = append(res.CompletedStages, st.name)
		log.Info().Str("stage", st.name).Dur("duration", elapsed).Msg("stage completed")
	}

	o.state.Status = StatusCompleted
	res.Status = StatusCompleted
	log.Info().Strs("stages", res.CompletedStages).Msg("pipeline run completed")
	return res, nil
}

func (o *Orchestrator) loadCorpus(ctx context.Context, res *Result) error {
	cr, err := o.c.Loader.Load(ctx)
	if err != nil {
		return err
	}
	o.corpus = cr
	o.state.CorpusBuilt = true
	res.Stats.Corpus = &cr.Stats
	return nil
}

func (o *Orchestrator) buildIndex(ctx context.Context, res *Result, force bool) error {
	report, err := o.c.Index.BuildOrLoad(ctx, o.corpus.Documents, index.BuildOptions{
		ForceRebuild: force,
		Incremental:  o.c.Incremental,
	})
	if err != nil {
		return err
	}
	o.state.IndexBuilt = true
	res.Stats.Index = &report
	return nil
}

func (o *Orchestrator) initEngine(ctx context.Context, res *Result) error {
	if o.c.GeneratorErr != nil {
		return o.c.GeneratorErr
	}
	opts := o.c.Engine
	opts.Build = index.BuildOptions{Incremental: o.c.Incremental}
	engine := recommend.NewEngine(o.c.Index, o.c.Generator, o.corpus.Documents, o.corpus.Columns, opts)
	if err := engine.Initialize(ctx); err != nil {
		return err
	}
	o.engine = engine
	o.state.EngineInitialized = true

	if q := o.c.SmokeTestQuery; q != "" {
		if _, err := engine.GetRecommendations(ctx, q); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("query", q).Msg("smoke test query failed")
		} else {
			logging.Ctx(ctx).Info().Str("query", q).Msg("smoke test query succeeded")
		}
	}
	stats := engine.Stats()
	res.Stats.Engine = &stats
	return nil
}

// EnsureReady runs the pipeline only when the engine is not yet
// initialized. It reports whether the engine is ready.
func (o *Orchestrator) EnsureReady(ctx context.Context) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state.EngineInitialized && o.engine != nil {
		return true, nil
	}
	if _, err := o.run(ctx, false); err != nil {
		return false, err
	}
	return true, nil
}

// Status returns a snapshot of the pipeline state.
func (o *Orchestrator) Status() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Engine returns the initialized engine, or nil before a successful run.
func (o *Orchestrator) Engine() *recommend.Engine {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.engine
}

// Index returns the index manager.
func (o *Orchestrator) Index() IndexManager { return o.c.Index }

// Providers reports the embedder and generator in use.
func (o *Orchestrator) Providers() ProviderInfo { return o.c.Providers }

// GetRecommendations answers query, running the pipeline first if needed.
func (o *Orchestrator) GetRecommendations(ctx context.Context, query string) (*recommend.RecommendationResult, error) {
	if _, err := o.EnsureReady(ctx); err != nil {
		return nil, err
	}
	return o.Engine().GetRecommendations(ctx, query)
}

// Answer is the outcome of one query in a batch.
type Answer struct {
	Result *recommend.RecommendationResult `json:"result,omitempty"`
	Err    error                           `json:"-"`
}

// Text returns the recommendations, or an error line for a failed query.
func (a Answer) Text() string {
	if a.Err != nil {
		return "Error: " + a.Err.Error()
	}
	if a.Result == nil {
		return ""
	}
	return a.Result.Recommendations
}

// AnswerMany answers every query. A failing query is recorded in its
// Answer and does not stop the batch. Pipeline failure fails every query.
func (o *Orchestrator) AnswerMany(ctx context.Context, queries []string) map[string]Answer {
	out := make(map[string]Answer, len(queries))
	if _, err := o.EnsureReady(ctx); err != nil {
		for _, q := range queries {
			out[q] = Answer{Err: fmt.Errorf("pipeline not ready: %w", err)}
		}
		return out
	}
	engine := o.Engine()
	for _, q := range queries {
		res, err := engine.GetRecommendations(ctx, q)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("query", q).Msg("batch query failed")
		}
		out[q] = Answer{Result: res, Err: err}
	}
	return out
}

// Close releases the index storage.
func (o *Orchestrator) Close() error {
	return o.c.Index.Close()
}

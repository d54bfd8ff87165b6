// Package recommend answers movie queries by retrieving similar catalogue
// entries and handing them to a generator.
package recommend

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"movierag/internal/corpus"
	"movierag/internal/domain"
	"movierag/internal/index"
	"movierag/internal/logging"
	"movierag/internal/metrics"
)

const (
	DefaultContextK = 10
	DefaultSimilarK = 5

	// NoRecommendations replaces an empty generator answer.
	NoRecommendations = "No recommendations generated"

	answerDelimiter = "============="
	snippetLength   = 200

	// fallbackOverfetch is the factor k grows by while collecting distinct
	// movies for a filtered lookup.
	fallbackOverfetch = 5
)

// Index is the part of the index manager the engine needs.
type Index interface {
	BuildOrLoad(ctx context.Context, docs []domain.CorpusDocument, opts index.BuildOptions) (index.BuildReport, error)
	Search(ctx context.Context, query string, k int, filter *domain.Filter) ([]domain.SearchResult, error)
	Ready() bool
	Info() index.Info
}

// Options tunes retrieval.
type Options struct {
	// ContextK entries are passed to the generator.
	ContextK int
	// SimilarK entries are returned as similar items.
	SimilarK int
	// Build is used when Initialize has to build or load the index.
	Build index.BuildOptions
}

// SimilarItem is a preview of a retrieved entry.
type SimilarItem struct {
	ContentSnippet string            `json:"content_snippet"`
	Metadata       map[string]string `json:"metadata"`
	Score          float64           `json:"score"`
}

// RecommendationResult is the answer to one query.
type RecommendationResult struct {
	Query           string        `json:"query"`
	Recommendations string        `json:"recommendations"`
	SimilarItems    []SimilarItem `json:"similar_items"`
	Timestamp       time.Time     `json:"timestamp"`
	Model           string        `json:"model"`
}

// Movie is one structured result of a genre or rating lookup.
type Movie struct {
	Title           string  `json:"title"`
	Genre           string  `json:"genre"`
	Rating          string  `json:"rating"`
	Runtime         string  `json:"runtime"`
	Certificate     string  `json:"certificate"`
	SimilarityScore float64 `json:"similarity_score"`
}

// Stats describes the engine and what it serves.
type Stats struct {
	Initialized bool       `json:"initialized"`
	Index       index.Info `json:"index"`
	Documents   int        `json:"documents"`
	Columns     []string   `json:"columns"`
	Generator   string     `json:"generator"`
	Model       string     `json:"model"`
	ContextK    int        `json:"context_k"`
	SimilarK    int        `json:"similar_k"`
}

// Engine is safe for concurrent queries once initialized.
type Engine struct {
	index     Index
	generator domain.Generator
	docs      []domain.CorpusDocument
	columns   []string
	opts      Options
	now       func() time.Time

	mu          sync.Mutex
	initialized bool
}

// NewEngine creates an uninitialized engine over the given corpus.
func NewEngine(idx Index, gen domain.Generator, docs []domain.CorpusDocument, columns []string, opts Options) *Engine {
	if opts.ContextK <= 0 {
		opts.ContextK = DefaultContextK
	}
	if opts.SimilarK <= 0 {
		opts.SimilarK = DefaultSimilarK
	}
	return &Engine{
		index:     idx,
		generator: gen,
		docs:      docs,
		columns:   columns,
		opts:      opts,
		now:       time.Now,
	}
}

// Initialize makes the index ready. Calling it again is a no-op.
func (e *Engine) Initialize(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initialized {
		return nil
	}
	if !e.index.Ready() {
		if _, err := e.index.BuildOrLoad(ctx, e.docs, e.opts.Build); err != nil {
			return err
		}
	}
	e.initialized = true
	logging.Ctx(ctx).Info().
		Str("generator", e.generator.Name()).
		Str("model", e.generator.Model()).
		Int("documents", len(e.docs)).
		Msg("recommendation engine initialized")
	return nil
}

// Initialized reports whether Initialize has completed.
func (e *Engine) Initialized() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.initialized
}

// GetRecommendations retrieves context for query, asks the generator and
// returns its answer with previews of the closest entries.
func (e *Engine) GetRecommendations(ctx context.Context, query string) (*RecommendationResult, error) {
	res, err := e.recommend(ctx, query)
	metrics.RecordQuery("recommendations", err)
	return res, err
}

func (e *Engine) recommend(ctx context.Context, query string) (*RecommendationResult, error) {
	if !e.Initialized() {
		return nil, domain.ErrEngineNotInitialized
	}
	log := logging.Ctx(ctx)
	log.Info().Str("query", query).Msg("generating recommendations")

	hits, err := e.index.Search(ctx, query, e.opts.ContextK, nil)
	if err != nil {
		return nil, err
	}
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Entry.Text
	}

	answer, err := e.generator.Generate(ctx, domain.GenerationRequest{
		Query:   query,
		Context: strings.Join(texts, "\n\n"),
	})
	if err != nil {
		if !errors.Is(err, domain.ErrGeneration) {
			err = &domain.GenerationError{Provider: e.generator.Name(), Err: err}
		}
		log.Error().Err(err).Str("query", query).Msg("generation failed")
		return nil, err
	}
	if strings.TrimSpace(answer) == "" {
		answer = NoRecommendations
	}

	similar, err := e.similar(ctx, query, e.opts.SimilarK)
	if err != nil {
		return nil, err
	}
	return &RecommendationResult{
		Query:           query,
		Recommendations: FormatAnswer(answer),
		SimilarItems:    similar,
		Timestamp:       e.now(),
		Model:           e.generator.Model(),
	}, nil
}

// FormatAnswer wraps a generator answer in the fixed delimiter.
func FormatAnswer(answer string) string {
	return "\n" + answerDelimiter + "\n" + answer + "\n" + answerDelimiter + "\n"
}

// Snippet returns the first 200 characters of text followed by "...".
func Snippet(text string) string {
	runes := []rune(text)
	if len(runes) > snippetLength {
		runes = runes[:snippetLength]
	}
	return string(runes) + "..."
}

// SimilarItems returns previews of the k entries closest to query.
func (e *Engine) SimilarItems(ctx context.Context, query string, k int) ([]SimilarItem, error) {
	if !e.Initialized() {
		return nil, domain.ErrEngineNotInitialized
	}
	items, err := e.similar(ctx, query, k)
	metrics.RecordQuery("similar", err)
	return items, err
}

func (e *Engine) similar(ctx context.Context, query string, k int) ([]SimilarItem, error) {
	hits, err := e.index.Search(ctx, query, k, nil)
	if err != nil {
		return nil, err
	}
	items := make([]SimilarItem, len(hits))
	for i, h := range hits {
		items[i] = SimilarItem{
			ContentSnippet: Snippet(h.Entry.Text),
			Metadata:       h.Entry.Metadata,
			Score:          h.Score,
		}
	}
	return items, nil
}

// ByGenre returns up to limit movies of genre, most relevant first.
func (e *Engine) ByGenre(ctx context.Context, genre string, limit int) ([]Movie, error) {
	if !e.Initialized() {
		return nil, domain.ErrEngineNotInitialized
	}
	genre = strings.TrimSpace(genre)
	query := "movies in " + genre + " genre with high rating"
	filter := &domain.Filter{Contains: map[string]string{domain.ColGenre: strings.ToLower(genre)}}
	hits, err := e.filtered(ctx, query, filter, limit)
	metrics.RecordQuery("genre", err)
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Str("genre", genre).Int("found", len(hits)).Msg("genre lookup")
	return toMovies(hits), nil
}

// ByRating returns up to limit movies rated at least minRating.
func (e *Engine) ByRating(ctx context.Context, minRating float64, limit int) ([]Movie, error) {
	if !e.Initialized() {
		return nil, domain.ErrEngineNotInitialized
	}
	query := "movies with rating " + formatRating(minRating) + " or higher"
	filter := &domain.Filter{Min: map[string]float64{domain.ColRating: minRating}}
	hits, err := e.filtered(ctx, query, filter, limit)
	metrics.RecordQuery("rating", err)
	if err != nil {
		return nil, err
	}
	logging.Ctx(ctx).Info().Float64("min_rating", minRating).Int("found", len(hits)).Msg("rating lookup")
	return toMovies(hits), nil
}

// filtered searches with the structured filter first. When that yields
// fewer than limit movies, a wider unfiltered search is matched against the
// fields of each entry, parsed from its text where metadata is missing.
func (e *Engine) filtered(ctx context.Context, query string, filter *domain.Filter, limit int) ([]domain.SearchResult, error) {
	if limit <= 0 {
		limit = DefaultSimilarK
	}
	hits, err := e.distinct(ctx, query, limit, filter, nil)
	if err != nil || len(hits) >= limit {
		return hits, err
	}

	wide, err := e.distinct(ctx, query, limit, nil, func(h domain.SearchResult) bool {
		return filter.Matches(fieldsOf(h.Entry))
	})
	if err != nil {
		return nil, err
	}
	seen := make(map[int]struct{}, len(hits))
	for _, h := range hits {
		seen[h.Entry.DocumentID] = struct{}{}
	}
	for _, h := range wide {
		if _, ok := seen[h.Entry.DocumentID]; ok {
			continue
		}
		seen[h.Entry.DocumentID] = struct{}{}
		hits = append(hits, h)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// distinct returns the best entry of up to limit documents. Several chunks
// of one movie can crowd the top k, so k grows until limit documents pass
// keep or the index has no more entries.
func (e *Engine) distinct(ctx context.Context, query string, limit int, filter *domain.Filter, keep func(domain.SearchResult) bool) ([]domain.SearchResult, error) {
	for k := limit; ; k *= fallbackOverfetch {
		res, err := e.index.Search(ctx, query, k, filter)
		if err != nil {
			return nil, err
		}
		out := make([]domain.SearchResult, 0, limit)
		seen := make(map[int]struct{}, limit)
		for _, h := range res {
			if _, ok := seen[h.Entry.DocumentID]; ok {
				continue
			}
			if keep != nil && !keep(h) {
				continue
			}
			seen[h.Entry.DocumentID] = struct{}{}
			out = append(out, h)
			if len(out) == limit {
				return out, nil
			}
		}
		if len(res) < k {
			return out, nil
		}
	}
}

// fieldsOf merges structured metadata over the fields parsed from text.
func fieldsOf(entry domain.IndexEntry) map[string]string {
	fields := corpus.ParseFields(entry.Text)
	for k, v := range entry.Metadata {
		fields[k] = v
	}
	return fields
}

func toMovies(hits []domain.SearchResult) []Movie {
	movies := make([]Movie, 0, len(hits))
	for _, h := range hits {
		f := fieldsOf(h.Entry)
		movies = append(movies, Movie{
			Title:           orUnknown(f[domain.ColTitle]),
			Genre:           orUnknown(f[domain.ColGenre]),
			Rating:          orUnknown(f[domain.ColRating]),
			Runtime:         orUnknown(f[domain.ColRuntime]),
			Certificate:     orUnknown(f[domain.ColCertificate]),
			SimilarityScore: h.Score,
		})
	}
	return movies
}

func orUnknown(v string) string {
	if v == "" {
		return domain.Unknown
	}
	return v
}

func formatRating(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// Stats reports the index, corpus and generator settings.
func (e *Engine) Stats() Stats {
	return Stats{
		Initialized: e.Initialized(),
		Index:       e.index.Info(),
		Documents:   len(e.docs),
		Columns:     e.columns,
		Generator:   e.generator.Name(),
		Model:       e.generator.Model(),
		ContextK:    e.opts.ContextK,
		SimilarK:    e.opts.SimilarK,
	}
}

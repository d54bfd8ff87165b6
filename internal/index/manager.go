// Package index decides whether a persisted vector index can be reused or
// must be rebuilt, builds it from corpus documents and answers searches.
package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"movierag/internal/domain"
	"movierag/internal/logging"
	"movierag/internal/metrics"
	"movierag/internal/vectorstore"
)

// State is the lifecycle position of the index.
type State string

const (
	StateAbsent   State = "absent"
	StateBuilding State = "building"
	StateLoading  State = "loading"
	StateReady    State = "ready"
	StateStale    State = "stale"
)

// Outcome names how BuildOrLoad resolved.
type Outcome string

const (
	OutcomeLoaded         Outcome = "loaded"
	OutcomeBuilt          Outcome = "built"
	OutcomeRebuiltForced  Outcome = "rebuilt_forced"
	OutcomeRebuiltStale   Outcome = "rebuilt_stale"
	OutcomeRebuiltCorrupt Outcome = "rebuilt_corrupt"
)

const defaultBatchSize = 64

// BuildOptions controls BuildOrLoad.
type BuildOptions struct {
	// ForceRebuild discards any persisted index.
	ForceRebuild bool
	// Incremental compares the stored corpus marker and rebuilds when the
	// corpus changed.
	Incremental bool
}

// BuildReport summarises one BuildOrLoad call.
type BuildReport struct {
	Outcome   Outcome `json:"outcome"`
	Entries   int     `json:"entries"`
	Documents int     `json:"documents"`
	// Reason explains a rebuild of a persisted index.
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Info describes the current index.
type Info struct {
	State     State  `json:"state"`
	Entries   int    `json:"entries"`
	Dir       string `json:"dir"`
	Dimension int    `json:"dimension"`
	Provider  string `json:"provider"`
	Model     string `json:"model"`
}

// Options configures a Manager.
type Options struct {
	Dir       string
	Storage   vectorstore.Storage
	Embedder  domain.Embedder
	Chunker   domain.Chunker
	BatchSize int
}

// Manager owns one persisted index directory.
type Manager struct {
	dir       string
	store     vectorstore.Storage
	embedder  domain.Embedder
	chunker   domain.Chunker
	batchSize int

	mu       sync.RWMutex
	state    State
	manifest *Manifest
}

// NewManager creates a manager in the Absent state.
func NewManager(opts Options) *Manager {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	return &Manager{
		dir:       opts.Dir,
		store:     opts.Storage,
		embedder:  opts.Embedder,
		chunker:   opts.Chunker,
		batchSize: batch,
		state:     StateAbsent,
	}
}

// windowed is implemented by chunkers with fixed window parameters.
type windowed interface {
	Size() int
	Overlap() int
}

// chunkParams reports the chunker's window, or zeros when it has none.
func (m *Manager) chunkParams() (size, overlap int) {
	if w, ok := m.chunker.(windowed); ok {
		return w.Size(), w.Overlap()
	}
	return 0, 0
}

// errNoIndex marks a directory without a persisted index.
var errNoIndex = errors.New("no persisted index")

// errStale marks a persisted index whose corpus marker differs.
var errStale = errors.New("corpus changed since index was built")

// BuildOrLoad makes the index Ready for docs. A persisted index is reused
// when it is structurally loadable, was built by the current embedder and,
// in incremental mode, matches the corpus marker. Anything else triggers a
// full rebuild; load problems are logged, never returned.
func (m *Manager) BuildOrLoad(ctx context.Context, docs []domain.CorpusDocument, opts BuildOptions) (BuildReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start := time.Now()
	log := logging.Ctx(ctx)
	hash := CorpusHash(docs)

	outcome := OutcomeBuilt
	reason := ""
	switch {
	case opts.ForceRebuild:
		if m.state == StateReady {
			m.state = StateStale
		}
		outcome = OutcomeRebuiltForced
		reason = "forced"
	case m.ephemeral():
	default:
		m.state = StateLoading
		err := m.load(ctx, hash, opts.Incremental)
		switch {
		case err == nil:
			metrics.RecordIndexOutcome(string(OutcomeLoaded))
			metrics.SetIndexEntries(m.store.Count())
			log.Info().
				Str("dir", m.dir).
				Int("entries", m.store.Count()).
				Msg("loaded existing vector index")
			return BuildReport{
				Outcome:   OutcomeLoaded,
				Entries:   m.store.Count(),
				Documents: m.manifest.DocumentCount,
				Duration:  time.Since(start),
			}, nil
		case errors.Is(err, errNoIndex):
		case errors.Is(err, errStale):
			m.state = StateStale
			outcome = OutcomeRebuiltStale
			reason = err.Error()
			log.Info().Str("dir", m.dir).Msg("corpus changed, rebuilding vector index")
		default:
			outcome = OutcomeRebuiltCorrupt
			reason = err.Error()
			log.Warn().Err(err).Str("dir", m.dir).Msg("persisted index unusable, rebuilding")
		}
	}

	if err := m.build(ctx, docs, hash); err != nil {
		m.state = StateAbsent
		m.manifest = nil
		metrics.RecordIndexOutcome("failed")
		return BuildReport{}, fmt.Errorf("build index: %w", err)
	}
	metrics.RecordIndexOutcome(string(outcome))
	metrics.SetIndexEntries(m.store.Count())
	log.Info().
		Str("outcome", string(outcome)).
		Int("documents", len(docs)).
		Int("entries", m.store.Count()).
		Dur("duration", time.Since(start)).
		Msg("vector index built")
	return BuildReport{
		Outcome:   outcome,
		Entries:   m.store.Count(),
		Documents: len(docs),
		Reason:    reason,
		Duration:  time.Since(start),
	}, nil
}

func (m *Manager) ephemeral() bool {
	e, ok := m.store.(interface{ Ephemeral() bool })
	return ok && e.Ephemeral()
}

// load tries to reuse the persisted index. It returns errNoIndex, errStale,
// or an IndexCorruptionError.
func (m *Manager) load(ctx context.Context, hash string, incremental bool) error {
	manifest, err := readManifest(m.dir)
	if errors.Is(err, os.ErrNotExist) {
		return errNoIndex
	}
	if err != nil {
		return m.corrupt("unreadable manifest", err)
	}
	if manifest.Provider != m.embedder.Name() || manifest.Model != m.embedder.Model() {
		return m.corrupt(fmt.Sprintf("built by %s/%s, current embedder is %s/%s",
			manifest.Provider, manifest.Model, m.embedder.Name(), m.embedder.Model()), nil)
	}
	if size, overlap := m.chunkParams(); manifest.ChunkSize != size || manifest.ChunkOverlap != overlap {
		return m.corrupt(fmt.Sprintf("chunked with size %d overlap %d, chunker uses size %d overlap %d",
			manifest.ChunkSize, manifest.ChunkOverlap, size, overlap), nil)
	}
	if dim := m.embedder.Dimension(); dim > 0 && manifest.Dimension != dim {
		return m.corrupt(fmt.Sprintf("dimension %d, embedder produces %d", manifest.Dimension, dim), nil)
	}

	n, err := m.store.Load(ctx)
	if err != nil {
		return m.corrupt("storage load failed", err)
	}
	if n != manifest.EntryCount {
		return m.corrupt(fmt.Sprintf("storage has %d entries, manifest records %d", n, manifest.EntryCount), nil)
	}

	if incremental {
		stored, err := readHash(m.dir)
		if err != nil {
			return m.corrupt("unreadable corpus marker", err)
		}
		if stored != hash {
			return errStale
		}
	}

	m.manifest = manifest
	m.state = StateReady
	return nil
}

func (m *Manager) corrupt(reason string, err error) error {
	return &domain.IndexCorruptionError{Dir: m.dir, Reason: reason, Err: err}
}

func (m *Manager) build(ctx context.Context, docs []domain.CorpusDocument, hash string) error {
	m.state = StateBuilding
	m.manifest = nil

	if err := m.store.Close(); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("closing previous storage")
	}
	if m.dir != "" {
		if err := os.RemoveAll(m.dir); err != nil {
			return fmt.Errorf("remove index directory: %w", err)
		}
		if err := os.MkdirAll(m.dir, 0o755); err != nil {
			return fmt.Errorf("create index directory: %w", err)
		}
	}

	var entries []domain.IndexEntry
	for _, doc := range docs {
		for _, ch := range m.chunker.Chunk(doc) {
			entries = append(entries, domain.IndexEntry{
				DocumentID: doc.ID,
				ChunkIndex: ch.Index,
				Text:       ch.Text,
				Metadata:   copyFields(doc.Fields),
			})
		}
	}

	dim := m.embedder.Dimension()
	reset := false
	for start := 0; start < len(entries); start += m.batchSize {
		end := min(start+m.batchSize, len(entries))
		batch := entries[start:end]
		texts := make([]string, len(batch))
		for i, e := range batch {
			texts[i] = e.Text
		}
		vectors, err := m.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch %d-%d: %w", start, end, err)
		}
		if len(vectors) != len(batch) {
			return fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(batch))
		}
		for i := range batch {
			batch[i].Vector = vectors[i]
		}
		if !reset {
			dim = len(vectors[0])
			if err := m.store.Reset(ctx, dim); err != nil {
				return fmt.Errorf("reset storage: %w", err)
			}
			reset = true
		}
		if err := m.store.Upsert(ctx, batch); err != nil {
			return fmt.Errorf("upsert entries: %w", err)
		}
	}
	if !reset {
		if dim <= 0 {
			sample, err := m.embedder.Embed(ctx, "movie")
			if err != nil {
				return fmt.Errorf("detect embedding dimension: %w", err)
			}
			dim = len(sample)
		}
		if err := m.store.Reset(ctx, dim); err != nil {
			return fmt.Errorf("reset storage: %w", err)
		}
	}

	size, overlap := m.chunkParams()
	manifest := &Manifest{
		Version:       manifestVersion,
		Provider:      m.embedder.Name(),
		Model:         m.embedder.Model(),
		Dimension:     dim,
		ChunkSize:     size,
		ChunkOverlap:  overlap,
		EntryCount:    len(entries),
		DocumentCount: len(docs),
		CreatedAt:     time.Now().UTC(),
	}
	if m.dir != "" {
		if err := writeManifest(m.dir, manifest); err != nil {
			return fmt.Errorf("write manifest: %w", err)
		}
		if err := writeHash(m.dir, hash); err != nil {
			return fmt.Errorf("write corpus marker: %w", err)
		}
	}
	m.manifest = manifest
	m.state = StateReady
	return nil
}

func copyFields(fields map[string]string) map[string]string {
	if fields == nil {
		return nil
	}
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// Search embeds query and returns at most k entries passing filter, most
// similar first. It fails with ErrIndexNotReady until the index is Ready.
func (m *Manager) Search(ctx context.Context, query string, k int, filter *domain.Filter) ([]domain.SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateReady {
		return nil, domain.ErrIndexNotReady
	}
	if k <= 0 || m.store.Count() == 0 {
		return []domain.SearchResult{}, nil
	}
	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return m.store.Search(ctx, vec, k, filter)
}

// State returns the lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Ready reports whether searches are served.
func (m *Manager) Ready() bool {
	return m.State() == StateReady
}

// Info describes the index. Dimension is 0 while unknown.
func (m *Manager) Info() Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info := Info{
		State:    m.state,
		Dir:      m.dir,
		Provider: m.embedder.Name(),
		Model:    m.embedder.Model(),
	}
	if m.state == StateReady {
		info.Entries = m.store.Count()
	}
	if m.manifest != nil {
		info.Dimension = m.manifest.Dimension
	} else {
		info.Dimension = m.embedder.Dimension()
	}
	return info
}

// Delete closes the storage, removes the persisted directory and returns
// the index to Absent.
func (m *Manager) Delete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.store.Close(); err != nil {
		logging.Ctx(ctx).Debug().Err(err).Msg("closing storage")
	}
	if m.dir != "" {
		if err := os.RemoveAll(m.dir); err != nil {
			return fmt.Errorf("remove index directory: %w", err)
		}
	}
	m.state = StateAbsent
	m.manifest = nil
	metrics.SetIndexEntries(0)
	logging.Ctx(ctx).Info().Str("dir", m.dir).Msg("vector index deleted")
	return nil
}

// Close releases the storage.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Close()
}

// Package qdrant stores index entries in a Qdrant collection over its REST
// API. The collection uses cosine distance and is recreated on Reset.
package qdrant

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"movierag/internal/domain"
	"movierag/internal/vectorstore"
)

var _ vectorstore.Storage = (*Storage)(nil)

// pointNamespace seeds the deterministic point ids derived from entry keys.
var pointNamespace = uuid.MustParse("6f1c9a43-2b8e-4d0a-9c57-4e2f8b3d1a60")

// filterOverfetch multiplies k when a Contains condition is checked
// client-side.
const filterOverfetch = 10

// Payload objects holding normalised copies of the metadata that Equals and
// Min conditions are evaluated against by Qdrant.
const (
	matchPayload   = "match"
	numericPayload = "numeric"
)

// Storage is a minimal REST client to Qdrant.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu        sync.RWMutex
	dimension int
	count     int
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "movies"
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// PointID maps an entry key to the UUID Qdrant stores it under.
func PointID(e domain.IndexEntry) string {
	return uuid.NewSHA1(pointNamespace, []byte(e.Key())).String()
}

// Load reads the collection's point count and vector size.
func (s *Storage) Load(ctx context.Context) (int, error) {
	var resp struct {
		Result struct {
			PointsCount int `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodGet, s.collectionURL(), nil, &resp); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = resp.Result.Config.Params.Vectors.Size
	s.count = resp.Result.PointsCount
	return s.count, nil
}

// Reset drops and recreates the collection.
func (s *Storage) Reset(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	// a missing collection is not an error here
	var apiErr *StatusError
	if err := s.do(ctx, http.MethodDelete, s.collectionURL(), nil, nil); err != nil && !(errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound) {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := s.do(ctx, http.MethodPut, s.collectionURL(), body, nil); err != nil {
		return err
	}
	s.mu.Lock()
	s.dimension = dimension
	s.count = 0
	s.mu.Unlock()
	return nil
}

func (s *Storage) Upsert(ctx context.Context, entries []domain.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	s.mu.RLock()
	dim := s.dimension
	s.mu.RUnlock()

	points := make([]map[string]any, len(entries))
	for i, e := range entries {
		if len(e.Vector) != dim {
			return vectorstore.ErrDimensionMismatch
		}
		match, numeric := filterPayload(e.Metadata)
		points[i] = map[string]any{
			"id":     PointID(e),
			"vector": e.Vector,
			"payload": map[string]any{
				"document_id":  e.DocumentID,
				"chunk_index":  e.ChunkIndex,
				"text":         e.Text,
				"metadata":     e.Metadata,
				matchPayload:   match,
				numericPayload: numeric,
			},
		}
	}
	body := map[string]any{"points": points}
	if err := s.do(ctx, http.MethodPut, s.collectionURL()+"/points?wait=true", body, nil); err != nil {
		return err
	}
	s.mu.Lock()
	s.count += len(entries)
	s.mu.Unlock()
	return nil
}

// Search asks Qdrant for the nearest points. Equals and Min conditions are
// sent as a payload filter; Contains is checked locally on an over-fetched
// result.
func (s *Storage) Search(ctx context.Context, vector []float32, k int, filter *domain.Filter) ([]domain.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	limit := k
	if filter != nil && len(filter.Contains) > 0 {
		limit = k * filterOverfetch
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	}
	if nf := nativeFilter(filter); nf != nil {
		req["filter"] = nf
	}
	var resp struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				DocumentID int               `json:"document_id"`
				ChunkIndex int               `json:"chunk_index"`
				Text       string            `json:"text"`
				Metadata   map[string]string `json:"metadata"`
			} `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, s.collectionURL()+"/points/search", req, &resp); err != nil {
		return nil, err
	}
	results := make([]domain.SearchResult, 0, k)
	for _, r := range resp.Result {
		if !filter.Matches(r.Payload.Metadata) {
			continue
		}
		results = append(results, domain.SearchResult{
			Entry: domain.IndexEntry{
				DocumentID: r.Payload.DocumentID,
				ChunkIndex: r.Payload.ChunkIndex,
				Text:       r.Payload.Text,
				Metadata:   r.Payload.Metadata,
			},
			Score: r.Score,
		})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// filterPayload derives the lowercased and numeric payload copies of
// metadata.
func filterPayload(metadata map[string]string) (map[string]string, map[string]float64) {
	match := make(map[string]string, len(metadata))
	numeric := make(map[string]float64)
	for k, v := range metadata {
		v = strings.TrimSpace(v)
		match[k] = strings.ToLower(v)
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			numeric[k] = f
		}
	}
	return match, numeric
}

// nativeFilter translates Equals and Min into a Qdrant "must" filter. It
// returns nil when neither is set.
func nativeFilter(f *domain.Filter) map[string]any {
	if f.IsZero() {
		return nil
	}
	var must []map[string]any
	for _, k := range slices.Sorted(maps.Keys(f.Equals)) {
		must = append(must, map[string]any{
			"key":   matchPayload + "." + k,
			"match": map[string]any{"value": strings.ToLower(strings.TrimSpace(f.Equals[k]))},
		})
	}
	for _, k := range slices.Sorted(maps.Keys(f.Min)) {
		must = append(must, map[string]any{
			"key":   numericPayload + "." + k,
			"range": map[string]any{"gte": f.Min[k]},
		})
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func (s *Storage) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.count
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// StatusError is a non-2xx response from Qdrant.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %s: %s", e.Method, e.URL, strconv.Itoa(e.Code), e.Body)
}

func (s *Storage) collectionURL() string {
	return fmt.Sprintf("%s/collections/%s", s.url, s.collection)
}

func (s *Storage) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Method: method, URL: url, Code: resp.StatusCode, Body: string(bytes.TrimSpace(msg))}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

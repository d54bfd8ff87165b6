package index

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"movierag/internal/domain"
)

const (
	// ManifestFile records how the persisted index was built.
	ManifestFile = "manifest.json"
	// HashFile holds the corpus marker used for staleness detection.
	HashFile = "corpus_hash.txt"

	manifestVersion = 1
)

// Manifest describes a persisted index.
type Manifest struct {
	Version       int       `json:"version"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	Dimension     int       `json:"dimension"`
	ChunkSize     int       `json:"chunk_size"`
	ChunkOverlap  int       `json:"chunk_overlap"`
	EntryCount    int       `json:"entry_count"`
	DocumentCount int       `json:"document_count"`
	CreatedAt     time.Time `json:"created_at"`
}

func readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if m.Version != manifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", m.Version)
	}
	return &m, nil
}

func writeManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(dir, ManifestFile), data)
}

// CorpusHash returns the hex SHA-256 over document texts in order. Any
// edit, insertion, removal or reordering changes it.
func CorpusHash(docs []domain.CorpusDocument) string {
	h := sha256.New()
	for _, d := range docs {
		h.Write([]byte(d.Text))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// readHash returns the stored marker, or "" when none was written.
func readHash(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, HashFile))
	if errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func writeHash(dir, hash string) error {
	return writeFileAtomic(filepath.Join(dir, HashFile), []byte(hash+"\n"))
}

func writeFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

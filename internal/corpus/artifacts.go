package corpus

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// ArtifactMetadata describes a persisted fitted artifact.
type ArtifactMetadata struct {
	Kind     string
	SavedAt  time.Time
	Checksum string
}

type storedArtifact struct {
	Metadata       ArtifactMetadata
	CompressedData []byte
}

// SaveEncoders persists fitted label encoders keyed by column.
func SaveEncoders(path string, encoders map[string]*LabelEncoder) error {
	return saveArtifact(path, "label_encoders", encoders)
}

// LoadEncoders reads encoders written by SaveEncoders.
func LoadEncoders(path string) (map[string]*LabelEncoder, error) {
	var out map[string]*LabelEncoder
	if err := loadArtifact(path, "label_encoders", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveScaler persists a fitted standard scaler.
func SaveScaler(path string, s *StandardScaler) error {
	return saveArtifact(path, "standard_scaler", s)
}

// LoadScaler reads a scaler written by SaveScaler.
func LoadScaler(path string) (*StandardScaler, error) {
	var out StandardScaler
	if err := loadArtifact(path, "standard_scaler", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func saveArtifact(path, kind string, data any) error {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(data); err != nil {
		return fmt.Errorf("encode %s: %w", kind, err)
	}
	sum := sha256.Sum256(raw.Bytes())

	var compressed bytes.Buffer
	gzw := gzip.NewWriter(&compressed)
	if _, err := gzw.Write(raw.Bytes()); err != nil {
		return fmt.Errorf("compress %s: %w", kind, err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("finalize compression: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	sa := storedArtifact{
		Metadata: ArtifactMetadata{
			Kind:     kind,
			SavedAt:  time.Now().UTC(),
			Checksum: hex.EncodeToString(sum[:]),
		},
		CompressedData: compressed.Bytes(),
	}
	if err := gob.NewEncoder(f).Encode(sa); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func loadArtifact(path, kind string, target any) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	var sa storedArtifact
	if err := gob.NewDecoder(f).Decode(&sa); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if sa.Metadata.Kind != kind {
		return fmt.Errorf("%s holds %q, want %q", path, sa.Metadata.Kind, kind)
	}

	gzr, err := gzip.NewReader(bytes.NewReader(sa.CompressedData))
	if err != nil {
		return fmt.Errorf("decompress %s: %w", path, err)
	}
	defer func() { _ = gzr.Close() }()
	raw, err := io.ReadAll(gzr)
	if err != nil {
		return fmt.Errorf("read decompressed data: %w", err)
	}

	sum := sha256.Sum256(raw)
	if hex.EncodeToString(sum[:]) != sa.Metadata.Checksum {
		return fmt.Errorf("checksum mismatch for %s", path)
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", kind, err)
	}
	return nil
}

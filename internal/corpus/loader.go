package corpus

import (
	"context"
	"fmt"

	"movierag/internal/logging"
)

// Paths locates the input dataset and every artifact a load writes.
type Paths struct {
	Source   string
	Cleaned  string
	Combined string
	Encoders string
	Scaler   string
}

// Loader reads the source dataset, builds the corpus and persists the
// artifacts.
type Loader struct {
	paths   Paths
	builder *Builder
}

// NewLoader creates a loader for the given paths.
func NewLoader(paths Paths) *Loader {
	return &Loader{paths: paths, builder: NewBuilder()}
}

// Load runs the full corpus stage. Read failures are DataLoadErrors; write
// failures are returned wrapped with the artifact that failed.
func (l *Loader) Load(ctx context.Context) (*Result, error) {
	log := logging.Ctx(ctx)
	log.Info().Str("source", l.paths.Source).Msg("loading dataset")

	table, err := ReadTable(l.paths.Source)
	if err != nil {
		return nil, err
	}
	res, err := l.builder.Build(ctx, table)
	if err != nil {
		return nil, err
	}

	if l.paths.Cleaned != "" {
		if err := WriteCleaned(l.paths.Cleaned, res); err != nil {
			return nil, fmt.Errorf("write cleaned table: %w", err)
		}
	}
	if l.paths.Combined != "" {
		if err := WriteCombined(l.paths.Combined, res.Documents); err != nil {
			return nil, fmt.Errorf("write combined info: %w", err)
		}
	}
	if l.paths.Encoders != "" {
		if err := SaveEncoders(l.paths.Encoders, res.Encoders); err != nil {
			return nil, fmt.Errorf("save encoders: %w", err)
		}
	}
	if l.paths.Scaler != "" {
		if err := SaveScaler(l.paths.Scaler, res.Scaler); err != nil {
			return nil, fmt.Errorf("save scaler: %w", err)
		}
	}
	log.Info().
		Str("combined", l.paths.Combined).
		Int("documents", len(res.Documents)).
		Msg("corpus artifacts saved")
	return res, nil
}

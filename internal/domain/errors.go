package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrDataLoad indicates the source dataset is unreadable, missing or empty.
	ErrDataLoad = errors.New("data load failed")

	// ErrIndexNotReady indicates a search before the index was built or loaded.
	ErrIndexNotReady = errors.New("vector index not ready")

	// ErrEngineNotInitialized indicates a query before Initialize.
	ErrEngineNotInitialized = errors.New("recommendation engine not initialized")

	// ErrIndexCorruption indicates the persisted index cannot be reused.
	// Never returned to callers of the index manager.
	ErrIndexCorruption = errors.New("persisted index corrupt")

	// ErrCredentialMissing indicates a provider credential is absent. The
	// embedder falls back to a local provider; the generator does not.
	ErrCredentialMissing = errors.New("credential missing")

	// ErrGeneration indicates the generator failed.
	ErrGeneration = errors.New("generation failed")
)

// DataLoadError wraps a failure to read the source dataset.
type DataLoadError struct {
	Source string
	Err    error
}

func (e *DataLoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("load %s: %s", e.Source, ErrDataLoad)
	}
	return fmt.Sprintf("load %s: %v", e.Source, e.Err)
}

func (e *DataLoadError) Unwrap() error        { return e.Err }
func (e *DataLoadError) Is(target error) bool { return target == ErrDataLoad }

// CredentialMissingError names the credential that could not be resolved.
type CredentialMissingError struct {
	Name string
}

func (e *CredentialMissingError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCredentialMissing, e.Name)
}

func (e *CredentialMissingError) Is(target error) bool { return target == ErrCredentialMissing }

// GenerationError wraps a generator failure with the provider name.
type GenerationError struct {
	Provider string
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ErrGeneration, e.Provider, e.Err)
}

func (e *GenerationError) Unwrap() error        { return e.Err }
func (e *GenerationError) Is(target error) bool { return target == ErrGeneration }

// IndexCorruptionError carries the reason a persisted index was rejected.
type IndexCorruptionError struct {
	Dir    string
	Reason string
	Err    error
}

func (e *IndexCorruptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("index %s: %s: %v", e.Dir, e.Reason, e.Err)
	}
	return fmt.Sprintf("index %s: %s", e.Dir, e.Reason)
}

func (e *IndexCorruptionError) Unwrap() error        { return e.Err }
func (e *IndexCorruptionError) Is(target error) bool { return target == ErrIndexCorruption }

// StageError records which pipeline stage failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

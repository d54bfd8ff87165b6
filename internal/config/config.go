package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DataConfig locates the source dataset and the corpus artifacts.
type DataConfig struct {
	SourcePath   string `yaml:"source_path" validate:"required"`
	OutputDir    string `yaml:"output_dir" validate:"required"`
	CleanedFile  string `yaml:"cleaned_file"`
	CombinedFile string `yaml:"combined_file"`
	EncodersFile string `yaml:"encoders_file"`
	ScalerFile   string `yaml:"scaler_file"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL           string  `yaml:"base_url"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Model             string  `yaml:"model"`
	TimeoutSecs       int     `yaml:"timeout_secs" validate:"gte=0"`
	BatchSize         int     `yaml:"batch_size" validate:"gte=0"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
}

// OllamaEmbedderConfig configures embeddings served by a local Ollama.
type OllamaEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" validate:"gte=0"`
}

// HashingEmbedderConfig configures the local fallback embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension" validate:"gte=0"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type    string                 `yaml:"type" validate:"oneof=openai ollama hashing"`
	OpenAI  *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
	Ollama  *OllamaEmbedderConfig  `yaml:"ollama,omitempty"`
	Hashing *HashingEmbedderConfig `yaml:"hashing,omitempty"`
}

// ChunkerConfig configures how documents are split into windows.
type ChunkerConfig struct {
	Size    int `yaml:"size" validate:"gt=0"`
	Overlap int `yaml:"overlap" validate:"gte=0,ltfield=Size"`
}

// VectorStoreConfig selects the index backend and where it persists.
type VectorStoreConfig struct {
	Type        string        `yaml:"type" validate:"oneof=memory sqlite qdrant"`
	Dir         string        `yaml:"dir" validate:"required"`
	Incremental bool          `yaml:"incremental"`
	Qdrant      *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OpenAIGeneratorConfig configures chat-completion based generation.
type OpenAIGeneratorConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int     `yaml:"max_tokens" validate:"gte=0"`
	TimeoutSecs int     `yaml:"timeout_secs" validate:"gte=0"`
}

// OllamaGeneratorConfig configures generation through a local Ollama.
type OllamaGeneratorConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// ExtractiveGeneratorConfig configures the offline summarising generator.
type ExtractiveGeneratorConfig struct {
	MaxSentences int `yaml:"max_sentences" validate:"gte=0"`
}

// BreakerConfig configures the circuit breaker around the generator.
type BreakerConfig struct {
	MaxFailures     uint32 `yaml:"max_failures"`
	OpenTimeoutSecs int    `yaml:"open_timeout_secs"`
}

// GeneratorConfig selects and configures the recommendation generator.
type GeneratorConfig struct {
	Type       string                     `yaml:"type" validate:"oneof=openai ollama extractive"`
	OpenAI     *OpenAIGeneratorConfig     `yaml:"openai,omitempty"`
	Ollama     *OllamaGeneratorConfig     `yaml:"ollama,omitempty"`
	Extractive *ExtractiveGeneratorConfig `yaml:"extractive,omitempty"`
	Breaker    BreakerConfig              `yaml:"breaker"`
}

// RecommenderConfig tunes retrieval sizes for the engine.
type RecommenderConfig struct {
	ContextK       int    `yaml:"context_k" validate:"gt=0"`
	SimilarK       int    `yaml:"similar_k" validate:"gt=0"`
	SmokeTestQuery string `yaml:"smoke_test_query"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `yaml:"caller"`
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Data        DataConfig        `yaml:"data"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Generator   GeneratorConfig   `yaml:"generator"`
	Recommender RecommenderConfig `yaml:"recommender"`
	Logging     LoggingConfig     `yaml:"logging"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// CleanedPath returns the cleaned corpus table location.
func (c *AppConfig) CleanedPath() string {
	return filepath.Join(c.Data.OutputDir, c.Data.CleanedFile)
}

// CombinedPath returns the corpus document export location.
func (c *AppConfig) CombinedPath() string {
	return filepath.Join(c.Data.OutputDir, c.Data.CombinedFile)
}

// EncodersPath returns the label encoder blob location.
func (c *AppConfig) EncodersPath() string {
	return filepath.Join(c.Data.OutputDir, c.Data.EncodersFile)
}

// ScalerPath returns the scaler blob location.
func (c *AppConfig) ScalerPath() string {
	return filepath.Join(c.Data.OutputDir, c.Data.ScalerFile)
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}
	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(cfg)
	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/movierag/config.yaml.
// If neither exists, it writes defaults to ~/.config/movierag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	applyEnvOverrides(cfg)
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

// Validate checks field constraints declared on the config structs.
func Validate(cfg *AppConfig) error {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "movierag", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	return defaultConfig()
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Data: DataConfig{
			SourcePath: "data/IMDB_10000.csv",
			OutputDir:  "data",
		},
		Embedder:    EmbedderConfig{Type: "openai", OpenAI: &OpenAIEmbedderConfig{}},
		Chunker:     ChunkerConfig{Size: 1000},
		VectorStore: VectorStoreConfig{Type: "sqlite", Dir: "vector_store"},
		Generator:   GeneratorConfig{Type: "openai", OpenAI: &OpenAIGeneratorConfig{Temperature: 0.7}},
		Recommender: RecommenderConfig{ContextK: 10, SimilarK: 5},
		Logging:     LoggingConfig{Level: "info", Format: "console"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Data.CleanedFile == "" {
		cfg.Data.CleanedFile = "cleaned_movies.csv"
	}
	if cfg.Data.CombinedFile == "" {
		cfg.Data.CombinedFile = "combined_info.csv"
	}
	if cfg.Data.EncodersFile == "" {
		cfg.Data.EncodersFile = "encoders.gob.gz"
	}
	if cfg.Data.ScalerFile == "" {
		cfg.Data.ScalerFile = "scaler.gob.gz"
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.BatchSize == 0 {
			cfg.Embedder.OpenAI.BatchSize = 64
		}
		if cfg.Embedder.OpenAI.RequestsPerSecond == 0 {
			cfg.Embedder.OpenAI.RequestsPerSecond = 5
		}
	}
	if cfg.Embedder.Type == "ollama" {
		if cfg.Embedder.Ollama == nil {
			cfg.Embedder.Ollama = &OllamaEmbedderConfig{}
		}
		if cfg.Embedder.Ollama.BaseURL == "" {
			cfg.Embedder.Ollama.BaseURL = "http://localhost:11434"
		}
		if cfg.Embedder.Ollama.Model == "" {
			cfg.Embedder.Ollama.Model = "nomic-embed-text"
		}
	}
	if cfg.Embedder.Hashing == nil {
		cfg.Embedder.Hashing = &HashingEmbedderConfig{}
	}
	if cfg.Embedder.Hashing.Dimension == 0 {
		cfg.Embedder.Hashing.Dimension = 384
	}

	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 1000
	}
	// Zero overlap is unset and follows the window size.
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = cfg.Chunker.Size / 5
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	if cfg.VectorStore.Dir == "" {
		cfg.VectorStore.Dir = "vector_store"
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.Collection == "" {
			cfg.VectorStore.Qdrant.Collection = "movies"
		}
	}

	if cfg.Generator.Type == "" {
		cfg.Generator.Type = "extractive"
	}
	if cfg.Generator.Type == "openai" {
		if cfg.Generator.OpenAI == nil {
			cfg.Generator.OpenAI = &OpenAIGeneratorConfig{Temperature: 0.7}
		}
		if cfg.Generator.OpenAI.BaseURL == "" {
			cfg.Generator.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Generator.OpenAI.APIKeyEnv == "" {
			cfg.Generator.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Generator.OpenAI.Model == "" {
			cfg.Generator.OpenAI.Model = "gpt-3.5-turbo"
		}
		if cfg.Generator.OpenAI.MaxTokens == 0 {
			cfg.Generator.OpenAI.MaxTokens = 1000
		}
		if cfg.Generator.OpenAI.TimeoutSecs == 0 {
			cfg.Generator.OpenAI.TimeoutSecs = 60
		}
	}
	if cfg.Generator.Type == "ollama" {
		if cfg.Generator.Ollama == nil {
			cfg.Generator.Ollama = &OllamaGeneratorConfig{Temperature: 0.7}
		}
		if cfg.Generator.Ollama.BaseURL == "" {
			cfg.Generator.Ollama.BaseURL = "http://localhost:11434"
		}
		if cfg.Generator.Ollama.Model == "" {
			cfg.Generator.Ollama.Model = "llama3.2"
		}
	}
	if cfg.Generator.Extractive == nil {
		cfg.Generator.Extractive = &ExtractiveGeneratorConfig{}
	}
	if cfg.Generator.Extractive.MaxSentences == 0 {
		cfg.Generator.Extractive.MaxSentences = 5
	}
	if cfg.Generator.Breaker.MaxFailures == 0 {
		cfg.Generator.Breaker.MaxFailures = 3
	}
	if cfg.Generator.Breaker.OpenTimeoutSecs == 0 {
		cfg.Generator.Breaker.OpenTimeoutSecs = 30
	}

	if cfg.Recommender.ContextK == 0 {
		cfg.Recommender.ContextK = 10
	}
	if cfg.Recommender.SimilarK == 0 {
		cfg.Recommender.SimilarK = 5
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// applyEnvOverrides lets deployments relocate data without editing YAML.
func applyEnvOverrides(cfg *AppConfig) {
	if v := os.Getenv("MOVIERAG_DATA_SOURCE"); v != "" {
		cfg.Data.SourcePath = v
	}
	if v := os.Getenv("MOVIERAG_OUTPUT_DIR"); v != "" {
		cfg.Data.OutputDir = v
	}
	if v := os.Getenv("MOVIERAG_INDEX_DIR"); v != "" {
		cfg.VectorStore.Dir = v
	}
	if v := os.Getenv("MOVIERAG_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

package config

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"
	"unsafe"

	"gopkg.in/yaml.v3"
)

// ConfigurationError indicates an invalid or inconsistent configuration.
// It is fatal at startup and never raised per-request.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

type Config struct {
	Embedding EmbeddingConfig `yaml:"embedding"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Providers ProvidersConfig `yaml:"providers"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
}

type EmbeddingConfig struct {
	// Model is the HuggingFace repo of the feature-extraction model.
	Model string `yaml:"model"`

	// Dimension must match the dimension stored in the knowledge index.
	Dimension int `yaml:"dimension"`

	CacheDir   string `yaml:"cache_dir"`
	PoolSize   int    `yaml:"pool_size"`
	CacheSize  int    `yaml:"cache_size"`
	BatchSize  int    `yaml:"batch_size"`
	NERModel   string `yaml:"ner_model"`
	UseGPU     bool   `yaml:"use_gpu"`
	ORTLibrary string `yaml:"ort_library"`
}

type KnowledgeConfig struct {
	DBPath              string        `yaml:"db_path"`
	SimilarityThreshold float64       `yaml:"similarity_threshold"`
	MaxSearchResults    int           `yaml:"max_search_results"`
	WatchDir            string        `yaml:"watch_dir"`
	WatchPatterns       []string      `yaml:"watch_patterns"`
	QueryCacheEntries   int64         `yaml:"query_cache_entries"`
	RAGTimeout          time.Duration `yaml:"rag_timeout"`
}

type ProvidersConfig struct {
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIModel     string `yaml:"openai_model"`
	GeminiAPIKey    string `yaml:"gemini_api_key"`
	GeminiModel     string `yaml:"gemini_model"`
	OllamaBaseURL   string `yaml:"ollama_base_url"`
	OllamaModel     string `yaml:"ollama_model"`
}

type OptimizerConfig struct {
	EnableRAG               bool     `yaml:"enable_rag"`
	MaxPromptLength         int      `yaml:"max_prompt_length"`
	MaxVariablesPerTemplate int      `yaml:"max_variables_per_template"`
	RAGSourceLimit          int      `yaml:"rag_source_limit"`
	EnabledTechniques       []string `yaml:"enabled_techniques"`
	SystemPrompt            string   `yaml:"system_prompt"`
	GenerationMaxTokens     int      `yaml:"generation_max_tokens"`
	GenerationTemperature   float64  `yaml:"generation_temperature"`
}

// DefaultSystemPrompt is the fixed system instruction sent with every
// optimization request.
const DefaultSystemPrompt = `You are an expert prompt engineer specializing in optimizing prompts for large language models.
Your task is to analyze and improve user prompts using advanced techniques like Chain-of-Thought, Role-playing, and Few-shot learning.
Always structure the output clearly and make the prompt more effective.`

func Default() *Config {
	return &Config{
		Embedding: EmbeddingConfig{
			Model:     "sentence-transformers/all-MiniLM-L6-v2",
			Dimension: 384,
			PoolSize:  4,
			CacheSize: 4096,
			BatchSize: 32,
		},
		Knowledge: KnowledgeConfig{
			DBPath:              "promptab.db",
			SimilarityThreshold: 0.75,
			MaxSearchResults:    5,
			WatchPatterns:       []string{"*.yaml", "*.yml", "*.json"},
			QueryCacheEntries:   1024,
			RAGTimeout:          5 * time.Second,
		},
		Providers: ProvidersConfig{
			AnthropicModel: "claude-sonnet-4-5-20250901",
			OpenAIModel:    "gpt-4o-mini",
			GeminiModel:    "gemini-2.0-flash",
			OllamaBaseURL:  "http://localhost:11434",
			OllamaModel:    "llama3.1",
		},
		Optimizer: OptimizerConfig{
			EnableRAG:               true,
			MaxPromptLength:         10000,
			MaxVariablesPerTemplate: 20,
			RAGSourceLimit:          3,
			EnabledTechniques: []string{
				"chain_of_thought",
				"role_playing",
				"few_shot",
				"prompt_chaining",
				"structured_output",
			},
			SystemPrompt:          DefaultSystemPrompt,
			GenerationMaxTokens:   2000,
			GenerationTemperature: 0.7,
		},
	}
}

// Load reads configuration from an optional YAML file, applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvironment()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvironment overrides credentials and endpoints from the environment.
// Environment always wins over file values so secrets never need to live on disk.
func (c *Config) applyEnvironment() {
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.Providers.AnthropicAPIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Providers.OpenAIAPIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Providers.GeminiAPIKey = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		c.Providers.OllamaBaseURL = v
	}
	if v := os.Getenv("OLLAMA_MODEL"); v != "" {
		c.Providers.OllamaModel = v
	}
	if v := os.Getenv("PROMPTAB_DB_PATH"); v != "" {
		c.Knowledge.DBPath = v
	}
}

func (c *Config) Validate() error {
	if c.Embedding.Dimension <= 0 {
		return &ConfigurationError{Field: "embedding.dimension", Reason: "must be positive"}
	}
	if c.Embedding.PoolSize <= 0 {
		return &ConfigurationError{Field: "embedding.pool_size", Reason: "must be positive"}
	}
	if c.Knowledge.SimilarityThreshold < 0 || c.Knowledge.SimilarityThreshold > 1 {
		return &ConfigurationError{Field: "knowledge.similarity_threshold", Reason: "must be in [0,1]"}
	}
	if c.Knowledge.MaxSearchResults <= 0 {
		return &ConfigurationError{Field: "knowledge.max_search_results", Reason: "must be positive"}
	}
	if c.Optimizer.MaxPromptLength <= 0 {
		return &ConfigurationError{Field: "optimizer.max_prompt_length", Reason: "must be positive"}
	}
	if c.Optimizer.MaxVariablesPerTemplate <= 0 {
		return &ConfigurationError{Field: "optimizer.max_variables_per_template", Reason: "must be positive"}
	}
	if c.Optimizer.RAGSourceLimit <= 0 {
		return &ConfigurationError{Field: "optimizer.rag_source_limit", Reason: "must be positive"}
	}
	return nil
}

// Manager holds an atomically swappable configuration snapshot and notifies
// registered watchers on reload.
type Manager struct {
	configPtr unsafe.Pointer
	path      string

	watchers []func(*Config)
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	atomic.StorePointer(&m.configPtr, unsafe.Pointer(cfg))
	return m, nil
}

func (m *Manager) Get() *Config {
	return (*Config)(atomic.LoadPointer(&m.configPtr))
}

// Reload re-reads the config file and swaps the snapshot. Invalid files leave
// the previous snapshot in place.
func (m *Manager) Reload() error {
	cfg, err := Load(m.path)
	if err != nil {
		return err
	}
	atomic.StorePointer(&m.configPtr, unsafe.Pointer(cfg))
	for _, w := range m.watchers {
		w(cfg)
	}
	return nil
}

// OnReload registers a callback invoked after every successful Reload.
// Not safe to call concurrently with Reload; register watchers during setup.
func (m *Manager) OnReload(fn func(*Config)) {
	m.watchers = append(m.watchers, fn)
}

package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete sqlrag engine configuration.
// It mirrors the deployment shape described in spec.md Section 6.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Warehouse  WarehouseConfig  `yaml:"warehouse" json:"warehouse"`
	Prompt     PromptConfig     `yaml:"prompt" json:"prompt"`
	Server     ServerConfig     `yaml:"server" json:"server"`
}

// PathsConfig configures where the offline-built corpus artifacts live.
type PathsConfig struct {
	VectorIndexPath string `yaml:"vector_index_path" json:"vector_index_path"`
	SchemaCSVPath   string `yaml:"schema_csv_path" json:"schema_csv_path"`
	SafeJoinMapPath string `yaml:"safe_join_map_path" json:"safe_join_map_path"`
	CorpusCSVPath   string `yaml:"corpus_csv_path" json:"corpus_csv_path"`
}

// SearchConfig configures hybrid retrieval fusion parameters (spec.md §4.2).
type SearchConfig struct {
	// VectorWeight is w_vec in the weighted-sum fusion s = w_vec*s_vec + w_lex*s_lex.
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`
	// LexicalWeight is w_lex. VectorWeight + LexicalWeight must equal 1.0.
	LexicalWeight float64 `yaml:"lexical_weight" json:"lexical_weight"`

	// AutoAdjustWeights shifts to (0.5, 0.5) when the top lexical match
	// exceeds AutoAdjustBM25Threshold.
	AutoAdjustWeights    bool    `yaml:"auto_adjust_weights" json:"auto_adjust_weights"`
	AutoAdjustBM25Threshold float64 `yaml:"auto_adjust_bm25_threshold" json:"auto_adjust_bm25_threshold"`

	DefaultK  int `yaml:"default_k" json:"default_k"`
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// EmbeddingsConfig configures the dense embedding provider (spec.md §6).
type EmbeddingsConfig struct {
	Provider   string `yaml:"provider" json:"provider"`
	Model      string `yaml:"model" json:"model"`
	Dimensions int    `yaml:"dimensions" json:"dimensions"`
	BatchSize  int    `yaml:"batch_size" json:"batch_size"`

	// OllamaHost is the Ollama API endpoint used when Provider is "ollama".
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
}

// LLMConfig configures the LLM provider used by the rewriter and generation layer.
type LLMConfig struct {
	Provider     string        `yaml:"provider" json:"provider"`
	ModelDefault string        `yaml:"model_default" json:"model_default"`
	Temperature  float64       `yaml:"temperature" json:"temperature"`
	MaxTokens    int           `yaml:"max_tokens" json:"max_tokens"`
	OllamaHost   string        `yaml:"ollama_host" json:"ollama_host"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
}

// WarehouseConfig configures the query executor's BigQuery backend (spec.md §4.6).
type WarehouseConfig struct {
	Project              string        `yaml:"project" json:"project"`
	MaxBytesBilledDefault int64        `yaml:"max_bytes_billed_default" json:"max_bytes_billed_default"`
	MaxRows              int           `yaml:"max_rows" json:"max_rows"`
	DryRunTimeout        time.Duration `yaml:"dry_run_timeout" json:"dry_run_timeout"`
	WetRunTimeout        time.Duration `yaml:"wet_run_timeout" json:"wet_run_timeout"`
}

// PromptConfig configures context budgeting and schema injection (spec.md §4.3, §4.4).
type PromptConfig struct {
	ContextWindowTokens     int `yaml:"context_window_tokens" json:"context_window_tokens"`
	ReservedCompletionTokens int `yaml:"reserved_completion_tokens" json:"reserved_completion_tokens"`
	MaxTablesInPrompt       int `yaml:"max_tables_in_prompt" json:"max_tables_in_prompt"`
	SchemaSnippetTokenBudget int `yaml:"schema_snippet_token_budget" json:"schema_snippet_token_budget"`
	WideTableThreshold      int `yaml:"wide_table_threshold" json:"wide_table_threshold"`
}

// ServerConfig configures the HTTP façade (cmd/sqlragd).
type ServerConfig struct {
	Port     int    `yaml:"port" json:"port"`
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			VectorIndexPath: "./data/vector_index.bin",
			SchemaCSVPath:   "./data/schema.csv",
			SafeJoinMapPath: "./data/safe_joins.json",
			CorpusCSVPath:   "./data/corpus.csv",
		},
		Search: SearchConfig{
			VectorWeight:            0.7,
			LexicalWeight:           0.3,
			AutoAdjustWeights:       true,
			AutoAdjustBM25Threshold: 0.8,
			DefaultK:                4,
			CacheSize:               1000,
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 0, // 0 = auto-detect from provider
			BatchSize:  32,
			OllamaHost: "",
		},
		LLM: LLMConfig{
			Provider:     "ollama",
			ModelDefault: "qwen2.5:7b",
			Temperature:  0.2,
			MaxTokens:    2048,
			OllamaHost:   "",
			Timeout:      30 * time.Second,
			MaxRetries:   3,
		},
		Warehouse: WarehouseConfig{
			Project:               "",
			MaxBytesBilledDefault: 1 << 30, // 1 GB
			MaxRows:               10000,
			DryRunTimeout:         10 * time.Second,
			WetRunTimeout:         60 * time.Second,
		},
		Prompt: PromptConfig{
			ContextWindowTokens:      8192,
			ReservedCompletionTokens: 2048,
			MaxTablesInPrompt:        6,
			SchemaSnippetTokenBudget: 2000,
			WideTableThreshold:       20,
		},
		Server: ServerConfig{
			Port:     8765,
			LogLevel: "info",
		},
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/sqlrag/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/sqlrag/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "sqlrag", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "sqlrag", "config.yaml")
	}
	return filepath.Join(home, ".config", "sqlrag", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist (that's OK).
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration from the specified directory, applying overrides
// in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/sqlrag/config.yaml)
//  3. Project config (sqlrag.yaml in dir)
//  4. Environment variables
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from sqlrag.yaml or sqlrag.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, "sqlrag.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, "sqlrag.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	if other.Paths.VectorIndexPath != "" {
		c.Paths.VectorIndexPath = other.Paths.VectorIndexPath
	}
	if other.Paths.SchemaCSVPath != "" {
		c.Paths.SchemaCSVPath = other.Paths.SchemaCSVPath
	}
	if other.Paths.SafeJoinMapPath != "" {
		c.Paths.SafeJoinMapPath = other.Paths.SafeJoinMapPath
	}
	if other.Paths.CorpusCSVPath != "" {
		c.Paths.CorpusCSVPath = other.Paths.CorpusCSVPath
	}

	if other.Search.VectorWeight != 0 {
		c.Search.VectorWeight = other.Search.VectorWeight
	}
	if other.Search.LexicalWeight != 0 {
		c.Search.LexicalWeight = other.Search.LexicalWeight
	}
	if other.Search.AutoAdjustBM25Threshold != 0 {
		c.Search.AutoAdjustBM25Threshold = other.Search.AutoAdjustBM25Threshold
	}
	if other.Search.DefaultK != 0 {
		c.Search.DefaultK = other.Search.DefaultK
	}
	if other.Search.CacheSize != 0 {
		c.Search.CacheSize = other.Search.CacheSize
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}

	if other.LLM.Provider != "" {
		c.LLM.Provider = other.LLM.Provider
	}
	if other.LLM.ModelDefault != "" {
		c.LLM.ModelDefault = other.LLM.ModelDefault
	}
	if other.LLM.Temperature != 0 {
		c.LLM.Temperature = other.LLM.Temperature
	}
	if other.LLM.MaxTokens != 0 {
		c.LLM.MaxTokens = other.LLM.MaxTokens
	}
	if other.LLM.OllamaHost != "" {
		c.LLM.OllamaHost = other.LLM.OllamaHost
	}
	if other.LLM.Timeout != 0 {
		c.LLM.Timeout = other.LLM.Timeout
	}
	if other.LLM.MaxRetries != 0 {
		c.LLM.MaxRetries = other.LLM.MaxRetries
	}

	if other.Warehouse.Project != "" {
		c.Warehouse.Project = other.Warehouse.Project
	}
	if other.Warehouse.MaxBytesBilledDefault != 0 {
		c.Warehouse.MaxBytesBilledDefault = other.Warehouse.MaxBytesBilledDefault
	}
	if other.Warehouse.MaxRows != 0 {
		c.Warehouse.MaxRows = other.Warehouse.MaxRows
	}
	if other.Warehouse.DryRunTimeout != 0 {
		c.Warehouse.DryRunTimeout = other.Warehouse.DryRunTimeout
	}
	if other.Warehouse.WetRunTimeout != 0 {
		c.Warehouse.WetRunTimeout = other.Warehouse.WetRunTimeout
	}

	if other.Prompt.ContextWindowTokens != 0 {
		c.Prompt.ContextWindowTokens = other.Prompt.ContextWindowTokens
	}
	if other.Prompt.ReservedCompletionTokens != 0 {
		c.Prompt.ReservedCompletionTokens = other.Prompt.ReservedCompletionTokens
	}
	if other.Prompt.MaxTablesInPrompt != 0 {
		c.Prompt.MaxTablesInPrompt = other.Prompt.MaxTablesInPrompt
	}
	if other.Prompt.SchemaSnippetTokenBudget != 0 {
		c.Prompt.SchemaSnippetTokenBudget = other.Prompt.SchemaSnippetTokenBudget
	}
	if other.Prompt.WideTableThreshold != 0 {
		c.Prompt.WideTableThreshold = other.Prompt.WideTableThreshold
	}

	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
}

// applyEnvOverrides applies the environment variables named in spec.md §6,
// highest precedence.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("LLM_MODEL_DEFAULT"); v != "" {
		c.LLM.ModelDefault = v
	}
	if v := os.Getenv("WAREHOUSE_PROJECT"); v != "" {
		c.Warehouse.Project = v
	}
	if v := os.Getenv("VECTOR_INDEX_PATH"); v != "" {
		c.Paths.VectorIndexPath = v
	}
	if v := os.Getenv("SCHEMA_CSV_PATH"); v != "" {
		c.Paths.SchemaCSVPath = v
	}
	if v := os.Getenv("SAFE_JOIN_MAP_PATH"); v != "" {
		c.Paths.SafeJoinMapPath = v
	}
	if v := os.Getenv("MAX_BYTES_BILLED_DEFAULT"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.Warehouse.MaxBytesBilledDefault = n
		}
	}

	// Fusion weights, server tuning: sqlrag-specific extensions beyond the
	// spec's named env vars, following the same SQLRAG_* convention.
	if v := os.Getenv("SQLRAG_VECTOR_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.VectorWeight = w
		}
	}
	if v := os.Getenv("SQLRAG_LEXICAL_WEIGHT"); v != "" {
		if w, err := parseFloat64(v); err == nil && w >= 0 && w <= 1 {
			c.Search.LexicalWeight = w
		}
	}
	if v := os.Getenv("SQLRAG_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
}

// parseFloat64 parses a string to float64, used for config parsing.
func parseFloat64(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(strings.TrimSpace(s), "%f", &f)
	return f, err
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Search.VectorWeight < 0 || c.Search.VectorWeight > 1 {
		return fmt.Errorf("search.vector_weight must be between 0 and 1, got %f", c.Search.VectorWeight)
	}
	if c.Search.LexicalWeight < 0 || c.Search.LexicalWeight > 1 {
		return fmt.Errorf("search.lexical_weight must be between 0 and 1, got %f", c.Search.LexicalWeight)
	}
	if sum := c.Search.VectorWeight + c.Search.LexicalWeight; math.Abs(sum-1.0) > 0.01 {
		return fmt.Errorf("search.vector_weight + search.lexical_weight must equal 1.0, got %.2f", sum)
	}
	if c.Search.DefaultK < 0 {
		return fmt.Errorf("search.default_k must be non-negative, got %d", c.Search.DefaultK)
	}

	validEmbedProviders := map[string]bool{"ollama": true, "static": true}
	if !validEmbedProviders[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'ollama' or 'static', got %s", c.Embeddings.Provider)
	}

	validLLMProviders := map[string]bool{"ollama": true, "openai_compatible": true}
	if !validLLMProviders[strings.ToLower(c.LLM.Provider)] {
		return fmt.Errorf("llm.provider must be 'ollama' or 'openai_compatible', got %s", c.LLM.Provider)
	}

	if c.Warehouse.MaxBytesBilledDefault < 0 {
		return fmt.Errorf("warehouse.max_bytes_billed_default must be non-negative, got %d", c.Warehouse.MaxBytesBilledDefault)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// LoadUserConfig loads the user configuration file.
// Returns nil config and nil error if the file doesn't exist.
func LoadUserConfig() (*Config, error) {
	return loadUserConfig()
}

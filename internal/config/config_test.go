package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	cfg := NewConfig()

	require.NotNil(t, cfg)

	assert.Equal(t, 0.7, cfg.Search.VectorWeight)
	assert.Equal(t, 0.3, cfg.Search.LexicalWeight)
	assert.True(t, cfg.Search.AutoAdjustWeights)
	assert.Equal(t, 4, cfg.Search.DefaultK)
	assert.Equal(t, 1000, cfg.Search.CacheSize)

	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, 0, cfg.Embeddings.Dimensions)
	assert.Equal(t, 32, cfg.Embeddings.BatchSize)

	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 0.2, cfg.LLM.Temperature)
	assert.Equal(t, 3, cfg.LLM.MaxRetries)

	assert.Equal(t, int64(1<<30), cfg.Warehouse.MaxBytesBilledDefault)
	assert.Equal(t, 10000, cfg.Warehouse.MaxRows)

	assert.Equal(t, 8192, cfg.Prompt.ContextWindowTokens)
	assert.Equal(t, 2048, cfg.Prompt.ReservedCompletionTokens)
	assert.Equal(t, 6, cfg.Prompt.MaxTablesInPrompt)

	assert.Equal(t, 8765, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
}

func TestConfig_Validate_ValidDefaults(t *testing.T) {
	cfg := NewConfig()
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_WeightsMustSumToOne(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.VectorWeight = 0.9
	cfg.Search.LexicalWeight = 0.3

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must equal 1.0")
}

func TestConfig_Validate_WeightOutOfRange(t *testing.T) {
	cfg := NewConfig()
	cfg.Search.VectorWeight = 1.5

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector_weight")
}

func TestConfig_Validate_UnknownEmbeddingsProvider(t *testing.T) {
	cfg := NewConfig()
	cfg.Embeddings.Provider = "bogus"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embeddings.provider")
}

func TestConfig_Validate_UnknownLLMProvider(t *testing.T) {
	cfg := NewConfig()
	cfg.LLM.Provider = "bogus"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.provider")
}

func TestConfig_Validate_InvalidLogLevel(t *testing.T) {
	cfg := NewConfig()
	cfg.Server.LogLevel = "verbose"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log_level")
}

func TestLoad_NoConfigFile_ReturnsDefaults(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, 0.7, cfg.Search.VectorWeight)
}

func TestLoad_ProjectYAML_OverridesDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
search:
  vector_weight: 0.5
  lexical_weight: 0.5
  default_k: 8
`
	err := os.WriteFile(filepath.Join(tmpDir, "sqlrag.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, 0.5, cfg.Search.VectorWeight)
	assert.Equal(t, 0.5, cfg.Search.LexicalWeight)
	assert.Equal(t, 8, cfg.Search.DefaultK)
}

func TestLoad_YMLExtension_Fallback(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
search:
  default_k: 10
`
	err := os.WriteFile(filepath.Join(tmpDir, "sqlrag.yml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, 10, cfg.Search.DefaultK)
}

func TestLoad_YAMLTakesPrecedenceOverYML(t *testing.T) {
	tmpDir := t.TempDir()
	yamlContent := "search:\n  default_k: 5\n"
	ymlContent := "search:\n  default_k: 99\n"

	err := os.WriteFile(filepath.Join(tmpDir, "sqlrag.yaml"), []byte(yamlContent), 0o644)
	require.NoError(t, err)
	err = os.WriteFile(filepath.Join(tmpDir, "sqlrag.yml"), []byte(ymlContent), 0o644)
	require.NoError(t, err)

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Search.DefaultK)
}

func TestLoad_InvalidYAML_ReturnsError(t *testing.T) {
	tmpDir := t.TempDir()
	invalidContent := "search:\n  default_k: [unterminated\n"

	err := os.WriteFile(filepath.Join(tmpDir, "sqlrag.yaml"), []byte(invalidContent), 0o644)
	require.NoError(t, err)

	_, err = Load(tmpDir)
	assert.Error(t, err)
}

func TestLoad_InvalidConfig_FailsValidation(t *testing.T) {
	tmpDir := t.TempDir()
	invalidContent := "search:\n  vector_weight: 2.0\n"

	err := os.WriteFile(filepath.Join(tmpDir, "sqlrag.yaml"), []byte(invalidContent), 0o644)
	require.NoError(t, err)

	_, err = Load(tmpDir)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides_EmbeddingsProvider(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("EMBEDDINGS_PROVIDER", "static")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
}

func TestLoad_EnvOverrides_LLMModelDefault(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("LLM_MODEL_DEFAULT", "llama3.1:8b")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "llama3.1:8b", cfg.LLM.ModelDefault)
}

func TestLoad_EnvOverrides_WarehouseProject(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("WAREHOUSE_PROJECT", "my-gcp-project")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "my-gcp-project", cfg.Warehouse.Project)
}

func TestLoad_EnvOverrides_VectorIndexPath(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("VECTOR_INDEX_PATH", "/custom/vector.bin")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "/custom/vector.bin", cfg.Paths.VectorIndexPath)
}

func TestLoad_EnvOverrides_MaxBytesBilledDefault(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("MAX_BYTES_BILLED_DEFAULT", "5368709120")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, int64(5368709120), cfg.Warehouse.MaxBytesBilledDefault)
}

func TestLoad_EnvOverridesTakesPrecedenceOverFile(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := "embeddings:\n  provider: ollama\n"
	err := os.WriteFile(filepath.Join(tmpDir, "sqlrag.yaml"), []byte(configContent), 0o644)
	require.NoError(t, err)

	t.Setenv("EMBEDDINGS_PROVIDER", "static")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
}

func TestGetUserConfigPath_DefaultsToHomeConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	expected := filepath.Join(home, ".config", "sqlrag", "config.yaml")
	assert.Equal(t, expected, GetUserConfigPath())
}

func TestGetUserConfigPath_RespectsXDGConfigHome(t *testing.T) {
	customConfig := "/custom/xdg/config"
	t.Setenv("XDG_CONFIG_HOME", customConfig)

	expected := filepath.Join(customConfig, "sqlrag", "config.yaml")
	assert.Equal(t, expected, GetUserConfigPath())
}

func TestUserConfigExists_FalseWhenAbsent(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	assert.False(t, UserConfigExists())
}

func TestLoad_UserConfigMergedWithProjectConfig(t *testing.T) {
	configDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	sqlragDir := filepath.Join(configDir, "sqlrag")
	require.NoError(t, os.MkdirAll(sqlragDir, 0o755))

	userConfig := "embeddings:\n  model: user-model\n"
	require.NoError(t, os.WriteFile(filepath.Join(sqlragDir, "config.yaml"), []byte(userConfig), 0o644))

	projectDir := t.TempDir()
	projectConfig := "search:\n  default_k: 12\n"
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "sqlrag.yaml"), []byte(projectConfig), 0o644))

	cfg, err := Load(projectDir)
	require.NoError(t, err)
	assert.Equal(t, "user-model", cfg.Embeddings.Model)
	assert.Equal(t, 12, cfg.Search.DefaultK)
}

func TestLoad_ProjectConfigOverridesUserConfig(t *testing.T) {
	configDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configDir)

	sqlragDir := filepath.Join(configDir, "sqlrag")
	require.NoError(t, os.MkdirAll(sqlragDir, 0o755))

	userConfig := "embeddings:\n  model: user-model\n"
	require.NoError(t, os.WriteFile(filepath.Join(sqlragDir, "config.yaml"), []byte(userConfig), 0o644))

	projectDir := t.TempDir()
	projectConfig := "embeddings:\n  model: project-model\n"
	require.NoError(t, os.WriteFile(filepath.Join(projectDir, "sqlrag.yaml"), []byte(projectConfig), 0o644))

	cfg, err := Load(projectDir)
	require.NoError(t, err)
	assert.Equal(t, "project-model", cfg.Embeddings.Model)
}

func TestWriteYAML_RoundTrips(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := NewConfig()
	cfg.Search.DefaultK = 42

	path := filepath.Join(tmpDir, "out.yaml")
	require.NoError(t, cfg.WriteYAML(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "default_k: 42")
}

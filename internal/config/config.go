// Package config provides configuration structures and loading logic for tracelens.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the root configuration structure for the tracelens service.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	MLflow   MLflowConfig   `mapstructure:"mlflow"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Reports  ReportsConfig  `mapstructure:"reports"`
	DB       DBConfig       `mapstructure:"db"`
}

// AppConfig defines application-level settings such as host and port.
type AppConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
}

// MLflowConfig defines connection settings for the MLflow tracking server.
type MLflowConfig struct {
	URL      string `mapstructure:"url"`
	TokenEnv string `mapstructure:"token_env"`
	Token    string `mapstructure:"-"`
	Timeout  string `mapstructure:"timeout"`
}

// LLMConfig defines the selected model provider and its operational parameters.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider"`
	Model       string  `mapstructure:"model"`
	Endpoint    string  `mapstructure:"endpoint"`
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	OllamaURL   string  `mapstructure:"ollama_url"`
	OllamaModel string  `mapstructure:"ollama_model"`
	APIKey      string  `mapstructure:"-"`
}

// AnalysisConfig defines sampling bounds and deterministic thresholds for the
// analysis pipeline.
type AnalysisConfig struct {
	TraceSampleSize     int `mapstructure:"trace_sample_size"`
	CriticalLatencyMs   int `mapstructure:"critical_latency_ms"`
	HighLatencyMs       int `mapstructure:"high_latency_ms"`
	SlowToolThresholdMs int `mapstructure:"slow_tool_threshold_ms"`
	PromptTokenBudget   int `mapstructure:"prompt_token_budget"`
	UnderstandingSample int `mapstructure:"understanding_sample"`
	CategorySample      int `mapstructure:"category_sample"`
	MaxSchemas          int `mapstructure:"max_schemas"`
}

// ReportsConfig defines settings for locally written markdown reports.
type ReportsConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	Enabled   bool   `mapstructure:"enabled"`
}

// DBConfig defines settings for the SQLite analysis history store.
type DBConfig struct {
	Path    string `mapstructure:"path"`
	Enabled bool   `mapstructure:"enabled"`
}

// GetTimeoutDuration parses the configured string timeout into a time.Duration.
func (c *MLflowConfig) GetTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	if d == 0 {
		return 30 * time.Second
	}
	return d
}

// ProviderType returns the normalized LLM provider type.
func (c *LLMConfig) ProviderType() string {
	return strings.ToLower(c.Provider)
}

// Load loads configuration from config.yaml or environment variables
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/tracelens")

	// Allow environment variables to override config
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	viper.SetDefault("app.host", "0.0.0.0")
	viper.SetDefault("app.port", 8080)
	viper.SetDefault("app.log_level", "info")
	viper.SetDefault("mlflow.timeout", "30s")
	viper.SetDefault("mlflow.token_env", "DATABRICKS_TOKEN")
	viper.SetDefault("llm.provider", "databricks")
	viper.SetDefault("llm.model", "databricks-claude-sonnet-4")
	viper.SetDefault("llm.temperature", 0.1)
	viper.SetDefault("llm.max_tokens", 4000)
	viper.SetDefault("analysis.trace_sample_size", 50)
	viper.SetDefault("analysis.critical_latency_ms", 30000)
	viper.SetDefault("analysis.high_latency_ms", 10000)
	viper.SetDefault("analysis.slow_tool_threshold_ms", 5000)
	viper.SetDefault("analysis.prompt_token_budget", 12000)
	viper.SetDefault("analysis.understanding_sample", 5)
	viper.SetDefault("analysis.category_sample", 20)
	viper.SetDefault("analysis.max_schemas", 15)
	viper.SetDefault("reports.output_dir", "reports/experiments")
	viper.SetDefault("reports.enabled", true)
	viper.SetDefault("db.path", "data/tracelens.db")
	viper.SetDefault("db.enabled", true)

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Get API keys from environment depending on the provider
	if cfg.MLflow.TokenEnv != "" {
		cfg.MLflow.Token = os.Getenv(cfg.MLflow.TokenEnv)
	}

	switch cfg.LLM.ProviderType() {
	case "openai":
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case "databricks":
		cfg.LLM.APIKey = os.Getenv(cfg.MLflow.TokenEnv)
	}

	return &cfg, nil
}

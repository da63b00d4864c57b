// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// DefaultBaseURL is the SiliconFlow OpenAI-compatible endpoint.
	DefaultBaseURL = "https://api.siliconflow.cn/v1"
	// DefaultAPIKeyEnv names the environment variable consulted when no key is configured.
	DefaultAPIKeyEnv = "SILICONFLOW_API_KEY"

	DefaultEmbeddingModel = "bge-large-zh-v1.5"
	DefaultRerankModel    = "bge-reranker-base"
	DefaultChatModel      = "deepseek-ai/deepseek-v2"
	DefaultTestModel      = "Qwen/Qwen2-7B-Instruct"

	defaultDataPath       = "data"
	defaultEmbeddingsFile = "embeddings.json"
	defaultLogFile        = "loremaster.log"

	defaultEmbeddingTimeout     = 30 * time.Second
	defaultChatTimeout          = 60 * time.Second
	defaultStreamTimeout        = 120 * time.Second
	defaultStreamConnectTimeout = 10 * time.Second
	defaultStreamReadTimeout    = 30 * time.Second
	defaultBatchDelay           = time.Second

	defaultTopKRetrieval = 20
	defaultTopKRerank    = 5
	defaultMaxCandidates = 50
	defaultTemperature   = 0.7
	defaultMaxTokens     = 2000
	defaultHistoryLimit  = 8
	defaultBatchSize     = 10
)

// Config represents the top-level application configuration.
type Config struct {
	DataPath       string       `json:"dataPath" yaml:"dataPath" mapstructure:"dataPath"`
	EmbeddingsPath string       `json:"embeddingsPath,omitempty" yaml:"embeddingsPath,omitempty" mapstructure:"embeddingsPath"`
	LogFile        string       `json:"logFile,omitempty" yaml:"logFile,omitempty" mapstructure:"logFile"`
	Debug          bool         `json:"debug" yaml:"debug" mapstructure:"debug"`
	API            APIConfig    `json:"api" yaml:"api" mapstructure:"api"`
	RAG            RAGConfig    `json:"rag" yaml:"rag" mapstructure:"rag"`
	Stream         StreamConfig `json:"stream" yaml:"stream" mapstructure:"stream"`
	ConfigPath     string       `json:"-" yaml:"-" mapstructure:"-"`
}

// APIConfig describes the remote embedding/rerank/chat service.
type APIConfig struct {
	BaseURL          string `json:"baseURL" yaml:"baseURL" mapstructure:"baseURL"`
	APIKey           string `json:"apiKey,omitempty" yaml:"apiKey,omitempty" mapstructure:"apiKey"`
	APIKeyEnv        string `json:"apiKeyEnv,omitempty" yaml:"apiKeyEnv,omitempty" mapstructure:"apiKeyEnv"`
	TestModel        string `json:"testModel,omitempty" yaml:"testModel,omitempty" mapstructure:"testModel"`
	EmbeddingTimeout int    `json:"embeddingTimeout,omitempty" yaml:"embeddingTimeout,omitempty" mapstructure:"embeddingTimeout"`
	ChatTimeout      int    `json:"chatTimeout,omitempty" yaml:"chatTimeout,omitempty" mapstructure:"chatTimeout"`
}

// RAGConfig holds the retrieval pipeline knobs.
type RAGConfig struct {
	EmbeddingModel string   `json:"embeddingModel" yaml:"embeddingModel" mapstructure:"embeddingModel"`
	RerankModel    string   `json:"rerankModel" yaml:"rerankModel" mapstructure:"rerankModel"`
	ChatModel      string   `json:"chatModel" yaml:"chatModel" mapstructure:"chatModel"`
	TopKRetrieval  int      `json:"topKRetrieval" yaml:"topKRetrieval" mapstructure:"topKRetrieval"`
	TopKRerank     int      `json:"topKRerank" yaml:"topKRerank" mapstructure:"topKRerank"`
	MaxCandidates  int      `json:"maxCandidates" yaml:"maxCandidates" mapstructure:"maxCandidates"`
	Temperature    float64  `json:"temperature" yaml:"temperature" mapstructure:"temperature"`
	MaxTokens      int      `json:"maxTokens" yaml:"maxTokens" mapstructure:"maxTokens"`
	HistoryLimit   int      `json:"historyLimit" yaml:"historyLimit" mapstructure:"historyLimit"`
	BatchSize      int      `json:"batchSize" yaml:"batchSize" mapstructure:"batchSize"`
	BatchDelayMs   int      `json:"batchDelayMs" yaml:"batchDelayMs" mapstructure:"batchDelayMs"`
	CategoryFilter []string `json:"categoryFilter,omitempty" yaml:"categoryFilter,omitempty" mapstructure:"categoryFilter"`
}

// StreamConfig holds the streaming session timeouts, in seconds.
type StreamConfig struct {
	TimeoutSeconds        int `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
	ConnectTimeoutSeconds int `json:"connectTimeout,omitempty" yaml:"connectTimeout,omitempty" mapstructure:"connectTimeout"`
	ReadTimeoutSeconds    int `json:"readTimeout,omitempty" yaml:"readTimeout,omitempty" mapstructure:"readTimeout"`
}

// ConfigurationError reports a missing or unusable configuration value.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// Default returns a configuration populated with every default value.
func Default() Config {
	var cfg Config
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.DataPath) == "" {
		c.DataPath = defaultDataPath
	}
	if strings.TrimSpace(c.API.BaseURL) == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if strings.TrimSpace(c.API.APIKeyEnv) == "" {
		c.API.APIKeyEnv = DefaultAPIKeyEnv
	}
	if strings.TrimSpace(c.API.TestModel) == "" {
		c.API.TestModel = DefaultTestModel
	}
	if strings.TrimSpace(c.RAG.EmbeddingModel) == "" {
		c.RAG.EmbeddingModel = DefaultEmbeddingModel
	}
	if strings.TrimSpace(c.RAG.RerankModel) == "" {
		c.RAG.RerankModel = DefaultRerankModel
	}
	if strings.TrimSpace(c.RAG.ChatModel) == "" {
		c.RAG.ChatModel = DefaultChatModel
	}
	if c.RAG.TopKRetrieval <= 0 {
		c.RAG.TopKRetrieval = defaultTopKRetrieval
	}
	if c.RAG.TopKRerank <= 0 {
		c.RAG.TopKRerank = defaultTopKRerank
	}
	if c.RAG.MaxCandidates <= 0 {
		c.RAG.MaxCandidates = defaultMaxCandidates
	}
	if c.RAG.Temperature <= 0 {
		c.RAG.Temperature = defaultTemperature
	}
	if c.RAG.MaxTokens <= 0 {
		c.RAG.MaxTokens = defaultMaxTokens
	}
	if c.RAG.HistoryLimit <= 0 {
		c.RAG.HistoryLimit = defaultHistoryLimit
	}
	if c.RAG.BatchSize <= 0 {
		c.RAG.BatchSize = defaultBatchSize
	}
	// A negative delay disables the throttle; zero means "use the default".
	if c.RAG.BatchDelayMs == 0 {
		c.RAG.BatchDelayMs = int(defaultBatchDelay / time.Millisecond)
	}
}

// EmbeddingTimeout bounds embedding and rerank calls.
func (c Config) EmbeddingTimeout() time.Duration {
	return seconds(c.API.EmbeddingTimeout, defaultEmbeddingTimeout)
}

// ChatTimeout bounds non-streamed chat completions.
func (c Config) ChatTimeout() time.Duration {
	return seconds(c.API.ChatTimeout, defaultChatTimeout)
}

// StreamTimeout is the total budget of a streaming session.
func (c Config) StreamTimeout() time.Duration {
	return seconds(c.Stream.TimeoutSeconds, defaultStreamTimeout)
}

// StreamConnectTimeout bounds connection establishment for streams.
func (c Config) StreamConnectTimeout() time.Duration {
	return seconds(c.Stream.ConnectTimeoutSeconds, defaultStreamConnectTimeout)
}

// StreamReadTimeout is the longest tolerated silence between stream lines.
func (c Config) StreamReadTimeout() time.Duration {
	return seconds(c.Stream.ReadTimeoutSeconds, defaultStreamReadTimeout)
}

// BatchDelay returns the pause enforced between embedding batches.
func (c Config) BatchDelay() time.Duration {
	if c.RAG.BatchDelayMs < 0 {
		return 0
	}
	if c.RAG.BatchDelayMs == 0 {
		return defaultBatchDelay
	}
	return time.Duration(c.RAG.BatchDelayMs) * time.Millisecond
}

// EmbeddingsFile returns the embedding cache location, defaulting to a file inside the data directory.
func (c Config) EmbeddingsFile() string {
	if path := strings.TrimSpace(c.EmbeddingsPath); path != "" {
		return path
	}
	dataPath := c.DataPath
	if strings.TrimSpace(dataPath) == "" {
		dataPath = defaultDataPath
	}
	return filepath.Join(dataPath, defaultEmbeddingsFile)
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return defaultLogFile
}

// ResolveAPIKey returns the configured key, falling back to the configured environment variable.
func (c Config) ResolveAPIKey() string {
	if key := strings.TrimSpace(c.API.APIKey); key != "" {
		return key
	}
	env := c.API.APIKeyEnv
	if strings.TrimSpace(env) == "" {
		env = DefaultAPIKeyEnv
	}
	return strings.TrimSpace(os.Getenv(env))
}

// Validate reports the first missing value required to talk to the remote service.
func (c Config) Validate() error {
	if c.ResolveAPIKey() == "" {
		env := c.API.APIKeyEnv
		if env == "" {
			env = DefaultAPIKeyEnv
		}
		return &ConfigurationError{Field: "api.apiKey", Reason: fmt.Sprintf("no API key configured and %s is empty", env)}
	}
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return &ConfigurationError{Field: "api.baseURL", Reason: "must not be empty"}
	}
	models := []struct{ field, value string }{
		{"rag.embeddingModel", c.RAG.EmbeddingModel},
		{"rag.rerankModel", c.RAG.RerankModel},
		{"rag.chatModel", c.RAG.ChatModel},
	}
	for _, m := range models {
		if strings.TrimSpace(m.value) == "" {
			return &ConfigurationError{Field: m.field, Reason: "model name must not be empty"}
		}
	}
	return nil
}

// Load reads the application configuration from path (JSON or YAML) and applies defaults.
func Load(path string) (Config, error) {
	if path == "" {
		path = DefaultConfigPath
	}

	v := viper.New()
	BindEnv(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("no configuration file found at %q", path)
		}
		return Config{}, fmt.Errorf("could not read config file %q: %w", path, err)
	}

	config, err := FromViper(v)
	if err != nil {
		return Config{}, fmt.Errorf("could not decode config file %q: %w", path, err)
	}
	config.ConfigPath = path
	return config, nil
}

// FromViper decodes the settings held by v and applies defaults.
func FromViper(v *viper.Viper) (Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return Config{}, err
	}
	config.ApplyDefaults()
	return config, nil
}

// Save writes cfg to path, as YAML for .yaml/.yml files and JSON otherwise.
func Save(path string, cfg Config) error {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	default:
		data, err = json.MarshalIndent(cfg, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config %q: %w", path, err)
	}
	return nil
}

func seconds(value int, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return time.Duration(value) * time.Second
}

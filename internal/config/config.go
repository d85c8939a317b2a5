package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Logger   LoggerConfig   `mapstructure:"logger"`
	Import   ImportConfig   `mapstructure:"import"`
	Cache    CacheConfig    `mapstructure:"cache"`
	TextGen  TextGenConfig  `mapstructure:"textgen"`
	OpenAI   OpenAIConfig   `mapstructure:"openai"`
	Local    LocalConfig    `mapstructure:"local"`
	Agent    AgentConfig    `mapstructure:"agent"`
	RowStore RowStoreConfig `mapstructure:"rowstore"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Lark     LarkConfig     `mapstructure:"lark"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host          string        `mapstructure:"host"`
	Port          int           `mapstructure:"port"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	MaxUploadSize int64         `mapstructure:"max_upload_size"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	// MigrationsDir overrides the embedded migrations when set
	MigrationsDir string `mapstructure:"migrations_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// ImportConfig controls description analysis during imports
type ImportConfig struct {
	// AnalyzeLimit caps model calls per import, zero means unlimited
	AnalyzeLimit int  `mapstructure:"analyze_limit"`
	AnalyzeAll   bool `mapstructure:"analyze_all"`
}

// CacheConfig selects the ledger cache backing
type CacheConfig struct {
	Backend      string        `mapstructure:"backend"` // memory, sqlite or rowstore
	TTL          time.Duration `mapstructure:"ttl"`
	MaxSize      int           `mapstructure:"max_size"`
	LastKnownTTL time.Duration `mapstructure:"last_known_ttl"`
}

// TextGenConfig controls the provider chain
type TextGenConfig struct {
	Priority       []string      `mapstructure:"priority"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	Currency       string        `mapstructure:"currency"`
	PromptsPath    string        `mapstructure:"prompts_path"`
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	Probe       bool    `mapstructure:"probe"`
}

// LocalConfig holds the OpenAI-compatible local model server configuration
type LocalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
}

// AgentConfig holds the hosted agent configuration
type AgentConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RowStoreConfig holds the PostgREST cache backing configuration
type RowStoreConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Table   string        `mapstructure:"table"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// NotifyConfig controls notification delivery
type NotifyConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

// KafkaConfig holds the notification topic configuration
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// LarkConfig holds Lark bot configuration
type LarkConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	AppID         string `mapstructure:"app_id"`
	AppSecret     string `mapstructure:"app_secret"`
	ReceiveIDType string `mapstructure:"receive_id_type"`
	ReceiveID     string `mapstructure:"receive_id"`
}

// TracingConfig holds OTLP trace export configuration
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	Insecure    bool    `mapstructure:"insecure"`
	ServiceName string  `mapstructure:"service_name"`
	SampleRatio float64 `mapstructure:"sample_ratio"`
}

// Load loads configuration from file, .env and environment variables.
// A missing config file is not an error; defaults and environment apply.
func Load(configPath string) (*Config, error) {
	// .env only fills variables that are not already set
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults
	setDefaults(v)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Override with environment variables
	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.max_upload_size", 20<<20)

	// Database defaults
	v.SetDefault("database.path", "data/ledger.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// Import defaults
	v.SetDefault("import.analyze_limit", 50)

	// Cache defaults
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.max_size", 500)
	v.SetDefault("cache.last_known_ttl", 24*time.Hour)

	// Text generation defaults
	v.SetDefault("textgen.priority", []string{"openai", "agent", "local"})
	v.SetDefault("textgen.max_attempts", 2)
	v.SetDefault("textgen.initial_backoff", 500*time.Millisecond)
	v.SetDefault("textgen.max_backoff", 5*time.Second)
	v.SetDefault("textgen.attempt_timeout", 30*time.Second)
	v.SetDefault("textgen.currency", "€")

	// Provider defaults
	v.SetDefault("openai.temperature", 0.3)
	v.SetDefault("local.base_url", "http://localhost:11434/v1")
	v.SetDefault("local.model", "llama3")
	v.SetDefault("agent.timeout", 30*time.Second)
	v.SetDefault("rowstore.table", "cache_items")
	v.SetDefault("rowstore.timeout", 10*time.Second)

	// Notification defaults
	v.SetDefault("notify.timeout", 5*time.Second)
	v.SetDefault("kafka.topic", "ledger_notifications")
	v.SetDefault("lark.receive_id_type", "chat_id")

	// Tracing defaults
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.insecure", true)
	v.SetDefault("tracing.service_name", "ledger-backoffice")
	v.SetDefault("tracing.sample_ratio", 1.0)
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	// Sensitive credentials from environment
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("agent.api_key", "AGENT_API_KEY")
	_ = v.BindEnv("rowstore.api_key", "ROWSTORE_API_KEY")
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("database.path", "LEDGER_DB_PATH")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Cache.Backend {
	case "memory", "sqlite":
	case "rowstore":
		if c.RowStore.BaseURL == "" {
			return fmt.Errorf("rowstore.base_url is required for the rowstore cache backend")
		}
	default:
		return fmt.Errorf("cache.backend must be memory, sqlite or rowstore, got %q", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}

	for _, name := range c.TextGen.Priority {
		switch name {
		case "openai", "local", "agent":
		default:
			return fmt.Errorf("textgen.priority: unknown provider %q", name)
		}
	}
	if c.TextGen.MaxAttempts < 1 {
		return fmt.Errorf("textgen.max_attempts must be at least 1")
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Lark.Enabled {
		if c.Lark.AppID == "" || c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_id and lark.app_secret are required when lark is enabled")
		}
		if c.Lark.ReceiveID == "" {
			return fmt.Errorf("lark.receive_id is required when lark is enabled")
		}
	}

	if c.Tracing.Enabled && c.Tracing.Endpoint == "" {
		return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be between 0 and 1")
	}

	return nil
}

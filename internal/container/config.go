// Package container provides dependency injection and lifecycle management
// for the ledger back office.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/ledger-backoffice/internal/cache"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/external/openai"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/notify"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/resilience"
)

// Cache backings
const (
	CacheMemory   = "memory"
	CacheSQLite   = "sqlite"
	CacheRowStore = "rowstore"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Database DatabaseConfig
	Cache    CacheConfig
	TextGen  TextGenConfig
	Import   ImportConfig
	Notify   NotifyConfig
	Server   ServerConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Path to SQLite database file, or ":memory:"
	Path string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// MigrationsDir replaces the embedded migrations when set
	MigrationsDir string
}

// CacheConfig holds ledger cache settings.
type CacheConfig struct {
	// Backend is one of CacheMemory, CacheSQLite or CacheRowStore
	Backend string

	TTL     time.Duration
	MaxSize int

	// LastKnownTTL keeps the degraded-mode snapshot around much longer
	// than the fresh ledger cache
	LastKnownTTL time.Duration

	RowStore        cache.RowStoreConfig
	RowStoreTimeout time.Duration
}

// TextGenConfig holds the provider chain settings.
type TextGenConfig struct {
	// Priority orders the providers; unknown or unconfigured ones are skipped
	Priority []string
	Retry    resilience.Config
	Currency string

	// PromptsPath points at a YAML prompt file; empty keeps the built-in prompts
	PromptsPath string

	OpenAI       openai.Config
	LocalEnabled bool
	Local        openai.Config
	Agent        AgentConfig
}

// AgentConfig holds the hosted agent settings.
type AgentConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// ImportConfig holds description analysis settings used during imports.
type ImportConfig struct {
	AnalyzeLimit int
	AnalyzeAll   bool
}

// NotifyConfig holds notification sink settings. The log sink is always on.
type NotifyConfig struct {
	Timeout time.Duration

	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string

	LarkEnabled bool
	Lark        notify.LarkConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host          string
	Port          int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxUploadSize int64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:            "data/ledger.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Cache: CacheConfig{
			Backend:         CacheMemory,
			TTL:             cache.DefaultTTL,
			MaxSize:         500,
			LastKnownTTL:    24 * time.Hour,
			RowStore:        cache.RowStoreConfig{Table: "cache_items"},
			RowStoreTimeout: 10 * time.Second,
		},
		TextGen: TextGenConfig{
			Priority: []string{"openai", "agent", "local"},
			Retry: resilience.Config{
				MaxAttempts:    2,
				InitialBackoff: 500 * time.Millisecond,
				MaxBackoff:     5 * time.Second,
				AttemptTimeout: 30 * time.Second,
			},
			Currency: "€",
			Agent:    AgentConfig{Timeout: 30 * time.Second},
		},
		Import: ImportConfig{AnalyzeLimit: 50},
		Notify: NotifyConfig{
			Timeout:    5 * time.Second,
			KafkaTopic: "ledger_notifications",
		},
		Server: ServerConfig{
			Host:          "0.0.0.0",
			Port:          8080,
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  60 * time.Second,
			MaxUploadSize: 20 << 20,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	switch c.Cache.Backend {
	case CacheMemory, CacheSQLite:
	case CacheRowStore:
		if c.Cache.RowStore.BaseURL == "" {
			return fmt.Errorf("rowstore base url is required")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	if c.Notify.KafkaEnabled && len(c.Notify.KafkaBrokers) == 0 {
		return fmt.Errorf("kafka brokers are required")
	}
	if c.Notify.LarkEnabled && c.Notify.Lark.ReceiveID == "" {
		return fmt.Errorf("lark receive id is required")
	}

	return nil
}

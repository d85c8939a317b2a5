package config

import (
	"github.com/garyjia/ledger-backoffice/internal/cache"
	"github.com/garyjia/ledger-backoffice/internal/container"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/external/openai"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/notify"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/observability"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/resilience"
	"github.com/garyjia/ledger-backoffice/internal/textgen"
)

// ToTracingConfig converts the tracing section for observability.SetupTracing
func (c *Config) ToTracingConfig() observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:     c.Tracing.Enabled,
		Endpoint:    c.Tracing.Endpoint,
		Insecure:    c.Tracing.Insecure,
		ServiceName: c.Tracing.ServiceName,
		SampleRatio: c.Tracing.SampleRatio,
	}
}

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Path:            c.Database.Path,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			MigrationsDir:   c.Database.MigrationsDir,
		},
		Cache: container.CacheConfig{
			Backend:      c.Cache.Backend,
			TTL:          c.Cache.TTL,
			MaxSize:      c.Cache.MaxSize,
			LastKnownTTL: c.Cache.LastKnownTTL,
			RowStore: cache.RowStoreConfig{
				BaseURL: c.RowStore.BaseURL,
				APIKey:  c.RowStore.APIKey,
				Table:   c.RowStore.Table,
			},
			RowStoreTimeout: c.RowStore.Timeout,
		},
		TextGen: container.TextGenConfig{
			Priority: c.TextGen.Priority,
			Retry: resilience.Config{
				MaxAttempts:    c.TextGen.MaxAttempts,
				InitialBackoff: c.TextGen.InitialBackoff,
				MaxBackoff:     c.TextGen.MaxBackoff,
				AttemptTimeout: c.TextGen.AttemptTimeout,
			},
			Currency:    c.TextGen.Currency,
			PromptsPath: c.TextGen.PromptsPath,
			OpenAI: openai.Config{
				Name:        textgen.ProviderOpenAI,
				APIKey:      c.OpenAI.APIKey,
				BaseURL:     c.OpenAI.BaseURL,
				Model:       c.OpenAI.Model,
				Currency:    c.TextGen.Currency,
				Temperature: c.OpenAI.Temperature,
				Probe:       c.OpenAI.Probe,
			},
			LocalEnabled: c.Local.Enabled,
			Local: openai.Config{
				Name:        textgen.ProviderLocal,
				BaseURL:     c.Local.BaseURL,
				Model:       c.Local.Model,
				Currency:    c.TextGen.Currency,
				Temperature: c.OpenAI.Temperature,
				Probe:       true,
			},
			Agent: container.AgentConfig{
				BaseURL: c.Agent.BaseURL,
				APIKey:  c.Agent.APIKey,
				Timeout: c.Agent.Timeout,
			},
		},
		Import: container.ImportConfig{
			AnalyzeLimit: c.Import.AnalyzeLimit,
			AnalyzeAll:   c.Import.AnalyzeAll,
		},
		Notify: container.NotifyConfig{
			Timeout:      c.Notify.Timeout,
			KafkaEnabled: c.Kafka.Enabled,
			KafkaBrokers: c.Kafka.Brokers,
			KafkaTopic:   c.Kafka.Topic,
			LarkEnabled:  c.Lark.Enabled,
			Lark: notify.LarkConfig{
				AppID:         c.Lark.AppID,
				AppSecret:     c.Lark.AppSecret,
				ReceiveIDType: c.Lark.ReceiveIDType,
				ReceiveID:     c.Lark.ReceiveID,
			},
		},
		Server: container.ServerConfig{
			Host:          c.Server.Host,
			Port:          c.Server.Port,
			ReadTimeout:   c.Server.ReadTimeout,
			WriteTimeout:  c.Server.WriteTimeout,
			MaxUploadSize: c.Server.MaxUploadSize,
		},
	}
}

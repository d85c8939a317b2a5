package container

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/garyjia/ledger-backoffice/internal/application/port"
	"github.com/garyjia/ledger-backoffice/internal/application/service"
	"github.com/garyjia/ledger-backoffice/internal/cache"
	"github.com/garyjia/ledger-backoffice/internal/classify"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/external/agent"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/external/openai"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/notify"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/observability"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/persistence/repository"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/resilience"
	"github.com/garyjia/ledger-backoffice/internal/ingest"
	"github.com/garyjia/ledger-backoffice/internal/textgen"
	"github.com/garyjia/ledger-backoffice/migrations"
	"github.com/garyjia/ledger-backoffice/pkg/database"
)

// Cache names registered in the factory
const (
	ledgerCacheName    = "ledger"
	lastKnownCacheName = "ledger-last-known"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	Database       *database.DB
	TransactionMgr *sqlite.DB
	SchemaVersion  int
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Entry   port.EntryRepository
	Request port.RequestRepository
}

// NotifierBundle holds the fan-out notifier and the sinks that need closing.
type NotifierBundle struct {
	Fanout *notify.Fanout
	Kafka  *notify.KafkaSink
}

// TextGenBundle holds the provider chain and the providers that need closing.
type TextGenBundle struct {
	Chain     *textgen.Chain
	Providers []*openai.Provider
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Reader        *service.LedgerReader
	Import        service.ImportService
	Ledger        service.LedgerService
	Justification service.JustificationService
}

// ProvideDatabase opens the database and runs pending migrations. The
// embedded migrations are used unless cfg.MigrationsDir is set.
func ProvideDatabase(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	migrator := database.NewMigrator(db, logger)
	if cfg.MigrationsDir != "" {
		err = migrator.RunMigrations(ctx, cfg.MigrationsDir)
	} else {
		err = migrator.RunMigrationsFS(ctx, migrations.FS)
	}
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, err := migrator.CurrentVersion(ctx)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}

	return &DatabaseBundle{
		Database:       db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
		SchemaVersion:  version,
	}, nil
}

// ProvideRepositories creates all repository instances.
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	return &RepositoryBundle{
		Entry:   repository.NewEntryRepository(db, logger),
		Request: repository.NewRequestRepository(db, logger),
	}, nil
}

// ProvideNotifier builds the fan-out notifier: the log sink always, Kafka
// and Lark when enabled.
func ProvideNotifier(cfg *NotifyConfig, logger *zap.Logger) (*NotifierBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("notify config is required")
	}

	bundle := &NotifierBundle{}
	sinks := []notify.Sink{notify.NewLogSink(logger)}

	if cfg.KafkaEnabled {
		bundle.Kafka = notify.NewKafkaSink(notify.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		sinks = append(sinks, bundle.Kafka)
		logger.Info("Kafka notifications enabled", zap.String("topic", cfg.KafkaTopic))
	}

	if cfg.LarkEnabled {
		client := notify.NewLarkClient(cfg.Lark)
		sinks = append(sinks, notify.NewLarkSink(notify.NewIMMessenger(client.Im.Message), cfg.Lark, logger))
		logger.Info("Lark notifications enabled", zap.String("receive_id_type", cfg.Lark.ReceiveIDType))
	}

	bundle.Fanout = notify.NewFanout(sinks, cfg.Timeout, logger)
	return bundle, nil
}

// ProvideLedgerCaches builds the fresh and last-known ledger caches on the
// configured backing and registers them in factory.
func ProvideLedgerCaches(ctx context.Context, cfg *CacheConfig, factory *cache.Factory, db *database.DB, recorder cache.Recorder, logger *zap.Logger) (fresh, lastKnown cache.Store[service.Snapshot], err error) {
	build := func(name string, opts cache.Options) func() (cache.Store[service.Snapshot], error) {
		return func() (cache.Store[service.Snapshot], error) {
			switch cfg.Backend {
			case CacheSQLite:
				return cache.NewSQLiteStore[service.Snapshot](ctx, db.DB, name, opts, logger)
			case CacheRowStore:
				rs := cfg.RowStore
				rs.Namespace = name
				cb := resilience.NewCircuitBreaker("rowstore-"+name, resilience.BreakerConfig{})
				return cache.NewRowStore[service.Snapshot](&http.Client{Timeout: cfg.RowStoreTimeout}, rs, cb, opts, logger), nil
			default:
				return cache.NewMemory[service.Snapshot](opts), nil
			}
		}
	}

	fresh, err = cache.Named(factory, ledgerCacheName, build(ledgerCacheName, cache.Options{
		Name:     ledgerCacheName,
		TTL:      cfg.TTL,
		MaxSize:  cfg.MaxSize,
		Recorder: recorder,
	}))
	if err != nil {
		return nil, nil, err
	}

	lastKnown, err = cache.Named(factory, lastKnownCacheName, build(lastKnownCacheName, cache.Options{
		Name:     lastKnownCacheName,
		TTL:      cfg.LastKnownTTL,
		MaxSize:  cfg.MaxSize,
		Recorder: recorder,
	}))
	if err != nil {
		return nil, nil, err
	}
	return fresh, lastKnown, nil
}

// ProvideTextGen builds the providers named in cfg.Priority and chains them
// in that order in front of the template fallback.
func ProvideTextGen(cfg *TextGenConfig, recorder textgen.Recorder, logger *zap.Logger) (*TextGenBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("textgen config is required")
	}

	var prompts *openai.PromptConfig
	if cfg.PromptsPath != "" {
		p, err := openai.LoadPrompts(cfg.PromptsPath)
		if err != nil {
			return nil, err
		}
		prompts = p
	}

	bundle := &TextGenBundle{}
	var providers []textgen.Provider

	if cfg.OpenAI.APIKey != "" {
		p := openai.NewProvider(cfg.OpenAI, prompts, logger)
		bundle.Providers = append(bundle.Providers, p)
		providers = append(providers, p)
	}
	if cfg.LocalEnabled {
		p := openai.NewProvider(cfg.Local, prompts, logger)
		bundle.Providers = append(bundle.Providers, p)
		providers = append(providers, p)
	}
	if cfg.Agent.BaseURL != "" {
		cb := resilience.NewCircuitBreaker("agent", resilience.BreakerConfig{})
		providers = append(providers, agent.NewClient(&http.Client{Timeout: cfg.Agent.Timeout}, cfg.Agent.BaseURL, cfg.Agent.APIKey, cb, logger))
	}

	providers = textgen.OrderByPriority(providers, cfg.Priority)
	names := make([]string, 0, len(providers))
	for _, p := range providers {
		names = append(names, p.Name())
	}
	logger.Info("Text generation chain configured", zap.Strings("providers", names))

	bundle.Chain = textgen.NewChain(providers, logger,
		textgen.WithRetry(cfg.Retry),
		textgen.WithRecorder(recorder),
		textgen.WithFallback(textgen.NewTemplateProvider(cfg.Currency)),
	)
	return bundle, nil
}

// ServiceDeps holds dependencies for service creation.
type ServiceDeps struct {
	Repos     *RepositoryBundle
	TxManager port.TransactionManager
	Fresh     cache.Store[service.Snapshot]
	LastKnown cache.Store[service.Snapshot]
	TextGen   *textgen.Chain
	Notifier  port.Notifier
	Metrics   *observability.Metrics
	Import    *ImportConfig
	Logger    *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}
	if deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}
	if deps.TextGen == nil {
		return nil, fmt.Errorf("text generator is required")
	}

	svcLogger := &zapLoggerAdapter{logger: deps.Logger}

	var annotatorOpts []classify.AnnotatorOption
	if deps.Import != nil {
		annotatorOpts = append(annotatorOpts, classify.WithLimit(deps.Import.AnalyzeLimit))
		if deps.Import.AnalyzeAll {
			annotatorOpts = append(annotatorOpts, classify.WithAllEntries())
		}
	}
	annotator := classify.NewAnnotator(deps.TextGen, deps.Logger, annotatorOpts...)

	reader := service.NewLedgerReader(deps.Repos.Entry, deps.Fresh, deps.LastKnown, deps.Notifier, svcLogger)

	var recorder service.ImportRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}

	return &ServiceBundle{
		Reader: reader,
		Import: service.NewImportService(
			deps.Repos.Entry,
			reader,
			ingest.NewBuilder(),
			annotator,
			deps.Notifier,
			recorder,
			svcLogger,
		),
		Ledger: service.NewLedgerService(
			deps.Repos.Entry,
			deps.Repos.Request,
			reader,
			deps.TextGen,
			svcLogger,
		),
		Justification: service.NewJustificationService(
			deps.Repos.Entry,
			deps.Repos.Request,
			reader,
			deps.TextGen,
			deps.TxManager,
			deps.Notifier,
			svcLogger,
		),
	}, nil
}

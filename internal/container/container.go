package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/garyjia/ledger-backoffice/internal/application/port"
	"github.com/garyjia/ledger-backoffice/internal/application/service"
	"github.com/garyjia/ledger-backoffice/internal/cache"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/observability"
	"github.com/garyjia/ledger-backoffice/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/ledger-backoffice/internal/textgen"
	"github.com/garyjia/ledger-backoffice/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	database      *database.DB
	db            *sqlite.DB
	schemaVersion int
	repositories  *RepositoryBundle
	caches        *cache.Factory

	// Infrastructure - Observability and delivery
	metrics  *observability.Metrics
	notifier *NotifierBundle

	// Infrastructure - External
	textgen *TextGenBundle

	// Application
	services *ServiceBundle

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
	Providers  []textgen.ProviderStatus   `json:"providers,omitempty"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components in dependency order:
// 1. Database and repositories
// 2. Metrics and notification sinks
// 3. Ledger caches
// 4. Text generation chain
// 5. Application services
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	// Step 1: Initialize database and repositories
	if err := c.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	// Step 2: Initialize metrics and notifications
	if err := c.initNotifications(); err != nil {
		return fmt.Errorf("failed to initialize notifications: %w", err)
	}
	c.logger.Info("Notifications initialized")

	// Step 3 and 4 happen inside initServices, which needs their results
	if err := c.initServices(); err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.logger.Info("Application services initialized")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	// Cancel context to signal all goroutines
	if c.cancel != nil {
		c.cancel()
	}

	// Step 1: Stop probe caches of the providers
	if c.textgen != nil {
		for _, p := range c.textgen.Providers {
			p.Close()
		}
		c.logger.Info("Text generation providers closed")
	}

	// Step 2: Stop ledger cache sweepers
	if c.caches != nil {
		c.caches.DestroyAll()
		c.logger.Info("Caches destroyed")
	}

	// Step 3: Drain pending notifications, then close sinks
	if c.notifier != nil {
		c.notifier.Fanout.Close()
		if c.notifier.Kafka != nil {
			if err := c.notifier.Kafka.Close(); err != nil {
				c.logger.Error("Failed to close kafka writer", zap.Error(err))
				errs = append(errs, fmt.Errorf("close kafka writer: %w", err))
			}
		}
		c.logger.Info("Notifications drained")
	}

	// Step 4: Close database
	if c.database != nil {
		if err := c.database.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if err := errors.Join(errs...); err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components. Provider unavailability
// does not fail overall health since the template fallback always answers.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	// Check database
	if c.database != nil {
		if err := c.database.PingContext(ctx); err != nil {
			status.Components["database"] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{
				Healthy: true,
				Message: fmt.Sprintf("schema version %d", c.schemaVersion),
			}
		}
	} else {
		status.Components["database"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	// Check services
	if c.services != nil {
		status.Components["services"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["services"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	if c.textgen != nil {
		status.Providers = c.textgen.Chain.Status(ctx)
	}

	return status
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase(ctx context.Context) error {
	dbBundle, err := ProvideDatabase(ctx, &c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.database = dbBundle.Database
	c.db = dbBundle.TransactionMgr
	c.schemaVersion = dbBundle.SchemaVersion

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		c.database.Close()
		return err
	}

	c.repositories = repos
	return nil
}

// initNotifications creates the metrics registry and the notifier.
func (c *Container) initNotifications() error {
	c.metrics = observability.NewMetrics()

	bundle, err := ProvideNotifier(&c.config.Notify, c.logger)
	if err != nil {
		return err
	}
	c.notifier = bundle
	return nil
}

// initServices builds the caches and the text generation chain, then the
// application services on top of them.
func (c *Container) initServices() error {
	c.caches = cache.NewFactory(c.logger)
	fresh, lastKnown, err := ProvideLedgerCaches(c.ctx, &c.config.Cache, c.caches, c.database, c.metrics, c.logger)
	if err != nil {
		return err
	}

	tg, err := ProvideTextGen(&c.config.TextGen, c.metrics, c.logger)
	if err != nil {
		return err
	}
	c.textgen = tg

	services, err := ProvideServices(&ServiceDeps{
		Repos:     c.repositories,
		TxManager: c.db,
		Fresh:     fresh,
		LastKnown: lastKnown,
		TextGen:   tg.Chain,
		Notifier:  c.notifier.Fanout,
		Metrics:   c.metrics,
		Import:    &c.config.Import,
		Logger:    c.logger,
	})
	if err != nil {
		return err
	}

	c.services = services
	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// TextGen returns the provider chain.
func (c *Container) TextGen() *textgen.Chain {
	if c.textgen == nil {
		return nil
	}
	return c.textgen.Chain
}

// Caches returns the cache factory.
func (c *Container) Caches() *cache.Factory {
	return c.caches
}

// Metrics returns the Prometheus metrics.
func (c *Container) Metrics() *observability.Metrics {
	return c.metrics
}

// Notifier returns the notification fan-out.
func (c *Container) Notifier() port.Notifier {
	if c.notifier == nil {
		return nil
	}
	return c.notifier.Fanout
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the service.Logger interface.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

// NewServiceLogger adapts logger to the key-value logger used by services.
func NewServiceLogger(logger *zap.Logger) service.Logger {
	return &zapLoggerAdapter{logger: logger}
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Warn(msg string, keysAndValues ...interface{}) {
	a.logger.Warn(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, ok := keysAndValues[i+1].(error); ok {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

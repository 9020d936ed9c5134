// Package app wires the repositories, services and infrastructure every
// binary shares.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	auditDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/audit/domain"
	billingApp "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/application"
	billingDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/billing/domain"
	enrichmentApp "github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/application"
	enrichmentDomain "github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/domain"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/enrichment/infrastructure/providers"
	sharedApplication "github.com/omarbuciofgr-sudo/birvanoio/internal/shared/application"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/database"
	_ "github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/database/postgres" // Register PostgreSQL driver
	_ "github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/database/sqlite"   // Register SQLite driver
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/eventbus"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/migrations"
	"github.com/omarbuciofgr-sudo/birvanoio/internal/shared/infrastructure/outbox"
	"github.com/omarbuciofgr-sudo/birvanoio/pkg/config"
	"github.com/omarbuciofgr-sudo/birvanoio/pkg/observability"
)

// Container holds all application dependencies.
type Container struct {
	Config *config.Config
	Logger *slog.Logger

	// Database
	DBConn   database.Connection
	DBDriver database.Driver

	// Redis, when the credit ledger lives there
	RedisClient *redis.Client

	// Repositories
	CreditRepo       billingDomain.CreditRepository
	SubscriptionRepo billingDomain.SubscriptionRepository
	RecordRepo       enrichmentDomain.RecordRepository
	AuditRepo        auditDomain.Repository
	OutboxRepo       outbox.Repository

	// Unit of Work
	UnitOfWork sharedApplication.UnitOfWork

	// Observability
	Metrics *observability.PrometheusMetrics
	Health  *observability.HealthRegistry

	// Services
	BillingService    *billingApp.Service
	EnrichmentService *enrichmentApp.Service
	Providers         *providers.Chain

	// Publishing, created by ConnectPublisher
	EventPublisher  eventbus.Publisher
	OutboxProcessor *outbox.Processor
}

// NewContainer connects to the configured database, applies migrations and
// wires the services. An empty DATABASE_URL selects local SQLite mode.
func NewContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}

	sqlitePath := cfg.SQLitePath
	if sqlitePath == "" && cfg.LocalMode {
		sqlitePath = database.DefaultSQLitePath()
	}
	conn, err := database.NewConnection(ctx, database.Config{
		Driver:     database.Driver(cfg.DatabaseDriver),
		URL:        cfg.DatabaseURL,
		SQLitePath: sqlitePath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := migrations.Up(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	c, err := newContainer(ctx, cfg, logger, conn)
	if err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("container initialized",
		"driver", conn.Driver(),
		"credit_store", cfg.CreditStore,
		"providers", c.Providers.Names(),
	)
	return c, nil
}

// NewContainerWithConnection wires the services on an already migrated
// connection.
func NewContainerWithConnection(ctx context.Context, cfg *config.Config, logger *slog.Logger, conn database.Connection) (*Container, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return newContainer(ctx, cfg, logger, conn)
}

func newContainer(ctx context.Context, cfg *config.Config, logger *slog.Logger, conn database.Connection) (*Container, error) {
	c := &Container{
		Config:   cfg,
		Logger:   logger,
		DBConn:   conn,
		DBDriver: conn.Driver(),
		Metrics:  observability.NewPrometheusMetrics(),
		Health:   observability.NewHealthRegistry(),
	}
	c.Health.Register("database", observability.DatabaseHealthChecker(conn.Ping))

	factory := NewRepositoryFactory(conn)
	if cfg.UsesRedisCredits() {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
		}
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		c.RedisClient = client
		factory.WithRedis(client)
		c.Health.Register("redis", observability.RedisHealthChecker(func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}))
		logger.Info("connected to Redis")
	}

	var err error
	if c.CreditRepo, err = factory.CreditRepository(); err != nil {
		return nil, fmt.Errorf("failed to create credit repository: %w", err)
	}
	if c.SubscriptionRepo, err = factory.SubscriptionRepository(); err != nil {
		return nil, fmt.Errorf("failed to create subscription repository: %w", err)
	}
	if c.RecordRepo, err = factory.RecordRepository(); err != nil {
		return nil, fmt.Errorf("failed to create enrichment repository: %w", err)
	}
	if c.AuditRepo, err = factory.AuditRepository(); err != nil {
		return nil, fmt.Errorf("failed to create audit repository: %w", err)
	}
	if c.OutboxRepo, err = factory.OutboxRepository(); err != nil {
		return nil, fmt.Errorf("failed to create outbox repository: %w", err)
	}
	c.UnitOfWork = database.NewUnitOfWork(conn)

	c.BillingService = billingApp.NewService(
		c.CreditRepo,
		c.SubscriptionRepo,
		c.AuditRepo,
		c.OutboxRepo,
		c.UnitOfWork,
		logger,
	).WithMetrics(c.Metrics)

	c.Providers = providers.FromConfig(cfg, logger)
	retrier := enrichmentApp.NewRetrier(enrichmentApp.RetryPolicy{
		MaxAttempts:    cfg.EnrichMaxAttempts,
		BaseDelay:      cfg.EnrichBaseDelay,
		AttemptTimeout: cfg.EnrichProviderTimeout,
	})
	sequencer := enrichmentApp.NewSequencer(retrier, logger).WithMetrics(c.Metrics)
	c.EnrichmentService = enrichmentApp.NewService(
		c.RecordRepo,
		sequencer,
		c.Providers,
		c.BillingService,
		c.AuditRepo,
		c.OutboxRepo,
		c.UnitOfWork,
		logger,
	)

	return c, nil
}

// ConnectPublisher connects the RabbitMQ publisher and creates the outbox
// processor. In development an unreachable broker falls back to a no-op
// publisher.
func (c *Container) ConnectPublisher() error {
	publisher, err := eventbus.NewRabbitMQPublisher(c.Config.RabbitMQURL, c.Logger)
	if err != nil {
		if !c.Config.IsDevelopment() {
			return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
		}
		c.Logger.Warn("RabbitMQ not available, using noop publisher", observability.ErrorKey, err)
		c.EventPublisher = eventbus.NewNoopPublisher(c.Logger)
	} else {
		c.EventPublisher = publisher
		c.Health.Register("rabbitmq", observability.RabbitMQHealthChecker(publisher.Ping))
	}

	c.OutboxProcessor = outbox.NewProcessor(c.OutboxRepo, c.EventPublisher, outbox.ProcessorConfig{
		PollInterval:     c.Config.OutboxPollInterval,
		BatchSize:        c.Config.OutboxBatchSize,
		MaxRetries:       c.Config.OutboxMaxRetries,
		RetryBackoffBase: outbox.DefaultProcessorConfig().RetryBackoffBase,
		RetryBackoffMax:  outbox.DefaultProcessorConfig().RetryBackoffMax,
	}, c.Logger).WithMetrics(c.Metrics)
	return nil
}

// DefaultUserID parses the configured acting user.
func (c *Container) DefaultUserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Config.UserID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid BIRVANOIO_USER_ID %q: %w", c.Config.UserID, err)
	}
	return id, nil
}

// Close cleans up all resources.
func (c *Container) Close() error {
	var errs []error

	if c.OutboxProcessor != nil {
		c.OutboxProcessor.Stop()
	}

	if c.EventPublisher != nil {
		if err := c.EventPublisher.Close(); err != nil {
			c.Logger.Warn("error closing event publisher", observability.ErrorKey, err)
			errs = append(errs, err)
		}
	}

	if c.RedisClient != nil {
		if err := c.RedisClient.Close(); err != nil {
			c.Logger.Warn("error closing Redis connection", observability.ErrorKey, err)
			errs = append(errs, err)
		}
	}

	if c.DBConn != nil {
		if err := c.DBConn.Close(); err != nil {
			c.Logger.Warn("error closing database connection", observability.ErrorKey, err)
			errs = append(errs, err)
		} else {
			c.Logger.Info("database connection closed", "driver", c.DBDriver)
		}
	}

	return errors.Join(errs...)
}

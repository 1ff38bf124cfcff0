// Package bootstrap builds the stores, clients and pipeline shared by the api and worker services.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/api/handler"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/config"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/content"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/interaction"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/jobstore"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/pipeline"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/internal/steps"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/shared/rabbitmq"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/shared/redis"
	"github.com/urmaliyadivyanshu31/Provn-New-WizzCamp-sub002/shared/sqldb"
)

// Options select which connections a service opens
type Options struct {
	// Queue connects to RabbitMQ
	Queue bool
	// Interactions opens the interaction counter backend
	Interactions bool
}

// App holds the wired components of a service. Nil clients were not needed by the config.
type App struct {
	DB     *sqldb.Client
	Rabbit *rabbitmq.Client
	Redis  *redis.Client

	Jobs         jobstore.Store
	Catalog      content.Catalog
	Interactions *interaction.Aggregator
	Orchestrator *pipeline.Orchestrator

	logger *slog.Logger
}

type migrator interface {
	Migrate(ctx context.Context) error
}

// New opens the connections named by cfg and opts, migrates SQL schemas and builds the
// orchestrator without a dispatcher
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (_ *App, err error) {
	app := &App{logger: logger}
	defer func() {
		if err != nil {
			app.Close()
		}
	}()

	var migrations []migrator
	if cfg.Database.DriverName() == config.DriverMemory {
		app.Jobs = jobstore.NewMemoryStore()
		app.Catalog = content.NewMemoryCatalog()
	} else {
		if app.DB, err = sqldb.NewClient(DatabaseConfig(&cfg.Database), logger); err != nil {
			return nil, fmt.Errorf("failed to initialize database: %w", err)
		}
		jobs := jobstore.NewSQLStore(app.DB.GetDB(), logger)
		catalog := content.NewSQLCatalog(app.DB.GetDB(), logger)
		app.Jobs, app.Catalog = jobs, catalog
		migrations = append(migrations, jobs, catalog)
	}

	if opts.Interactions {
		store, err := app.interactionStore(cfg)
		if err != nil {
			return nil, err
		}
		if m, ok := store.(migrator); ok {
			migrations = append(migrations, m)
		}
		app.Interactions = interaction.NewAggregator(store, app.Catalog, logger.With(slog.String("component", "interactions")))
	}

	for _, m := range migrations {
		if err := m.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("failed to migrate database: %w", err)
		}
	}

	if opts.Queue {
		if app.Rabbit, err = rabbitmq.NewClient(RabbitMQConfig(&cfg.RabbitMQ), logger); err != nil {
			return nil, fmt.Errorf("failed to initialize RabbitMQ: %w", err)
		}
	}

	defaultPolicy, stepPolicies := RetryPolicies(&cfg.Pipeline)
	runner := pipeline.NewRunner(
		logger.With(slog.String("component", "runner")),
		defaultPolicy,
		stepPolicies,
		steps.All(StepsConfig(cfg), logger.With(slog.String("component", "steps")))...,
	)

	app.Orchestrator, err = pipeline.NewOrchestrator(&pipeline.Config{
		Store:     app.Jobs,
		Runner:    runner,
		Publisher: app.Catalog,
		Pipelines: cfg.Pipeline.Topologies,
		Logger:    logger.With(slog.String("component", "orchestrator")),

		WorkerID:          cfg.Worker.ID,
		Lease:             cfg.Worker.LeaseTimeout,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build orchestrator: %w", err)
	}

	return app, nil
}

func (a *App) interactionStore(cfg *config.Config) (interaction.Store, error) {
	switch cfg.Interactions.Backend {
	case config.BackendRedis:
		client, err := redis.NewClient(RedisConfig(&cfg.Redis), a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Redis: %w", err)
		}
		a.Redis = client
		return interaction.NewRedisStore(client.GetClient(), cfg.Redis.KeyPrefix, a.logger), nil
	case config.BackendSQL:
		if a.DB == nil {
			return nil, errors.New("interactions backend sql requires a SQL database")
		}
		return interaction.NewSQLStore(a.DB.GetDB(), a.logger), nil
	default:
		return interaction.NewMemoryStore(), nil
	}
}

// HealthChecks returns a check per open connection
func (a *App) HealthChecks() map[string]handler.HealthCheck {
	checks := map[string]handler.HealthCheck{}
	if a.DB != nil {
		checks["database"] = a.DB.HealthCheck
	}
	if a.Redis != nil {
		checks["redis"] = a.Redis.Ping
	}
	if a.Rabbit != nil {
		rabbit := a.Rabbit
		checks["rabbitmq"] = func(context.Context) error {
			if !rabbit.IsConnected() {
				return rabbitmq.ErrNotConnected
			}
			return nil
		}
	}
	return checks
}

// Close releases every open connection
func (a *App) Close() {
	if a.Rabbit != nil {
		a.Rabbit.Close()
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.logger.Debug("Database pool stats", slog.String("stats", a.DB.Stats()))
		a.DB.Close()
	}
}

// DatabaseConfig converts the database section to a sqldb client config
func DatabaseConfig(cfg *config.DatabaseConfig) *sqldb.Config {
	return &sqldb.Config{
		Driver:          cfg.DriverName(),
		Host:            cfg.Host,
		Port:            cfg.Port,
		User:            cfg.User,
		Password:        cfg.Password,
		Database:        cfg.Database,
		SSLMode:         cfg.SSLMode,
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.ConnMaxIdleTime,
	}
}

// RabbitMQConfig converts the rabbitmq section to a client config
func RabbitMQConfig(cfg *config.RabbitMQConfig) *rabbitmq.Config {
	return &rabbitmq.Config{
		Host:               cfg.Host,
		Port:               cfg.Port,
		User:               cfg.User,
		Password:           cfg.Password,
		VHost:              cfg.VHost,
		ExchangeName:       cfg.Exchange.Name,
		ExchangeType:       cfg.Exchange.Type,
		ExchangeDurable:    cfg.Exchange.Durable,
		ExchangeAutoDelete: cfg.Exchange.AutoDelete,
		QueueName:          cfg.Queue.Name,
		QueueDurable:       cfg.Queue.Durable,
		QueueAutoDelete:    cfg.Queue.AutoDelete,
		QueueExclusive:     cfg.Queue.Exclusive,
		DeadLetterExchange: cfg.Queue.DeadLetterExchange,
		RoutingKey:         cfg.RoutingKey,
		RetryAttempts:      cfg.Connection.RetryAttempts,
		RetryInterval:      cfg.Connection.RetryInterval,
		Heartbeat:          cfg.Connection.Heartbeat,
		ConnectionTimeout:  cfg.Connection.ConnectionTimeout,
		PublishRetries:     cfg.Publish.RetryAttempts,
		PublishRetryDelay:  cfg.Publish.RetryInterval,
		PublishBackoffMult: cfg.Publish.BackoffMultiplier,
	}
}

// RedisConfig converts the redis section to a client config
func RedisConfig(cfg *config.RedisConfig) *redis.Config {
	return &redis.Config{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		KeyPrefix:    cfg.KeyPrefix,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	}
}

// StepsConfig converts the validation limits and service endpoints to a steps config
func StepsConfig(cfg *config.Config) steps.Config {
	service := func(s config.ServiceConfig) steps.ServiceConfig {
		return steps.ServiceConfig{BaseURL: s.BaseURL, APIKey: s.APIKey, Timeout: s.Timeout}
	}

	v := cfg.Pipeline.Validation
	return steps.Config{
		Validation: steps.ValidationLimits{
			MaxSizeBytes:   v.MaxSizeBytes,
			MaxTitleLength: v.MaxTitleLength,
			MaxTags:        v.MaxTags,
			ContentTypes:   v.ContentTypes,
		},
		Transcoder: service(cfg.Services.Transcoder),
		Pinning:    service(cfg.Services.Pinning),
		Origin:     service(cfg.Services.Origin),
		Indexer:    service(cfg.Services.Indexer),
	}
}

// RetryPolicies converts the default and per-step retry sections. Per-step fields left
// unset inherit the default.
func RetryPolicies(cfg *config.PipelineConfig) (pipeline.RetryPolicy, map[string]pipeline.RetryPolicy) {
	def := toPolicy(cfg.Retry)

	perStep := make(map[string]pipeline.RetryPolicy, len(cfg.StepRetry))
	for step, p := range cfg.StepRetry {
		policy := toPolicy(p)
		if policy.MaxAttempts == 0 {
			policy.MaxAttempts = def.MaxAttempts
		}
		if policy.Timeout == 0 {
			policy.Timeout = def.Timeout
		}
		if policy.BaseDelay == 0 {
			policy.BaseDelay = def.BaseDelay
		}
		if policy.Multiplier == 0 {
			policy.Multiplier = def.Multiplier
		}
		if policy.MaxDelay == 0 {
			policy.MaxDelay = def.MaxDelay
		}
		perStep[step] = policy
	}
	return def, perStep
}

func toPolicy(p config.RetryPolicyConfig) pipeline.RetryPolicy {
	return pipeline.RetryPolicy{
		MaxAttempts: p.MaxAttempts,
		Timeout:     p.Timeout,
		BaseDelay:   p.BaseDelay,
		Multiplier:  p.Multiplier,
		MaxDelay:    p.MaxDelay,
	}
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/aretw0/formweave"
	"github.com/aretw0/formweave/internal/config"
	"github.com/aretw0/formweave/internal/logging"
	"github.com/aretw0/formweave/pkg/adapters/file"
	"github.com/aretw0/formweave/pkg/adapters/llm"
	"github.com/aretw0/formweave/pkg/adapters/memory"
	"github.com/aretw0/formweave/pkg/adapters/redis"
	"github.com/aretw0/formweave/pkg/adapters/sqlstore"
	"github.com/aretw0/formweave/pkg/domain"
	"github.com/aretw0/formweave/pkg/observability"
	"github.com/aretw0/formweave/pkg/persistence"
	"github.com/aretw0/formweave/pkg/persistence/middleware"
	"github.com/aretw0/formweave/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Stack is an engine wired from configuration together with the resources it owns.
type Stack struct {
	Engine  *formweave.Engine
	Logger  *slog.Logger
	Config  config.Config
	Metrics *observability.Metrics
	// Registry is set when metrics are enabled.
	Registry *prometheus.Registry

	closers []func(context.Context) error
}

// Close releases the stores and drains pending writes.
func (s *Stack) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i](ctx))
	}
	return errors.Join(errs...)
}

type stores struct {
	connections   ports.ConnectionStore
	conversations ports.ConversationStore
	locker        ports.DistributedLocker
	remote        bool
	close         func(context.Context) error
}

// Build wires an engine from cfg. extra options are applied last.
func Build(ctx context.Context, cfg config.Config, extra ...formweave.Option) (*Stack, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := logging.New(level)
	stack := &Stack{Logger: logger, Config: cfg}

	st, err := openStores(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if st.close != nil {
		stack.closers = append(stack.closers, st.close)
	}

	conversations, err := wrapConversations(st.conversations, cfg)
	if err != nil {
		stack.Close(ctx)
		return nil, err
	}

	opts := []formweave.Option{
		formweave.WithLogger(logger),
		formweave.WithConnectionStore(st.connections),
		formweave.WithConversationStore(conversations),
		formweave.WithGenerationTimeout(cfg.Generator.Timeout),
		formweave.WithMaxAnswerSize(cfg.MaxAnswerSize),
	}
	if st.locker != nil {
		opts = append(opts, formweave.WithLocker(st.locker))
	}
	if st.remote {
		queue := persistence.NewQueue(persistence.WithQueueLogger(logger))
		queue.Start(ctx)
		stack.closers = append(stack.closers, queue.Shutdown)
		opts = append(opts, formweave.WithPersistenceQueue(queue))
	}
	if cfg.Generator.BaseURL != "" {
		opts = append(opts, formweave.WithGenerator(
			llm.New(cfg.Generator.BaseURL, cfg.Generator.Model, cfg.Generator.APIKey, llm.WithLogger(logger))))
	}
	if cfg.Metrics.Enabled {
		stack.Registry = prometheus.NewRegistry()
		stack.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		stack.Metrics = observability.NewMetrics(stack.Registry)
		opts = append(opts, formweave.WithLifecycleHooks(stack.Metrics.Hooks()))
	}
	if level <= slog.LevelDebug {
		opts = append(opts, formweave.WithLifecycleHooks(debugHooks(logger)))
	}

	engine, err := formweave.New(cfg.Dir, append(opts, extra...)...)
	if err != nil {
		stack.Close(ctx)
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	stack.Engine = engine
	return stack, nil
}

func openStores(ctx context.Context, cfg config.StoreConfig) (stores, error) {
	switch cfg.Backend {
	case config.BackendMemory, "":
		return stores{
			connections:   memory.NewConnectionStore(),
			conversations: memory.NewConversationStore(),
		}, nil
	case config.BackendFile:
		return stores{
			connections:   file.NewConnectionStore(cfg.Path),
			conversations: file.NewConversationStore(cfg.Path),
		}, nil
	case config.BackendRedis:
		var opts []redis.Option
		if cfg.TTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.TTL))
		}
		store := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, opts...)
		if err := store.Client().Ping(ctx).Err(); err != nil {
			store.Close()
			return stores{}, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		return stores{
			connections:   store.Connections(),
			conversations: store.Conversations(),
			locker:        redis.NewLocker(store.Client(), redis.DefaultPrefix+"lock:"),
			remote:        true,
			close:         func(context.Context) error { return store.Close() },
		}, nil
	case config.BackendSQLite, config.BackendPostgres:
		driver, dsn := sqlstore.DriverPostgres, cfg.DSN
		if cfg.Backend == config.BackendSQLite {
			driver = sqlstore.DriverSQLite
			if dsn == "" {
				dsn = filepath.Join(cfg.Path, "formweave.db")
			}
		}
		db, err := sqlstore.Open(ctx, driver, dsn)
		if err != nil {
			return stores{}, err
		}
		return stores{
			connections:   db.Connections(),
			conversations: db.Conversations(),
			remote:        cfg.Backend == config.BackendPostgres,
			close:         func(context.Context) error { return db.Close() },
		}, nil
	default:
		return stores{}, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// wrapConversations applies redaction before encryption so masked answers are what gets sealed.
func wrapConversations(store ports.ConversationStore, cfg config.Config) (ports.ConversationStore, error) {
	var mws []middleware.Middleware
	if len(cfg.RedactPatterns) > 0 {
		mws = append(mws, middleware.NewPIIMiddleware(cfg.RedactPatterns))
	}
	if cfg.Encryption.Key != "" {
		active, fallbacks, err := cfg.Encryption.Keys()
		if err != nil {
			return nil, err
		}
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallbacks,
		}))
	}
	return middleware.Chain(store, mws...), nil
}

func debugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnRouted: func(ctx context.Context, e *domain.RoutingEvent) {
			logger.Debug("Routed", "type", e.Type, "source", e.SourceBlockID, "rule_id", e.RuleID, "target", e.TargetBlockID)
		},
		OnMalformedCondition: func(ctx context.Context, e *domain.ConditionEvent) {
			logger.Debug("Malformed Condition", "connection_id", e.ConnectionID, "rule_id", e.RuleID, "err", e.Err)
		},
		OnTurnSubmitted: func(ctx context.Context, e *domain.ConversationEvent) {
			logger.Debug("Turn Submitted", "conversation_id", e.ConversationID, "turn", e.TurnIndex)
		},
		OnGenerationFailed: func(ctx context.Context, e *domain.ConversationEvent) {
			logger.Debug("Generation Failed", "conversation_id", e.ConversationID, "turn", e.TurnIndex, "err", e.Err)
		},
		OnAdvance: func(ctx context.Context, e *domain.ConversationEvent) {
			logger.Debug("Advance", "conversation_id", e.ConversationID, "block_id", e.BlockID)
		},
	}
}

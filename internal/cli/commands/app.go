package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/conduit-lang/crudkit/internal/app/users"
	"github.com/conduit-lang/crudkit/internal/cli/config"
	"github.com/conduit-lang/crudkit/internal/crud/audit"
	"github.com/conduit-lang/crudkit/internal/crud/engine"
	"github.com/conduit-lang/crudkit/internal/crud/hooks"
	"github.com/conduit-lang/crudkit/internal/crud/profile"
	"github.com/conduit-lang/crudkit/internal/crud/resolver"
	"github.com/conduit-lang/crudkit/internal/crud/storage"
	"github.com/conduit-lang/crudkit/internal/crud/storage/memory"
	"github.com/conduit-lang/crudkit/internal/crud/storage/sqlstore"
	"github.com/conduit-lang/crudkit/internal/crud/typeinfo"
)

// App is everything a command needs to send requests
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Engine  *engine.Engine
	Metrics *prometheus.Registry
	Audit   *audit.RedisSink
	// Services resolves type-resolved hooks
	Services *resolver.Container

	closers []func() error
}

// Environment lets tests replace the pieces an App is built from
type Environment struct {
	// Opener replaces the configured database
	Opener storage.Opener
	// Redis replaces the configured audit connection
	Redis *redis.Client
	// Logger replaces the configured logger
	Logger *zap.Logger
}

// NewApp wires storage, audit, metrics and the engine from configuration
func NewApp(ctx context.Context, cfg *config.Config, env Environment) (*App, error) {
	app := &App{Config: cfg, Metrics: prometheus.NewRegistry(), Services: resolver.New()}

	app.Logger = env.Logger
	if app.Logger == nil {
		logger, err := cfg.Log.NewLogger()
		if err != nil {
			return nil, err
		}
		app.Logger = logger
		app.closers = append(app.closers, func() error {
			logger.Sync()
			return nil
		})
	}

	opener := env.Opener
	if opener == nil {
		var err error
		if opener, err = app.openStorage(ctx); err != nil {
			app.Close()
			return nil, err
		}
	}

	var auditHook *hooks.Factory
	switch {
	case env.Redis != nil:
		app.Audit = audit.NewRedisSinkWithClient(env.Redis, app.redisConfig())
	case cfg.Redis.Addr != "":
		sink, err := audit.NewRedisSink(app.redisConfig())
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Audit = sink
		app.closers = append(app.closers, sink.Close)
	}
	if app.Audit != nil {
		recorder := audit.NewRecorder(app.Audit, app.Logger)
		recorder.SkipUnchanged = true
		app.Services.Provide(recorder)
		auditHook = audit.ResolvedHook()
	}

	metrics, err := engine.NewMetrics(app.Metrics)
	if err != nil {
		app.Close()
		return nil, err
	}

	profiles := append(profile.DefaultProfiles(), users.Profiles(users.Options{
		DefaultPageSize: cfg.Paging.DefaultSize,
		Audit:           auditHook,
	})...)
	registry := profile.NewRegistry(profiles, profile.WithLogger(app.Logger))

	app.Engine = engine.New(registry, opener,
		engine.WithLogger(app.Logger),
		engine.WithMetrics(metrics),
		engine.WithValidator(engine.ValidatorFunc(users.Validate)),
		engine.WithResolver(app.Services),
	)
	return app, nil
}

func (a *App) redisConfig() audit.RedisConfig {
	rc := audit.DefaultRedisConfig()
	rc.Addr = a.Config.Redis.Addr
	rc.Password = a.Config.Redis.Password
	rc.DB = a.Config.Redis.DB
	if a.Config.Redis.Key != "" {
		rc.Key = a.Config.Redis.Key
	}
	return rc
}

// openStorage connects the configured database and creates the schema
func (a *App) openStorage(ctx context.Context) (storage.Opener, error) {
	db := a.Config.Database
	if db.Driver == config.DriverMemory {
		a.Logger.Warn("using the in-memory store; nothing is persisted")
		return memory.New(typeinfo.Of[users.User]()), nil
	}

	store, err := sqlstore.Open(db.Driver, db.DSN)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)

	dialect, err := sqlstore.DialectFor(db.Driver)
	if err != nil {
		return nil, err
	}
	if err := users.Migrate(ctx, store.DB(), dialect); err != nil {
		return nil, err
	}
	a.Logger.Debug("database ready", zap.String("driver", db.Driver))
	return store, nil
}

// Close releases connections in reverse order of acquisition
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to close app: %w", err)
	}
	return nil
}

// RequestCounts sums crudkit_requests_total per verb and outcome
func (a *App) RequestCounts() (map[string]float64, error) {
	families, err := a.Metrics.Gather()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]float64)
	for _, mf := range families {
		if mf.GetName() != "crudkit_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			var verb, outcome string
			for _, lp := range m.GetLabel() {
				switch lp.GetName() {
				case "verb":
					verb = lp.GetValue()
				case "outcome":
					outcome = lp.GetValue()
				}
			}
			counts[verb+"/"+outcome] += m.GetCounter().GetValue()
		}
	}
	return counts, nil
}

// Package bootstrap holds the startup sequence the rafflepot binaries share:
// environment, config, logger, database and whichever of redis and pubsub a
// process asks for, torn down in reverse on exit.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"github.com/angelmondragon/rafflepot-backend/pkg/config"
	"github.com/angelmondragon/rafflepot-backend/pkg/db"
	"github.com/angelmondragon/rafflepot-backend/pkg/instance"
	"github.com/angelmondragon/rafflepot-backend/pkg/logger"
	"github.com/angelmondragon/rafflepot-backend/pkg/migrate"
	"github.com/angelmondragon/rafflepot-backend/pkg/pubsub"
	"github.com/angelmondragon/rafflepot-backend/pkg/redis"
)

type Process struct {
	Kind   string
	Config *config.Config
	Logger *logger.Logger
	DB     *db.Client

	closers []namedCloser
	exit    func(int)
}

type namedCloser struct {
	name string
	fn   func() error
}

// Start loads .env (when present) and config, builds the logger at the
// configured level, opens the database and applies dev migrations.
func Start(ctx context.Context, kind string) (*Process, error) {
	boot := logger.New(logger.Options{ServiceName: kind})
	if err := godotenv.Load(); err != nil {
		boot.Warn(ctx, ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.Service.Kind = kind
	if cfg.FeatureFlags.UseSQLite && cfg.App.IsDev() {
		cfg.DB.Driver = db.DriverSQLite
	}

	p := &Process{
		Kind:   kind,
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			Format:      cfg.App.LogFormat,
			WarnStack:   cfg.App.LogWarnStack,
		}),
		exit: os.Exit,
	}

	p.DB, err = db.New(ctx, cfg.DB, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	p.Defer("database", p.DB.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, p.Logger, p.DB); err != nil {
		return nil, multierr.Append(fmt.Errorf("dev migrations: %w", err), p.Close())
	}
	return p, nil
}

// Redis dials redis and registers it for shutdown.
func (p *Process) Redis(ctx context.Context) (*redis.Client, error) {
	client, err := redis.New(ctx, p.Config.Redis, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	p.Defer("redis", client.Close)
	return client, nil
}

// PubSub opens the pubsub client and registers it for shutdown.
func (p *Process) PubSub(ctx context.Context) (*pubsub.Client, error) {
	client, err := pubsub.NewClient(ctx, p.Config.GCP, p.Config.PubSub, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("pubsub: %w", err)
	}
	p.Defer("pubsub", client.Close)
	return client, nil
}

// Defer registers fn to run on Close. Closers run last-registered first.
func (p *Process) Defer(name string, fn func() error) {
	p.closers = append(p.closers, namedCloser{name: name, fn: fn})
}

// Close releases every registered resource and reports all failures.
func (p *Process) Close() error {
	var errs error
	for i := len(p.closers) - 1; i >= 0; i-- {
		c := p.closers[i]
		if err := c.fn(); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("close %s: %w", c.name, err))
		}
	}
	p.closers = nil
	return errs
}

// Must stops the process when a required component failed to build.
func (p *Process) Must(component string, err error) {
	if err == nil {
		return
	}
	p.Logger.Error(context.Background(), "failed to initialize "+component, err)
	p.Shutdown(context.Background(), 1)
}

// Shutdown closes resources, logging any failure, and exits with code.
func (p *Process) Shutdown(ctx context.Context, code int) {
	if err := p.Close(); err != nil {
		p.Logger.Error(ctx, "shutdown.close_failed", err)
	}
	p.exit(code)
}

// SignalContext is cancelled on SIGINT or SIGTERM and carries the fields
// every log line of the process should have.
func (p *Process) SignalContext(extra map[string]any) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	fields := map[string]any{
		"env":         p.Config.App.Env,
		"serviceKind": p.Kind,
		"instance":    instance.GetID(p.Kind),
	}
	for k, v := range extra {
		fields[k] = v
	}
	return p.Logger.WithFields(ctx, fields), stop
}

// Fatal is for failures before a Process exists.
func Fatal(kind string, err error) {
	logger.New(logger.Options{ServiceName: kind}).Error(context.Background(), "failed to start "+kind, err)
	os.Exit(1)
}

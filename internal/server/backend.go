package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/openjobspec/ojs-cron/internal/api"
	"github.com/openjobspec/ojs-cron/internal/kv"
	"github.com/openjobspec/ojs-cron/internal/lock"
	natsbackend "github.com/openjobspec/ojs-cron/internal/nats"
	"github.com/openjobspec/ojs-cron/internal/runlog"
	"github.com/openjobspec/ojs-cron/internal/runner"
	"github.com/openjobspec/ojs-cron/internal/sqlstore"
)

// Backend holds the run log, lock and event components selected by Config.
type Backend struct {
	Store     runlog.Store
	Locker    lock.Locker
	Observers []runner.Observer
	Checks    map[string]api.HealthCheck

	nats    *natsbackend.Conn
	closers []func() error
	logger  *slog.Logger
}

// OpenBackend connects the configured store and lock.
func OpenBackend(ctx context.Context, cfg Config, logger *slog.Logger) (*Backend, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backend{Checks: make(map[string]api.HealthCheck), logger: logger}

	if err := b.openStore(ctx, cfg); err != nil {
		_ = b.Close()
		return nil, err
	}
	if err := b.openLock(ctx, cfg); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) openStore(ctx context.Context, cfg Config) error {
	switch cfg.Store {
	case StoreMemory:
		b.Store = runlog.NewMemoryStore()
	case StoreNATS:
		conn, err := b.connectNATS(ctx, cfg)
		if err != nil {
			return err
		}
		b.Store = kv.NewRunLogStore(conn.RunLog)
	case StorePostgres, StoreSQLite:
		driver, dsn := sqlstore.DriverPostgres, cfg.DatabaseURL
		if cfg.Store == StoreSQLite {
			driver, dsn = sqlstore.DriverSQLite, cfg.SQLitePath
		}
		s, err := sqlstore.Open(ctx, driver, dsn)
		if err != nil {
			return fmt.Errorf("opening %s store: %w", cfg.Store, err)
		}
		b.Store = s
		b.Checks["database"] = s.Health
		b.closers = append(b.closers, s.Close)
		b.logger.Info("connected to database", "driver", driver)
	}
	return nil
}

func (b *Backend) openLock(ctx context.Context, cfg Config) error {
	switch cfg.Lock {
	case LockMemory:
		b.Locker = lock.NewMemory()
	case LockNATS:
		conn, err := b.connectNATS(ctx, cfg)
		if err != nil {
			return err
		}
		host, _ := os.Hostname()
		b.Locker = kv.NewLocker(conn.Locks, host)
	case LockRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("connecting to Redis at %s: %w", cfg.RedisAddr, err)
		}
		b.Locker = lock.NewRedis(client, "ojs-cron:lock:", cfg.LockTTL)
		b.Checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		b.closers = append(b.closers, client.Close)
		b.logger.Info("connected to Redis", "addr", cfg.RedisAddr)
	}
	return nil
}

// connectNATS dials NATS once and shares the connection between the store,
// the lock and the event broker.
func (b *Backend) connectNATS(ctx context.Context, cfg Config) (*natsbackend.Conn, error) {
	if b.nats != nil {
		return b.nats, nil
	}
	conn, err := natsbackend.Connect(ctx, cfg.NatsURL, cfg.LockTTL)
	if err != nil {
		return nil, err
	}
	b.nats = conn

	broker := natsbackend.NewPubSubBroker(conn.NC, b.logger)
	b.Observers = append(b.Observers, broker)
	b.Checks["nats"] = func(context.Context) error { return conn.Health() }
	b.closers = append(b.closers, conn.Close, broker.Close)
	b.logger.Info("connected to NATS", "url", cfg.NatsURL)
	return conn, nil
}

// Close releases every connection in reverse order of opening.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

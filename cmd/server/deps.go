package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/hacking-zone/internal/config"
	"github.com/and161185/hacking-zone/internal/limiter"
	"github.com/and161185/hacking-zone/internal/migrate"
	"github.com/and161185/hacking-zone/internal/repository"
	"github.com/and161185/hacking-zone/internal/repository/memory"
	"github.com/and161185/hacking-zone/internal/repository/mongo"
	"github.com/and161185/hacking-zone/internal/repository/postgres"
)

// deps are the storage-backed collaborators of the account service.
type deps struct {
	accounts repository.AccountRepository
	lim      limiter.Limiter
	pg       *postgres.DB
	closers  []func(context.Context) error
}

func (d *deps) close(ctx context.Context) error {
	var errList []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		errList = append(errList, d.closers[i](ctx))
	}
	return errors.Join(errList...)
}

func openDeps(ctx context.Context, cfg *config.Config, log *zap.Logger) (*deps, error) {
	d := &deps{}
	if err := d.openStore(ctx, cfg.Store, log); err != nil {
		_ = d.close(context.Background())
		return nil, err
	}
	if err := d.openLimiter(ctx, cfg.Limiter, log); err != nil {
		_ = d.close(context.Background())
		return nil, err
	}
	return d, nil
}

func (d *deps) openStore(ctx context.Context, c config.Store, log *zap.Logger) error {
	switch c.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory account store, data is lost on restart")
		d.accounts = memory.New()
	case config.DriverPostgres:
		if c.Migrate {
			if err := migrate.Up(ctx, c.DSN, log); err != nil {
				return err
			}
		}
		db, err := postgres.New(ctx, c.DSN)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		d.pg = db
		d.closers = append(d.closers, func(context.Context) error { db.Close(); return nil })
		d.accounts = postgres.NewAccountRepo(db)
	case config.DriverMongo:
		st, err := mongo.Connect(ctx, c.DSN, c.Database)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, st.Close)
		d.accounts = st.Accounts
	default:
		return fmt.Errorf("unknown store driver %q", c.Driver)
	}
	log.Info("account store ready", zap.String("driver", c.Driver))
	return nil
}

func (d *deps) openLimiter(ctx context.Context, c config.Limiter, log *zap.Logger) error {
	switch c.Driver {
	case config.LimiterNone:
		log.Warn("login rate limiting disabled")
	case config.DriverMemory:
		d.lim = limiter.NewMemory(c.Window, c.Max)
	case config.DriverPostgres:
		if d.pg == nil {
			return errors.New("postgres limiter needs the postgres store")
		}
		pg := limiter.NewPG(d.pg.Raw(), c.Window, c.Max)
		d.lim = pg
		go prune(ctx, pg, c.Window, log)
	case config.LimiterRedis:
		rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr, Password: c.RedisPassword})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return fmt.Errorf("redis ping: %w", err)
		}
		d.closers = append(d.closers, func(context.Context) error { return rdb.Close() })
		d.lim = limiter.NewRedis(rdb, c.Window, c.Max)
	default:
		return fmt.Errorf("unknown limiter driver %q", c.Driver)
	}
	log.Info("login limiter ready", zap.String("driver", c.Driver),
		zap.Duration("window", c.Window), zap.Int("max", c.Max))
	return nil
}

// prune deletes expired attempt rows once per window until ctx ends.
func prune(ctx context.Context, pg *limiter.PG, every time.Duration, log *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := pg.Prune(ctx)
			if err != nil {
				log.Warn("prune login attempts", zap.Error(err))
				continue
			}
			log.Debug("pruned login attempts", zap.Int64("rows", n))
		}
	}
}

// Package app assembles the shared dependencies of the api and worker
// binaries from configuration.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mailsense/internal/ai"
	"mailsense/internal/provider"
	"mailsense/internal/repository"
	"mailsense/internal/service"
	"mailsense/internal/tokenizer"
	"mailsense/pkg/circuitbreaker"
	"mailsense/pkg/config"
	"mailsense/pkg/db"
	"mailsense/pkg/outbox"
	"mailsense/pkg/redis"
	"mailsense/pkg/util"
)

// App 持有两个进程共用的依赖
type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	Repo        service.Repository
	Pool        *pgxpool.Pool
	Outbox      *outbox.Repository
	Redis       *goredis.Client
	MailService *service.MailService

	ping    func(ctx context.Context) error
	closers []func()
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: log}

	if err := a.initStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.initRedis(ctx)

	budgeter, err := tokenizer.NewBudgeter(cfg.Pipeline.Encoding)
	if err != nil {
		a.Close()
		return nil, err
	}

	breakerCfg := circuitbreaker.DefaultConfig()
	breakerCfg.FailureThreshold = cfg.AI.BreakerFailures
	breakerCfg.OpenTimeout = cfg.AI.BreakerOpenDelay
	breakerCfg.IsFailure = ai.IsBreakerFailure
	breakerCfg.OnStateChange = func(from, to circuitbreaker.State) {
		log.Warn("AI circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
	}
	completer := ai.NewClient(ai.Config{
		BaseURL:    cfg.AI.BaseURL,
		APIKey:     cfg.AI.APIKey,
		Model:      cfg.AI.Model,
		Timeout:    cfg.AI.Timeout,
		MaxRetries: cfg.AI.MaxRetries,
	}, circuitbreaker.New(breakerCfg), log)

	var locker service.ThreadLocker = util.NewLocalThreadLocker()
	if a.Redis != nil {
		locker = util.NewRedisThreadLocker(a.Redis, cfg.Pipeline.LockTTL, log)
	}

	pipeline := service.NewPipeline(completer, a.Repo, budgeter, locker, service.Options{
		TokenLimit:     cfg.Pipeline.TokenLimit,
		BodyTokenLimit: cfg.Pipeline.BodyTokenLimit,
		ChunkSize:      cfg.Pipeline.ChunkSize,
		ChunkPause:     cfg.Pipeline.ChunkPause,
		Workers:        cfg.Pipeline.Workers,
	}, log)
	if a.Redis != nil {
		pipeline.WithClaimer(util.NewDeduper(a.Redis, cfg.Pipeline.DedupTTL, log))
	}

	oauthCfg := provider.OAuthConfig(cfg.Google.ClientID, cfg.Google.ClientSecret)
	a.MailService = service.NewMailService(a.Repo, pipeline, service.GmailFactory(oauthCfg, log), cfg.Pipeline.BatchDays, log)

	return a, nil
}

func (a *App) initStore(ctx context.Context) error {
	switch a.Config.Store.Driver {
	case "sqlite":
		path := a.Config.Store.SQLitePath
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		store, err := repository.NewSQLiteStore(path, a.Logger)
		if err != nil {
			return err
		}
		a.Repo = store
		a.ping = store.Ping
		a.closers = append(a.closers, func() { _ = store.Close() })
		a.Logger.Info("Using SQLite store", zap.String("path", path))
	default:
		pool, err := db.NewConnection(ctx, a.Config.DB, a.Logger)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, pool.Close)
		a.Pool = pool
		a.Outbox = outbox.NewRepository(pool)

		store := repository.NewPostgresStore(pool, a.Outbox, a.Logger)
		if err := store.Migrate(ctx); err != nil {
			return err
		}
		a.Repo = store
		a.ping = store.Ping
	}
	return nil
}

// initRedis 连接失败时退回进程内锁，不做跨 worker 去重
func (a *App) initRedis(ctx context.Context) {
	if a.Config.Redis.Addr == "" {
		return
	}
	rdb, err := redis.NewRedisClient(ctx, a.Config.Redis)
	if err != nil {
		a.Logger.Warn("Redis unavailable, using in-process thread locks", zap.Error(err))
		return
	}
	a.Redis = rdb
	a.closers = append(a.closers, func() { _ = rdb.Close() })
}

// Ping checks the store.
func (a *App) Ping(ctx context.Context) error {
	if a.ping == nil {
		return fmt.Errorf("store not initialized")
	}
	return a.ping(ctx)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Package app builds the service object graph from configuration.  The HTTP
// server and the ops CLI share it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"healthfeed/internal/chat"
	"healthfeed/internal/config"
	"healthfeed/internal/core"
	"healthfeed/internal/db"
	httpserver "healthfeed/internal/http"
	"healthfeed/internal/kv"
	"healthfeed/internal/llm"
	"healthfeed/internal/reminder"
	"healthfeed/internal/sms"

	"go.uber.org/zap"
)

// App holds every long-lived dependency.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	DB           *sql.DB
	Repo         *db.Repository
	Orchestrator *core.Orchestrator
	Relay        *chat.Relay
	Reminders    *reminder.Service

	redis *kv.RedisStore
}

// New opens the database and builds the pipeline, relay and reminder
// services.  The caller owns the returned App and must Close it.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	conn, err := db.Open(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, cfg.Database.MaxIdle)
	if err != nil {
		return nil, err
	}
	a, err := build(ctx, cfg, conn, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return a, nil
}

func build(ctx context.Context, cfg *config.Config, conn *sql.DB, logger *zap.Logger) (*App, error) {
	loc, err := time.LoadLocation(cfg.Feed.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid feed timezone: %w", err)
	}

	repo := db.NewRepository(conn, db.NewNotifier(conn, cfg.Feed.NotifyChannel), logger.Named("db"))

	client := llm.NewOpenAIClient(llm.Options{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Timeout:     cfg.LLM.Timeout,
	})
	gen := core.NewFeedGenerator(client, core.SchemaPolicy(cfg.Feed.SchemaPolicy), logger.Named("feed"))
	orch := core.NewOrchestrator(repo, repo, gen, cfg.Feed.BatchWorkers, loc, logger.Named("feed"))

	sender, err := sms.New(ctx, cfg.SMS, logger.Named("sms"))
	if errors.Is(err, sms.ErrNotConfigured) {
		logger.Warn("sms provider not configured, reminders will only be logged", zap.Error(err))
		sender, err = sms.NewLogSender(logger.Named("sms")), nil
	}
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:       cfg,
		Logger:       logger,
		DB:           conn,
		Repo:         repo,
		Orchestrator: orch,
		Relay:        chat.NewRelay(repo, cfg.HTTP.AllowedOrigins, logger.Named("chat")),
	}

	var dedup kv.Store
	if cfg.Redis.Addr != "" {
		store := kv.NewRedisStore(kv.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB))
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		a.redis = store
		dedup = store
	} else {
		logger.Info("REDIS_ADDR not set, reminder dedup is per process")
		dedup = kv.NewMemoryStore()
	}
	a.Reminders = reminder.NewService(repo, sender, cfg.SMS.From, dedup, loc, logger.Named("reminder"))
	return a, nil
}

// Migrate applies the embedded schema.
func (a *App) Migrate(ctx context.Context) error {
	if err := db.Migrate(ctx, a.DB); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Handler returns the HTTP surface.
func (a *App) Handler() http.Handler {
	return httpserver.NewServer(a.Orchestrator, a.Repo, a.Relay, a.Reminders, a.Config.HTTP.AllowedOrigins, a.Logger.Named("http"))
}

// Close releases the database pool and the redis client.
func (a *App) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
	}
	errs = append(errs, a.DB.Close())
	return errors.Join(errs...)
}

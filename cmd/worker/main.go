package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/anurag-sv/bazaar-api/internal/common"
	"github.com/anurag-sv/bazaar-api/internal/config"
	"github.com/anurag-sv/bazaar-api/internal/db"
	"github.com/anurag-sv/bazaar-api/internal/notify"
	"github.com/anurag-sv/bazaar-api/internal/obs"
	"github.com/anurag-sv/bazaar-api/internal/store"
)

func main() {
	logger := obs.NewLogger(os.Getenv("LOG_FORMAT"), os.Getenv("LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}

	var sender common.EmailSender = common.NopEmailSender{}
	if cfg.SMTPHost != "" {
		sender = common.SMTPSender{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}
	} else {
		logger.Warn().Msg("SMTP_HOST not set, mails are discarded")
	}

	worker := &notify.Worker{
		Email: sender,
		Q:     store.New(pool),
		Log:   logger,
	}
	mux := asynq.NewServeMux()
	worker.Register(mux)

	srv := asynq.NewServer(asynq.RedisClientOpt{
		Addr:     redisOpts.Addr,
		Password: redisOpts.Password,
		DB:       redisOpts.DB,
	}, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{"default": 1},
	})

	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start worker")
	}
	logger.Info().Int("concurrency", cfg.WorkerConcurrency).Msg("worker running")

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	srv.Shutdown()
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"mailsense/internal/app"
	"mailsense/internal/mqhandler"
	"mailsense/pkg/config"
	"mailsense/pkg/logger"
	"mailsense/pkg/mq"
	"mailsense/pkg/otel"
	"mailsense/pkg/outbox"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.GetConfigEnv(), config.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		panic(err)
	}
	log := logger.NewLogger(cfg.Log.Level)
	defer log.Sync()

	shutdownTracing, err := otel.Init(ctx, cfg.OTel, log)
	if err != nil {
		log.Warn("OpenTelemetry init failed, continuing without tracing", zap.Error(err))
	}
	defer shutdownTracing(context.Background())

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("App initialization failed", zap.Error(err))
	}
	defer a.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.URL, cfg.MQ.Exchange)
	if err != nil {
		log.Fatal("Failed to init publisher", zap.Error(err))
	}
	defer publisher.Close()

	// outbox 只在 postgres 下存在
	if a.Outbox != nil {
		if n, err := a.Outbox.ReplayFailed(ctx); err != nil {
			log.Warn("Failed to replay failed outbox events", zap.Error(err))
		} else if n > 0 {
			log.Info("Replayed failed outbox events", zap.Int64("count", n))
		}
		go outbox.NewDispatcher(a.Outbox, publisher, log).Start(ctx)
	}

	handler := mqhandler.NewRequestHandler(a.MailService, log)
	consumer, err := mq.NewConsumer(cfg.MQ.URL, cfg.MQ.Exchange, cfg.MQ.Queue, cfg.MQ.Prefetch, handler.RoutingKeys(), publisher, log)
	if err != nil {
		log.Fatal("Failed to init consumer", zap.Error(err))
	}
	defer consumer.Close()
	consumer.SetHandler(handler.Handle)

	log.Info("Worker started", zap.String("queue", cfg.MQ.Queue))
	if err := consumer.StartConsuming(ctx); err != nil {
		log.Error("Consumer stopped", zap.Error(err))
	}
	log.Info("Worker stopped")
}

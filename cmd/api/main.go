package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"mailsense/internal/api"
	"mailsense/internal/app"
	"mailsense/pkg/config"
	"mailsense/pkg/logger"
	"mailsense/pkg/mq"
	"mailsense/pkg/otel"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. 配置与日志
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

	// 2. 存储、模型、邮箱
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("App initialization failed", zap.Error(err))
	}
	defer a.Close()

	checks := map[string]api.Pinger{"db": api.PingFunc(a.Ping)}

	// 3. 异步请求发布（可选）
	var publisher api.Publisher
	if cfg.MQ.URL != "" {
		p, err := mq.NewPublisher(cfg.MQ.URL, cfg.MQ.Exchange)
		if err != nil {
			log.Warn("MQ unavailable, async requests disabled", zap.Error(err))
		} else {
			defer p.Close()
			publisher = p
			checks["mq"] = api.PingFunc(func(context.Context) error {
				if !p.IsConnected() {
					return errors.New("mq connection closed")
				}
				return nil
			})
		}
	}

	// 4. 路由
	handler := api.NewMailHandler(a.MailService, publisher, log)
	router := api.NewRouter(handler, cfg.JWT.Secret, cfg.OTel.ServiceName, checks, log)

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("API listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down API")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
}

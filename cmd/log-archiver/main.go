// Package main 任务事件归档服务入口（log-archiver）
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ai-novel-orchestrator/internal/config"
	"ai-novel-orchestrator/internal/infrastructure/messaging"
	"ai-novel-orchestrator/internal/wire"
	"ai-novel-orchestrator/pkg/logger"
	"ai-novel-orchestrator/pkg/tracer"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
	ctx := context.Background()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "log-archiver",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(ctx) }()

	app, cleanup, err := wire.InitializeArchiver(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize archiver", err)
	}
	defer cleanup()

	if err := app.Consumer.Start(ctx); err != nil {
		logger.Fatal(ctx, "failed to start consumer", err)
	}

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()
	go app.Consumer.MonitorDLQ(monitorCtx, 100)

	log := logger.FromContext(ctx)
	log.Info("log-archiver started", "stream", string(messaging.StreamNovelEvents))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("log-archiver shutting down")
	stopMonitor()
	app.Consumer.Stop()
}

package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"vitals-bridge/internal/config"
	"vitals-bridge/internal/logger"
	"vitals-bridge/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "vitals-bridge")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting vitals-bridge service",
		zap.Int("board_id", cfg.Board.BoardID),
		zap.String("mqtt_broker", cfg.MQTT.Broker),
	)

	// 创建服务
	vitalsService, err := service.NewVitalsService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create vitals service", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 采集循环在后台运行，主协程等待退出条件
	errChan := make(chan error, 1)
	go func() {
		errChan <- vitalsService.Run(ctx)
	}()

	// 等待中断信号或循环退出
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
		if err := <-errChan; err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("Acquisition loop exited with error", zap.Error(err))
		}
	case err := <-errChan:
		if err != nil && !errors.Is(err, context.Canceled) {
			zapLogger.Error("Acquisition loop failed", zap.Error(err))
		}
	}

	// 优雅关闭
	if err := vitalsService.Stop(context.Background()); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}

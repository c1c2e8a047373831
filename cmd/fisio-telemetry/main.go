package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fisio-telemetry/internal/config"
	"fisio-telemetry/internal/logger"
	"fisio-telemetry/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg := config.Load()

	// 初始化Logger
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "fisio-telemetry")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting fisio-telemetry service",
		zap.String("http_addr", cfg.HTTP.Addr),
		zap.String("primary_mode", cfg.PrimaryMode),
		zap.Bool("mqtt_enabled", cfg.MQTT.Enabled),
	)

	// 创建服务
	telemetryService, err := service.NewTelemetryService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create telemetry service", zap.Error(err))
	}

	// 启动服务（HTTP 监听阻塞，放到后台协程）
	errChan := make(chan error, 1)
	go func() {
		if err := telemetryService.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	case err := <-errChan:
		zapLogger.Error("Service failed", zap.Error(err))
	}

	// 优雅关闭
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := telemetryService.Stop(shutdownCtx); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}

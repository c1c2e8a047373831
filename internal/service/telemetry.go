package service

import (
	"context"
	"database/sql"
	"fmt"

	"fisio-telemetry/internal/aggregate"
	"fisio-telemetry/internal/config"
	"fisio-telemetry/internal/database"
	"fisio-telemetry/internal/display"
	"fisio-telemetry/internal/httpapi"
	"fisio-telemetry/internal/mqtt"
	"fisio-telemetry/internal/persist"
	"fisio-telemetry/internal/redisx"
	"fisio-telemetry/internal/reward"
	"fisio-telemetry/internal/session"
	"fisio-telemetry/internal/store"
	"fisio-telemetry/internal/stream"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// TelemetryService 遥测服务：装配采样入站、会话注册表、双写与报表
type TelemetryService struct {
	config     *config.Config
	logger     *zap.Logger
	db         *sql.DB
	redis      *redis.Client
	mqttClient *mqtt.Client
	mqttIngest *stream.MQTTIngest
	server     *Server
}

// NewTelemetryService 创建遥测服务
func NewTelemetryService(cfg *config.Config, logger *zap.Logger) (*TelemetryService, error) {
	svc := &TelemetryService{
		config: cfg,
		logger: logger,
	}

	// 初始化 Redis（镜像库 + 奖励事件流）
	redisClient := redisx.NewClient(&cfg.Redis)
	if err := redisx.Ping(context.Background(), redisClient); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	svc.redis = redisClient

	// 主库：postgres 直写 / 远端存储服务 / 内存（开发用）
	primary, err := svc.newPrimaryStore()
	if err != nil {
		return nil, err
	}
	mirror := store.NewRedisMirror(redisClient)

	registry := session.NewRegistry(cfg.WindowCapacity, logger)
	notifier := reward.NewStreamNotifier(redisClient, cfg.RewardStream)
	registry.OnSessionEnd(reward.NewTrigger(notifier, logger).Hook())

	coord := persist.NewCoordinator(primary, mirror, persist.Config{
		PrimaryTimeout: cfg.Persist.PrimaryTimeout,
		MirrorTimeout:  cfg.Persist.MirrorTimeout,
		MaxAttempts:    cfg.Persist.MaxAttempts,
		RetryBackoff:   cfg.Persist.RetryBackoff,
		QueueDepth:     cfg.Persist.QueueDepth,
		DrainGrace:     cfg.Persist.DrainGrace,
	}, logger)

	aggregator := aggregate.NewAggregator(primary, logger)

	// MQTT 入站（可选，设备直连上报）
	if cfg.MQTT.Enabled {
		mqttClient, err := mqtt.NewClient(&cfg.MQTT, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to MQTT: %w", err)
		}
		svc.mqttClient = mqttClient
		svc.mqttIngest = stream.NewMQTTIngest(mqttClient, registry, coord, cfg.MQTT.Topic, cfg.MQTT.QoS, logger)
	}

	scale := display.ScaleConfig{
		Baseline: cfg.Display.Baseline,
		Offset:   cfg.Display.Offset,
		Span:     cfg.Display.Span,
	}
	wsIngest := stream.NewWSIngest(registry, coord, scale, cfg.Display.Alpha, logger)

	router := httpapi.NewRouter(logger)
	router.RegisterTelemetryRoutes(httpapi.NewTelemetryHandler(registry, aggregator, primary, logger))
	router.RegisterStreamRoutes(wsIngest)
	router.RegisterHealthRoutes()

	svc.server = NewServer(cfg.HTTP.Addr, router, logger)
	return svc, nil
}

// newPrimaryStore 按 PrimaryMode 选择主库实现。
// postgres 模式下数据库不可用时退化到内存主库（采样不持久，仅开发时可接受）。
func (s *TelemetryService) newPrimaryStore() (store.PrimaryStore, error) {
	switch s.config.PrimaryMode {
	case "http":
		s.logger.Info("Using remote HTTP primary store",
			zap.String("address", s.config.PrimaryAddress),
		)
		return store.NewHTTPPrimary(s.config.PrimaryAddress, s.logger), nil
	case "memory":
		s.logger.Warn("Using in-memory primary store, samples are not durable")
		return store.NewMemoryPrimary(), nil
	case "postgres":
		db, err := database.NewPostgresDB(&s.config.Database)
		if err != nil {
			s.logger.Warn("Database unavailable, falling back to in-memory primary store",
				zap.Error(err),
			)
			return store.NewMemoryPrimary(), nil
		}
		s.db = db
		return store.NewPostgresPrimary(db, s.logger), nil
	default:
		return nil, fmt.Errorf("unknown primary mode: %s", s.config.PrimaryMode)
	}
}

// Start 启动服务组件；HTTP 监听阻塞在调用方
func (s *TelemetryService) Start() error {
	s.logger.Info("Starting telemetry service components")

	if s.mqttIngest != nil {
		if err := s.mqttIngest.Start(); err != nil {
			return fmt.Errorf("failed to start MQTT ingest: %w", err)
		}
	}
	return s.server.Start()
}

// Stop 停止服务
func (s *TelemetryService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping telemetry service")

	if s.mqttIngest != nil {
		s.mqttIngest.Stop()
	}
	if s.mqttClient != nil {
		s.mqttClient.Disconnect()
	}

	err := s.server.Stop(ctx)

	if s.redis != nil {
		if cerr := s.redis.Close(); cerr != nil {
			s.logger.Error("Error closing redis client", zap.Error(cerr))
		}
	}
	if s.db != nil {
		if cerr := s.db.Close(); cerr != nil {
			s.logger.Error("Error closing database", zap.Error(cerr))
		}
	}
	return err
}

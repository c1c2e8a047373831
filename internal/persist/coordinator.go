package persist

import (
	"context"
	"fmt"
	"time"

	"fisio-telemetry/internal/models"
	"fisio-telemetry/internal/store"

	"go.uber.org/zap"
)

// Config 双写协调器配置
type Config struct {
	PrimaryTimeout time.Duration
	MirrorTimeout  time.Duration
	MaxAttempts    int
	RetryBackoff   time.Duration
	QueueDepth     int
	DrainGrace     time.Duration
}

func (c Config) withDefaults() Config {
	if c.PrimaryTimeout <= 0 {
		c.PrimaryTimeout = 5 * time.Second
	}
	if c.MirrorTimeout <= 0 {
		c.MirrorTimeout = 2 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = 200 * time.Millisecond
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 256
	}
	if c.DrainGrace <= 0 {
		c.DrainGrace = 3 * time.Second
	}
	return c
}

// Outcome 双写结果，两路独立上报
type Outcome struct {
	Primary error
	Mirror  error
}

// Coordinator 双写协调器：每条记录向主库和镜像各发起一次独立写入，
// 一路失败不回滚另一路（无跨库事务）。
// 主库失败对调用方是可重试错误；镜像失败记日志后吞掉——
// 镜像是尽力而为的冗余副本，不是正确性依赖。
type Coordinator struct {
	primary store.PrimaryStore
	mirror  store.MirrorStore
	cfg     Config
	logger  *zap.Logger
}

// NewCoordinator 创建双写协调器
func NewCoordinator(primary store.PrimaryStore, mirror store.MirrorStore, cfg Config, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		primary: primary,
		mirror:  mirror,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
}

// Persist 双写一条记录。
// 镜像路与主库路并发执行：镜像受 mirrorCtx（会话上下文）约束，
// 会话结束即中止在途镜像写入；主库路受 ctx 约束，带有界重试。
// 两路都结束后返回各自结果，镜像错误不会作为 error 抛出。
func (c *Coordinator) Persist(ctx context.Context, mirrorCtx context.Context, patientID string, rec *models.PersistedRecord) Outcome {
	mirrorDone := make(chan error, 1)
	go func() {
		mctx, cancel := context.WithTimeout(mirrorCtx, c.cfg.MirrorTimeout)
		defer cancel()
		mirrorDone <- c.mirror.Append(mctx, patientID, rec.SessionID, rec)
	}()

	primaryErr := c.writePrimary(ctx, patientID, rec)

	mirrorErr := <-mirrorDone
	if mirrorErr != nil {
		c.logger.Warn("mirror write failed, continuing",
			zap.String("patient_id", patientID),
			zap.String("session_id", rec.SessionID),
			zap.Error(mirrorErr),
		)
	}
	if primaryErr != nil {
		c.logger.Error("primary write failed",
			zap.String("patient_id", patientID),
			zap.String("session_id", rec.SessionID),
			zap.Error(primaryErr),
		)
	}
	return Outcome{Primary: primaryErr, Mirror: mirrorErr}
}

// writePrimary 主库写入：每次尝试带超时，有界重试后放弃
func (c *Coordinator) writePrimary(ctx context.Context, patientID string, rec *models.PersistedRecord) error {
	var err error
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		actx, cancel := context.WithTimeout(ctx, c.cfg.PrimaryTimeout)
		err = c.primary.SaveRecord(actx, patientID, rec)
		cancel()
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("primary write abandoned: %w", ctx.Err())
		}
		if attempt < c.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("primary write abandoned: %w", ctx.Err())
			case <-time.After(c.cfg.RetryBackoff):
			}
		}
	}
	return fmt.Errorf("primary write failed after %d attempts: %w", c.cfg.MaxAttempts, err)
}

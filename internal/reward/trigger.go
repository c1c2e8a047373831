package reward

import (
	"context"
	"time"

	"fisio-telemetry/internal/redisx"
	"fisio-telemetry/internal/session"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Notifier 会话结束通知的下游出口
type Notifier interface {
	SessionEnded(ctx context.Context, patientID, sessionID string, endedAt time.Time) error
}

// SessionEndedEvent 发布到事件流的消息体
type SessionEndedEvent struct {
	PatientID string    `json:"patient_id"`
	SessionID string    `json:"session_id"`
	EndedAt   time.Time `json:"ended_at"`
}

// StreamNotifier 把会话结束事件发布到 Redis Streams，
// 由奖励/UI 消费端（庆祝动画等）订阅
type StreamNotifier struct {
	client *redis.Client
	stream string
}

// NewStreamNotifier 创建事件流通知器
func NewStreamNotifier(client *redis.Client, stream string) *StreamNotifier {
	return &StreamNotifier{client: client, stream: stream}
}

func (n *StreamNotifier) SessionEnded(ctx context.Context, patientID, sessionID string, endedAt time.Time) error {
	_, err := redisx.PublishJSONToStream(ctx, n.client, n.stream, SessionEndedEvent{
		PatientID: patientID,
		SessionID: sessionID,
		EndedAt:   endedAt,
	})
	return err
}

// Trigger 会话结束一次性通知。
// 每次 ACTIVE→ENDED 迁移恰好触发一次（由注册表的迁移保证），
// 与持久化结果解耦：它通报的是会话完成，不是数据落盘——
// 即使该会话所有写入都失败也要触发。
type Trigger struct {
	notifier Notifier
	timeout  time.Duration
	logger   *zap.Logger
}

// NewTrigger 创建触发器
func NewTrigger(notifier Notifier, logger *zap.Logger) *Trigger {
	return &Trigger{
		notifier: notifier,
		timeout:  3 * time.Second,
		logger:   logger,
	}
}

// Hook 返回挂到会话注册表上的结束钩子。通知失败只记日志。
func (t *Trigger) Hook() session.EndHook {
	return func(patientID, sessionID string, endedAt time.Time) {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if err := t.notifier.SessionEnded(ctx, patientID, sessionID, endedAt); err != nil {
			t.logger.Warn("session end notification failed",
				zap.String("patient_id", patientID),
				zap.String("session_id", sessionID),
				zap.Error(err),
			)
			return
		}
		t.logger.Info("reward trigger fired",
			zap.String("patient_id", patientID),
			zap.String("session_id", sessionID),
		)
	}
}

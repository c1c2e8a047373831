package store

import (
	"context"
	"errors"
	"time"

	"fisio-telemetry/internal/models"
)

// ErrNotFound 查询目标会话没有任何记录
var ErrNotFound = errors.New("no records found for session")

// PrimaryStore 主库：采样的权威副本，聚合查询只读主库。
// 写入失败对调用方是可重试错误（由双写协调器做有界重试）。
// 会话备注作为主库的边表一并归属于此。
type PrimaryStore interface {
	SaveRecord(ctx context.Context, patientID string, rec *models.PersistedRecord) error
	ListRecords(ctx context.Context, patientID, sessionID string) ([]models.PersistedRecord, error)
	ListSessionIDs(ctx context.Context, patientID string) ([]string, error)
	AppendComment(ctx context.Context, patientID, sessionID string, c *models.Comment) error
	ListComments(ctx context.Context, patientID, sessionID string) ([]models.Comment, error)
	DeleteComment(ctx context.Context, patientID, sessionID string, at time.Time) error
}

// MirrorStore 镜像库：尽力而为的冗余副本，不是正确性依赖。
// 写入失败只记日志；聚合查询永远不读镜像。
type MirrorStore interface {
	Append(ctx context.Context, patientID, sessionID string, rec *models.PersistedRecord) error
}

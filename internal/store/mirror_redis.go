package store

import (
	"context"
	"encoding/json"
	"fmt"

	"fisio-telemetry/internal/models"

	"github.com/go-redis/redis/v8"
)

// RedisMirror 镜像库的 Redis 实现：按会话追加到
// patients:{patient_id}:sensor_data:{session_id} 流。
// 只追加，不回读；镜像副本允许落后或缺失。
type RedisMirror struct {
	client *redis.Client
}

// NewRedisMirror 创建 Redis 镜像库
func NewRedisMirror(client *redis.Client) *RedisMirror {
	return &RedisMirror{client: client}
}

// Append 追加一条采样记录到会话流
func (s *RedisMirror) Append(ctx context.Context, patientID, sessionID string, rec *models.PersistedRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	key := fmt.Sprintf("patients:%s:sensor_data:%s", patientID, sessionID)
	if err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: key,
		Values: map[string]interface{}{"data": string(payload)},
	}).Err(); err != nil {
		return fmt.Errorf("failed to append to mirror stream: %w", err)
	}
	return nil
}

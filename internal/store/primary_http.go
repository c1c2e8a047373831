package store

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"fisio-telemetry/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// HTTPPrimary 主库的远端 HTTP 实现。
// 写入：POST /save-sensor-data/{patient_id}
// 读取：GET  /sensor-data/{patient_id}/sessions
//
//	GET  /sensor-data/{patient_id}/{session_id}
//	GET/POST /sensor-data/{patient_id}/{session_id}/comments
//	DELETE   /sensor-data/{patient_id}/{session_id}/comments/{timestamp}
//
// 非 2xx 响应对写入路径是可重试错误；重试由双写协调器负责，
// 客户端本身不做重试以免叠加。
type HTTPPrimary struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewHTTPPrimary 创建远端主库客户端
func NewHTTPPrimary(baseURL string, logger *zap.Logger) *HTTPPrimary {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &HTTPPrimary{
		httpClient: client,
		logger:     logger,
	}
}

// SaveRecord 写入一条采样记录
func (s *HTTPPrimary) SaveRecord(ctx context.Context, patientID string, rec *models.PersistedRecord) error {
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(rec).
		Post(fmt.Sprintf("/save-sensor-data/%s", patientID))
	if err != nil {
		return fmt.Errorf("failed to save sensor data: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("primary store rejected write: status %d", resp.StatusCode())
	}
	return nil
}

// ListRecords 读取会话的全部采样
func (s *HTTPPrimary) ListRecords(ctx context.Context, patientID, sessionID string) ([]models.PersistedRecord, error) {
	var records []models.PersistedRecord
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetResult(&records).
		Get(fmt.Sprintf("/sensor-data/%s/%s", patientID, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("primary store read failed: status %d", resp.StatusCode())
	}
	return records, nil
}

// ListSessionIDs 读取患者历史会话 ID
func (s *HTTPPrimary) ListSessionIDs(ctx context.Context, patientID string) ([]string, error) {
	var ids []string
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetResult(&ids).
		Get(fmt.Sprintf("/sensor-data/%s/sessions", patientID))
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("primary store read failed: status %d", resp.StatusCode())
	}
	return ids, nil
}

// AppendComment 追加会话备注
func (s *HTTPPrimary) AppendComment(ctx context.Context, patientID, sessionID string, c *models.Comment) error {
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetBody(c).
		Post(fmt.Sprintf("/sensor-data/%s/%s/comments", patientID, sessionID))
	if err != nil {
		return fmt.Errorf("failed to append comment: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("primary store rejected comment: status %d", resp.StatusCode())
	}
	return nil
}

// ListComments 读取会话备注
func (s *HTTPPrimary) ListComments(ctx context.Context, patientID, sessionID string) ([]models.Comment, error) {
	var comments []models.Comment
	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetResult(&comments).
		Get(fmt.Sprintf("/sensor-data/%s/%s/comments", patientID, sessionID))
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("primary store read failed: status %d", resp.StatusCode())
	}
	return comments, nil
}

// DeleteComment 按时间戳删除备注
func (s *HTTPPrimary) DeleteComment(ctx context.Context, patientID, sessionID string, at time.Time) error {
	resp, err := s.httpClient.R().
		SetContext(ctx).
		Delete(fmt.Sprintf("/sensor-data/%s/%s/comments/%s", patientID, sessionID, at.UTC().Format(time.RFC3339Nano)))
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.IsError() {
		return fmt.Errorf("primary store rejected delete: status %d", resp.StatusCode())
	}
	return nil
}

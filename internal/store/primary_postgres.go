package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"fisio-telemetry/internal/models"

	"go.uber.org/zap"
)

// PostgresPrimary 主库的 Postgres 实现（本服务直写模式）。
// sensor_readings 存采样，session_comments 作为会话元数据边表。
type PostgresPrimary struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewPostgresPrimary 创建 Postgres 主库
func NewPostgresPrimary(db *sql.DB, logger *zap.Logger) *PostgresPrimary {
	return &PostgresPrimary{db: db, logger: logger}
}

// SaveRecord 插入一条采样记录
func (s *PostgresPrimary) SaveRecord(ctx context.Context, patientID string, rec *models.PersistedRecord) error {
	query := `
		INSERT INTO sensor_readings (
			patient_id,
			session_id,
			flex_measurement,
			emg_measurement,
			time_of_reading
		) VALUES ($1, $2, $3, $4, $5)
	`

	_, err := s.db.ExecContext(ctx, query,
		patientID,
		rec.SessionID,
		rec.FlexMeasurement,
		rec.EmgMeasurement,
		rec.TimeOfReading,
	)
	if err != nil {
		return fmt.Errorf("failed to insert sensor reading: %w", err)
	}
	return nil
}

// ListRecords 按读数时间升序返回会话的全部采样
func (s *PostgresPrimary) ListRecords(ctx context.Context, patientID, sessionID string) ([]models.PersistedRecord, error) {
	query := `
		SELECT session_id, flex_measurement, emg_measurement, time_of_reading
		FROM sensor_readings
		WHERE patient_id = $1 AND session_id = $2
		ORDER BY time_of_reading ASC
	`

	rows, err := s.db.QueryContext(ctx, query, patientID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sensor readings: %w", err)
	}
	defer rows.Close()

	var records []models.PersistedRecord
	for rows.Next() {
		var rec models.PersistedRecord
		if err := rows.Scan(&rec.SessionID, &rec.FlexMeasurement, &rec.EmgMeasurement, &rec.TimeOfReading); err != nil {
			return nil, fmt.Errorf("failed to scan sensor reading: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sensor readings: %w", err)
	}
	return records, nil
}

// ListSessionIDs 返回患者的历史会话 ID（会话 ID 时间戳派生，升序即时间序）
func (s *PostgresPrimary) ListSessionIDs(ctx context.Context, patientID string) ([]string, error) {
	query := `
		SELECT DISTINCT session_id
		FROM sensor_readings
		WHERE patient_id = $1
		ORDER BY session_id ASC
	`

	rows, err := s.db.QueryContext(ctx, query, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}
	return ids, nil
}

// AppendComment 追加会话备注
func (s *PostgresPrimary) AppendComment(ctx context.Context, patientID, sessionID string, c *models.Comment) error {
	query := `
		INSERT INTO session_comments (patient_id, session_id, comment, created_at)
		VALUES ($1, $2, $3, $4)
	`

	_, err := s.db.ExecContext(ctx, query, patientID, sessionID, c.Comment, c.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return nil
}

// ListComments 按时间升序返回会话备注
func (s *PostgresPrimary) ListComments(ctx context.Context, patientID, sessionID string) ([]models.Comment, error) {
	query := `
		SELECT comment, created_at
		FROM session_comments
		WHERE patient_id = $1 AND session_id = $2
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, patientID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	defer rows.Close()

	var comments []models.Comment
	for rows.Next() {
		c := models.Comment{SessionID: sessionID}
		if err := rows.Scan(&c.Comment, &c.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}
	return comments, nil
}

// DeleteComment 按时间戳键删除备注
func (s *PostgresPrimary) DeleteComment(ctx context.Context, patientID, sessionID string, at time.Time) error {
	query := `
		DELETE FROM session_comments
		WHERE patient_id = $1 AND session_id = $2 AND created_at = $3
	`

	res, err := s.db.ExecContext(ctx, query, patientID, sessionID, at)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

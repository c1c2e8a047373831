package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fisio-telemetry/internal/aggregate"
	"fisio-telemetry/internal/models"
	"fisio-telemetry/internal/session"
	"fisio-telemetry/internal/store"

	"go.uber.org/zap"
)

// TelemetryHandler 会话控制与报表 Handler
type TelemetryHandler struct {
	registry   *session.Registry
	aggregator *aggregate.Aggregator
	primary    store.PrimaryStore
	logger     *zap.Logger
}

// NewTelemetryHandler 创建会话控制与报表 Handler
func NewTelemetryHandler(
	registry *session.Registry,
	aggregator *aggregate.Aggregator,
	primary store.PrimaryStore,
	logger *zap.Logger,
) *TelemetryHandler {
	return &TelemetryHandler{
		registry:   registry,
		aggregator: aggregator,
		primary:    primary,
		logger:     logger,
	}
}

// Dispatch 解析 /data/api/v1/patients/{id}/sessions... 下的子路径并分发。
// 支持的路由：
//
//	GET    /data/api/v1/patients/{id}/sessions
//	POST   /data/api/v1/patients/{id}/sessions/start
//	POST   /data/api/v1/patients/{id}/sessions/stop
//	GET    /data/api/v1/patients/{id}/sessions/{sid}/metrics
//	GET    /data/api/v1/patients/{id}/sessions/{sid}/flex
//	GET    /data/api/v1/patients/{id}/sessions/{sid}/emg
//	GET    /data/api/v1/patients/{id}/sessions/{sid}/comments
//	POST   /data/api/v1/patients/{id}/sessions/{sid}/comments
//	DELETE /data/api/v1/patients/{id}/sessions/{sid}/comments/{timestamp}
//	GET    /data/api/v1/patients/{id}/sessions/{sid}/export
func (h *TelemetryHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/data/api/v1/patients/")
	parts := strings.Split(strings.TrimSuffix(path, "/"), "/")

	if len(parts) < 2 || parts[0] == "" || parts[1] != "sessions" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	patientID := parts[0]

	switch {
	case len(parts) == 2:
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ListSessions(w, r, patientID)

	case len(parts) == 3 && parts[2] == "start":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.StartSession(w, r, patientID)

	case len(parts) == 3 && parts[2] == "stop":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.StopSession(w, r, patientID)

	case len(parts) == 4:
		sessionID := parts[2]
		switch parts[3] {
		case "metrics":
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.GetMetrics(w, r, patientID, sessionID)
		case "flex":
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.GetSeries(w, r, patientID, sessionID, models.ChannelFlex)
		case "emg":
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.GetSeries(w, r, patientID, sessionID, models.ChannelEmg)
		case "comments":
			switch r.Method {
			case http.MethodGet:
				h.ListComments(w, r, patientID, sessionID)
			case http.MethodPost:
				h.AddComment(w, r, patientID, sessionID)
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		case "export":
			if r.Method != http.MethodGet {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			h.ExportSession(w, r, patientID, sessionID)
		default:
			w.WriteHeader(http.StatusNotFound)
		}

	case len(parts) == 5 && parts[3] == "comments":
		if r.Method != http.MethodDelete {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.DeleteComment(w, r, patientID, parts[2], parts[4])

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// StartSession 开始会话。患者已有 ACTIVE 会话时返回 409，现有会话不受影响。
func (h *TelemetryHandler) StartSession(w http.ResponseWriter, r *http.Request, patientID string) {
	sessionID, err := h.registry.StartSession(patientID)
	if err != nil {
		if errors.Is(err, session.ErrAlreadyActive) {
			writeError(w, http.StatusConflict, "patient already has an active session")
			return
		}
		h.logger.Error("Failed to start session",
			zap.Error(err),
			zap.String("patient_id", patientID),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": sessionID})
}

// StopSession 结束会话。幂等：对没有 ACTIVE 会话的患者调用也返回 200。
func (h *TelemetryHandler) StopSession(w http.ResponseWriter, r *http.Request, patientID string) {
	h.registry.EndSession(patientID)
	writeJSON(w, http.StatusOK, map[string]bool{"stopped": true})
}

// ListSessions 患者历史会话列表
func (h *TelemetryHandler) ListSessions(w http.ResponseWriter, r *http.Request, patientID string) {
	overviews, err := h.aggregator.ListSessions(r.Context(), patientID)
	if err != nil {
		h.logger.Error("Failed to list sessions",
			zap.Error(err),
			zap.String("patient_id", patientID),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": overviews})
}

// GetMetrics 会话汇总指标
func (h *TelemetryHandler) GetMetrics(w http.ResponseWriter, r *http.Request, patientID, sessionID string) {
	summary, err := h.aggregator.Summarize(r.Context(), patientID, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("Failed to summarize session",
			zap.Error(err),
			zap.String("patient_id", patientID),
			zap.String("session_id", sessionID),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetSeries 会话单通道原始值序列
func (h *TelemetryHandler) GetSeries(w http.ResponseWriter, r *http.Request, patientID, sessionID string, ch models.SignalChannel) {
	values, err := h.aggregator.Series(r.Context(), patientID, sessionID, ch)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		h.logger.Error("Failed to load session series",
			zap.Error(err),
			zap.String("patient_id", patientID),
			zap.String("session_id", sessionID),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"values":     values,
	})
}

// ListComments 会话备注列表
func (h *TelemetryHandler) ListComments(w http.ResponseWriter, r *http.Request, patientID, sessionID string) {
	comments, err := h.aggregator.Comments(r.Context(), patientID, sessionID)
	if err != nil {
		h.logger.Error("Failed to list comments",
			zap.Error(err),
			zap.String("patient_id", patientID),
			zap.String("session_id", sessionID),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

// AddComment 追加会话备注。未带时间戳时取服务器时间作为键。
func (h *TelemetryHandler) AddComment(w http.ResponseWriter, r *http.Request, patientID, sessionID string) {
	var body struct {
		Comment   string     `json:"comment"`
		Timestamp *time.Time `json:"timestamp"`
	}
	if err := readBodyJSON(r, &body); err != nil || body.Comment == "" {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}

	at := time.Now().UTC()
	if body.Timestamp != nil {
		at = body.Timestamp.UTC()
	}

	c := &models.Comment{
		SessionID: sessionID,
		Comment:   body.Comment,
		Timestamp: at,
	}
	if err := h.primary.AppendComment(r.Context(), patientID, sessionID, c); err != nil {
		h.logger.Error("Failed to append comment",
			zap.Error(err),
			zap.String("patient_id", patientID),
			zap.String("session_id", sessionID),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteComment 按时间戳键删除会话备注
func (h *TelemetryHandler) DeleteComment(w http.ResponseWriter, r *http.Request, patientID, sessionID, timestamp string) {
	at, err := time.Parse(time.RFC3339Nano, timestamp)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid timestamp")
		return
	}

	if err := h.primary.DeleteComment(r.Context(), patientID, sessionID, at); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "comment not found")
			return
		}
		h.logger.Error("Failed to delete comment",
			zap.Error(err),
			zap.String("patient_id", patientID),
			zap.String("session_id", sessionID),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
}

// ExportSession 导出会话报表 Excel（汇总 + 采样 + 备注）
func (h *TelemetryHandler) ExportSession(w http.ResponseWriter, r *http.Request, patientID, sessionID string) {
	summary, err := h.aggregator.Summarize(r.Context(), patientID, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	records, err := h.primary.ListRecords(r.Context(), patientID, sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	comments, err := h.primary.ListComments(r.Context(), patientID, sessionID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	excelData, err := GenerateSessionReport(summary, records, comments)
	if err != nil {
		h.logger.Error("Failed to generate session report",
			zap.Error(err),
			zap.String("patient_id", patientID),
			zap.String("session_id", sessionID),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=session-%s.xlsx", sessionID))
	w.WriteHeader(http.StatusOK)
	w.Write(excelData)
}

package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"fisio-telemetry/internal/aggregate"
	"fisio-telemetry/internal/models"
	"fisio-telemetry/internal/persist"
	"fisio-telemetry/internal/reward"
	"fisio-telemetry/internal/session"
	"fisio-telemetry/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopMirror struct{}

func (nopMirror) Append(ctx context.Context, patientID, sessionID string, rec *models.PersistedRecord) error {
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) SessionEnded(ctx context.Context, patientID, sessionID string, endedAt time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, patientID+"/"+sessionID)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func newTestRouter(t *testing.T) (*Router, *session.Registry, *store.MemoryPrimary) {
	t.Helper()
	logger := zap.NewNop()
	primary := store.NewMemoryPrimary()
	registry := session.NewRegistry(50, logger)
	aggregator := aggregate.NewAggregator(primary, logger)

	router := NewRouter(logger)
	router.RegisterTelemetryRoutes(NewTelemetryHandler(registry, aggregator, primary, logger))
	router.RegisterHealthRoutes()
	return router, registry, primary
}

func doRequest(router *Router, method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestStartSession_RejectsSecondStart(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodPost, "/data/api/v1/patients/patient-1/sessions/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp["session_id"])

	// 同一患者的第二次 start 被拒绝，第一个会话不受影响
	rec = doRequest(router, http.MethodPost, "/data/api/v1/patients/patient-1/sessions/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// 不同患者互不影响
	rec = doRequest(router, http.MethodPost, "/data/api/v1/patients/patient-2/sessions/start", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStopSession_Idempotent(t *testing.T) {
	router, _, _ := newTestRouter(t)

	// 没有 ACTIVE 会话时 stop 也是 200
	rec := doRequest(router, http.MethodPost, "/data/api/v1/patients/patient-1/sessions/stop", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	doRequest(router, http.MethodPost, "/data/api/v1/patients/patient-1/sessions/start", nil)
	rec = doRequest(router, http.MethodPost, "/data/api/v1/patients/patient-1/sessions/stop", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = doRequest(router, http.MethodPost, "/data/api/v1/patients/patient-1/sessions/stop", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetMetrics_NotFound(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/data/api/v1/patients/patient-1/sessions/no-such-session/metrics", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMetrics_Summary(t *testing.T) {
	router, _, primary := newTestRouter(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	flex := []float64{3, 7, 1, 9, 5}
	for i, v := range flex {
		err := primary.SaveRecord(context.Background(), "patient-1", &models.PersistedRecord{
			SessionID:       "s-1",
			FlexMeasurement: v,
			EmgMeasurement:  v / 2,
			TimeOfReading:   base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	rec := doRequest(router, http.MethodGet, "/data/api/v1/patients/patient-1/sessions/s-1/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summary models.SessionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 9.0, summary.MaxFlex)
	assert.Equal(t, []float64{9, 7, 5, 3, 1}, summary.TopFlexValues)
	assert.Equal(t, 4.0, summary.Duration)
	assert.Equal(t, 5, summary.SampleCount)
}

func TestComments_AppendListDelete(t *testing.T) {
	router, _, _ := newTestRouter(t)

	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := doRequest(router, http.MethodPost, "/data/api/v1/patients/patient-1/sessions/s-1/comments", map[string]any{
		"comment":   "good progress on extension",
		"timestamp": at,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodGet, "/data/api/v1/patients/patient-1/sessions/s-1/comments", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp struct {
		Comments []models.Comment `json:"comments"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Len(t, listResp.Comments, 1)
	assert.Equal(t, "good progress on extension", listResp.Comments[0].Comment)

	// 时间戳是删除键
	path := "/data/api/v1/patients/patient-1/sessions/s-1/comments/" + url.PathEscape(at.Format(time.RFC3339Nano))
	rec = doRequest(router, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(router, http.MethodDelete, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAddComment_InvalidBody(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodPost, "/data/api/v1/patients/patient-1/sessions/s-1/comments", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportSession_Workbook(t *testing.T) {
	router, _, primary := newTestRouter(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		err := primary.SaveRecord(context.Background(), "patient-1", &models.PersistedRecord{
			SessionID:       "s-1",
			FlexMeasurement: float64(i),
			EmgMeasurement:  float64(i) * 2,
			TimeOfReading:   base.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	rec := doRequest(router, http.MethodGet, "/data/api/v1/patients/patient-1/sessions/s-1/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "session-s-1.xlsx")
	assert.NotEmpty(t, rec.Body.Bytes())
}

func TestDispatch_UnknownRoutes(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rec := doRequest(router, http.MethodGet, "/data/api/v1/patients/patient-1/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(router, http.MethodDelete, "/data/api/v1/patients/patient-1/sessions", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = doRequest(router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// TestSessionScenario 完整会话链路：start → 60 帧采样 → stop。
// 期望：实时窗口只保留最近 50 帧，主库保留全部 60 条，
// 结束通知恰好触发一次，汇总指标可查。
func TestSessionScenario(t *testing.T) {
	logger := zap.NewNop()
	primary := store.NewMemoryPrimary()
	registry := session.NewRegistry(50, logger)
	aggregator := aggregate.NewAggregator(primary, logger)

	notifier := &recordingNotifier{}
	registry.OnSessionEnd(reward.NewTrigger(notifier, logger).Hook())

	router := NewRouter(logger)
	router.RegisterTelemetryRoutes(NewTelemetryHandler(registry, aggregator, primary, logger))

	rec := doRequest(router, http.MethodPost, "/data/api/v1/patients/patient-1/sessions/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	active, err := registry.Resolve("patient-1")
	require.NoError(t, err)

	coord := persist.NewCoordinator(primary, nopMirror{}, persist.Config{}, logger)
	pipeline := coord.NewPipeline(active.Context(), "patient-1", active.SessionID)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		reading := models.Reading{
			Flex:      float64(i),
			Emg:       float64(i) * 2,
			Timestamp: base.Add(time.Duration(i) * 100 * time.Millisecond),
		}
		require.True(t, active.Push(reading))
		require.True(t, pipeline.Enqueue(models.RecordFromReading(active.SessionID, reading)))
	}

	// 实时窗口只保留最近 50 帧
	snapshot := active.Snapshot(models.ChannelFlex)
	require.Len(t, snapshot, 50)
	assert.Equal(t, 10.0, snapshot[0].Value)
	assert.Equal(t, 59.0, snapshot[49].Value)

	pipeline.Close()

	rec = doRequest(router, http.MethodPost, "/data/api/v1/patients/patient-1/sessions/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// 结束通知恰好一次（再 stop 一次也不会重复触发）
	doRequest(router, http.MethodPost, "/data/api/v1/patients/patient-1/sessions/stop", nil)
	assert.Equal(t, 1, notifier.count())

	// 主库保留全部 60 条，缓冲淘汰不影响持久化
	records, err := primary.ListRecords(context.Background(), "patient-1", active.SessionID)
	require.NoError(t, err)
	require.Len(t, records, 60)

	path := fmt.Sprintf("/data/api/v1/patients/patient-1/sessions/%s/metrics", active.SessionID)
	rec = doRequest(router, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary models.SessionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 60, summary.SampleCount)
	assert.Equal(t, 59.0, summary.MaxFlex)

	rec = doRequest(router, http.MethodGet, "/data/api/v1/patients/patient-1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp struct {
		Sessions []models.SessionOverview `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	require.Len(t, listResp.Sessions, 1)
	assert.Equal(t, active.SessionID, listResp.Sessions[0].SessionID)
}

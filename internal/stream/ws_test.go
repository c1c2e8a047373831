package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fisio-telemetry/internal/display"
	"fisio-telemetry/internal/models"
	"fisio-telemetry/internal/persist"
	"fisio-telemetry/internal/session"
	"fisio-telemetry/internal/store"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopMirror struct{}

func (nopMirror) Append(ctx context.Context, patientID, sessionID string, rec *models.PersistedRecord) error {
	return nil
}

var testScale = display.ScaleConfig{Baseline: 750, Offset: 0.2, Span: 0.5}

func newWSTestServer(t *testing.T) (*httptest.Server, *session.Registry, *store.MemoryPrimary) {
	t.Helper()
	logger := zap.NewNop()
	primary := store.NewMemoryPrimary()
	registry := session.NewRegistry(50, logger)
	coord := persist.NewCoordinator(primary, nopMirror{}, persist.Config{}, logger)
	ingest := NewWSIngest(registry, coord, testScale, 0.1, logger)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ingest.Handle(w, r, "patient-1")
	}))
	t.Cleanup(server.Close)
	return server, registry, primary
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestWSIngest_RejectsWithoutActiveSession(t *testing.T) {
	server, _, _ := newWSTestServer(t)

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestWSIngest_StreamPersistAndEndOnDisconnect(t *testing.T) {
	server, registry, primary := newWSTestServer(t)

	_, err := registry.StartSession("patient-1")
	require.NoError(t, err)
	active, err := registry.Resolve("patient-1")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)

	// flex = offset 映射到基线坐标，平滑器也从基线起步，回帧确定
	for i := 0; i < 3; i++ {
		require.NoError(t, conn.WriteJSON(map[string]float64{"flex": 0.2, "emg": 0.5}))

		var frame outFrame
		require.NoError(t, conn.ReadJSON(&frame))
		assert.Equal(t, 0.2, frame.Flex)
		assert.Equal(t, 0.5, frame.Emg)
		assert.Equal(t, 750.0, frame.Y)
	}

	// 畸形帧被丢弃，流继续
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"flex": 0.3}`)))
	require.NoError(t, conn.WriteJSON(map[string]float64{"flex": 0.2, "emg": 0.1}))
	var frame outFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, 0.1, frame.Emg)

	// 连接断开按正常停止处理
	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool {
		_, err := registry.Resolve("patient-1")
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)

	// 畸形帧不落库，其余 4 帧全部持久化
	require.Eventually(t, func() bool {
		records, err := primary.ListRecords(context.Background(), "patient-1", active.SessionID)
		return err == nil && len(records) == 4
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWSIngest_ServerClosesOnSessionStop(t *testing.T) {
	server, registry, _ := newWSTestServer(t)

	_, err := registry.StartSession("patient-1")
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server), nil)
	require.NoError(t, err)
	defer conn.Close()

	// 控制面 stop：服务端回 session_ended 帧后关闭连接
	registry.EndSession("patient-1")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame outFrame
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, "session_ended", frame.Event)
}

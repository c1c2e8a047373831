package stream

import (
	"context"
	"testing"
	"time"

	"fisio-telemetry/internal/persist"
	"fisio-telemetry/internal/session"
	"fisio-telemetry/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPatientFromTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"sensors/patient-1", "patient-1"},
		{"sensors/", ""},
		{"sensors", ""},
		{"sensors/patient-1/extra", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, patientFromTopic(tt.topic), tt.topic)
	}
}

func newMQTTTestIngest(t *testing.T) (*MQTTIngest, *session.Registry, *store.MemoryPrimary) {
	t.Helper()
	logger := zap.NewNop()
	primary := store.NewMemoryPrimary()
	registry := session.NewRegistry(50, logger)
	coord := persist.NewCoordinator(primary, nopMirror{}, persist.Config{}, logger)
	// client 为 nil：handleMessage 不经过 broker，直接投递 payload
	return NewMQTTIngest(nil, registry, coord, "sensors/+", 1, logger), registry, primary
}

func TestMQTTIngest_DropsWithoutActiveSession(t *testing.T) {
	ingest, _, primary := newMQTTTestIngest(t)

	err := ingest.handleMessage("sensors/patient-1", []byte(`{"flex": 0.3, "emg": 0.5}`))
	require.NoError(t, err)

	ids, err := primary.ListSessionIDs(context.Background(), "patient-1")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMQTTIngest_PersistsAndClosesPipelineOnSessionEnd(t *testing.T) {
	ingest, registry, primary := newMQTTTestIngest(t)

	_, err := registry.StartSession("patient-1")
	require.NoError(t, err)
	active, err := registry.Resolve("patient-1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, ingest.handleMessage("sensors/patient-1", []byte(`{"flex": 0.3, "emg": 0.5}`)))
	}
	// 畸形帧丢弃，不中断订阅
	require.NoError(t, ingest.handleMessage("sensors/patient-1", []byte(`not json`)))

	require.Eventually(t, func() bool {
		records, err := primary.ListRecords(context.Background(), "patient-1", active.SessionID)
		return err == nil && len(records) == 5
	}, 2*time.Second, 10*time.Millisecond)

	// 会话结束后缓存的管线被关闭并摘除
	registry.EndSession("patient-1")
	require.Eventually(t, func() bool {
		ingest.mu.Lock()
		defer ingest.mu.Unlock()
		return len(ingest.pipelines) == 0
	}, 2*time.Second, 10*time.Millisecond)

	// 结束后的采样被丢弃
	require.NoError(t, ingest.handleMessage("sensors/patient-1", []byte(`{"flex": 0.3, "emg": 0.5}`)))
	records, err := primary.ListRecords(context.Background(), "patient-1", active.SessionID)
	require.NoError(t, err)
	assert.Len(t, records, 5)
}

package stream

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"fisio-telemetry/internal/codec"
	"fisio-telemetry/internal/models"
	"fisio-telemetry/internal/mqtt"
	"fisio-telemetry/internal/persist"
	"fisio-telemetry/internal/session"

	"go.uber.org/zap"
)

// MQTTIngest MQTT 入站源：无界面设备把采样发布到 sensors/{patient_id}，
// 与 WebSocket 路径共用注册表/编解码/双写管线。
type MQTTIngest struct {
	client   *mqtt.Client
	registry *session.Registry
	coord    *persist.Coordinator
	topic    string
	qos      byte
	logger   *zap.Logger

	mu        sync.Mutex
	pipelines map[string]*persist.Pipeline
}

// NewMQTTIngest 创建 MQTT 入站源
func NewMQTTIngest(client *mqtt.Client, registry *session.Registry, coord *persist.Coordinator, topic string, qos byte, logger *zap.Logger) *MQTTIngest {
	return &MQTTIngest{
		client:    client,
		registry:  registry,
		coord:     coord,
		topic:     topic,
		qos:       qos,
		logger:    logger,
		pipelines: make(map[string]*persist.Pipeline),
	}
}

// Start 订阅采样主题
func (m *MQTTIngest) Start() error {
	if err := m.client.Subscribe(m.topic, m.qos, m.handleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to sensor topic: %w", err)
	}
	m.logger.Info("MQTT ingest started", zap.String("topic", m.topic))
	return nil
}

// Stop 取消订阅并排空仍在缓存的管线
func (m *MQTTIngest) Stop() {
	if err := m.client.Unsubscribe(m.topic); err != nil {
		m.logger.Warn("failed to unsubscribe", zap.Error(err))
	}

	m.mu.Lock()
	pipelines := make([]*persist.Pipeline, 0, len(m.pipelines))
	for _, p := range m.pipelines {
		pipelines = append(pipelines, p)
	}
	m.pipelines = make(map[string]*persist.Pipeline)
	m.mu.Unlock()

	for _, p := range pipelines {
		p.Close()
	}
}

func (m *MQTTIngest) handleMessage(topic string, payload []byte) error {
	patientID := patientFromTopic(topic)
	if patientID == "" {
		return fmt.Errorf("unexpected topic: %s", topic)
	}

	active, err := m.registry.Resolve(patientID)
	if err != nil {
		// 无可归属会话的采样丢弃并记录
		m.logger.Debug("sample without active session dropped",
			zap.String("patient_id", patientID),
		)
		return nil
	}

	reading, derr := codec.Decode(payload, time.Now().UTC())
	if derr != nil {
		m.logger.Debug("malformed sample dropped",
			zap.String("patient_id", patientID),
			zap.Error(derr),
		)
		return nil
	}

	if !active.Push(*reading) {
		return nil
	}

	m.pipeline(active).Enqueue(models.RecordFromReading(active.SessionID, *reading))
	return nil
}

// pipeline 按会话缓存持久化管线；会话结束时关闭并从缓存摘除
func (m *MQTTIngest) pipeline(active *session.Active) *persist.Pipeline {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.pipelines[active.SessionID]; ok {
		return p
	}

	p := m.coord.NewPipeline(active.Context(), active.PatientID, active.SessionID)
	m.pipelines[active.SessionID] = p

	go func() {
		<-active.Context().Done()
		m.mu.Lock()
		delete(m.pipelines, active.SessionID)
		m.mu.Unlock()
		p.Close()
	}()

	return p
}

// patientFromTopic sensors/{patient_id} → patient_id
func patientFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 2 || parts[1] == "" {
		return ""
	}
	return parts[1]
}

package stream

import (
	"net/http"
	"sync"
	"time"

	"fisio-telemetry/internal/codec"
	"fisio-telemetry/internal/display"
	"fisio-telemetry/internal/models"
	"fisio-telemetry/internal/persist"
	"fisio-telemetry/internal/session"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// outFrame 回写给实时消费端的帧：每个采样一个映射坐标，
// 或会话结束时的最后一帧
type outFrame struct {
	Event string  `json:"event,omitempty"`
	Flex  float64 `json:"flex,omitempty"`
	Emg   float64 `json:"emg,omitempty"`
	Y     float64 `json:"y,omitempty"`
}

// WSIngest WebSocket 入站流：每个活动会话一条持久双向连接，
// 由独立工作协程处理。连接读取是工作协程唯一的阻塞点。
type WSIngest struct {
	registry *session.Registry
	coord    *persist.Coordinator
	scale    display.ScaleConfig
	alpha    float64
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// NewWSIngest 创建 WebSocket 入站处理器
func NewWSIngest(registry *session.Registry, coord *persist.Coordinator, scale display.ScaleConfig, alpha float64, logger *zap.Logger) *WSIngest {
	return &WSIngest{
		registry: registry,
		coord:    coord,
		scale:    scale,
		alpha:    alpha,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 会话控制面没有鉴权（外部协作方负责），同源检查放开
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// Handle GET /ws/{patient_id} 升级连接并进入采样循环。
// 必须先经控制面 start 建立会话；无活动会话时拒绝升级。
// 连接断开按正常停止处理，不是故障。
func (h *WSIngest) Handle(w http.ResponseWriter, r *http.Request, patientID string) {
	active, err := h.registry.Resolve(patientID)
	if err != nil {
		http.Error(w, "no active session", http.StatusConflict)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed",
			zap.String("patient_id", patientID),
			zap.Error(err),
		)
		return
	}

	logger := h.logger.With(
		zap.String("conn_id", uuid.NewString()),
		zap.String("patient_id", patientID),
		zap.String("session_id", active.SessionID),
	)
	logger.Info("sensor stream connected")

	pipeline := h.coord.NewPipeline(active.Context(), patientID, active.SessionID)
	smoother := display.NewSmoother(h.alpha, h.scale.Baseline)

	// gorilla 连接不支持并发写：采样回帧与结束帧共用一把写锁
	var writeMu sync.Mutex
	writeFrame := func(f outFrame) {
		writeMu.Lock()
		defer writeMu.Unlock()
		_ = conn.WriteJSON(f)
	}

	// 控制面 stop 结束会话时，从服务端侧关闭连接
	go func() {
		<-active.Context().Done()
		writeFrame(outFrame{Event: "session_ended"})
		writeMu.Lock()
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
		writeMu.Unlock()
		_ = conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}

		reading, derr := codec.Decode(raw, time.Now().UTC())
		if derr != nil {
			// 畸形采样丢弃，流继续
			logger.Debug("malformed sample dropped", zap.Error(derr))
			continue
		}

		if !active.Push(*reading) {
			logger.Debug("sample after session end dropped")
			continue
		}

		y := smoother.Next(display.MapToDisplay(reading.Flex, h.scale))
		writeFrame(outFrame{Flex: reading.Flex, Emg: reading.Emg, Y: y})

		pipeline.Enqueue(models.RecordFromReading(active.SessionID, *reading))
	}

	// 连接断开视为正常停止；幂等，显式 stop 已结束时是 no-op
	h.registry.EndSession(patientID)
	pipeline.Close()
	_ = conn.Close()
	logger.Info("sensor stream closed",
		zap.Int64("primary_failures", pipeline.PrimaryFailures()),
		zap.Int64("dropped", pipeline.Dropped()),
	)
}

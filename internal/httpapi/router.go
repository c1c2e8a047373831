package httpapi

import (
	"net/http"
	"strings"

	"fisio-telemetry/internal/stream"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

// RegisterTelemetryRoutes 注册会话控制与报表路由。
// 路径带两级参数（patient_id / session_id），前缀注册后在 handler 内解析。
func (r *Router) RegisterTelemetryRoutes(h *TelemetryHandler) {
	r.Handle("/data/api/v1/patients/", h.Dispatch)
}

// RegisterStreamRoutes 注册 WebSocket 采样入口 /ws/{patient_id}
func (r *Router) RegisterStreamRoutes(ws *stream.WSIngest) {
	r.Handle("/ws/", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		patientID := strings.TrimPrefix(req.URL.Path, "/ws/")
		if patientID == "" || strings.Contains(patientID, "/") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		ws.Handle(w, req, patientID)
	})
}

// RegisterHealthRoutes 健康检查
func (r *Router) RegisterHealthRoutes() {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

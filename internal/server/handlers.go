package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/vstream/internal/metrics"
	"github.com/BaSui01/vstream/vstream"
)

// =============================================================================
// 🩺 诊断路由
// =============================================================================

// StatusSource 提供各通道的诊断快照
type StatusSource interface {
	Snapshots() []vstream.Snapshot
}

// HandlerOptions 诊断路由依赖
type HandlerOptions struct {
	Status    StatusSource
	Hub       *Hub
	Gatherer  prometheus.Gatherer
	Collector *metrics.Collector
	// 每个 websocket 客户端每秒最多推送的事件数，0 表示不限
	EventRate float64
	Logger    *zap.Logger
}

// ChannelStatus /status 中单个通道的条目
type ChannelStatus struct {
	vstream.Snapshot
	Direction string `json:"direction"`
}

// StatusResponse /status 响应体
type StatusResponse struct {
	Session  string          `json:"session,omitempty"`
	Time     time.Time       `json:"time"`
	Channels []ChannelStatus `json:"channels"`
}

const eventWriteTimeout = 5 * time.Second

type handlers struct {
	opts    HandlerOptions
	session string
	logger  *zap.Logger
}

// NewHandler 组装 /healthz、/status、/metrics、/events 路由
func NewHandler(session string, opts HandlerOptions) http.Handler {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	h := &handlers{
		opts:    opts,
		session: session,
		logger:  opts.Logger.With(zap.String("component", "diagnostics")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.healthz)
	mux.HandleFunc("GET /status", h.status)
	mux.Handle("GET /metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("GET /events", h.events)

	mw := []Middleware{Recovery(h.logger), RequestLogger(h.logger), OTelTracing()}
	if opts.Collector != nil {
		mw = append(mw, MetricsMiddleware(opts.Collector))
	}
	return Chain(mux, mw...)
}

func (h *handlers) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// status 返回快照，不清除任何粘滞标志
func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	if h.opts.Status == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "no streams attached")
		return
	}
	snaps := h.opts.Status.Snapshots()
	resp := StatusResponse{
		Session:  h.session,
		Time:     time.Now().UTC(),
		Channels: make([]ChannelStatus, 0, len(snaps)),
	}
	for _, s := range snaps {
		resp.Channels = append(resp.Channels, ChannelStatus{Snapshot: s, Direction: s.Direction.String()})
	}
	writeJSON(w, http.StatusOK, resp)
}

// events 把 Hub 中的事件以 JSON 文本帧推送给 websocket 客户端
func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	if h.opts.Hub == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "event feed disabled")
		return
	}

	// 长连接不受服务器级读写超时约束
	rc := http.NewResponseController(w)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	ctx := conn.CloseRead(r.Context())
	msgs, cancel := h.opts.Hub.Subscribe()
	defer cancel()

	var limiter *rate.Limiter
	if h.opts.EventRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(h.opts.EventRate), max(1, int(h.opts.EventRate)))
	}

	h.logger.Debug("event subscriber connected", zap.String("remote_addr", r.RemoteAddr))
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if limiter != nil && !limiter.Allow() {
				continue
			}
			if err := writeEvent(ctx, conn, msg); err != nil {
				h.logger.Debug("event subscriber gone", zap.Error(err))
				return
			}
		}
	}
}

func writeEvent(ctx context.Context, conn *websocket.Conn, msg EventMessage) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

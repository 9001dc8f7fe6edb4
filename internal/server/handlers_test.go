package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/BaSui01/vstream/internal/metrics"
	"github.com/BaSui01/vstream/testutil"
	"github.com/BaSui01/vstream/vstream"
)

type fakeStatus struct {
	snaps []vstream.Snapshot
	calls int
}

func (f *fakeStatus) Snapshots() []vstream.Snapshot {
	f.calls++
	return f.snaps
}

type testServer struct {
	*httptest.Server
	hub *Hub
	reg *prometheus.Registry
}

func newTestServer(t *testing.T, status StatusSource, eventRate float64) *testServer {
	t.Helper()
	reg := prometheus.NewRegistry()
	hub := NewHub(16, nil)
	h := NewHandler("session-1", HandlerOptions{
		Status:    status,
		Hub:       hub,
		Gatherer:  reg,
		Collector: metrics.NewCollectorWith(reg, "vstream", nil),
		EventRate: eventRate,
		Logger:    zaptest.NewLogger(t),
	})
	srv := httptest.NewServer(h)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return &testServer{Server: srv, hub: hub, reg: reg}
}

func (s *testServer) get(t *testing.T, path string) (int, string) {
	t.Helper()
	resp, err := http.Get(s.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(s.URL, "http")+"/events", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	testutil.AssertEventuallyTrue(t, func() bool { return s.hub.Subscribers() == 1 }, 2*time.Second)
	return conn
}

func TestHandler_Healthz(t *testing.T) {
	srv := newTestServer(t, nil, 0)

	code, body := srv.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestHandler_Status(t *testing.T) {
	status := &fakeStatus{snaps: []vstream.Snapshot{
		{Channel: "audio_in", Direction: vstream.DirectionIn, Initialized: true, Active: true, Mode: "continuous",
			BlockSize: 1024, BlockCount: 4, IdxProducer: 2, Xrun: true},
		{Channel: "audio_out", Direction: vstream.DirectionOut},
	}}
	srv := newTestServer(t, status, 0)

	code, body := srv.get(t, "/status")
	require.Equal(t, http.StatusOK, code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.Equal(t, "session-1", resp.Session)
	require.Len(t, resp.Channels, 2)
	assert.Equal(t, "audio_in", resp.Channels[0].Channel)
	assert.Equal(t, "in", resp.Channels[0].Direction)
	assert.Equal(t, 2, resp.Channels[0].IdxProducer)
	assert.True(t, resp.Channels[0].Xrun)
	assert.Equal(t, "out", resp.Channels[1].Direction)
	assert.Contains(t, body, `"block_size":1024`)
}

func TestHandler_StatusWithoutSource(t *testing.T) {
	srv := newTestServer(t, nil, 0)

	code, body := srv.get(t, "/status")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body, "no streams attached")
}

func TestHandler_Routing(t *testing.T) {
	srv := newTestServer(t, &fakeStatus{}, 0)

	code, _ := srv.get(t, "/nope")
	assert.Equal(t, http.StatusNotFound, code)

	resp, err := http.Post(srv.URL+"/status", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandler_MetricsIncludesRequests(t *testing.T) {
	srv := newTestServer(t, &fakeStatus{}, 0)

	srv.get(t, "/status")
	srv.get(t, "/status")

	code, body := srv.get(t, "/metrics")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `vstream_http_requests_total{method="GET",path="/status",status="2xx"} 2`)
}

func TestHandler_EventsFeed(t *testing.T) {
	srv := newTestServer(t, nil, 0)
	conn := srv.dial(t)

	srv.hub.PublishEvent("session-1", "audio_in", vstream.EventData)
	srv.hub.PublishEvent("session-1", "audio_out", vstream.EventData|vstream.EventUnderflow)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var first, second EventMessage
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	require.NoError(t, wsjson.Read(ctx, conn, &second))
	assert.Equal(t, "audio_in", first.Channel)
	assert.Equal(t, "data", first.Events)
	assert.Equal(t, "data|underflow", second.Events)

	// Hub 关闭时服务端以 GoingAway 关闭连接
	srv.hub.Close()
	_, _, err := conn.Read(ctx)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))
}

func TestHandler_EventsRateLimited(t *testing.T) {
	srv := newTestServer(t, nil, 1)
	conn := srv.dial(t)

	for i := 0; i < 5; i++ {
		srv.hub.PublishEvent("", "video_in", vstream.EventData)
	}
	srv.hub.PublishEvent("", "video_in", vstream.EventEOS)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var msg EventMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	assert.Equal(t, "data", msg.Events)

	short, cancelShort := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancelShort()
	assert.Error(t, wsjson.Read(short, conn, &msg), "rate limiter should drop the burst")
}

func TestHandler_EventsDisabled(t *testing.T) {
	h := NewHandler("", HandlerOptions{Gatherer: prometheus.NewRegistry()})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRecovery(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), Recovery(zaptest.NewLogger(t)))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/status", routeLabel("/status"))
	assert.Equal(t, "other", routeLabel("/status/123"))
}

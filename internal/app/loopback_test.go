package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/BaSui01/vstream/config"
	"github.com/BaSui01/vstream/internal/pool"
	"github.com/BaSui01/vstream/testutil"
	"github.com/BaSui01/vstream/types"
	"github.com/BaSui01/vstream/vsi"
	"github.com/BaSui01/vstream/vsi/sim"
	"github.com/BaSui01/vstream/vstream"
)

// 16 帧 × 4 字节，16 kHz 下每块 1ms
const testBlockSize = 64

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Buffers.AudioBlockSize = testBlockSize
	cfg.Buffers.AudioBlockCount = 4
	cfg.Session.Timeout = 5 * time.Second
	return cfg
}

type recordingSink struct {
	mu     sync.Mutex
	events map[string][]vstream.Event
}

func (s *recordingSink) PublishEvent(_, channel string, ev vstream.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.events == nil {
		s.events = map[string][]vstream.Event{}
	}
	s.events[channel] = append(s.events[channel], ev)
}

func (s *recordingSink) count(channel string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events[channel])
}

func newTestPlatform(t *testing.T, cfg *config.Config, extra PeripheralOptions) (*SimBoard, *vstream.Platform) {
	t.Helper()
	board, err := NewSimBoard(cfg, testutil.TestLogger(t), extra)
	require.NoError(t, err)
	p, err := vstream.NewPlatform(board.Board, testutil.TestLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return board, p
}

func TestNewSimBoard(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Channels.VideoIn.Enabled = true
	cfg.Channels.VideoIn.Color = "grayscale8"
	cfg.Simulator.Secure = false

	board, err := NewSimBoard(cfg, nil, nil)
	require.NoError(t, err)
	require.Len(t, board.Board, 3)

	vin := board.Board[vstream.VideoIn]
	assert.Equal(t, "vsi4", vin.Instance.Name)
	assert.Equal(t, vsi.BaseAddress(4, false), vin.Instance.Base)
	assert.Equal(t, vsi.IRQNumber(4), vin.Instance.IRQ)
	assert.IsType(t, vstream.VideoConfig{}, vin.Config)

	aout := board.Board[vstream.AudioOut]
	assert.Equal(t, vsi.IRQNumber(1), aout.Instance.IRQ)
	assert.Same(t, board.Peripherals[vstream.AudioOut], aout.Instance.Regs)
}

func TestNewSimBoard_Errors(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Channels.AudioIn.Enabled = false
	cfg.Channels.AudioOut.Enabled = false
	_, err := NewSimBoard(cfg, nil, nil)
	assert.Error(t, err)

	cfg = config.DefaultConfig()
	cfg.Channels.AudioIn.SampleRate = 0
	_, err = NewSimBoard(cfg, nil, nil)
	assert.Error(t, err)
}

func TestLoopback_CopiesUntilBlockBudget(t *testing.T) {
	cfg := testConfig()
	cfg.Session.MaxBlocks = 16

	pattern := make([]byte, testBlockSize)
	for i := range pattern {
		pattern[i] = byte(i + 1)
	}
	capture := &sim.CaptureSink{}
	_, platform := newTestPlatform(t, cfg, func(id vstream.ChannelID) []sim.Option {
		switch id {
		case vstream.AudioIn:
			return []sim.Option{sim.WithSource(sim.NewPatternSource(pattern))}
		case vstream.AudioOut:
			return []sim.Option{sim.WithSink(capture)}
		}
		return nil
	})

	sink := &recordingSink{}
	lb := NewLoopback(platform, cfg, WithSession("session-a"), WithEventSink(sink), WithLogger(testutil.TestLogger(t)))
	assert.Equal(t, []Pair{AudioPair}, lb.Pairs())

	res, err := lb.Run(testutil.TestContextWithTimeout(t, 10*time.Second))
	require.NoError(t, err)

	assert.Equal(t, "session-a", res.Session)
	require.Len(t, res.Pairs, 1)
	assert.Equal(t, "audio_in->audio_out", res.Pairs[0].Pair)
	assert.Equal(t, 16, res.Pairs[0].Blocks)
	assert.False(t, res.Pairs[0].EOS)
	assert.Positive(t, sink.count("audio_in"))

	out := capture.Bytes()
	require.GreaterOrEqual(t, len(out), testBlockSize)
	assert.Equal(t, make([]byte, testBlockSize), out[:testBlockSize], "primed block is silent")
	assert.True(t, bytes.Contains(out, pattern), "copied input reached the output")

	// 会话结束后两个通道都已停止并反初始化
	testutil.AssertEventuallyEqual(t, 0, func() any {
		n := 0
		for _, snap := range platform.Snapshots() {
			if snap.Active || snap.Initialized {
				n++
			}
		}
		return n
	}, time.Second)
}

func TestResult_JSON(t *testing.T) {
	res := Result{
		Session:  "s1",
		Duration: time.Millisecond,
		Pairs:    []PairResult{{Pair: VideoPair.String(), Blocks: 5, Dropped: 1, Underflows: 2, EOS: true}},
	}
	testutil.AssertJSONEqual(t, map[string]any{
		"session":  "s1",
		"duration": int64(time.Millisecond),
		"pairs": []map[string]any{{
			"pair": "video_in->video_out", "blocks": 5, "dropped": 1,
			"overflows": 0, "underflows": 2, "eos": true,
		}},
	}, res)
}

func TestLoopback_StopsAtEndOfStream(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "in.raw"), bytes.Repeat([]byte{7}, 3*testBlockSize), 0o644))

	cfg := testConfig()
	cfg.Simulator.FileRoot = root
	cfg.Channels.AudioIn.Filename = "in.raw"
	_, platform := newTestPlatform(t, cfg, nil)

	res, err := NewLoopback(platform, cfg).Run(testutil.TestContext(t))
	require.NoError(t, err)
	require.Len(t, res.Pairs, 1)
	assert.True(t, res.Pairs[0].EOS)
	assert.Equal(t, 3, res.Pairs[0].Blocks)
	assert.NotEmpty(t, res.Session)
}

func TestLoopback_OutputStartFailure(t *testing.T) {
	cfg := testConfig()
	board, platform := newTestPlatform(t, cfg, nil)
	board.Peripherals[vstream.AudioOut].RefuseActivation(true)

	res, err := NewLoopback(platform, cfg).Run(testutil.TestContext(t))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrDeviceError))
	assert.Contains(t, err.Error(), "audio_in->audio_out")
	require.NotNil(t, res)

	for _, snap := range platform.Snapshots() {
		assert.False(t, snap.Active, snap.Channel)
	}
}

func TestLoopback_CancelAndTimeout(t *testing.T) {
	t.Run("context cancel", func(t *testing.T) {
		cfg := testConfig()
		_, platform := newTestPlatform(t, cfg, nil)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		res, err := NewLoopback(platform, cfg).Run(ctx)
		require.NoError(t, err)
		assert.False(t, res.Pairs[0].EOS)
		assert.Positive(t, res.Pairs[0].Blocks)
	})

	t.Run("session timeout", func(t *testing.T) {
		cfg := testConfig()
		cfg.Session.Timeout = 50 * time.Millisecond
		_, platform := newTestPlatform(t, cfg, nil)

		start := time.Now()
		_, err := NewLoopback(platform, cfg).Run(context.Background())
		require.NoError(t, err)
		assert.Less(t, time.Since(start), 2*time.Second)
	})
}

func TestLoopback_NoPairs(t *testing.T) {
	cfg := testConfig()
	cfg.Channels.AudioOut.Enabled = false
	_, platform := newTestPlatform(t, cfg, nil)

	_, err := NewLoopback(platform, cfg).Run(context.Background())
	assert.Error(t, err)
}

func TestLoopback_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})

	cfg := testConfig()
	cfg.Session.MaxBlocks = 2
	_, platform := newTestPlatform(t, cfg, nil)

	_, err := NewLoopback(platform, cfg).Run(testutil.TestContext(t))
	require.NoError(t, err)

	names := map[string]int{}
	var session sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		names[s.Name()]++
		if s.Name() == "loopback.session" {
			session = s
		}
	}
	assert.Equal(t, 1, names["loopback.session"])
	assert.Equal(t, 2, names["stream.start"])
	assert.Equal(t, 2, names["stream.stop"])

	require.NotNil(t, session)
	for _, s := range recorder.Ended() {
		if s.Name() != "stream.start" {
			continue
		}
		assert.Equal(t, session.SpanContext().TraceID(), s.Parent().TraceID())
		attrs := map[attribute.Key]string{}
		for _, kv := range s.Attributes() {
			attrs[kv.Key] = kv.Value.Emit()
		}
		assert.Equal(t, "audio_in->audio_out", attrs["vstream.pair"])
		assert.NotEmpty(t, attrs["vstream.session"])
	}
}

func TestLoopback_SharesBufferPool(t *testing.T) {
	cfg := testConfig()
	cfg.Session.MaxBlocks = 2
	buffers := pool.NewBufferPool()

	for range 2 {
		_, platform := newTestPlatform(t, cfg, nil)
		_, err := NewLoopback(platform, cfg, WithBufferPool(buffers)).Run(testutil.TestContext(t))
		require.NoError(t, err)
	}

	stats := buffers.Stats()
	assert.Equal(t, int64(4), stats.Gets)
	assert.Equal(t, int64(4), stats.Puts)
}

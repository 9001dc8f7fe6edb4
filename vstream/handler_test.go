package vstream

import (
	"bytes"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/vstream/testutil"
	"github.com/BaSui01/vstream/vsi"
	"github.com/BaSui01/vstream/vsi/sim"
)

// =============================================================================
// 🧪 溢出 / 欠载
// =============================================================================

func TestHandler_OverflowScenario(t *testing.T) {
	c := newTestChannel(t, DirectionIn, DefaultAudioConfig())
	s := c.stream

	require.NoError(t, s.SetBuf(make([]byte, 4096), 1024))
	require.Equal(t, 4, s.Snapshot().BlockCount)
	require.NoError(t, s.Start(ModeContinuous))

	for i := 1; i <= 3; i++ {
		c.complete(t, 1)
		assert.False(t, s.Snapshot().Xrun, "no overflow after event %d", i)
	}

	c.complete(t, 1)
	snap := s.Snapshot()
	assert.True(t, snap.Xrun, "producer wrapped onto unreleased block 0")
	assert.True(t, snap.Full)
	assert.Zero(t, snap.IdxProducer)

	c.complete(t, 1)
	assert.True(t, s.Snapshot().Xrun)

	assert.Equal(t, []Event{
		EventData,
		EventData,
		EventData,
		EventData | EventOverflow,
		EventData,
	}, c.events.Values())

	st := s.GetStatus()
	assert.True(t, st.Overflow)
	assert.False(t, st.Underflow)
	assert.False(t, s.GetStatus().Overflow)
}

func TestHandler_OutputUnderflow(t *testing.T) {
	c := newTestChannel(t, DirectionOut, DefaultAudioConfig())
	s := c.stream

	require.NoError(t, s.SetBuf(make([]byte, 4096), 1024))
	primeOutput(t, s, 2)
	require.NoError(t, s.Start(ModeContinuous))

	c.complete(t, 1)
	assert.False(t, s.Snapshot().Empty)

	c.complete(t, 1)
	snap := s.Snapshot()
	assert.True(t, snap.Empty)
	assert.True(t, snap.Xrun)
	assert.Equal(t, []Event{EventData, EventData | EventUnderflow}, c.events.Values())

	st := s.GetStatus()
	assert.True(t, st.Underflow)
	assert.False(t, st.Overflow)
}

func TestHandler_OutputRefillClearsEmpty(t *testing.T) {
	c := newTestChannel(t, DirectionOut, DefaultAudioConfig())
	s := c.stream

	require.NoError(t, s.SetBuf(make([]byte, 4096), 1024))
	primeOutput(t, s, 1)
	require.NoError(t, s.Start(ModeContinuous))
	c.complete(t, 1)
	require.True(t, s.Snapshot().Empty)

	primeOutput(t, s, 1)
	assert.False(t, s.Snapshot().Empty)
}

// =============================================================================
// 🎯 单次模式
// =============================================================================

func TestHandler_SingleMode(t *testing.T) {
	for _, dir := range []Direction{DirectionIn, DirectionOut} {
		t.Run(dir.String(), func(t *testing.T) {
			c := newTestChannel(t, dir, DefaultAudioConfig())
			s := c.stream

			// 只有一块：生产者必然追上释放游标
			require.NoError(t, s.SetBuf(make([]byte, 1024), 1024))
			if dir == DirectionOut {
				primeOutput(t, s, 1)
			}
			require.NoError(t, s.Start(ModeSingle))
			require.True(t, s.GetStatus().Active)

			c.complete(t, 1)

			st := s.GetStatus()
			assert.False(t, st.Active)
			assert.False(t, st.Overflow)
			assert.False(t, st.Underflow)
			assert.Equal(t, []Event{EventData}, c.events.Values())
			assert.False(t, c.periph.Complete(), "one-shot timer")
		})
	}
}

// =============================================================================
// 🏁 EOS
// =============================================================================

func TestHandler_EndOfStream(t *testing.T) {
	src := bytes.NewReader(make([]byte, 1536))
	c := newTestChannelWith(t, DirectionIn, DefaultAudioConfig(), []sim.Option{sim.WithSource(src)})
	s := c.stream

	require.NoError(t, s.SetBuf(make([]byte, 4096), 1024))
	require.NoError(t, s.Start(ModeContinuous))

	c.complete(t, 3)

	assert.Equal(t, []Event{
		EventData,
		EventData | EventEOS, // 半块数据后耗尽
		EventEOS,
	}, c.events.Values())
	assert.Equal(t, 2, s.Snapshot().IdxProducer)

	st := s.GetStatus()
	assert.True(t, st.EOS)
	assert.False(t, s.GetStatus().EOS)
}

// =============================================================================
// 🎬 DMA 游标策略
// =============================================================================

func TestHandler_CursorFromDMA(t *testing.T) {
	cfg := VideoConfig{FrameWidth: 8, FrameHeight: 2, FrameRate: 30, Color: ColorGrayscale8}
	c := newTestChannel(t, DirectionIn, cfg)
	s := c.stream
	require.Equal(t, CursorFromDMA, s.cursor)

	require.NoError(t, s.SetBuf(make([]byte, 3*int(cfg.FrameSize())), int(cfg.FrameSize())))
	require.NoError(t, s.Start(ModeContinuous))

	for i := 1; i <= 5; i++ {
		c.complete(t, 1)
		assert.Equal(t, int(c.periph.Read(vsi.DMABlockIndex)), s.Snapshot().IdxProducer)
		assert.Equal(t, i%3, s.Snapshot().IdxProducer)
	}
}

func TestHandler_CursorOverride(t *testing.T) {
	c := newTestChannel(t, DirectionIn, DefaultAudioConfig(), WithCursorStrategy(CursorFromDMA))
	assert.Equal(t, CursorFromDMA, c.stream.cursor)
}

func TestHandler_SpuriousInterrupt(t *testing.T) {
	c := newTestChannel(t, DirectionIn, DefaultAudioConfig())
	s := c.stream
	require.NoError(t, s.SetBuf(make([]byte, 4096), 1024))
	require.NoError(t, s.Start(ModeContinuous))

	c.periph.Write(vsi.IRQSet, vsi.IRQTimerOverflow)

	assert.Zero(t, c.events.Len())
	assert.Zero(t, s.Snapshot().IdxProducer)
	assert.Zero(t, c.periph.Read(vsi.IRQStatus), "handler acknowledges the interrupt")
}

func TestHandler_ObserverNotified(t *testing.T) {
	obs := &recordingObserver{}
	c := newTestChannel(t, DirectionIn, DefaultAudioConfig(), WithObserver(obs))
	s := c.stream
	require.NoError(t, s.SetBuf(make([]byte, 2048), 1024))
	require.NoError(t, s.Start(ModeContinuous))

	c.complete(t, 2)
	c.periph.SignalEOS()

	assert.Equal(t, 2, obs.blocks)
	assert.Equal(t, 1, obs.xruns)
	assert.Equal(t, 1, obs.eos)
	assert.Equal(t, []bool{true}, obs.active)
}

type recordingObserver struct {
	nopObserver
	blocks, xruns, eos int
	active             []bool
}

func (o *recordingObserver) BlockTransferred(string, Direction) { o.blocks++ }
func (o *recordingObserver) Xrun(string, Direction)             { o.xruns++ }
func (o *recordingObserver) EndOfStream(string)                 { o.eos++ }
func (o *recordingObserver) ActiveChanged(_ string, a bool)     { o.active = append(o.active, a) }

// =============================================================================
// 🔬 属性测试
// =============================================================================

// N 块缓冲、无消费者活动时，连续模式下第 N 次完成起溢出置位，单次模式永不溢出
func TestProperty_OverflowAfterBlockCountEvents(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("continuous overflow is set from the N-th completion and sticky until read", prop.ForAll(
		func(blocks, completions int) bool {
			c := newPropertyChannel(t)
			s := c.stream
			if s.SetBuf(make([]byte, blocks*16), 16) != nil || s.Start(ModeContinuous) != nil {
				return false
			}

			for i := 1; i <= completions; i++ {
				c.periph.Complete()
				if s.Snapshot().Xrun != (i >= blocks) {
					t.Logf("blocks=%d completion=%d xrun=%v", blocks, i, s.Snapshot().Xrun)
					return false
				}
			}
			first := s.GetStatus().Overflow
			second := s.GetStatus().Overflow
			return first == (completions >= blocks) && !second
		},
		gen.IntRange(1, 16),
		gen.IntRange(1, 40),
	))

	properties.Property("single mode never reports overflow", prop.ForAll(
		func(blocks int) bool {
			c := newPropertyChannel(t)
			s := c.stream
			if s.SetBuf(make([]byte, blocks*16), 16) != nil || s.Start(ModeSingle) != nil {
				return false
			}
			c.periph.Complete()
			st := s.GetStatus()
			return !st.Active && !st.Overflow && !s.Snapshot().Xrun
		},
		gen.IntRange(1, 16),
	))

	properties.TestingRun(t)
}

func newPropertyChannel(t *testing.T) *testChannel {
	periph := testutil.NewManualPeripheral(t, "vsi_prop", vsi.AudioLayout)
	s, err := NewStream("prop", DirectionIn, periph.Instance(), DefaultAudioConfig(), WithInlineEvents())
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	_ = s.Initialize(nil)
	return &testChannel{stream: s, periph: periph}
}

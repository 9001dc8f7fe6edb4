package vstream

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/BaSui01/vstream/testutil"
	"github.com/BaSui01/vstream/types"
	"github.com/BaSui01/vstream/vsi"
)

func newRapidStream(t *rapid.T, tt *testing.T, dir Direction) *Stream {
	periph := testutil.NewManualPeripheral(tt, "vsi_rapid", vsi.AudioLayout)
	s, err := NewStream("rapid", dir, periph.Instance(), DefaultAudioConfig(), WithInlineEvents())
	if err != nil {
		t.Fatalf("new stream: %v", err)
	}
	if err := s.Initialize(nil); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return s
}

func blockAddr(p []byte) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(p)))
}

// =============================================================================
// 🔬 SetBuf 几何属性
// =============================================================================

func TestProperty_SetBufGeometry(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		total := rapid.IntRange(1, 8192).Draw(rt, "total")
		blockSize := rapid.IntRange(1, total).Draw(rt, "blockSize")
		dir := Direction(rapid.IntRange(0, 1).Draw(rt, "dir"))

		s := newRapidStream(rt, t, dir)
		if err := s.SetBuf(make([]byte, total), blockSize); err != nil {
			rt.Fatalf("SetBuf(%d, %d): %v", total, blockSize, err)
		}

		snap := s.Snapshot()
		if snap.BlockCount != total/blockSize {
			rt.Fatalf("block count %d, want %d", snap.BlockCount, total/blockSize)
		}
		if snap.IdxGet != 0 || snap.IdxRelease != 0 || snap.IdxProducer != 0 {
			rt.Fatalf("cursors not reset: %+v", snap)
		}
	})
}

func TestProperty_SetBufRejectsInvalidGeometry(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := newRapidStream(rt, t, DirectionIn)
		if err := s.SetBuf(make([]byte, 64), 16); err != nil {
			rt.Fatalf("setup: %v", err)
		}
		before := s.Snapshot()

		total := rapid.IntRange(0, 4096).Draw(rt, "total")
		var blockSize int
		var buf []byte
		switch rapid.IntRange(0, 2).Draw(rt, "case") {
		case 0:
			blockSize = 0
			buf = make([]byte, total)
		case 1:
			blockSize = total + rapid.IntRange(1, 100).Draw(rt, "excess")
			buf = make([]byte, total)
		case 2:
			blockSize = rapid.IntRange(1, 100).Draw(rt, "blockSize")
		}

		err := s.SetBuf(buf, blockSize)
		if !types.IsCode(err, types.ErrInvalidParameter) {
			rt.Fatalf("SetBuf(len=%d, %d) = %v, want INVALID_PARAMETER", len(buf), blockSize, err)
		}
		if s.Snapshot() != before {
			rt.Fatalf("state mutated by rejected SetBuf")
		}
	})
}

// =============================================================================
// 🔬 消费者游标属性
// =============================================================================

// 输出方向没有生产者活动时，任意 GetBlock/ReleaseBlock 序列都满足：
// 返回地址 = base + idxGet·blockSize，持有块数不超过 N，
// 只有持有 N 块时 GetBlock 返回 nil，只有未持有时 ReleaseBlock 失败。
func TestProperty_ConsumerCursorArithmetic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		blocks := rapid.IntRange(1, 12).Draw(rt, "blocks")
		blockSize := rapid.IntRange(1, 64).Draw(rt, "blockSize")
		buf := make([]byte, blocks*blockSize+rapid.IntRange(0, blockSize-1).Draw(rt, "residual"))

		s := newRapidStream(rt, t, DirectionOut)
		if err := s.SetBuf(buf, blockSize); err != nil {
			rt.Fatalf("SetBuf: %v", err)
		}

		owned := 0
		ops := rapid.SliceOfN(rapid.Bool(), 1, 100).Draw(rt, "ops")
		for i, get := range ops {
			if get {
				idx := s.Snapshot().IdxGet
				p := s.GetBlock()
				if owned == blocks {
					if p != nil {
						rt.Fatalf("op %d: GetBlock succeeded while holding all %d blocks", i, blocks)
					}
					continue
				}
				if p == nil {
					rt.Fatalf("op %d: GetBlock failed with %d/%d owned", i, owned, blocks)
				}
				if blockAddr(p) != blockAddr(buf[idx*blockSize:]) || len(p) != blockSize || cap(p) != blockSize {
					rt.Fatalf("op %d: block does not alias buffer at index %d", i, idx)
				}
				owned++
			} else {
				err := s.ReleaseBlock()
				if owned == 0 {
					if !types.IsCode(err, types.ErrInvalidState) {
						rt.Fatalf("op %d: release with nothing owned = %v", i, err)
					}
					continue
				}
				if err != nil {
					rt.Fatalf("op %d: release: %v", i, err)
				}
				owned--
			}

			snap := s.Snapshot()
			if snap.LimitOwned != (owned == blocks) {
				rt.Fatalf("op %d: limitOwned=%v with %d/%d owned", i, snap.LimitOwned, owned, blocks)
			}
			if s.ring.owned() != owned {
				rt.Fatalf("op %d: ring reports %d owned, want %d", i, s.ring.owned(), owned)
			}
			if (snap.IdxGet-snap.IdxRelease+blocks)%blocks != owned%blocks {
				rt.Fatalf("op %d: cursors %d/%d inconsistent with %d owned", i, snap.IdxGet, snap.IdxRelease, owned)
			}
		}
	})
}

// =============================================================================
// 🧪 背压
// =============================================================================

func TestRing_Backpressure(t *testing.T) {
	c := newTestChannel(t, DirectionOut, DefaultAudioConfig())
	s := c.stream
	require.NoError(t, s.SetBuf(make([]byte, 4096), 1024))

	for i := 0; i < 4; i++ {
		require.NotNil(t, s.GetBlock(), "get %d", i+1)
	}
	assert.True(t, s.Snapshot().LimitOwned)
	assert.Nil(t, s.GetBlock())

	require.NoError(t, s.ReleaseBlock())
	assert.False(t, s.Snapshot().LimitOwned)
	assert.NotNil(t, s.GetBlock())
	assert.Nil(t, s.GetBlock())
}

func TestRing_InputEmptyUntilProduced(t *testing.T) {
	c := newTestChannel(t, DirectionIn, DefaultAudioConfig())
	s := c.stream
	require.NoError(t, s.SetBuf(make([]byte, 4096), 1024))
	assert.Nil(t, s.GetBlock(), "no data before first completion")

	require.NoError(t, s.Start(ModeContinuous))
	c.complete(t, 2)

	assert.NotNil(t, s.GetBlock())
	assert.NotNil(t, s.GetBlock())
	assert.Nil(t, s.GetBlock(), "consumer caught up with producer")
	assert.True(t, s.Snapshot().Empty)

	require.NoError(t, s.ReleaseBlock())
	require.NoError(t, s.ReleaseBlock())
	assert.Error(t, s.ReleaseBlock())
}

func TestRing_InputFullHoldsAllBlocks(t *testing.T) {
	c := newTestChannel(t, DirectionIn, DefaultAudioConfig())
	s := c.stream
	require.NoError(t, s.SetBuf(make([]byte, 4096), 1024))
	require.NoError(t, s.Start(ModeContinuous))
	c.complete(t, 4)
	require.True(t, s.Snapshot().Full)

	for i := 0; i < 4; i++ {
		require.NotNil(t, s.GetBlock(), "get %d", i+1)
	}
	snap := s.Snapshot()
	assert.True(t, snap.LimitOwned)
	assert.True(t, snap.Empty)
	assert.False(t, snap.Full)
	assert.Nil(t, s.GetBlock())
}

func TestRing_ReleaseBeforeSetBuf(t *testing.T) {
	c := newTestChannel(t, DirectionIn, DefaultAudioConfig())
	assert.True(t, types.IsCode(c.stream.ReleaseBlock(), types.ErrInvalidState))
	assert.Nil(t, c.stream.GetBlock())
}

package vstream

import "sync/atomic"

// 句柄标志位
const (
	flagInit      uint32 = 1 << 0
	flagSingle    uint32 = 1 << 2
	flagLimitOwn  uint32 = 1 << 3
	flagBufEmpty  uint32 = 1 << 4
	flagBufFull   uint32 = 1 << 5
	flagRingReset        = flagLimitOwn | flagBufEmpty | flagBufFull
)

// streamBuffer 调用方持有的流缓冲区，挂载后不可变
type streamBuffer struct {
	data       []byte
	blockSize  uint32
	blockCount uint32
}

func newStreamBuffer(data []byte, blockSize uint32) *streamBuffer {
	return &streamBuffer{
		data:       data,
		blockSize:  blockSize,
		blockCount: uint32(len(data)) / blockSize,
	}
}

// block 返回第 idx 块，切片容量被限制在块边界内
func (b *streamBuffer) block(idx uint32) []byte {
	off := idx * b.blockSize
	end := off + b.blockSize
	return b.data[off:end:end]
}

func (b *streamBuffer) next(idx uint32) uint32 {
	return (idx + 1) % b.blockCount
}

// blockRing 固定容量的环形块缓冲区。
//
// 所有权约定：idxProd 只由中断处理函数写入；idxGet 与 idxRel 只由应用调用写入。
// 标志位由双方写入，但每个标志只有一方置位、另一方清除，
// 置位方采用"先置位后复核"避免与清除方交错时留下过期状态。
type blockRing struct {
	buf     atomic.Pointer[streamBuffer]
	idxGet  atomic.Uint32
	idxRel  atomic.Uint32
	idxProd atomic.Uint32
	flags   atomic.Uint32
}

func (r *blockRing) has(flag uint32) bool {
	return r.flags.Load()&flag != 0
}

func (r *blockRing) set(flag uint32) {
	r.flags.Or(flag)
}

func (r *blockRing) clear(flag uint32) {
	r.flags.And(^flag)
}

// setVerified 置位后重新检查条件，条件已被另一上下文推翻时撤销
func (r *blockRing) setVerified(flag uint32, cond func() bool) {
	r.set(flag)
	if !cond() {
		r.clear(flag)
	}
}

// attach 挂载缓冲区并复位游标；缓冲区标记为空
func (r *blockRing) attach(b *streamBuffer) {
	r.idxProd.Store(0)
	r.idxGet.Store(0)
	r.idxRel.Store(0)
	r.clear(flagRingReset)
	r.set(flagBufEmpty)
	r.buf.Store(b)
}

func (r *blockRing) reset() {
	r.buf.Store(nil)
	r.idxProd.Store(0)
	r.idxGet.Store(0)
	r.idxRel.Store(0)
	r.flags.Store(0)
}

// acquire 应用侧获取下一块；无可用块时返回 nil
func (r *blockRing) acquire(dir Direction) []byte {
	b := r.buf.Load()
	if b == nil {
		return nil
	}
	if dir == DirectionIn && r.has(flagBufEmpty) {
		// 没有新数据
		return nil
	}
	if r.has(flagLimitOwn) {
		// 应用已持有全部可持有的块
		return nil
	}

	get := r.idxGet.Load()
	p := b.block(get)

	get = b.next(get)
	r.idxGet.Store(get)

	if get == r.idxRel.Load() {
		r.set(flagLimitOwn)
	}
	if dir == DirectionIn {
		r.setVerified(flagBufEmpty, func() bool { return get == r.idxProd.Load() })
		r.clear(flagBufFull)
	}
	return p
}

// release 应用侧归还一块；没有可归还的块时返回 false
func (r *blockRing) release(dir Direction) bool {
	b := r.buf.Load()
	if b == nil {
		return false
	}
	rel := r.idxRel.Load()
	if rel == r.idxGet.Load() && !r.has(flagLimitOwn) {
		return false
	}

	rel = b.next(rel)
	r.idxRel.Store(rel)
	r.clear(flagLimitOwn)

	switch dir {
	case DirectionIn:
		// 释放后生产者有空间可写
		r.clear(flagBufFull)
	case DirectionOut:
		if rel == r.idxProd.Load() {
			r.setVerified(flagBufFull, func() bool { return rel == r.idxProd.Load() })
		}
		r.clear(flagBufEmpty)
	}
	return true
}

// advance 中断侧推进生产者游标。next 为 nil 时自增，否则采用外设给出的块索引。
// 返回生产者是否追上释放游标（输入为满，输出为空）。
func (r *blockRing) advance(dir Direction, next func() uint32) (caught bool, ok bool) {
	b := r.buf.Load()
	if b == nil {
		return false, false
	}

	var prod uint32
	if next == nil {
		prod = b.next(r.idxProd.Load())
	} else {
		prod = next() % b.blockCount
	}
	r.idxProd.Store(prod)

	limit := flagBufFull
	if dir == DirectionIn {
		r.clear(flagBufEmpty)
	} else {
		r.clear(flagBufFull)
		limit = flagBufEmpty
	}

	if prod != r.idxRel.Load() {
		return false, true
	}
	r.setVerified(limit, func() bool { return prod == r.idxRel.Load() })
	return true, true
}

// owned 应用当前持有（已获取未释放）的块数
func (r *blockRing) owned() int {
	b := r.buf.Load()
	if b == nil {
		return 0
	}
	if r.has(flagLimitOwn) {
		return int(b.blockCount)
	}
	get, rel := r.idxGet.Load(), r.idxRel.Load()
	return int((get + b.blockCount - rel) % b.blockCount)
}

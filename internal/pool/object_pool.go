// Package pool 提供基于 sync.Pool 的块缓冲区复用。
package pool

import (
	"sync"
	"sync/atomic"
)

// BufferPool 复用流缓冲区。同一进程内的多次会话通常使用相同的块几何，
// 归还的缓冲区在下次 Get 相同或更小尺寸时直接复用。
type BufferPool struct {
	pool sync.Pool

	// Metrics
	gets   atomic.Int64
	puts   atomic.Int64
	news   atomic.Int64
	misses atomic.Int64
}

// NewBufferPool creates a new buffer pool.
func NewBufferPool() *BufferPool {
	return &BufferPool{}
}

// Get 返回长度为 n 且已清零的缓冲区
func (p *BufferPool) Get(n int) []byte {
	p.gets.Add(1)
	if v, ok := p.pool.Get().(*[]byte); ok {
		if cap(*v) >= n {
			b := (*v)[:n]
			clear(b)
			return b
		}
		// 容量不足的缓冲区直接丢弃
		p.misses.Add(1)
	}
	p.news.Add(1)
	return make([]byte, n)
}

// Put 归还缓冲区；调用方此后不得再访问 b
func (p *BufferPool) Put(b []byte) {
	if cap(b) == 0 {
		return
	}
	p.puts.Add(1)
	b = b[:0]
	p.pool.Put(&b)
}

// Stats returns pool statistics.
func (p *BufferPool) Stats() PoolStats {
	return PoolStats{
		Gets:   p.gets.Load(),
		Puts:   p.puts.Load(),
		News:   p.news.Load(),
		Misses: p.misses.Load(),
	}
}

// PoolStats contains pool statistics.
type PoolStats struct {
	Gets   int64 `json:"gets"`
	Puts   int64 `json:"puts"`
	News   int64 `json:"news"`
	Misses int64 `json:"misses"`
}

// HitRate returns the reuse rate.
func (s PoolStats) HitRate() float64 {
	if s.Gets == 0 {
		return 0
	}
	return float64(s.Gets-s.News) / float64(s.Gets)
}

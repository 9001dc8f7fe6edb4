package vstream

import (
	"bytes"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// mailbox 中断侧到应用回调的事件投递。
//
// post 从不阻塞：事件位被 OR 进 pending，再尝试唤醒分发 goroutine。
// 分发 goroutine 每次唤醒取走全部 pending 位并调用一次回调，
// 回调执行期间到达的事件会合并到下一次调用中（与 RTOS 线程标志语义一致）。
type mailbox struct {
	cb      Callback
	logger  *zap.Logger
	pending atomic.Uint32
	wake    chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	gid     atomic.Uint64
}

func newMailbox(cb Callback, logger *zap.Logger) *mailbox {
	m := &mailbox{
		cb:     cb,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

func (m *mailbox) post(ev Event) {
	m.pending.Or(uint32(ev))
	select {
	case m.wake <- struct{}{}:
	default:
		// 已有未处理的唤醒信号，事件位会在那次唤醒中被取走
	}
}

func (m *mailbox) run() {
	defer m.wg.Done()
	m.gid.Store(goroutineID())
	for {
		select {
		case <-m.done:
			return
		case <-m.wake:
			// close 与唤醒同时就绪时 select 随机选择，这里以 close 为准
			select {
			case <-m.done:
				return
			default:
			}
			if ev := Event(m.pending.Swap(0)); ev != 0 {
				m.dispatch(ev)
			}
		}
	}
}

func (m *mailbox) dispatch(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("stream callback panicked",
				zap.Stringer("event", ev),
				zap.Any("recover", r))
		}
	}()
	m.cb(ev)
}

// close 停止分发；未投递的事件被丢弃，不等待正在执行的回调
func (m *mailbox) close() {
	m.once.Do(func() { close(m.done) })
}

// wait 等待分发 goroutine 退出。m 为 nil 或在回调内部调用时立即返回。
func (m *mailbox) wait() {
	if m == nil || m.onDispatcher() {
		return
	}
	m.wg.Wait()
}

// onDispatcher 当前 goroutine 是否为分发 goroutine
func (m *mailbox) onDispatcher() bool {
	return m.gid.Load() == goroutineID()
}

// goroutineID 解析 runtime.Stack 首行 "goroutine N [...]" 中的 N
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseUint(string(b), 10, 64)
	return id
}

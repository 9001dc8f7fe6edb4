package vstream

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/vstream/types"
	"github.com/BaSui01/vstream/vsi"
)

// CursorStrategy 中断处理函数推进生产者游标的方式
type CursorStrategy int

const (
	// CursorDefault 由通道配置决定（音频自增，视频读取 DMA.BlockIndex）
	CursorDefault CursorStrategy = iota
	// CursorSelfIncrement 每次完成自增 1（模 blockCount）
	CursorSelfIncrement
	// CursorFromDMA 采用外设 DMA.BlockIndex 寄存器给出的索引
	CursorFromDMA
)

func (c CursorStrategy) String() string {
	switch c {
	case CursorDefault:
		return "default"
	case CursorSelfIncrement:
		return "self_increment"
	case CursorFromDMA:
		return "dma_block_index"
	default:
		return fmt.Sprintf("cursor(%d)", int(c))
	}
}

// Option 配置 Stream 的函数选项
type Option func(*Stream)

// WithLogger 设置日志记录器
func WithLogger(logger *zap.Logger) Option {
	return func(s *Stream) {
		if logger != nil {
			s.baseLogger = logger
		}
	}
}

// WithObserver 设置事件观测者（例如指标采集器）
func WithObserver(o Observer) Option {
	return func(s *Stream) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithInlineEvents 在中断处理路径上直接调用回调，不经过分发 goroutine。
// 回调必须非阻塞，只能使用 GetBlock/ReleaseBlock/GetStatus，不得调用任何控制操作。
func WithInlineEvents() Option {
	return func(s *Stream) { s.inline = true }
}

// WithCursorStrategy 覆盖默认的生产者游标策略
func WithCursorStrategy(c CursorStrategy) Option {
	return func(s *Stream) { s.cursor = c }
}

// notifier 一次 Initialize 周期内的回调目标
type notifier struct {
	cb Callback
	mb *mailbox
}

func (n *notifier) notify(ev Event) {
	if n.mb != nil {
		n.mb.post(ev)
		return
	}
	n.cb(ev)
}

// Stream 一个通道上的块流驱动。
//
// 控制操作（Initialize/Uninitialize/SetBuf/Start/Stop）互斥执行；
// GetBlock/ReleaseBlock 不加锁，必须由同一个消费 goroutine 调用；
// 中断处理函数只通过原子字段与应用侧交互。
type Stream struct {
	name   string
	dir    Direction
	inst   vsi.Instance
	cfg    ChannelConfig
	layout vsi.Layout
	cursor CursorStrategy
	inline bool

	baseLogger *zap.Logger
	logger     *zap.Logger
	observer   Observer
	xrunLog    rate.Sometimes

	ctl sync.Mutex

	ring   blockRing
	active atomic.Bool
	xrun   atomic.Bool
	eos    atomic.Bool
	events atomic.Pointer[notifier]
}

// NewStream 创建一个通道驱动。Stream 处于未初始化状态，需先调用 Initialize。
func NewStream(name string, dir Direction, inst vsi.Instance, cfg ChannelConfig, opts ...Option) (*Stream, error) {
	if dir != DirectionIn && dir != DirectionOut {
		return nil, types.NewInvalidParameterError(fmt.Sprintf("unknown direction %d", int(dir))).WithChannel(name)
	}
	if cfg == nil {
		return nil, types.NewInvalidParameterError("channel config is required").WithChannel(name)
	}
	if err := cfg.Validate(); err != nil {
		return nil, types.NewInvalidParameterError("invalid channel config").WithChannel(name).WithCause(err)
	}
	if err := inst.Validate(); err != nil {
		return nil, types.NewInvalidParameterError("invalid vsi instance").WithChannel(name).WithCause(err)
	}

	s := &Stream{
		name:       name,
		dir:        dir,
		inst:       inst,
		cfg:        cfg,
		layout:     cfg.Layout(),
		baseLogger: zap.NewNop(),
		observer:   nopObserver{},
		xrunLog:    rate.Sometimes{Interval: time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cursor == CursorDefault {
		s.cursor = cfg.defaultCursor()
	}
	s.logger = s.baseLogger.With(
		zap.String("component", "vstream"),
		zap.String("channel", name),
		zap.Stringer("direction", dir),
	)
	return s, nil
}

// Name 通道名
func (s *Stream) Name() string { return s.name }

// Direction 传输方向
func (s *Stream) Direction() Direction { return s.dir }

// Config 通道配置
func (s *Stream) Config() ChannelConfig { return s.cfg }

// =============================================================================
// 🔧 生命周期
// =============================================================================

// Initialize 清空句柄状态，登记回调，写入静态外设配置并使能完成中断。
// 重复调用会先丢弃上一次的状态，返回时上一次登记的回调已不再执行。cb 可以为 nil。
func (s *Stream) Initialize(cb Callback) error {
	s.ctl.Lock()
	prev := s.detachEvents()
	s.ctl.Unlock()
	prev.wait()

	s.initialize(cb).wait()
	return nil
}

func (s *Stream) initialize(cb Callback) *mailbox {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	old := s.detachEvents()
	s.resetState()

	regs := s.inst.Regs
	regs.Write(vsi.TimerControl, 0)
	regs.Write(vsi.DMAControl, 0)
	regs.Write(vsi.IRQClear, vsi.IRQTimerOverflow)
	regs.Write(vsi.IRQEnable, vsi.IRQTimerOverflow)
	regs.Write(s.controlReg(), s.modeBits())
	s.cfg.program(regs, s.layout)
	regs.Barrier()

	if cb != nil {
		n := &notifier{cb: cb}
		if !s.inline {
			n.mb = newMailbox(cb, s.logger)
		}
		s.events.Store(n)
	}

	s.inst.Intc.EnableIRQ(s.inst.IRQ, s.handleIRQ)
	regs.Barrier()

	s.ring.set(flagInit)

	s.logger.Debug("stream initialized",
		zap.Int("irq", int(s.inst.IRQ)),
		zap.Stringer("cursor", s.cursor),
		zap.Bool("inline_events", s.inline))
	return old
}

// Uninitialize 关闭中断，清除控制/DMA/定时器寄存器并清零句柄。任何状态下都会成功。
// 返回后回调不会再被调用；在异步回调内部调用时不等待回调本身返回。
func (s *Stream) Uninitialize() error {
	s.uninitialize().wait()
	return nil
}

func (s *Stream) uninitialize() *mailbox {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	s.inst.Intc.DisableIRQ(s.inst.IRQ)
	s.inst.Regs.Barrier()

	regs := s.inst.Regs
	regs.Write(vsi.TimerControl, 0)
	regs.Write(vsi.DMAControl, 0)
	regs.Write(vsi.IRQClear, vsi.IRQTimerOverflow)
	regs.Write(vsi.IRQEnable, 0)
	regs.Write(s.controlReg(), 0)
	regs.Barrier()

	wasActive := s.active.Load()
	mb := s.detachEvents()
	s.resetState()
	if wasActive {
		s.observer.ActiveChanged(s.name, false)
	}
	s.observer.BlocksOwned(s.name, 0)

	s.logger.Debug("stream uninitialized")
	return mb
}

// SetBuf 挂载调用方持有的流缓冲区，blockCount = len(buf) / blockSize，余数部分不使用。
// 缓冲区在整个流会话期间必须保持有效，驱动不会复制它。
func (s *Stream) SetBuf(buf []byte, blockSize int) error {
	if buf == nil {
		return s.paramError("buffer is nil")
	}
	if len(buf) == 0 || blockSize <= 0 || blockSize > len(buf) {
		return s.paramError(fmt.Sprintf("invalid buffer geometry: size=%d block_size=%d", len(buf), blockSize))
	}
	if uint64(len(buf)) > uint64(^uint32(0)) {
		return s.paramError(fmt.Sprintf("buffer too large: %d bytes", len(buf)))
	}

	s.ctl.Lock()
	defer s.ctl.Unlock()

	if !s.ring.has(flagInit) {
		return s.stateError("stream not initialized")
	}
	if s.active.Load() {
		return s.stateError("stream is active")
	}

	b := newStreamBuffer(buf, uint32(blockSize))
	s.ring.attach(b)

	regs := s.inst.Regs
	addr := bufferAddress(buf)
	if binder, ok := regs.(vsi.MemoryBinder); ok {
		binder.BindMemory(addr, buf[:b.blockCount*b.blockSize])
	}
	regs.Write(vsi.DMAAddress, addr)
	regs.Write(vsi.DMABlockNum, b.blockCount)
	regs.Write(vsi.DMABlockSize, b.blockSize)
	regs.Barrier()

	s.observer.BlocksOwned(s.name, 0)
	s.logger.Debug("stream buffer set",
		zap.Int("size", len(buf)),
		zap.Uint32("block_size", b.blockSize),
		zap.Uint32("block_count", b.blockCount))
	return nil
}

// Start 启动流式传输。已激活时直接返回 nil。
// 外设在使能后未报告 ACTIVE 时回滚激活状态并返回 DEVICE_ERROR。
func (s *Stream) Start(mode Mode) error {
	if mode != ModeContinuous && mode != ModeSingle {
		return s.paramError(fmt.Sprintf("unknown mode %d", int(mode)))
	}

	s.ctl.Lock()
	defer s.ctl.Unlock()

	if !s.ring.has(flagInit) {
		return s.stateError("stream not initialized")
	}
	b := s.ring.buf.Load()
	if b == nil {
		return s.stateError("buffer not set")
	}
	if s.dir == DirectionIn && s.ring.has(flagBufFull) {
		return s.stateError("buffer is full")
	}
	if s.dir == DirectionOut && s.ring.has(flagBufEmpty) {
		return s.stateError("buffer is empty")
	}
	if s.active.Load() {
		return nil
	}

	s.active.Store(true)
	control := s.modeBits() | vsi.ControlEnable
	timer := vsi.TimerTrigDMA | vsi.TimerTrigIRQ | vsi.TimerRun
	if mode == ModeSingle {
		s.ring.set(flagSingle)
	} else {
		s.ring.clear(flagSingle)
		control |= vsi.ControlContinuous
		timer |= vsi.TimerPeriodic
	}

	regs := s.inst.Regs
	regs.Write(s.controlReg(), s.modeBits())
	regs.Barrier()

	interval := s.cfg.interval(b.blockSize)
	regs.Write(vsi.TimerInterval, interval)
	regs.Barrier()

	regs.Write(s.controlReg(), control)
	regs.Barrier()

	if regs.Read(s.statusReg())&vsi.StatusActive == 0 {
		s.active.Store(false)
		regs.Write(s.controlReg(), s.modeBits())
		regs.Barrier()
		s.observer.StartFailed(s.name)
		s.logger.Warn("peripheral did not report active", zap.Stringer("mode", mode))
		return types.NewDeviceError("peripheral not active after start").WithChannel(s.name)
	}

	regs.Write(vsi.DMAControl, s.dmaDirection()|vsi.DMAEnable)
	regs.Barrier()

	regs.Write(vsi.TimerControl, timer)
	regs.Barrier()

	s.observer.ActiveChanged(s.name, true)
	s.logger.Info("stream started",
		zap.Stringer("mode", mode),
		zap.Uint32("interval_us", interval))
	return nil
}

// Stop 停止流式传输，未激活或未初始化时为空操作。
// 不等待已经在途的完成中断，Stop 之后的一次迟到中断仍可能更新游标。
func (s *Stream) Stop() error {
	s.ctl.Lock()
	defer s.ctl.Unlock()

	if !s.ring.has(flagInit) || !s.active.Load() {
		return nil
	}

	regs := s.inst.Regs
	regs.Write(vsi.TimerControl, 0)
	regs.Write(vsi.DMAControl, 0)
	regs.Write(s.controlReg(), s.modeBits())
	regs.Barrier()

	if s.active.CompareAndSwap(true, false) {
		s.observer.ActiveChanged(s.name, false)
	}
	s.logger.Info("stream stopped")
	return nil
}

// =============================================================================
// 📦 块访问
// =============================================================================

// GetBlock 非阻塞地获取下一块。无缓冲区、输入无新数据或已持有全部块时返回 nil。
// 返回的切片直接引用 SetBuf 传入的缓冲区。
func (s *Stream) GetBlock() []byte {
	p := s.ring.acquire(s.dir)
	if p != nil {
		s.observer.BlocksOwned(s.name, s.ring.owned())
	}
	return p
}

// ReleaseBlock 归还最早获取的一块
func (s *Stream) ReleaseBlock() error {
	if s.ring.buf.Load() == nil {
		return s.stateError("buffer not set")
	}
	if !s.ring.release(s.dir) {
		return s.stateError("no block to release")
	}
	s.observer.BlocksOwned(s.name, s.ring.owned())
	return nil
}

// GetStatus 返回当前状态并原子地清除溢出/欠载与 EOS 粘滞标志
func (s *Stream) GetStatus() Status {
	st := Status{
		Active: s.active.Load(),
		EOS:    s.eos.Swap(false),
	}
	xrun := s.xrun.Swap(false)
	if s.dir == DirectionIn {
		st.Overflow = xrun
	} else {
		st.Underflow = xrun
	}
	return st
}

// Snapshot 返回诊断视图，不清除任何标志
func (s *Stream) Snapshot() Snapshot {
	flags := s.ring.flags.Load()
	snap := Snapshot{
		Channel:     s.name,
		Direction:   s.dir,
		Initialized: flags&flagInit != 0,
		Active:      s.active.Load(),
		Mode:        ModeContinuous.String(),
		IdxGet:      int(s.ring.idxGet.Load()),
		IdxRelease:  int(s.ring.idxRel.Load()),
		IdxProducer: int(s.ring.idxProd.Load()),
		LimitOwned:  flags&flagLimitOwn != 0,
		Empty:       flags&flagBufEmpty != 0,
		Full:        flags&flagBufFull != 0,
		Xrun:        s.xrun.Load(),
		EOS:         s.eos.Load(),
	}
	if flags&flagSingle != 0 {
		snap.Mode = ModeSingle.String()
	}
	if b := s.ring.buf.Load(); b != nil {
		snap.BlockSize = int(b.blockSize)
		snap.BlockCount = int(b.blockCount)
	}
	return snap
}

// =============================================================================
// 内部辅助
// =============================================================================

func (s *Stream) resetState() {
	s.ring.reset()
	s.active.Store(false)
	s.xrun.Store(false)
	s.eos.Store(false)
}

// detachEvents 解除回调并关闭分发 goroutine，未投递的事件被丢弃。
// 调用方在释放 ctl 之后对返回的 mailbox 调用 wait，
// 正在执行的回调可能仍在等待 ctl。
func (s *Stream) detachEvents() *mailbox {
	n := s.events.Swap(nil)
	if n == nil || n.mb == nil {
		return nil
	}
	n.mb.close()
	return n.mb
}

func (s *Stream) controlReg() vsi.Offset { return vsi.Reg(s.layout.Control) }

func (s *Stream) statusReg() vsi.Offset { return vsi.Reg(s.layout.Status) }

func (s *Stream) modeBits() uint32 {
	if s.dir == DirectionIn {
		return vsi.ControlModeIn
	}
	return vsi.ControlModeOut
}

func (s *Stream) dmaDirection() uint32 {
	if s.dir == DirectionIn {
		return vsi.DMADirectionP2M
	}
	return vsi.DMADirectionM2P
}

func (s *Stream) paramError(msg string) error {
	return types.NewInvalidParameterError(msg).WithChannel(s.name)
}

func (s *Stream) stateError(msg string) error {
	return types.NewInvalidStateError(msg).WithChannel(s.name)
}

// bufferAddress 缓冲区首地址的低 32 位，作为 DMA.Address 的值
func bufferAddress(buf []byte) uint32 {
	return uint32(uintptr(unsafe.Pointer(unsafe.SliceData(buf))))
}

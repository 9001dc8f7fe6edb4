package sim

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/vstream/vsi"
)

// Access 寄存器访问日志中的一项
type Access struct {
	Barrier bool
	Offset  vsi.Offset
	Value   uint32
}

func (a Access) String() string {
	if a.Barrier {
		return "barrier"
	}
	return fmt.Sprintf("%s=0x%X", a.Offset, a.Value)
}

// Option 配置 Peripheral
type Option func(*Peripheral)

// WithLayout 设置用户寄存器布局，默认 vsi.AudioLayout
func WithLayout(l vsi.Layout) Option {
	return func(p *Peripheral) { p.layout = l }
}

// WithManualTiming 定时器不自动运行，由测试调用 Complete 驱动
func WithManualTiming() Option {
	return func(p *Peripheral) { p.manual = true }
}

// WithSource 设置输入数据源（未通过 FILENAME 指定文件时使用）
func WithSource(src Source) Option {
	return func(p *Peripheral) { p.source = src }
}

// WithSink 设置输出去向（未通过 FILENAME 指定文件时使用）
func WithSink(sink Sink) Option {
	return func(p *Peripheral) { p.sink = sink }
}

// WithFileRoot 允许通过 FILENAME 寄存器打开 root 下的文件
func WithFileRoot(root string) Option {
	return func(p *Peripheral) { p.fileRoot = root }
}

// WithBase 设置实例基地址
func WithBase(base uint32) Option {
	return func(p *Peripheral) { p.base = base }
}

// WithLogger 设置日志记录器
func WithLogger(logger *zap.Logger) Option {
	return func(p *Peripheral) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Peripheral 软件实现的 VSI 外设，实现 vsi.Registers 与 vsi.MemoryBinder。
//
// 寄存器访问在 mu 下完成；中断在释放 mu 之后通过 Controller 投递，
// 因此中断处理函数可以正常读写寄存器。
type Peripheral struct {
	name     string
	base     uint32
	irq      vsi.IRQn
	intc     *Controller
	layout   vsi.Layout
	manual   bool
	fileRoot string
	logger   *zap.Logger

	refuse atomic.Bool

	mu       sync.Mutex
	irqEn    uint32
	irqStat  uint32
	timerCtl uint32
	interval uint32
	count    uint32
	dmaCtl   uint32
	dmaAddr  uint32
	dmaSize  uint32
	dmaNum   uint32
	dmaIdx   uint32
	user     [vsi.UserRegCount]uint32
	filename []byte

	mem     []byte
	memAddr uint32

	source    Source
	sink      Sink
	reader    io.Reader
	writer    io.Writer
	closer    io.Closer
	exhausted bool

	timerGen  uint64
	timerStop chan struct{}

	journal  []Access
	barriers int
}

// New 创建软件外设
func New(name string, irq vsi.IRQn, intc *Controller, opts ...Option) *Peripheral {
	p := &Peripheral{
		name:   name,
		irq:    irq,
		intc:   intc,
		layout: vsi.AudioLayout,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("component", "vsi_sim"), zap.String("vsi", name))
	return p
}

// Instance 返回绑定到本外设的 vsi.Instance
func (p *Peripheral) Instance() vsi.Instance {
	return vsi.Instance{
		Name: p.name,
		Base: p.base,
		IRQ:  p.irq,
		Regs: p,
		Intc: p.intc,
	}
}

// RefuseActivation 故障注入：使能后 STATUS.ACTIVE 保持为 0
func (p *Peripheral) RefuseActivation(refuse bool) {
	p.refuse.Store(refuse)
}

// =============================================================================
// vsi.Registers
// =============================================================================

// Read 实现 vsi.Registers。读取用户 STATUS 会清除 DATA 位。
func (p *Peripheral) Read(off vsi.Offset) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch off {
	case vsi.IRQEnable:
		return p.irqEn
	case vsi.IRQStatus:
		return p.irqStat
	case vsi.TimerControl:
		return p.timerCtl
	case vsi.TimerInterval:
		return p.interval
	case vsi.TimerCount:
		return p.count
	case vsi.DMAControl:
		return p.dmaCtl
	case vsi.DMAAddress:
		return p.dmaAddr
	case vsi.DMABlockSize:
		return p.dmaSize
	case vsi.DMABlockNum:
		return p.dmaNum
	case vsi.DMABlockIndex:
		return p.dmaIdx
	}

	i, ok := off.UserIndex()
	if !ok {
		return 0
	}
	v := p.user[i]
	if i == p.layout.Status {
		p.user[i] &^= vsi.StatusData
	}
	return v
}

// Write 实现 vsi.Registers
func (p *Peripheral) Write(off vsi.Offset, value uint32) {
	p.mu.Lock()
	p.record(Access{Offset: off, Value: value})
	raise := p.writeLocked(off, value)
	p.mu.Unlock()

	if raise {
		p.intc.Raise(p.irq)
	}
}

// Barrier 实现 vsi.Registers
func (p *Peripheral) Barrier() {
	p.mu.Lock()
	p.barriers++
	p.record(Access{Barrier: true})
	p.mu.Unlock()
}

// journalLimit 访问记录上限，超出后丢弃较早的一半
const journalLimit = 4096

func (p *Peripheral) record(a Access) {
	if len(p.journal) >= journalLimit {
		n := copy(p.journal, p.journal[journalLimit/2:])
		p.journal = p.journal[:n]
	}
	p.journal = append(p.journal, a)
}

// BindMemory 实现 vsi.MemoryBinder
func (p *Peripheral) BindMemory(addr uint32, mem []byte) {
	p.mu.Lock()
	p.memAddr = addr
	p.mem = mem
	p.mu.Unlock()
}

func (p *Peripheral) writeLocked(off vsi.Offset, v uint32) bool {
	switch off {
	case vsi.IRQEnable:
		p.irqEn = v
		return p.irqEn&p.irqStat != 0
	case vsi.IRQSet:
		p.irqStat |= v
		return p.irqEn&p.irqStat != 0
	case vsi.IRQClear:
		p.irqStat &^= v
	case vsi.TimerControl:
		p.writeTimerControl(v)
	case vsi.TimerInterval:
		p.interval = v
	case vsi.DMAControl:
		// 重新使能不复位块索引，Stop 之后再 Start 从下一块继续
		p.dmaCtl = v
	case vsi.DMAAddress:
		p.dmaAddr = v
		p.dmaIdx = 0
	case vsi.DMABlockSize:
		p.dmaSize = v
	case vsi.DMABlockNum:
		p.dmaNum = v
		p.dmaIdx = 0
	default:
		if i, ok := off.UserIndex(); ok {
			p.writeUser(i, v)
		}
	}
	return false
}

func (p *Peripheral) writeUser(i int, v uint32) {
	switch i {
	case p.layout.Status:
		// 只读
	case p.layout.Control:
		old := p.user[i]
		p.user[i] = v
		if v&vsi.ControlEnable != 0 && old&vsi.ControlEnable == 0 {
			p.open(v)
		} else if v&vsi.ControlEnable == 0 && old&vsi.ControlEnable != 0 {
			p.close()
		}
	case p.layout.Filename:
		status := &p.user[p.layout.Status]
		if *status&vsi.StatusFileName != 0 {
			// 上一个文件名已结束，开始接收新文件名
			*status &^= vsi.StatusFileName | vsi.StatusFileValid
			p.filename = p.filename[:0]
		}
		if v != 0 {
			p.filename = append(p.filename, byte(v))
			return
		}
		*status |= vsi.StatusFileName
	default:
		p.user[i] = v
	}
}

// =============================================================================
// 流打开/关闭
// =============================================================================

func (p *Peripheral) open(control uint32) {
	status := &p.user[p.layout.Status]
	*status &^= vsi.StatusActive | vsi.StatusData | vsi.StatusEOS | vsi.StatusFileValid
	p.exhausted = false

	if p.refuse.Load() {
		p.logger.Debug("activation refused")
		return
	}

	mode := control & vsi.ControlModeMsk
	if err := p.attachBackend(mode); err != nil {
		p.logger.Warn("stream backend unavailable",
			zap.String("filename", string(p.filename)),
			zap.Error(err))
		return
	}
	*status |= vsi.StatusActive
	p.logger.Debug("stream opened",
		zap.Uint32("mode", mode>>1),
		zap.Bool("continuous", control&vsi.ControlContinuous != 0))
}

func (p *Peripheral) attachBackend(mode uint32) error {
	status := &p.user[p.layout.Status]
	hasFile := *status&vsi.StatusFileName != 0 && len(p.filename) > 0

	switch mode {
	case vsi.ControlModeIn:
		if hasFile {
			rc, err := openSource(p.fileRoot, string(p.filename))
			if err != nil {
				return err
			}
			p.reader, p.closer = rc, rc
			*status |= vsi.StatusFileValid
			return nil
		}
		if p.source == nil {
			p.source = NewPatternSource(nil)
		}
		p.reader = p.source
	case vsi.ControlModeOut:
		if hasFile {
			wc, err := openSink(p.fileRoot, string(p.filename), p.audioFormat())
			if err != nil {
				return err
			}
			p.writer, p.closer = wc, wc
			*status |= vsi.StatusFileValid
			return nil
		}
		if p.sink == nil {
			p.sink = io.Discard
		}
		p.writer = p.sink
	default:
		return fmt.Errorf("control mode %d not streamable", mode>>1)
	}
	return nil
}

func (p *Peripheral) audioFormat() AudioFormat {
	get := func(i int) int {
		if i == vsi.NoReg {
			return 0
		}
		return int(p.user[i])
	}
	return AudioFormat{
		Channels:   get(p.layout.Channels),
		SampleBits: get(p.layout.SampleBits),
		SampleRate: get(p.layout.SampleRate),
	}
}

func (p *Peripheral) close() {
	p.user[p.layout.Status] &^= vsi.StatusActive | vsi.StatusData | vsi.StatusEOS
	if p.closer != nil {
		if err := p.closer.Close(); err != nil {
			p.logger.Warn("close stream backend", zap.Error(err))
		}
	}
	p.reader, p.writer, p.closer = nil, nil, nil
	p.logger.Debug("stream closed")
}

// =============================================================================
// ⏱️ 定时器与 DMA
// =============================================================================

func (p *Peripheral) writeTimerControl(v uint32) {
	wasRunning := p.timerCtl&vsi.TimerRun != 0
	p.timerCtl = v
	running := v&vsi.TimerRun != 0

	if wasRunning && p.timerStop != nil {
		close(p.timerStop)
		p.timerStop = nil
	}
	p.timerGen++
	if !running || p.manual {
		return
	}

	interval := time.Duration(max(p.interval, 1)) * time.Microsecond
	stop := make(chan struct{})
	p.timerStop = stop
	go p.runTimer(p.timerGen, interval, stop)
}

func (p *Peripheral) runTimer(gen uint64, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.mu.Lock()
			if p.timerGen != gen {
				p.mu.Unlock()
				return
			}
			raise, again := p.completeLocked()
			p.mu.Unlock()
			if raise {
				p.intc.Raise(p.irq)
			}
			if !again {
				return
			}
		}
	}
}

// Complete 手动完成一个定时器周期（DMA 传输一块并触发中断）。
// 定时器未运行时返回 false。
func (p *Peripheral) Complete() bool {
	p.mu.Lock()
	if p.timerCtl&vsi.TimerRun == 0 {
		p.mu.Unlock()
		return false
	}
	raise, _ := p.completeLocked()
	p.mu.Unlock()
	if raise {
		p.intc.Raise(p.irq)
	}
	return true
}

// completeLocked 执行一次定时器溢出，返回是否需要投递中断以及定时器是否继续运行
func (p *Peripheral) completeLocked() (raise bool, again bool) {
	p.count++
	ctl := p.timerCtl

	if ctl&vsi.TimerTrigDMA != 0 && p.dmaCtl&vsi.DMAEnable != 0 {
		p.transferLocked()
	}
	if ctl&vsi.TimerPeriodic == 0 {
		p.timerCtl &^= vsi.TimerRun
		p.timerGen++
		p.timerStop = nil
	}
	if ctl&vsi.TimerTrigIRQ != 0 {
		p.irqStat |= vsi.IRQTimerOverflow
		raise = p.irqEn&p.irqStat != 0
	}
	return raise, p.timerCtl&vsi.TimerRun != 0
}

// transferLocked 在 DMA.BlockIndex 处搬运一块，然后推进索引
func (p *Peripheral) transferLocked() {
	status := &p.user[p.layout.Status]
	if *status&vsi.StatusActive == 0 || p.dmaNum == 0 || p.dmaSize == 0 {
		return
	}
	block, err := p.blockLocked(p.dmaIdx)
	if err != nil {
		p.logger.Warn("dma transfer skipped", zap.Error(err))
		return
	}

	if p.dmaCtl&vsi.DMADirectionMsk == vsi.DMADirectionP2M {
		if p.reader == nil || p.exhausted {
			*status |= vsi.StatusEOS
			return
		}
		n, err := io.ReadFull(p.reader, block)
		if err != nil {
			clear(block[n:])
			p.exhausted = true
			*status |= vsi.StatusEOS
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				p.logger.Warn("source read failed", zap.Error(err))
			}
			if n == 0 {
				return
			}
		}
	} else if p.writer != nil {
		if _, err := p.writer.Write(block); err != nil {
			p.logger.Warn("sink write failed", zap.Error(err))
		}
	}

	*status |= vsi.StatusData
	p.dmaIdx = (p.dmaIdx + 1) % p.dmaNum
}

func (p *Peripheral) blockLocked(idx uint32) ([]byte, error) {
	if p.mem == nil || p.memAddr != p.dmaAddr {
		return nil, fmt.Errorf("no memory bound at 0x%08X", p.dmaAddr)
	}
	off := uint64(idx) * uint64(p.dmaSize)
	end := off + uint64(p.dmaSize)
	if end > uint64(len(p.mem)) {
		return nil, fmt.Errorf("block %d exceeds bound memory (%d bytes)", idx, len(p.mem))
	}
	return p.mem[off:end:end], nil
}

// =============================================================================
// 🧪 测试辅助
// =============================================================================

// SignalEOS 置位 STATUS.EOS 并产生一次中断（不搬运数据）
func (p *Peripheral) SignalEOS() {
	p.mu.Lock()
	p.user[p.layout.Status] |= vsi.StatusEOS
	p.irqStat |= vsi.IRQTimerOverflow
	raise := p.irqEn&p.irqStat != 0
	p.mu.Unlock()
	if raise {
		p.intc.Raise(p.irq)
	}
}

// Journal 返回寄存器写入与屏障的顺序记录
func (p *Peripheral) Journal() []Access {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Access(nil), p.journal...)
}

// ResetJournal 清空访问记录
func (p *Peripheral) ResetJournal() {
	p.mu.Lock()
	p.journal = nil
	p.barriers = 0
	p.mu.Unlock()
}

// Barriers 已执行的屏障次数
func (p *Peripheral) Barriers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.barriers
}

// UserReg 直接读取用户寄存器，不触发读副作用
func (p *Peripheral) UserReg(i int) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.user[i]
}

// Filename 已通过 FILENAME 寄存器接收的文件名
func (p *Peripheral) Filename() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return string(p.filename)
}

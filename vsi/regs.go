package vsi

import "fmt"

// Offset 寄存器相对实例基地址的字节偏移
type Offset uint32

// IRQ 寄存器组
const (
	IRQEnable Offset = 0x000
	IRQSet    Offset = 0x004
	IRQClear  Offset = 0x008
	IRQStatus Offset = 0x00C
)

// Timer 寄存器组（1MHz 输入时钟）
const (
	TimerControl  Offset = 0x100
	TimerInterval Offset = 0x104 // 微秒
	TimerCount    Offset = 0x108 // 只读，溢出计数
)

// DMA 寄存器组
const (
	DMAControl    Offset = 0x200
	DMAAddress    Offset = 0x204
	DMABlockSize  Offset = 0x208
	DMABlockNum   Offset = 0x20C
	DMABlockIndex Offset = 0x210 // 只读
)

const (
	userRegsBase Offset = 0x300
	// UserRegCount 用户寄存器数量
	UserRegCount = 64
)

// Reg 返回第 i 个用户寄存器的偏移
func Reg(i int) Offset {
	if i < 0 || i >= UserRegCount {
		panic(fmt.Sprintf("vsi: user register index %d out of range", i))
	}
	return userRegsBase + Offset(4*i)
}

// UserIndex 将偏移反解为用户寄存器下标，非用户寄存器返回 false
func (o Offset) UserIndex() (int, bool) {
	if o < userRegsBase || o >= userRegsBase+4*UserRegCount || o%4 != 0 {
		return 0, false
	}
	return int(o-userRegsBase) / 4, true
}

func (o Offset) String() string {
	switch o {
	case IRQEnable:
		return "IRQ.Enable"
	case IRQSet:
		return "IRQ.Set"
	case IRQClear:
		return "IRQ.Clear"
	case IRQStatus:
		return "IRQ.Status"
	case TimerControl:
		return "Timer.Control"
	case TimerInterval:
		return "Timer.Interval"
	case TimerCount:
		return "Timer.Count"
	case DMAControl:
		return "DMA.Control"
	case DMAAddress:
		return "DMA.Address"
	case DMABlockSize:
		return "DMA.BlockSize"
	case DMABlockNum:
		return "DMA.BlockNum"
	case DMABlockIndex:
		return "DMA.BlockIndex"
	}
	if i, ok := o.UserIndex(); ok {
		return fmt.Sprintf("Regs[%d]", i)
	}
	return fmt.Sprintf("0x%03X", uint32(o))
}

// Timer.Control 位定义
const (
	TimerRun      uint32 = 1 << 0
	TimerPeriodic uint32 = 1 << 1
	TimerTrigIRQ  uint32 = 1 << 2
	TimerTrigDMA  uint32 = 1 << 3
)

// DMA.Control 位定义
const (
	DMAEnable       uint32 = 1 << 0
	DMADirectionMsk uint32 = 1 << 1
	DMADirectionP2M uint32 = 0 * DMADirectionMsk // 外设到内存（输入）
	DMADirectionM2P uint32 = 1 * DMADirectionMsk // 内存到外设（输出）
)

// IRQ 位定义
const (
	IRQTimerOverflow uint32 = 1 << 0
)

// 用户 CONTROL 寄存器位定义
const (
	ControlEnable     uint32 = 1 << 0
	ControlModeMsk    uint32 = 3 << 1
	ControlModeNone   uint32 = 0 << 1
	ControlModeIn     uint32 = 1 << 1
	ControlModeOut    uint32 = 2 << 1
	ControlContinuous uint32 = 1 << 3
)

// 用户 STATUS 寄存器位定义
const (
	StatusActive    uint32 = 1 << 0
	StatusData      uint32 = 1 << 1
	StatusEOS       uint32 = 1 << 2
	StatusFileName  uint32 = 1 << 3
	StatusFileValid uint32 = 1 << 4
)

// NoReg 表示 Layout 中不存在的寄存器
const NoReg = -1

// Layout 描述一种外设配置下用户寄存器的用途
type Layout struct {
	Status   int
	Control  int
	Device   int
	Filename int

	Channels   int
	SampleBits int
	SampleRate int

	FrameWidth  int
	FrameHeight int
	FrameRate   int
	FrameColor  int
}

// AudioLayout 音频通道的用户寄存器分配
var AudioLayout = Layout{
	Status:      0,
	Control:     1,
	Channels:    2,
	SampleBits:  3,
	SampleRate:  4,
	Device:      5,
	Filename:    6,
	FrameWidth:  NoReg,
	FrameHeight: NoReg,
	FrameRate:   NoReg,
	FrameColor:  NoReg,
}

// VideoLayout 视频通道的用户寄存器分配
var VideoLayout = Layout{
	Control:     0,
	Status:      1,
	Device:      2,
	Filename:    3,
	FrameWidth:  4,
	FrameHeight: 5,
	FrameRate:   6,
	FrameColor:  7,
	Channels:    NoReg,
	SampleBits:  NoReg,
	SampleRate:  NoReg,
}

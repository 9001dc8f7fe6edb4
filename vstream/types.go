package vstream

import (
	"fmt"
	"strings"
)

// Direction 数据传输方向
type Direction int

const (
	// DirectionIn 外设到内存：中断侧生产，应用侧消费
	DirectionIn Direction = iota
	// DirectionOut 内存到外设：应用侧生产，中断侧消费
	DirectionOut
)

func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "in"
	case DirectionOut:
		return "out"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Mode 流式传输模式
type Mode int

const (
	// ModeContinuous 周期性传输，直到 Stop 或 EOS
	ModeContinuous Mode = iota
	// ModeSingle 单块传输，首次完成后自动停止
	ModeSingle
)

func (m Mode) String() string {
	switch m {
	case ModeContinuous:
		return "continuous"
	case ModeSingle:
		return "single"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode 将配置字符串解析为 Mode
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "continuous":
		return ModeContinuous, nil
	case "single":
		return ModeSingle, nil
	default:
		return 0, fmt.Errorf("unknown stream mode %q", s)
	}
}

// Event 回调事件位掩码
type Event uint32

const (
	EventData      Event = 1 << 0 // 一个数据块已传输
	EventOverflow  Event = 1 << 1 // 输入缓冲区溢出（仅连续模式）
	EventUnderflow Event = 1 << 2 // 输出缓冲区欠载（仅连续模式）
	EventEOS       Event = 1 << 3 // 外设报告流结束
)

// Has 检查是否包含全部给定事件位
func (e Event) Has(flags Event) bool {
	return e&flags == flags
}

func (e Event) String() string {
	if e == 0 {
		return "none"
	}
	var parts []string
	for _, f := range []struct {
		bit  Event
		name string
	}{
		{EventData, "data"},
		{EventOverflow, "overflow"},
		{EventUnderflow, "underflow"},
		{EventEOS, "eos"},
	} {
		if e&f.bit != 0 {
			parts = append(parts, f.name)
			e &^= f.bit
		}
	}
	if e != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(e)))
	}
	return strings.Join(parts, "|")
}

// Callback 应用事件回调，每次中断最多调用一次，携带合并后的事件掩码。
// 回调在事件分发 goroutine 上执行，而不是在中断上下文中。
type Callback func(event Event)

// Status GetStatus 返回值。Overflow 仅对输入方向有意义，Underflow 仅对输出方向有意义。
type Status struct {
	Active    bool `json:"active"`
	Overflow  bool `json:"overflow"`
	Underflow bool `json:"underflow"`
	EOS       bool `json:"eos"`
}

// Snapshot 诊断视图，读取时不会清除粘滞标志
type Snapshot struct {
	Channel     string    `json:"channel"`
	Direction   Direction `json:"-"`
	Initialized bool      `json:"initialized"`
	Active      bool      `json:"active"`
	Mode        string    `json:"mode"`
	BlockSize   int       `json:"block_size"`
	BlockCount  int       `json:"block_count"`
	IdxGet      int       `json:"idx_get"`
	IdxRelease  int       `json:"idx_release"`
	IdxProducer int       `json:"idx_producer"`
	LimitOwned  bool      `json:"limit_owned"`
	Empty       bool      `json:"empty"`
	Full        bool      `json:"full"`
	Xrun        bool      `json:"xrun"`
	EOS         bool      `json:"eos"`
}

// Observer 接收流事件的观测者（指标采集）。实现必须是并发安全且非阻塞的，
// 部分方法会在中断处理路径上调用。
type Observer interface {
	BlockTransferred(channel string, dir Direction)
	Xrun(channel string, dir Direction)
	EndOfStream(channel string)
	StartFailed(channel string)
	ActiveChanged(channel string, active bool)
	BlocksOwned(channel string, owned int)
}

type nopObserver struct{}

func (nopObserver) BlockTransferred(string, Direction) {}
func (nopObserver) Xrun(string, Direction)             {}
func (nopObserver) EndOfStream(string)                 {}
func (nopObserver) StartFailed(string)                 {}
func (nopObserver) ActiveChanged(string, bool)         {}
func (nopObserver) BlocksOwned(string, int)            {}

package vsi

import "fmt"

// Registers 外设寄存器的类型化访问接口。
// 实现必须按调用顺序生效，不得合并或省略写操作（读操作可能有副作用）。
type Registers interface {
	Read(off Offset) uint32
	Write(off Offset, value uint32)
	// Barrier 数据同步 + 指令同步屏障，保证之前的写入已被外设观察到
	Barrier()
}

// IRQn 中断号
type IRQn int

// InterruptController 中断控制器（NVIC 的抽象）
type InterruptController interface {
	EnableIRQ(n IRQn, handler func())
	DisableIRQ(n IRQn)
}

// MemoryBinder 可选能力：软件外设通过它访问 DMA.Address 指向的内存
type MemoryBinder interface {
	BindMemory(addr uint32, mem []byte)
}

// Instance 一个 VSI 外设实例
type Instance struct {
	Name string
	Base uint32
	IRQ  IRQn
	Regs Registers
	Intc InterruptController
}

// Validate 检查实例是否可用
func (i Instance) Validate() error {
	if i.Regs == nil {
		return fmt.Errorf("vsi %s: registers not set", i.Name)
	}
	if i.Intc == nil {
		return fmt.Errorf("vsi %s: interrupt controller not set", i.Name)
	}
	return nil
}

// 8 个 VSI 外设的地址与中断号
const (
	InstanceCount = 8

	baseSecure    uint32 = 0x5FF00000
	baseNonSecure uint32 = 0x4FF00000
	baseStride    uint32 = 0x00010000

	irqBase IRQn = 224
)

// BaseAddress 返回第 n 个 VSI 的基地址
func BaseAddress(n int, secure bool) uint32 {
	checkIndex(n)
	if secure {
		return baseSecure + uint32(n)*baseStride
	}
	return baseNonSecure + uint32(n)*baseStride
}

// IRQNumber 返回第 n 个 VSI 的中断号
func IRQNumber(n int) IRQn {
	checkIndex(n)
	return irqBase + IRQn(n)
}

func checkIndex(n int) {
	if n < 0 || n >= InstanceCount {
		panic(fmt.Sprintf("vsi: instance %d out of range", n))
	}
}

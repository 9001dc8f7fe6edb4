package vstream

import (
	"go.uber.org/zap"

	"github.com/BaSui01/vstream/vsi"
)

// handleIRQ 块传输完成中断处理函数。同一通道上由中断控制器串行调用。
func (s *Stream) handleIRQ() {
	regs := s.inst.Regs

	status := regs.Read(s.statusReg())
	regs.Write(vsi.IRQClear, vsi.IRQTimerOverflow)
	regs.Barrier()

	var ev Event
	single := s.ring.has(flagSingle)

	if status&vsi.StatusData != 0 {
		ev |= EventData
		if s.produce(single) {
			if s.dir == DirectionIn {
				ev |= EventOverflow
			} else {
				ev |= EventUnderflow
			}
		}
	}

	if status&vsi.StatusEOS != 0 {
		s.eos.Store(true)
		ev |= EventEOS
		s.observer.EndOfStream(s.name)
	}

	if single && s.active.CompareAndSwap(true, false) {
		s.observer.ActiveChanged(s.name, false)
	}

	if ev == 0 {
		return
	}
	if n := s.events.Load(); n != nil {
		n.notify(ev)
	}
}

// produce 推进生产者游标，返回是否发生了溢出/欠载
func (s *Stream) produce(single bool) bool {
	var next func() uint32
	if s.cursor == CursorFromDMA {
		next = func() uint32 { return s.inst.Regs.Read(vsi.DMABlockIndex) }
	}

	caught, ok := s.ring.advance(s.dir, next)
	if !ok {
		return false
	}
	s.observer.BlockTransferred(s.name, s.dir)

	if !caught || single {
		return false
	}
	s.xrun.Store(true)
	s.observer.Xrun(s.name, s.dir)
	s.xrunLog.Do(func() {
		kind := "overflow"
		if s.dir == DirectionOut {
			kind = "underflow"
		}
		s.logger.Warn("stream "+kind,
			zap.Int("producer", int(s.ring.idxProd.Load())),
			zap.Int("released", int(s.ring.idxRel.Load())))
	})
	return true
}

package sim

import (
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/vstream/vsi"
)

// Controller 软件中断控制器。
// 所有中断在 deliver 锁下串行执行，处理函数之间不会重入；
// DisableIRQ 会等待正在执行的处理函数返回。
type Controller struct {
	mu       sync.Mutex
	handlers map[vsi.IRQn]func()
	deliver  sync.Mutex
	logger   *zap.Logger
}

// NewController 创建中断控制器
func NewController(logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		handlers: make(map[vsi.IRQn]func()),
		logger:   logger.With(zap.String("component", "vsi_intc")),
	}
}

// EnableIRQ 实现 vsi.InterruptController
func (c *Controller) EnableIRQ(n vsi.IRQn, handler func()) {
	c.mu.Lock()
	c.handlers[n] = handler
	c.mu.Unlock()
	c.logger.Debug("irq enabled", zap.Int("irq", int(n)))
}

// DisableIRQ 实现 vsi.InterruptController。不得在中断处理函数内调用。
func (c *Controller) DisableIRQ(n vsi.IRQn) {
	c.deliver.Lock()
	defer c.deliver.Unlock()

	c.mu.Lock()
	delete(c.handlers, n)
	c.mu.Unlock()
	c.logger.Debug("irq disabled", zap.Int("irq", int(n)))
}

// Enabled 报告中断是否已使能
func (c *Controller) Enabled(n vsi.IRQn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.handlers[n]
	return ok
}

// Raise 在调用方 goroutine 上同步执行中断处理函数；中断未使能时返回 false
func (c *Controller) Raise(n vsi.IRQn) bool {
	c.deliver.Lock()
	defer c.deliver.Unlock()

	c.mu.Lock()
	h := c.handlers[n]
	c.mu.Unlock()
	if h == nil {
		return false
	}
	h()
	return true
}

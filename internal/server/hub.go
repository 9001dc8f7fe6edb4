package server

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/vstream/vstream"
)

// EventMessage 推送给 /events 订阅者的消息
type EventMessage struct {
	Session string    `json:"session,omitempty"`
	Channel string    `json:"channel"`
	Events  string    `json:"events"`
	Mask    uint32    `json:"mask"`
	Time    time.Time `json:"time"`
}

// Hub 把流事件扇出给所有 websocket 订阅者。
// Publish 从不阻塞，订阅者缓冲区满时丢弃消息并计数。
type Hub struct {
	buffer  int
	logger  *zap.Logger
	dropped atomic.Uint64

	mu     sync.RWMutex
	subs   map[chan EventMessage]struct{}
	closed bool
}

// NewHub 创建事件中心，buffer 为每个订阅者的缓冲深度
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		buffer: buffer,
		logger: logger.With(zap.String("component", "event_hub")),
		subs:   make(map[chan EventMessage]struct{}),
	}
}

// PublishEvent 发布一个通道的事件掩码
func (h *Hub) PublishEvent(session, channel string, ev vstream.Event) {
	h.Publish(EventMessage{
		Session: session,
		Channel: channel,
		Events:  ev.String(),
		Mask:    uint32(ev),
		Time:    time.Now(),
	})
}

// Publish 非阻塞地投递给所有订阅者
func (h *Hub) Publish(msg EventMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return
	}
	for ch := range h.subs {
		select {
		case ch <- msg:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe 注册订阅者，返回消息通道与取消函数。Hub 关闭后通道被关闭。
func (h *Hub) Subscribe() (<-chan EventMessage, func()) {
	ch := make(chan EventMessage, h.buffer)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	h.subs[ch] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	h.logger.Debug("event subscriber added", zap.Int("subscribers", n))

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if _, ok := h.subs[ch]; ok {
				delete(h.subs, ch)
				close(ch)
			}
		})
	}
}

// Subscribers 当前订阅者数量
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped 因订阅者缓冲区满而丢弃的消息数
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

// Close 关闭所有订阅通道，之后的 Publish 为空操作
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subs {
		close(ch)
	}
	h.subs = nil
}

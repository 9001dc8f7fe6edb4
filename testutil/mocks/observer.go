package mocks

import (
	"sync"

	"github.com/BaSui01/vstream/vstream"
)

// ObserverEvent MockObserver 记录的一次调用
type ObserverEvent struct {
	Kind      string
	Channel   string
	Direction vstream.Direction
	Active    bool
	Owned     int
}

// MockObserver 记录全部调用的 vstream.Observer
type MockObserver struct {
	mu     sync.Mutex
	events []ObserverEvent
}

// NewMockObserver 创建 MockObserver
func NewMockObserver() *MockObserver {
	return &MockObserver{}
}

func (m *MockObserver) record(ev ObserverEvent) {
	m.mu.Lock()
	m.events = append(m.events, ev)
	m.mu.Unlock()
}

func (m *MockObserver) BlockTransferred(channel string, dir vstream.Direction) {
	m.record(ObserverEvent{Kind: "block", Channel: channel, Direction: dir})
}

func (m *MockObserver) Xrun(channel string, dir vstream.Direction) {
	m.record(ObserverEvent{Kind: "xrun", Channel: channel, Direction: dir})
}

func (m *MockObserver) EndOfStream(channel string) {
	m.record(ObserverEvent{Kind: "eos", Channel: channel})
}

func (m *MockObserver) StartFailed(channel string) {
	m.record(ObserverEvent{Kind: "start_failed", Channel: channel})
}

func (m *MockObserver) ActiveChanged(channel string, active bool) {
	m.record(ObserverEvent{Kind: "active", Channel: channel, Active: active})
}

func (m *MockObserver) BlocksOwned(channel string, owned int) {
	m.record(ObserverEvent{Kind: "owned", Channel: channel, Owned: owned})
}

// Events 返回记录的调用副本
func (m *MockObserver) Events() []ObserverEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ObserverEvent(nil), m.events...)
}

// Count 返回指定类型调用的次数
func (m *MockObserver) Count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range m.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// Last 返回指定类型的最后一次调用
func (m *MockObserver) Last(kind string) (ObserverEvent, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Kind == kind {
			return m.events[i], true
		}
	}
	return ObserverEvent{}, false
}

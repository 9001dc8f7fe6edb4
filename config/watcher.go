// =============================================================================
// 👀 配置文件监视器
// =============================================================================
// 轮询配置文件修改时间，防抖后经 Loader 重新加载并通知订阅者。
// 重新加载失败时保留旧配置，仅记录日志。
// =============================================================================
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Watcher 监视配置文件并在变更后重新加载
type Watcher struct {
	loader        *Loader
	pollInterval  time.Duration
	debounceDelay time.Duration
	logger        *zap.Logger

	mu        sync.RWMutex
	callbacks []func(*Config)
	lastMod   time.Time
	running   bool
	stop      chan struct{}
	done      chan struct{}
}

// WatcherOption 监视器选项
type WatcherOption func(*Watcher)

// WithPollInterval 设置轮询间隔
func WithPollInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithDebounceDelay 设置防抖延迟
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = d
	}
}

// WithWatcherLogger 设置日志记录器
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWatcher 为 loader 的配置文件创建监视器
func NewWatcher(loader *Loader, opts ...WatcherOption) (*Watcher, error) {
	if loader == nil || loader.ConfigPath() == "" {
		return nil, errors.New("watcher requires a loader with a config path")
	}

	w := &Watcher{
		loader:        loader,
		pollInterval:  time.Second,
		debounceDelay: 100 * time.Millisecond,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "config_watcher"), zap.String("path", loader.ConfigPath()))

	if _, err := os.Stat(loader.ConfigPath()); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat path %s: %w", loader.ConfigPath(), err)
		}
		w.logger.Warn("Config file does not exist, will watch for creation")
	}

	return w, nil
}

// OnReload 注册重新加载成功后的回调
func (w *Watcher) OnReload(callback func(*Config)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start 启动轮询
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return errors.New("watcher already running")
	}
	w.running = true
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	w.lastMod = w.modTime()

	go w.pollLoop(ctx, w.stop, w.done)

	w.logger.Info("Config watcher started",
		zap.Duration("poll_interval", w.pollInterval),
		zap.Duration("debounce_delay", w.debounceDelay))
	return nil
}

// Stop 停止轮询并等待后台 goroutine 退出
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	close(w.stop)
	done := w.done
	w.mu.Unlock()

	<-done
	w.logger.Info("Config watcher stopped")
}

// IsRunning 是否正在运行
func (w *Watcher) IsRunning() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

func (w *Watcher) pollLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var due time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case now := <-ticker.C:
			if w.changed() {
				due = now.Add(w.debounceDelay)
			}
			if !due.IsZero() && !now.Before(due) {
				due = time.Time{}
				w.reload()
			}
		}
	}
}

// changed 比较修改时间；文件被删除时不触发
func (w *Watcher) changed() bool {
	mod := w.modTime()
	if mod.IsZero() {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if mod.Equal(w.lastMod) {
		return false
	}
	w.lastMod = mod
	return true
}

func (w *Watcher) modTime() time.Time {
	info, err := os.Stat(w.loader.ConfigPath())
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

func (w *Watcher) reload() {
	cfg, err := w.loader.Load()
	if err != nil {
		w.logger.Warn("Config reload failed, keeping previous config", zap.Error(err))
		return
	}

	w.mu.RLock()
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	w.logger.Info("Config reloaded")
	for _, cb := range callbacks {
		cb(cfg)
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/BaSui01/vstream/config"
	"github.com/BaSui01/vstream/internal/app"
	"github.com/BaSui01/vstream/internal/metrics"
	"github.com/BaSui01/vstream/internal/server"
	"github.com/BaSui01/vstream/internal/telemetry"
	"github.com/BaSui01/vstream/vstream"
)

// runOptions run 子命令的参数
type runOptions struct {
	configPath string
	session    string
	maxBlocks  int
}

func parseRunOptions(args []string) (runOptions, error) {
	var opts runOptions
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to config file")
	fs.StringVar(&opts.session, "session", "", "Session ID")
	fs.IntVar(&opts.maxBlocks, "max-blocks", -1, "Stop after copying n blocks per pair")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if fs.NArg() > 0 {
		return opts, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return opts, nil
}

// loadConfig 加载并校验配置，命令行参数覆盖文件与环境变量
func loadConfig(opts runOptions) (*config.Config, *config.Loader, error) {
	loader := config.NewLoader().WithValidator((*config.Config).Validate)
	if opts.configPath != "" {
		loader = loader.WithConfigPath(opts.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, nil, err
	}
	if opts.maxBlocks >= 0 {
		cfg.Session.MaxBlocks = opts.maxBlocks
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, loader, nil
}

// =============================================================================
// 🖥️ run 命令
// =============================================================================

func runLoopback(args []string) error {
	opts, err := parseRunOptions(args)
	if err != nil {
		return err
	}
	cfg, loader, err := loadConfig(opts)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, level := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting vstream",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 配置文件变更时只调整日志级别，其余配置需要重启会话
	if opts.configPath != "" {
		watcher, err := config.NewWatcher(loader, config.WithWatcherLogger(logger))
		if err != nil {
			logger.Warn("Config watcher disabled", zap.Error(err))
		} else {
			watcher.OnReload(func(next *config.Config) {
				if lvl, err := next.Log.ZapLevel(); err == nil && lvl != level.Level() {
					level.SetLevel(lvl)
					logger.Info("Log level changed", zap.Stringer("level", lvl))
				}
			})
			if err := watcher.Start(ctx); err != nil {
				logger.Warn("Config watcher disabled", zap.Error(err))
			} else {
				defer watcher.Stop()
			}
		}
	}

	res, err := runSession(ctx, cfg, opts.session, logger)
	if res != nil {
		if werr := writeResult(os.Stdout, res); werr != nil {
			logger.Warn("Failed to write result", zap.Error(werr))
		}
	}
	if err != nil {
		return err
	}
	logger.Info("vstream stopped")
	return nil
}

// runSession 组装遥测、指标、软件开发板、平台与诊断服务，运行一次回环会话
func runSession(ctx context.Context, cfg *config.Config, session string, logger *zap.Logger) (*app.Result, error) {
	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("Failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Telemetry shutdown failed", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollectorWith(registry, "vstream", logger)

	observers := observerSet{collector}
	if otelObserver, err := telemetry.NewStreamObserver(telemetry.Meter()); err != nil {
		logger.Warn("OTel stream metrics disabled", zap.Error(err))
	} else {
		observers = append(observers, otelObserver)
	}

	board, err := app.NewSimBoard(cfg, logger, nil)
	if err != nil {
		return nil, err
	}
	streamOpts := []vstream.Option{vstream.WithObserver(observers)}
	if !cfg.Session.AsyncEvents {
		streamOpts = append(streamOpts, vstream.WithInlineEvents())
	}
	platform, err := vstream.NewPlatform(board.Board, logger, streamOpts...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = platform.Close() }()

	hub := server.NewHub(0, logger)
	defer hub.Close()

	loopback := app.NewLoopback(platform, cfg,
		app.WithSession(session),
		app.WithEventSink(hub),
		app.WithLogger(logger))

	if cfg.Server.Enabled {
		handler := server.NewHandler(loopback.Session(), server.HandlerOptions{
			Status:    platform,
			Hub:       hub,
			Gatherer:  registry,
			Collector: collector,
			EventRate: cfg.Server.EventRateLimit,
			Logger:    logger,
		})
		mgr := server.NewManager(handler, server.ConfigFrom(cfg.Server), logger)
		if err := mgr.Start(); err != nil {
			return nil, fmt.Errorf("start diagnostics server: %w", err)
		}
		defer func() {
			// 先关闭 Hub，让 /events 客户端收到 going away 再关闭服务器
			hub.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := mgr.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Diagnostics server shutdown failed", zap.Error(err))
			}
		}()
		go func() {
			for err := range mgr.Errors() {
				logger.Error("Diagnostics server error", zap.Error(err))
			}
		}()
		logger.Info("Diagnostics server listening", zap.String("addr", mgr.Addr()))
	}

	res, err := loopback.Run(ctx)
	if err != nil && errors.Is(err, context.Canceled) {
		return res, nil
	}
	return res, err
}

func writeResult(w io.Writer, res *app.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// =============================================================================
// 📦 vstream 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Channels:  DefaultChannelsConfig(),
		Buffers:   DefaultBuffersConfig(),
		Session:   DefaultSessionConfig(),
		Simulator: DefaultSimulatorConfig(),
		Server:    DefaultServerConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultChannelsConfig 返回默认通道配置：音频回环启用，视频关闭
func DefaultChannelsConfig() ChannelsConfig {
	audio := AudioChannelConfig{
		Enabled:    true,
		Channels:   2,
		SampleBits: 16,
		SampleRate: 16000,
	}
	video := VideoChannelConfig{
		FrameWidth:  320,
		FrameHeight: 240,
		FrameRate:   30,
		Color:       "rgb888",
	}
	return ChannelsConfig{
		AudioIn:  audio,
		AudioOut: audio,
		VideoIn:  video,
		VideoOut: video,
	}
}

// DefaultBuffersConfig 返回默认缓冲区配置
func DefaultBuffersConfig() BuffersConfig {
	return BuffersConfig{
		AudioBlockSize:  1024,
		AudioBlockCount: 4,
		VideoBlockCount: 2,
	}
}

// DefaultSessionConfig 返回默认会话配置
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxBlocks:   0,
		Timeout:     0,
		AsyncEvents: true,
	}
}

// DefaultSimulatorConfig 返回默认软件外设配置
func DefaultSimulatorConfig() SimulatorConfig {
	return SimulatorConfig{
		FileRoot: ".",
		Secure:   true,
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Enabled:         false,
		HTTPPort:        8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		EventRateLimit:  100,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "vstream",
		SampleRate:   0.1,
	}
}

// =============================================================================
// 📦 vstream 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("vstream.yaml").
//	    WithEnvPrefix("VSTREAM").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/vstream/types"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 vstream 的完整配置结构
type Config struct {
	// Channels 四个流通道的外设参数
	Channels ChannelsConfig `yaml:"channels" env:"CHANNELS"`

	// Buffers 流缓冲区几何
	Buffers BuffersConfig `yaml:"buffers" env:"BUFFERS"`

	// Session 回环会话参数
	Session SessionConfig `yaml:"session" env:"SESSION"`

	// Simulator 软件外设配置
	Simulator SimulatorConfig `yaml:"simulator" env:"SIMULATOR"`

	// Server 诊断 HTTP 服务配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ChannelsConfig 通道配置
type ChannelsConfig struct {
	AudioIn  AudioChannelConfig `yaml:"audio_in" env:"AUDIO_IN"`
	AudioOut AudioChannelConfig `yaml:"audio_out" env:"AUDIO_OUT"`
	VideoIn  VideoChannelConfig `yaml:"video_in" env:"VIDEO_IN"`
	VideoOut VideoChannelConfig `yaml:"video_out" env:"VIDEO_OUT"`
}

// AudioChannelConfig 音频通道配置
type AudioChannelConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 声道数
	Channels uint32 `yaml:"channels" env:"CHANNELS"`
	// 采样位宽: 8, 16, 24, 32
	SampleBits uint32 `yaml:"sample_bits" env:"SAMPLE_BITS"`
	// 采样率（Hz）
	SampleRate uint32 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// 设备编号
	Device uint32 `yaml:"device" env:"DEVICE"`
	// 数据文件（为空时使用测试图样）
	Filename string `yaml:"filename" env:"FILENAME"`
}

// VideoChannelConfig 视频通道配置
type VideoChannelConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 帧宽
	FrameWidth uint32 `yaml:"frame_width" env:"FRAME_WIDTH"`
	// 帧高
	FrameHeight uint32 `yaml:"frame_height" env:"FRAME_HEIGHT"`
	// 帧率
	FrameRate uint32 `yaml:"frame_rate" env:"FRAME_RATE"`
	// 颜色格式: grayscale8, rgb888, bgr565, yuv420, nv12, nv21
	Color string `yaml:"color" env:"COLOR"`
	// 设备编号
	Device uint32 `yaml:"device" env:"DEVICE"`
	// 数据文件
	Filename string `yaml:"filename" env:"FILENAME"`
}

// BuffersConfig 缓冲区配置
type BuffersConfig struct {
	// 音频块大小（字节）
	AudioBlockSize int `yaml:"audio_block_size" env:"AUDIO_BLOCK_SIZE"`
	// 音频块数
	AudioBlockCount int `yaml:"audio_block_count" env:"AUDIO_BLOCK_COUNT"`
	// 视频块数（块大小固定为一帧）
	VideoBlockCount int `yaml:"video_block_count" env:"VIDEO_BLOCK_COUNT"`
}

// SessionConfig 回环会话配置
type SessionConfig struct {
	// 最大复制块数，0 表示直到 EOS
	MaxBlocks int `yaml:"max_blocks" env:"MAX_BLOCKS"`
	// 会话超时，0 表示不限
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 是否异步投递事件（否则在中断上下文直接回调）
	AsyncEvents bool `yaml:"async_events" env:"ASYNC_EVENTS"`
}

// SimulatorConfig 软件外设配置
type SimulatorConfig struct {
	// 数据文件根目录
	FileRoot string `yaml:"file_root" env:"FILE_ROOT"`
	// 使用安全地址映射
	Secure bool `yaml:"secure" env:"SECURE"`
}

// ServerConfig 诊断服务配置
type ServerConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个 websocket 客户端每秒最多推送的事件数
	EventRateLimit float64 `yaml:"event_rate_limit" env:"EVENT_RATE_LIMIT"`
	// TLS 证书与私钥，两者都设置时以 HTTPS 提供服务
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "VSTREAM",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// ConfigPath 返回配置文件路径
func (l *Loader) ConfigPath() string {
	return l.configPath
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在时使用默认值
			return nil
		}
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// time.Duration 按时长字符串解析
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).WithValidator((*Config).Validate).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv 仅从环境变量加载配置
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate 验证配置，汇总全部错误
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Channels.StreamConfigs(); err != nil {
		errs = append(errs, err)
	}
	if (c.Channels.VideoIn.Enabled || c.Channels.VideoOut.Enabled) && c.Buffers.VideoBlockCount <= 0 {
		errs = append(errs, errors.New("buffers.video_block_count must be positive"))
	}
	if c.Channels.AudioIn.Enabled || c.Channels.AudioOut.Enabled {
		if c.Buffers.AudioBlockSize <= 0 {
			errs = append(errs, errors.New("buffers.audio_block_size must be positive"))
		}
		if c.Buffers.AudioBlockCount <= 0 {
			errs = append(errs, errors.New("buffers.audio_block_count must be positive"))
		}
	}

	if c.Session.MaxBlocks < 0 {
		errs = append(errs, errors.New("session.max_blocks must not be negative"))
	}
	if c.Session.Timeout < 0 {
		errs = append(errs, errors.New("session.timeout must not be negative"))
	}

	if c.Server.Enabled && (c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535) {
		errs = append(errs, errors.New("invalid HTTP port"))
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, errors.New("server tls_cert_file and tls_key_file must be set together"))
	}
	if c.Server.EventRateLimit < 0 {
		errs = append(errs, errors.New("server.event_rate_limit must not be negative"))
	}

	if _, err := c.Log.ZapLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, errors.New("telemetry.sample_rate must be between 0 and 1"))
	}

	if len(errs) > 0 {
		return types.NewError(types.ErrInvalidConfig, "config validation failed").WithCause(errors.Join(errs...))
	}

	return nil
}

// ZapLevel 解析日志级别
func (c LogConfig) ZapLevel() (zapcore.Level, error) {
	switch strings.ToLower(c.Level) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", c.Level)
	}
}

package vstream

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BaSui01/vstream/vsi"
)

// ChannelConfig 通道的静态外设配置（音频或视频）。
// Initialize 时写入外设用户寄存器，Start 时用于推导定时器间隔。
type ChannelConfig interface {
	// Layout 返回该配置对应的用户寄存器布局
	Layout() vsi.Layout
	// Validate 检查配置是否完整
	Validate() error

	interval(blockSize uint32) uint32
	program(regs vsi.Registers, layout vsi.Layout)
	defaultCursor() CursorStrategy
}

// =============================================================================
// 🎵 Audio
// =============================================================================

// AudioConfig 音频通道配置
type AudioConfig struct {
	Channels   uint32 `json:"channels" yaml:"channels"`
	SampleBits uint32 `json:"sample_bits" yaml:"sample_bits"`
	SampleRate uint32 `json:"sample_rate" yaml:"sample_rate"`
	Device     uint32 `json:"device" yaml:"device"`
	Filename   string `json:"filename" yaml:"filename"`
}

// DefaultAudioConfig 立体声 16 bit 16kHz
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		Channels:   2,
		SampleBits: 16,
		SampleRate: 16000,
	}
}

// FrameBytes 一个采样帧（所有声道）的字节数
func (c AudioConfig) FrameBytes() uint32 {
	return c.Channels * ((c.SampleBits + 7) / 8)
}

// Layout 实现 ChannelConfig
func (c AudioConfig) Layout() vsi.Layout { return vsi.AudioLayout }

// Validate 实现 ChannelConfig
func (c AudioConfig) Validate() error {
	var errs []error
	if c.Channels == 0 {
		errs = append(errs, errors.New("audio channels must be positive"))
	}
	switch c.SampleBits {
	case 8, 16, 24, 32:
	default:
		errs = append(errs, fmt.Errorf("audio sample bits must be 8, 16, 24 or 32, got %d", c.SampleBits))
	}
	if c.SampleRate == 0 {
		errs = append(errs, errors.New("audio sample rate must be positive"))
	}
	if strings.IndexByte(c.Filename, 0) >= 0 {
		errs = append(errs, errors.New("audio filename must not contain NUL"))
	}
	return errors.Join(errs...)
}

// interval 一个块对应的播放时长（微秒）
func (c AudioConfig) interval(blockSize uint32) uint32 {
	frameBytes := c.FrameBytes()
	if frameBytes == 0 || c.SampleRate == 0 {
		return 0
	}
	frames := uint64(blockSize / frameBytes)
	return uint32(1_000_000 * frames / uint64(c.SampleRate))
}

func (c AudioConfig) program(regs vsi.Registers, l vsi.Layout) {
	regs.Write(vsi.Reg(l.Device), c.Device)
	regs.Write(vsi.Reg(l.Channels), c.Channels)
	regs.Write(vsi.Reg(l.SampleBits), c.SampleBits)
	regs.Write(vsi.Reg(l.SampleRate), c.SampleRate)
	writeFilename(regs, l, c.Filename)
}

func (c AudioConfig) defaultCursor() CursorStrategy { return CursorSelfIncrement }

// =============================================================================
// 🎬 Video
// =============================================================================

// ColorFormat 视频帧像素格式
type ColorFormat uint32

const (
	ColorGrayscale8 ColorFormat = 0
	ColorRGB888     ColorFormat = 1
	ColorBGR565     ColorFormat = 2
	ColorYUV420     ColorFormat = 3
	ColorNV12       ColorFormat = 4
	ColorNV21       ColorFormat = 5
)

var colorNames = map[ColorFormat]string{
	ColorGrayscale8: "grayscale8",
	ColorRGB888:     "rgb888",
	ColorBGR565:     "bgr565",
	ColorYUV420:     "yuv420",
	ColorNV12:       "nv12",
	ColorNV21:       "nv21",
}

func (f ColorFormat) String() string {
	if name, ok := colorNames[f]; ok {
		return name
	}
	return fmt.Sprintf("color(%d)", uint32(f))
}

// ParseColorFormat 按名称解析像素格式（不区分大小写）
func ParseColorFormat(s string) (ColorFormat, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for f, name := range colorNames {
		if name == s {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown color format %q", s)
}

// Valid 是否为已定义的格式
func (f ColorFormat) Valid() bool {
	_, ok := colorNames[f]
	return ok
}

// FrameSize 给定分辨率下一帧的字节数
func (f ColorFormat) FrameSize(width, height uint32) uint32 {
	pixels := width * height
	switch f {
	case ColorGrayscale8:
		return pixels
	case ColorRGB888:
		return pixels * 3
	case ColorBGR565:
		return pixels * 2
	case ColorYUV420, ColorNV12, ColorNV21:
		return pixels * 3 / 2
	default:
		return 0
	}
}

// VideoConfig 视频通道配置
type VideoConfig struct {
	FrameWidth  uint32      `json:"frame_width" yaml:"frame_width"`
	FrameHeight uint32      `json:"frame_height" yaml:"frame_height"`
	FrameRate   uint32      `json:"frame_rate" yaml:"frame_rate"`
	Color       ColorFormat `json:"color" yaml:"color"`
	Device      uint32      `json:"device" yaml:"device"`
	Filename    string      `json:"filename" yaml:"filename"`
}

// DefaultVideoConfig QVGA RGB888 30fps
func DefaultVideoConfig() VideoConfig {
	return VideoConfig{
		FrameWidth:  320,
		FrameHeight: 240,
		FrameRate:   30,
		Color:       ColorRGB888,
	}
}

// FrameSize 一帧的字节数，通常用作块大小
func (c VideoConfig) FrameSize() uint32 {
	return c.Color.FrameSize(c.FrameWidth, c.FrameHeight)
}

// Layout 实现 ChannelConfig
func (c VideoConfig) Layout() vsi.Layout { return vsi.VideoLayout }

// Validate 实现 ChannelConfig
func (c VideoConfig) Validate() error {
	var errs []error
	if c.FrameWidth == 0 || c.FrameHeight == 0 {
		errs = append(errs, fmt.Errorf("video frame size must be positive, got %dx%d", c.FrameWidth, c.FrameHeight))
	}
	if c.FrameRate == 0 {
		errs = append(errs, errors.New("video frame rate must be positive"))
	}
	if !c.Color.Valid() {
		errs = append(errs, fmt.Errorf("unsupported video color format %d", uint32(c.Color)))
	}
	if strings.IndexByte(c.Filename, 0) >= 0 {
		errs = append(errs, errors.New("video filename must not contain NUL"))
	}
	return errors.Join(errs...)
}

// interval 一帧的周期（微秒），与块大小无关
func (c VideoConfig) interval(uint32) uint32 {
	if c.FrameRate == 0 {
		return 0
	}
	return 1_000_000 / c.FrameRate
}

func (c VideoConfig) program(regs vsi.Registers, l vsi.Layout) {
	regs.Write(vsi.Reg(l.Device), c.Device)
	regs.Write(vsi.Reg(l.FrameWidth), c.FrameWidth)
	regs.Write(vsi.Reg(l.FrameHeight), c.FrameHeight)
	regs.Write(vsi.Reg(l.FrameColor), uint32(c.Color))
	regs.Write(vsi.Reg(l.FrameRate), c.FrameRate)
	writeFilename(regs, l, c.Filename)
}

func (c VideoConfig) defaultCursor() CursorStrategy { return CursorFromDMA }

// writeFilename 将文件名逐字节写入 FILENAME 寄存器，以 NUL 结尾；空文件名不写
func writeFilename(regs vsi.Registers, l vsi.Layout, name string) {
	if name == "" || l.Filename == vsi.NoReg {
		return
	}
	off := vsi.Reg(l.Filename)
	for i := 0; i < len(name); i++ {
		regs.Write(off, uint32(name[i]))
	}
	regs.Write(off, 0)
}

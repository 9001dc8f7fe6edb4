package config

import (
	"errors"
	"fmt"

	"github.com/BaSui01/vstream/vstream"
)

// StreamConfig 转换为驱动使用的音频配置
func (a AudioChannelConfig) StreamConfig() vstream.AudioConfig {
	return vstream.AudioConfig{
		Channels:   a.Channels,
		SampleBits: a.SampleBits,
		SampleRate: a.SampleRate,
		Device:     a.Device,
		Filename:   a.Filename,
	}
}

// StreamConfig 转换为驱动使用的视频配置，颜色格式按名称解析
func (v VideoChannelConfig) StreamConfig() (vstream.VideoConfig, error) {
	color, err := vstream.ParseColorFormat(v.Color)
	if err != nil {
		return vstream.VideoConfig{}, err
	}
	return vstream.VideoConfig{
		FrameWidth:  v.FrameWidth,
		FrameHeight: v.FrameHeight,
		FrameRate:   v.FrameRate,
		Color:       color,
		Device:      v.Device,
		Filename:    v.Filename,
	}, nil
}

// StreamConfigs 返回所有启用通道的驱动配置，并逐个校验
func (c ChannelsConfig) StreamConfigs() (map[vstream.ChannelID]vstream.ChannelConfig, error) {
	out := make(map[vstream.ChannelID]vstream.ChannelConfig)
	var errs []error

	audio := map[vstream.ChannelID]AudioChannelConfig{
		vstream.AudioIn:  c.AudioIn,
		vstream.AudioOut: c.AudioOut,
	}
	for id, a := range audio {
		if !a.Enabled {
			continue
		}
		cfg := a.StreamConfig()
		if err := cfg.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("channels.%s: %w", id, err))
			continue
		}
		out[id] = cfg
	}

	video := map[vstream.ChannelID]VideoChannelConfig{
		vstream.VideoIn:  c.VideoIn,
		vstream.VideoOut: c.VideoOut,
	}
	for id, v := range video {
		if !v.Enabled {
			continue
		}
		cfg, err := v.StreamConfig()
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("channels.%s: %w", id, err))
			continue
		}
		out[id] = cfg
	}

	return out, errors.Join(errs...)
}

// BlockGeometry 返回通道的块大小与块数
func (c *Config) BlockGeometry(cfg vstream.ChannelConfig) (blockSize, blockCount int) {
	if v, ok := cfg.(vstream.VideoConfig); ok {
		return int(v.FrameSize()), c.Buffers.VideoBlockCount
	}
	return c.Buffers.AudioBlockSize, c.Buffers.AudioBlockCount
}

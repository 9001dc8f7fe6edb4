package vstream

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/vstream/types"
	"github.com/BaSui01/vstream/vsi"
)

// ChannelID 平台上的流通道
type ChannelID int

const (
	AudioIn ChannelID = iota
	AudioOut
	VideoIn
	VideoOut
)

// AllChannels 全部已知通道
var AllChannels = []ChannelID{AudioIn, AudioOut, VideoIn, VideoOut}

var channelNames = map[ChannelID]string{
	AudioIn:  "audio_in",
	AudioOut: "audio_out",
	VideoIn:  "video_in",
	VideoOut: "video_out",
}

func (id ChannelID) String() string {
	if name, ok := channelNames[id]; ok {
		return name
	}
	return fmt.Sprintf("channel(%d)", int(id))
}

// ParseChannelID 按名称解析通道
func ParseChannelID(s string) (ChannelID, error) {
	for id, name := range channelNames {
		if name == s {
			return id, nil
		}
	}
	return 0, fmt.Errorf("unknown channel %q", s)
}

// Direction 通道的传输方向
func (id ChannelID) Direction() Direction {
	if id == AudioOut || id == VideoOut {
		return DirectionOut
	}
	return DirectionIn
}

// VSIIndex 通道默认映射的 VSI 外设编号
func (id ChannelID) VSIIndex() int {
	switch id {
	case AudioIn:
		return 0
	case AudioOut:
		return 1
	case VideoIn:
		return 4
	case VideoOut:
		return 6
	default:
		return -1
	}
}

// Binding 通道与外设实例及配置的绑定
type Binding struct {
	Instance vsi.Instance
	Config   ChannelConfig
}

// Board 板级通道映射，未出现的通道不可用
type Board map[ChannelID]Binding

// Platform 持有每个通道各自独立的 Stream，通道之间不共享任何状态
type Platform struct {
	streams map[ChannelID]*Stream
	logger  *zap.Logger
}

// NewPlatform 为 board 中的每个通道创建驱动，opts 应用到每个 Stream
func NewPlatform(board Board, logger *zap.Logger, opts ...Option) (*Platform, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Platform{
		streams: make(map[ChannelID]*Stream, len(board)),
		logger:  logger.With(zap.String("component", "platform")),
	}
	for id, b := range board {
		if _, ok := channelNames[id]; !ok {
			return nil, types.NewInvalidParameterError(fmt.Sprintf("unknown channel id %d", int(id)))
		}
		if err := checkProfile(id, b.Config); err != nil {
			return nil, err
		}
		streamOpts := append([]Option{WithLogger(logger)}, opts...)
		s, err := NewStream(id.String(), id.Direction(), b.Instance, b.Config, streamOpts...)
		if err != nil {
			return nil, fmt.Errorf("create %s stream: %w", id, err)
		}
		p.streams[id] = s
	}
	return p, nil
}

func checkProfile(id ChannelID, cfg ChannelConfig) error {
	var ok bool
	switch id {
	case AudioIn, AudioOut:
		_, ok = cfg.(AudioConfig)
	case VideoIn, VideoOut:
		_, ok = cfg.(VideoConfig)
	}
	if !ok {
		return types.NewInvalidParameterError(fmt.Sprintf("config %T does not match channel", cfg)).WithChannel(id.String())
	}
	return nil
}

// Stream 返回通道驱动
func (p *Platform) Stream(id ChannelID) (*Stream, error) {
	s, ok := p.streams[id]
	if !ok {
		return nil, types.NewInvalidParameterError("channel not available on this board").WithChannel(id.String())
	}
	return s, nil
}

// Channels 返回平台上可用的通道，按 ID 排序
func (p *Platform) Channels() []ChannelID {
	ids := make([]ChannelID, 0, len(p.streams))
	for id := range p.streams {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshots 返回所有通道的诊断视图
func (p *Platform) Snapshots() []Snapshot {
	ids := p.Channels()
	out := make([]Snapshot, 0, len(ids))
	for _, id := range ids {
		out = append(out, p.streams[id].Snapshot())
	}
	return out
}

// Close 停止并反初始化所有通道
func (p *Platform) Close() error {
	var errs []error
	for _, id := range p.Channels() {
		s := p.streams[id]
		if err := s.Stop(); err != nil {
			errs = append(errs, err)
		}
		if err := s.Uninitialize(); err != nil {
			errs = append(errs, err)
		}
	}
	p.logger.Debug("platform closed", zap.Int("channels", len(p.streams)))
	return errors.Join(errs...)
}

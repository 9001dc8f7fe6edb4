package app

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/BaSui01/vstream/config"
	"github.com/BaSui01/vstream/vsi"
	"github.com/BaSui01/vstream/vsi/sim"
	"github.com/BaSui01/vstream/vstream"
)

// SimBoard 由软件外设组成的开发板：每个启用的通道一个 VSI，共用一个中断控制器
type SimBoard struct {
	Board       vstream.Board
	Peripherals map[vstream.ChannelID]*sim.Peripheral
	Controller  *sim.Controller
}

// PeripheralOptions 为单个通道追加软件外设选项（测试中注入数据源、手动定时等）
type PeripheralOptions func(id vstream.ChannelID) []sim.Option

// NewSimBoard 按配置为启用的通道创建软件外设
func NewSimBoard(cfg *config.Config, logger *zap.Logger, extra PeripheralOptions) (*SimBoard, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	streams, err := cfg.Channels.StreamConfigs()
	if err != nil {
		return nil, fmt.Errorf("channel config: %w", err)
	}
	if len(streams) == 0 {
		return nil, fmt.Errorf("no channels enabled")
	}

	ids := make([]vstream.ChannelID, 0, len(streams))
	for id := range streams {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	b := &SimBoard{
		Board:       make(vstream.Board, len(streams)),
		Peripherals: make(map[vstream.ChannelID]*sim.Peripheral, len(streams)),
		Controller:  sim.NewController(logger),
	}
	for _, id := range ids {
		chCfg := streams[id]
		n := id.VSIIndex()
		opts := []sim.Option{
			sim.WithLayout(chCfg.Layout()),
			sim.WithFileRoot(cfg.Simulator.FileRoot),
			sim.WithBase(vsi.BaseAddress(n, cfg.Simulator.Secure)),
			sim.WithLogger(logger),
		}
		if extra != nil {
			opts = append(opts, extra(id)...)
		}
		p := sim.New(fmt.Sprintf("vsi%d", n), vsi.IRQNumber(n), b.Controller, opts...)
		b.Peripherals[id] = p
		b.Board[id] = vstream.Binding{Instance: p.Instance(), Config: chCfg}
	}

	logger.Debug("simulated board ready", zap.Int("channels", len(ids)))
	return b, nil
}

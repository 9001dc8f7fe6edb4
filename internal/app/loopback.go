package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/vstream/config"
	"github.com/BaSui01/vstream/internal/ctxkeys"
	"github.com/BaSui01/vstream/internal/pool"
	"github.com/BaSui01/vstream/internal/telemetry"
	"github.com/BaSui01/vstream/vstream"
)

// =============================================================================
// 🔁 回环应用
// =============================================================================

// Pair 一对输入/输出通道
type Pair struct {
	In  vstream.ChannelID
	Out vstream.ChannelID
}

func (p Pair) String() string {
	return p.In.String() + "->" + p.Out.String()
}

var (
	AudioPair = Pair{In: vstream.AudioIn, Out: vstream.AudioOut}
	VideoPair = Pair{In: vstream.VideoIn, Out: vstream.VideoOut}
)

// EventSink 接收每个通道的事件掩码（诊断服务的 websocket 推送）
type EventSink interface {
	PublishEvent(session, channel string, ev vstream.Event)
}

type nopSink struct{}

func (nopSink) PublishEvent(string, string, vstream.Event) {}

// PairResult 单个通道对的运行结果
type PairResult struct {
	Pair       string `json:"pair"`
	Blocks     int    `json:"blocks"`
	Dropped    int    `json:"dropped"`
	Overflows  int    `json:"overflows"`
	Underflows int    `json:"underflows"`
	EOS        bool   `json:"eos"`
}

// Result 一次会话的运行结果
type Result struct {
	Session  string        `json:"session"`
	Duration time.Duration `json:"duration"`
	Pairs    []PairResult  `json:"pairs"`
}

// Option 回环选项
type Option func(*Loopback)

// WithSession 指定会话 ID，默认随机生成
func WithSession(id string) Option {
	return func(l *Loopback) {
		if id != "" {
			l.session = id
		}
	}
}

// WithEventSink 设置事件接收方
func WithEventSink(sink EventSink) Option {
	return func(l *Loopback) {
		if sink != nil {
			l.sink = sink
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *zap.Logger) Option {
	return func(l *Loopback) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithBufferPool 设置流缓冲区池，多次会话共享同一个池可复用缓冲区
func WithBufferPool(p *pool.BufferPool) Option {
	return func(l *Loopback) {
		if p != nil {
			l.buffers = p
		}
	}
}

// Loopback 把输入通道的每一块复制到对应的输出通道，
// 直到输入报告 EOS、达到块数上限或上下文取消。
type Loopback struct {
	platform *vstream.Platform
	cfg      *config.Config
	session  string
	sink     EventSink
	logger   *zap.Logger
	tracer   trace.Tracer
	buffers  *pool.BufferPool
}

// NewLoopback 创建回环应用
func NewLoopback(platform *vstream.Platform, cfg *config.Config, opts ...Option) *Loopback {
	l := &Loopback{
		platform: platform,
		cfg:      cfg,
		session:  uuid.NewString(),
		sink:     nopSink{},
		logger:   zap.NewNop(),
		tracer:   telemetry.Tracer(),
		buffers:  pool.NewBufferPool(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With(zap.String("component", "loopback"), zap.String("session", l.session))
	return l
}

// Session 返回会话 ID
func (l *Loopback) Session() string { return l.session }

// Pairs 返回平台上两端都可用的通道对
func (l *Loopback) Pairs() []Pair {
	available := map[vstream.ChannelID]bool{}
	for _, id := range l.platform.Channels() {
		available[id] = true
	}
	var pairs []Pair
	for _, p := range []Pair{AudioPair, VideoPair} {
		if available[p.In] && available[p.Out] {
			pairs = append(pairs, p)
		}
	}
	return pairs
}

// Run 并发运行所有通道对。任一通道对失败时取消其余通道对。
func (l *Loopback) Run(ctx context.Context) (*Result, error) {
	pairs := l.Pairs()
	if len(pairs) == 0 {
		return nil, errors.New("no complete input/output channel pair on this board")
	}

	if l.cfg.Session.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Session.Timeout)
		defer cancel()
	}

	ctx = ctxkeys.WithSession(ctx, l.session)
	ctx, span := l.tracer.Start(ctx, "loopback.session",
		trace.WithAttributes(
			attribute.String("vstream.session", l.session),
			attribute.Int("vstream.pairs", len(pairs)),
			attribute.Int("vstream.max_blocks", l.cfg.Session.MaxBlocks),
		))
	defer span.End()

	start := time.Now()
	results := make([]PairResult, len(pairs))
	g, gctx := errgroup.WithContext(ctx)
	for i, p := range pairs {
		g.Go(func() error {
			res, err := l.runPair(ctxkeys.WithPair(gctx, p.String()), p)
			results[i] = res
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			return nil
		})
	}
	err := g.Wait()

	res := &Result{Session: l.session, Duration: time.Since(start), Pairs: results}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		l.logger.Error("loopback session failed", zap.Error(err))
		return res, err
	}
	l.logger.Info("loopback session finished",
		zap.Duration("duration", res.Duration),
		zap.Any("pairs", results))
	return res, nil
}

// runPair 完整的单通道对流程：初始化 → 挂载缓冲区 → 预填输出 → 启动 → 复制 → 停止
func (l *Loopback) runPair(ctx context.Context, p Pair) (PairResult, error) {
	res := PairResult{Pair: p.String()}
	in, err := l.platform.Stream(p.In)
	if err != nil {
		return res, err
	}
	out, err := l.platform.Stream(p.Out)
	if err != nil {
		return res, err
	}
	log := l.logger.With(zap.String("pair", p.String()))

	// 缓冲区在两个流反初始化之后才归还
	var buffers [][]byte
	defer func() {
		for _, b := range buffers {
			l.buffers.Put(b)
		}
	}()

	wake := make(chan struct{}, 1)
	kick := func() {
		select {
		case wake <- struct{}{}:
		default:
		}
	}

	if err := in.Initialize(func(ev vstream.Event) {
		l.sink.PublishEvent(l.session, in.Name(), ev)
		kick()
	}); err != nil {
		return res, err
	}
	defer in.Uninitialize()
	if err := out.Initialize(func(ev vstream.Event) {
		l.sink.PublishEvent(l.session, out.Name(), ev)
		if ev.Has(vstream.EventUnderflow) {
			kick()
		}
	}); err != nil {
		return res, err
	}
	defer out.Uninitialize()

	for _, s := range []*vstream.Stream{in, out} {
		size, count := l.cfg.BlockGeometry(s.Config())
		buf := l.buffers.Get(size * count)
		buffers = append(buffers, buf)
		if err := s.SetBuf(buf, size); err != nil {
			return res, err
		}
	}

	// 预填一块静音数据，输出启动时不会立即欠载
	if blk := out.GetBlock(); blk != nil {
		clear(blk)
		if err := out.ReleaseBlock(); err != nil {
			return res, err
		}
	}

	if err := l.start(ctx, in); err != nil {
		return res, err
	}
	defer l.stop(ctx, in)
	if err := l.start(ctx, out); err != nil {
		return res, err
	}
	defer l.stop(ctx, out)

	limit := l.cfg.Session.MaxBlocks
	done := func() bool { return limit > 0 && res.Blocks >= limit }

	for !done() {
		select {
		case <-ctx.Done():
			log.Info("loopback cancelled", zap.Int("blocks", res.Blocks))
			return res, nil
		case <-wake:
		}

		l.copyAvailable(in, out, &res, limit)

		if st := out.GetStatus(); st.Underflow {
			res.Underflows++
		}
		st := in.GetStatus()
		if st.Overflow {
			res.Overflows++
		}
		if st.EOS {
			l.copyAvailable(in, out, &res, limit)
			res.EOS = true
			log.Info("input reached end of stream", zap.Int("blocks", res.Blocks))
			break
		}
	}
	return res, nil
}

// copyAvailable 复制所有已就绪的输入块；输出缓冲区已满时丢弃输入块
func (l *Loopback) copyAvailable(in, out *vstream.Stream, res *PairResult, limit int) {
	for limit <= 0 || res.Blocks < limit {
		src := in.GetBlock()
		if src == nil {
			return
		}
		if dst := out.GetBlock(); dst != nil {
			copy(dst, src)
			_ = out.ReleaseBlock()
		} else {
			res.Dropped++
		}
		_ = in.ReleaseBlock()
		res.Blocks++
	}
}

func (l *Loopback) start(ctx context.Context, s *vstream.Stream) error {
	_, span := l.tracer.Start(ctx, "stream.start", trace.WithAttributes(
		append(spanAttrs(ctx),
			attribute.String("vstream.channel", s.Name()),
			attribute.String("vstream.direction", s.Direction().String()),
		)...,
	))
	defer span.End()

	if err := s.Start(vstream.ModeContinuous); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

func (l *Loopback) stop(ctx context.Context, s *vstream.Stream) {
	_, span := l.tracer.Start(context.WithoutCancel(ctx), "stream.stop", trace.WithAttributes(
		append(spanAttrs(ctx), attribute.String("vstream.channel", s.Name()))...,
	))
	defer span.End()
	_ = s.Stop()
}

// spanAttrs 从 context 取出会话与通道对标签
func spanAttrs(ctx context.Context) []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if session, ok := ctxkeys.Session(ctx); ok {
		attrs = append(attrs, attribute.String("vstream.session", session))
	}
	if pair, ok := ctxkeys.Pair(ctx); ok {
		attrs = append(attrs, attribute.String("vstream.pair", pair))
	}
	return attrs
}

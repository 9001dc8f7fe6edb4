package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/BaSui01/vstream/vstream"
)

// StreamObserver 把流事件记录为 OTel 指标，实现 vstream.Observer
type StreamObserver struct {
	blocks   metric.Int64Counter
	xruns    metric.Int64Counter
	eos      metric.Int64Counter
	failures metric.Int64Counter
	active   metric.Int64UpDownCounter
}

var _ vstream.Observer = (*StreamObserver)(nil)

// NewStreamObserver 在 meter 上注册 vstream.* 指标
func NewStreamObserver(meter metric.Meter) (*StreamObserver, error) {
	var (
		o    StreamObserver
		err  error
		errs []error
	)
	o.blocks, err = meter.Int64Counter("vstream.blocks",
		metric.WithDescription("Blocks transferred by the peripheral"),
		metric.WithUnit("{block}"))
	errs = append(errs, err)
	o.xruns, err = meter.Int64Counter("vstream.xruns",
		metric.WithDescription("Overflow and underflow occurrences"))
	errs = append(errs, err)
	o.eos, err = meter.Int64Counter("vstream.eos",
		metric.WithDescription("End-of-stream notifications"))
	errs = append(errs, err)
	o.failures, err = meter.Int64Counter("vstream.start_failures",
		metric.WithDescription("Start calls rejected by the device"))
	errs = append(errs, err)
	o.active, err = meter.Int64UpDownCounter("vstream.active_streams",
		metric.WithDescription("Streams currently transferring"))
	errs = append(errs, err)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return &o, nil
}

func channelAttrs(channel string, dir vstream.Direction) metric.MeasurementOption {
	return metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("direction", dir.String()),
	)
}

// BlockTransferred 实现 vstream.Observer
func (o *StreamObserver) BlockTransferred(channel string, dir vstream.Direction) {
	o.blocks.Add(context.Background(), 1, channelAttrs(channel, dir))
}

// Xrun 实现 vstream.Observer
func (o *StreamObserver) Xrun(channel string, dir vstream.Direction) {
	kind := "overflow"
	if dir == vstream.DirectionOut {
		kind = "underflow"
	}
	o.xruns.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("kind", kind),
	))
}

// EndOfStream 实现 vstream.Observer
func (o *StreamObserver) EndOfStream(channel string) {
	o.eos.Add(context.Background(), 1, metric.WithAttributes(attribute.String("channel", channel)))
}

// StartFailed 实现 vstream.Observer
func (o *StreamObserver) StartFailed(channel string) {
	o.failures.Add(context.Background(), 1, metric.WithAttributes(attribute.String("channel", channel)))
}

// ActiveChanged 实现 vstream.Observer
func (o *StreamObserver) ActiveChanged(channel string, active bool) {
	delta := int64(-1)
	if active {
		delta = 1
	}
	o.active.Add(context.Background(), delta, metric.WithAttributes(attribute.String("channel", channel)))
}

// BlocksOwned 由 Prometheus gauge 负责，这里不记录
func (o *StreamObserver) BlocksOwned(string, int) {}

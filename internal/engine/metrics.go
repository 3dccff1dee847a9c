package engine

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "arlayout/internal/engine"

type metrics struct {
	frames   metric.Int64Counter
	visible  metric.Int64Histogram
	overflow metric.Int64Counter
	failures metric.Int64Counter
}

func defaultMeter() metric.Meter {
	return otel.Meter(instrumentationName)
}

func newMetrics(m metric.Meter) (*metrics, error) {
	var (
		out metrics
		err error
	)
	out.frames, err = m.Int64Counter(
		"arlayout.frames",
		metric.WithDescription("Frames laid out"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating frames counter: %w", err)
	}
	out.visible, err = m.Int64Histogram(
		"arlayout.frame.visible_markers",
		metric.WithDescription("Markers drawn per frame"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating visible histogram: %w", err)
	}
	out.overflow, err = m.Int64Counter(
		"arlayout.markers.overflow",
		metric.WithDescription("Markers that hit a full sector column"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating overflow counter: %w", err)
	}
	out.failures, err = m.Int64Counter(
		"arlayout.location.failures",
		metric.WithDescription("Location failures reported to the sink"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating failures counter: %w", err)
	}
	return &out, nil
}

func (m *metrics) recordFrame(visible, overflowed int, radar bool) {
	if m == nil {
		return
	}
	ctx := context.Background()
	mode := attribute.Bool("radar", radar)
	m.frames.Add(ctx, 1, metric.WithAttributes(mode))
	m.visible.Record(ctx, int64(visible), metric.WithAttributes(mode))
	if overflowed > 0 {
		m.overflow.Add(ctx, int64(overflowed))
	}
}

func (m *metrics) recordFailure(code ErrorCode) {
	if m == nil {
		return
	}
	m.failures.Add(context.Background(), 1, metric.WithAttributes(attribute.String("code", code.String())))
}

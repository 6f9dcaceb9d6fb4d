package store

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/vzahanych/xmlstore/pkg/store"

const (
	outcomeOK      = "ok"
	outcomeMissing = "missing"
	outcomeFailed  = "failed"
)

type instruments struct {
	tracer       trace.Tracer
	loads        metric.Int64Counter
	saves        metric.Int64Counter
	unknown      metric.Int64Counter
	loadDuration metric.Float64Histogram
}

func newInstruments(mp metric.MeterProvider, tp trace.TracerProvider) *instruments {
	meter := mp.Meter(instrumentationName)
	in := &instruments{tracer: tp.Tracer(instrumentationName)}

	var err error
	if in.loads, err = meter.Int64Counter("xmlstore.loads",
		metric.WithDescription("Documents loaded"), metric.WithUnit("{document}")); err != nil {
		in.loads = noop.Int64Counter{}
	}
	if in.saves, err = meter.Int64Counter("xmlstore.saves",
		metric.WithDescription("Documents saved"), metric.WithUnit("{document}")); err != nil {
		in.saves = noop.Int64Counter{}
	}
	if in.unknown, err = meter.Int64Counter("xmlstore.unknown_members",
		metric.WithDescription("Distinct unknown members found while loading"), metric.WithUnit("{member}")); err != nil {
		in.unknown = noop.Int64Counter{}
	}
	if in.loadDuration, err = meter.Float64Histogram("xmlstore.load.duration",
		metric.WithDescription("Document load duration"), metric.WithUnit("s")); err != nil {
		in.loadDuration = noop.Float64Histogram{}
	}
	return in
}

func (in *instruments) recordLoad(ctx context.Context, root Root, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("root", root.String()),
		attribute.String("outcome", outcome),
	)
	in.loads.Add(ctx, 1, attrs)
	in.loadDuration.Record(ctx, elapsed.Seconds(), attrs)
}

func (in *instruments) recordSave(ctx context.Context, root Root, outcome string) {
	in.saves.Add(ctx, 1, metric.WithAttributes(
		attribute.String("root", root.String()),
		attribute.String("outcome", outcome),
	))
}

func (in *instruments) recordUnknown(ctx context.Context, root Root, n int) {
	in.unknown.Add(ctx, int64(n), metric.WithAttributes(attribute.String("root", root.String())))
}

package store

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Option configures a Loader.
type Option func(*options)

type options struct {
	codec          Codec
	logger         *zap.Logger
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	reloadInterval time.Duration
	onUnknown      UnknownHandler
}

func newOptions(cfg Config, opts []Option) options {
	o := options{
		codec:          XMLCodec{Indent: cfg.Indent},
		logger:         zap.NewNop(),
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
		reloadInterval: cfg.ReloadInterval,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithCodec replaces the XML codec.
func WithCodec(c Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithLogger sets the diagnostics logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithMeterProvider sets the provider of the store's metric instruments.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		if mp != nil {
			o.meterProvider = mp
		}
	}
}

// WithTracerProvider sets the provider of the store's spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracerProvider = tp
		}
	}
}

// WithReloadInterval sets the minimum time between two reloads of a
// watched document.
func WithReloadInterval(d time.Duration) Option {
	return func(o *options) {
		o.reloadInterval = d
	}
}

// UnknownHandler receives the distinct unknown members of one loaded
// document, in first-seen order. It is not called for documents without
// unknown members.
type UnknownHandler func(filename string, root Root, names []string)

// WithUnknownHandler sets a handler called after the unknown members of a
// document have been logged.
func WithUnknownHandler(h UnknownHandler) Option {
	return func(o *options) {
		o.onUnknown = h
	}
}

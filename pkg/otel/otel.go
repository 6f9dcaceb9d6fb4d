package otel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingExporter represents the type of tracing exporter
type TracingExporter string

const (
	OTLPGRPCExporter TracingExporter = "otlp-grpc"
	OTLPHTTPExporter TracingExporter = "otlp-http"
	StdoutExporter   TracingExporter = "stdout"
	NoopExporter     TracingExporter = "noop"
)

// MetricsExporter represents the type of metrics exporter
type MetricsExporter string

const (
	PrometheusExporter    MetricsExporter = "prometheus"
	OTLPMetricsExporter   MetricsExporter = "otlp"
	StdoutMetricsExporter MetricsExporter = "stdout"
	NoopMetricsExporter   MetricsExporter = "noop"
)

// SamplingStrategy represents the sampling strategy for traces
type SamplingStrategy string

const (
	AlwaysSample SamplingStrategy = "always"
	NeverSample  SamplingStrategy = "never"
	TraceIDRatio SamplingStrategy = "traceidratio"
	ParentBased  SamplingStrategy = "parentbased"
)

// Config holds all OpenTelemetry configuration
type Config struct {
	// Service information
	ServiceName    string `json:"service_name" yaml:"service_name"`
	ServiceVersion string `json:"service_version" yaml:"service_version"`
	Environment    string `json:"environment" yaml:"environment"`

	// Tracing configuration
	TracingEnabled  bool            `json:"tracing_enabled" yaml:"tracing_enabled"`
	TracingExporter TracingExporter `json:"tracing_exporter" yaml:"tracing_exporter"`

	OTLPTraceEndpoint string            `json:"otlp_trace_endpoint" yaml:"otlp_trace_endpoint"`
	OTLPTraceHeaders  map[string]string `json:"otlp_trace_headers" yaml:"otlp_trace_headers"`
	OTLPTraceInsecure bool              `json:"otlp_trace_insecure" yaml:"otlp_trace_insecure"`

	// Sampling configuration
	SamplingStrategy SamplingStrategy `json:"sampling_strategy" yaml:"sampling_strategy"`
	SamplingRatio    float64          `json:"sampling_ratio" yaml:"sampling_ratio"`

	// Metrics configuration
	MetricsEnabled  bool            `json:"metrics_enabled" yaml:"metrics_enabled"`
	MetricsExporter MetricsExporter `json:"metrics_exporter" yaml:"metrics_exporter"`

	OTLPMetricsEndpoint string            `json:"otlp_metrics_endpoint" yaml:"otlp_metrics_endpoint"`
	OTLPMetricsHeaders  map[string]string `json:"otlp_metrics_headers" yaml:"otlp_metrics_headers"`
	OTLPMetricsInsecure bool              `json:"otlp_metrics_insecure" yaml:"otlp_metrics_insecure"`

	MetricsInterval time.Duration `json:"metrics_interval" yaml:"metrics_interval"`
	BatchTimeout    time.Duration `json:"batch_timeout" yaml:"batch_timeout"`
	ExportTimeout   time.Duration `json:"export_timeout" yaml:"export_timeout"`

	ResourceAttributes map[string]string `json:"resource_attributes" yaml:"resource_attributes"`
}

// DefaultConfig returns a configuration with telemetry turned off. The
// store falls back to noop instruments in that case.
func DefaultConfig() *Config {
	return &Config{
		ServiceName:    "xmlstore",
		ServiceVersion: "1.0.0",
		Environment:    "development",

		TracingEnabled:  false,
		TracingExporter: StdoutExporter,

		OTLPTraceEndpoint: "localhost:4317",
		OTLPTraceHeaders:  make(map[string]string),
		OTLPTraceInsecure: true,

		SamplingStrategy: ParentBased,
		SamplingRatio:    1.0,

		MetricsEnabled:  false,
		MetricsExporter: StdoutMetricsExporter,

		OTLPMetricsEndpoint: "localhost:4317",
		OTLPMetricsHeaders:  make(map[string]string),
		OTLPMetricsInsecure: true,

		MetricsInterval: 30 * time.Second,
		BatchTimeout:    5 * time.Second,
		ExportTimeout:   30 * time.Second,

		ResourceAttributes: make(map[string]string),
	}
}

// Client wraps OpenTelemetry providers and exporters
type Client struct {
	config         *Config
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	shutdownFuncs  []func(context.Context) error
}

// New creates a new OpenTelemetry client with the given configuration.
// Enabled providers are also installed as the global providers.
func New(ctx context.Context, config *Config) (*Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	client := &Client{config: config}

	res, err := client.initResource(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize resource: %w", err)
	}

	if config.TracingEnabled {
		if err := client.initTracing(ctx, res); err != nil {
			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	if config.MetricsEnabled {
		if err := client.initMetrics(ctx, res); err != nil {
			_ = client.Shutdown(ctx)
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
	}

	return client, nil
}

func (c *Client) initResource(ctx context.Context) (*resource.Resource, error) {
	attributes := []attribute.KeyValue{
		semconv.ServiceNameKey.String(c.config.ServiceName),
		semconv.ServiceVersionKey.String(c.config.ServiceVersion),
		semconv.DeploymentEnvironmentKey.String(c.config.Environment),
	}
	for key, value := range c.config.ResourceAttributes {
		attributes = append(attributes, attribute.String(key, value))
	}

	return resource.New(ctx,
		resource.WithAttributes(attributes...),
		resource.WithFromEnv(),
	)
}

func (c *Client) initTracing(ctx context.Context, res *resource.Resource) error {
	var exporter sdktrace.SpanExporter
	var err error

	switch c.config.TracingExporter {
	case OTLPGRPCExporter:
		options := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(c.config.OTLPTraceEndpoint)}
		if c.config.OTLPTraceInsecure {
			options = append(options, otlptracegrpc.WithInsecure())
		}
		if len(c.config.OTLPTraceHeaders) > 0 {
			options = append(options, otlptracegrpc.WithHeaders(c.config.OTLPTraceHeaders))
		}
		exporter, err = otlptracegrpc.New(ctx, options...)
	case OTLPHTTPExporter:
		options := []otlptracehttp.Option{otlptracehttp.WithEndpoint(c.config.OTLPTraceEndpoint)}
		if c.config.OTLPTraceInsecure {
			options = append(options, otlptracehttp.WithInsecure())
		}
		if len(c.config.OTLPTraceHeaders) > 0 {
			options = append(options, otlptracehttp.WithHeaders(c.config.OTLPTraceHeaders))
		}
		exporter, err = otlptracehttp.New(ctx, options...)
	case StdoutExporter:
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
	case NoopExporter:
		// spans are sampled but never exported
	default:
		return fmt.Errorf("unsupported tracing exporter: %s", c.config.TracingExporter)
	}
	if err != nil {
		return fmt.Errorf("failed to create trace exporter: %w", err)
	}

	options := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(c.createSampler()),
	}
	if exporter != nil {
		options = append(options, sdktrace.WithBatcher(exporter,
			sdktrace.WithBatchTimeout(c.config.BatchTimeout),
			sdktrace.WithExportTimeout(c.config.ExportTimeout),
		))
	}

	c.tracerProvider = sdktrace.NewTracerProvider(options...)
	otel.SetTracerProvider(c.tracerProvider)
	c.shutdownFuncs = append(c.shutdownFuncs, c.tracerProvider.Shutdown)
	return nil
}

func (c *Client) createSampler() sdktrace.Sampler {
	switch c.config.SamplingStrategy {
	case AlwaysSample:
		return sdktrace.AlwaysSample()
	case NeverSample:
		return sdktrace.NeverSample()
	case TraceIDRatio:
		return sdktrace.TraceIDRatioBased(c.config.SamplingRatio)
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.config.SamplingRatio))
	}
}

func (c *Client) initMetrics(ctx context.Context, res *resource.Resource) error {
	options := []sdkmetric.Option{sdkmetric.WithResource(res)}

	switch c.config.MetricsExporter {
	case PrometheusExporter:
		reader, err := prometheus.New()
		if err != nil {
			return fmt.Errorf("failed to create Prometheus reader: %w", err)
		}
		options = append(options, sdkmetric.WithReader(reader))
	case OTLPMetricsExporter:
		exporterOptions := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(c.config.OTLPMetricsEndpoint)}
		if c.config.OTLPMetricsInsecure {
			exporterOptions = append(exporterOptions, otlpmetricgrpc.WithInsecure())
		}
		if len(c.config.OTLPMetricsHeaders) > 0 {
			exporterOptions = append(exporterOptions, otlpmetricgrpc.WithHeaders(c.config.OTLPMetricsHeaders))
		}
		exporter, err := otlpmetricgrpc.New(ctx, exporterOptions...)
		if err != nil {
			return fmt.Errorf("failed to create OTLP metrics exporter: %w", err)
		}
		options = append(options, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(c.config.MetricsInterval)),
		))
	case StdoutMetricsExporter:
		exporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("failed to create stdout metrics exporter: %w", err)
		}
		options = append(options, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(c.config.MetricsInterval)),
		))
	case NoopMetricsExporter:
		// measurements are aggregated but never read
	default:
		return fmt.Errorf("unsupported metrics exporter: %s", c.config.MetricsExporter)
	}

	c.meterProvider = sdkmetric.NewMeterProvider(options...)
	otel.SetMeterProvider(c.meterProvider)
	// The provider shuts its readers down with it.
	c.shutdownFuncs = append(c.shutdownFuncs, c.meterProvider.Shutdown)
	return nil
}

// Tracer returns a tracer from the configured provider, or from the global
// provider when tracing is disabled.
func (c *Client) Tracer(name string) trace.Tracer {
	return c.TracerProvider().Tracer(name, trace.WithInstrumentationVersion(c.config.ServiceVersion))
}

// Meter returns a meter from the configured provider, or from the global
// provider when metrics are disabled.
func (c *Client) Meter(name string) metric.Meter {
	return c.MeterProvider().Meter(name, metric.WithInstrumentationVersion(c.config.ServiceVersion))
}

// TracerProvider returns the tracer provider
func (c *Client) TracerProvider() trace.TracerProvider {
	if c.tracerProvider == nil {
		return otel.GetTracerProvider()
	}
	return c.tracerProvider
}

// MeterProvider returns the meter provider
func (c *Client) MeterProvider() metric.MeterProvider {
	if c.meterProvider == nil {
		return otel.GetMeterProvider()
	}
	return c.meterProvider
}

// Shutdown flushes and stops all configured providers.
func (c *Client) Shutdown(ctx context.Context) error {
	var errs []error
	for _, shutdown := range c.shutdownFuncs {
		if err := shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.shutdownFuncs = nil
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("shutdown errors: %w", err)
	}
	return nil
}

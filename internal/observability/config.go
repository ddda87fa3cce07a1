// Package observability wires OpenTelemetry tracing and metrics and the
// Server-Timing header into query compilation, query execution and writes.
package observability

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const (
	// DefaultServiceName is reported when no service name is configured
	DefaultServiceName = "frost-server"

	instrumentationName = "github.com/pbaumard/FROST-Server"
)

// Config holds the tracer, meter and instruments. A nil *Config is valid and
// records nothing.
type Config struct {
	tracerProvider    trace.TracerProvider
	meterProvider     metric.MeterProvider
	serviceName       string
	serviceVersion    string
	logger            *slog.Logger
	detailedDBTracing bool
	serverTiming      bool

	tracer          trace.Tracer
	compileCount    metric.Int64Counter
	compileErrors   metric.Int64Counter
	compileDuration metric.Float64Histogram
	queryDuration   metric.Float64Histogram
	rowsDecoded     metric.Int64Counter
}

// Option configures a Config.
type Option func(*Config)

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Config) { c.tracerProvider = tp }
}

// WithMeterProvider sets the meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Config) { c.meterProvider = mp }
}

// WithServiceName sets the service name attribute.
func WithServiceName(name string) Option {
	return func(c *Config) { c.serviceName = name }
}

// WithServiceVersion sets the service version attribute.
func WithServiceVersion(version string) Option {
	return func(c *Config) { c.serviceVersion = version }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) { c.logger = logger }
}

// WithDetailedDBTracing enables spans around gorm writes.
func WithDetailedDBTracing() Option {
	return func(c *Config) { c.detailedDBTracing = true }
}

// WithServerTiming enables Server-Timing metrics.
func WithServerTiming() Option {
	return func(c *Config) { c.serverTiming = true }
}

// NewConfig creates a Config. Call Initialize before use.
func NewConfig(opts ...Option) *Config {
	c := &Config{serviceName: DefaultServiceName}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracerProvider == nil {
		c.tracerProvider = tracenoop.NewTracerProvider()
	}
	if c.meterProvider == nil {
		c.meterProvider = metricnoop.NewMeterProvider()
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// Initialize creates the tracer and the metric instruments.
func (c *Config) Initialize() error {
	c.tracer = c.tracerProvider.Tracer(instrumentationName, trace.WithInstrumentationVersion(c.serviceVersion))
	meter := c.meterProvider.Meter(instrumentationName)

	var err error
	if c.compileCount, err = meter.Int64Counter("frost.compile.count",
		metric.WithDescription("Number of compiled queries")); err != nil {
		return fmt.Errorf("failed to create compile counter: %w", err)
	}
	if c.compileErrors, err = meter.Int64Counter("frost.compile.errors",
		metric.WithDescription("Number of queries rejected by the compiler")); err != nil {
		return fmt.Errorf("failed to create compile error counter: %w", err)
	}
	if c.compileDuration, err = meter.Float64Histogram("frost.compile.duration",
		metric.WithDescription("Duration of query compilation"), metric.WithUnit("ms")); err != nil {
		return fmt.Errorf("failed to create compile histogram: %w", err)
	}
	if c.queryDuration, err = meter.Float64Histogram("frost.query.duration",
		metric.WithDescription("Duration of query execution"), metric.WithUnit("ms")); err != nil {
		return fmt.Errorf("failed to create query histogram: %w", err)
	}
	if c.rowsDecoded, err = meter.Int64Counter("frost.query.rows",
		metric.WithDescription("Number of rows decoded into entities")); err != nil {
		return fmt.Errorf("failed to create row counter: %w", err)
	}
	return nil
}

// ServiceName returns the configured service name.
func (c *Config) ServiceName() string {
	if c == nil {
		return DefaultServiceName
	}
	return c.serviceName
}

// ServerTimingEnabled reports whether Server-Timing metrics are recorded.
func (c *Config) ServerTimingEnabled() bool {
	return c != nil && c.serverTiming
}

// DetailedDBTracingEnabled reports whether gorm writes are traced.
func (c *Config) DetailedDBTracingEnabled() bool {
	return c != nil && c.detailedDBTracing
}

// Tracer returns the tracer, or a no-op tracer.
func (c *Config) Tracer() trace.Tracer {
	if c == nil || c.tracer == nil {
		return tracenoop.NewTracerProvider().Tracer(instrumentationName)
	}
	return c.tracer
}

// Operation is an in-flight traced operation.
type Operation struct {
	cfg    *Config
	kind   string
	span   trace.Span
	timing *ServerTimingMetric
	start  time.Time
	attrs  []attribute.KeyValue
}

// StartCompile starts tracing the compilation of a query on entityType.
func (c *Config) StartCompile(ctx context.Context, entityType string) (context.Context, *Operation) {
	return c.start(ctx, "compile", "frost.compile", attribute.String("entity_type", entityType))
}

// StartQuery starts tracing the execution of a compiled query.
func (c *Config) StartQuery(ctx context.Context, entityType string) (context.Context, *Operation) {
	return c.start(ctx, "query", "frost.query", attribute.String("entity_type", entityType))
}

func (c *Config) start(ctx context.Context, kind, spanName string, attrs ...attribute.KeyValue) (context.Context, *Operation) {
	ctx, span := c.Tracer().Start(ctx, spanName, trace.WithAttributes(attrs...))
	op := &Operation{cfg: c, kind: kind, span: span, start: time.Now(), attrs: attrs}
	if c.ServerTimingEnabled() {
		op.timing = StartServerTiming(ctx, kind)
	}
	return ctx, op
}

// SetAttributes adds attributes to the span.
func (o *Operation) SetAttributes(attrs ...attribute.KeyValue) {
	o.span.SetAttributes(attrs...)
}

// End finishes the operation, recording err on the span and in the metrics.
// rows is the number of decoded rows for queries and ignored otherwise.
func (o *Operation) End(ctx context.Context, rows int, err error) {
	elapsed := float64(time.Since(o.start).Microseconds()) / 1000
	set := metric.WithAttributes(o.attrs...)
	if err != nil {
		o.span.RecordError(err)
		o.span.SetStatus(codes.Error, err.Error())
	}
	if c := o.cfg; c != nil && c.compileCount != nil {
		switch o.kind {
		case "compile":
			c.compileCount.Add(ctx, 1, set)
			c.compileDuration.Record(ctx, elapsed, set)
			if err != nil {
				c.compileErrors.Add(ctx, 1, set)
			}
		case "query":
			c.queryDuration.Record(ctx, elapsed, set)
			c.rowsDecoded.Add(ctx, int64(rows), set)
		}
	}
	o.timing.Stop()
	o.span.End()
}

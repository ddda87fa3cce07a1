package frost

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/pbaumard/FROST-Server/internal/observability"
)

// ObservabilityConfig configures tracing and metrics for the service.
// All providers are optional; when nil, the corresponding feature is disabled with zero overhead.
type ObservabilityConfig struct {
	// TracerProvider provides the OpenTelemetry tracer. If nil, tracing is disabled.
	TracerProvider trace.TracerProvider

	// MeterProvider provides the OpenTelemetry meter. If nil, metrics collection is disabled.
	MeterProvider metric.MeterProvider

	// ServiceName identifies this service in telemetry data.
	// Defaults to "frost-server" if not specified.
	ServiceName string

	// ServiceVersion is reported in telemetry attributes.
	ServiceVersion string

	// EnableDetailedDBTracing adds a span for every insert and update.
	EnableDetailedDBTracing bool

	// EnableServerTiming adds compile, query and db metrics to a
	// Server-Timing header carried by the request context.
	EnableServerTiming bool
}

// SetObservability configures OpenTelemetry-based observability for the service.
//
// When observability is configured:
//   - every compiled query gets a frost.compile span and is counted
//   - query execution gets a frost.query span and a duration histogram
//   - inserts and updates can be traced (when EnableDetailedDBTracing is true)
//
// Example:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	defer tp.Shutdown(ctx)
//
//	service.SetObservability(frost.ObservabilityConfig{
//	    TracerProvider: tp,
//	    ServiceName:    "sensor-api",
//	    ServiceVersion: "1.0.0",
//	})
func (s *Service) SetObservability(cfg ObservabilityConfig) error {
	opts := []observability.Option{}

	if cfg.TracerProvider != nil {
		opts = append(opts, observability.WithTracerProvider(cfg.TracerProvider))
	}
	if cfg.MeterProvider != nil {
		opts = append(opts, observability.WithMeterProvider(cfg.MeterProvider))
	}
	if cfg.ServiceName != "" {
		opts = append(opts, observability.WithServiceName(cfg.ServiceName))
	}
	if cfg.ServiceVersion != "" {
		opts = append(opts, observability.WithServiceVersion(cfg.ServiceVersion))
	}
	if s.logger != nil {
		opts = append(opts, observability.WithLogger(s.logger))
	}
	if cfg.EnableDetailedDBTracing {
		opts = append(opts, observability.WithDetailedDBTracing())
	}
	if cfg.EnableServerTiming {
		opts = append(opts, observability.WithServerTiming())
	}

	obsCfg := observability.NewConfig(opts...)
	if err := obsCfg.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize observability: %w", err)
	}

	s.observability = obsCfg
	if s.compiler != nil {
		s.compiler.SetObservability(obsCfg)
	}

	if cfg.EnableDetailedDBTracing {
		if err := observability.RegisterGORMCallbacks(s.db, obsCfg); err != nil {
			return fmt.Errorf("failed to register GORM callbacks: %w", err)
		}
	}
	if cfg.EnableServerTiming {
		if err := observability.RegisterServerTimingCallbacks(s.db); err != nil {
			return fmt.Errorf("failed to register server timing callbacks: %w", err)
		}
	}

	s.logger.Info("Observability configured",
		"tracing_enabled", cfg.TracerProvider != nil,
		"metrics_enabled", cfg.MeterProvider != nil,
		"server_timing_enabled", cfg.EnableServerTiming,
		"service_name", obsCfg.ServiceName(),
	)
	return nil
}

// Observability returns the current observability configuration.
// Returns nil if observability is not configured.
func (s *Service) Observability() *observability.Config {
	return s.observability
}

// ServerTimingMetric represents a Server-Timing metric that tracks the duration
// of an operation for the Server-Timing HTTP response header.
type ServerTimingMetric = observability.ServerTimingMetric

// StartServerTiming starts a Server-Timing metric with the given name.
// If the context carries no Server-Timing header, the returned metric is a
// no-op that is safe to Stop.
//
// Example:
//
//	metric := frost.StartServerTiming(ctx, "decode")
//	defer metric.Stop()
func StartServerTiming(ctx context.Context, name string) *ServerTimingMetric {
	return observability.StartServerTiming(ctx, name)
}

// StartServerTimingWithDesc starts a Server-Timing metric with a name and description.
func StartServerTimingWithDesc(ctx context.Context, name, description string) *ServerTimingMetric {
	return observability.StartServerTimingWithDesc(ctx, name, description)
}

package observability

import (
	"context"

	servertiming "github.com/mitchellh/go-server-timing"
)

// ServerTimingMetric tracks the duration of an operation for the
// Server-Timing header. A nil metric is a no-op.
type ServerTimingMetric struct {
	metric *servertiming.Metric
}

// StartServerTiming starts a metric when ctx carries a Server-Timing header.
func StartServerTiming(ctx context.Context, name string) *ServerTimingMetric {
	return StartServerTimingWithDesc(ctx, name, "")
}

// StartServerTimingWithDesc starts a metric with a description.
func StartServerTimingWithDesc(ctx context.Context, name, description string) *ServerTimingMetric {
	h := servertiming.FromContext(ctx)
	if h == nil {
		return nil
	}
	m := h.NewMetric(name)
	if description != "" {
		m = m.WithDesc(description)
	}
	return &ServerTimingMetric{metric: m.Start()}
}

// Stop ends the metric.
func (m *ServerTimingMetric) Stop() {
	if m == nil || m.metric == nil {
		return
	}
	m.metric.Stop()
}

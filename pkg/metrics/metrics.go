// Package metrics contains a sink interface to be used by clients to implement sink.
// It also provides a default NoopSink and LogSink for convenience
package metrics

import (
	"context"
	"log/slog"
	"time"
)

// Metric types.
const (
	UNKNOWN byte = iota
	COUNTER
	GAUGE
)

const (
	SinkTimeout = 1 * time.Second

	RecordsProcessedMetricName = "records_processed"
	RecordsImportedMetricName  = "records_imported"
	RecordsSkippedMetricName   = "records_skipped"
	RecordsFailedMetricName    = "records_failed"
	StatementsMetricName       = "statements_scanned"
	DurationMetricName         = "import_duration_seconds"

	// TableLabel is set on the per-table record counts.
	TableLabel = "table"
)

// Metrics are collection of MetricValues.
type Metrics struct {
	Values []MetricValue
}

type MetricValue struct {
	// Name is the metric name
	Name string

	// Value is the value of the metric. For a COUNTER it is the increment
	// since the last send, for a GAUGE the current value.
	Value float64

	// Type is the metric type: GAUGE, COUNTER, and other const.
	Type byte

	// Labels are optional. A metric name must always be sent with the
	// same label names.
	Labels map[string]string
}

// Sink sends metrics to an external destination.
type Sink interface {
	// Send sends metrics to the sink. It must respect the context timeout, if any.
	Send(ctx context.Context, metrics *Metrics) error
}

// NoopSink is the default sink which does nothing
type NoopSink struct{}

func (s *NoopSink) Send(ctx context.Context, m *Metrics) error {
	return nil
}

var _ Sink = &NoopSink{}

// logSink logs metrics
type logSink struct {
	logger *slog.Logger
}

func (l *logSink) Send(ctx context.Context, m *Metrics) error {
	for _, v := range m.Values {
		attrs := []any{"name", v.Name, "value", v.Value}
		for k, lv := range v.Labels {
			attrs = append(attrs, k, lv)
		}
		switch v.Type {
		case COUNTER:
			l.logger.DebugContext(ctx, "metric", append(attrs, "type", "counter")...)
		case GAUGE:
			l.logger.DebugContext(ctx, "metric", append(attrs, "type", "gauge")...)
		default:
			l.logger.ErrorContext(ctx, "Received invalid metric type", append(attrs, "type", v.Type)...)
		}
	}
	return nil
}

var _ Sink = &logSink{}

func NewLogSink(logger *slog.Logger) *logSink {
	return &logSink{
		logger: logger,
	}
}

// multiSink fans metrics out to several sinks and returns the first error.
type multiSink []Sink

func (s multiSink) Send(ctx context.Context, m *Metrics) error {
	var firstErr error
	for _, sink := range s {
		if err := sink.Send(ctx, m); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewMultiSink returns a sink sending to every non-nil sink.
func NewMultiSink(sinks ...Sink) Sink {
	var out multiSink
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

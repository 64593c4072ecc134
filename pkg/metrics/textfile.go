package metrics

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dumpimport"

var help = map[string]string{
	RecordsProcessedMetricName: "Records taken through the persist stage.",
	RecordsImportedMetricName:  "Records created in the target store.",
	RecordsSkippedMetricName:   "Records already present in the target store.",
	RecordsFailedMetricName:    "Records that could not be parsed, mapped or persisted.",
	StatementsMetricName:       "INSERT statements read from the dump.",
	DurationMetricName:         "Wall time of the import run.",
}

// TextfileSink writes metrics in the Prometheus text format to a file, for
// the node exporter textfile collector. Every Send rewrites the file with
// the values seen so far.
type TextfileSink struct {
	mu       sync.Mutex
	path     string
	registry *prometheus.Registry
	gauges   map[string]*prometheus.GaugeVec
	counters map[string]*prometheus.CounterVec
}

var _ Sink = &TextfileSink{}

func NewTextfileSink(path string) *TextfileSink {
	return &TextfileSink{
		path:     path,
		registry: prometheus.NewRegistry(),
		gauges:   make(map[string]*prometheus.GaugeVec),
		counters: make(map[string]*prometheus.CounterVec),
	}
}

func (s *TextfileSink) Send(ctx context.Context, m *Metrics) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range m.Values {
		labelNames := slices.Sorted(maps.Keys(v.Labels))
		switch v.Type {
		case GAUGE:
			vec, err := s.gauge(v.Name, labelNames)
			if err != nil {
				return err
			}
			g, err := vec.GetMetricWith(v.Labels)
			if err != nil {
				return fmt.Errorf("metric %s: %w", v.Name, err)
			}
			g.Set(v.Value)
		case COUNTER:
			vec, err := s.counter(v.Name, labelNames)
			if err != nil {
				return err
			}
			c, err := vec.GetMetricWith(v.Labels)
			if err != nil {
				return fmt.Errorf("metric %s: %w", v.Name, err)
			}
			c.Add(v.Value)
		default:
			return fmt.Errorf("metric %s: invalid metric type %d", v.Name, v.Type)
		}
	}
	return prometheus.WriteToTextfile(s.path, s.registry)
}

func (s *TextfileSink) gauge(name string, labelNames []string) (*prometheus.GaugeVec, error) {
	if vec, ok := s.gauges[name]; ok {
		return vec, nil
	}
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      helpFor(name),
	}, labelNames)
	if err := s.registry.Register(vec); err != nil {
		return nil, fmt.Errorf("register metric %s: %w", name, err)
	}
	s.gauges[name] = vec
	return vec, nil
}

func (s *TextfileSink) counter(name string, labelNames []string) (*prometheus.CounterVec, error) {
	if vec, ok := s.counters[name]; ok {
		return vec, nil
	}
	vec := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      helpFor(name),
	}, labelNames)
	if err := s.registry.Register(vec); err != nil {
		return nil, fmt.Errorf("register metric %s: %w", name, err)
	}
	s.counters[name] = vec
	return vec, nil
}

func helpFor(name string) string {
	if h, ok := help[name]; ok {
		return h
	}
	return name
}

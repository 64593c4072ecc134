package metrics

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
	os.Exit(m.Run())
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	err := sink.Send(t.Context(), &Metrics{Values: []MetricValue{
		{Name: RecordsImportedMetricName, Value: 3, Type: GAUGE, Labels: map[string]string{TableLabel: "Product"}},
		{Name: StatementsMetricName, Value: 2, Type: COUNTER},
		{Name: "bogus", Value: 1, Type: UNKNOWN},
	}})
	require.NoError(t, err)
	out := buf.String()
	assert.Contains(t, out, "name=records_imported value=3 table=Product type=gauge")
	assert.Contains(t, out, "name=statements_scanned value=2 type=counter")
	assert.Contains(t, out, "level=ERROR")
}

func TestTextfileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dumpimport.prom")
	sink := NewTextfileSink(path)

	send := func(values ...MetricValue) {
		t.Helper()
		require.NoError(t, sink.Send(t.Context(), &Metrics{Values: values}))
	}
	send(
		MetricValue{Name: RecordsImportedMetricName, Value: 2, Type: GAUGE, Labels: map[string]string{TableLabel: "Product"}},
		MetricValue{Name: StatementsMetricName, Value: 2, Type: COUNTER},
	)
	send(
		MetricValue{Name: RecordsImportedMetricName, Value: 5, Type: GAUGE, Labels: map[string]string{TableLabel: "Product"}},
		MetricValue{Name: RecordsImportedMetricName, Value: 1, Type: GAUGE, Labels: map[string]string{TableLabel: "Order"}},
		MetricValue{Name: StatementsMetricName, Value: 3, Type: COUNTER},
	)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "# HELP dumpimport_records_imported Records created in the target store.")
	assert.Contains(t, out, "# TYPE dumpimport_records_imported gauge")
	assert.Contains(t, out, `dumpimport_records_imported{table="Product"} 5`)
	assert.Contains(t, out, `dumpimport_records_imported{table="Order"} 1`)
	assert.Contains(t, out, "# TYPE dumpimport_statements_scanned counter")
	assert.Contains(t, out, "dumpimport_statements_scanned 5")
}

func TestTextfileSinkErrors(t *testing.T) {
	sink := NewTextfileSink(filepath.Join(t.TempDir(), "dumpimport.prom"))
	err := sink.Send(t.Context(), &Metrics{Values: []MetricValue{{Name: "x", Type: UNKNOWN}}})
	assert.ErrorContains(t, err, "invalid metric type")

	// the same name cannot be both a gauge and a counter
	require.NoError(t, sink.Send(t.Context(), &Metrics{Values: []MetricValue{{Name: "y", Value: 1, Type: GAUGE}}}))
	err = sink.Send(t.Context(), &Metrics{Values: []MetricValue{{Name: "y", Value: 1, Type: COUNTER}}})
	assert.Error(t, err)

	// label names are fixed by the first send
	err = sink.Send(t.Context(), &Metrics{Values: []MetricValue{{Name: "y", Value: 1, Type: GAUGE, Labels: map[string]string{"table": "Order"}}}})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err = sink.Send(ctx, &Metrics{})
	assert.True(t, errors.Is(err, context.Canceled))

	sink = NewTextfileSink(filepath.Join(t.TempDir(), "missing", "dumpimport.prom"))
	err = sink.Send(t.Context(), &Metrics{Values: []MetricValue{{Name: "z", Value: 1, Type: GAUGE}}})
	assert.Error(t, err)
}

type failingSink struct{ err error }

func (f failingSink) Send(context.Context, *Metrics) error { return f.err }

func TestMultiSink(t *testing.T) {
	boom := errors.New("boom")
	var noop NoopSink
	assert.Equal(t, &noop, NewMultiSink(nil, &noop))

	sink := NewMultiSink(&noop, failingSink{boom}, failingSink{errors.New("second")})
	assert.ErrorIs(t, sink.Send(t.Context(), &Metrics{}), boom)
	assert.NoError(t, NewMultiSink().Send(t.Context(), &Metrics{}))
}

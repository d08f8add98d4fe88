package telemetry

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestRecorderKeepsLatest(t *testing.T) {
	r := NewRecorder()
	assert.Equal(t, -1, r.Snapshot().CharIndex)
	assert.Equal(t, NoBoundary, r.Snapshot().MatchedText)

	r.Record(Snapshot{CharIndex: 4, MatchedText: "cat ", State: "speaking"})
	r.Record(Snapshot{CharIndex: 8, MatchedText: "sat.", State: "speaking"})

	assert.Equal(t, 8, r.Snapshot().CharIndex)
	assert.Equal(t, 2, r.Count())
}

func TestMultiSkipsNilSinks(t *testing.T) {
	a, b := NewRecorder(), NewRecorder()
	Multi{a, nil, b, Nop{}}.Record(Snapshot{Label: "Paused"})

	assert.Equal(t, "Paused", a.Snapshot().Label)
	assert.Equal(t, "Paused", b.Snapshot().Label)
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)

	LogSink{Logger: logger}.Record(Snapshot{
		CharIndex:   5,
		MatchedText: "cat ",
		State:       "speaking",
		Label:       "Speaking (Match)",
		Reason:      "",
		Time:        time.Now(),
	})

	out := buf.String()
	assert.Contains(t, out, "Speaking (Match)")
	assert.Contains(t, out, "char_index=5")
	assert.NotContains(t, out, "reason=")
}

func TestMetricSink(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	sink, err := NewMetricSink(provider.Meter("test"))
	require.NoError(t, err)

	sink.Record(Snapshot{State: "speaking", Label: "Speaking (Match)", MatchedText: "cat "})
	sink.Record(Snapshot{State: "speaking", Label: "Speaking (Gap)", MatchedText: NoToken})
	sink.Record(Snapshot{State: "idle", Label: "Finished", MatchedText: NoBoundary})

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	totals := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				totals[m.Name] += dp.Value
			}
		}
	}

	assert.Equal(t, int64(3), totals["readalong.playback.transitions"])
	assert.Equal(t, int64(1), totals["readalong.playback.resolution_misses"])
}

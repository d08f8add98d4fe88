// Package telemetry records what the player did for debugging. Sinks are
// write-only from the player's point of view.
package telemetry

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Sentinels for Snapshot.MatchedText.
const (
	NoBoundary = "-"
	NoToken    = "No Token"
)

// Snapshot is the latest resolved playback state.
type Snapshot struct {
	CharIndex    int       `json:"char_index"`
	MatchedText  string    `json:"matched_text"`
	TotalTokens  int       `json:"total_tokens"`
	State        string    `json:"state"`
	Label        string    `json:"label"`
	VoiceName    string    `json:"voice_name"`
	IsLocalVoice bool      `json:"is_local_voice"`
	Reason       string    `json:"reason,omitempty"`
	Time         time.Time `json:"time"`
}

type Sink interface {
	Record(Snapshot)
}

type Nop struct{}

func (Nop) Record(Snapshot) {}

// Multi fans a snapshot out to several sinks.
type Multi []Sink

func (m Multi) Record(s Snapshot) {
	for _, sink := range m {
		if sink != nil {
			sink.Record(s)
		}
	}
}

// Recorder keeps the most recent snapshot for UI binding.
type Recorder struct {
	mu    sync.RWMutex
	last  Snapshot
	count int
}

func NewRecorder() *Recorder {
	return &Recorder{last: Snapshot{CharIndex: -1, MatchedText: NoBoundary, State: "idle"}}
}

func (r *Recorder) Record(s Snapshot) {
	r.mu.Lock()
	r.last = s
	r.count++
	r.mu.Unlock()
}

func (r *Recorder) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last
}

// Count returns how many snapshots were recorded.
func (r *Recorder) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// LogSink traces every snapshot at debug level.
type LogSink struct {
	Logger logrus.FieldLogger
}

func (l LogSink) Record(s Snapshot) {
	logger := l.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	entry := logger.WithFields(logrus.Fields{
		"char_index": s.CharIndex,
		"token":      s.MatchedText,
		"state":      s.State,
		"voice":      s.VoiceName,
		"local":      s.IsLocalVoice,
	})
	if s.Reason != "" {
		entry = entry.WithField("reason", s.Reason)
	}
	entry.Debug(s.Label)
}

// MetricSink counts transitions and resolution misses.
type MetricSink struct {
	transitions metric.Int64Counter
	misses      metric.Int64Counter
}

func NewMetricSink(meter metric.Meter) (*MetricSink, error) {
	transitions, err := meter.Int64Counter(
		"readalong.playback.transitions",
		metric.WithDescription("Playback state transitions by state and label"),
	)
	if err != nil {
		return nil, err
	}

	misses, err := meter.Int64Counter(
		"readalong.playback.resolution_misses",
		metric.WithDescription("Boundary offsets that matched no token"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricSink{transitions: transitions, misses: misses}, nil
}

func (m *MetricSink) Record(s Snapshot) {
	ctx := context.Background()
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("state", s.State),
		attribute.String("label", s.Label),
	))
	if s.MatchedText == NoToken {
		m.misses.Add(ctx, 1)
	}
}

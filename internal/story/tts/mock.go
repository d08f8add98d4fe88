package tts

import (
	"sync"
	"time"
)

// MockTTSEngine simulates an engine without producing audio. It reports a
// boundary for every word at the pace a real voice would use.
type MockTTSEngine struct {
	mu       sync.Mutex
	current  *run
	interval func(rate float64) time.Duration
	voices   []VoiceOption
}

func NewMockTTSEngine(c Config) *MockTTSEngine {
	return &MockTTSEngine{
		interval: wordInterval,
		voices: []VoiceOption{
			{Name: "mock-voice", Lang: "en-US", IsLocalService: true},
			{Name: "mock-voice-gb", Lang: "en-GB", IsLocalService: true},
		},
	}
}

// WithWordInterval overrides the pace at rate 1.0; the rate still scales it.
func (m *MockTTSEngine) WithWordInterval(d time.Duration) *MockTTSEngine {
	m.interval = func(rate float64) time.Duration {
		if rate <= 0 {
			rate = 1.0
		}
		return time.Duration(float64(d) / rate)
	}
	return m
}

func (m *MockTTSEngine) Speak(u Utterance, cb Callbacks) error {
	r := newRun(cb)

	m.mu.Lock()
	prev := m.current
	m.current = r
	m.mu.Unlock()

	if prev != nil {
		prev.interrupt(ReasonInterrupted)
	}

	go func() {
		pace(r, wordOffsets(u.Text), m.interval(u.Rate), nil, nil)
		m.mu.Lock()
		if m.current == r {
			m.current = nil
		}
		m.mu.Unlock()
	}()
	return nil
}

func (m *MockTTSEngine) Pause() error {
	if r := m.active(); r != nil {
		r.pause()
	}
	return nil
}

func (m *MockTTSEngine) Resume() error {
	if r := m.active(); r != nil {
		r.unpause()
	}
	return nil
}

func (m *MockTTSEngine) Cancel() error {
	m.mu.Lock()
	r := m.current
	m.current = nil
	m.mu.Unlock()

	if r != nil {
		r.interrupt(ReasonCanceled)
	}
	return nil
}

func (m *MockTTSEngine) Voices() ([]VoiceOption, error) {
	return m.voices, nil
}

// IsPlaying reports whether an utterance is active and not paused.
func (m *MockTTSEngine) IsPlaying() bool {
	r := m.active()
	return r != nil && !r.isPaused()
}

func (m *MockTTSEngine) active() *run {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

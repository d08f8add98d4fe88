package tts

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

const eventBuffer = 256

// Adapter drives a Driver and turns its callbacks into a single stream of
// generation-tagged events. It keeps every in-flight utterance in a registry
// until the utterance ends, fails, or is superseded.
type Adapter struct {
	driver Driver

	mu      sync.Mutex
	next    uint64
	active  uint64
	pending map[uint64]*Utterance

	events chan Event
	done   chan struct{}
	once   sync.Once
}

func NewAdapter(driver Driver) *Adapter {
	return &Adapter{
		driver:  driver,
		pending: make(map[uint64]*Utterance),
		events:  make(chan Event, eventBuffer),
		done:    make(chan struct{}),
	}
}

// Events returns the normalized event stream.
func (a *Adapter) Events() <-chan Event {
	return a.events
}

// Speak starts a new utterance and returns its handle. Every call takes a
// new generation.
func (a *Adapter) Speak(text string, rate float64, voice *VoiceOption) (Handle, error) {
	select {
	case <-a.done:
		return Handle{}, ErrAdapterClosed
	default:
	}

	u := &Utterance{Text: text, Rate: rate}
	if voice != nil {
		v := *voice
		u.Voice = &v
	}

	a.mu.Lock()
	a.next++
	gen := a.next
	for g := range a.pending {
		delete(a.pending, g)
	}
	a.pending[gen] = u
	a.active = gen
	a.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"generation": gen,
		"rate":       rate,
		"chars":      len(text),
	}).Debug("speaking utterance")

	if err := a.driver.Speak(*u, a.callbacks(gen)); err != nil {
		a.release(gen)
		return Handle{}, fmt.Errorf("failed to speak: %w", err)
	}
	return Handle{Generation: gen}, nil
}

// Pause pauses the engine if h is still the active utterance.
func (a *Adapter) Pause(h Handle) error {
	if !a.isActive(h) {
		return nil
	}
	return a.driver.Pause()
}

// Resume resumes the engine if h is still the active utterance.
func (a *Adapter) Resume(h Handle) error {
	if !a.isActive(h) {
		return nil
	}
	return a.driver.Resume()
}

// Cancel stops whatever the engine is speaking.
func (a *Adapter) Cancel() error {
	a.mu.Lock()
	a.active = 0
	a.mu.Unlock()
	return a.driver.Cancel()
}

// Active returns the utterance currently being spoken.
func (a *Adapter) Active() (Utterance, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.pending[a.active]
	if !ok {
		return Utterance{}, false
	}
	return *u, true
}

// Pending returns how many utterances the registry still holds.
func (a *Adapter) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

func (a *Adapter) Voices() ([]VoiceOption, error) {
	return a.driver.Voices()
}

// Close cancels the engine and unblocks any driver waiting to deliver an event.
func (a *Adapter) Close() error {
	var err error
	a.once.Do(func() {
		err = a.Cancel()
		close(a.done)
	})
	return err
}

func (a *Adapter) isActive(h Handle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return h.Generation != 0 && h.Generation == a.active
}

func (a *Adapter) release(gen uint64) {
	a.mu.Lock()
	delete(a.pending, gen)
	if a.active == gen {
		a.active = 0
	}
	a.mu.Unlock()
}

func (a *Adapter) callbacks(gen uint64) Callbacks {
	return Callbacks{
		OnStart: func() {
			a.emit(Event{Kind: EventStart, Generation: gen})
		},
		OnBoundary: func(charIndex int) {
			a.emit(Event{Kind: EventBoundary, Generation: gen, CharIndex: charIndex})
		},
		OnEnd: func() {
			a.release(gen)
			a.emit(Event{Kind: EventEnd, Generation: gen})
		},
		OnError: func(reason string) {
			a.release(gen)
			if IsControlFlow(reason) {
				logrus.WithFields(logrus.Fields{
					"generation": gen,
					"reason":     reason,
				}).Debug("utterance pre-empted")
				return
			}
			a.emit(Event{Kind: EventError, Generation: gen, Reason: reason})
		},
	}
}

func (a *Adapter) emit(ev Event) {
	select {
	case a.events <- ev:
	case <-a.done:
	}
}

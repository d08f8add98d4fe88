// Package ttstest provides a scripted TTS driver for tests.
package ttstest

import (
	"sync"

	"readalong/internal/story/tts"
)

// Driver records every call and lets the test fire callbacks by hand.
// Like a real engine, speaking or cancelling pre-empts the active utterance
// with an "interrupted" or "canceled" error.
type Driver struct {
	mu sync.Mutex

	Spoken  []tts.Utterance
	Pauses  int
	Resumes int
	Cancels int

	// SpeakErr, when set, is returned by the next Speak call.
	SpeakErr error

	voices    []tts.VoiceOption
	callbacks []tts.Callbacks
	active    int
}

func New(voices ...tts.VoiceOption) *Driver {
	return &Driver{voices: voices, active: -1}
}

func (d *Driver) Speak(u tts.Utterance, cb tts.Callbacks) error {
	d.mu.Lock()
	if err := d.SpeakErr; err != nil {
		d.SpeakErr = nil
		d.mu.Unlock()
		return err
	}
	prev := d.active
	d.Spoken = append(d.Spoken, u)
	d.callbacks = append(d.callbacks, cb)
	d.active = len(d.callbacks) - 1
	d.mu.Unlock()

	if prev >= 0 {
		d.Fire(prev).Error(tts.ReasonInterrupted)
	}
	return nil
}

func (d *Driver) Pause() error {
	d.mu.Lock()
	d.Pauses++
	d.mu.Unlock()
	return nil
}

func (d *Driver) Resume() error {
	d.mu.Lock()
	d.Resumes++
	d.mu.Unlock()
	return nil
}

func (d *Driver) Cancel() error {
	d.mu.Lock()
	d.Cancels++
	prev := d.active
	d.active = -1
	d.mu.Unlock()

	if prev >= 0 {
		d.Fire(prev).Error(tts.ReasonCanceled)
	}
	return nil
}

func (d *Driver) Voices() ([]tts.VoiceOption, error) {
	return d.voices, nil
}

// SpeakCount returns how many utterances were spoken.
func (d *Driver) SpeakCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Spoken)
}

// LastSpoken returns the most recent utterance.
func (d *Driver) LastSpoken() tts.Utterance {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.Spoken) == 0 {
		return tts.Utterance{}
	}
	return d.Spoken[len(d.Spoken)-1]
}

// Fire returns a trigger for the callbacks of the i-th spoken utterance.
func (d *Driver) Fire(i int) Trigger {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Trigger{d: d, i: i, cb: d.callbacks[i]}
}

// Latest returns a trigger for the most recent utterance.
func (d *Driver) Latest() Trigger {
	d.mu.Lock()
	n := len(d.callbacks)
	d.mu.Unlock()
	return d.Fire(n - 1)
}

// Trigger fires the callbacks of one utterance.
type Trigger struct {
	d  *Driver
	i  int
	cb tts.Callbacks
}

func (t Trigger) finish() {
	t.d.mu.Lock()
	if t.d.active == t.i {
		t.d.active = -1
	}
	t.d.mu.Unlock()
}

func (t Trigger) Start() {
	if t.cb.OnStart != nil {
		t.cb.OnStart()
	}
}

func (t Trigger) Boundary(charIndex int) {
	if t.cb.OnBoundary != nil {
		t.cb.OnBoundary(charIndex)
	}
}

func (t Trigger) End() {
	t.finish()
	if t.cb.OnEnd != nil {
		t.cb.OnEnd()
	}
}

func (t Trigger) Error(reason string) {
	t.finish()
	if t.cb.OnError != nil {
		t.cb.OnError(reason)
	}
}

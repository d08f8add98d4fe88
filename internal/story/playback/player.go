// Package playback keeps a highlighted word in step with a TTS engine that
// only reports approximate character offsets.
package playback

import (
	"context"
	"math"
	"sync"
	"time"

	"readalong/internal/domain/story"
	"readalong/internal/story/telemetry"
	"readalong/internal/story/tts"

	"github.com/sirupsen/logrus"
)

// Engine is the part of tts.Adapter the player drives.
type Engine interface {
	Speak(text string, rate float64, voice *tts.VoiceOption) (tts.Handle, error)
	Pause(h tts.Handle) error
	Resume(h tts.Handle) error
	Cancel() error
	Active() (tts.Utterance, bool)
	Voices() ([]tts.VoiceOption, error)
	Events() <-chan tts.Event
}

type Options struct {
	Rate  float64
	Voice *tts.VoiceOption
	Sink  telemetry.Sink

	// OnComplete runs once each time the story is read to the end.
	OnComplete func()
	// OnChange runs after every transition with the new state and highlight.
	OnChange func(state State, highlight int)

	RestartDebounce time.Duration
}

// Player owns the playback session. Every mutation happens under its mutex,
// whether it comes from a caller, the event loop or a scheduled restart.
type Player struct {
	engine     Engine
	sink       telemetry.Sink
	onComplete func()
	onChange   func(State, int)
	restarts   *RestartCoordinator

	mu         sync.Mutex
	text       string
	tokens     []story.WordToken
	rate       float64
	voice      *tts.VoiceOption
	state      State
	highlight  int
	generation uint64
	handle     tts.Handle
	lastErr    error

	lastChar    int
	lastMatched string

	changed   bool
	completed bool
}

func NewPlayer(engine Engine, opts Options) *Player {
	p := &Player{
		engine:      engine,
		sink:        opts.Sink,
		onComplete:  opts.OnComplete,
		onChange:    opts.OnChange,
		rate:        ClampRate(opts.Rate),
		voice:       opts.Voice,
		highlight:   -1,
		lastChar:    -1,
		lastMatched: telemetry.NoBoundary,
	}
	if p.sink == nil {
		p.sink = telemetry.Nop{}
	}
	p.restarts = newRestartCoordinator(p, opts.RestartDebounce)
	return p
}

// ClampRate limits r to [MinRate, MaxRate] in RateStep increments. Zero and
// invalid values fall back to DefaultRate.
func ClampRate(r float64) float64 {
	if r == 0 || math.IsNaN(r) {
		return DefaultRate
	}
	r = math.Max(MinRate, math.Min(MaxRate, r))
	return math.Round(r/RateStep) * RateStep
}

// Run feeds engine events to the player until ctx is done.
func (p *Player) Run(ctx context.Context) error {
	events := p.engine.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.Dispatch(ev)
		}
	}
}

// SetText replaces the story. An active session is stopped first because
// its offsets no longer refer to the new text.
func (p *Player) SetText(text string, tokens []story.WordToken) {
	p.mu.Lock()
	if p.state != StateIdle {
		p.stopLocked()
	}
	p.text = text
	p.tokens = tokens
	p.lastChar, p.lastMatched = -1, telemetry.NoBoundary
	p.recordLocked("Loaded", "")
	after := p.takeCallbacks()
	p.mu.Unlock()

	after()
}

// Play starts reading from the beginning, or resumes when paused.
func (p *Player) Play() error {
	p.mu.Lock()
	var err error
	if p.state == StatePaused && p.handle.Generation != 0 {
		err = p.resumeLocked()
	} else {
		err = p.startLocked()
	}
	after := p.takeCallbacks()
	p.mu.Unlock()

	after()
	return err
}

// Pause pauses reading. It does nothing unless the player is speaking.
func (p *Player) Pause() error {
	p.mu.Lock()
	var err error
	if p.state == StateSpeaking {
		err = p.engine.Pause(p.handle)
		if err == nil {
			p.state = StatePaused
			p.recordLocked("Paused", "")
		}
	}
	after := p.takeCallbacks()
	p.mu.Unlock()

	after()
	return err
}

// Stop cancels reading and clears the session. It is safe to call in any state.
func (p *Player) Stop() error {
	p.mu.Lock()
	err := p.stopLocked()
	after := p.takeCallbacks()
	p.mu.Unlock()

	after()
	return err
}

// SetRate changes the speaking rate. Out-of-range values are clamped.
func (p *Player) SetRate(r float64) {
	r = ClampRate(r)

	p.mu.Lock()
	changed := r != p.rate
	p.rate = r
	p.mu.Unlock()

	if changed {
		p.restarts.Notify()
	}
}

// SetVoice selects a voice by name. Unknown names select the engine's
// default voice.
func (p *Player) SetVoice(name string) {
	var voice *tts.VoiceOption
	if name != "" && name != "default" {
		voices, err := p.engine.Voices()
		if err != nil {
			logrus.WithError(err).Warn("Failed to list voices, using default voice")
		}
		for _, v := range voices {
			if v.Name == name {
				v := v
				voice = &v
				break
			}
		}
		if voice == nil {
			logrus.WithField("voice", name).Debug("Voice not found, using default voice")
		}
	}

	p.mu.Lock()
	changed := voiceName(voice) != voiceName(p.voice)
	p.voice = voice
	p.mu.Unlock()

	if changed {
		p.restarts.Notify()
	}
}

// SpeakWord pronounces a single word, slower than the story rate. It runs
// outside the story's session; a story being read is stopped first since
// the engine speaks one utterance at a time.
func (p *Player) SpeakWord(word string) error {
	p.mu.Lock()
	rate := math.Max(0.6, p.rate*0.8)
	after, err := p.speakAsideLocked(word, rate)
	p.mu.Unlock()

	after()
	return err
}

// SpeakText reads arbitrary text at the story rate outside the story's session.
func (p *Player) SpeakText(text string) error {
	p.mu.Lock()
	after, err := p.speakAsideLocked(text, p.rate)
	p.mu.Unlock()

	after()
	return err
}

// Dispatch applies one engine event. Events from any utterance other than
// the session's current one are discarded.
func (p *Player) Dispatch(ev tts.Event) {
	p.mu.Lock()
	if ev.Generation == 0 || ev.Generation != p.generation {
		logrus.WithFields(logrus.Fields{
			"event":      ev.Kind.String(),
			"generation": ev.Generation,
			"current":    p.generation,
		}).Debug("Discarding stale engine event")
		p.mu.Unlock()
		return
	}

	switch ev.Kind {
	case tts.EventStart:
		if p.state == StateSpeaking {
			p.recordLocked("Speaking", "")
		}

	case tts.EventBoundary:
		if p.state != StateSpeaking {
			break
		}
		p.lastChar = ev.CharIndex
		if i, ok := Resolve(ev.CharIndex, p.tokens); ok {
			p.highlight = i
			p.lastMatched = p.tokens[i].Text
			p.recordLocked("Speaking (Match)", "")
		} else {
			p.lastMatched = telemetry.NoToken
			p.recordLocked("Speaking (Gap)", "")
		}

	case tts.EventEnd:
		p.clearSessionLocked()
		p.completed = true
		p.recordLocked("Finished", "")

	case tts.EventError:
		if tts.IsControlFlow(ev.Reason) {
			break
		}
		p.clearSessionLocked()
		p.state = StateError
		p.lastErr = &EngineError{Reason: ev.Reason}
		logrus.WithField("reason", ev.Reason).Warn("Speech engine failed")
		p.recordLocked("Error: "+ev.Reason, ev.Reason)
	}

	after := p.takeCallbacks()
	p.mu.Unlock()

	after()
}

func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Highlight returns the index of the highlighted token, or -1.
func (p *Player) Highlight() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.highlight
}

func (p *Player) Tokens() []story.WordToken {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokens
}

func (p *Player) Session() Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	var voice *tts.VoiceOption
	if p.voice != nil {
		v := *p.voice
		voice = &v
	}
	return Session{
		Text:           p.text,
		Rate:           p.rate,
		Voice:          voice,
		HighlightIndex: p.highlight,
		State:          p.state,
		Generation:     p.generation,
	}
}

// LastError returns the engine failure that put the player in StateError.
func (p *Player) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// Close stops reading and drops any pending restart.
func (p *Player) Close() error {
	p.restarts.Close()
	return p.Stop()
}

func (p *Player) startLocked() error {
	if p.text == "" {
		return ErrNoText
	}

	if err := p.engine.Cancel(); err != nil {
		logrus.WithError(err).Debug("Failed to cancel residual speech")
	}
	p.highlight = -1
	p.lastChar, p.lastMatched = -1, telemetry.NoBoundary
	p.recordLocked("Starting...", "")

	h, err := p.engine.Speak(p.text, p.rate, p.voice)
	if err != nil {
		p.clearSessionLocked()
		p.state = StateError
		p.lastErr = &EngineError{Reason: err.Error()}
		p.recordLocked("Error: "+err.Error(), err.Error())
		return p.lastErr
	}

	// Marked speaking right away; the start event confirms it.
	p.handle = h
	p.generation = h.Generation
	p.state = StateSpeaking
	p.lastErr = nil
	p.changed = true
	return nil
}

func (p *Player) resumeLocked() error {
	if err := p.engine.Resume(p.handle); err != nil {
		return err
	}
	p.state = StateSpeaking
	p.recordLocked("Resumed", "")
	return nil
}

func (p *Player) stopLocked() error {
	p.restarts.Cancel()
	err := p.engine.Cancel()
	p.clearSessionLocked()
	p.lastErr = nil
	p.recordLocked("Stopped", "")
	return err
}

func (p *Player) speakAsideLocked(text string, rate float64) (func(), error) {
	if p.state == StateSpeaking || p.state == StatePaused {
		p.stopLocked()
	}
	_, err := p.engine.Speak(text, rate, p.voice)
	return p.takeCallbacks(), err
}

func (p *Player) clearSessionLocked() {
	p.state = StateIdle
	p.highlight = -1
	p.generation = 0
	p.handle = tts.Handle{}
	p.changed = true
}

// cancelForRestart implements restartTarget. A restart applies while the
// story is being spoken, not while paused. A session whose utterance was
// already cancelled for a restart keeps qualifying so a newer change
// replaces the pending restart.
func (p *Player) cancelForRestart() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateSpeaking {
		return false
	}
	if p.handle.Generation == 0 {
		return true
	}
	active, ok := p.engine.Active()
	if !ok || active.Text != p.text {
		return false
	}

	if err := p.engine.Cancel(); err != nil {
		logrus.WithError(err).Debug("Failed to cancel speech for restart")
	}
	p.handle = tts.Handle{}
	p.generation = 0
	return true
}

// restart implements restartTarget.
func (p *Player) restart() {
	p.mu.Lock()
	var err error
	if p.state == StateSpeaking && p.handle.Generation == 0 {
		err = p.startLocked()
	}
	after := p.takeCallbacks()
	p.mu.Unlock()

	after()
	if err != nil {
		logrus.WithError(err).Warn("Failed to restart speech after settings change")
	}
}

func (p *Player) recordLocked(label, reason string) {
	p.changed = true

	snap := telemetry.Snapshot{
		CharIndex:   p.lastChar,
		MatchedText: p.lastMatched,
		TotalTokens: len(p.tokens),
		State:       p.state.String(),
		Label:       label,
		Reason:      reason,
		Time:        time.Now(),
	}
	if p.voice != nil {
		snap.VoiceName = p.voice.Name
		snap.IsLocalVoice = p.voice.IsLocalService
	}
	p.sink.Record(snap)
}

// takeCallbacks collects the caller callbacks owed for the changes made
// under the lock so they can run after it is released.
func (p *Player) takeCallbacks() func() {
	changed, completed := p.changed, p.completed
	p.changed, p.completed = false, false
	state, highlight := p.state, p.highlight
	onChange, onComplete := p.onChange, p.onComplete

	return func() {
		if changed && onChange != nil {
			onChange(state, highlight)
		}
		if completed && onComplete != nil {
			onComplete()
		}
	}
}

func voiceName(v *tts.VoiceOption) string {
	if v == nil {
		return ""
	}
	return v.Name
}

package playback

import (
	"errors"

	"readalong/internal/story/tts"
)

// State represents where the player is in its lifecycle.
type State int

const (
	// StateIdle indicates nothing is being read.
	StateIdle State = iota
	// StateSpeaking indicates the story is being read aloud.
	StateSpeaking
	// StatePaused indicates reading is paused and can resume in place.
	StatePaused
	// StateError indicates the engine failed; Play starts over.
	StateError
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSpeaking:
		return "speaking"
	case StatePaused:
		return "paused"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Rate bounds accepted by SetRate.
const (
	MinRate     = 0.5
	MaxRate     = 1.5
	RateStep    = 0.1
	DefaultRate = 1.0
)

var (
	ErrNoText = errors.New("no text loaded")
	ErrEngine = errors.New("engine failure")
)

// EngineError carries the reason an engine gave for failing.
type EngineError struct {
	Reason string
}

func (e *EngineError) Error() string {
	return "engine failure: " + e.Reason
}

func (e *EngineError) Is(target error) bool {
	return target == ErrEngine
}

// Session is a copy of the player's mutable state.
type Session struct {
	Text           string
	Rate           float64
	Voice          *tts.VoiceOption
	HighlightIndex int
	State          State
	Generation     uint64
}

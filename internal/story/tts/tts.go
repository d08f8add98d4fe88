// internal/story/tts/tts.go
package tts

import "errors"

type Config struct {
	Type      string
	Speed     float64
	Volume    float64
	Voice     string
	CachePath string
}

// Error reasons reported by drivers when an utterance is pre-empted.
// They are expected control flow, not failures.
const (
	ReasonCanceled    = "canceled"
	ReasonInterrupted = "interrupted"
)

var (
	ErrUnsupportedEngine = errors.New("unsupported TTS engine")
	ErrEngineNotFound    = errors.New("TTS engine executable not found")
	ErrPauseUnsupported  = errors.New("pause is not supported on this platform")
	ErrAdapterClosed     = errors.New("engine adapter is closed")
)

// IsControlFlow reports whether an error reason only signals cancellation.
func IsControlFlow(reason string) bool {
	return reason == ReasonCanceled || reason == ReasonInterrupted
}

// VoiceOption identifies an engine voice.
type VoiceOption struct {
	Name           string `json:"name"`
	Lang           string `json:"lang"`
	IsLocalService bool   `json:"is_local_service"`
}

// Utterance is one request to speak.
type Utterance struct {
	Text  string
	Rate  float64
	Voice *VoiceOption
}

// Callbacks are invoked by a Driver for a single utterance, in the order
// start, boundary*, then end or error. A pre-empted utterance may stop
// anywhere in that sequence.
type Callbacks struct {
	OnStart    func()
	OnBoundary func(charIndex int)
	OnEnd      func()
	OnError    func(reason string)
}

func (c Callbacks) start() {
	if c.OnStart != nil {
		c.OnStart()
	}
}

func (c Callbacks) boundary(charIndex int) {
	if c.OnBoundary != nil {
		c.OnBoundary(charIndex)
	}
}

func (c Callbacks) end() {
	if c.OnEnd != nil {
		c.OnEnd()
	}
}

func (c Callbacks) error(reason string) {
	if c.OnError != nil {
		c.OnError(reason)
	}
}

// Driver is the raw engine: it speaks one utterance at a time and reports
// progress through callbacks. Speak returns without waiting for audio.
// Speaking while another utterance is active pre-empts it. Pause, Resume and
// Cancel act on whatever utterance is active.
type Driver interface {
	Speak(u Utterance, cb Callbacks) error
	Pause() error
	Resume() error
	Cancel() error
	Voices() ([]VoiceOption, error)
}

// EventKind enumerates normalized engine events.
type EventKind int

const (
	EventStart EventKind = iota
	EventBoundary
	EventEnd
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStart:
		return "start"
	case EventBoundary:
		return "boundary"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is a driver callback tagged with the generation of the utterance
// that produced it.
type Event struct {
	Kind       EventKind
	Generation uint64
	CharIndex  int
	Reason     string
}

// Handle refers to a spoken utterance.
type Handle struct {
	Generation uint64
}

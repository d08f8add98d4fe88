package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"readalong/internal/domain/story"
	"readalong/internal/story/telemetry"
	"readalong/internal/story/tts"
	"readalong/internal/story/tts/ttstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleText = "The cat sat."

type fixture struct {
	driver   *ttstest.Driver
	adapter  *tts.Adapter
	player   *Player
	recorder *telemetry.Recorder

	mu        sync.Mutex
	completed int
	changes   []State
}

func newFixture(t *testing.T, voices ...tts.VoiceOption) *fixture {
	t.Helper()

	f := &fixture{
		driver:   ttstest.New(voices...),
		recorder: telemetry.NewRecorder(),
	}
	f.adapter = tts.NewAdapter(f.driver)
	f.player = NewPlayer(f.adapter, Options{
		Rate:            1.0,
		Sink:            f.recorder,
		RestartDebounce: 10 * time.Millisecond,
		OnComplete: func() {
			f.mu.Lock()
			f.completed++
			f.mu.Unlock()
		},
		OnChange: func(s State, _ int) {
			f.mu.Lock()
			f.changes = append(f.changes, s)
			f.mu.Unlock()
		},
	})
	f.player.SetText(sampleText, sampleTokens())

	t.Cleanup(func() {
		f.player.Close()
		f.adapter.Close()
	})
	return f
}

// pump dispatches every event the adapter has queued.
func (f *fixture) pump() {
	for {
		select {
		case ev := <-f.adapter.Events():
			f.player.Dispatch(ev)
		default:
			return
		}
	}
}

func (f *fixture) completions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed
}

func TestPlayerReadsToTheEnd(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.player.Play())
	assert.Equal(t, StateSpeaking, f.player.State())
	assert.Equal(t, sampleText, f.driver.LastSpoken().Text)

	f.driver.Latest().Start()
	f.driver.Latest().Boundary(5)
	f.pump()
	assert.Equal(t, 1, f.player.Highlight())

	f.driver.Latest().Boundary(3)
	f.pump()
	assert.Equal(t, 0, f.player.Highlight())

	f.driver.Latest().Boundary(12)
	f.pump()
	assert.Equal(t, 2, f.player.Highlight())

	f.driver.Latest().End()
	f.pump()
	assert.Equal(t, StateIdle, f.player.State())
	assert.Equal(t, -1, f.player.Highlight())
	assert.Equal(t, 1, f.completions())
	assert.Equal(t, "Finished", f.recorder.Snapshot().Label)
}

func TestPlayerWithoutText(t *testing.T) {
	f := newFixture(t)
	f.player.SetText("", nil)

	assert.ErrorIs(t, f.player.Play(), ErrNoText)
	assert.Equal(t, StateIdle, f.player.State())
	assert.Equal(t, 0, f.driver.SpeakCount())
}

func TestPlayerPauseAndResume(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.player.Play())
	f.driver.Latest().Boundary(5)
	f.pump()

	require.NoError(t, f.player.Pause())
	assert.Equal(t, StatePaused, f.player.State())
	assert.Equal(t, 1, f.driver.Pauses)
	assert.Equal(t, 1, f.player.Highlight())

	require.NoError(t, f.player.Play())
	assert.Equal(t, StateSpeaking, f.player.State())
	assert.Equal(t, 1, f.driver.Resumes)
	assert.Equal(t, 1, f.driver.SpeakCount())
	assert.Equal(t, 1, f.player.Highlight())
	assert.Equal(t, "Resumed", f.recorder.Snapshot().Label)
}

func TestPlayerPauseWhileIdle(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.player.Pause())
	assert.Equal(t, StateIdle, f.player.State())
	assert.Equal(t, 0, f.driver.Pauses)
}

func TestPlayerStopIsIdempotent(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.player.Play())
	f.driver.Latest().Boundary(5)
	f.pump()

	require.NoError(t, f.player.Stop())
	require.NoError(t, f.player.Stop())
	assert.Equal(t, StateIdle, f.player.State())
	assert.Equal(t, -1, f.player.Highlight())
	assert.Equal(t, uint64(0), f.player.Session().Generation)

	// The cancelled utterance can no longer move the highlight.
	f.driver.Fire(0).Boundary(8)
	f.pump()
	assert.Equal(t, -1, f.player.Highlight())
	assert.Equal(t, 0, f.completions())
}

func TestPlayerIgnoresInterruptions(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.player.Play())
	gen := f.player.Session().Generation

	f.player.Dispatch(tts.Event{Kind: tts.EventError, Generation: gen, Reason: tts.ReasonInterrupted})
	f.player.Dispatch(tts.Event{Kind: tts.EventError, Generation: gen, Reason: tts.ReasonCanceled})

	assert.Equal(t, StateSpeaking, f.player.State())
	assert.NoError(t, f.player.LastError())
}

func TestPlayerIgnoresStaleEvents(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.player.Play())
	gen := f.player.Session().Generation

	f.player.Dispatch(tts.Event{Kind: tts.EventBoundary, Generation: gen + 7, CharIndex: 5})
	f.player.Dispatch(tts.Event{Kind: tts.EventEnd, Generation: gen + 7})

	assert.Equal(t, StateSpeaking, f.player.State())
	assert.Equal(t, -1, f.player.Highlight())
	assert.Equal(t, 0, f.completions())
}

func TestPlayerEngineFailure(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.player.Play())
	f.driver.Latest().Error("synthesis-failed")
	f.pump()

	assert.Equal(t, StateError, f.player.State())
	assert.Equal(t, -1, f.player.Highlight())
	assert.ErrorIs(t, f.player.LastError(), ErrEngine)
	assert.Equal(t, "Error: synthesis-failed", f.recorder.Snapshot().Label)

	// Play starts over.
	require.NoError(t, f.player.Play())
	assert.Equal(t, StateSpeaking, f.player.State())
	assert.NoError(t, f.player.LastError())
	assert.Equal(t, 2, f.driver.SpeakCount())
}

func TestPlayerSpeakFailure(t *testing.T) {
	f := newFixture(t)
	f.driver.SpeakErr = errors.New("audio device busy")

	err := f.player.Play()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEngine)

	var engineErr *EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Contains(t, engineErr.Reason, "audio device busy")
	assert.Equal(t, StateError, f.player.State())
}

func TestPlayerRecordsGaps(t *testing.T) {
	f := newFixture(t)
	f.player.SetText("  cat", []story.WordToken{{Text: "cat", StartIndex: 2, EndIndex: 5}})

	require.NoError(t, f.player.Play())
	f.driver.Latest().Boundary(1)
	f.pump()

	snap := f.recorder.Snapshot()
	assert.Equal(t, "Speaking (Gap)", snap.Label)
	assert.Equal(t, telemetry.NoToken, snap.MatchedText)
	assert.Equal(t, 1, snap.CharIndex)
	assert.Equal(t, -1, f.player.Highlight())
}

func TestPlayerRestartsOnRateChange(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.player.Play())
	f.driver.Latest().Boundary(5)
	f.pump()

	f.player.SetRate(1.3)

	require.Eventually(t, func() bool {
		return f.driver.SpeakCount() == 2
	}, time.Second, 5*time.Millisecond)

	assert.InDelta(t, 1.3, f.driver.LastSpoken().Rate, 1e-9)
	assert.Equal(t, sampleText, f.driver.LastSpoken().Text)
	assert.Equal(t, StateSpeaking, f.player.State())
	assert.Equal(t, -1, f.player.Highlight())

	// Late events from the first utterance are discarded.
	f.driver.Fire(0).Boundary(8)
	f.pump()
	assert.Equal(t, -1, f.player.Highlight())

	f.driver.Latest().Boundary(5)
	f.pump()
	assert.Equal(t, 1, f.player.Highlight())
}

func TestPlayerRestartsOnceForBurstOfChanges(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.player.Play())

	f.player.SetRate(1.2)
	f.player.SetRate(1.4)

	require.Eventually(t, func() bool {
		return f.driver.SpeakCount() == 2
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 2, f.driver.SpeakCount())
	assert.InDelta(t, 1.4, f.driver.LastSpoken().Rate, 1e-9)
}

func TestPlayerVoiceChange(t *testing.T) {
	f := newFixture(t,
		tts.VoiceOption{Name: "en-us", Lang: "en-US", IsLocalService: true},
		tts.VoiceOption{Name: "en-gb", Lang: "en-GB", IsLocalService: true},
	)

	f.player.SetVoice("en-gb")
	require.NotNil(t, f.player.Session().Voice)
	assert.Equal(t, "en-gb", f.player.Session().Voice.Name)

	require.NoError(t, f.player.Play())
	assert.Equal(t, "en-gb", f.driver.LastSpoken().Voice.Name)

	f.player.SetVoice("no-such-voice")
	assert.Nil(t, f.player.Session().Voice)

	require.Eventually(t, func() bool {
		return f.driver.SpeakCount() == 2
	}, time.Second, 5*time.Millisecond)
	assert.Nil(t, f.driver.LastSpoken().Voice)
}

func TestPlayerNoRestartWhilePaused(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.player.Play())
	require.NoError(t, f.player.Pause())

	f.player.SetRate(0.7)
	time.Sleep(40 * time.Millisecond)

	assert.Equal(t, 1, f.driver.SpeakCount())
	assert.Equal(t, StatePaused, f.player.State())
	assert.InDelta(t, 0.7, f.player.Session().Rate, 1e-9)
}

func TestPlayerPauseWhileRestartPending(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.player.Play())
	f.player.SetRate(1.3)
	require.NoError(t, f.player.Pause())
	assert.Equal(t, StatePaused, f.player.State())

	// The scheduled restart must not bring a paused story back.
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, 1, f.driver.SpeakCount())
	assert.Equal(t, StatePaused, f.player.State())

	require.NoError(t, f.player.Play())
	assert.Equal(t, StateSpeaking, f.player.State())
	assert.Equal(t, 2, f.driver.SpeakCount())
	assert.InDelta(t, 1.3, f.driver.LastSpoken().Rate, 1e-9)
	assert.Equal(t, 0, f.driver.Resumes)
}

func TestPlayerSessionCopiesVoice(t *testing.T) {
	f := newFixture(t, tts.VoiceOption{Name: "en-gb", Lang: "en-GB", IsLocalService: true})
	f.player.SetVoice("en-gb")

	s := f.player.Session()
	require.NotNil(t, s.Voice)
	s.Voice.Name = "changed"

	assert.Equal(t, "en-gb", f.player.Session().Voice.Name)
	require.NoError(t, f.player.Play())
	assert.Equal(t, "en-gb", f.driver.LastSpoken().Voice.Name)
}

func TestPlayerClampsRate(t *testing.T) {
	f := newFixture(t)

	f.player.SetRate(3)
	assert.InDelta(t, MaxRate, f.player.Session().Rate, 1e-9)

	f.player.SetRate(0.1)
	assert.InDelta(t, MinRate, f.player.Session().Rate, 1e-9)

	f.player.SetRate(1.04)
	assert.InDelta(t, 1.0, f.player.Session().Rate, 1e-9)
}

func TestPlayerSpeakWord(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.player.Play())
	require.NoError(t, f.player.SpeakWord("cat"))

	assert.Equal(t, StateIdle, f.player.State())
	assert.Equal(t, "cat", f.driver.LastSpoken().Text)
	assert.InDelta(t, 0.8, f.driver.LastSpoken().Rate, 1e-9)

	f.driver.Latest().Start()
	f.driver.Latest().Boundary(0)
	f.driver.Latest().End()
	f.pump()

	assert.Equal(t, StateIdle, f.player.State())
	assert.Equal(t, -1, f.player.Highlight())
	assert.Equal(t, 0, f.completions())
}

func TestPlayerSpeakWordRateFloor(t *testing.T) {
	f := newFixture(t)
	f.player.SetRate(MinRate)

	require.NoError(t, f.player.SpeakWord("fox"))
	assert.InDelta(t, 0.6, f.driver.LastSpoken().Rate, 1e-9)
}

func TestPlayerSetTextStopsSession(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.player.Play())
	f.player.SetText("A new story.", nil)

	assert.Equal(t, StateIdle, f.player.State())
	assert.Equal(t, "A new story.", f.player.Session().Text)
}

func TestPlayerReportsChanges(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.player.Play())
	require.NoError(t, f.player.Pause())
	require.NoError(t, f.player.Stop())

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Contains(t, f.changes, StateSpeaking)
	assert.Contains(t, f.changes, StatePaused)
	assert.Equal(t, StateIdle, f.changes[len(f.changes)-1])
}

func TestPlayerRun(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.player.Run(ctx) }()

	require.NoError(t, f.player.Play())
	f.driver.Latest().Start()
	f.driver.Latest().Boundary(9)

	require.Eventually(t, func() bool {
		return f.player.Highlight() == 2
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

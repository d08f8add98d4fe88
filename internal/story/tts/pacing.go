package tts

import (
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

// baseWordsPerMinute is the speaking pace at rate 1.0, matching espeak's default.
const baseWordsPerMinute = 175

// wordInterval estimates the time between word boundaries at rate.
func wordInterval(rate float64) time.Duration {
	if rate <= 0 {
		rate = 1.0
	}
	return time.Duration(float64(time.Minute) / (baseWordsPerMinute * rate))
}

// wordOffsets returns the byte offset of every word start in text.
func wordOffsets(text string) []int {
	var offsets []int
	inWord := false
	for i, r := range text {
		if unicode.IsSpace(r) || r == utf8.RuneError {
			inWord = false
			continue
		}
		if !inWord {
			offsets = append(offsets, i)
			inWord = true
		}
	}
	return offsets
}

// run tracks one utterance being paced by a driver.
type run struct {
	cb     Callbacks
	stop   chan string
	resume chan struct{}

	mu     sync.Mutex
	paused bool
}

func newRun(cb Callbacks) *run {
	return &run{
		cb:     cb,
		stop:   make(chan string, 1),
		resume: make(chan struct{}, 1),
	}
}

func (r *run) interrupt(reason string) {
	select {
	case r.stop <- reason:
	default:
	}
}

func (r *run) pause() {
	r.mu.Lock()
	r.paused = true
	r.mu.Unlock()
}

func (r *run) unpause() {
	r.mu.Lock()
	r.paused = false
	r.mu.Unlock()
	select {
	case r.resume <- struct{}{}:
	default:
	}
}

func (r *run) isPaused() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.paused
}

// pace reports estimated boundaries for offsets, one per interval, then the
// terminal callback. With a nil exited channel the utterance ends one interval
// after its last word; otherwise it ends when exited yields. kill, if set,
// is called when the run is interrupted and must make exited yield.
func pace(r *run, offsets []int, interval time.Duration, exited <-chan error, kill func()) {
	r.cb.start()

	timer := time.NewTimer(0)
	defer timer.Stop()
	tick := timer.C
	next := 0
	due := false

	fire := func() bool {
		if next < len(offsets) {
			r.cb.boundary(offsets[next])
			next++
			timer.Reset(interval)
			return false
		}
		if exited == nil {
			r.cb.end()
			return true
		}
		tick = nil
		return false
	}

	for {
		select {
		case reason := <-r.stop:
			if kill != nil {
				kill()
			}
			if exited != nil {
				<-exited
			}
			r.cb.error(reason)
			return
		case err := <-exited:
			if err != nil {
				r.cb.error(err.Error())
			} else {
				r.cb.end()
			}
			return
		case <-r.resume:
			if due && !r.isPaused() {
				due = false
				if fire() {
					return
				}
			}
		case <-tick:
			if r.isPaused() {
				due = true
				continue
			}
			if fire() {
				return
			}
		}
	}
}

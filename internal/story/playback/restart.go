package playback

import (
	"sync"
	"time"
)

// DefaultRestartDebounce collapses bursts of setting changes into one restart.
const DefaultRestartDebounce = 50 * time.Millisecond

type restartTarget interface {
	// cancelForRestart cancels the current utterance when a restart applies
	// and reports whether it did.
	cancelForRestart() bool
	// restart speaks the text again from the beginning.
	restart()
}

// RestartCoordinator restarts playback after a rate or voice change. The
// engine cannot seek, so a restart always begins at the start of the text.
// Only one restart is pending at a time; scheduling again replaces it.
type RestartCoordinator struct {
	target restartTarget
	delay  time.Duration

	mu     sync.Mutex
	timer  *time.Timer
	seq    uint64
	closed bool
}

func newRestartCoordinator(target restartTarget, delay time.Duration) *RestartCoordinator {
	if delay <= 0 {
		delay = DefaultRestartDebounce
	}
	return &RestartCoordinator{target: target, delay: delay}
}

// Notify reports that a setting changed.
func (c *RestartCoordinator) Notify() {
	if !c.target.cancelForRestart() {
		return
	}
	c.schedule()
}

func (c *RestartCoordinator) schedule() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	if c.timer != nil {
		c.timer.Stop()
	}
	c.seq++
	seq := c.seq
	c.timer = time.AfterFunc(c.delay, func() { c.fire(seq) })
}

func (c *RestartCoordinator) fire(seq uint64) {
	c.mu.Lock()
	current := seq == c.seq && !c.closed
	if current {
		c.timer = nil
	}
	c.mu.Unlock()

	if current {
		c.target.restart()
	}
}

// Pending reports whether a restart is scheduled.
func (c *RestartCoordinator) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.timer != nil
}

// Cancel drops a scheduled restart.
func (c *RestartCoordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.seq++
}

// Close cancels any scheduled restart and ignores later notifications.
func (c *RestartCoordinator) Close() {
	c.Cancel()
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

package tts

import (
	"fmt"
	"os/exec"
	"sync"
)

// processEngine speaks each utterance with a command-line synthesizer. The
// process plays audio itself, so boundaries are estimated from the speaking
// rate and the utterance ends when the process exits.
type processEngine struct {
	name   string
	path   string
	config Config
	args   func(c Config, u Utterance) []string
	voices func(path string) ([]VoiceOption, error)

	mutex   sync.Mutex
	cmd     *exec.Cmd
	waited  chan struct{}
	current *run
}

func (p *processEngine) Speak(u Utterance, cb Callbacks) error {
	p.mutex.Lock()
	prev, prevCmd, prevWaited := p.current, p.cmd, p.waited
	p.current, p.cmd, p.waited = nil, nil, nil
	p.mutex.Unlock()

	// The previous synthesizer must be gone before the next one makes a sound.
	if prev != nil {
		prev.interrupt(ReasonInterrupted)
	}
	if prevCmd != nil && prevCmd.Process != nil {
		_ = prevCmd.Process.Kill()
		<-prevWaited
	}

	cmd := exec.Command(p.path, p.args(p.config, u)...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", p.name, err)
	}

	r := newRun(cb)
	waited := make(chan struct{})
	exited := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		close(waited)
		exited <- err
	}()

	p.mutex.Lock()
	p.cmd = cmd
	p.waited = waited
	p.current = r
	p.mutex.Unlock()

	go func() {
		pace(r, wordOffsets(u.Text), wordInterval(u.Rate), exited, func() {
			_ = cmd.Process.Kill()
		})

		p.mutex.Lock()
		if p.current == r {
			p.current = nil
			p.cmd = nil
			p.waited = nil
		}
		p.mutex.Unlock()
	}()

	return nil
}

func (p *processEngine) Pause() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.current == nil || p.cmd == nil || p.current.isPaused() {
		return nil
	}
	if err := pauseProcess(p.cmd.Process); err != nil {
		return err
	}
	p.current.pause()
	return nil
}

func (p *processEngine) Resume() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.current == nil || p.cmd == nil || !p.current.isPaused() {
		return nil
	}
	if err := resumeProcess(p.cmd.Process); err != nil {
		return err
	}
	p.current.unpause()
	return nil
}

// Cancel stops the active utterance. The process handle is kept so the next
// Speak waits for it to exit.
func (p *processEngine) Cancel() error {
	p.mutex.Lock()
	r := p.current
	cmd := p.cmd
	p.current = nil
	p.mutex.Unlock()

	if r != nil {
		r.interrupt(ReasonCanceled)
	}
	if cmd != nil {
		_ = cmd.Process.Kill()
	}
	return nil
}

func (p *processEngine) Voices() ([]VoiceOption, error) {
	return p.voices(p.path)
}

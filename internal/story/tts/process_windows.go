//go:build windows

package tts

import "os"

// Windows has no SIGSTOP/SIGCONT equivalent for a child process.
func pauseProcess(p *os.Process) error {
	return ErrPauseUnsupported
}

func resumeProcess(p *os.Process) error {
	return ErrPauseUnsupported
}

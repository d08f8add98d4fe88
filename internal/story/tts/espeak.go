// Cross-platform eSpeak implementation
package tts

import (
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// newESpeakEngine creates a new eSpeak TTS driver
func newESpeakEngine(config Config) (*processEngine, error) {
	espeakPath, err := findESpeakExecutable()
	if err != nil {
		return nil, err
	}

	if err := exec.Command(espeakPath, "--version").Run(); err != nil {
		return nil, fmt.Errorf("eSpeak test failed: %w", err)
	}

	return &processEngine{
		name:   "espeak",
		path:   espeakPath,
		config: config,
		args:   espeakArgs,
		voices: espeakVoices,
	}, nil
}

func findESpeakExecutable() (string, error) {
	// Try different possible eSpeak executables
	candidates := []string{"espeak-ng", "espeak"}

	for _, candidate := range candidates {
		if path, err := exec.LookPath(candidate); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("eSpeak: %w", ErrEngineNotFound)
}

func espeakArgs(c Config, u Utterance) []string {
	args := []string{}

	if u.Voice != nil && u.Voice.Name != "" && u.Voice.Name != "default" {
		args = append(args, "-v", u.Voice.Name)
	}

	// Words per minute, default is 175
	args = append(args, "-s", strconv.Itoa(int(math.Round(baseWordsPerMinute*u.Rate))))

	// Amplitude 0-200, default is 100
	volume := c.Volume
	if volume <= 0 {
		volume = 1.0
	}
	args = append(args, "-a", strconv.Itoa(int(math.Round(100*volume))))

	// "--" keeps text starting with a dash from being read as a flag
	return append(args, "--", u.Text)
}

func espeakVoices(path string) ([]VoiceOption, error) {
	output, err := exec.Command(path, "--voices").Output()
	if err != nil {
		return nil, err
	}
	return parseESpeakVoices(string(output)), nil
}

func parseESpeakVoices(output string) []VoiceOption {
	lines := strings.Split(output, "\n")
	voices := make([]VoiceOption, 0)

	for i, line := range lines {
		// Skip header line
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}

		// Parse voice line: Pty Language Age/Gender VoiceName          File          Other Languages
		fields := strings.Fields(line)
		if len(fields) >= 4 {
			voices = append(voices, VoiceOption{
				Name:           fields[3],
				Lang:           fields[1],
				IsLocalService: true,
			})
		}
	}

	return voices
}

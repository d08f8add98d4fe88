package tts

import (
	"fmt"
	"os/exec"
	"strings"
)

// newSayEngine drives the macOS built-in 'say' command
func newSayEngine(config Config) (*processEngine, error) {
	path, err := exec.LookPath("say")
	if err != nil {
		return nil, fmt.Errorf("say: %w", ErrEngineNotFound)
	}

	return &processEngine{
		name:   "say",
		path:   path,
		config: config,
		args:   sayArgs,
		voices: sayVoices,
	}, nil
}

func sayArgs(_ Config, u Utterance) []string {
	args := []string{}

	if u.Voice != nil && u.Voice.Name != "" && u.Voice.Name != "default" {
		args = append(args, "-v", u.Voice.Name)
	}

	// Rate in words per minute, default is ~175
	args = append(args, "-r", fmt.Sprintf("%.0f", baseWordsPerMinute*u.Rate))

	return append(args, "--", u.Text)
}

func sayVoices(path string) ([]VoiceOption, error) {
	output, err := exec.Command(path, "-v", "?").Output()
	if err != nil {
		return nil, err
	}
	return parseSayVoices(string(output)), nil
}

// parseSayVoices parses lines like "Bad News   en_US    # The light you see...".
// Voice names may contain spaces; the locale is the last field before '#'.
func parseSayVoices(output string) []VoiceOption {
	voices := make([]VoiceOption, 0)

	for _, line := range strings.Split(output, "\n") {
		desc, _, _ := strings.Cut(line, "#")
		fields := strings.Fields(desc)
		if len(fields) < 2 {
			continue
		}

		voices = append(voices, VoiceOption{
			Name:           strings.Join(fields[:len(fields)-1], " "),
			Lang:           strings.ReplaceAll(fields[len(fields)-1], "_", "-"),
			IsLocalService: true,
		})
	}

	return voices
}

package tts

import (
	"fmt"
	"os"
	"runtime"
)

type EngineType string

const (
	EngineTypeMock          EngineType = "mock"
	EngineTypeESpeak        EngineType = "espeak"
	EngineTypeSay           EngineType = "say" // macOS only
	EngineTypeGoogleClassic EngineType = "googleclassic"
	EngineTypeAuto          EngineType = "auto" // Automatically choose best for platform
)

func (e EngineType) String() string {
	return string(e)
}

// NewDriver creates a new TTS driver based on the provided config
func NewDriver(config Config) (Driver, error) {
	// Handle auto-selection
	if config.Type == "" || config.Type == EngineTypeAuto.String() {
		config.Type = getBestEngineForPlatform().String()
	}

	switch config.Type {
	case EngineTypeMock.String():
		return NewMockTTSEngine(config), nil

	case EngineTypeGoogleClassic.String():
		return newGoogleClassicTTSEngine(config)

	case EngineTypeESpeak.String():
		return newESpeakEngine(config)

	case EngineTypeSay.String():
		if runtime.GOOS != "darwin" {
			return nil, fmt.Errorf("say engine only supports macOS: %w", ErrUnsupportedEngine)
		}
		return newSayEngine(config)

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEngine, config.Type)
	}
}

// getBestEngineForPlatform returns the recommended engine for the current platform
func getBestEngineForPlatform() EngineType {
	if hasGoogleCredentials() {
		return EngineTypeGoogleClassic
	}

	if runtime.GOOS == "darwin" {
		return EngineTypeSay
	}
	return EngineTypeESpeak // Cross-platform fallback
}

// GetAvailableEngines returns engines available on the current platform
func GetAvailableEngines() []EngineType {
	engines := []EngineType{EngineTypeMock, EngineTypeESpeak}

	if hasGoogleCredentials() {
		engines = append(engines, EngineTypeGoogleClassic)
	}

	if runtime.GOOS == "darwin" {
		engines = append(engines, EngineTypeSay)
	}

	return engines
}

// hasGoogleCredentials checks if Google Cloud credentials are available
func hasGoogleCredentials() bool {
	_, ok := os.LookupEnv("GOOGLE_APPLICATION_CREDENTIALS")
	return ok
}

package config

import (
	"errors"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

const (
	fileName  = "readalong"
	envPrefix = "READALONG"
)

type Config struct {
	TTS struct {
		Type      string  `mapstructure:"type"`
		Voice     string  `mapstructure:"voice"`
		Speed     float64 `mapstructure:"speed"`
		Volume    float64 `mapstructure:"volume"`
		CachePath string  `mapstructure:"cache_path"`
	} `mapstructure:"tts"`

	Playback struct {
		RestartDebounce time.Duration `mapstructure:"restart_debounce"`
	} `mapstructure:"playback"`

	Log struct {
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`

	Catalog struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"catalog"`
}

func SetDefaults() {
	viper.SetDefault("tts.type", "auto") // Auto-select best engine
	viper.SetDefault("tts.voice", "default")
	viper.SetDefault("tts.speed", 1.0)
	viper.SetDefault("tts.volume", 0.8)
	viper.SetDefault("tts.cache_path", "")
	viper.SetDefault("playback.restart_debounce", 50*time.Millisecond)
	viper.SetDefault("log.level", "info")
	viper.SetDefault("catalog.path", "")
}

// Init registers defaults, the config file locations and the environment
// prefix, then reads the config file if there is one.
func Init() error {
	SetDefaults()

	viper.SetConfigName(fileName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.readalong")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix(envPrefix)
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			logrus.Debug("no config file found, using defaults")
			return nil
		}
		return err
	}

	logrus.WithField("file", viper.ConfigFileUsed()).Debug("loaded config")
	return nil
}

// Load returns the current settings.
func Load() (Config, error) {
	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Watch calls fn with the new settings every time the config file changes.
func Watch(fn func(Config)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		logrus.WithFields(logrus.Fields{
			"file": e.Name,
			"op":   e.Op.String(),
		}).Info("config file changed")

		c, err := Load()
		if err != nil {
			logrus.WithError(err).Warn("failed to reload config")
			return
		}
		fn(c)
	})
	viper.WatchConfig()
}

package nest

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"readalong/internal/cli/scheme/colours"
	"readalong/internal/config"
	"readalong/internal/domain/library"
	"readalong/internal/story/playback"
	"readalong/internal/story/telemetry"
	"readalong/internal/story/tts"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
)

// ReadAlong main application structure
type ReadAlong struct {
	catalog  *library.Catalog
	config   config.Config
	recorder *telemetry.Recorder
	sink     telemetry.Sink

	in  io.Reader
	out io.Writer

	newDriver   func(tts.Config) (tts.Driver, error)
	watchConfig func(func(config.Config))

	ctx    context.Context
	Cancel context.CancelFunc

	mu        sync.Mutex
	player    *playback.Player
	watchOnce sync.Once
}

func NewReadAlong(cfg config.Config) (*ReadAlong, error) {
	presets, err := library.Presets()
	if err != nil {
		return nil, err
	}

	libs := []*library.StoryLibrary{presets}
	if cfg.Catalog.Path != "" {
		user, err := library.LoadFile(cfg.Catalog.Path)
		if err != nil {
			return nil, err
		}
		libs = append(libs, user)
	}

	recorder := telemetry.NewRecorder()
	sinks := telemetry.Multi{recorder, telemetry.LogSink{Logger: logrus.StandardLogger()}}

	metrics, err := telemetry.NewMetricSink(otel.Meter("readalong"))
	if err != nil {
		logrus.WithError(err).Warn("failed to create playback metrics")
	} else {
		sinks = append(sinks, metrics)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &ReadAlong{
		catalog:     library.NewCatalog(libs...),
		config:      cfg,
		recorder:    recorder,
		sink:        sinks,
		in:          os.Stdin,
		out:         os.Stdout,
		newDriver:   tts.NewDriver,
		watchConfig: config.Watch,
		ctx:         ctx,
		Cancel:      cancel,
	}, nil
}

// Stop halts whatever story is being read.
func (ra *ReadAlong) Stop() {
	ra.mu.Lock()
	p := ra.player
	ra.mu.Unlock()

	if p != nil {
		if err := p.Stop(); err != nil {
			logrus.WithError(err).Debug("failed to stop playback")
		}
	}
}

func (ra *ReadAlong) ShowWelcome() {
	fmt.Fprintln(ra.out)
	colours.Title.Fprintln(ra.out, "🌟 Welcome to ReadAlong! 🌟")
	fmt.Fprintln(ra.out)
	colours.Info.Fprintln(ra.out, "📚 Available commands:")
	fmt.Fprintln(ra.out, "  • readalong list      - Browse available stories")
	fmt.Fprintln(ra.out, "  • readalong random    - Get a surprise story")
	fmt.Fprintln(ra.out, "  • readalong read <id> - Read a story with word highlighting")
	fmt.Fprintln(ra.out, "  • readalong voices    - List voices of the speech engine")
	fmt.Fprintln(ra.out, "  • readalong settings  - Show voice settings")
	fmt.Fprintln(ra.out)
	colours.Prompt.Fprintln(ra.out, "✨ Ready to read along? ✨")
}

func (ra *ReadAlong) ListStories(cmd *cobra.Command, args []string) {
	category, _ := cmd.Flags().GetString("category")

	fmt.Fprintln(ra.out)
	colours.Title.Fprintln(ra.out, "📚 Available Stories 📚")
	fmt.Fprintln(ra.out)

	stories := ra.catalog.Stories(category)
	for i, s := range stories {
		fmt.Fprintf(ra.out, "  %d. ", i+1)
		colours.Title.Fprintf(ra.out, "%s", s.Title)
		fmt.Fprintf(ra.out, "\n     🎭 Category: %s | 📝 Words: %d\n", s.Category, len(strings.Fields(s.Content)))
		colours.Info.Fprintf(ra.out, "     ID: %s\n", s.ID)
		fmt.Fprintln(ra.out)
	}

	if len(stories) == 0 {
		colours.Warning.Fprintln(ra.out, "🔍 No stories found matching your criteria.")
	} else {
		colours.Success.Fprintf(ra.out, "✨ Found %d stories! ✨\n", len(stories))
	}
}

func (ra *ReadAlong) ReadStory(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("a story id is required, see 'readalong list'")
	}

	item, ok := ra.catalog.Find(args[0])
	if !ok {
		colours.Error.Fprintf(ra.out, "❌ Story with ID '%s' not found!\n", args[0])
		return nil
	}

	return ra.read(item, ra.readOptions(cmd))
}

func (ra *ReadAlong) ReadRandomStory(cmd *cobra.Command, args []string) error {
	item, ok := ra.catalog.Random()
	if !ok {
		colours.Error.Fprintln(ra.out, "❌ No stories available!")
		return nil
	}

	fmt.Fprintln(ra.out)
	colours.Prompt.Fprintln(ra.out, "🎲 Random Story Selection! 🎲")
	return ra.read(item, ra.readOptions(cmd))
}

func (ra *ReadAlong) ListVoices(cmd *cobra.Command, args []string) error {
	opts := ra.readOptions(cmd)
	driver, err := ra.newDriver(opts)
	if err != nil {
		return fmt.Errorf("failed to create tts engine: %w", err)
	}

	voices, err := driver.Voices()
	if err != nil {
		return fmt.Errorf("failed to list voices: %w", err)
	}

	fmt.Fprintln(ra.out)
	colours.Title.Fprintf(ra.out, "🎤 Voices (%s)\n", opts.Type)
	for _, v := range voices {
		where := "cloud"
		if v.IsLocalService {
			where = "local"
		}
		colours.Info.Fprintf(ra.out, "  • %s", v.Name)
		colours.Muted.Fprintf(ra.out, "  %s, %s\n", v.Lang, where)
	}
	if len(voices) == 0 {
		colours.Warning.Fprintln(ra.out, "No voices reported by the engine")
	}
	return nil
}

func (ra *ReadAlong) ConfigureSettings(cmd *cobra.Command, args []string) {
	fmt.Fprintln(ra.out)
	colours.Title.Fprintln(ra.out, "⚙️ TTS Settings ⚙️")
	fmt.Fprintln(ra.out)

	colours.Prompt.Fprintln(ra.out, "🎤 Voice Settings:")
	fmt.Fprintf(ra.out, "  • Engine: %s\n", ra.config.TTS.Type)
	fmt.Fprintf(ra.out, "  • Current voice: %s\n", ra.config.TTS.Voice)
	fmt.Fprintf(ra.out, "  • Speed: %.1fx\n", playback.ClampRate(ra.config.TTS.Speed))
	fmt.Fprintf(ra.out, "  • Volume: %.0f%%\n", ra.config.TTS.Volume*100)
	fmt.Fprintf(ra.out, "  • Restart delay: %s\n", ra.config.Playback.RestartDebounce)
	fmt.Fprintln(ra.out)

	engines := make([]string, 0, 4)
	for _, e := range tts.GetAvailableEngines() {
		engines = append(engines, e.String())
	}
	colours.Prompt.Fprintln(ra.out, "🔊 Engines on this machine:")
	fmt.Fprintf(ra.out, "  • %s\n", strings.Join(engines, ", "))
	fmt.Fprintln(ra.out)

	colours.Prompt.Fprintln(ra.out, "📚 Libraries:")
	for _, lib := range ra.catalog.Libraries() {
		fmt.Fprintf(ra.out, "  • %s (%d stories)\n", lib.Name, len(lib.Stories))
	}
	fmt.Fprintln(ra.out)

	if file := viper.ConfigFileUsed(); file != "" {
		colours.Info.Fprintf(ra.out, "📁 Config file: %s\n", file)
	} else {
		colours.Info.Fprintln(ra.out, "💡 Create ~/.readalong/readalong.yaml to change these settings")
	}
	colours.Info.Fprintln(ra.out, "💡 Speed and voice changes in the config file apply while a story plays")
}

// ShowCacheStatus displays information about synthesized audio kept on disk.
func (ra *ReadAlong) ShowCacheStatus(cmd *cobra.Command, args []string) error {
	engine, err := ra.cacheableEngine(cmd)
	if err != nil {
		return err
	}

	stats, err := engine.CacheStats()
	if err != nil {
		return fmt.Errorf("failed to get cache info: %w", err)
	}

	colours.Title.Fprintln(ra.out, "📊 Audio Cache Status")
	colours.Info.Fprintf(ra.out, "📁 Location: %s\n", stats.Directory)
	colours.Info.Fprintf(ra.out, "🎵 Files: %d\n", stats.Files)
	colours.Info.Fprintf(ra.out, "📏 Size: %.2f MB\n", stats.SizeMB)
	return nil
}

// ClearCache removes synthesized audio kept on disk.
func (ra *ReadAlong) ClearCache(cmd *cobra.Command, args []string) error {
	engine, err := ra.cacheableEngine(cmd)
	if err != nil {
		return err
	}
	if err := engine.ClearCache(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	colours.Success.Fprintln(ra.out, "✅ Audio cache cleared")
	return nil
}

func (ra *ReadAlong) cacheableEngine(cmd *cobra.Command) (tts.CacheableEngine, error) {
	opts := ra.readOptions(cmd)
	driver, err := ra.newDriver(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create tts engine: %w", err)
	}
	engine, ok := driver.(tts.CacheableEngine)
	if !ok {
		return nil, fmt.Errorf("engine %q keeps no audio cache", opts.Type)
	}
	return engine, nil
}

// AddCacheCommands adds the audio cache commands to rootCmd.
func (ra *ReadAlong) AddCacheCommands(rootCmd *cobra.Command) {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "🗄️ Manage synthesized audio",
		Long:  "Inspect or clear audio cached by cloud speech engines",
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "📊 Show cache status",
		RunE:  ra.ShowCacheStatus,
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "🧹 Clear cached audio",
		RunE:  ra.ClearCache,
	}

	for _, c := range []*cobra.Command{statusCmd, clearCmd} {
		c.Flags().StringP("engine", "e", "", "Speech engine (auto, mock, espeak, say, googleclassic)")
	}

	cacheCmd.AddCommand(statusCmd, clearCmd)
	rootCmd.AddCommand(cacheCmd)
}

// AddReadFlags adds the flags that choose how a story is spoken.
func AddReadFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("voice", "v", "", "Voice to read with, see 'readalong voices'")
	cmd.Flags().Float64P("speed", "s", 0, "Reading speed between 0.5 and 1.5")
	cmd.Flags().StringP("engine", "e", "", "Speech engine (auto, mock, espeak, say, googleclassic)")
	cmd.Flags().BoolP("debug", "d", false, "Trace every boundary and transition")
}

// readOptions merges the command flags over the loaded config.
func (ra *ReadAlong) readOptions(cmd *cobra.Command) tts.Config {
	c := tts.Config{
		Type:      ra.config.TTS.Type,
		Speed:     ra.config.TTS.Speed,
		Volume:    ra.config.TTS.Volume,
		Voice:     ra.config.TTS.Voice,
		CachePath: ra.config.TTS.CachePath,
	}

	if cmd != nil {
		if v, err := cmd.Flags().GetString("engine"); err == nil && v != "" {
			c.Type = v
		}
		if v, err := cmd.Flags().GetString("voice"); err == nil && v != "" {
			c.Voice = v
		}
		if v, err := cmd.Flags().GetFloat64("speed"); err == nil && v != 0 {
			c.Speed = v
		}
		if debug, err := cmd.Flags().GetBool("debug"); err == nil && debug {
			logrus.SetLevel(logrus.DebugLevel)
		}
	}

	if c.CachePath == "" {
		c.CachePath = getCacheDirectory()
	}
	return c
}

// getCacheDirectory returns the appropriate cache directory
func getCacheDirectory() string {
	// Try to use user's cache directory
	if cacheDir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(cacheDir, "readalong")
	}

	// Try user's home directory
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, ".readalong", "cache")
	}

	// Get current working directory as fallback
	if cwd, err := os.Getwd(); err == nil {
		return filepath.Join(cwd, "cache")
	}

	return "cache"
}

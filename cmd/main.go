package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"readalong/internal/cli/scheme/colours"
	"readalong/internal/config"
	"readalong/internal/story/nest"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func main() {
	if err := config.Init(); err != nil {
		logrus.WithError(err).Fatal("failed to read config")
	}

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("failed to load config")
	}

	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		logrus.WithField("level", cfg.Log.Level).Warn("unknown log level, using info")
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	app, err := nest.NewReadAlong(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("failed to load story catalog")
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		app.Stop()
		app.Cancel()
		fmt.Println("\n" + colours.Warning.Sprint("👋 Goodbye! Happy reading! 📚"))
		os.Exit(0)
	}()

	rootCmd := &cobra.Command{
		Use:   "readalong",
		Short: "📖 Read stories aloud with word highlighting",
		Long: `
┌─────────────────────────────────────┐
│  📚 Welcome to ReadAlong! 📖        │
│  Follow every word as it is spoken  │
└─────────────────────────────────────┘

ReadAlong reads short stories aloud and highlights each word as the
speech engine reaches it.
		`,
		Run: func(cmd *cobra.Command, args []string) {
			app.ShowWelcome()
		},
		SilenceUsage: true,
	}

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "📋 List available stories",
		Long:  "Display the preset stories and any stories from catalog.path",
		Run:   app.ListStories,
	}

	// Read command
	readCmd := &cobra.Command{
		Use:   "read [story-id]",
		Short: "📖 Read a specific story",
		Long:  "Read a story by its ID, highlighting each word as it is spoken",
		Args:  cobra.ExactArgs(1),
		RunE:  app.ReadStory,
	}

	// Random command
	randomCmd := &cobra.Command{
		Use:   "random",
		Short: "🎲 Read a random story",
		Long:  "Select and read a random story from the catalog",
		RunE:  app.ReadRandomStory,
	}

	// Voices command
	voicesCmd := &cobra.Command{
		Use:   "voices",
		Short: "🎤 List available voices",
		Long:  "List the voices offered by the selected speech engine",
		RunE:  app.ListVoices,
	}

	// Settings command
	settingsCmd := &cobra.Command{
		Use:   "settings",
		Short: "⚙️ Show TTS settings",
		Long:  "Show the engine, voice, speed and volume in use",
		Run:   app.ConfigureSettings,
	}

	// Add flags
	listCmd.Flags().StringP("category", "c", "", "Filter by category (fable, daily, science, fun)")
	nest.AddReadFlags(readCmd)
	nest.AddReadFlags(randomCmd)
	voicesCmd.Flags().StringP("engine", "e", "", "Speech engine (auto, mock, espeak, say, googleclassic)")

	rootCmd.AddCommand(listCmd, readCmd, randomCmd, voicesCmd, settingsCmd)
	app.AddCacheCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		colours.Error.Printf("❌ Error: %v\n", err)
		os.Exit(1)
	}
}

package tts

import (
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/sirupsen/logrus"
)

const (
	googleDefaultVoice = "en-US-Neural2-F"
	googleChunkLimit   = 4800 // a little under 5000 to be safe
)

// GoogleClassicTTSEngine synthesizes MP3 through Google Cloud Text-to-Speech,
// caches it on disk and plays it through the local speaker.
type GoogleClassicTTSEngine struct {
	client       *texttospeech.Client
	ctx          context.Context
	voice        string
	cacheRootDir string

	mu         sync.Mutex
	current    *run
	ctrl       *beep.Ctrl
	sampleRate beep.SampleRate
}

// CacheStats summarises the synthesized audio kept on disk.
type CacheStats struct {
	Directory string
	Files     int64
	SizeMB    float64
}

// CacheableEngine is a Driver that keeps synthesized audio on disk.
type CacheableEngine interface {
	Driver
	CacheStats() (CacheStats, error)
	ClearCache() error
}

func newGoogleClassicTTSEngine(config Config) (*GoogleClassicTTSEngine, error) {
	ctx := context.Background()
	client, err := texttospeech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create TTS client: %w", err)
	}

	if err := os.MkdirAll(config.CachePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	voice := config.Voice
	if voice == "" || voice == "default" {
		voice = googleDefaultVoice
	}

	return &GoogleClassicTTSEngine{
		client:       client,
		ctx:          ctx,
		voice:        voice,
		cacheRootDir: config.CachePath,
	}, nil
}

func (g *GoogleClassicTTSEngine) Speak(u Utterance, cb Callbacks) error {
	r := newRun(cb)

	g.mu.Lock()
	prev := g.current
	g.current = r
	g.ctrl = nil
	g.mu.Unlock()

	if prev != nil {
		prev.interrupt(ReasonInterrupted)
	}

	go g.play(r, u)
	return nil
}

func (g *GoogleClassicTTSEngine) play(r *run, u Utterance) {
	defer func() {
		g.mu.Lock()
		if g.current == r {
			g.current = nil
			g.ctrl = nil
		}
		g.mu.Unlock()
	}()

	paths, err := g.synthesize(u)
	if err != nil {
		r.cb.error(fmt.Sprintf("synthesis-failed: %v", err))
		return
	}

	select {
	case reason := <-r.stop:
		r.cb.error(reason)
		return
	default:
	}

	var (
		streamers []beep.Streamer
		closers   []beep.StreamSeekCloser
		duration  time.Duration
	)
	defer func() {
		for _, c := range closers {
			c.Close()
		}
	}()

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			r.cb.error(fmt.Sprintf("audio-unavailable: %v", err))
			return
		}
		streamer, format, err := mp3.Decode(f)
		if err != nil {
			f.Close()
			r.cb.error(fmt.Sprintf("audio-decode-failed: %v", err))
			return
		}
		closers = append(closers, streamer)
		duration += format.SampleRate.D(streamer.Len())

		s, err := g.prepareSpeaker(format, streamer)
		if err != nil {
			r.cb.error(fmt.Sprintf("audio-busy: %v", err))
			return
		}
		streamers = append(streamers, s)
	}

	exited := make(chan error, 1)
	finished := func() {
		select {
		case exited <- nil:
		default:
		}
	}

	ctrl := &beep.Ctrl{Streamer: beep.Seq(streamers...)}
	g.mu.Lock()
	if g.current != r {
		g.mu.Unlock()
		r.cb.error(ReasonInterrupted)
		return
	}
	g.ctrl = ctrl
	g.mu.Unlock()

	speaker.Play(beep.Seq(ctrl, beep.Callback(finished)))

	offsets := wordOffsets(u.Text)
	interval := duration
	if len(offsets) > 0 {
		interval = duration / time.Duration(len(offsets))
	}

	pace(r, offsets, interval, exited, func() {
		detach(ctrl)
		finished()
	})
}

// detach silences one run's audio without touching other streams in the
// mixer. The sequence around ctrl then moves on to its callback.
func detach(ctrl *beep.Ctrl) {
	speaker.Lock()
	ctrl.Streamer = nil
	ctrl.Paused = false
	speaker.Unlock()
}

// prepareSpeaker initialises the speaker on first use and resamples later
// streams to its rate.
func (g *GoogleClassicTTSEngine) prepareSpeaker(format beep.Format, s beep.Streamer) (beep.Streamer, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.sampleRate == 0 {
		if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
			return nil, err
		}
		g.sampleRate = format.SampleRate
	}
	if format.SampleRate != g.sampleRate {
		return beep.Resample(4, format.SampleRate, g.sampleRate, s), nil
	}
	return s, nil
}

// synthesize returns the cached MP3 chunk files for u, generating missing ones.
func (g *GoogleClassicTTSEngine) synthesize(u Utterance) ([]string, error) {
	voice, lang := g.voice, languageOf(g.voice)
	if u.Voice != nil && u.Voice.Name != "" {
		voice = u.Voice.Name
		if u.Voice.Lang != "" {
			lang = u.Voice.Lang
		}
	}

	audioCfg := &texttospeechpb.AudioConfig{
		AudioEncoding: texttospeechpb.AudioEncoding_MP3,
	}
	// Chirp voices don't support speakingRate
	if !strings.Contains(strings.ToLower(voice), "chirp") {
		audioCfg.SpeakingRate = u.Rate
	}

	// Create a unique identifier for this specific text + voice + rate combination
	contentHash := md5Sum(fmt.Sprintf("%s|%s|%.1f", u.Text, voice, audioCfg.SpeakingRate))[:8]

	if err := os.MkdirAll(g.cacheRootDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %w", g.cacheRootDir, err)
	}

	chunks := splitIntoChunks(u.Text, googleChunkLimit)
	paths := make([]string, 0, len(chunks))

	for i, chunk := range chunks {
		path := filepath.Join(g.cacheRootDir, fmt.Sprintf("%s_%d.mp3", contentHash, i))
		paths = append(paths, path)

		if _, err := os.Stat(path); err == nil {
			continue
		}

		req := &texttospeechpb.SynthesizeSpeechRequest{
			Input: &texttospeechpb.SynthesisInput{
				InputSource: &texttospeechpb.SynthesisInput_Text{Text: chunk},
			},
			Voice: &texttospeechpb.VoiceSelectionParams{
				LanguageCode: lang,
				Name:         voice,
			},
			AudioConfig: audioCfg,
		}
		resp, err := g.client.SynthesizeSpeech(g.ctx, req)
		if err != nil {
			return nil, fmt.Errorf("failed to synthesize chunk %d: %w", i, err)
		}

		if err := os.WriteFile(path, resp.AudioContent, 0644); err != nil {
			return nil, fmt.Errorf("failed to write MP3 chunk %d to %s: %w", i, path, err)
		}

		logrus.WithFields(logrus.Fields{
			"chunk": i + 1,
			"total": len(chunks),
			"file":  path,
		}).Debug("Cached audio chunk")
	}

	return paths, nil
}

func (g *GoogleClassicTTSEngine) Pause() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current == nil {
		return nil
	}
	if g.ctrl != nil {
		speaker.Lock()
		g.ctrl.Paused = true
		speaker.Unlock()
	}
	g.current.pause()
	return nil
}

func (g *GoogleClassicTTSEngine) Resume() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.current == nil {
		return nil
	}
	if g.ctrl != nil {
		speaker.Lock()
		g.ctrl.Paused = false
		speaker.Unlock()
	}
	g.current.unpause()
	return nil
}

func (g *GoogleClassicTTSEngine) Cancel() error {
	g.mu.Lock()
	r := g.current
	g.current = nil
	g.ctrl = nil
	g.mu.Unlock()

	if r != nil {
		r.interrupt(ReasonCanceled)
	}
	return nil
}

func (g *GoogleClassicTTSEngine) Voices() ([]VoiceOption, error) {
	resp, err := g.client.ListVoices(g.ctx, &texttospeechpb.ListVoicesRequest{})
	if err != nil {
		return nil, err
	}
	voices := make([]VoiceOption, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		lang := ""
		if len(v.LanguageCodes) > 0 {
			lang = v.LanguageCodes[0]
		}
		voices = append(voices, VoiceOption{Name: v.Name, Lang: lang})
	}
	return voices, nil
}

// CacheStats walks the cache directory tree
func (g *GoogleClassicTTSEngine) CacheStats() (CacheStats, error) {
	stats := CacheStats{Directory: g.cacheRootDir}

	var totalSize int64
	err := filepath.Walk(g.cacheRootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Continue walking despite errors
		}
		if !info.IsDir() && strings.HasSuffix(strings.ToLower(info.Name()), ".mp3") {
			stats.Files++
			totalSize += info.Size()
		}
		return nil
	})

	stats.SizeMB = float64(totalSize) / (1024 * 1024)
	return stats, err
}

// ClearCache removes all cached files
func (g *GoogleClassicTTSEngine) ClearCache() error {
	return os.RemoveAll(g.cacheRootDir)
}

// languageOf derives the language code from a voice name like "en-GB-Neural2-A".
func languageOf(voice string) string {
	parts := strings.SplitN(voice, "-", 3)
	if len(parts) < 2 {
		return "en-US"
	}
	return parts[0] + "-" + parts[1]
}

func md5Sum(s string) string {
	h := md5.New()
	io.WriteString(h, s)
	return fmt.Sprintf("%x", h.Sum(nil))
}

func splitIntoChunks(text string, limit int) []string {
	var chunks []string
	runes := []rune(text) // safe for UTF-8
	for i := 0; i < len(runes); i += limit {
		end := i + limit
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}

package nest

import (
	"bufio"
	"context"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"readalong/internal/cli/scheme/colours"
	"readalong/internal/config"
	"readalong/internal/domain/story"
	"readalong/internal/story/playback"
	"readalong/internal/story/tokenize"
	"readalong/internal/story/tts"

	"github.com/sirupsen/logrus"
)

// contextWords is how many words are shown on each side of the highlight.
const contextWords = 6

func (ra *ReadAlong) read(item story.Item, opts tts.Config) error {
	driver, err := ra.newDriver(opts)
	if err != nil {
		return fmt.Errorf("failed to create tts engine: %w", err)
	}

	adapter := tts.NewAdapter(driver)
	defer adapter.Close()

	tokens := tokenize.Tokenize(item.Content)
	finished := make(chan struct{}, 1)

	player := playback.NewPlayer(adapter, playback.Options{
		Rate:            opts.Speed,
		Sink:            ra.sink,
		RestartDebounce: ra.config.Playback.RestartDebounce,
		OnComplete: func() {
			select {
			case finished <- struct{}{}:
			default:
			}
		},
		OnChange: newRenderer(ra, tokens).render,
	})
	defer player.Close()

	player.SetVoice(opts.Voice)
	player.SetText(item.Content, tokens)

	ra.mu.Lock()
	ra.player = player
	ra.mu.Unlock()
	defer func() {
		ra.mu.Lock()
		ra.player = nil
		ra.mu.Unlock()
	}()

	if ra.watchConfig != nil {
		ra.watchOnce.Do(func() {
			ra.watchConfig(ra.applyConfig)
		})
	}

	ctx, cancel := context.WithCancel(ra.ctx)
	defer cancel()
	go func() {
		if err := player.Run(ctx); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Warn("playback event loop stopped")
		}
	}()

	fmt.Fprintln(ra.out)
	colours.Title.Fprintf(ra.out, "📖 %s\n", item.Title)
	colours.Info.Fprintf(ra.out, "🎭 %s | 🎤 %s | ⏩ %.1fx\n", item.Category, opts.Type, player.Session().Rate)
	fmt.Fprintln(ra.out)
	colours.Muted.Fprintln(ra.out, "p pause/resume · s stop · r restart · +/- speed · w [word] · v <voice> · t title · d debug")
	fmt.Fprintln(ra.out)

	if err := player.Play(); err != nil {
		return fmt.Errorf("failed to start reading: %w", err)
	}

	return ra.interact(ctx, player, item, finished)
}

// applyConfig pushes live config edits into the story being read.
func (ra *ReadAlong) applyConfig(c config.Config) {
	ra.mu.Lock()
	ra.config = c
	p := ra.player
	ra.mu.Unlock()

	if p == nil {
		return
	}
	p.SetRate(c.TTS.Speed)
	p.SetVoice(c.TTS.Voice)
}

func (ra *ReadAlong) interact(ctx context.Context, p *playback.Player, item story.Item, finished <-chan struct{}) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(ra.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-finished:
			fmt.Fprintln(ra.out)
			colours.Success.Fprintln(ra.out, "✅ Story finished! 🌟")
			return nil

		case line, ok := <-lines:
			if !ok {
				// Input closed, let the story play out.
				lines = nil
				continue
			}
			if ra.handleKey(p, item, line) {
				return nil
			}
		}
	}
}

// handleKey applies one line of interactive input and reports whether the
// reader should quit.
func (ra *ReadAlong) handleKey(p *playback.Player, item story.Item, line string) bool {
	key, arg := parseKey(line)

	var err error
	switch key {
	case "":
		return false

	case "p", "pause":
		if p.State() == playback.StateSpeaking {
			err = p.Pause()
			colours.Warning.Fprintln(ra.out, "⏸️  Paused")
		} else {
			err = p.Play()
			colours.Success.Fprintln(ra.out, "▶️  Resumed")
		}

	case "s", "stop", "q", "quit":
		err = p.Stop()
		colours.Warning.Fprintln(ra.out, "⏹️  Stopped")
		if err != nil {
			logrus.WithError(err).Debug("failed to stop playback")
		}
		return true

	case "r", "restart":
		if err = p.Stop(); err == nil {
			err = p.Play()
		}

	case "+", "faster":
		p.SetRate(p.Session().Rate + playback.RateStep)
		colours.Info.Fprintf(ra.out, "⏩ Speed %.1fx\n", p.Session().Rate)

	case "-", "slower":
		p.SetRate(p.Session().Rate - playback.RateStep)
		colours.Info.Fprintf(ra.out, "⏪ Speed %.1fx\n", p.Session().Rate)

	case "w", "word":
		if arg == "" {
			arg = currentWord(p)
		}
		if arg == "" {
			colours.Info.Fprintln(ra.out, "ℹ️  Usage: w <word>, or w alone while a word is highlighted")
			return false
		}
		err = p.SpeakWord(arg)

	case "v", "voice":
		p.SetVoice(arg)
		name := "default"
		if v := p.Session().Voice; v != nil {
			name = v.Name
		}
		colours.Info.Fprintf(ra.out, "🎤 Voice %s\n", name)

	case "t", "title":
		err = p.SpeakText(item.Title)

	case "d", "debug":
		ra.printSnapshot()

	default:
		colours.Info.Fprintln(ra.out, "ℹ️  Use p, s, r, +, -, w [word], v <voice>, t or d")
	}

	if err != nil {
		colours.Error.Fprintf(ra.out, "❌ %v\n", err)
	}
	return false
}

func (ra *ReadAlong) printSnapshot() {
	s := ra.recorder.Snapshot()
	colours.Muted.Fprintf(ra.out,
		"[%s] state=%s char=%d token=%q tokens=%d voice=%s local=%t\n",
		s.Label, s.State, s.CharIndex, s.MatchedText, s.TotalTokens, s.VoiceName, s.IsLocalVoice)
	if s.Reason != "" {
		colours.Muted.Fprintf(ra.out, "reason=%s\n", s.Reason)
	}
}

// currentWord returns the highlighted word, or "" when nothing is highlighted.
func currentWord(p *playback.Player) string {
	i := p.Highlight()
	tokens := p.Tokens()
	if i < 0 || i >= len(tokens) {
		return ""
	}
	return tokens[i].CleanText
}

func parseKey(line string) (key, arg string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return "", ""
	}
	key, arg, _ = strings.Cut(line, " ")
	return strings.ToLower(key), strings.TrimSpace(arg)
}

type renderer struct {
	ra     *ReadAlong
	tokens []story.WordToken

	mu   sync.Mutex
	last int
}

func newRenderer(ra *ReadAlong, tokens []story.WordToken) *renderer {
	return &renderer{ra: ra, tokens: tokens, last: -1}
}

func (r *renderer) render(state playback.State, highlight int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state == playback.StateError {
		colours.Error.Fprintln(r.ra.out, "\n❌ The speech engine failed, press p to try again")
		return
	}
	if highlight < 0 || highlight == r.last {
		return
	}
	r.last = highlight
	fmt.Fprint(r.ra.out, "\r\033[K"+window(r.tokens, highlight, contextWords))
}

// window renders the tokens around highlight on one line with the
// highlighted word coloured.
func window(tokens []story.WordToken, highlight, size int) string {
	if highlight < 0 || highlight >= len(tokens) {
		return ""
	}

	from := max(0, highlight-size)
	to := min(len(tokens), highlight+size+1)

	var b strings.Builder
	for i := from; i < to; i++ {
		text := strings.Map(flattenSpace, tokens[i].Text)
		if i != highlight {
			b.WriteString(text)
			continue
		}
		word := strings.TrimRightFunc(text, unicode.IsSpace)
		b.WriteString(colours.Highlight.Sprint(word))
		b.WriteString(text[len(word):])
	}
	return strings.TrimRightFunc(b.String(), unicode.IsSpace)
}

func flattenSpace(r rune) rune {
	if unicode.IsSpace(r) {
		return ' '
	}
	return r
}

package playback

import (
	"testing"

	"readalong/internal/domain/story"
	"readalong/internal/story/tokenize"

	"github.com/stretchr/testify/assert"
)

func sampleTokens() []story.WordToken {
	return []story.WordToken{
		{Text: "The", StartIndex: 0, EndIndex: 3},
		{Text: "cat ", StartIndex: 4, EndIndex: 8},
		{Text: "sat.", StartIndex: 8, EndIndex: 12},
	}
}

func TestResolve(t *testing.T) {
	tokens := sampleTokens()

	tests := []struct {
		name      string
		charIndex int
		want      int
		found     bool
	}{
		{"first token", 0, 0, true},
		{"inside token", 5, 1, true},
		{"token start", 8, 2, true},
		{"gap sticks to previous", 3, 0, true},
		{"past end sticks to last", 12, 2, true},
		{"far past end", 100, 2, true},
		{"before first", -1, -1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Resolve(tt.charIndex, tokens)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.found, ok)
		})
	}
}

func TestResolveLeadingGap(t *testing.T) {
	tokens := []story.WordToken{{Text: "cat", StartIndex: 2, EndIndex: 5}}

	got, ok := Resolve(1, tokens)
	assert.False(t, ok)
	assert.Equal(t, -1, got)
}

func TestResolveEmpty(t *testing.T) {
	got, ok := Resolve(0, nil)
	assert.False(t, ok)
	assert.Equal(t, -1, got)
}

func TestResolveMatchesContainingToken(t *testing.T) {
	text := "Once upon a time,  a tiny fox found a shiny key under the old oak tree."
	tokens := tokenize.Tokenize(text)

	for offset := 0; offset < len(text); offset++ {
		i, ok := Resolve(offset, tokens)
		if !assert.True(t, ok, "offset %d", offset) {
			continue
		}
		assert.True(t, tokens[i].Contains(offset), "offset %d resolved to %q", offset, tokens[i].Text)
	}
}

func TestResolveIsMonotonic(t *testing.T) {
	tokens := tokenize.Tokenize("Bees make honey from the nectar of flowers.")

	prev := -1
	for offset := 0; offset < 60; offset++ {
		i, _ := Resolve(offset, tokens)
		assert.GreaterOrEqual(t, i, prev)
		prev = i
	}
}

package playback

import (
	"sort"

	"readalong/internal/domain/story"
)

// Resolve maps an engine boundary offset to the index of a token.
//
// An offset inside a token's span resolves to that token. An offset that
// falls between tokens, or that an engine reported off a word boundary,
// sticks to the last token starting before it. An offset before the first
// token resolves to nothing.
//
// tokens must be sorted and non-overlapping. The last token starting at or
// before charIndex is then either the one containing it or, when charIndex
// lies past its end, the sticky match.
func Resolve(charIndex int, tokens []story.WordToken) (int, bool) {
	i := sort.Search(len(tokens), func(i int) bool {
		return tokens[i].StartIndex > charIndex
	}) - 1
	if i < 0 {
		return -1, false
	}
	return i, true
}

// Package tokenize splits story text into word tokens for highlighting.
package tokenize

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"readalong/internal/domain/story"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// tokenNamespace keeps token IDs stable for identical input.
var tokenNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("readalong/token"))

var lower = cases.Lower(language.Und)

// Tokenize returns the word tokens of text in ascending order. Each token
// spans its word plus the whitespace that follows it, so tokens tile the
// text from the first word onwards. Leading whitespace belongs to no token.
func Tokenize(text string) []story.WordToken {
	var tokens []story.WordToken

	i := 0
	for i < len(text) {
		r, size := utf8.DecodeRuneInString(text[i:])
		if unicode.IsSpace(r) {
			i += size
			continue
		}

		start := i
		for i < len(text) {
			r, size = utf8.DecodeRuneInString(text[i:])
			if unicode.IsSpace(r) {
				break
			}
			i += size
		}
		wordEnd := i
		for i < len(text) {
			r, size = utf8.DecodeRuneInString(text[i:])
			if !unicode.IsSpace(r) {
				break
			}
			i += size
		}

		n := len(tokens)
		tokens = append(tokens, story.WordToken{
			ID:         tokenID(n, text[start:i]),
			Text:       text[start:i],
			CleanText:  Clean(text[start:wordEnd]),
			StartIndex: start,
			EndIndex:   i,
		})
	}

	return tokens
}

// Clean normalizes a word for display and lookup: NFC, lower case, and
// without surrounding punctuation.
func Clean(word string) string {
	w := norm.NFC.String(strings.TrimSpace(word))
	w = strings.TrimFunc(w, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	return lower.String(w)
}

func tokenID(index int, text string) string {
	return uuid.NewSHA1(tokenNamespace, []byte(strconv.Itoa(index)+":"+text)).String()
}

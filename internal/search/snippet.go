package search

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Snippet returns a window of at most size bytes of text centered on the
// first occurrence of any term. Without a match the window starts at the
// beginning. Cuts fall on rune boundaries and whitespace is collapsed. A
// size smaller than the rune at the window start still yields that rune.
func Snippet(text string, terms []string, size int) string {
	if size <= 0 {
		size = DefaultSnippetSize
	}
	if len(text) <= size {
		return strings.TrimSpace(collapse(text))
	}

	hit, hitLen := firstHit(text, terms)
	start := 0
	if hit >= 0 {
		start = hit + hitLen/2 - size/2
	}
	if start < 0 {
		start = 0
	}
	if start+size > len(text) {
		start = len(text) - size
	}
	end := start + size

	for start < len(text) && !utf8.RuneStart(text[start]) {
		start++
	}
	if start == len(text) {
		_, n := utf8.DecodeLastRuneInString(text)
		start -= n
	}
	for end > start && end < len(text) && !utf8.RuneStart(text[end]) {
		end--
	}
	if end <= start && start < len(text) {
		end = start + 1
		for end < len(text) && !utf8.RuneStart(text[end]) {
			end++
		}
	}

	return strings.TrimSpace(collapse(text[start:end]))
}

// firstHit finds the earliest case-insensitive term match. Matching is on
// lowercased text, so offsets are only used when lowercasing kept the
// byte length.
func firstHit(text string, terms []string) (int, int) {
	lower := strings.ToLower(text)
	if len(lower) != len(text) {
		lower = asciiLower(text)
	}
	best, bestLen := -1, 0
	for _, t := range terms {
		if t == "" {
			continue
		}
		if i := strings.Index(lower, t); i >= 0 && (best < 0 || i < best) {
			best, bestLen = i, len(t)
		}
	}
	return best, bestLen
}

func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

func collapse(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !space {
				b.WriteByte(' ')
			}
			space = true
			continue
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

package search

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSnippet(t *testing.T) {
	long := strings.Repeat("filler ", 100) + "the needle is here " + strings.Repeat("padding ", 100)

	tests := []struct {
		name     string
		text     string
		terms    []string
		size     int
		contains string
		prefix   string
	}{
		{
			name:     "short text returned whole",
			text:     "  short\n\ntext  ",
			size:     100,
			contains: "short text",
			prefix:   "short text",
		},
		{
			name:     "window centered on hit",
			text:     long,
			terms:    []string{"needle"},
			size:     60,
			contains: "needle",
		},
		{
			name:   "no hit starts at beginning",
			text:   long,
			terms:  []string{"absent"},
			size:   40,
			prefix: "filler filler",
		},
		{
			name:     "case insensitive",
			text:     strings.Repeat("x ", 200) + "NEEDLE " + strings.Repeat("y ", 200),
			terms:    []string{"needle"},
			size:     30,
			contains: "NEEDLE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When: cutting a snippet
			got := Snippet(tt.text, tt.terms, tt.size)

			// Then: it fits and shows the match
			assert.LessOrEqual(t, len(got), tt.size)
			if tt.contains != "" {
				assert.Contains(t, got, tt.contains)
			}
			if tt.prefix != "" {
				assert.True(t, strings.HasPrefix(got, tt.prefix), got)
			}
		})
	}
}

func TestSnippet_RuneBoundaries(t *testing.T) {
	// Given: multi-byte text longer than the window
	text := strings.Repeat("é", 100) + " Zürich " + strings.Repeat("ü", 100)

	// When: cutting an odd-sized window around the hit
	got := Snippet(text, []string{"rich"}, 31)

	// Then: the result is valid UTF-8
	assert.True(t, utf8.ValidString(got))
	assert.Contains(t, got, "Zürich")
}

func TestSnippet_WindowSmallerThanRune(t *testing.T) {
	tests := []struct {
		name string
		text string
		term string
		size int
	}{
		{name: "cjk size 1", text: "日本語日本語日本語", term: "本", size: 1},
		{name: "cjk size 2", text: "日本語日本語日本語", term: "本", size: 2},
		{name: "cjk size 3", text: "日本語日本語日本語", term: "語", size: 3},
		{name: "cjk no hit", text: "日本語日本語日本語", term: "absent", size: 1},
		{name: "emoji size 1", text: "🙂🙃🙂🙃🙂🙃", term: "🙃", size: 1},
		{name: "emoji size 3", text: "🙂🙃🙂🙃🙂🙃", term: "🙂", size: 3},
		{name: "tail rune", text: "abcdef日本", term: "本", size: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When: the window is narrower than one rune
			var got string
			assert.NotPanics(t, func() {
				got = Snippet(tt.text, []string{tt.term}, tt.size)
			})

			// Then: one whole rune comes back
			assert.True(t, utf8.ValidString(got))
			assert.Equal(t, 1, utf8.RuneCountInString(got), got)
		})
	}
}

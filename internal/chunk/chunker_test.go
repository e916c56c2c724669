package chunk

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanfind/internal/filetype"
)

func textInfo() filetype.Info { return filetype.Info{Category: filetype.Text, Ext: "txt"} }

// assertWellFormed checks ordering, bounds and byte-range fidelity.
func assertWellFormed(t *testing.T, content string, chunks []Chunk, max int) {
	t.Helper()
	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
		assert.LessOrEqual(t, len(c.Content), max, "chunk %d too large", i)
		assert.Equal(t, content[c.StartByte:c.EndByte], c.Content)
		assert.True(t, utf8.ValidString(c.Content), "chunk %d splits a rune", i)
		assert.LessOrEqual(t, c.StartLine, c.EndLine)
		if i > 0 {
			assert.Greater(t, c.StartByte, chunks[i-1].StartByte, "chunks must advance")
		}
	}
}

func TestChunk_EmptyAndWhitespaceYieldNothing(t *testing.T) {
	c := New(nil)

	assert.Empty(t, c.Chunk(context.Background(), nil, textInfo()))
	assert.Empty(t, c.Chunk(context.Background(), []byte(" \n\t\n"), textInfo()))
}

func TestChunk_SmallContentIsOneChunk(t *testing.T) {
	// Given: content below the max
	content := "hello world\nsecond line"

	// When: chunking
	chunks := New(nil).Chunk(context.Background(), []byte(content), textInfo())

	// Then: exactly one chunk covering everything
	require.Len(t, chunks, 1)
	assert.Equal(t, content, chunks[0].Content)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 2, chunks[0].EndLine)
}

func TestChunk_WindowPrefersNewlines(t *testing.T) {
	// Given: many 50-byte lines
	var b strings.Builder
	for i := 0; i < 60; i++ {
		b.WriteString(strings.Repeat("w", 49))
		b.WriteByte('\n')
	}
	content := b.String()

	// When: chunking with the default text policy
	chunks := New(nil).Chunk(context.Background(), []byte(content), textInfo())

	// Then: every chunk ends on a line boundary and neighbors overlap
	require.Greater(t, len(chunks), 1)
	assertWellFormed(t, content, chunks, DefaultMaxBytes)
	for _, c := range chunks[:len(chunks)-1] {
		assert.True(t, strings.HasSuffix(c.Content, "\n"))
	}
	assert.Less(t, chunks[1].StartByte, chunks[0].EndByte, "expected overlap")
	assert.Equal(t, len(content), chunks[len(chunks)-1].EndByte)
}

func TestChunk_SentenceThenSpaceThenHardCut(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantCut string
	}{
		{"sentence", strings.Repeat("abc def. ", 20), ". "},
		{"space", strings.Repeat("abcdefgh ", 20), " "},
		{"hard", strings.Repeat("x", 300), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(Policies{filetype.Text: {MaxBytes: 100, OverlapBytes: 20}})
			chunks := c.Chunk(context.Background(), []byte(tt.content), textInfo())

			require.Greater(t, len(chunks), 1)
			assertWellFormed(t, tt.content, chunks, 100)
			if tt.wantCut != "" {
				assert.True(t, strings.HasSuffix(chunks[0].Content, tt.wantCut), "first chunk %q", chunks[0].Content)
			} else {
				assert.Len(t, chunks[0].Content, 100)
			}
		})
	}
}

func TestChunk_NeverSplitsMultibyteRunes(t *testing.T) {
	content := strings.Repeat("日本語テキスト", 100)

	chunks := New(Policies{filetype.Text: {MaxBytes: 64, OverlapBytes: 16}}).
		Chunk(context.Background(), []byte(content), textInfo())

	require.NotEmpty(t, chunks)
	assertWellFormed(t, content, chunks, 64)
}

func TestChunk_AlwaysMakesProgressWithLargeOverlap(t *testing.T) {
	// Given: a newline right after the start and an overlap close to max
	content := "a\n" + strings.Repeat("b", 500)
	c := New(Policies{filetype.Text: {MaxBytes: 50, OverlapBytes: 49}})

	// When: chunking
	chunks := c.Chunk(context.Background(), []byte(content), textInfo())

	// Then: it terminates and covers the content
	require.NotEmpty(t, chunks)
	assertWellFormed(t, content, chunks, 50)
	assert.Equal(t, len(content), chunks[len(chunks)-1].EndByte)
}

func TestChunk_MarkdownSplitsAtHeaders(t *testing.T) {
	// Given: three sections, each too large to merge with the next
	section := strings.Repeat("Some prose about the topic.\n", 20)
	content := "# Intro\n" + section + "## Setup\n" + section + "```\n# not a header\n```\n## Usage\n" + section
	info := filetype.Detect("guide.md")

	// When: chunking
	chunks := New(nil).Chunk(context.Background(), []byte(content), info)

	// Then: chunk starts follow the headers and carry them as headings
	require.Len(t, chunks, 3)
	assertWellFormed(t, content, chunks, DefaultMaxBytes)
	assert.Equal(t, "Intro", chunks[0].Heading)
	assert.True(t, strings.HasPrefix(chunks[1].Content, "## Setup"))
	assert.Contains(t, chunks[1].Content, "# not a header")
	assert.Equal(t, "Usage", chunks[2].Heading)
}

func TestChunk_RSTUnderlinedHeaders(t *testing.T) {
	body := strings.Repeat("text text text\n", 40)
	content := "Title\n=====\n" + body + "Next\n----\n" + body

	chunks := New(nil).Chunk(context.Background(), []byte(content), filetype.Detect("doc.rst"))

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, "Title", chunks[0].Heading)
	found := false
	for _, c := range chunks {
		if strings.HasPrefix(c.Content, "Next\n----") {
			found = true
		}
	}
	assert.True(t, found, "expected a chunk starting at the second section")
}

func TestChunk_MalformedMarkupStillChunks(t *testing.T) {
	content := strings.Repeat("<div><p>unclosed ", 200)

	chunks := New(nil).Chunk(context.Background(), []byte(content), filetype.Detect("page.html"))

	require.NotEmpty(t, chunks)
	assertWellFormed(t, content, chunks, DefaultMaxBytes)
}

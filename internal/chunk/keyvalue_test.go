package chunk

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanfind/internal/filetype"
)

func smallKV() *Chunker {
	return New(Policies{filetype.KeyValue: {MaxBytes: 400}})
}

func headings(chunks []Chunk) []string {
	out := make([]string, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, c.Heading)
	}
	return out
}

func TestChunk_YAMLSplitsAtTopLevelKeys(t *testing.T) {
	// Given: three top-level keys with long lists
	var b strings.Builder
	for _, key := range []string{"alpha", "beta", "gamma"} {
		b.WriteString(key + ":\n")
		for i := 0; i < 20; i++ {
			fmt.Fprintf(&b, "  - item-value-%02d\n", i)
		}
	}
	content := b.String()

	// When: chunking
	chunks := smallKV().Chunk(context.Background(), []byte(content), filetype.Detect("app.yaml"))

	// Then: one chunk per key
	require.Len(t, chunks, 3)
	assertWellFormed(t, content, chunks, 400)
	assert.Equal(t, []string{"alpha", "beta", "gamma"}, headings(chunks))
	assert.True(t, strings.HasPrefix(chunks[1].Content, "beta:"))
}

func TestChunk_JSONSplitsAtTopLevelMembers(t *testing.T) {
	value := strings.Repeat("v", 250)
	content := fmt.Sprintf("{\n  \"a\": %q,\n  \"b\": %q,\n  \"c\": {\"nested\": %q}\n}\n", value, value, value)

	chunks := smallKV().Chunk(context.Background(), []byte(content), filetype.Detect("data.json"))

	require.Len(t, chunks, 3)
	assertWellFormed(t, content, chunks, 400)
	assert.Equal(t, []string{"a", "b", "c"}, headings(chunks))
	assert.True(t, strings.HasPrefix(chunks[1].Content, `  "b"`))
}

func TestChunk_TOMLSplitsAtTables(t *testing.T) {
	var b strings.Builder
	for _, table := range []string{"server", "database", "cache"} {
		fmt.Fprintf(&b, "[%s]\n", table)
		for i := 0; i < 10; i++ {
			fmt.Fprintf(&b, "key_%02d = \"some configured value\"\n", i)
		}
	}
	content := b.String()

	chunks := smallKV().Chunk(context.Background(), []byte(content), filetype.Detect("conf.toml"))

	require.Len(t, chunks, 3)
	assertWellFormed(t, content, chunks, 400)
	assert.Equal(t, []string{"server", "database", "cache"}, headings(chunks))
}

func TestChunk_MalformedKeyValueFallsBack(t *testing.T) {
	tests := map[string]string{
		"bad.yaml": "key: [unterminated\n" + strings.Repeat("  more: stuff\n", 60),
		"bad.json": `{"a": ` + strings.Repeat("1, ", 300),
		"bad.toml": "[[broken\n" + strings.Repeat("x = = 1\n", 80),
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			chunks := smallKV().Chunk(context.Background(), []byte(content), filetype.Detect(name))

			require.NotEmpty(t, chunks)
			assertWellFormed(t, content, chunks, 400)
		})
	}
}

// Package chunk splits file content into ordered, bounded, overlapping
// chunks. Splitting follows file structure where it can be recognized
// (code declarations, markup headers, top-level config keys) and falls back
// to a sliding byte window otherwise. It never fails on malformed input.
package chunk

import (
	"bytes"
	"context"
	"sort"
	"unicode/utf8"

	"github.com/Aman-CERP/amanfind/internal/filetype"
)

// Chunker dispatches on file category. It is safe for concurrent use.
type Chunker struct {
	policies Policies
	registry *LanguageRegistry
}

// New returns a Chunker. Categories missing from policies use defaults.
func New(policies Policies) *Chunker {
	merged := DefaultPolicies()
	for cat, p := range policies {
		merged[cat] = p
	}
	for cat, p := range merged {
		merged[cat] = p.normalized()
	}
	return &Chunker{policies: merged, registry: DefaultRegistry()}
}

// Policy returns the effective policy for a category.
func (c *Chunker) Policy(cat filetype.Category) Policy {
	if p, ok := c.policies[cat]; ok {
		return p
	}
	return c.policies[filetype.Text]
}

// Chunk splits content. Empty or whitespace-only content yields no chunks.
// Content that fits in one chunk yields exactly one.
func (c *Chunker) Chunk(ctx context.Context, content []byte, info filetype.Info) []Chunk {
	if len(bytes.TrimSpace(content)) == 0 {
		return nil
	}
	p := c.Policy(info.Category)

	var bounds []boundary
	switch info.Category {
	case filetype.Code:
		bounds = c.codeBoundaries(ctx, content, info.Language)
	case filetype.Markup:
		bounds = markupBoundaries(content, info.Language)
	case filetype.KeyValue:
		bounds = keyValueBoundaries(content, info.Language)
	}

	spans := segments(bounds, len(content))
	if len(content) <= p.MaxBytes {
		heading := ""
		for _, s := range spans {
			if s.heading != "" {
				heading = s.heading
				break
			}
		}
		spans = []span{{start: 0, end: len(content), heading: heading}}
	} else {
		spans = pack(content, spans, p)
	}
	return build(content, spans)
}

// segments turns sorted boundaries into spans covering [0, n).
func segments(bounds []boundary, n int) []span {
	sort.SliceStable(bounds, func(i, j int) bool { return bounds[i].offset < bounds[j].offset })

	var out []span
	prev := 0
	heading := ""
	for _, b := range bounds {
		if b.offset <= prev || b.offset >= n {
			if b.offset == prev && heading == "" {
				heading = b.heading
			}
			continue
		}
		out = append(out, span{start: prev, end: b.offset, heading: heading})
		prev = b.offset
		heading = b.heading
	}
	return append(out, span{start: prev, end: n, heading: heading})
}

// pack greedily merges neighboring spans up to MaxBytes and window-splits
// spans that are too large on their own. A packed span that fits keeps its
// start and runs on into its successor by up to OverlapBytes.
func pack(content []byte, spans []span, p Policy) []span {
	var out []span
	flush := func(s span, last bool) {
		pieces := splitOversized(content, s, p)
		if !last && len(pieces) == 1 {
			pieces[0].end = overlapEnd(content, pieces[0], p)
		}
		out = append(out, pieces...)
	}

	cur := spans[0]
	for _, s := range spans[1:] {
		if s.end-cur.start <= p.MaxBytes {
			cur.end = s.end
			if cur.heading == "" {
				cur.heading = s.heading
			}
			continue
		}
		flush(cur, false)
		cur = s
	}
	flush(cur, true)
	return out
}

// overlapEnd returns where s ends once extended by the overlap, bounded by
// MaxBytes and cut after the last newline, or else on a rune boundary.
func overlapEnd(content []byte, s span, p Policy) int {
	room := min(p.OverlapBytes, p.MaxBytes-(s.end-s.start), len(content)-s.end)
	if room <= 0 {
		return s.end
	}
	end := s.end + room
	if i := bytes.LastIndexByte(content[s.end:end], '\n'); i >= 0 {
		return s.end + i + 1
	}
	for end > s.end && end < len(content) && !utf8.RuneStart(content[end]) {
		end--
	}
	return end
}

func splitOversized(content []byte, s span, p Policy) []span {
	if s.end-s.start <= p.MaxBytes {
		return []span{s}
	}
	pieces := windowSplit(content[s.start:s.end], p.MaxBytes, p.OverlapBytes)
	for i := range pieces {
		pieces[i].start += s.start
		pieces[i].end += s.start
		pieces[i].heading = s.heading
	}
	return pieces
}

func build(content []byte, spans []span) []Chunk {
	lines := newlineOffsets(content)
	chunks := make([]Chunk, 0, len(spans))
	for _, s := range spans {
		text := content[s.start:s.end]
		if len(bytes.TrimSpace(text)) == 0 {
			continue
		}
		chunks = append(chunks, Chunk{
			Ordinal:   len(chunks),
			Content:   string(text),
			StartByte: s.start,
			EndByte:   s.end,
			StartLine: lineAt(lines, s.start),
			EndLine:   lineAt(lines, s.end-1),
			Heading:   s.heading,
		})
	}
	return chunks
}

func newlineOffsets(content []byte) []int {
	var out []int
	for i, b := range content {
		if b == '\n' {
			out = append(out, i)
		}
	}
	return out
}

// lineAt returns the 1-based line containing byte offset off.
func lineAt(newlines []int, off int) int {
	return sort.SearchInts(newlines, off) + 1
}

// lineStart returns the offset of the first byte of the line containing off.
func lineStart(content []byte, off int) int {
	if off > len(content) {
		off = len(content)
	}
	return bytes.LastIndexByte(content[:off], '\n') + 1
}

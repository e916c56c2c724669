package chunk

import (
	"bytes"
	"unicode/utf8"
)

// windowSplit cuts text into pieces of at most max bytes. Each cut prefers
// the last newline, then the last ". ", then the last space, then the hard
// limit moved back to a rune boundary. The next piece starts overlap bytes
// before the cut, but always after the previous start.
func windowSplit(text []byte, max, overlap int) []span {
	var out []span
	pos := 0
	for pos < len(text) {
		if len(text)-pos <= max {
			out = append(out, span{start: pos, end: len(text)})
			break
		}
		limit := pos + max
		cut := findCut(text, pos, limit)
		out = append(out, span{start: pos, end: cut})

		next := cut - overlap
		if next <= pos {
			next = cut
		}
		for next < cut && !utf8.RuneStart(text[next]) {
			next++
		}
		pos = next
	}
	return out
}

func findCut(text []byte, pos, limit int) int {
	window := text[pos:limit]
	if i := bytes.LastIndexByte(window, '\n'); i > 0 {
		return pos + i + 1
	}
	if i := bytes.LastIndex(window, []byte(". ")); i > 0 {
		return pos + i + 2
	}
	if i := bytes.LastIndexByte(window, ' '); i > 0 {
		return pos + i + 1
	}
	cut := limit
	for cut > pos && !utf8.RuneStart(text[cut]) {
		cut--
	}
	if cut == pos {
		// A single rune wider than max; take it whole.
		_, size := utf8.DecodeRune(text[pos:])
		cut = pos + size
	}
	return cut
}

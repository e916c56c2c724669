package chunk

import (
	"bytes"
	"regexp"
	"strings"
)

var (
	// Matches ATX headers: # Title, ## Title, etc.
	atxHeaderPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)

	// Matches fence openers and closers.
	fencePattern = regexp.MustCompile("^\\s*(```|~~~)")

	// Matches AsciiDoc section titles: = Title, == Title.
	adocHeaderPattern = regexp.MustCompile(`^(={1,6})\s+(.+)$`)

	// Matches HTML headings and section starts.
	htmlHeaderPattern = regexp.MustCompile(`(?i)^\s*<(h[1-6]|section|article)[\s>]`)
	htmlTagPattern    = regexp.MustCompile(`<[^>]+>`)
)

// markupBoundaries returns section starts for markdown, rst, adoc and html.
func markupBoundaries(content []byte, language string) []boundary {
	lines := splitLines(content)
	switch language {
	case "rst":
		return rstBoundaries(lines)
	case "adoc":
		return lineBoundaries(lines, func(l string) (string, bool) {
			if m := adocHeaderPattern.FindStringSubmatch(l); m != nil {
				return strings.TrimSpace(m[2]), true
			}
			return "", false
		})
	case "html", "xml":
		return lineBoundaries(lines, func(l string) (string, bool) {
			if htmlHeaderPattern.MatchString(l) {
				return strings.TrimSpace(htmlTagPattern.ReplaceAllString(l, "")), true
			}
			return "", false
		})
	default:
		return markdownBoundaries(lines)
	}
}

type line struct {
	offset int
	text   string
}

func splitLines(content []byte) []line {
	var out []line
	off := 0
	for off < len(content) {
		end := bytes.IndexByte(content[off:], '\n')
		if end < 0 {
			out = append(out, line{offset: off, text: strings.TrimRight(string(content[off:]), "\r")})
			break
		}
		out = append(out, line{offset: off, text: strings.TrimRight(string(content[off:off+end]), "\r")})
		off += end + 1
	}
	return out
}

func lineBoundaries(lines []line, match func(string) (string, bool)) []boundary {
	var out []boundary
	for _, l := range lines {
		if heading, ok := match(l.text); ok {
			out = append(out, boundary{offset: l.offset, heading: heading})
		}
	}
	return out
}

// markdownBoundaries ignores header-like lines inside fenced code blocks.
func markdownBoundaries(lines []line) []boundary {
	var out []boundary
	inFence := false
	for _, l := range lines {
		if fencePattern.MatchString(l.text) {
			inFence = !inFence
			continue
		}
		if inFence {
			continue
		}
		if m := atxHeaderPattern.FindStringSubmatch(l.text); m != nil {
			out = append(out, boundary{offset: l.offset, heading: m[2]})
		}
	}
	return out
}

// rstBoundaries treats a non-empty line followed by an underline at least
// as long as the title as a section start.
func rstBoundaries(lines []line) []boundary {
	var out []boundary
	for i := 0; i+1 < len(lines); i++ {
		title := strings.TrimSpace(lines[i].text)
		if title == "" || isRSTUnderline(title) {
			continue
		}
		under := strings.TrimSpace(lines[i+1].text)
		if isRSTUnderline(under) && len(under) >= len(title) {
			out = append(out, boundary{offset: lines[i].offset, heading: title})
			i++
		}
	}
	return out
}

// isRSTUnderline reports a run of at least three identical adornment chars.
func isRSTUnderline(s string) bool {
	if len(s) < 3 || !strings.ContainsRune(`=-~^"'*+#:.`, rune(s[0])) {
		return false
	}
	return strings.Count(s, s[:1]) == len(s)
}

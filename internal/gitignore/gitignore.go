// Package gitignore matches paths against stacked ignore files.
//
// Each directory may carry a .gitignore and an .ignore file. Rules are
// evaluated in order and the last matching rule wins, so deeper files
// override shallower ones and .ignore overrides .gitignore in the same
// directory. A negated rule ("!keep.log") re-includes a path.
//
// Patterns follow https://git-scm.com/docs/gitignore:
//
//	*.log        any file named *.log at any depth
//	/build       build at the base only
//	docs/*.md    anchored because it contains a slash
//	tmp/         directories only (and everything inside them)
//	**/cache     cache at any depth
//	!keep.log    re-include
package gitignore

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// Ignore file names, lowest precedence first.
const (
	GitIgnoreFile = ".gitignore"
	IgnoreFile    = ".ignore"
)

// Files lists the ignore files read in every directory.
var Files = []string{GitIgnoreFile, IgnoreFile}

// Matcher is an ordered, immutable rule list. Derive child matchers with
// With or WithDir; the parent is never modified, so a Matcher is safe to
// share between goroutines.
type Matcher struct {
	rules []rule
}

type rule struct {
	re       *regexp.Regexp
	negate   bool
	dirOnly  bool
	anchored bool
	base     string
}

// New returns a matcher with patterns applied at the root.
func New(patterns ...string) *Matcher {
	return (&Matcher{}).With("", patterns)
}

// Len returns the number of compiled rules.
func (m *Matcher) Len() int { return len(m.rules) }

// With returns a matcher extended by patterns that apply under base, a
// slash-separated path relative to the root ("" for the root itself).
func (m *Matcher) With(base string, patterns []string) *Matcher {
	base = strings.Trim(filepath.ToSlash(base), "/")
	if base == "." {
		base = ""
	}
	rules := make([]rule, len(m.rules), len(m.rules)+len(patterns))
	copy(rules, m.rules)
	for _, p := range patterns {
		if r, ok := compile(p, base); ok {
			rules = append(rules, r)
		}
	}
	return &Matcher{rules: rules}
}

// WithDir reads the ignore files in root/rel and returns the extended
// matcher. Missing files are skipped.
func (m *Matcher) WithDir(root, rel string) (*Matcher, error) {
	out := m
	for _, name := range Files {
		patterns, err := ReadPatterns(filepath.Join(root, rel, name))
		if err != nil {
			return m, err
		}
		if len(patterns) > 0 {
			out = out.With(rel, patterns)
		}
	}
	return out, nil
}

// ReadPatterns returns the patterns of an ignore file, or nil if it does not
// exist.
func ReadPatterns(file string) ([]string, error) {
	data, err := os.ReadFile(file)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out, sc.Err()
}

// ParsePatterns returns the non-empty, non-comment lines of content.
func ParsePatterns(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || (strings.HasPrefix(line, "#") && !strings.HasPrefix(line, `\#`)) {
			continue
		}
		out = append(out, line)
	}
	return out
}

func compile(pattern, base string) (rule, bool) {
	escapedSpace := strings.HasSuffix(pattern, `\ `)
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || strings.HasPrefix(pattern, "#") {
		return rule{}, false
	}

	r := rule{base: base}
	switch {
	case strings.HasPrefix(pattern, `\#`), strings.HasPrefix(pattern, `\!`):
		pattern = pattern[1:]
	case strings.HasPrefix(pattern, "!"):
		r.negate = true
		pattern = pattern[1:]
	}
	if escapedSpace && strings.HasSuffix(pattern, `\`) {
		pattern = strings.TrimSuffix(pattern, `\`) + " "
	}
	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimRight(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = strings.TrimLeft(pattern, "/")
	}
	// A slash in the middle anchors the pattern to its base. A leading
	// "**/" still matches at any depth through its expansion.
	if strings.Contains(pattern, "/") {
		r.anchored = true
	}
	if pattern == "" {
		return rule{}, false
	}

	re, err := regexp.Compile("^" + translate(pattern) + "$")
	if err != nil {
		return rule{}, false
	}
	r.re = re
	return r, true
}

// Match reports whether rel (slash or OS separated, relative to the root)
// is ignored.
func (m *Matcher) Match(rel string, isDir bool) bool {
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." {
		return false
	}
	ignored := false
	for i := range m.rules {
		if m.rules[i].matches(rel, isDir) {
			ignored = !m.rules[i].negate
		}
	}
	return ignored
}

func (r *rule) matches(rel string, isDir bool) bool {
	if r.base != "" {
		if !strings.HasPrefix(rel, r.base+"/") {
			return false
		}
		rel = rel[len(r.base)+1:]
	}

	// A rule matching a parent directory covers everything inside it.
	parts := strings.Split(rel, "/")
	for i := range parts {
		last := i == len(parts)-1
		if r.dirOnly && last && !isDir {
			return false
		}
		var candidate string
		if r.anchored {
			candidate = path.Join(parts[:i+1]...)
		} else {
			candidate = parts[i]
		}
		if r.re.MatchString(candidate) {
			return true
		}
	}
	return false
}

// translate converts glob syntax to a regular expression body.
func translate(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			if i+1 < len(pattern) && pattern[i+1] == '*' {
				switch {
				case i+2 < len(pattern) && pattern[i+2] == '/':
					b.WriteString("(?:.*/)?")
					i += 2
					continue
				case i+2 == len(pattern):
					b.WriteString(".*")
					i++
					continue
				}
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := pattern[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + strings.ReplaceAll(class, `\`, `\\`) + "]")
			i += end + 1
		case '\\':
			if i+1 < len(pattern) {
				i++
				b.WriteString(regexp.QuoteMeta(string(pattern[i])))
			} else {
				b.WriteString(`\\`)
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}

// Package tokenize holds the word splitting and stop-word rules shared by
// the static embedder, the reranker, the lexical backends and query
// expansion.
package tokenize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Words splits text on anything that is not a letter or digit and
// lowercases the result. Underscores separate words.
func Words(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.ToLower(f))
	}
	return out
}

// Tokenize is Words plus identifier splitting: "parseHTTPRequest" yields
// "parsehttprequest", "parse", "http" and "request". Single ASCII
// characters are dropped.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		lower := strings.ToLower(f)
		if keep(lower) {
			out = append(out, lower)
		}
		parts := SplitCamelCase(f)
		if len(parts) < 2 {
			continue
		}
		for _, p := range parts {
			if lp := strings.ToLower(p); keep(lp) {
				out = append(out, lp)
			}
		}
	}
	return out
}

// Terms is Tokenize without stop words.
func Terms(text string) []string {
	tokens := Tokenize(text)
	out := tokens[:0]
	for _, t := range tokens {
		if !IsStopWord(t) {
			out = append(out, t)
		}
	}
	return out
}

func keep(token string) bool {
	if token == "" {
		return false
	}
	if len(token) == 1 && token[0] < utf8.RuneSelf {
		return false
	}
	return true
}

// SplitCamelCase splits camelCase and PascalCase identifiers.
//   - "getUserById" -> ["get", "User", "By", "Id"]
//   - "HTTPHandler" -> ["HTTP", "Handler"]
func SplitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		if i > 0 && unicode.IsDigit(r) != unicode.IsDigit(runes[i-1]) && current.Len() > 0 {
			result = append(result, current.String())
			current.Reset()
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

package search

import (
	"strings"
	"unicode"

	"github.com/Aman-CERP/amanfind/internal/tokenize"
)

// DefaultMaxVariants bounds the lexical variants per query.
const DefaultMaxVariants = 4

// Expander derives lexical query variants to compensate for BM25 matching
// only exact terms.
//
// Example:
//
//	Input:  "the invoices from march"
//	Output: ["invoices march", "invoice march", "bill march", "receipt march"]
type Expander struct {
	synonyms    map[string][]string
	maxVariants int
}

// NewExpander creates an expander over DefaultSynonyms plus extra. A
// maxVariants below 1 means DefaultMaxVariants.
func NewExpander(extra map[string][]string, maxVariants int) *Expander {
	if maxVariants < 1 {
		maxVariants = DefaultMaxVariants
	}
	return &Expander{synonyms: mergeSynonyms(extra), maxVariants: maxVariants}
}

// Terms returns the query's words without stop words, in order and
// deduplicated.
func Terms(query string) []string {
	words := tokenize.Words(query)
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		if tokenize.IsStopWord(w) || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// Variants returns the stripped query first, then its inflected form, then
// one variant per synonym substitution. A query of only stop words has no
// variants.
//
// The expansion strategy:
// 1. Strip stop words (the original terms, for exact matches)
// 2. Swap singular and plural forms
// 3. Replace one term at a time with each of its synonyms
// 4. Deduplicate and cap at maxVariants
func (e *Expander) Variants(query string) []string {
	terms := Terms(query)
	if len(terms) == 0 {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	add := func(words []string) bool {
		v := strings.Join(words, " ")
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
		return len(out) >= e.maxVariants
	}

	if add(terms) {
		return out
	}

	inflected := make([]string, len(terms))
	for i, t := range terms {
		inflected[i] = inflect(t)
	}
	if add(inflected) {
		return out
	}

	for i, t := range terms {
		syns := e.synonyms[t]
		if len(syns) == 0 {
			// "invoices" borrows the synonyms of "invoice".
			syns = e.synonyms[singular(t)]
		}
		for _, s := range syns {
			replaced := append([]string(nil), terms...)
			replaced[i] = s
			if add(replaced) {
				return out
			}
		}
	}
	return out
}

// inflect returns the singular of a plural word, else the plural.
func inflect(word string) string {
	if !inflectable(word) {
		return word
	}
	if s := singular(word); s != word {
		return s
	}
	return plural(word)
}

func inflectable(word string) bool {
	if len(word) < 3 {
		return false
	}
	for _, r := range word {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func singular(word string) string {
	if !inflectable(word) {
		return word
	}
	switch {
	case strings.HasSuffix(word, "ies") && len(word) > 4:
		return strings.TrimSuffix(word, "ies") + "y"
	case strings.HasSuffix(word, "sses"),
		strings.HasSuffix(word, "xes"),
		strings.HasSuffix(word, "zes"),
		strings.HasSuffix(word, "ches"),
		strings.HasSuffix(word, "shes"):
		return strings.TrimSuffix(word, "es")
	case strings.HasSuffix(word, "ss"),
		strings.HasSuffix(word, "us"),
		strings.HasSuffix(word, "is"):
		return word
	case strings.HasSuffix(word, "s"):
		return strings.TrimSuffix(word, "s")
	}
	return word
}

func plural(word string) string {
	n := len(word)
	switch {
	case strings.HasSuffix(word, "y") && !strings.ContainsRune("aeiou", rune(word[n-2])):
		return word[:n-1] + "ies"
	case strings.HasSuffix(word, "is"):
		return word[:n-2] + "es"
	case strings.HasSuffix(word, "s"),
		strings.HasSuffix(word, "x"),
		strings.HasSuffix(word, "z"),
		strings.HasSuffix(word, "ch"),
		strings.HasSuffix(word, "sh"):
		return word + "es"
	}
	return word + "s"
}

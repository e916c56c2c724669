package tokenize

import "strings"

// English plus a short list of frequent German, French and Spanish function
// words.
var stopWordList = []string{
	// English
	"a", "about", "above", "after", "again", "all", "am", "an", "and", "any",
	"are", "as", "at", "be", "because", "been", "before", "being", "below",
	"between", "both", "but", "by", "can", "could", "did", "do", "does",
	"doing", "down", "during", "each", "few", "for", "from", "further", "had",
	"has", "have", "having", "he", "her", "here", "hers", "him", "his", "how",
	"i", "if", "in", "into", "is", "it", "its", "itself", "just", "me", "more",
	"most", "my", "no", "nor", "not", "now", "of", "off", "on", "once", "only",
	"or", "other", "our", "ours", "out", "over", "own", "same", "she", "should",
	"so", "some", "such", "than", "that", "the", "their", "theirs", "them",
	"then", "there", "these", "they", "this", "those", "through", "to", "too",
	"under", "until", "up", "very", "was", "we", "were", "what", "when",
	"where", "which", "while", "who", "whom", "why", "will", "with", "would",
	"you", "your", "yours",

	// German
	"der", "die", "das", "und", "ist", "nicht", "ein", "eine", "mit", "auf",
	"für", "von", "zu", "den", "dem", "des",

	// French
	"le", "la", "les", "et", "est", "un", "une", "des", "du", "pour", "dans",
	"avec", "sur", "pas", "que", "qui",

	// Spanish
	"el", "los", "las", "y", "es", "una", "por", "con", "para", "del", "en",
	"lo", "como", "pero",
}

var stopWords = BuildStopWordMap(stopWordList)

// IsStopWord reports whether the lowercased word is a stop word.
func IsStopWord(word string) bool {
	_, ok := stopWords[strings.ToLower(word)]
	return ok
}

// StopWords returns a copy of the stop word list.
func StopWords() []string {
	return append([]string(nil), stopWordList...)
}

// BuildStopWordMap converts a slice of stop words to a map for lookup.
func BuildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}

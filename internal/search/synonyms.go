package search

import "strings"

// DefaultSynonyms maps a query word to alternatives that commonly appear in
// documents instead. Entries are lowercase; lexical matching is
// case-insensitive. Order matters: earlier synonyms become variants first.
var DefaultSynonyms = map[string][]string{
	// ==========================================================================
	// Documents and paperwork
	// ==========================================================================
	"invoice":   {"bill", "receipt"},
	"bill":      {"invoice", "receipt"},
	"receipt":   {"invoice", "bill"},
	"contract":  {"agreement"},
	"agreement": {"contract"},
	"resume":    {"cv"},
	"cv":        {"resume"},
	"meeting":   {"call", "sync"},
	"notes":     {"minutes", "memo"},
	"minutes":   {"notes"},
	"memo":      {"notes", "note"},
	"photo":     {"picture", "image"},
	"picture":   {"photo", "image"},
	"image":     {"photo", "picture"},
	"doc":       {"document"},
	"document":  {"doc", "file"},
	"todo":      {"task"},
	"task":      {"todo"},
	"budget":    {"expenses", "costs"},
	"salary":    {"payroll", "pay"},
	"tax":       {"taxes"},

	// ==========================================================================
	// Code vocabulary
	// ==========================================================================
	"function":  {"func", "method", "def"},
	"method":    {"func", "function"},
	"func":      {"function", "method"},
	"class":     {"type", "struct"},
	"struct":    {"type", "class"},
	"error":     {"err", "exception", "failure"},
	"exception": {"error", "err"},
	"config":    {"cfg", "configuration", "settings"},
	"settings":  {"config", "options", "preferences"},
	"options":   {"opts", "config"},
	"database":  {"db", "store"},
	"db":        {"database"},
	"request":   {"req"},
	"response":  {"resp", "reply"},
	"delete":    {"remove", "drop"},
	"remove":    {"delete"},
	"create":    {"new", "make", "init"},
	"start":     {"begin", "run", "launch"},
	"stop":      {"halt", "shutdown", "close"},
	"test":      {"spec", "check"},
	"log":       {"logger", "logging"},
	"directory": {"dir", "folder"},
	"folder":    {"directory", "dir"},
}

// mergeSynonyms lowercases extra and appends it after the defaults.
func mergeSynonyms(extra map[string][]string) map[string][]string {
	out := make(map[string][]string, len(DefaultSynonyms)+len(extra))
	for k, v := range DefaultSynonyms {
		out[k] = append([]string(nil), v...)
	}
	for k, v := range extra {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" {
			continue
		}
		for _, s := range v {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" && s != k {
				out[k] = append(out[k], s)
			}
		}
	}
	return out
}

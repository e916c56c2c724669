// Package scanner walks the indexed roots of a container and reports the
// files eligible for indexing. It honors stacked .gitignore and .ignore
// files, configured exclude patterns, extension allow and deny lists, a
// size cap and a binary sniff.
package scanner

import (
	"time"

	"github.com/Aman-CERP/amanfind/internal/config"
	"github.com/Aman-CERP/amanfind/internal/filetype"
)

// DefaultMaxFileSize is the default size cap (10MB).
const DefaultMaxFileSize = 10 * 1024 * 1024

// Options configures a Scanner.
type Options struct {
	// IncludeExtensions is an allow list. Empty means every category
	// filetype recognizes.
	IncludeExtensions []string

	// ExcludeExtensions always wins over IncludeExtensions.
	ExcludeExtensions []string

	// ExcludePatterns use gitignore syntax relative to each root.
	ExcludePatterns []string

	// MaxFileSize in bytes (0 = DefaultMaxFileSize).
	MaxFileSize int64

	// FollowSymlinks indexes symlinked files (default: false).
	FollowSymlinks bool

	// IgnoreFilesDisabled skips .gitignore and .ignore handling.
	IgnoreFilesDisabled bool
}

// OptionsFromConfig maps the index section of the configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		IncludeExtensions: cfg.Index.IncludeExtensions,
		ExcludeExtensions: cfg.Index.ExcludeExtensions,
		ExcludePatterns:   cfg.Index.ExcludePatterns,
		MaxFileSize:       int64(cfg.Index.MaxFileSizeMB) * 1024 * 1024,
		FollowSymlinks:    cfg.Index.FollowSymlinks,
	}
}

// File is a discovered document.
type File struct {
	// Path is absolute and cleaned.
	Path     string
	Root     string
	Size     int64
	ModTime  time.Time
	Category filetype.Category
	Language string
	Ext      string
}

// Reason explains why a path was not reported. The empty reason means the
// file is eligible.
type Reason string

const (
	Eligible    Reason = ""
	Ignored     Reason = "ignored"
	Sensitive   Reason = "sensitive"
	Extension   Reason = "extension"
	TooLarge    Reason = "too_large"
	Binary      Reason = "binary"
	Unsupported Reason = "unsupported"
	Symlink     Reason = "symlink"
)

// Result is the outcome of a walk over one or more roots.
type Result struct {
	// Files are sorted by path and deduplicated across roots.
	Files []File

	// Excluded counts files seen but not eligible. Skipped directories are
	// not counted.
	Excluded int

	// Reasons counts exclusions by reason.
	Reasons map[Reason]int
}

// alwaysSkippedDirs are never walked or watched, whatever the patterns say.
var alwaysSkippedDirs = map[string]bool{
	".git": true,
	".hg":  true,
	".svn": true,
}

// sensitivePatterns are never indexed.
var sensitivePatterns = []string{
	"*.pem",
	"*.key",
	"*.p12",
	"*.pfx",
	"*credentials*",
	"*secrets*",
	".netrc",
	".npmrc",
	".pypirc",
	"id_rsa",
	"id_dsa",
	"id_ecdsa",
	"id_ed25519",
}

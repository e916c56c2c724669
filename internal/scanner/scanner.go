package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/amanfind/internal/filetype"
	"github.com/Aman-CERP/amanfind/internal/gitignore"
)

// ignoreCacheSize bounds the per-directory matcher cache.
const ignoreCacheSize = 1000

const sniffSize = 512

// Scanner discovers eligible files. It is safe for concurrent use.
type Scanner struct {
	opts      Options
	excludes  *gitignore.Matcher
	sensitive *gitignore.Matcher
	include   map[string]bool
	exclude   map[string]bool

	// ignoreCache maps root + directory to the stacked matcher that applies
	// to that directory's entries.
	ignoreCache *lru.Cache[string, *gitignore.Matcher]
}

// New creates a Scanner.
func New(opts Options) (*Scanner, error) {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	cache, err := lru.New[string, *gitignore.Matcher](ignoreCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create ignore cache: %w", err)
	}
	return &Scanner{
		opts:        opts,
		excludes:    gitignore.New(opts.ExcludePatterns...),
		sensitive:   gitignore.New(sensitivePatterns...),
		include:     extSet(opts.IncludeExtensions),
		exclude:     extSet(opts.ExcludeExtensions),
		ignoreCache: cache,
	}, nil
}

func extSet(exts []string) map[string]bool {
	out := make(map[string]bool, len(exts))
	for _, e := range exts {
		if e = filetype.NormalizeExt(e); e != "" {
			out[e] = true
		}
	}
	return out
}

// Scan walks every root and returns the eligible files. Missing roots are
// logged and skipped; overlapping roots report each file once.
func (s *Scanner) Scan(ctx context.Context, roots []string) (*Result, error) {
	res := &Result{Reasons: make(map[Reason]int)}
	seen := make(map[string]bool)

	for _, root := range roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("failed to get absolute path: %w", err)
		}
		info, err := os.Stat(abs)
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("scan_root_missing", slog.String("root", abs))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to stat root %s: %w", abs, err)
		}

		if !info.IsDir() {
			f, reason, err := s.Check(filepath.Dir(abs), abs)
			if err != nil {
				return nil, err
			}
			s.record(res, seen, f, reason)
			continue
		}
		if err := s.walk(ctx, abs, res, seen); err != nil {
			return nil, err
		}
	}

	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Path < res.Files[j].Path })
	return res, nil
}

func (s *Scanner) record(res *Result, seen map[string]bool, f File, reason Reason) {
	if seen[f.Path] {
		return
	}
	seen[f.Path] = true
	if reason != Eligible {
		res.Excluded++
		res.Reasons[reason]++
		return
	}
	res.Files = append(res.Files, f)
}

func (s *Scanner) walk(ctx context.Context, root string, res *Result, seen map[string]bool) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == root {
				return err
			}
			// Unreadable entries are skipped.
			slog.Debug("scan_entry_unreadable", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil || rel == "." {
			return nil
		}
		if d.IsDir() {
			if s.skipDir(root, rel) {
				return filepath.SkipDir
			}
			return nil
		}

		f, reason := s.check(root, path, rel, d.Type())
		s.record(res, seen, f, reason)
		return nil
	})
}

// Check classifies one path under root, for event-driven updates. A path
// outside root, or under a skipped directory, is Ignored.
func (s *Scanner) Check(root, path string) (File, Reason, error) {
	root = filepath.Clean(root)
	path = filepath.Clean(path)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return File{Path: path, Root: root}, Ignored, nil
	}
	if s.underSkippedDir(root, rel) {
		return File{Path: path, Root: root}, Ignored, nil
	}
	info, err := os.Lstat(path)
	if err != nil {
		return File{Path: path, Root: root}, Eligible, err
	}
	if info.IsDir() {
		return File{Path: path, Root: root}, Ignored, nil
	}
	f, reason := s.check(root, path, rel, info.Mode().Type())
	return f, reason, nil
}

// SkipDir reports whether the directory at path (under root) is excluded
// from walking and watching.
func (s *Scanner) SkipDir(root, path string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil || strings.HasPrefix(rel, "..") {
		return true
	}
	if rel == "." {
		return false
	}
	return s.underSkippedDir(root, rel) || s.skipDir(root, rel)
}

// InvalidateIgnoreCache drops cached matchers after an ignore file changed.
func (s *Scanner) InvalidateIgnoreCache() {
	s.ignoreCache.Purge()
}

// IsIgnoreFile reports whether path is a .gitignore or .ignore file.
func IsIgnoreFile(path string) bool {
	base := filepath.Base(path)
	for _, name := range gitignore.Files {
		if base == name {
			return true
		}
	}
	return false
}

func (s *Scanner) underSkippedDir(root, rel string) bool {
	parts := strings.Split(rel, string(filepath.Separator))
	for i := 1; i < len(parts); i++ {
		if s.skipDir(root, filepath.Join(parts[:i]...)) {
			return true
		}
	}
	return false
}

func (s *Scanner) skipDir(root, rel string) bool {
	if alwaysSkippedDirs[filepath.Base(rel)] {
		return true
	}
	if s.excludes.Match(rel, true) {
		return true
	}
	return s.ignored(root, rel, true)
}

func (s *Scanner) ignored(root, rel string, isDir bool) bool {
	if s.opts.IgnoreFilesDisabled {
		return false
	}
	dir := filepath.Dir(rel)
	if dir == "." {
		dir = ""
	}
	return s.matcherFor(root, dir).Match(rel, isDir)
}

// matcherFor returns the stack of ignore files from root down to dir.
func (s *Scanner) matcherFor(root, dir string) *gitignore.Matcher {
	key := root + "\x00" + dir
	if m, ok := s.ignoreCache.Get(key); ok {
		return m
	}

	var parent *gitignore.Matcher
	if dir == "" {
		parent = gitignore.New()
	} else {
		up := filepath.Dir(dir)
		if up == "." {
			up = ""
		}
		parent = s.matcherFor(root, up)
	}

	m, err := parent.WithDir(root, dir)
	if err != nil {
		slog.Warn("ignore_file_unreadable",
			slog.String("dir", filepath.Join(root, dir)),
			slog.String("error", err.Error()))
	}
	s.ignoreCache.Add(key, m)
	return m
}

func (s *Scanner) check(root, path, rel string, mode fs.FileMode) (File, Reason) {
	f := File{Path: path, Root: root}
	info := filetype.Detect(path)
	f.Category, f.Language, f.Ext = info.Category, info.Language, info.Ext

	if s.sensitive.Match(filepath.Base(rel), false) {
		return f, Sensitive
	}
	if s.excludes.Match(rel, false) || s.ignored(root, rel, false) {
		return f, Ignored
	}
	if info.Category == filetype.Unsupported {
		return f, Unsupported
	}
	if s.exclude[info.Ext] || (len(s.include) > 0 && !s.include[info.Ext]) {
		return f, Extension
	}

	if mode&fs.ModeSymlink != 0 && !s.opts.FollowSymlinks {
		return f, Symlink
	}
	st, err := os.Stat(path)
	if err != nil || !st.Mode().IsRegular() {
		return f, Unsupported
	}
	f.Size = st.Size()
	f.ModTime = st.ModTime()
	if f.Size > s.opts.MaxFileSize {
		return f, TooLarge
	}
	if info.Category != filetype.Image && isBinary(path) {
		return f, Binary
	}
	return f, Eligible
}

// isBinary sniffs the first bytes for NUL.
func isBinary(path string) bool {
	file, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = file.Close() }()

	buf := make([]byte, sniffSize)
	n, err := io.ReadFull(file, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false
	}
	return bytes.IndexByte(buf[:n], 0) >= 0
}

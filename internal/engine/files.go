package engine

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
)

// previewBytes caps DiffSince previews.
const previewBytes = 200

// FileInfo is one entry of ListFiles.
type FileInfo struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// Diff lists what changed in a container within a window.
type Diff struct {
	ChangedPaths []string `json:"changed_paths"`

	// Previews maps changed paths to the start of their first chunk.
	Previews     map[string]string `json:"previews"`
	DeletedPaths []string          `json:"deleted_paths"`
}

// Read returns lines startLine..endLine of path, 1-based and inclusive.
// Zero leaves that end open. Only files under some container's indexed
// roots may be read; symlinks are resolved before the check.
func (e *Engine) Read(path string, startLine, endLine int) (string, error) {
	if startLine < 0 || endLine < 0 || (endLine > 0 && startLine > endLine) {
		return "", amerrors.New(amerrors.ErrCodeInvalidRange,
			fmt.Sprintf("invalid line range %d-%d", startLine, endLine), nil)
	}
	resolved, err := e.permitted(path)
	if err != nil {
		return "", err
	}

	f, err := os.Open(resolved)
	if err != nil {
		return "", amerrors.New(amerrors.ErrCodeFileUnreadable, "failed to open file", err)
	}
	defer func() { _ = f.Close() }()

	if startLine == 0 {
		startLine = 1
	}
	var b strings.Builder
	r := bufio.NewReader(f)
	for n := 1; endLine == 0 || n <= endLine; n++ {
		line, err := r.ReadString('\n')
		if n >= startLine {
			b.WriteString(line)
		}
		if err != nil {
			break
		}
	}
	return b.String(), nil
}

// permitted resolves path and checks it against every container's roots.
func (e *Engine) permitted(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", amerrors.ValidationError(fmt.Sprintf("invalid path %q", path), err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", amerrors.New(amerrors.ErrCodeFileNotFound, fmt.Sprintf("file not found: %s", path), err)
		}
		return "", amerrors.New(amerrors.ErrCodeFileUnreadable, "failed to resolve path", err)
	}

	e.mu.RLock()
	var roots []string
	for _, cc := range e.cfg.Containers {
		roots = append(roots, cc.IndexedPaths...)
	}
	e.mu.RUnlock()

	for _, root := range roots {
		r, err := filepath.EvalSymlinks(root)
		if err != nil {
			continue
		}
		if resolved == r || strings.HasPrefix(resolved, r+string(filepath.Separator)) {
			return resolved, nil
		}
	}
	return "", amerrors.New(amerrors.ErrCodePathDenied,
		fmt.Sprintf("%s is outside every indexed path", path), ErrPathNotPermitted).
		WithSuggestion("add its folder with 'amanfind containers add-path'")
}

// ListFiles returns the container's indexed files, sorted and
// deduplicated, optionally restricted by path prefix and extensions.
func (e *Engine) ListFiles(ctx context.Context, container, prefix string, exts []string) ([]FileInfo, error) {
	name, _, err := e.resolve(container)
	if err != nil {
		return nil, err
	}
	ok, err := e.store.HasContainer(ctx, name)
	if err != nil || !ok {
		return []FileInfo{}, err
	}
	records, err := e.store.ListFiles(ctx, name, prefix, exts)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(records))
	out := make([]FileInfo, 0, len(records))
	for _, r := range records {
		if seen[r.Path] {
			continue
		}
		seen[r.Path] = true
		out = append(out, FileInfo{Path: r.Path, Size: r.Size})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// DiffSince reports files indexed with an mtime inside the last d, and
// files deleted inside it.
func (e *Engine) DiffSince(ctx context.Context, container string, d time.Duration) (Diff, error) {
	if d <= 0 {
		return Diff{}, amerrors.ValidationError("duration must be positive", nil)
	}
	name, _, err := e.resolve(container)
	if err != nil {
		return Diff{}, err
	}
	diff := Diff{ChangedPaths: []string{}, Previews: map[string]string{}, DeletedPaths: []string{}}
	ok, err := e.store.HasContainer(ctx, name)
	if err != nil || !ok {
		return diff, err
	}

	changed, deleted, err := e.store.FilesSince(ctx, name, time.Now().Add(-d))
	if err != nil {
		return Diff{}, err
	}
	for _, f := range changed {
		diff.ChangedPaths = append(diff.ChangedPaths, f.Path)
		chunks, err := e.store.ChunksForPath(ctx, name, f.Path)
		if err != nil {
			return Diff{}, err
		}
		if len(chunks) > 0 {
			diff.Previews[f.Path] = truncate(chunks[0].Text, previewBytes)
		}
	}
	for _, f := range deleted {
		diff.DeletedPaths = append(diff.DeletedPaths, f.Path)
	}
	sort.Strings(diff.ChangedPaths)
	sort.Strings(diff.DeletedPaths)
	return diff, nil
}

// truncate cuts s to at most n bytes on a rune boundary.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

package index

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	historyHeading = "[git history]"
	historyLimit   = 50
	gitTimeout     = 5 * time.Second
)

// gitHistory shells out to git for commit subjects. Roots that are not
// inside a work tree are remembered so git runs once for them.
type gitHistory struct {
	mu       sync.Mutex
	worktree map[string]bool
}

func newGitHistory() *gitHistory {
	return &gitHistory{worktree: make(map[string]bool)}
}

func (g *gitHistory) inWorkTree(ctx context.Context, root string) bool {
	g.mu.Lock()
	ok, seen := g.worktree[root]
	g.mu.Unlock()
	if seen {
		return ok
	}

	out, err := runGit(ctx, root, "rev-parse", "--is-inside-work-tree")
	ok = err == nil && strings.TrimSpace(out) == "true"
	g.mu.Lock()
	g.worktree[root] = ok
	g.mu.Unlock()
	return ok
}

// subjects returns "[git history]" and up to historyLimit commit subjects
// for path, newest first. Empty when git is unavailable or the file has
// no history.
func (g *gitHistory) subjects(ctx context.Context, root, path string) string {
	if !g.inWorkTree(ctx, root) {
		return ""
	}
	out, err := runGit(ctx, filepath.Dir(path),
		"log", "--format=%s", "-n", strconv.Itoa(historyLimit), "--", filepath.Base(path))
	if err != nil {
		slog.Debug("git_log_failed", slog.String("path", path), slog.String("error", err.Error()))
		return ""
	}

	var lines []string
	for _, l := range strings.Split(out, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return ""
	}
	return historyHeading + "\n" + strings.Join(lines, "\n")
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", dir}, args...)...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return "", err
	}
	return stdout.String(), nil
}

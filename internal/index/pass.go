package index

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Aman-CERP/amanfind/internal/chunk"
	"github.com/Aman-CERP/amanfind/internal/embed"
	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
	"github.com/Aman-CERP/amanfind/internal/filetype"
	"github.com/Aman-CERP/amanfind/internal/scanner"
	"github.com/Aman-CERP/amanfind/internal/store"
	"github.com/Aman-CERP/amanfind/internal/watcher"
)

// progressInterval throttles progress callbacks; the last file of a pass
// is always reported.
const progressInterval = 100 * time.Millisecond

type outcome int

const (
	outcomeIndexed outcome = iota
	outcomeExcluded
	outcomeFailed
)

// plan is what a pass will do once the walk or event triage is done.
type plan struct {
	files    []scanner.File
	deletes  []string
	excluded int
}

func (o *Orchestrator) pass(ctx context.Context, req request, progress ProgressFunc) (sum Summary, err error) {
	o.passMu.Lock()
	defer o.passMu.Unlock()

	start := time.Now()
	container := o.cfg.Container
	passID := uuid.NewString()
	logger := slog.With(slog.String("container", container), slog.String("pass_id", passID))
	defer func() {
		sum.Duration = time.Since(start)
		o.finish(sum, err)
	}()

	st := o.cfg.Store
	lock, err := st.LockWriter(container)
	if err != nil {
		return Summary{Container: container}, err
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil {
			logger.Warn("writer_unlock_failed", slog.String("error", uerr.Error()))
		}
	}()

	if err := st.EnsureContainer(ctx, container); err != nil {
		return Summary{Container: container}, err
	}

	model, dims := o.cfg.Pool.ModelName(), o.cfg.Pool.Dimensions()
	ms, err := st.CheckModel(ctx, container, model, dims)
	if err != nil {
		return Summary{Container: container}, err
	}
	if ms.Stale && !req.full {
		// Vectors from another model cannot be mixed; every file is redone.
		req.full = true
	}
	if ms.Stale {
		logger.Info("index_model_changed",
			slog.String("stored_model", ms.Model),
			slog.Int("stored_dims", ms.Dims),
			slog.String("model", model),
			slog.Int("dims", dims))
	}

	o.setState(StateWalking)
	stored, err := st.FileStates(ctx, container)
	if err != nil {
		return Summary{Container: container}, err
	}
	trackedList, err := st.TrackedPaths(ctx, container)
	if err != nil {
		return Summary{Container: container}, err
	}
	tracked := make(map[string]bool, len(trackedList))
	for _, p := range trackedList {
		tracked[p] = true
	}

	var pl plan
	if req.full {
		pl, err = o.walkPlan(ctx, tracked)
	} else {
		pl, req.full, err = o.eventPlan(req.paths, tracked)
		if err == nil && req.full {
			pl, err = o.walkPlan(ctx, tracked)
		}
	}
	if err != nil {
		return Summary{Container: container, Full: req.full}, err
	}

	sum = Summary{Container: container, Full: req.full, Excluded: pl.excluded}
	logger.Debug("index_pass_start",
		slog.Bool("full", req.full),
		slog.Int("files", len(pl.files)),
		slog.Int("deletes", len(pl.deletes)))

	o.setState(StateProcessing)
	report := o.progressReporter(progress)
	total := len(pl.files)
	for i, f := range pl.files {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if mtime, ok := stored[f.Path]; ok && !ms.Stale && mtime.Equal(f.ModTime) {
			sum.Skipped++
			report(Progress{Processed: i + 1, Total: total, Path: f.Path}, i+1 == total)
			continue
		}

		res, chunks, ferr := o.indexFile(ctx, f)
		if ferr != nil && isCancelled(ctx, ferr) {
			return sum, ferr
		}
		switch res {
		case outcomeIndexed:
			sum.Indexed++
			sum.Chunks += chunks
		case outcomeExcluded:
			sum.Excluded++
			if tracked[f.Path] {
				pl.deletes = append(pl.deletes, f.Path)
			}
		case outcomeFailed:
			sum.Failed++
			logger.Warn("index_file_failed",
				slog.String("path", f.Path),
				slog.String("error", ferr.Error()))
			if merr := st.MarkFailed(ctx, container, f.Path, f.ModTime, ferr.Error()); merr != nil {
				logger.Warn("mark_failed_error", slog.String("path", f.Path), slog.String("error", merr.Error()))
			}
		}
		report(Progress{Processed: i + 1, Total: total, Path: f.Path}, i+1 == total)
	}

	for _, p := range pl.deletes {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		derr := amerrors.Retry(ctx, amerrors.StoreRetryConfig(o.cfg.WriteRetries), func() error {
			return st.DeletePath(ctx, container, p)
		})
		if derr != nil {
			if isCancelled(ctx, derr) {
				return sum, derr
			}
			logger.Warn("index_delete_failed", slog.String("path", p), slog.String("error", derr.Error()))
			continue
		}
		sum.Deleted++
	}

	o.setState(StateMaintenance)
	mres, merr := st.Maintain(ctx, container)
	if merr != nil {
		if isCancelled(ctx, merr) {
			return sum, merr
		}
		logger.Warn("index_maintain_failed", slog.String("error", merr.Error()))
	}

	if ms.Stale || ms.Dims == 0 || ms.Model == "" {
		if err := st.SetModel(ctx, container, model, dims); err != nil {
			return sum, err
		}
	}

	logger.Info("index_pass_complete",
		slog.Bool("full", sum.Full),
		slog.Int("indexed", sum.Indexed),
		slog.Int("skipped", sum.Skipped),
		slog.Int("deleted", sum.Deleted),
		slog.Int("failed", sum.Failed),
		slog.Int("excluded", sum.Excluded),
		slog.Int("chunks", sum.Chunks),
		slog.Bool("graph_rebuilt", mres.Rebuilt),
		slog.Duration("duration", time.Since(start)))
	return sum, nil
}

func (o *Orchestrator) progressReporter(fn ProgressFunc) func(Progress, bool) {
	if fn == nil {
		return func(Progress, bool) {}
	}
	throttle := &rate.Sometimes{First: 1, Interval: progressInterval}
	return func(p Progress, last bool) {
		if last {
			fn(p)
			return
		}
		throttle.Do(func() { fn(p) })
	}
}

// walkPlan walks every root. Tracked paths the walk did not report are
// deleted.
func (o *Orchestrator) walkPlan(ctx context.Context, tracked map[string]bool) (plan, error) {
	roots := o.Roots()
	res, err := o.cfg.Scanner.Scan(ctx, roots)
	if err != nil {
		return plan{}, fmt.Errorf("walk failed: %w", err)
	}
	pl := plan{files: res.Files, excluded: res.Excluded}

	walked := make(map[string]bool, len(res.Files))
	for _, f := range res.Files {
		walked[f.Path] = true
	}
	for p := range tracked {
		if !walked[p] {
			pl.deletes = append(pl.deletes, p)
		}
	}
	sort.Strings(pl.deletes)
	return pl, nil
}

// eventPlan triages queued paths against the disk. It asks for a full walk
// when an ignore file changed, since that can affect any path below it.
func (o *Orchestrator) eventPlan(paths map[string]watcher.Operation, tracked map[string]bool) (plan, bool, error) {
	var pl plan
	keys := make([]string, 0, len(paths))
	for p := range paths {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	deletes := make(map[string]bool)
	for _, p := range keys {
		root := o.rootFor(p)
		if root == "" {
			continue
		}
		if scanner.IsIgnoreFile(p) {
			o.cfg.Scanner.InvalidateIgnoreCache()
			return plan{}, true, nil
		}

		f, reason, err := o.cfg.Scanner.Check(root, p)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			if tracked[p] {
				deletes[p] = true
				continue
			}
			// A removed directory only reports itself.
			prefix := p + string(filepath.Separator)
			for t := range tracked {
				if strings.HasPrefix(t, prefix) {
					deletes[t] = true
				}
			}
		case err != nil:
			slog.Warn("index_check_failed", slog.String("path", p), slog.String("error", err.Error()))
		case reason != scanner.Eligible:
			if reason != scanner.Ignored || !isDir(p) {
				pl.excluded++
			}
			if tracked[p] {
				deletes[p] = true
			}
		default:
			pl.files = append(pl.files, f)
		}
	}
	for p := range deletes {
		pl.deletes = append(pl.deletes, p)
	}
	sort.Strings(pl.deletes)
	return pl, false, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// indexFile reads, chunks, embeds and writes one file.
func (o *Orchestrator) indexFile(ctx context.Context, f scanner.File) (outcome, int, error) {
	info := filetype.Info{Category: f.Category, Language: f.Language, Ext: f.Ext}

	var content []byte
	if f.Category == filetype.Image {
		if o.cfg.Images == nil {
			return outcomeExcluded, 0, nil
		}
		text, err := o.cfg.Images.Extract(ctx, f.Path)
		if err != nil {
			return outcomeFailed, 0, fmt.Errorf("image extraction failed: %w", err)
		}
		content = []byte(text)
		info = filetype.Info{Category: filetype.Text, Ext: f.Ext}
	} else {
		data, err := os.ReadFile(f.Path)
		if err != nil {
			return outcomeFailed, 0, amerrors.New(amerrors.ErrCodeFileUnreadable, "failed to read file", err)
		}
		content = data
	}

	chunks := o.cfg.Chunker.Chunk(ctx, content, info)
	if o.git != nil && len(chunks) > 0 {
		if hist := o.git.subjects(ctx, f.Root, f.Path); hist != "" {
			chunks = append(chunks, historyChunk(len(chunks), content, hist))
		}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vecs, err := o.cfg.Pool.Embed(ctx, texts, embed.RoleIndex)
	if err != nil {
		return outcomeFailed, 0, amerrors.New(amerrors.ErrCodeEmbedFailed, "failed to embed chunks", err)
	}

	rows := make([]store.Row, len(chunks))
	for i, c := range chunks {
		rows[i] = store.Row{
			Ordinal:   c.Ordinal,
			Text:      c.Content,
			Vector:    vecs[i],
			StartByte: c.StartByte,
			EndByte:   c.EndByte,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Heading:   c.Heading,
		}
		if c.Heading == historyHeading {
			rows[i].Extra = map[string]string{"kind": "git_history"}
		}
	}

	o.setState(StateUpserting)
	defer o.setState(StateProcessing)
	file := store.File{Path: f.Path, MTime: f.ModTime, Size: f.Size, Category: f.Category.String()}
	err = amerrors.Retry(ctx, amerrors.StoreRetryConfig(o.cfg.WriteRetries), func() error {
		return o.upsert(ctx, o.cfg.Container, file, rows)
	})
	if err != nil {
		return outcomeFailed, 0, err
	}
	return outcomeIndexed, len(rows), nil
}

// historyChunk places the history after the file's last byte so ranges
// stay inside the file.
func historyChunk(ordinal int, content []byte, hist string) chunk.Chunk {
	lines := strings.Count(string(content), "\n") + 1
	return chunk.Chunk{
		Ordinal:   ordinal,
		Content:   hist,
		StartByte: len(content),
		EndByte:   len(content),
		StartLine: lines,
		EndLine:   lines,
		Heading:   historyHeading,
	}
}

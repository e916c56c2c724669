package engine

import (
	"context"
	"time"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
	"github.com/Aman-CERP/amanfind/internal/index"
)

// FailedFile is a file whose last indexing attempt failed.
type FailedFile struct {
	Path  string
	Error string
}

// Status describes a container's index.
type Status struct {
	Container    string
	TotalFiles   int
	TotalChunks  int
	HasIndex     bool
	HasGraph     bool
	IndexedPaths []string

	// State is the orchestrator state, "idle" when nothing runs.
	State    string
	Pending  int
	LastPass time.Time
	Failed   []FailedFile

	// VectorsStale means the stored vectors came from another model or
	// width and the next pass re-embeds everything.
	VectorsStale bool
	Model        string
	Dims         int
}

// IndexStatus reports the container's totals. A container without backing
// tables, including one that was deleted, reports HasIndex false.
func (e *Engine) IndexStatus(ctx context.Context, container string) (Status, error) {
	name, cc, err := e.resolve(container)
	if err != nil {
		if container == "" || amerrors.GetCode(err) != amerrors.ErrCodeContainerAbsent {
			return Status{}, err
		}
		name = container
	}
	st := Status{
		Container:    name,
		IndexedPaths: append([]string{}, cc.IndexedPaths...),
		State:        index.StateIdle.String(),
		Failed:       []FailedFile{},
	}

	e.mu.RLock()
	o := e.orchs[name]
	e.mu.RUnlock()
	if o != nil {
		snap := o.Status()
		st.State = snap.State.String()
		st.Pending = snap.Pending
		st.LastPass = snap.LastPass
	}

	stats, err := e.store.Stats(ctx, name)
	if err != nil {
		return Status{}, err
	}
	if !stats.HasIndex {
		return st, nil
	}
	st.HasIndex = true
	st.HasGraph = stats.HasGraph
	st.TotalFiles = stats.Files
	st.TotalChunks = stats.Chunks

	failed, err := e.store.FailedFiles(ctx, name)
	if err != nil {
		return Status{}, err
	}
	for _, f := range failed {
		st.Failed = append(st.Failed, FailedFile{Path: f.Path, Error: f.Error})
	}

	ms, err := e.store.CheckModel(ctx, name, e.pool.ModelName(), e.pool.Dimensions())
	if err != nil {
		return Status{}, err
	}
	st.VectorsStale = ms.Stale
	st.Model = ms.Model
	st.Dims = ms.Dims
	return st, nil
}

// Package store persists indexed rows per container: text, vectors and
// metadata in SQLite, a lexical index (SQLite FTS5 or bleve) and an HNSW
// graph that is materialized once a container grows past a threshold.
package store

import (
	"errors"
	"path"
	"strings"
	"time"
)

// Sentinel errors.
var (
	// ErrContainerNotFound is returned for operations on a container that has
	// no backing tables.
	ErrContainerNotFound = errors.New("container not found")

	// ErrContainerExists is returned when creating or renaming onto an
	// existing container.
	ErrContainerExists = errors.New("container already exists")

	// ErrDimensionMismatch is returned when a query vector's width differs
	// from the container's stored width.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrWriterBusy is returned by LockWriter when another process holds the
	// container's writer lock.
	ErrWriterBusy = errors.New("container writer lock is held by another process")

	// ErrClosed is returned by calls on a closed store.
	ErrClosed = errors.New("store is closed")
)

// Lexical backends.
const (
	BackendSQLite = "sqlite"
	BackendBleve  = "bleve"
)

// State keys in store_state.
const (
	stateModel       = "model"
	stateDims        = "dims"
	stateMutations   = "mutations"
	stateANNRows     = "ann_rows"
	stateLastRebuild = "last_rebuild"
)

// DefaultMaterializationThreshold is the row count at which the ANN graph is
// built.
const DefaultMaterializationThreshold = 256

// FileStatus is the state of a tracked document.
type FileStatus string

const (
	StatusIndexed FileStatus = "indexed"
	StatusDeleted FileStatus = "deleted"
	StatusFailed  FileStatus = "failed"
)

// Row is one indexed chunk. ID is assigned by the store and never reused.
type Row struct {
	ID        int64
	Path      string
	Ordinal   int
	Text      string
	Vector    []float32
	MTime     time.Time
	StartByte int
	EndByte   int
	StartLine int
	EndLine   int
	Heading   string
	Extra     map[string]string
}

// Hit is a retrieved row with a backend-specific score. Higher is better.
type Hit struct {
	Row
	Score float64
}

// File describes a document being written with Upsert.
type File struct {
	Path     string
	MTime    time.Time
	Size     int64
	Category string
}

// FileRecord is the tracked state of a document.
type FileRecord struct {
	Path      string
	MTime     time.Time
	Size      int64
	Chunks    int
	Category  string
	Status    FileStatus
	IndexedAt time.Time
	DeletedAt time.Time
	Error     string
}

// Stats summarizes a container.
type Stats struct {
	Files    int
	Chunks   int
	Failed   int
	Deleted  int
	HasIndex bool
	HasGraph bool
}

// ModelState is the result of CheckModel.
type ModelState struct {
	Model string
	Dims  int

	// Stale is true when stored vectors were produced by a different model
	// or width than the current embedder.
	Stale bool
}

// MaintainResult reports what Maintain did.
type MaintainResult struct {
	Rows    int
	Rebuilt bool
	Removed bool
}

// Filter restricts retrieval. Zero value matches everything.
type Filter struct {
	// Extensions are lowercase with a leading dot, e.g. ".md".
	Extensions []string
	PathPrefix string
}

// NormalizeExtensions lowercases and dot-prefixes extensions, dropping
// blanks.
func NormalizeExtensions(exts []string) []string {
	out := make([]string, 0, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		out = append(out, e)
	}
	return out
}

func (f Filter) normalized() Filter {
	f.Extensions = NormalizeExtensions(f.Extensions)
	return f
}

// Empty reports whether the filter matches everything.
func (f Filter) Empty() bool {
	return len(f.Extensions) == 0 && f.PathPrefix == ""
}

// Match applies the filter to a path.
func (f Filter) Match(p string) bool {
	if f.PathPrefix != "" && !strings.HasPrefix(p, f.PathPrefix) {
		return false
	}
	if len(f.Extensions) == 0 {
		return true
	}
	ext := extOf(p)
	for _, e := range f.Extensions {
		if e == ext {
			return true
		}
	}
	return false
}

func extOf(p string) string {
	return strings.ToLower(path.Ext(strings.ReplaceAll(p, "\\", "/")))
}

package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/coder/hnsw"
)

const (
	annDir     = "ann"
	metaSuffix = ".meta"

	hnswM        = 16
	hnswEfSearch = 20
	hnswMl       = 0.25
)

// annIndex is a materialized HNSW graph over the rows that existed at the
// last rebuild. Graph keys are row ids; rows written later (id > MaxID) form
// the tail and are scanned exactly.
type annIndex struct {
	graph *hnsw.Graph[uint64]
	meta  annMeta
}

// annMeta is persisted next to the graph.
type annMeta struct {
	MaxID int64
	Dims  int
	Rows  int
	Built time.Time
}

func newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = hnswM
	g.EfSearch = hnswEfSearch
	g.Ml = hnswMl
	return g
}

// buildANN builds a graph from id/vector pairs. Vectors must be unit length
// and of width dims; others are skipped.
func buildANN(ids []int64, vectors [][]float32, dims int) *annIndex {
	g := newGraph()
	idx := &annIndex{graph: g, meta: annMeta{Dims: dims, Built: time.Now().UTC()}}
	for i, id := range ids {
		if len(vectors[i]) != dims {
			continue
		}
		g.Add(hnsw.MakeNode(uint64(id), vectors[i]))
		idx.meta.Rows++
		if id > idx.meta.MaxID {
			idx.meta.MaxID = id
		}
	}
	return idx
}

// search returns up to k graph candidates as (row id, cosine similarity).
func (a *annIndex) search(query []float32, k int) []scoredID {
	if a.graph.Len() == 0 || k <= 0 {
		return nil
	}
	nodes := a.graph.Search(query, k)
	out := make([]scoredID, 0, len(nodes))
	for _, node := range nodes {
		d := a.graph.Distance(query, node.Value)
		// Cosine distance spans [0, 2].
		out = append(out, scoredID{id: int64(node.Key), score: float64(1 - d/2)})
	}
	return out
}

func (s *Store) annPath(container string) string {
	return filepath.Join(s.dataDir, annDir, TableName(container)+".hnsw")
}

// save writes the graph and its metadata atomically (temp file + rename).
func (a *annIndex) save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	w := bufio.NewWriter(file)
	if err := a.graph.Export(w); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = file.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to flush graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close index file: %w", err)
	}

	// Metadata first: a graph without matching metadata is never loaded.
	if err := saveMeta(path+metaSuffix, a.meta); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename index file: %w", err)
	}
	return nil
}

func saveMeta(path string, meta annMeta) error {
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp metadata file: %w", err)
	}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		if closeErr := file.Close(); closeErr != nil {
			slog.Warn("failed to close temp file during cleanup", slog.String("error", closeErr.Error()))
		}
		_ = os.Remove(tmp)
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close metadata file: %w", err)
	}
	return os.Rename(tmp, path)
}

// loadANN reads a persisted graph. It returns (nil, nil) when none exists.
func loadANN(path string) (*annIndex, error) {
	metaFile, err := os.Open(path + metaSuffix)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open metadata file: %w", err)
	}
	var meta annMeta
	err = gob.NewDecoder(metaFile).Decode(&meta)
	_ = metaFile.Close()
	if err != nil {
		return nil, fmt.Errorf("decode ann metadata: %w", err)
	}

	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open index file: %w", err)
	}
	defer func() { _ = file.Close() }()

	g := newGraph()
	// Import requires an io.ByteReader.
	if err := g.Import(bufio.NewReader(file)); err != nil {
		return nil, fmt.Errorf("failed to import graph: %w", err)
	}
	return &annIndex{graph: g, meta: meta}, nil
}

func (s *Store) removeANN(container string) {
	path := s.annPath(container)
	for _, p := range []string{path, path + metaSuffix} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			slog.Warn("ann_remove_failed", slog.String("path", p), slog.String("error", err.Error()))
		}
	}
}

// graphFor returns the container's graph, loading it from disk on first use.
// It returns nil when no graph has been materialized.
func (s *Store) graphFor(container string) (*annIndex, error) {
	s.mu.RLock()
	idx, ok := s.graphs[container]
	s.mu.RUnlock()
	if ok {
		return idx, nil
	}

	idx, err := loadANN(s.annPath(container))
	if err != nil {
		slog.Warn("ann_load_failed",
			slog.String("container", container),
			slog.String("error", err.Error()))
		s.removeANN(container)
		idx = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.graphs == nil {
		return nil, ErrClosed
	}
	s.graphs[container] = idx
	return idx, nil
}

// Package search runs hybrid retrieval over a container: a vector path and
// a lexical path per query variant, merged with Reciprocal Rank Fusion
// (RRF) and reordered by a reranker.
package search

import (
	"sort"

	"github.com/Aman-CERP/amanfind/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter.
// k=60 is empirically validated across domains (used by Azure AI Search, OpenSearch, etc.).
const DefaultRRFConstant = 60

// Fused is one row after RRF fusion.
type Fused struct {
	store.Row
	Score float64

	// Ranks are 1-indexed, 0 when the row was absent from that path.
	VectorRank  int
	LexicalRank int
}

// Fuse combines vector results and any number of lexical result lists with
// Reciprocal Rank Fusion.
//
// Algorithm: RRF_score(d) = 1/(k + rank_vec) + 1/(k + rank_lex)
//
// Lexical lists (one per query variant) are collapsed first: a row keeps
// its best rank across variants. Results are sorted by score descending,
// then path, then ordinal, so equal inputs always give equal output.
func Fuse(k int, vector []store.Hit, lexical [][]store.Hit) []Fused {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	lexRank := make(map[int64]int)
	lexRow := make(map[int64]store.Row)
	for _, list := range lexical {
		for i, h := range list {
			rank := i + 1
			if best, ok := lexRank[h.ID]; !ok || rank < best {
				lexRank[h.ID] = rank
				lexRow[h.ID] = h.Row
			}
		}
	}

	byID := make(map[int64]*Fused, len(vector)+len(lexRank))
	for i, h := range vector {
		if _, dup := byID[h.ID]; dup {
			continue
		}
		byID[h.ID] = &Fused{
			Row:        h.Row,
			Score:      1 / float64(k+i+1),
			VectorRank: i + 1,
		}
	}
	for id, rank := range lexRank {
		f, ok := byID[id]
		if !ok {
			f = &Fused{Row: lexRow[id]}
			byID[id] = f
		}
		f.LexicalRank = rank
		f.Score += 1 / float64(k+rank)
	}

	out := make([]Fused, 0, len(byID))
	for _, f := range byID {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		if out[i].Ordinal != out[j].Ordinal {
			return out[i].Ordinal < out[j].Ordinal
		}
		return out[i].ID < out[j].ID
	})
	return out
}

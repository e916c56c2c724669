package embed

import (
	"context"
	"math"

	"github.com/Aman-CERP/amanfind/internal/tokenize"
)

// Logit weights for LexicalReranker.
const (
	coverageWeight  = 6.0
	proximityWeight = 2.0
	cosineWeight    = 4.0
	logitBias       = -5.0
)

// LexicalReranker scores query/candidate pairs by term coverage, term
// proximity and embedding similarity. Scores are logits: a candidate that
// contains every query term close together and is semantically near the
// query scores well above zero.
type LexicalReranker struct {
	embedder Embedder
}

var _ Reranker = (*LexicalReranker)(nil)

// NewLexicalReranker creates a reranker. A nil embedder drops the
// similarity feature.
func NewLexicalReranker(embedder Embedder) *LexicalReranker {
	return &LexicalReranker{embedder: embedder}
}

// Rerank returns one logit per doc.
func (r *LexicalReranker) Rerank(ctx context.Context, query string, docs []string) ([]float64, error) {
	scores := make([]float64, len(docs))
	if len(docs) == 0 {
		return scores, nil
	}

	qTerms := unique(tokenize.Terms(query))

	cos := make([]float64, len(docs))
	if r.embedder != nil {
		qv, err := r.embedder.EmbedBatch(ctx, []string{query}, RoleQuery)
		if err != nil {
			return nil, err
		}
		dv, err := r.embedder.EmbedBatch(ctx, docs, RoleIndex)
		if err != nil {
			return nil, err
		}
		for i := range docs {
			cos[i] = math.Max(0, Cosine(qv[0], dv[i]))
		}
	}

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cov, prox := termFeatures(qTerms, tokenize.Tokenize(doc))
		scores[i] = coverageWeight*cov + proximityWeight*prox + cosineWeight*cos[i] + logitBias
	}
	return scores, nil
}

// Logistic maps a logit into (0, 1).
func Logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// termFeatures returns the fraction of query terms present in doc and a
// proximity score: matched terms divided by the shortest window of doc
// tokens that contains all of them.
func termFeatures(qTerms, docTokens []string) (coverage, proximity float64) {
	if len(qTerms) == 0 || len(docTokens) == 0 {
		return 0, 0
	}
	want := make(map[string]int, len(qTerms))
	for i, t := range qTerms {
		want[t] = i
	}

	seen := make(map[int]bool)
	for _, tok := range docTokens {
		if id, ok := want[tok]; ok {
			seen[id] = true
		}
	}
	matched := len(seen)
	if matched == 0 {
		return 0, 0
	}
	coverage = float64(matched) / float64(len(qTerms))

	// Sliding window over doc tokens covering every matched term.
	counts := make(map[int]int, matched)
	have := 0
	best := math.MaxInt
	left := 0
	for right, tok := range docTokens {
		id, ok := want[tok]
		if !ok {
			continue
		}
		counts[id]++
		if counts[id] == 1 {
			have++
		}
		for have == matched {
			if w := right - left + 1; w < best {
				best = w
			}
			if lid, ok := want[docTokens[left]]; ok {
				counts[lid]--
				if counts[lid] == 0 {
					have--
				}
			}
			left++
		}
	}
	proximity = float64(matched) / float64(best)
	return coverage, proximity
}

func unique(terms []string) []string {
	seen := make(map[string]bool, len(terms))
	out := terms[:0:0]
	for _, t := range terms {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

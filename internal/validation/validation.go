// Package validation runs retrieval quality suites against a live index.
//
// A suite is a YAML file of queries and the documents expected near the
// top of their results, split into tiers:
//
//	tier1:     must pass; a failure fails the run
//	tier2:     tracked but advisory
//	negative:  must not surface the listed paths, and may be rejected
//
// Suites are data, so expectations can change without a rebuild.
package validation

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/amanfind/internal/search"
)

// DefaultTopK is how many results are checked when a query sets none.
const DefaultTopK = 10

// QuerySpec is one query and its expectation.
type QuerySpec struct {
	ID        string   `yaml:"id" json:"id"`
	Name      string   `yaml:"name" json:"name"`
	Query     string   `yaml:"query" json:"query"`
	Container string   `yaml:"container,omitempty" json:"container,omitempty"`
	TopK      int      `yaml:"top_k,omitempty" json:"top_k,omitempty"`
	Expected  []string `yaml:"expected" json:"expected"` // path substrings
	Notes     string   `yaml:"notes,omitempty" json:"notes,omitempty"`
	Tier      int      `yaml:"-" json:"tier"` // 0 for negative
}

// Suite holds every query of a suite file.
type Suite struct {
	Tier1    []QuerySpec `yaml:"tier1"`
	Tier2    []QuerySpec `yaml:"tier2"`
	Negative []QuerySpec `yaml:"negative"`
}

// LoadSuite reads and parses a suite file.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite %s: %w", path, err)
	}
	return ParseSuite(data)
}

// ParseSuite decodes a suite and checks that IDs are present and unique.
func ParseSuite(data []byte) (*Suite, error) {
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse suite: %w", err)
	}

	seen := make(map[string]bool)
	check := func(specs []QuerySpec, tier int) error {
		for i := range specs {
			specs[i].Tier = tier
			id := specs[i].ID
			if id == "" {
				return fmt.Errorf("query %q has no id", specs[i].Query)
			}
			if seen[id] {
				return fmt.Errorf("duplicate query id %s", id)
			}
			seen[id] = true
			if tier > 0 && len(specs[i].Expected) == 0 {
				return fmt.Errorf("query %s expects nothing", id)
			}
		}
		return nil
	}
	if err := check(s.Tier1, 1); err != nil {
		return nil, err
	}
	if err := check(s.Tier2, 2); err != nil {
		return nil, err
	}
	if err := check(s.Negative, 0); err != nil {
		return nil, err
	}
	if len(seen) == 0 {
		return nil, fmt.Errorf("suite has no queries")
	}
	return &s, nil
}

// Searcher is the part of the engine a suite needs.
type Searcher interface {
	Search(ctx context.Context, req search.Request) (search.Response, error)
}

// TestResult is the outcome of one query.
type TestResult struct {
	Spec       QuerySpec     `json:"spec"`
	Passed     bool          `json:"passed"`
	Duration   time.Duration `json:"duration_ns"`
	TopResults []string      `json:"top_results"`
	MatchedAt  int           `json:"matched_at"` // rank of the first match, -1 if none
	Error      string        `json:"error,omitempty"`
}

// Result is a whole suite run.
type Result struct {
	Timestamp time.Time     `json:"timestamp"`
	Container string        `json:"container"`
	Tier1     []TestResult  `json:"tier1"`
	Tier2     []TestResult  `json:"tier2"`
	Negative  []TestResult  `json:"negative"`
	Tier1Pass int           `json:"tier1_pass"`
	Tier2Pass int           `json:"tier2_pass"`
	NegPass   int           `json:"negative_pass"`
	MeanRecip float64       `json:"mrr"`
	TotalTime time.Duration `json:"total_ns"`
}

// Passed reports whether every tier 1 and negative query passed.
func (r *Result) Passed() bool {
	return r.Tier1Pass == len(r.Tier1) && r.NegPass == len(r.Negative)
}

// Validator runs suites through a Searcher.
type Validator struct {
	searcher  Searcher
	container string
	topK      int
}

// Option configures a Validator.
type Option func(*Validator)

// WithContainer sets the container for queries that name none.
func WithContainer(name string) Option {
	return func(v *Validator) { v.container = name }
}

// WithTopK sets the depth checked for queries that set none.
func WithTopK(k int) Option {
	return func(v *Validator) {
		if k > 0 {
			v.topK = k
		}
	}
}

// New creates a Validator.
func New(s Searcher, opts ...Option) *Validator {
	v := &Validator{searcher: s, topK: DefaultTopK}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// RunQuery executes one query and checks its expectation.
func (v *Validator) RunQuery(ctx context.Context, spec QuerySpec) TestResult {
	res := TestResult{Spec: spec, MatchedAt: -1, TopResults: []string{}}

	container := spec.Container
	if container == "" {
		container = v.container
	}
	topK := spec.TopK
	if topK <= 0 {
		topK = v.topK
	}

	start := time.Now()
	resp, err := v.searcher.Search(ctx, search.Request{Container: container, Query: spec.Query, TopK: topK})
	res.Duration = time.Since(start)
	if err != nil {
		// A rejected negative query is a pass.
		res.Passed = spec.Tier == 0 && ctx.Err() == nil
		res.Error = err.Error()
		return res
	}

	for _, r := range resp.Results {
		res.TopResults = append(res.TopResults, r.Path)
	}
	res.MatchedAt = firstMatch(res.TopResults, spec.Expected)
	if spec.Tier == 0 {
		res.Passed = res.MatchedAt < 0
	} else {
		res.Passed = res.MatchedAt >= 0
	}
	return res
}

// RunAll executes every query of s in tier order.
func (v *Validator) RunAll(ctx context.Context, s *Suite) *Result {
	out := &Result{
		Timestamp: time.Now(),
		Container: v.container,
		Tier1:     []TestResult{},
		Tier2:     []TestResult{},
		Negative:  []TestResult{},
	}
	var rr float64
	var ranked int
	run := func(specs []QuerySpec, dst *[]TestResult, pass *int) {
		for _, spec := range specs {
			if ctx.Err() != nil {
				return
			}
			tr := v.RunQuery(ctx, spec)
			*dst = append(*dst, tr)
			out.TotalTime += tr.Duration
			if tr.Passed {
				*pass++
			}
			if spec.Tier > 0 {
				ranked++
				if tr.MatchedAt >= 0 {
					rr += 1 / float64(tr.MatchedAt+1)
				}
			}
		}
	}
	run(s.Tier1, &out.Tier1, &out.Tier1Pass)
	run(s.Tier2, &out.Tier2, &out.Tier2Pass)
	run(s.Negative, &out.Negative, &out.NegPass)
	if ranked > 0 {
		out.MeanRecip = rr / float64(ranked)
	}
	return out
}

// firstMatch returns the rank of the first path containing any expected
// substring, or -1.
func firstMatch(paths, expected []string) int {
	for i, p := range paths {
		for _, exp := range expected {
			if exp != "" && strings.Contains(p, exp) {
				return i
			}
		}
	}
	return -1
}

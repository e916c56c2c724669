package validation

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanfind/internal/search"
)

// fakeSearcher answers from a map of query to ranked paths.
type fakeSearcher struct {
	results map[string][]string
	reqs    []search.Request
}

func (f *fakeSearcher) Search(_ context.Context, req search.Request) (search.Response, error) {
	f.reqs = append(f.reqs, req)
	if strings.TrimSpace(req.Query) == "" {
		return search.Response{}, errors.New("query is empty")
	}
	var resp search.Response
	for _, p := range f.results[req.Query] {
		if len(resp.Results) == req.TopK {
			break
		}
		resp.Results = append(resp.Results, search.Result{Path: p})
	}
	return resp, nil
}

func TestLoadSuite_Testdata(t *testing.T) {
	s, err := LoadSuite(filepath.Join("testdata", "suite.yaml"))
	require.NoError(t, err)

	require.Len(t, s.Tier1, 2)
	require.Len(t, s.Tier2, 1)
	require.Len(t, s.Negative, 2)
	assert.Equal(t, 1, s.Tier1[0].Tier)
	assert.Equal(t, 2, s.Tier2[0].Tier)
	assert.Equal(t, 0, s.Negative[1].Tier)
	assert.Equal(t, 1, s.Negative[1].TopK)
	assert.Equal(t, []string{"billing/invoices.md"}, s.Tier1[0].Expected)
}

func TestParseSuite_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad yaml", "tier1: [", "failed to parse suite"},
		{"empty", "tier1: []", "no queries"},
		{"missing id", "tier1:\n  - query: x\n    expected: [a]", "has no id"},
		{"duplicate id", "tier1:\n  - {id: A, query: x, expected: [a]}\ntier2:\n  - {id: A, query: y, expected: [b]}", "duplicate query id A"},
		{"ranked without expectation", "tier2:\n  - {id: B, query: x}", "expects nothing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSuite([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadSuite_MissingFile(t *testing.T) {
	_, err := LoadSuite(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidator_RunQuery(t *testing.T) {
	fs := &fakeSearcher{results: map[string][]string{
		"invoices": {"/docs/notes.md", "/docs/billing/invoices.md"},
		"garden":   {"/docs/garden.txt"},
	}}
	v := New(fs, WithContainer("Docs"), WithTopK(5))
	ctx := context.Background()

	tests := []struct {
		name      string
		spec      QuerySpec
		passed    bool
		matchedAt int
	}{
		{"ranked hit", QuerySpec{ID: "a", Query: "invoices", Expected: []string{"billing/"}, Tier: 1}, true, 1},
		{"ranked miss", QuerySpec{ID: "b", Query: "garden", Expected: []string{"billing/"}, Tier: 1}, false, -1},
		{"depth cut", QuerySpec{ID: "c", Query: "invoices", TopK: 1, Expected: []string{"billing/"}, Tier: 2}, false, -1},
		{"negative clean", QuerySpec{ID: "d", Query: "garden", Expected: []string{"billing/"}}, true, -1},
		{"negative leak", QuerySpec{ID: "e", Query: "invoices", Expected: []string{"billing/"}}, false, 1},
		{"negative rejected", QuerySpec{ID: "f", Query: "  "}, true, -1},
		{"ranked error", QuerySpec{ID: "g", Query: "", Expected: []string{"x"}, Tier: 1}, false, -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := v.RunQuery(ctx, tt.spec)
			assert.Equal(t, tt.passed, res.Passed)
			assert.Equal(t, tt.matchedAt, res.MatchedAt)
		})
	}

	// Queries without their own settings use the validator defaults
	assert.Equal(t, "Docs", fs.reqs[0].Container)
	assert.Equal(t, 5, fs.reqs[0].TopK)
	assert.Equal(t, 1, fs.reqs[2].TopK)
}

func TestValidator_RunAll(t *testing.T) {
	// Given a suite where one tier 2 query misses
	fs := &fakeSearcher{results: map[string][]string{
		"q3 invoices customers": {"/d/billing/invoices.md", "/d/garden.txt"},
		"tomatoes watering":     {"/d/misc.md", "/d/garden.txt"},
		"money owed by clients": {"/d/garden.txt"},
		"tomatoes":              {"/d/garden.txt"},
	}}
	s, err := LoadSuite(filepath.Join("testdata", "suite.yaml"))
	require.NoError(t, err)

	// When running it
	res := New(fs, WithContainer("Docs")).RunAll(context.Background(), s)

	// Then tier 1 and negatives pass and MRR averages ranked tiers
	assert.Equal(t, 2, res.Tier1Pass)
	assert.Equal(t, 0, res.Tier2Pass)
	assert.Equal(t, 2, res.NegPass)
	assert.True(t, res.Passed())
	assert.InDelta(t, (1.0+0.5+0)/3, res.MeanRecip, 1e-9)
	assert.Equal(t, "Docs", res.Container)
	require.Len(t, res.Negative, 2)
	assert.NotEmpty(t, res.Negative[0].Error)
}

func TestValidator_RunAllStopsOnCancel(t *testing.T) {
	fs := &fakeSearcher{}
	s := &Suite{Tier1: []QuerySpec{{ID: "a", Query: "x", Expected: []string{"y"}, Tier: 1}}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := New(fs).RunAll(ctx, s)

	assert.Empty(t, res.Tier1)
	assert.Empty(t, fs.reqs)
}

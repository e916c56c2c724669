// Package telemetry records local query telemetry: how often each query
// kind runs, how long it takes, which terms recur and which queries find
// nothing. Everything is kept in memory and flushed to the metadata
// database. No data leaves the machine.
package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/amanfind/internal/tokenize"
)

// Kind names the operation that ran a query.
type Kind string

const (
	KindSearch  Kind = "search"
	KindRelated Kind = "related"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyBuckets lists the buckets from fastest to slowest.
var LatencyBuckets = []LatencyBucket{BucketP10, BucketP50, BucketP100, BucketP500, BucketP1000}

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one completed query.
type QueryEvent struct {
	Container   string
	Kind        Kind
	Query       string
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// IsZeroResult reports whether the query found nothing.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// ExtractTerms returns the query's searchable terms: lowercased, stop
// words removed, at least three bytes long.
func ExtractTerms(query string) []string {
	var terms []string
	for _, t := range tokenize.Terms(query) {
		if len(t) >= 3 {
			terms = append(terms, t)
		}
	}
	return terms
}

// KindCount aggregates the queries of one kind.
type KindCount struct {
	Queries     int64 `json:"queries"`
	ZeroResults int64 `json:"zero_results"`
	Repeats     int64 `json:"repeats"`
}

// TermCount is a term and how often it was queried.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// ZeroResult is a query that found nothing.
type ZeroResult struct {
	Container string    `json:"container"`
	Query     string    `json:"query"`
	At        time.Time `json:"at"`
}

// Snapshot is an immutable view of query telemetry.
type Snapshot struct {
	Kinds       map[Kind]KindCount      `json:"kinds"`
	Latency     map[LatencyBucket]int64 `json:"latency"`
	TopTerms    []TermCount             `json:"top_terms"`
	ZeroResults []ZeroResult            `json:"zero_results"`
	Since       time.Time               `json:"since"`
}

// Total returns the number of queries across kinds.
func (s *Snapshot) Total() int64 {
	var n int64
	for _, c := range s.Kinds {
		n += c.Queries
	}
	return n
}

// ZeroResultPercentage returns the share of queries that found nothing.
func (s *Snapshot) ZeroResultPercentage() float64 {
	total := s.Total()
	if total == 0 {
		return 0
	}
	var zero int64
	for _, c := range s.Kinds {
		zero += c.ZeroResults
	}
	return float64(zero) / float64(total) * 100
}

// RepeatPercentage returns the share of queries seen recently before.
func (s *Snapshot) RepeatPercentage() float64 {
	total := s.Total()
	if total == 0 {
		return 0
	}
	var rep int64
	for _, c := range s.Kinds {
		rep += c.Repeats
	}
	return float64(rep) / float64(total) * 100
}

// Store persists flushed telemetry.
type Store interface {
	// AddKindCounts adds to the day's per-kind counters.
	AddKindCounts(ctx context.Context, date string, counts map[Kind]KindCount) error

	// AddLatencyCounts adds to the day's latency histogram.
	AddLatencyCounts(ctx context.Context, date string, counts map[LatencyBucket]int64) error

	// AddTermCounts adds to the term frequency table.
	AddTermCounts(ctx context.Context, terms map[string]int64) error

	// AddZeroResults appends zero-result queries, keeping the newest only.
	AddZeroResults(ctx context.Context, queries []ZeroResult) error

	// Report aggregates the days from..to (YYYY-MM-DD, inclusive) with at
	// most limit terms and zero-result queries.
	Report(ctx context.Context, from, to string, limit int) (*Snapshot, error)
}

// Config tunes a Metrics collector.
type Config struct {
	TopTerms      int           // terms tracked in memory
	ZeroResults   int           // zero-result queries kept in memory
	RecentQueries int           // window for repeat detection
	FlushInterval time.Duration // 0 disables the background flush
}

// DefaultConfig returns the defaults.
func DefaultConfig() Config {
	return Config{
		TopTerms:      100,
		ZeroResults:   100,
		RecentQueries: 500,
		FlushInterval: 60 * time.Second,
	}
}

// pending holds what has not reached the store yet.
type pending struct {
	kinds   map[Kind]KindCount
	latency map[LatencyBucket]int64
	terms   map[string]int64
	zero    []ZeroResult
}

func newPending() pending {
	return pending{
		kinds:   make(map[Kind]KindCount),
		latency: make(map[LatencyBucket]int64),
		terms:   make(map[string]int64),
	}
}

func (p pending) empty() bool {
	return len(p.kinds) == 0 && len(p.terms) == 0 && len(p.zero) == 0
}

// merge folds q into p.
func (p *pending) merge(q pending) {
	for k, c := range q.kinds {
		cur := p.kinds[k]
		cur.Queries += c.Queries
		cur.ZeroResults += c.ZeroResults
		cur.Repeats += c.Repeats
		p.kinds[k] = cur
	}
	for b, n := range q.latency {
		p.latency[b] += n
	}
	for t, n := range q.terms {
		p.terms[t] += n
	}
	p.zero = append(q.zero, p.zero...)
}

// Metrics collects query telemetry. A nil *Metrics records nothing, so
// callers need not check whether telemetry is enabled. Safe for
// concurrent use.
type Metrics struct {
	mu sync.Mutex

	kinds       map[Kind]KindCount
	latency     map[LatencyBucket]int64
	topTerms    *lru.Cache[string, int64]
	zeroResults *CircularBuffer[ZeroResult]
	recent      *lru.Cache[string, struct{}]
	since       time.Time
	pending     pending

	store  Store
	stopCh chan struct{}
	done   chan struct{}
	closed bool
}

// New creates a collector. With a nil store metrics are kept in memory
// only.
func New(store Store, cfg Config) *Metrics {
	def := DefaultConfig()
	if cfg.TopTerms <= 0 {
		cfg.TopTerms = def.TopTerms
	}
	if cfg.ZeroResults <= 0 {
		cfg.ZeroResults = def.ZeroResults
	}
	if cfg.RecentQueries <= 0 {
		cfg.RecentQueries = def.RecentQueries
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTerms)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueries)

	m := &Metrics{
		kinds:       make(map[Kind]KindCount),
		latency:     make(map[LatencyBucket]int64),
		topTerms:    topTerms,
		zeroResults: NewCircularBuffer[ZeroResult](cfg.ZeroResults),
		recent:      recent,
		since:       time.Now(),
		pending:     newPending(),
		store:       store,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}

	if cfg.FlushInterval > 0 && store != nil {
		go m.flushLoop(cfg.FlushInterval)
	} else {
		close(m.done)
	}
	return m
}

func (m *Metrics) flushLoop(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.Flush(context.Background()); err != nil {
				slog.Warn("telemetry_flush_failed", slog.String("error", err.Error()))
			}
		case <-m.stopCh:
			return
		}
	}
}

// Record captures one completed query.
func (m *Metrics) Record(ev QueryEvent) {
	if m == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	terms := ExtractTerms(ev.Query)
	key := hashQuery(ev.Kind, ev.Query)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	delta := KindCount{Queries: 1}
	if ev.IsZeroResult() {
		delta.ZeroResults = 1
		zr := ZeroResult{Container: ev.Container, Query: ev.Query, At: ev.Timestamp}
		m.zeroResults.Add(zr)
		m.pending.zero = append(m.pending.zero, zr)
	}
	if _, seen := m.recent.Get(key); seen {
		delta.Repeats = 1
	}
	m.recent.Add(key, struct{}{})

	addKind(m.kinds, ev.Kind, delta)
	addKind(m.pending.kinds, ev.Kind, delta)

	bucket := LatencyToBucket(ev.Latency)
	m.latency[bucket]++
	m.pending.latency[bucket]++

	for _, t := range terms {
		n, _ := m.topTerms.Get(t)
		m.topTerms.Add(t, n+1)
		m.pending.terms[t]++
	}
}

func addKind(dst map[Kind]KindCount, k Kind, d KindCount) {
	c := dst[k]
	c.Queries += d.Queries
	c.ZeroResults += d.ZeroResults
	c.Repeats += d.Repeats
	dst[k] = c
}

// hashQuery normalizes a query for repeat detection.
func hashQuery(kind Kind, query string) string {
	normalized := string(kind) + "\x00" + strings.ToLower(strings.TrimSpace(query))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16])
}

// Snapshot returns what this collector has seen since it was created.
func (m *Metrics) Snapshot() *Snapshot {
	if m == nil {
		return &Snapshot{Kinds: map[Kind]KindCount{}, Latency: map[LatencyBucket]int64{}}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := &Snapshot{
		Kinds:       make(map[Kind]KindCount, len(m.kinds)),
		Latency:     make(map[LatencyBucket]int64, len(m.latency)),
		ZeroResults: m.zeroResults.Items(),
		Since:       m.since,
	}
	for k, v := range m.kinds {
		snap.Kinds[k] = v
	}
	for k, v := range m.latency {
		snap.Latency[k] = v
	}
	for _, key := range m.topTerms.Keys() {
		if n, ok := m.topTerms.Peek(key); ok {
			snap.TopTerms = append(snap.TopTerms, TermCount{Term: key, Count: n})
		}
	}
	SortTerms(snap.TopTerms)
	return snap
}

// SortTerms orders terms by count, then alphabetically.
func SortTerms(terms []TermCount) {
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})
}

// Flush writes everything recorded since the last flush to the store. On
// failure the unwritten counts are kept for the next attempt.
func (m *Metrics) Flush(ctx context.Context) error {
	if m == nil || m.store == nil {
		return nil
	}
	m.mu.Lock()
	batch := m.pending
	m.pending = newPending()
	m.mu.Unlock()

	if batch.empty() {
		return nil
	}
	if err := m.write(ctx, batch); err != nil {
		m.mu.Lock()
		m.pending.merge(batch)
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *Metrics) write(ctx context.Context, p pending) error {
	today := time.Now().Format(dateLayout)
	if err := m.store.AddKindCounts(ctx, today, p.kinds); err != nil {
		return err
	}
	if err := m.store.AddLatencyCounts(ctx, today, p.latency); err != nil {
		return err
	}
	if err := m.store.AddTermCounts(ctx, p.terms); err != nil {
		return err
	}
	return m.store.AddZeroResults(ctx, p.zero)
}

// Report combines persisted telemetry for the last days days with what
// has not been flushed yet.
func (m *Metrics) Report(ctx context.Context, days, limit int) (*Snapshot, error) {
	if m == nil || m.store == nil {
		return m.Snapshot(), nil
	}
	if err := m.Flush(ctx); err != nil {
		return nil, err
	}
	if days <= 0 {
		days = 1
	}
	now := time.Now()
	from := now.AddDate(0, 0, -(days - 1)).Format(dateLayout)
	return m.store.Report(ctx, from, now.Format(dateLayout), limit)
}

// Close stops the background flush and writes what is left. The store
// is not closed.
func (m *Metrics) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	<-m.done
	return m.Flush(context.Background())
}

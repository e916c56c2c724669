package search

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// NewSessionID returns a fresh session id for callers that issue a stream
// of queries, such as search-as-you-type.
func NewSessionID() string {
	return uuid.NewString()
}

// sessions tracks the in-flight search per session id.
type sessions struct {
	mu       sync.Mutex
	inflight map[string]inflight
}

type inflight struct {
	token  string
	cancel context.CancelCauseFunc
}

func newSessions() *sessions {
	return &sessions{inflight: make(map[string]inflight)}
}

// begin derives a context for a search on session. Any earlier search on
// the session is cancelled with ErrSuperseded. The returned func must be
// called when the search ends.
func (s *sessions) begin(ctx context.Context, session string) (context.Context, func()) {
	if session == "" {
		return ctx, func() {}
	}
	ctx, cancel := context.WithCancelCause(ctx)
	token := uuid.NewString()

	s.mu.Lock()
	if prev, ok := s.inflight[session]; ok {
		prev.cancel(ErrSuperseded)
	}
	s.inflight[session] = inflight{token: token, cancel: cancel}
	s.mu.Unlock()

	return ctx, func() {
		s.mu.Lock()
		if cur, ok := s.inflight[session]; ok && cur.token == token {
			delete(s.inflight, session)
		}
		s.mu.Unlock()
		cancel(nil)
	}
}

func (s *sessions) active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

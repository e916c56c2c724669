package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/amanfind/internal/engine"
	"github.com/Aman-CERP/amanfind/internal/search"
)

// Handler answers daemon requests. *engine.Engine satisfies it.
type Handler interface {
	Search(ctx context.Context, req search.Request) (search.Response, error)
	IndexStatus(ctx context.Context, container string) (engine.Status, error)
	ListContainers() []engine.ContainerInfo
	Model() (string, int)
}

// Server listens on a Unix socket and serves one request per connection.
type Server struct {
	cfg      Config
	handler  Handler
	started  time.Time
	watching atomic.Bool

	mu       sync.Mutex
	listener net.Listener
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer creates a server for h.
func NewServer(cfg Config, h Handler) *Server {
	return &Server{cfg: cfg, handler: h}
}

// SetWatching records whether the file watcher is running, for status.
func (s *Server) SetWatching(on bool) {
	s.watching.Store(on)
}

// ListenAndServe accepts connections until ctx is done, then waits for
// in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	// A socket left by a crashed daemon blocks Listen.
	_ = os.Remove(s.cfg.SocketPath)

	ln, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.SocketPath, err)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0o600); err != nil {
		_ = ln.Close()
		return fmt.Errorf("failed to restrict socket: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.started = time.Now()
	s.mu.Unlock()

	defer func() {
		_ = ln.Close()
		_ = os.Remove(s.cfg.SocketPath)
	}()

	slog.Info("daemon_listening", slog.String("socket", s.cfg.SocketPath))

	stop := context.AfterFunc(ctx, func() { _ = s.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed() {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			slog.Warn("daemon_accept_failed", slog.String("error", err.Error()))
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
	s.wg.Wait()
	return ctx.Err()
}

func (s *Server) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shutdown
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.cfg.Timeout)); err != nil {
		slog.Debug("daemon_deadline_failed", slog.String("error", err.Error()))
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	enc := json.NewEncoder(conn)
	var req Request
	if err := json.NewDecoder(conn).Decode(&req); err != nil {
		_ = enc.Encode(NewErrorResponse("", ErrCodeParseError, "failed to parse request"))
		return
	}
	if req.JSONRPC != "2.0" {
		_ = enc.Encode(NewErrorResponse(req.ID, ErrCodeInvalidRequest, "jsonrpc must be 2.0"))
		return
	}

	start := time.Now()
	resp := s.handleRequest(ctx, req)
	slog.Debug("daemon_request",
		slog.String("method", req.Method),
		slog.Duration("duration", time.Since(start)),
		slog.Bool("ok", resp.Error == nil))
	if err := enc.Encode(resp); err != nil {
		slog.Debug("daemon_reply_failed", slog.String("error", err.Error()))
	}
}

func (s *Server) handleRequest(ctx context.Context, req Request) Response {
	switch req.Method {
	case MethodPing:
		return NewSuccessResponse(req.ID, PingResult{Pong: true})
	case MethodStatus:
		return NewSuccessResponse(req.ID, s.status())
	case MethodSearch:
		return s.handleSearch(ctx, req)
	case MethodIndexStatus:
		return s.handleIndexStatus(ctx, req)
	default:
		return NewErrorResponse(req.ID, ErrCodeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) handleSearch(ctx context.Context, req Request) Response {
	var params SearchParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to decode params")
	}
	if err := params.Validate(); err != nil {
		return NewEngineErrorResponse(req.ID, ErrCodeInvalidParams, err)
	}
	resp, err := s.handler.Search(ctx, params.Request())
	if err != nil {
		return NewEngineErrorResponse(req.ID, ErrCodeSearchFailed, err)
	}
	return NewSuccessResponse(req.ID, resp)
}

func (s *Server) handleIndexStatus(ctx context.Context, req Request) Response {
	var params IndexStatusParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return NewErrorResponse(req.ID, ErrCodeInvalidParams, "failed to decode params")
		}
	}
	st, err := s.handler.IndexStatus(ctx, params.Container)
	if err != nil {
		return NewEngineErrorResponse(req.ID, ErrCodeStatusFailed, err)
	}
	return NewSuccessResponse(req.ID, st)
}

func (s *Server) status() StatusResult {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	model, dims := s.handler.Model()
	infos := s.handler.ListContainers()
	names := make([]string, 0, len(infos))
	for _, c := range infos {
		names = append(names, c.Name)
	}
	return StatusResult{
		Running:    true,
		PID:        os.Getpid(),
		Uptime:     time.Since(started).Round(time.Second).String(),
		Model:      model,
		Dims:       dims,
		Containers: names,
		Watching:   s.watching.Load(),
	}
}

// Close stops accepting connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdown = true
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// Service is what the daemon runs: a Handler that can also follow
// filesystem changes.
type Service interface {
	Handler
	Watch(ctx context.Context) error
}

// Run takes the PID file, then serves requests and watches every
// container until ctx is done. The watcher stopping on its own does not
// stop the server.
func Run(ctx context.Context, cfg Config, svc Service) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.EnsureDir(); err != nil {
		return err
	}
	pid := NewPIDFile(cfg.PIDPath)
	if err := pid.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := pid.Release(); err != nil {
			slog.Warn("daemon_pidfile_release_failed", slog.String("error", err.Error()))
		}
	}()

	srv := NewServer(cfg, svc)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	g.Go(func() error {
		srv.SetWatching(true)
		defer srv.SetWatching(false)
		if err := svc.Watch(gctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("daemon_watch_stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	slog.Info("daemon_started", slog.String("pid_file", cfg.PIDPath))
	err := g.Wait()
	slog.Info("daemon_stopped")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stop signals the running daemon and waits up to the grace period for
// it to exit.
func Stop(ctx context.Context, cfg Config) error {
	pid := NewPIDFile(cfg.PIDPath)
	if !pid.IsRunning() {
		return ErrNotRunning
	}
	if err := pid.Signal(syscall.SIGTERM); err != nil {
		return err
	}

	deadline := time.NewTimer(cfg.ShutdownGracePeriod)
	defer deadline.Stop()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("daemon did not exit within %s", cfg.ShutdownGracePeriod)
		case <-tick.C:
			if !pid.IsRunning() {
				return nil
			}
		}
	}
}

// ErrNotRunning is returned by Stop when no daemon is running.
var ErrNotRunning = errors.New("daemon is not running")

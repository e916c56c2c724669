package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanfind/internal/daemon"
	"github.com/Aman-CERP/amanfind/internal/engine"
	"github.com/Aman-CERP/amanfind/internal/logging"
	"github.com/Aman-CERP/amanfind/internal/ui"
)

func newDaemonCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the background indexing daemon",
		Long: `The daemon keeps every container indexed as files change and answers
searches from the CLI without reloading the model.

Examples:
  amanfind daemon start      # start in the background
  amanfind daemon start -f   # run in the foreground
  amanfind daemon status
  amanfind daemon stop`,
	}
	cmd.AddCommand(newDaemonStartCmd(a), newDaemonStopCmd(a), newDaemonStatusCmd(a))
	return cmd
}

func newDaemonStartCmd(a *app) *cobra.Command {
	var foreground bool
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dcfg, err := a.daemonConfig()
			if err != nil {
				return err
			}
			if daemon.NewClient(dcfg).IsRunning() {
				return printf(cmd, "Daemon is already running\n")
			}
			if foreground {
				return a.runDaemon(cmd, dcfg)
			}
			return a.spawnDaemon(cmd, dcfg)
		},
	}
	cmd.Flags().BoolVarP(&foreground, "foreground", "f", false, "Run in the foreground")
	return cmd
}

func newDaemonStopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dcfg, err := a.daemonConfig()
			if err != nil {
				return err
			}
			err = daemon.Stop(cmd.Context(), dcfg)
			if errors.Is(err, daemon.ErrNotRunning) {
				return printf(cmd, "Daemon is not running\n")
			}
			if err != nil {
				return err
			}
			return printf(cmd, "Daemon stopped\n")
		},
	}
}

func newDaemonStatusCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dcfg, err := a.daemonConfig()
			if err != nil {
				return err
			}
			r := ui.NewResultsRenderer(cmd.OutOrStdout(), a.colorless(cmd.OutOrStdout()))
			client := daemon.NewClient(dcfg)
			if !client.IsRunning() {
				if jsonOut {
					return r.JSON(daemon.StatusResult{Running: false, Containers: []string{}})
				}
				return printf(cmd, "Daemon is not running\nRun 'amanfind daemon start' to start it\n")
			}
			st, err := client.Status(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				return r.JSON(st)
			}
			return printf(cmd, "Daemon is running\n  PID:        %d\n  Uptime:     %s\n  Model:      %s (%d dims)\n  Containers: %d\n  Watching:   %t\n  Socket:     %s\n",
				st.PID, st.Uptime, st.Model, st.Dims, len(st.Containers), st.Watching, dcfg.SocketPath)
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

// daemonConfig places the daemon files in the configured data dir.
func (a *app) daemonConfig() (daemon.Config, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return daemon.Config{}, err
	}
	return daemon.DefaultConfig(cfg.DataDir), nil
}

// runningDaemon returns a client when a daemon serves this data dir.
func (a *app) runningDaemon() *daemon.Client {
	dcfg, err := a.daemonConfig()
	if err != nil {
		return nil
	}
	c := daemon.NewClient(dcfg)
	if !c.IsRunning() {
		return nil
	}
	return c
}

func (a *app) runDaemon(cmd *cobra.Command, dcfg daemon.Config) error {
	// The daemon always keeps a log file; --debug only lowers the level.
	lcfg := logging.DebugConfig()
	if !a.debug {
		lcfg.Level = "info"
	}
	logger, cleanup, err := logging.Setup(lcfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	if a.logCleanup != nil {
		a.logCleanup()
	}
	a.logCleanup = cleanup
	slog.SetDefault(logger)

	if err := printf(cmd, "Daemon running on %s; Ctrl+C to stop\nLogs: %s\n", dcfg.SocketPath, lcfg.FilePath); err != nil {
		return err
	}
	return a.withEngine(cmd.Context(), func(e *engine.Engine) error {
		return daemon.Run(cmd.Context(), dcfg, e)
	})
}

// spawnDaemon re-executes the binary in the foreground mode, detached
// from the terminal, and waits for the socket to answer.
func (a *app) spawnDaemon(cmd *cobra.Command, dcfg daemon.Config) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to locate executable: %w", err)
	}
	args := []string{"daemon", "start", "--foreground", "--config", a.configPath}
	if a.dataDir != "" {
		args = append(args, "--data-dir", a.dataDir)
	}
	if a.debug {
		args = append(args, "--debug")
	}
	child := exec.Command(exe, args...)
	child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := child.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	exited := make(chan error, 1)
	go func() { exited <- child.Wait() }()

	client := daemon.NewClient(dcfg)
	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case err := <-exited:
			if err == nil {
				err = errors.New("exit status 0")
			}
			return fmt.Errorf("daemon exited during startup: %w (see %s)", err, logging.DefaultLogPath())
		case <-ctx.Done():
			return fmt.Errorf("daemon did not start within 30s (see %s)", logging.DefaultLogPath())
		case <-tick.C:
			if client.Ping(ctx) == nil {
				return printf(cmd, "Daemon started (pid %d)\n", child.Process.Pid)
			}
		}
	}
}

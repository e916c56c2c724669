// Package cmd provides the amanfind CLI commands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanfind/internal/config"
	"github.com/Aman-CERP/amanfind/internal/engine"
	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
	"github.com/Aman-CERP/amanfind/internal/logging"
	"github.com/Aman-CERP/amanfind/internal/profiling"
	"github.com/Aman-CERP/amanfind/internal/ui"
	"github.com/Aman-CERP/amanfind/pkg/version"
)

// app holds the global flags and what PersistentPreRunE set up.
type app struct {
	configPath string
	dataDir    string
	debug      bool
	noColor    bool
	profile    profiling.Options

	profiler   *profiling.Session
	logCleanup func()
}

// NewRootCmd creates the amanfind command tree.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "amanfind",
		Short: "Local-first document search",
		Long: `amanfind indexes folders of documents, notes and code on this machine
and answers queries with hybrid keyword and semantic search.

Folders are grouped into containers. Each container has its own index.

Examples:
  amanfind containers create Notes --path ~/notes
  amanfind index Notes
  amanfind search "quarterly invoices" --container Notes`,
		Version:           version.Short(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRunE: func(*cobra.Command, []string) error {
			return a.teardown()
		},
	}
	cmd.SetVersionTemplate("amanfind version {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&a.configPath, "config", config.DefaultPath(), "Configuration file")
	pf.StringVar(&a.dataDir, "data-dir", "", "Index directory (overrides data_dir in the config)")
	pf.BoolVar(&a.debug, "debug", false, "Write debug logs to "+logging.DefaultLogPath())
	pf.BoolVar(&a.noColor, "no-color", false, "Disable colored output")
	pf.StringVar(&a.profile.CPU, "profile-cpu", "", "Write a CPU profile to this file")
	pf.StringVar(&a.profile.Heap, "profile-mem", "", "Write a heap profile to this file")
	pf.StringVar(&a.profile.Trace, "profile-trace", "", "Write an execution trace to this file")

	cmd.AddCommand(
		newIndexCmd(a),
		newSearchCmd(a),
		newRelatedCmd(a),
		newReadCmd(a),
		newFilesCmd(a),
		newDiffCmd(a),
		newStatusCmd(a),
		newStatsCmd(a),
		newContainersCmd(a),
		newWatchCmd(a),
		newDaemonCmd(a),
		newLogsCmd(a),
		newConfigCmd(a),
		newDoctorCmd(a),
		newEvalCmd(a),
		newVersionCmd(),
	)
	return cmd
}

// Execute runs the CLI and prints any error for the terminal.
func Execute(ctx context.Context) error {
	root := NewRootCmd()
	err := root.ExecuteContext(ctx)
	if err != nil {
		slog.Debug("command_failed", amerrors.LogAttrs(err)...)
		_, _ = io.WriteString(root.ErrOrStderr(), amerrors.FormatForCLI(err))
	}
	return err
}

func (a *app) setup(*cobra.Command, []string) error {
	cleanup, err := logging.SetupDefault(a.debug)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	a.logCleanup = cleanup
	if a.debug {
		slog.Info("debug_logging_enabled",
			slog.String("log_file", logging.DefaultLogPath()),
			slog.String("version", version.Short()))
	}

	if a.profile.Enabled() {
		a.profiler, err = profiling.Start(a.profile)
		if err != nil {
			return err
		}
	}
	return nil
}

func (a *app) teardown() error {
	var err error
	if a.profiler != nil {
		err = a.profiler.Stop()
		a.profiler = nil
	}
	if a.logCleanup != nil {
		a.logCleanup()
		a.logCleanup = nil
	}
	return err
}

// loadConfig reads the config file and applies --data-dir.
func (a *app) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, amerrors.ConfigError("failed to load configuration", err)
	}
	if a.dataDir != "" {
		cfg.DataDir = a.dataDir
	}
	return cfg, nil
}

// openEngine opens the engine; the caller closes it.
func (a *app) openEngine(ctx context.Context) (*engine.Engine, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	return engine.New(ctx, cfg, engine.WithConfigPath(a.configPath))
}

// withEngine opens the engine, runs fn and closes it.
func (a *app) withEngine(ctx context.Context, fn func(*engine.Engine) error) error {
	e, err := a.openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.Close(); cerr != nil {
			slog.Warn("engine_close_failed", slog.String("error", cerr.Error()))
		}
	}()
	return fn(e)
}

// colorless reports whether styled output should be plain.
func (a *app) colorless(w io.Writer) bool {
	return a.noColor || !ui.IsTTY(w)
}

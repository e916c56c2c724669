package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanfind/internal/engine"
	"github.com/Aman-CERP/amanfind/internal/ui"
)

func newIndexCmd(a *app) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "index [container]",
		Short: "Bring a container's index up to date",
		Long: `Walk the container's indexed paths and index new or changed files.
Unchanged files are skipped and files that disappeared are removed.
Without an argument the active container is indexed.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			return a.withEngine(cmd.Context(), func(e *engine.Engine) error {
				return runIndex(cmd.Context(), cmd, a, e, name, plain)
			})
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Plain progress lines instead of the interactive view")
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, a *app, e *engine.Engine, name string, plain bool) error {
	if name == "" {
		name = e.Config().ActiveContainer
	}
	r := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(),
		ui.WithForcePlain(plain),
		ui.WithNoColor(a.colorless(cmd.OutOrStdout())),
		ui.WithTitle(name)))
	if err := r.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = r.Stop() }()

	sum, err := e.Index(ctx, name, ui.ProgressFunc(r))
	if err != nil {
		r.AddError(ui.ErrorEvent{Err: err})
		return err
	}

	st, serr := e.IndexStatus(ctx, name)
	if serr == nil {
		for _, f := range st.Failed {
			r.AddError(ui.ErrorEvent{Path: f.Path, Err: fileError(f.Error), IsWarn: true})
		}
	}
	model, dims := e.Model()
	r.Complete(ui.StatsFromSummary(sum, model, dims))
	slog.Info("index_command_complete", slog.String("container", name), slog.Int("indexed", sum.Indexed))
	return nil
}

// fileError carries a stored per-file error message.
type fileError string

func (e fileError) Error() string { return string(e) }

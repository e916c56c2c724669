package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanfind/internal/engine"
)

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep every container indexed as files change",
		Long: `Reconcile every container once, then follow changes under all indexed
paths until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd.Context(), func(e *engine.Engine) error {
				if err := printf(cmd, "Watching %d containers; Ctrl+C to stop\n", len(e.ListContainers())); err != nil {
					return err
				}
				err := e.Watch(cmd.Context())
				if errors.Is(err, context.Canceled) {
					slog.Info("watch_stopped")
					return nil
				}
				return err
			})
		},
	}
}

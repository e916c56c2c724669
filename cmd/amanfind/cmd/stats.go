package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanfind/internal/engine"
	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
	"github.com/Aman-CERP/amanfind/internal/ui"
)

func newStatsCmd(a *app) *cobra.Command {
	var (
		jsonOut bool
		days    int
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show query statistics",
		Long: `Display local query telemetry:
  - query counts per kind (search, related)
  - empty and repeated query rates
  - latency distribution
  - top query terms and recent empty queries`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return amerrors.ValidationError("--days must be positive", nil)
			}
			return a.withEngine(cmd.Context(), func(e *engine.Engine) error {
				snap, err := e.QueryStats(cmd.Context(), days, limit)
				if err != nil {
					return err
				}
				r := ui.NewStatsRenderer(cmd.OutOrStdout(), a.colorless(cmd.OutOrStdout()))
				if jsonOut {
					return r.RenderJSON(snap)
				}
				return r.Render(snap)
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to include")
	cmd.Flags().IntVar(&limit, "limit", 10, "Top terms and empty queries to show")
	return cmd
}

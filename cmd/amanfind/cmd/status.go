package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanfind/internal/engine"
	"github.com/Aman-CERP/amanfind/internal/ui"
)

func newStatusCmd(a *app) *cobra.Command {
	var (
		jsonOut bool
		local   bool
	)

	cmd := &cobra.Command{
		Use:   "status [container]",
		Short: "Show a container's index status",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			}
			render := func(st engine.Status) error {
				r := ui.NewStatusRenderer(cmd.OutOrStdout(), a.colorless(cmd.OutOrStdout()))
				if jsonOut {
					return r.RenderJSON(ui.NewStatusInfo(st))
				}
				return r.Render(ui.NewStatusInfo(st))
			}
			// The daemon knows the live indexing state.
			if !local {
				if c := a.runningDaemon(); c != nil {
					st, err := c.IndexStatus(cmd.Context(), name)
					if err != nil {
						return err
					}
					return render(st)
				}
			}
			return a.withEngine(cmd.Context(), func(e *engine.Engine) error {
				st, err := e.IndexStatus(cmd.Context(), name)
				if err != nil {
					return err
				}
				return render(st)
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&local, "local", false, "Read the index directly even when the daemon is running")
	return cmd
}

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanfind/internal/engine"
	"github.com/Aman-CERP/amanfind/internal/ui"
)

func newRelatedCmd(a *app) *cobra.Command {
	var (
		container string
		topK      int
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "related <path>",
		Short: "List files with content similar to an indexed file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e *engine.Engine) error {
				resp, err := e.Related(cmd.Context(), args[0], container, topK)
				if err != nil {
					return err
				}
				r := ui.NewResultsRenderer(cmd.OutOrStdout(), a.colorless(cmd.OutOrStdout()))
				if jsonOut {
					return r.SearchJSON(resp)
				}
				return r.Search(resp)
			})
		},
	}
	cmd.Flags().StringVarP(&container, "container", "c", "", "Container holding the file (default: active)")
	cmd.Flags().IntVarP(&topK, "top-k", "n", 10, "Maximum number of files")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

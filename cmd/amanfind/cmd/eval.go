package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanfind/internal/engine"
	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
	"github.com/Aman-CERP/amanfind/internal/ui"
	"github.com/Aman-CERP/amanfind/internal/validation"
)

var errEvalFailed = errors.New("retrieval suite failed")

func newEvalCmd(a *app) *cobra.Command {
	var (
		container string
		topK      int
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "eval <suite.yaml>",
		Short: "Run a retrieval quality suite",
		Long: `Run the queries of a suite file and check that the expected documents
rank within the top results. Tier 1 and negative queries must pass; tier 2
queries are reported only.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			suite, err := validation.LoadSuite(args[0])
			if err != nil {
				return amerrors.ValidationError("invalid suite file", err)
			}
			return a.withEngine(cmd.Context(), func(e *engine.Engine) error {
				v := validation.New(e, validation.WithContainer(container), validation.WithTopK(topK))
				res := v.RunAll(cmd.Context(), suite)
				if err := cmd.Context().Err(); err != nil {
					return err
				}

				r := ui.NewResultsRenderer(cmd.OutOrStdout(), a.colorless(cmd.OutOrStdout()))
				if jsonOut {
					err = r.JSON(res)
				} else {
					err = r.Eval(res)
				}
				if err != nil {
					return err
				}
				if !res.Passed() {
					return errEvalFailed
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&container, "container", "c", "", "Container for queries that name none (default: active)")
	cmd.Flags().IntVarP(&topK, "top-k", "n", validation.DefaultTopK, "Results checked per query")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

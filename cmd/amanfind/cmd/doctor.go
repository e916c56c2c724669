package cmd

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanfind/internal/preflight"
)

var errChecksFailed = errors.New("required checks failed")

func newDoctorCmd(a *app) *cobra.Command {
	var verbose, jsonOut bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the data directory, indexed paths and embedder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			c := preflight.New(cfg, preflight.WithOutput(cmd.OutOrStdout()), preflight.WithVerbose(verbose))
			results := c.RunAll(cmd.Context())
			if jsonOut {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				c.PrintResults(results)
			}
			if preflight.HasCriticalFailures(results) {
				return errChecksFailed
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details for passing checks")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

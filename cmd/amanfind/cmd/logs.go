package cmd

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	amerrors "github.com/Aman-CERP/amanfind/internal/errors"
	"github.com/Aman-CERP/amanfind/internal/logging"
)

func newLogsCmd(a *app) *cobra.Command {
	var (
		follow bool
		lines  int
		level  string
		filter string
		file   string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the log written by --debug and the daemon",
		Long: `Show the last lines of the amanfind log, optionally following new ones.

Examples:
  amanfind logs -n 100
  amanfind logs -f --level warn
  amanfind logs --filter index_pass`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var pattern *regexp.Regexp
			if filter != "" {
				var err error
				if pattern, err = regexp.Compile(filter); err != nil {
					return amerrors.ValidationError("invalid --filter pattern", err)
				}
			}
			if file == "" {
				file = logging.DefaultLogPath()
			}
			v := logging.NewViewer(logging.ViewerConfig{
				Level:   level,
				Pattern: pattern,
				NoColor: a.colorless(cmd.OutOrStdout()),
			})

			entries, err := v.Tail(file, lines)
			if err != nil {
				return amerrors.New(amerrors.ErrCodeFileNotFound, "no log file at "+file, err).
					WithSuggestion("run a command with --debug or start the daemon")
			}
			for _, e := range entries {
				if err := printf(cmd, "%s\n", v.Format(e)); err != nil {
					return err
				}
			}
			if !follow {
				return nil
			}

			out := make(chan logging.Entry, 64)
			errc := make(chan error, 1)
			go func() { errc <- v.Follow(cmd.Context(), file, out) }()
			for {
				select {
				case e := <-out:
					if _, err := fmt.Fprintln(cmd.OutOrStdout(), v.Format(e)); err != nil {
						return err
					}
				case err := <-errc:
					return err
				}
			}
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new entries")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&filter, "filter", "", "Only lines matching this regular expression")
	cmd.Flags().StringVar(&file, "file", "", "Log file (default: "+logging.DefaultLogPath()+")")
	return cmd
}

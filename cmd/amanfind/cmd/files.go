package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanfind/internal/engine"
	"github.com/Aman-CERP/amanfind/internal/ui"
)

func newReadCmd(a *app) *cobra.Command {
	var start, end int

	cmd := &cobra.Command{
		Use:   "read <path>",
		Short: "Print lines of a file under an indexed path",
		Long: `Print lines start..end (1-based, inclusive) of a file. Zero leaves that
end of the range open. Only files under some container's indexed paths
can be read.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e *engine.Engine) error {
				text, err := e.Read(args[0], start, end)
				if err != nil {
					return err
				}
				_, err = fmt.Fprint(cmd.OutOrStdout(), text)
				return err
			})
		},
	}
	cmd.Flags().IntVar(&start, "start", 0, "First line")
	cmd.Flags().IntVar(&end, "end", 0, "Last line")
	return cmd
}

func newFilesCmd(a *app) *cobra.Command {
	var (
		container string
		prefix    string
		exts      []string
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "files",
		Short: "List indexed files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd.Context(), func(e *engine.Engine) error {
				files, err := e.ListFiles(cmd.Context(), container, absOrEmpty(prefix), exts)
				if err != nil {
					return err
				}
				r := ui.NewResultsRenderer(cmd.OutOrStdout(), a.colorless(cmd.OutOrStdout()))
				if jsonOut {
					return r.JSON(files)
				}
				return r.Files(files)
			})
		},
	}
	cmd.Flags().StringVarP(&container, "container", "c", "", "Container (default: active)")
	cmd.Flags().StringVarP(&prefix, "prefix", "p", "", "Only files under this path")
	cmd.Flags().StringSliceVarP(&exts, "ext", "e", nil, "Only these extensions (repeatable)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newDiffCmd(a *app) *cobra.Command {
	var (
		container string
		since     time.Duration
		jsonOut   bool
	)

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show files changed or deleted recently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd.Context(), func(e *engine.Engine) error {
				d, err := e.DiffSince(cmd.Context(), container, since)
				if err != nil {
					return err
				}
				r := ui.NewResultsRenderer(cmd.OutOrStdout(), a.colorless(cmd.OutOrStdout()))
				if jsonOut {
					return r.JSON(d)
				}
				return r.Diff(d)
			})
		},
	}
	cmd.Flags().StringVarP(&container, "container", "c", "", "Container (default: active)")
	cmd.Flags().DurationVar(&since, "since", time.Hour, "Window to look back over")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

// absOrEmpty makes a path flag absolute so it compares against stored paths.
func absOrEmpty(p string) string {
	if p == "" {
		return ""
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	return abs
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanfind/internal/engine"
	"github.com/Aman-CERP/amanfind/internal/ui"
)

func newContainersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "containers",
		Aliases: []string{"container", "ct"},
		Short:   "Manage containers of indexed folders",
	}
	cmd.AddCommand(
		newContainersListCmd(a),
		newContainersCreateCmd(a),
		newContainersRenameCmd(a),
		newContainersDeleteCmd(a),
		newContainersUseCmd(a),
		newContainersAddPathCmd(a),
		newContainersRemovePathCmd(a),
	)
	return cmd
}

func newContainersListCmd(a *app) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List containers; the active one is starred",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(cmd.Context(), func(e *engine.Engine) error {
				r := ui.NewResultsRenderer(cmd.OutOrStdout(), a.colorless(cmd.OutOrStdout()))
				if jsonOut {
					return r.JSON(e.ListContainers())
				}
				return r.Containers(e.ListContainers())
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	return cmd
}

func newContainersCreateCmd(a *app) *cobra.Command {
	var (
		description string
		paths       []string
	)
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			abs := make([]string, 0, len(paths))
			for _, p := range paths {
				abs = append(abs, absOrEmpty(p))
			}
			return a.withEngine(cmd.Context(), func(e *engine.Engine) error {
				if err := e.CreateContainer(cmd.Context(), args[0], description, abs); err != nil {
					return err
				}
				return printf(cmd, "Created container %q\n", args[0])
			})
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "Description")
	cmd.Flags().StringSliceVarP(&paths, "path", "p", nil, "Folder to index (repeatable)")
	return cmd
}

func newContainersRenameCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <old> <new>",
		Short: "Rename a container and its index",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e *engine.Engine) error {
				if err := e.RenameContainer(cmd.Context(), args[0], args[1]); err != nil {
					return err
				}
				return printf(cmd, "Renamed %q to %q\n", args[0], args[1])
			})
		},
	}
}

func newContainersDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <name>",
		Aliases: []string{"rm"},
		Short:   "Delete a container and drop its index",
		Long:    "Delete a container and drop its index. Files on disk are not touched.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e *engine.Engine) error {
				if err := e.DeleteContainer(cmd.Context(), args[0]); err != nil {
					return err
				}
				return printf(cmd, "Deleted container %q\n", args[0])
			})
		},
	}
}

func newContainersUseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "Make a container the default for other commands",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEngine(cmd.Context(), func(e *engine.Engine) error {
				if err := e.SetActiveContainer(args[0]); err != nil {
					return err
				}
				return printf(cmd, "Active container is now %q\n", args[0])
			})
		},
	}
}

func newContainersAddPathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "add-path <name> <path>",
		Short: "Add a folder to a container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := absOrEmpty(args[1])
			return a.withEngine(cmd.Context(), func(e *engine.Engine) error {
				if err := e.AddPath(args[0], path); err != nil {
					return err
				}
				return printf(cmd, "Added %s to %q; run 'amanfind index %s' to index it\n", path, args[0], args[0])
			})
		},
	}
}

func newContainersRemovePathCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "remove-path <name> <path>",
		Short: "Remove a folder from a container",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := absOrEmpty(args[1])
			return a.withEngine(cmd.Context(), func(e *engine.Engine) error {
				if err := e.RemovePath(args[0], path); err != nil {
					return err
				}
				return printf(cmd, "Removed %s from %q\n", path, args[0])
			})
		},
	}
}

func printf(cmd *cobra.Command, format string, args ...any) error {
	_, err := fmt.Fprintf(cmd.OutOrStdout(), format, args...)
	return err
}

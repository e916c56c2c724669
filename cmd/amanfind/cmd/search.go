package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanfind/internal/engine"
	"github.com/Aman-CERP/amanfind/internal/search"
	"github.com/Aman-CERP/amanfind/internal/ui"
)

type searchOptions struct {
	container   string
	topK        int
	snippetSize int
	exts        []string
	prefix      string
	jsonOut     bool
	interactive bool
	local       bool
}

// searcher is the engine or a daemon client.
type searcher interface {
	Search(ctx context.Context, req search.Request) (search.Response, error)
}

func newSearchCmd(a *app) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search a container",
		Long: `Search a container with keyword and semantic retrieval fused and
reranked. One result per file is shown unless search.one_per_file is off.

Examples:
  amanfind search "quarterly invoices"
  amanfind search "deploy checklist" --ext md --prefix ~/notes/work
  amanfind search "tax forms" --json
  amanfind search --interactive

When the daemon is running, non-interactive searches are answered by it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			if !opts.interactive && strings.TrimSpace(query) == "" {
				return cmd.Help()
			}
			if !opts.interactive && !opts.local {
				if c := a.runningDaemon(); c != nil {
					slog.Debug("search_via_daemon")
					return runSearch(cmd.Context(), cmd, a, c, query, opts)
				}
			}
			return a.withEngine(cmd.Context(), func(e *engine.Engine) error {
				if opts.interactive {
					return runLiveSearch(cmd, a, e, query, opts)
				}
				return runSearch(cmd.Context(), cmd, a, e, query, opts)
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.container, "container", "c", "", "Container to search (default: active)")
	f.IntVarP(&opts.topK, "top-k", "n", 0, "Maximum number of results (default: search.top_k)")
	f.IntVar(&opts.snippetSize, "snippet", 0, "Snippet size in bytes (default: search.snippet_size)")
	f.StringSliceVarP(&opts.exts, "ext", "e", nil, "Only files with these extensions (repeatable)")
	f.StringVarP(&opts.prefix, "prefix", "p", "", "Only files under this path")
	f.BoolVar(&opts.jsonOut, "json", false, "Output results as JSON")
	f.BoolVarP(&opts.interactive, "interactive", "i", false, "Search as you type")
	f.BoolVar(&opts.local, "local", false, "Search in this process even when the daemon is running")
	return cmd
}

func (o searchOptions) request(query string) search.Request {
	return search.Request{
		Container:   o.container,
		Query:       query,
		TopK:        o.topK,
		SnippetSize: o.snippetSize,
		Extensions:  o.exts,
		PathPrefix:  absOrEmpty(o.prefix),
	}
}

func runSearch(ctx context.Context, cmd *cobra.Command, a *app, s searcher, query string, opts searchOptions) error {
	resp, err := s.Search(ctx, opts.request(query))
	if err != nil {
		return err
	}
	r := ui.NewResultsRenderer(cmd.OutOrStdout(), a.colorless(cmd.OutOrStdout()))
	if opts.jsonOut {
		return r.SearchJSON(resp)
	}
	return r.Search(resp)
}

// runLiveSearch re-queries on every keystroke. All queries share one
// session so a newer query cancels the one still running.
func runLiveSearch(cmd *cobra.Command, a *app, e *engine.Engine, initial string, opts searchOptions) error {
	session := search.NewSessionID()
	fn := func(ctx context.Context, query string) (search.Response, error) {
		req := opts.request(query)
		req.Session = session
		return e.Search(ctx, req)
	}
	return ui.RunLiveSearch(cmd.Context(), ui.NewConfig(cmd.OutOrStdout(),
		ui.WithNoColor(a.colorless(cmd.OutOrStdout()))), initial, fn)
}

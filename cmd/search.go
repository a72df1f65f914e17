package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ObiAU/newssearch/internal/aggregator"
	"github.com/ObiAU/newssearch/internal/models"
)

var (
	searchLimit   int
	searchSince   time.Duration
	searchSources []string
	searchExpand  bool
	searchJSON    bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search and summarize news for a query",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0, "Maximum number of articles (default from config)")
	searchCmd.Flags().DurationVar(&searchSince, "since", 0, "Only articles newer than this, e.g. 48h")
	searchCmd.Flags().StringSliceVar(&searchSources, "sources", nil, "Restrict to these domains")
	searchCmd.Flags().BoolVar(&searchExpand, "expand", false, "Also search related phrases")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "Print the raw result as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	agg, err := aggregator.NewFromConfig(cfg)
	if err != nil {
		return err
	}
	defer agg.Close()

	q := models.Query{
		Text:    strings.Join(args, " "),
		Limit:   searchLimit,
		Sources: searchSources,
		Expand:  searchExpand,
		Session: "cli",
	}
	if searchSince > 0 {
		q.Since = time.Now().Add(-searchSince)
	}

	result, err := agg.Search(ctx, q)
	if errors.Is(err, models.ErrNoCandidates) {
		return fmt.Errorf("no articles found for %q", q.Text)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if searchJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	printResult(out, result)
	return nil
}

func printResult(w io.Writer, result *models.QueryResult) {
	fmt.Fprintf(w, "%d results for %q (%s, %d duplicates, %d failed, %s)\n\n",
		len(result.Results), result.Query.Text, result.State, result.Duplicates, result.Failures,
		result.Duration.Round(time.Millisecond))

	for _, r := range result.Results {
		title := r.Candidate.Title
		if r.Article != nil && r.Article.Title != "" {
			title = r.Article.Title
		}
		fmt.Fprintf(w, "%d. %s\n   %s\n", r.Index+1, title, r.Candidate.URL)

		if r.Summary == nil {
			fmt.Fprintf(w, "   ! %s\n\n", r.Reason)
			continue
		}
		cached := ""
		if r.Cached {
			cached = " (cached)"
		}
		fmt.Fprintf(w, "   %s%s\n", r.Summary.Summary, cached)
		for _, p := range r.Summary.KeyPoints {
			fmt.Fprintf(w, "   - %s\n", p)
		}
		if r.Summary.Risk != "" {
			fmt.Fprintf(w, "   risk: %s\n", r.Summary.Risk)
		}
		fmt.Fprintln(w)
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"feed-drift/feed"
)

var rootCmd = &cobra.Command{
	Use:   "feed-drift",
	Short: "Normalize analytics feed exports and report removed entries between snapshots",
	Long: `feed-drift turns raw discussion feed exports into normalized artifacts.
Artifacts named prod_feed_YYYYMMDD_HHMMSS.csv are generational snapshots:
each one is compared with the snapshot before it and the discussionIds that
disappeared are written to <snapshot>-removed-entries.csv.`,
	SilenceUsage: true,
}

var materializeCmd = &cobra.Command{
	Use:   "materialize <input> [output]",
	Short: "Normalize one raw feed file",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runMaterialize,
}

var diffCmd = &cobra.Command{
	Use:   "diff <current> [previous]",
	Short: "Report discussionIds removed since the previous snapshot",
	Long: `Compares two normalized artifacts. Without [previous], the most recent
generational snapshot before <current> in the same directory is used.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runDiff,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <query-id>",
	Short: "Run a stored query and materialize its result as the next snapshot",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Materialize raw feed files as they arrive in an inbox directory",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs recorded in the ledger",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

var (
	watchDir     string
	watchPattern string
	historyLimit int
)

func init() {
	watchCmd.Flags().StringVar(&watchDir, "dir", "", "Inbox directory (overrides config.watch.dir).")
	watchCmd.Flags().StringVar(&watchPattern, "pattern", "", "Base-name glob of raw files (overrides config.watch.pattern).")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of runs to list.")

	rootCmd.AddCommand(materializeCmd, diffCmd, fetchCmd, watchCmd, historyCmd)
}

func runMaterialize(cmd *cobra.Command, args []string) error {
	runner, _, err := newRunner(cmd)
	if err != nil {
		return err
	}
	defer runner.Close()

	output := ""
	if len(args) > 1 {
		output = args[1]
	}
	res, err := runner.RunFile(args[0], output)
	if err != nil {
		return err
	}
	printResult(cmd, res)
	return nil
}

func runDiff(cmd *cobra.Command, args []string) error {
	current := args[0]
	if _, err := os.Stat(current); err != nil {
		return fmt.Errorf("%w: %s", feed.ErrInputNotFound, current)
	}
	previous := ""
	if len(args) > 1 {
		previous = args[1]
	} else {
		p, ok, err := feed.FindPrevious(current, feed.DirLister{})
		if err != nil {
			return err
		}
		if !ok {
			cmd.Printf("No previous snapshot for %s (only prod_feed_YYYYMMDD_HHMMSS.csv names are compared automatically).\n", current)
			return nil
		}
		previous = p
	}
	printDiff(cmd, feed.Diff(current, previous))
	return nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	runner, cfg, err := newRunner(cmd)
	if err != nil {
		return err
	}
	defer runner.Close()

	if cfg.Query.BaseURL == "" {
		return errors.New("missing query.base_url in config")
	}
	tokenEnv := cfg.Query.TokenEnv
	if tokenEnv == "" {
		tokenEnv = "FEED_QUERY_TOKEN"
	}
	token := os.Getenv(tokenEnv)
	if token == "" {
		return fmt.Errorf("missing query token (set %s)", tokenEnv)
	}
	runner.WithFetcher(feed.NewHTTPResultFetcher(cfg.Query, token))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Printf("Running query %s...\n", args[0])
	res, err := runner.FetchAndRun(ctx, args[0])
	if err != nil {
		return err
	}
	printResult(cmd, res)
	return nil
}

func runWatch(cmd *cobra.Command, _ []string) error {
	runner, cfg, err := newRunner(cmd)
	if err != nil {
		return err
	}
	defer runner.Close()

	opts := feed.WatchOptions{Dir: cfg.Watch.Dir, Pattern: cfg.Watch.Pattern}
	if cmd.Flags().Changed("dir") {
		opts.Dir = watchDir
	}
	if cmd.Flags().Changed("pattern") {
		opts.Pattern = watchPattern
	}
	if cfg.Ledger == "" && cfg.ArchiveDir == "" {
		cmd.PrintErrln("warning: without a ledger or archive dir, inbox files are re-materialized on every restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.Printf("Watching %s...\n", opts.Dir)
	return runner.Watch(ctx, opts)
}

func runHistory(cmd *cobra.Command, _ []string) error {
	runner, cfg, err := newRunner(cmd)
	if err != nil {
		return err
	}
	defer runner.Close()

	if cfg.Ledger == "" {
		return errors.New("no ledger configured (use --ledger or config.ledger)")
	}
	runs, err := runner.Ledger().RecentRuns(historyLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		cmd.Println("No runs recorded.")
		return nil
	}
	for _, r := range runs {
		status := "ok"
		if r.LastError != "" {
			status = "error: " + r.LastError
		}
		cmd.Printf("%s  %s  %s -> %s  rows=%d workspace=%d removed=%d  %s\n",
			r.MaterializedAt.Local().Format(time.DateTime), r.RunID, r.InputPath, r.OutputPath,
			r.RowCount, r.EntityTypeChangeCount, r.RemovedCount, status)
	}
	return nil
}

func printResult(cmd *cobra.Command, res *feed.RunResult) {
	sum := res.Summary
	cmd.Printf("Wrote %s\n", sum.OutputPath)
	cmd.Printf("  rows: %d\n", sum.RowCount)
	cmd.Printf("  entityType workspace: %d\n", sum.EntityTypeChangeCount)
	for _, w := range sum.Warnings {
		cmd.Printf("  warning: %s\n", w)
	}
	if res.ArchivedPath != "" {
		cmd.Printf("  raw input archived to %s\n", res.ArchivedPath)
	}
	if sum.Diff != nil {
		printDiff(cmd, sum.Diff)
	}
}

func printDiff(cmd *cobra.Command, d *feed.DiffResult) {
	if !d.Compared {
		cmd.Printf("No comparison with %s: %v\n", d.PreviousPath, d.LookupErr)
		return
	}
	if len(d.Removed) == 0 {
		cmd.Printf("No entries removed since %s.\n", d.PreviousPath)
		return
	}
	cmd.Printf("%d entries removed since %s:\n", len(d.Removed), d.PreviousPath)
	for _, id := range d.Removed {
		cmd.Printf("  %s\n", id)
	}
	if d.ReportPath != "" {
		cmd.Printf("Removal report: %s\n", d.ReportPath)
	} else if d.ReportErr != nil {
		cmd.Printf("Removal report not written: %v\n", d.ReportErr)
	}
}

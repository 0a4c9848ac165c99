package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vietddude/feedrank/internal/core/domain"
	"github.com/vietddude/feedrank/internal/infra/storage"
	"github.com/vietddude/feedrank/internal/pipeline/dlq"
)

var (
	analyzeWindow time.Duration
	purgeOlder    time.Duration
	listKind      string
	listLimit     int
	listWindow    time.Duration
)

var dlqCmd = &cobra.Command{
	Use:   "dlq",
	Short: "Inspect the dead-letter store",
}

var dlqAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Summarize terminal failures, trends and recommendations",
	Run:   runDLQAnalyze,
}

var dlqPurgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete dead-letter entries older than --older-than",
	Run:   runDLQPurge,
}

var dlqListCmd = &cobra.Command{
	Use:   "list",
	Short: "List dead letters, newest first with --kind",
	Run:   runDLQList,
}

var dlqShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Print one dead-letter entry",
	Args:  cobra.ExactArgs(1),
	Run:   runDLQShow,
}

func init() {
	dlqAnalyzeCmd.Flags().DurationVar(&analyzeWindow, "window", 24*time.Hour, "analysis window")
	dlqPurgeCmd.Flags().DurationVar(&purgeOlder, "older-than", 7*24*time.Hour, "retention")
	dlqListCmd.Flags().StringVar(&listKind, "kind", "", "only entries of this error kind")
	dlqListCmd.Flags().IntVar(&listLimit, "limit", 50, "max entries with --kind")
	dlqListCmd.Flags().DurationVar(&listWindow, "window", 24*time.Hour, "listing window without --kind")

	dlqCmd.AddCommand(dlqAnalyzeCmd, dlqPurgeCmd, dlqListCmd, dlqShowCmd)
	rootCmd.AddCommand(dlqCmd)
}

func runDLQAnalyze(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()
	app := openApp(ctx, cfg)
	defer func() {
		_ = app.Close()
	}()

	a, err := app.DeadLetters.Analyze(ctx, analyzeWindow)
	if err != nil {
		slog.Error("Failed to analyze dead letters", "error", err)
		os.Exit(1)
	}
	writeReport(os.Stdout, a, dlq.IdentifyTrending(a), dlq.Recommend(a))
}

func writeReport(out io.Writer, a *dlq.Analysis, trends []dlq.Trend, recs []string) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)

	_, _ = fmt.Fprintf(w, "Failures since %s: %d\n\n", a.Since.Format(time.RFC3339), a.Total)

	kinds := make([]string, 0, len(a.ByKind))
	for k := range a.ByKind {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool {
		ci, cj := a.ByKind[kinds[i]].Count, a.ByKind[kinds[j]].Count
		if ci != cj {
			return ci > cj
		}
		return kinds[i] < kinds[j]
	})

	_, _ = fmt.Fprintln(w, "KIND\tCOUNT\tUSERS")
	for _, k := range kinds {
		s := a.ByKind[k]
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\n", k, s.Count, s.DistinctUsers)
	}

	if len(trends) > 0 {
		_, _ = fmt.Fprintln(w, "\nTREND\tSUBJECT\tCOUNT\tSEVERITY")
		for _, t := range trends {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", t.Type, t.Subject, t.Count, t.Severity)
		}
	}

	if len(recs) > 0 {
		_, _ = fmt.Fprintln(w, "\nRecommendations:")
		for _, r := range recs {
			_, _ = fmt.Fprintf(w, "  - %s\n", r)
		}
	}
	_ = w.Flush()
}

func runDLQPurge(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()
	app := openApp(ctx, cfg)
	defer func() {
		_ = app.Close()
	}()

	n, err := app.DeadLetters.Purge(ctx, purgeOlder)
	if err != nil {
		slog.Error("Failed to purge dead letters", "error", err)
		os.Exit(1)
	}
	slog.Info("Purged dead letters", "removed", n, "older_than", purgeOlder)
}

func runDLQList(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()
	app := openApp(ctx, cfg)
	defer func() {
		_ = app.Close()
	}()

	var (
		entries []*domain.DLQEntry
		err     error
	)
	if listKind != "" {
		entries, err = app.DeadLetters.ByKind(ctx, listKind, listLimit)
	} else {
		entries, err = app.DeadLetters.List(ctx, listWindow)
	}
	if err != nil {
		slog.Error("Failed to list dead letters", "error", err)
		os.Exit(1)
	}

	counts, err := app.DeadLetters.Counts(ctx)
	if err != nil {
		slog.Error("Failed to count dead letters", "error", err)
		os.Exit(1)
	}
	writeEntries(os.Stdout, entries, counts)
}

func writeEntries(out io.Writer, entries []*domain.DLQEntry, counts map[string]int) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)

	_, _ = fmt.Fprintln(w, "TASK\tUSER\tKIND\tCAUSE\tATTEMPTS\tRECORDED")
	for _, e := range entries {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			e.OriginalTaskID, e.UserID, e.ErrorType, e.CauseKind(), e.Attempts, e.Timestamp.Format(time.RFC3339))
	}

	kinds := make([]string, 0, len(counts))
	total := 0
	for k, n := range counts {
		kinds = append(kinds, k)
		total += n
	}
	sort.Strings(kinds)

	_, _ = fmt.Fprintf(w, "\nTotal stored: %d\n", total)
	for _, k := range kinds {
		_, _ = fmt.Fprintf(w, "  %s\t%d\n", k, counts[k])
	}
	_ = w.Flush()
}

func runDLQShow(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()
	app := openApp(ctx, cfg)
	defer func() {
		_ = app.Close()
	}()

	e, err := app.DeadLetters.Get(ctx, args[0])
	if errors.Is(err, storage.ErrEntryNotFound) {
		slog.Error("No dead letter for task", "task_id", args[0])
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to load dead letter", "error", err)
		os.Exit(1)
	}
	if err := writeEntry(os.Stdout, e); err != nil {
		slog.Error("Failed to print dead letter", "error", err)
		os.Exit(1)
	}
}

// writeEntry prints the entry's JSON followed by the fields it omits.
func writeEntry(out io.Writer, e *domain.DLQEntry) error {
	body, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%s\n", body)
	_, _ = fmt.Fprintf(out, "cause: %s\n", e.CauseKind())
	if len(e.OriginalParams) > 0 {
		_, _ = fmt.Fprintf(out, "params: %s\n", e.OriginalParams)
	}
	return nil
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/vietddude/feedrank/internal/core/config"
	"github.com/vietddude/feedrank/internal/pipeline/status"
	"github.com/vietddude/feedrank/internal/ranking/cache"
)

var (
	enqueueLimit   int
	enqueueRefresh bool
	enqueueWait    time.Duration
	invalidateAll  bool
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <user-id>",
	Short: "Submit a ranking task for a user",
	Args:  cobra.ExactArgs(1),
	Run:   runEnqueue,
}

var statusCmd = &cobra.Command{
	Use:   "status <task-id>",
	Short: "Show the status of a ranking task",
	Args:  cobra.ExactArgs(1),
	Run:   runStatus,
}

var invalidateCmd = &cobra.Command{
	Use:   "invalidate [user-id]",
	Short: "Drop cached rankings for a user, or every user with --all",
	Args:  cobra.MaximumNArgs(1),
	Run:   runInvalidate,
}

func init() {
	enqueueCmd.Flags().IntVar(&enqueueLimit, "limit", 10, "number of posts to return (1-100)")
	enqueueCmd.Flags().BoolVar(&enqueueRefresh, "force-refresh", false, "ignore cached rankings")
	enqueueCmd.Flags().DurationVar(&enqueueWait, "wait", 0, "process in-process and wait up to this long for the result")
	invalidateCmd.Flags().BoolVar(&invalidateAll, "all", false, "invalidate every user")

	rootCmd.AddCommand(enqueueCmd, statusCmd, invalidateCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()
	app := openApp(ctx, cfg)
	defer func() {
		_ = app.Close()
	}()

	params, _ := json.Marshal(map[string]any{
		"limit":         enqueueLimit,
		"force_refresh": enqueueRefresh,
	})

	taskID, err := app.Status.Enqueue(ctx, args[0], params)
	if err != nil {
		slog.Error("Failed to enqueue task", "error", err)
		os.Exit(1)
	}
	fmt.Println(taskID)

	if enqueueWait <= 0 {
		if cfg.Backend == config.BackendMemory {
			slog.Warn("Memory backend: the task is lost when this process exits; use --wait")
		}
		return
	}

	runCtx, cancel := context.WithTimeout(ctx, enqueueWait)
	defer cancel()
	if err := app.Start(runCtx); err != nil {
		slog.Error("Failed to start workers", "error", err)
		os.Exit(1)
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer stopCancel()
		_ = app.Stop(stopCtx)
	}()

	view, err := waitForTask(runCtx, app.Status, taskID)
	if err != nil {
		slog.Error("Task did not finish", "task_id", taskID, "error", err)
		os.Exit(1)
	}
	printView(view)
}

func waitForTask(ctx context.Context, svc *status.Service, taskID string) (*status.View, error) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		view, err := svc.Status(ctx, taskID)
		if err != nil {
			return nil, err
		}
		if view.Presentation() == status.PresentationSuccess || view.Presentation() == status.PresentationFailure {
			return view, nil
		}
		select {
		case <-ctx.Done():
			return view, ctx.Err()
		case <-ticker.C:
		}
	}
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	ctx := context.Background()
	app := openApp(ctx, cfg)
	defer func() {
		_ = app.Close()
	}()

	view, err := app.Status.Status(ctx, args[0])
	if err != nil {
		slog.Error("Failed to load task", "task_id", args[0], "error", err)
		os.Exit(1)
	}
	printView(view)
}

func printView(v *status.View) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintf(w, "TASK\t%s\n", v.TaskID)
	_, _ = fmt.Fprintf(w, "STATE\t%s (%s)\n", v.Presentation(), v.State)
	_, _ = fmt.Fprintf(w, "PROGRESS\t%d%%\t%s\n", v.ProgressPercent, v.CurrentStage)
	if v.Attempt > 0 {
		_, _ = fmt.Fprintf(w, "ATTEMPT\t%d\n", v.Attempt)
	}
	if v.NextRetryInSeconds != nil {
		_, _ = fmt.Fprintf(w, "NEXT RETRY\t%ds\n", *v.NextRetryInSeconds)
	}
	if v.ResultRef != "" {
		_, _ = fmt.Fprintf(w, "RESULT\t%s\t%d posts\n", v.ResultRef, v.ResultCount)
	}
	if v.Error != nil {
		_, _ = fmt.Fprintf(w, "ERROR\t%s\t%s\n", v.Error.Kind, v.Error.Message)
		_, _ = fmt.Fprintf(w, "FAILURE CLASS\t%s\t%d attempts\n", v.Error.FailureClass, v.Error.Attempts)
	}
	_ = w.Flush()
}

func runInvalidate(cmd *cobra.Command, args []string) {
	if !invalidateAll && len(args) == 0 {
		_ = cmd.Usage()
		os.Exit(1)
	}

	cfg := loadConfig()
	ctx := context.Background()
	app := openApp(ctx, cfg)
	defer func() {
		_ = app.Close()
	}()

	if invalidateAll {
		n := app.Cache.InvalidatePrefix(ctx, cache.RecommendationsPrefix)
		n += app.Cache.InvalidatePrefix(ctx, cache.AsyncRankingsPrefix)
		slog.Info("Invalidated cached rankings", "keys", n)
		return
	}

	if !app.Cache.Delete(ctx, args[0]) {
		slog.Error("Failed to invalidate cached rankings", "user_id", args[0])
		os.Exit(1)
	}
	slog.Info("Invalidated cached rankings", "user_id", args[0])
}

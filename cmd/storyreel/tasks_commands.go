package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"storyreel/internal/ledger"
	"storyreel/internal/logging"
	"storyreel/internal/services"
	"storyreel/internal/taskpoll"
)

const maxConcurrentWaits = 4

func newTasksCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Inspect the local task ledger and wait on backend tasks",
	}
	cmd.AddCommand(newTasksListCommand(ctx))
	cmd.AddCommand(newTasksStatsCommand(ctx))
	cmd.AddCommand(newTasksWaitCommand(ctx))
	cmd.AddCommand(newTasksReclaimCommand(ctx))
	return cmd
}

func (c *commandContext) withLedger(fn func(store *ledger.Store) error) (err error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := ledger.Open(cfg)
	if err != nil {
		return fmt.Errorf("open task ledger: %w", err)
	}
	defer func() {
		err = errors.Join(err, store.Close())
	}()
	return fn(store)
}

type entryView struct {
	ID        int64  `json:"id"`
	RequestID string `json:"request_id"`
	Operation string `json:"operation"`
	Target    string `json:"target,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
	ChapterID string `json:"chapter_id,omitempty"`
	TaskID    string `json:"task_id,omitempty"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	Attempts  int    `json:"attempts"`
	CreatedAt string `json:"created_at"`
	Duration  string `json:"duration,omitempty"`
}

func newEntryView(e ledger.Entry) entryView {
	view := entryView{
		ID:        e.ID,
		RequestID: e.RequestID,
		Operation: e.Operation,
		Target:    e.TargetID,
		ProjectID: e.ProjectID,
		ChapterID: e.ChapterID,
		TaskID:    e.TaskID,
		Status:    string(e.Status),
		Message:   e.Message,
		Attempts:  e.Attempts,
		CreatedAt: e.CreatedAt.Local().Format(time.DateTime),
	}
	if d := e.Duration(); d > 0 {
		view.Duration = d.Round(time.Second).String()
	}
	return view
}

func newTasksListCommand(ctx *commandContext) *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded submissions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLedger(func(store *ledger.Store) error {
				entries, err := store.List(cmd.Context(), ledger.Filter{
					ChapterID: firstNonEmpty(ctx.chapterFlag),
					Status:    ledger.Status(strings.ToLower(strings.TrimSpace(status))),
					Limit:     limit,
				})
				if err != nil {
					return err
				}
				views := make([]entryView, 0, len(entries))
				for _, e := range entries {
					views = append(views, newEntryView(e))
				}
				if ctx.jsonFlag {
					return writeJSON(cmd, views)
				}
				if len(views) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No recorded submissions")
					return nil
				}
				rows := make([][]string, 0, len(views))
				for _, v := range views {
					rows = append(rows, []string{
						strconv.FormatInt(v.ID, 10),
						v.CreatedAt,
						v.Operation,
						dash(v.Target),
						dash(v.TaskID),
						v.Status,
						strconv.Itoa(v.Attempts),
						dash(v.Duration),
						dash(truncate(v.Message, 40)),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{
					{title: "ID", align: alignRight},
					{title: "Created"},
					{title: "Operation"},
					{title: "Target"},
					{title: "Task"},
					{title: "Status"},
					{title: "Polls", align: alignRight},
					{title: "Took", align: alignRight},
					{title: "Message", maxWidth: 40},
				}, rows))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Only list entries with this status")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to list")
	return cmd
}

func newTasksStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Count recorded submissions by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLedger(func(store *ledger.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.jsonFlag {
					return writeJSON(cmd, stats)
				}
				statuses := make([]string, 0, len(stats))
				for status := range stats {
					statuses = append(statuses, string(status))
				}
				sort.Strings(statuses)
				rows := make([][]string, 0, len(statuses))
				for _, status := range statuses {
					rows = append(rows, []string{status, strconv.Itoa(stats[ledger.Status(status)])})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]column{
					{title: "Status"},
					{title: "Count", align: alignRight},
				}, rows))
				return nil
			})
		},
	}
}

func newTasksReclaimCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Mark open entries left behind by exited processes as abandoned",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLedger(func(store *ledger.Store) error {
				count, err := store.ReclaimStale(cmd.Context(), olderThan)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Marked %d entries abandoned\n", count)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", time.Hour, "Minimum time since the entry was last updated")
	return cmd
}

type waitResult struct {
	TaskID  string          `json:"task_id"`
	Outcome string          `json:"outcome"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func newTasksWaitCommand(ctx *commandContext) *cobra.Command {
	var attempts int
	var video bool
	cmd := &cobra.Command{
		Use:   "wait <task-id>...",
		Short: "Poll backend tasks until they finish and reconcile the ledger",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := ctx.openSession(cmd)
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, s.close(cmd.Context()))
			}()

			opts := taskpoll.Options{Interval: s.cfg.PollInterval(), MaxAttempts: s.cfg.Poller.MaxAttempts}
			if video {
				opts.MaxAttempts = s.cfg.Poller.VideoMaxAttempts
			}
			if attempts > 0 {
				opts.MaxAttempts = attempts
			}
			poller := taskpoll.New(s.backend, taskpoll.WithLogger(s.logger), taskpoll.WithMetrics(s.metrics))

			// Each task's outcome is reported on its own, so one failed task
			// never cancels its siblings. Only the command's own cancellation
			// (Ctrl-C) ends the group early.
			results := make([]waitResult, len(args))
			var printMu sync.Mutex
			g, gctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(maxConcurrentWaits)
			for i, taskID := range args {
				g.Go(func() error {
					result, pollErr := poller.Poll(gctx, taskID, opts)
					outcome := services.OutcomeOf(pollErr)
					results[i] = waitResult{TaskID: taskID, Outcome: string(outcome), Result: result}
					if pollErr != nil {
						results[i].Error = pollErr.Error()
					}
					reconcileEntry(gctx, s, taskID, outcome, pollErr)
					if !ctx.jsonFlag {
						printMu.Lock()
						fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", taskID, outcome)
						printMu.Unlock()
					}
					return cmd.Context().Err()
				})
			}
			waitErr := g.Wait()

			if ctx.jsonFlag {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			}
			if waitErr != nil {
				return fmt.Errorf("wait interrupted: %w", waitErr)
			}
			var unfinished int
			for _, r := range results {
				if r.Outcome != string(services.OutcomeSucceeded) {
					unfinished++
				}
			}
			if unfinished > 0 {
				return fmt.Errorf("%d of %d tasks did not succeed", unfinished, len(results))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&attempts, "attempts", 0, "Poll attempt budget (defaults to poller.max_attempts)")
	cmd.Flags().BoolVar(&video, "video", false, "Use the video attempt budget")
	return cmd
}

// reconcileEntry closes the ledger entry of taskID when a previous process
// exited before recording its outcome.
func reconcileEntry(ctx context.Context, s *session, taskID string, outcome services.Outcome, cause error) {
	if outcome == services.OutcomeCanceled {
		return
	}
	entry, err := s.ledger.FindByTask(ctx, taskID)
	if err != nil {
		if !errors.Is(err, ledger.ErrNotFound) {
			logging.WarnWithContext(s.logger, "ledger lookup failed", "ledger_lookup_failed",
				logging.String(logging.FieldTaskID, taskID),
				logging.Error(err),
			)
		}
		return
	}
	if entry.Status.IsTerminal() && entry.Status != ledger.StatusAbandoned {
		return
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	if err := s.ledger.Finish(context.WithoutCancel(ctx), entry.ID, ledger.Status(outcome), message); err != nil {
		logging.WarnWithContext(s.logger, "ledger reconcile failed", "ledger_reconcile_failed",
			logging.String(logging.FieldTaskID, taskID),
			logging.Error(err),
		)
	}
}

package progress

import (
	"context"
	"log/slog"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Reporter receives progress updates from long-running bulk operations.
// The bookkeeping itself (task rows, ETAs) lives with the collaborator
// that owns the run; workers only report what they processed.
type Reporter interface {
	Report(ctx context.Context, runID string, processed, total int, status Status, errMsg string)
}

// Nop discards updates, for callers that don't track a run.
type Nop struct{}

func (Nop) Report(context.Context, string, int, int, Status, string) {}

// Log writes updates to the structured log, enough visibility for
// operator-triggered runs without a task table.
type Log struct{}

func (Log) Report(ctx context.Context, runID string, processed, total int, status Status, errMsg string) {
	if errMsg != "" {
		slog.WarnContext(ctx, "bulk run progress",
			"run_id", runID, "processed", processed, "total", total, "status", status, "error", errMsg)
		return
	}
	slog.InfoContext(ctx, "bulk run progress",
		"run_id", runID, "processed", processed, "total", total, "status", status)
}

package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// MaintenanceTask prunes notification histories and the detected chapter
// log older than the retention period.
type MaintenanceTask struct {
	Task
	histories HistoryPruner
	detected  DetectedPruner
	retention time.Duration
	now       time.Time
}

func NewMaintenanceTask(histories HistoryPruner, detected DetectedPruner, retention time.Duration, now time.Time) *MaintenanceTask {
	return &MaintenanceTask{
		Task:      NewTask(TaskTypeMaintenance),
		histories: histories,
		detected:  detected,
		retention: retention,
		now:       now,
	}
}

func (t *MaintenanceTask) Execute(ctx context.Context) error {
	if t.retention <= 0 {
		slog.Debug("History retention disabled, skipping maintenance")
		return nil
	}

	cutoff := t.now.Add(-t.retention)

	histories, err := t.histories.PruneHistories(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune histories: %w", err)
	}

	detected, err := t.detected.PruneDetected(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune detected chapters: %w", err)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"id", t.ID,
		"duration", t.GetDuration(),
		"cutoff", cutoff,
		"histories", histories,
		"detected", detected)

	return nil
}

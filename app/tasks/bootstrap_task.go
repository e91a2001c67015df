package tasks

import (
	"context"
	"fmt"
	"log/slog"
)

// BootstrapTask runs the initial sweep after startup, optionally wiping all
// tracking state first.
type BootstrapTask struct {
	Task
	trackings Wiper
	tracker   Sweeper
	reset     bool
}

func NewBootstrapTask(trackings Wiper, sweeper Sweeper, reset bool) *BootstrapTask {
	return &BootstrapTask{
		Task:      NewTask(TaskTypeBootstrap),
		trackings: trackings,
		tracker:   sweeper,
		reset:     reset,
	}
}

func (t *BootstrapTask) Execute(ctx context.Context) error {
	if t.reset {
		slog.Warn("Wiping trackings, pending chapters, histories and job statuses before initial sweep")
		if err := t.trackings.Wipe(ctx); err != nil {
			return fmt.Errorf("failed to wipe tracking data: %w", err)
		}
	}

	result, err := t.tracker.CheckAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to run initial sweep: %w", err)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"id", t.ID,
		"duration", t.GetDuration(),
		"reset", t.reset,
		"checked", result.TotalMangaChecked,
		"initialized", result.MangaInitialized,
		"new", result.TotalNewChapters)

	return nil
}

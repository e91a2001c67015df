package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/manga-notifier/app/tracker"
)

type CheckChaptersTask struct {
	Task
	tracker Sweeper
	Result  *tracker.SweepResult
}

func NewCheckChaptersTask(sweeper Sweeper) *CheckChaptersTask {
	return &CheckChaptersTask{
		Task:    NewTask(TaskTypeChapterCheck),
		tracker: sweeper,
	}
}

func (t *CheckChaptersTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result, err := t.tracker.CheckAll(ctx)
	t.Result = result
	if err != nil {
		return fmt.Errorf("failed to check chapters: %w", err)
	}

	slog.Info("Task completed",
		"type", string(t.Type),
		"id", t.ID,
		"duration", t.GetDuration(),
		"checked", result.TotalMangaChecked,
		"new", result.TotalNewChapters,
		"errors", len(result.Errors))

	return nil
}

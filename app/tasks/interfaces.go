package tasks

import (
	"context"
	"time"

	"github.com/lysyi3m/manga-notifier/app/notify"
	"github.com/lysyi3m/manga-notifier/app/tracker"
)

type Sweeper interface {
	CheckAll(ctx context.Context) (*tracker.SweepResult, error)
}

type Notifier interface {
	SendScheduled(ctx context.Context, day string) (*notify.BatchResult, error)
	SendManual(ctx context.Context, day string) (*notify.BatchResult, error)
}

type StatusRecorder interface {
	UpdateStatus(ctx context.Context, name, status string, duration time.Duration, runErr error) error
}

type HistoryPruner interface {
	PruneHistories(ctx context.Context, before time.Time) (int64, error)
}

type DetectedPruner interface {
	PruneDetected(ctx context.Context, before time.Time) (int64, error)
}

type Wiper interface {
	Wipe(ctx context.Context) error
}

// Jobs are the collaborators the scheduled tasks run against
type Jobs struct {
	Tracker    Sweeper
	Dispatcher Notifier
	Status     StatusRecorder
	Histories  HistoryPruner
	Detected   DetectedPruner
	Trackings  Wiper
}

package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/lysyi3m/manga-notifier/app/comick"
	"github.com/lysyi3m/manga-notifier/app/database"
)

type Fetcher interface {
	FetchChapters(ctx context.Context, hid string) []comick.Chapter
}

type TrackingStore interface {
	GetTracking(ctx context.Context, hid string) (*database.Tracking, error)
	CreateTracking(ctx context.Context, hid, cursor string, notified []string, now time.Time) (bool, error)
	ActivateTracking(ctx context.Context, hid string, now time.Time) error
	AdvanceCursor(ctx context.Context, hid, cursor string, checkedAt time.Time) error
	TouchChecked(ctx context.Context, hid string, checkedAt time.Time) error
}

type PendingStore interface {
	AppendPending(ctx context.Context, hid string, chapters []database.NewChapter) (int, error)
}

type DetectedLog interface {
	RecordDetected(ctx context.Context, hid string, chapters []database.NewChapter, now time.Time) error
}

type HandleSource interface {
	ListSubscribedHandles(ctx context.Context) ([]string, error)
}

type SweepResult struct {
	TotalMangaChecked    int      `json:"total_manga_checked"`
	MangaInitialized     int      `json:"manga_initialized"`
	MangaWithNewChapters int      `json:"manga_with_new_chapters"`
	TotalNewChapters     int      `json:"total_new_chapters"`
	Errors               []string `json:"errors"`
}

// Tracker runs chapter sweeps over every subscribed manga
type Tracker struct {
	fetcher   Fetcher
	trackings TrackingStore
	pending   PendingStore
	detected  DetectedLog
	handles   HandleSource

	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
	// Delay before every sweep item but the first
	Jitter func() time.Duration
}

func NewTracker(fetcher Fetcher, trackings TrackingStore, pending PendingStore, detected DetectedLog, handles HandleSource) *Tracker {
	return &Tracker{
		fetcher:   fetcher,
		trackings: trackings,
		pending:   pending,
		detected:  detected,
		handles:   handles,
		Now:       func() time.Time { return time.Now().UTC() },
		Sleep:     sleep,
		Jitter:    defaultJitter,
	}
}

// CheckAll checks every subscribed manga once. Failures of single mangas are
// collected in the result and do not stop the sweep.
func (t *Tracker) CheckAll(ctx context.Context) (*SweepResult, error) {
	handles, err := t.handles.ListSubscribedHandles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribed manga: %w", err)
	}

	slog.Info("Starting chapter sweep", "manga", len(handles))

	result := &SweepResult{
		TotalMangaChecked: len(handles),
		Errors:            []string{},
	}
	unparsable := 0

	for i, hid := range handles {
		if i > 0 {
			delay := t.Jitter()
			slog.Debug("Waiting before next fetch", "delay", delay)
			if err := t.Sleep(ctx, delay); err != nil {
				return result, fmt.Errorf("sweep interrupted: %w", err)
			}
		}

		tracking, err := t.trackings.GetTracking(ctx, hid)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Error checking manga %s: %v", hid, err))
			continue
		}

		if tracking == nil {
			created, err := t.Initialize(ctx, hid)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("Error initializing manga %s: %v", hid, err))
			} else if created {
				result.MangaInitialized++
			}
			continue
		}

		diff, err := t.CheckManga(ctx, tracking)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("Error checking manga %s: %v", hid, err))
			continue
		}

		unparsable += diff.UnparsableTimestamps
		if len(diff.New) > 0 {
			result.MangaWithNewChapters++
			result.TotalNewChapters += len(diff.New)
			slog.Info("New chapters found", "hid", hid, "count", len(diff.New))
		}
	}

	if unparsable > 0 {
		slog.Warn("Source timestamps are not RFC 3339, chapter ordering may be unreliable", "count", unparsable)
	}

	slog.Info("Chapter sweep completed",
		"checked", result.TotalMangaChecked,
		"initialized", result.MangaInitialized,
		"with_new", result.MangaWithNewChapters,
		"new_chapters", result.TotalNewChapters,
		"errors", len(result.Errors))

	return result, nil
}

// CheckManga fetches the chapter list of a tracked manga and queues the new
// chapters. An empty fetch leaves the tracking untouched.
func (t *Tracker) CheckManga(ctx context.Context, tracking *database.Tracking) (DiffResult, error) {
	chapters := t.fetcher.FetchChapters(ctx, tracking.HID)
	if len(chapters) == 0 {
		slog.Warn("Source unavailable, keeping tracking state for retry", "hid", tracking.HID)
		return DiffResult{NextCursor: tracking.Cursor}, nil
	}

	now := t.Now()
	diff := Diff(*tracking, chapters, now)

	if len(diff.New) == 0 {
		if err := t.trackings.TouchChecked(ctx, tracking.HID, now); err != nil {
			slog.Warn("Failed to record check time", "hid", tracking.HID, "error", err)
		}
		return diff, nil
	}

	if err := t.trackings.AdvanceCursor(ctx, tracking.HID, diff.NextCursor, now); err != nil {
		return diff, err
	}

	if _, err := t.pending.AppendPending(ctx, tracking.HID, diff.New); err != nil {
		return diff, err
	}

	if err := t.detected.RecordDetected(ctx, tracking.HID, diff.New, now); err != nil {
		slog.Warn("Failed to record detected chapters", "hid", tracking.HID, "error", err)
	}

	return diff, nil
}

// Initialize starts tracking hid, treating every chapter listed right now as
// already notified. An existing tracking is only re-activated. When the source
// is unavailable nothing is stored, so the next sweep retries the seeding.
func (t *Tracker) Initialize(ctx context.Context, hid string) (bool, error) {
	existing, err := t.trackings.GetTracking(ctx, hid)
	if err != nil {
		return false, err
	}

	now := t.Now()

	if existing != nil {
		if err := t.trackings.ActivateTracking(ctx, hid, now); err != nil {
			return false, err
		}
		return false, nil
	}

	chapters := t.fetcher.FetchChapters(ctx, hid)
	if len(chapters) == 0 {
		slog.Warn("Source unavailable, tracking not initialized", "hid", hid)
		return false, nil
	}

	cursor, notified := seed(chapters)

	created, err := t.trackings.CreateTracking(ctx, hid, cursor, notified, now)
	if err != nil {
		return false, err
	}

	if created {
		slog.Info("Initialized tracking", "hid", hid, "chapters", len(notified), "cursor", cursor)
	}

	return created, nil
}

func defaultJitter() time.Duration {
	return 3*time.Second + time.Duration(rand.Int64N(int64(4*time.Second)))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package tracker

import (
	"time"

	"github.com/lysyi3m/manga-notifier/app/comick"
	"github.com/lysyi3m/manga-notifier/app/database"
)

type DiffResult struct {
	New        []database.NewChapter
	NextCursor string
	// Chapters whose created_at is not RFC 3339, making string ordering unreliable
	UnparsableTimestamps int
}

// Diff returns the chapters of a freshly fetched list that are new for t.
// A chapter is new when its number is non-empty, not yet notified, and
// either t has no cursor or its created_at sorts after the cursor.
// NextCursor is the greatest created_at among new chapters and never
// lower than the current cursor.
func Diff(t database.Tracking, chapters []comick.Chapter, now time.Time) DiffResult {
	notified := make(map[string]struct{}, len(t.NotifiedChapters))
	for _, chap := range t.NotifiedChapters {
		notified[chap] = struct{}{}
	}

	result := DiffResult{NextCursor: t.Cursor}
	seen := make(map[string]struct{})

	for _, ch := range chapters {
		if !isRFC3339(ch.CreatedAt) {
			result.UnparsableTimestamps++
		}

		if ch.Chap == "" {
			continue
		}
		if _, ok := notified[ch.Chap]; ok {
			continue
		}
		// Several groups may upload the same number; the first listed wins
		if _, ok := seen[ch.Chap]; ok {
			continue
		}

		if t.Cursor != "" && ch.CreatedAt <= t.Cursor {
			continue
		}

		seen[ch.Chap] = struct{}{}
		result.New = append(result.New, database.NewChapter{
			ChapterID:  ch.ID,
			Chap:       ch.Chap,
			Title:      ch.Title,
			CreatedAt:  ch.CreatedAt,
			GroupName:  ch.GroupName,
			DetectedAt: now,
		})

		if ch.CreatedAt > result.NextCursor {
			result.NextCursor = ch.CreatedAt
		}
	}

	return result
}

// seed returns the notified set and cursor for a newly tracked manga: every
// listed number counts as already notified.
func seed(chapters []comick.Chapter) (string, []string) {
	var cursor string
	var numbers []string
	seen := make(map[string]struct{})

	for _, ch := range chapters {
		if ch.CreatedAt > cursor {
			cursor = ch.CreatedAt
		}
		if ch.Chap == "" {
			continue
		}
		if _, ok := seen[ch.Chap]; ok {
			continue
		}
		seen[ch.Chap] = struct{}{}
		numbers = append(numbers, ch.Chap)
	}

	return cursor, numbers
}

func isRFC3339(createdAt string) bool {
	_, err := time.Parse(time.RFC3339, createdAt)
	return err == nil
}

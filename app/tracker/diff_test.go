package tracker

import (
	"testing"
	"time"

	"github.com/lysyi3m/manga-notifier/app/comick"
	"github.com/lysyi3m/manga-notifier/app/database"
)

var testNow = time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)

func TestDiffNewerThanCursor(t *testing.T) {
	tracking := database.Tracking{HID: "abc", Cursor: "2024-01-01T00:00:00Z"}
	chapters := []comick.Chapter{
		{ID: 5, Chap: "5", CreatedAt: "2024-01-02T00:00:00Z"},
		{ID: 4, Chap: "4", CreatedAt: "2023-12-01T00:00:00Z"},
	}

	result := Diff(tracking, chapters, testNow)

	if len(result.New) != 1 {
		t.Fatalf("Expected 1 new chapter, got %d", len(result.New))
	}
	if result.New[0].Chap != "5" || result.New[0].ChapterID != 5 {
		t.Errorf("Expected chapter 5, got %+v", result.New[0])
	}
	if !result.New[0].DetectedAt.Equal(testNow) {
		t.Errorf("Expected detected at %v, got %v", testNow, result.New[0].DetectedAt)
	}
	if result.NextCursor != "2024-01-02T00:00:00Z" {
		t.Errorf("Expected cursor 2024-01-02T00:00:00Z, got %s", result.NextCursor)
	}
}

func TestDiffWithoutCursorTakesEverything(t *testing.T) {
	tracking := database.Tracking{HID: "abc", NotifiedChapters: []string{"2"}}
	chapters := []comick.Chapter{
		{Chap: "3", CreatedAt: "2024-01-03T00:00:00Z"},
		{Chap: "2", CreatedAt: "2024-01-02T00:00:00Z"},
		{Chap: "1", CreatedAt: "2024-01-01T00:00:00Z"},
		{Chap: "", CreatedAt: "2024-01-04T00:00:00Z"},
	}

	result := Diff(tracking, chapters, testNow)

	if len(result.New) != 2 {
		t.Fatalf("Expected 2 new chapters, got %d", len(result.New))
	}
	if result.New[0].Chap != "3" || result.New[1].Chap != "1" {
		t.Errorf("Unexpected new chapters: %+v", result.New)
	}
	// The unnumbered chapter must not move the cursor
	if result.NextCursor != "2024-01-03T00:00:00Z" {
		t.Errorf("Expected cursor 2024-01-03T00:00:00Z, got %s", result.NextCursor)
	}
}

func TestDiffSkipsNotifiedAndDuplicates(t *testing.T) {
	tracking := database.Tracking{HID: "abc", Cursor: "2024-01-01T00:00:00Z", NotifiedChapters: []string{"10"}}
	chapters := []comick.Chapter{
		{ID: 1, Chap: "10", CreatedAt: "2024-02-01T00:00:00Z"},
		{ID: 2, Chap: "11", Title: "group A", CreatedAt: "2024-02-02T00:00:00Z"},
		{ID: 3, Chap: "11", Title: "group B", CreatedAt: "2024-02-03T00:00:00Z"},
	}

	result := Diff(tracking, chapters, testNow)

	if len(result.New) != 1 {
		t.Fatalf("Expected 1 new chapter, got %d", len(result.New))
	}
	if result.New[0].Title != "group A" {
		t.Errorf("Expected first listed upload to win, got %q", result.New[0].Title)
	}
}

func TestDiffIsIdempotent(t *testing.T) {
	tracking := database.Tracking{HID: "abc", Cursor: "2024-01-01T00:00:00Z"}
	chapters := []comick.Chapter{
		{Chap: "6", CreatedAt: "2024-01-05T00:00:00Z"},
		{Chap: "5", CreatedAt: "2024-01-02T00:00:00Z"},
	}

	first := Diff(tracking, chapters, testNow)
	if len(first.New) != 2 {
		t.Fatalf("Expected 2 new chapters, got %d", len(first.New))
	}

	tracking.Cursor = first.NextCursor
	for _, ch := range first.New {
		tracking.NotifiedChapters = append(tracking.NotifiedChapters, ch.Chap)
	}

	second := Diff(tracking, chapters, testNow)
	if len(second.New) != 0 {
		t.Errorf("Expected no new chapters on second run, got %d", len(second.New))
	}

	// Even with only the cursor advanced (batch not yet delivered)
	tracking.NotifiedChapters = nil
	if third := Diff(tracking, chapters, testNow); len(third.New) != 0 {
		t.Errorf("Expected no new chapters with advanced cursor, got %d", len(third.New))
	}
}

func TestDiffCursorNeverDecreases(t *testing.T) {
	tracking := database.Tracking{HID: "abc", Cursor: "2024-06-01T00:00:00Z"}
	chapters := []comick.Chapter{
		{Chap: "1", CreatedAt: "2024-01-01T00:00:00Z"},
	}

	result := Diff(tracking, chapters, testNow)
	if result.NextCursor != tracking.Cursor {
		t.Errorf("Expected cursor to stay %s, got %s", tracking.Cursor, result.NextCursor)
	}
	if len(result.New) != 0 {
		t.Errorf("Expected no new chapters, got %d", len(result.New))
	}
}

func TestDiffCountsUnparsableTimestamps(t *testing.T) {
	chapters := []comick.Chapter{
		{Chap: "1", CreatedAt: "2024-01-01T00:00:00Z"},
		{Chap: "2", CreatedAt: "2024-01-01T00:00:00.123456+00:00"},
		{Chap: "3", CreatedAt: "01/02/2024"},
		{Chap: "4", CreatedAt: ""},
	}

	result := Diff(database.Tracking{HID: "abc"}, chapters, testNow)
	if result.UnparsableTimestamps != 2 {
		t.Errorf("Expected 2 unparsable timestamps, got %d", result.UnparsableTimestamps)
	}
}

func TestSeed(t *testing.T) {
	chapters := []comick.Chapter{
		{Chap: "3", CreatedAt: "2024-01-03T00:00:00Z"},
		{Chap: "2", CreatedAt: "2024-01-04T00:00:00Z"},
		{Chap: "2", CreatedAt: "2024-01-01T00:00:00Z"},
		{Chap: "", CreatedAt: "2024-01-02T00:00:00Z"},
	}

	cursor, numbers := seed(chapters)

	if cursor != "2024-01-04T00:00:00Z" {
		t.Errorf("Expected cursor 2024-01-04T00:00:00Z, got %s", cursor)
	}
	if len(numbers) != 2 || numbers[0] != "3" || numbers[1] != "2" {
		t.Errorf("Expected numbers [3 2], got %v", numbers)
	}
}

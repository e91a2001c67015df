package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingRepository_AppendMergesByNumber(t *testing.T) {
	ctx := context.Background()
	repo := NewPendingRepository(setupTestDB(t))
	now := time.Now()

	added, err := repo.AppendPending(ctx, "abc", []NewChapter{
		{ChapterID: 1, Chap: "5", Title: "first", GroupName: []string{"scans"}, DetectedAt: now},
		{ChapterID: 2, Chap: "6", DetectedAt: now},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	added, err = repo.AppendPending(ctx, "abc", []NewChapter{
		{ChapterID: 3, Chap: "5", Title: "second", DetectedAt: now},
		{ChapterID: 4, Chap: "7", DetectedAt: now},
		{ChapterID: 5, Chap: "", DetectedAt: now},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, added)

	chapters, err := repo.DrainPending(ctx, "abc")
	require.NoError(t, err)
	require.Len(t, chapters, 3)

	assert.Equal(t, "5", chapters[0].Chap)
	assert.Equal(t, "first", chapters[0].Title)
	assert.Equal(t, int64(1), chapters[0].ChapterID)
	assert.Equal(t, []string{"scans"}, chapters[0].GroupName)
	assert.Equal(t, "6", chapters[1].Chap)
	assert.Equal(t, "7", chapters[2].Chap)
}

func TestPendingRepository_DrainRemovesBatch(t *testing.T) {
	ctx := context.Background()
	repo := NewPendingRepository(setupTestDB(t))
	now := time.Now()

	_, err := repo.AppendPending(ctx, "a", []NewChapter{{Chap: "1", DetectedAt: now}})
	require.NoError(t, err)
	_, err = repo.AppendPending(ctx, "b", []NewChapter{{Chap: "1", DetectedAt: now}, {Chap: "2", DetectedAt: now}})
	require.NoError(t, err)

	handles, err := repo.ListPendingHandles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, handles)

	count, err := repo.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	drained, err := repo.DrainPending(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, drained, 1)

	drained, err = repo.DrainPending(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, drained)

	handles, err = repo.ListPendingHandles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, handles)
}

func TestDetectedRepository_RecordListPrune(t *testing.T) {
	ctx := context.Background()
	repo := NewDetectedRepository(setupTestDB(t))
	old := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.RecordDetected(ctx, "abc", []NewChapter{{Chap: "1", DetectedAt: old}}, old))
	require.NoError(t, repo.RecordDetected(ctx, "abc", []NewChapter{{Chap: "2", Title: "Two"}}, recent))
	require.NoError(t, repo.RecordDetected(ctx, "xyz", []NewChapter{{Chap: "9"}}, recent))
	require.NoError(t, repo.RecordDetected(ctx, "xyz", nil, recent))

	detected, err := repo.ListDetected(ctx, "abc", 10)
	require.NoError(t, err)
	require.Len(t, detected, 2)
	assert.Equal(t, "2", detected[0].Chap)
	assert.Equal(t, "Two", detected[0].Title)
	assert.Equal(t, "abc", detected[0].HID)

	all, err := repo.ListDetected(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pruned, err := repo.PruneDetected(ctx, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	detected, err = repo.ListDetected(ctx, "abc", 10)
	require.NoError(t, err)
	require.Len(t, detected, 1)
	assert.Equal(t, "2", detected[0].Chap)
}

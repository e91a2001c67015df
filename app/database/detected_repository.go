package database

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// DetectedRepository keeps the append-only log of detected chapters
type DetectedRepository struct {
	db *DB
}

// NewDetectedRepository creates a new detected chapter repository
func NewDetectedRepository(db *DB) *DetectedRepository {
	return &DetectedRepository{db: db}
}

// RecordDetected appends chapters to the detection log of hid
func (r *DetectedRepository) RecordDetected(ctx context.Context, hid string, chapters []NewChapter, now time.Time) error {
	if len(chapters) == 0 {
		return nil
	}

	insert := sq.Insert("detected_chapters").
		Columns("hid", "chap", "chapter_id", "title", "created_at", "group_name", "detected_at")

	for _, ch := range chapters {
		groups, err := encodeGroups(ch.GroupName)
		if err != nil {
			return err
		}
		insert = insert.Values(hid, ch.Chap, ch.ChapterID, ch.Title, ch.CreatedAt, groups, detectedNow(ch, now))
	}

	query, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("failed to build detected insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record detected chapters: %w", err)
	}
	return nil
}

// ListDetected returns the most recent detections, newest first. An empty
// hid lists across all mangas.
func (r *DetectedRepository) ListDetected(ctx context.Context, hid string, limit int) ([]DetectedChapter, error) {
	query := sq.Select("id", "hid", "chapter_id", "chap", "title", "created_at", "group_name", "detected_at").
		From("detected_chapters").
		OrderBy("detected_at DESC", "id DESC")

	if hid != "" {
		query = query.Where(sq.Eq{"hid": hid})
	}
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build detected query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list detected chapters: %w", err)
	}
	defer rows.Close()

	var detected []DetectedChapter
	for rows.Next() {
		var d DetectedChapter
		var groups string
		if err := rows.Scan(&d.ID, &d.HID, &d.ChapterID, &d.Chap, &d.Title, &d.CreatedAt, &groups, &d.DetectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan detected chapter: %w", err)
		}
		if err := decodeGroups(groups, &d.GroupName); err != nil {
			return nil, err
		}
		detected = append(detected, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate detected chapters: %w", err)
	}

	return detected, nil
}

// PruneDetected deletes log entries detected before the cutoff
func (r *DetectedRepository) PruneDetected(ctx context.Context, before time.Time) (int64, error) {
	query, args, err := sq.Delete("detected_chapters").
		Where(sq.Lt{"detected_at": before.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build prune query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune detected chapters: %w", err)
	}
	return res.RowsAffected()
}

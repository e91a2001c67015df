package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PendingRepository handles the per-manga batches of chapters awaiting notification
type PendingRepository struct {
	db *DB
}

// NewPendingRepository creates a new pending repository
func NewPendingRepository(db *DB) *PendingRepository {
	return &PendingRepository{db: db}
}

// AppendPending merges chapters into the pending batch of hid. A chapter
// number already in the batch keeps its first stored entry. It returns the
// number of chapters actually added.
func (r *PendingRepository) AppendPending(ctx context.Context, hid string, chapters []NewChapter) (int, error) {
	if len(chapters) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	added := 0
	for _, ch := range chapters {
		if ch.Chap == "" {
			continue
		}

		groups, err := encodeGroups(ch.GroupName)
		if err != nil {
			return 0, err
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO pending_chapters (hid, chap, chapter_id, title, created_at, group_name, detected_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (hid, chap) DO NOTHING
		`, hid, ch.Chap, ch.ChapterID, ch.Title, ch.CreatedAt, groups, detectedNow(ch, time.Now()))
		if err != nil {
			return 0, fmt.Errorf("failed to append pending chapter %s: %w", ch.Chap, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("failed to get affected rows: %w", err)
		}
		added += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit pending chapters: %w", err)
	}

	return added, nil
}

// DrainPending reads and deletes the pending batch of hid in one transaction.
// A drained batch is gone even if the caller fails to deliver it.
func (r *PendingRepository) DrainPending(ctx context.Context, hid string) ([]NewChapter, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT chapter_id, chap, title, created_at, group_name, detected_at
		FROM pending_chapters
		WHERE hid = ?
		ORDER BY rowid
	`, hid)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending chapters: %w", err)
	}

	chapters, err := scanChapters(rows)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM pending_chapters WHERE hid = ?`, hid); err != nil {
		return nil, fmt.Errorf("failed to delete pending chapters: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit drain: %w", err)
	}

	return chapters, nil
}

// ListPendingHandles returns every hid with a pending batch, oldest batch first
func (r *PendingRepository) ListPendingHandles(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT hid FROM pending_chapters GROUP BY hid ORDER BY MIN(rowid)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending handles: %w", err)
	}
	return scanStrings(rows)
}

// CountPending returns the number of pending chapters across all batches
func (r *PendingRepository) CountPending(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_chapters`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending chapters: %w", err)
	}
	return count, nil
}

// scanChapters consumes and closes rows of
// (chapter_id, chap, title, created_at, group_name, detected_at).
func scanChapters(rows *sql.Rows) ([]NewChapter, error) {
	defer rows.Close()

	var chapters []NewChapter
	for rows.Next() {
		var ch NewChapter
		var groups string
		if err := rows.Scan(&ch.ChapterID, &ch.Chap, &ch.Title, &ch.CreatedAt, &groups, &ch.DetectedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chapter: %w", err)
		}
		if err := decodeGroups(groups, &ch.GroupName); err != nil {
			return nil, err
		}
		chapters = append(chapters, ch)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chapters: %w", err)
	}

	return chapters, nil
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		values = append(values, v)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rows: %w", err)
	}

	return values, nil
}

func encodeGroups(groups []string) (string, error) {
	if groups == nil {
		groups = []string{}
	}
	b, err := json.Marshal(groups)
	if err != nil {
		return "", fmt.Errorf("failed to encode group names: %w", err)
	}
	return string(b), nil
}

func decodeGroups(raw string, groups *[]string) error {
	if raw == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw), groups); err != nil {
		return fmt.Errorf("failed to decode group names: %w", err)
	}
	return nil
}

func detectedNow(ch NewChapter, now time.Time) time.Time {
	if ch.DetectedAt.IsZero() {
		return now.UTC()
	}
	return ch.DetectedAt.UTC()
}

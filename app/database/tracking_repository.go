package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// TrackingRepository handles database operations for manga trackings
type TrackingRepository struct {
	db *DB
}

// NewTrackingRepository creates a new tracking repository
func NewTrackingRepository(db *DB) *TrackingRepository {
	return &TrackingRepository{db: db}
}

// GetTracking returns the tracking for hid with its notified set, or nil if none exists
func (r *TrackingRepository) GetTracking(ctx context.Context, hid string) (*Tracking, error) {
	var t Tracking
	var cursor sql.NullString
	var lastChecked sql.NullTime

	err := r.db.QueryRowContext(ctx, `
		SELECT hid, last_created_at, last_checked_at, is_active, created_at, updated_at
		FROM manga_trackings
		WHERE hid = ?
	`, hid).Scan(&t.HID, &cursor, &lastChecked, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tracking: %w", err)
	}

	t.Cursor = cursor.String
	if lastChecked.Valid {
		checked := lastChecked.Time
		t.LastCheckedAt = &checked
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT chap FROM notified_chapters WHERE hid = ? ORDER BY rowid
	`, hid)
	if err != nil {
		return nil, fmt.Errorf("failed to get notified chapters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var chap string
		if err := rows.Scan(&chap); err != nil {
			return nil, fmt.Errorf("failed to scan notified chapter: %w", err)
		}
		t.NotifiedChapters = append(t.NotifiedChapters, chap)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notified chapters: %w", err)
	}

	return &t, nil
}

// CreateTracking inserts a tracking seeded with cursor and notified chapters.
// It returns false without touching anything when the tracking already exists.
func (r *TrackingRepository) CreateTracking(ctx context.Context, hid, cursor string, notified []string, now time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now = now.UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO manga_trackings (hid, last_created_at, is_active, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT (hid) DO NOTHING
	`, hid, nullString(cursor), now, now)
	if err != nil {
		return false, fmt.Errorf("failed to create tracking: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	if err := insertNotified(ctx, tx, hid, notified, now); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit tracking: %w", err)
	}

	return true, nil
}

// ActivateTracking marks an existing tracking as active
func (r *TrackingRepository) ActivateTracking(ctx context.Context, hid string, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE manga_trackings SET is_active = 1, updated_at = ? WHERE hid = ?
	`, now.UTC(), hid)
	if err != nil {
		return fmt.Errorf("failed to activate tracking: %w", err)
	}
	return nil
}

// AdvanceCursor moves the cursor forward and records the check time.
// The update only applies when cursor is newer than the stored one.
func (r *TrackingRepository) AdvanceCursor(ctx context.Context, hid, cursor string, checkedAt time.Time) error {
	if cursor == "" {
		return nil
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE manga_trackings
		SET last_created_at = ?, last_checked_at = ?, updated_at = ?
		WHERE hid = ? AND (last_created_at IS NULL OR last_created_at = '' OR last_created_at < ?)
	`, cursor, checkedAt.UTC(), checkedAt.UTC(), hid, cursor)
	if err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}
	return nil
}

// TouchChecked records a check that found chapters but nothing new
func (r *TrackingRepository) TouchChecked(ctx context.Context, hid string, checkedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE manga_trackings SET last_checked_at = ? WHERE hid = ?
	`, checkedAt.UTC(), hid)
	if err != nil {
		return fmt.Errorf("failed to update check time: %w", err)
	}
	return nil
}

// MarkNotified adds chapters to the notified set of hid
func (r *TrackingRepository) MarkNotified(ctx context.Context, hid string, chapters []string, now time.Time) error {
	if len(chapters) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertNotified(ctx, tx, hid, chapters, now.UTC()); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE manga_trackings SET updated_at = ? WHERE hid = ?
	`, now.UTC(), hid); err != nil {
		return fmt.Errorf("failed to touch tracking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit notified chapters: %w", err)
	}
	return nil
}

// ListTrackings returns all trackings without their notified sets
func (r *TrackingRepository) ListTrackings(ctx context.Context) ([]Tracking, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT hid, last_created_at, last_checked_at, is_active, created_at, updated_at
		FROM manga_trackings
		ORDER BY hid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list trackings: %w", err)
	}
	defer rows.Close()

	var trackings []Tracking
	for rows.Next() {
		var t Tracking
		var cursor sql.NullString
		var lastChecked sql.NullTime

		if err := rows.Scan(&t.HID, &cursor, &lastChecked, &t.IsActive, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tracking: %w", err)
		}
		t.Cursor = cursor.String
		if lastChecked.Valid {
			checked := lastChecked.Time
			t.LastCheckedAt = &checked
		}
		trackings = append(trackings, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trackings: %w", err)
	}

	return trackings, nil
}

// Wipe deletes all trackings, pending chapters, notification histories and
// job statuses. Subscriptions, tokens and mangas are kept.
func (r *TrackingRepository) Wipe(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{
		"notified_chapters",
		"manga_trackings",
		"pending_chapters",
		"notification_histories",
		"cron_jobs",
	} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to wipe %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit wipe: %w", err)
	}
	return nil
}

func insertNotified(ctx context.Context, tx *sql.Tx, hid string, chapters []string, now time.Time) error {
	for _, chap := range chapters {
		if chap == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO notified_chapters (hid, chap, notified_at) VALUES (?, ?, ?)
			ON CONFLICT (hid, chap) DO NOTHING
		`, hid, chap, now); err != nil {
			return fmt.Errorf("failed to mark chapter %s notified: %w", chap, err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

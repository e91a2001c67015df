package database

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// HistoryRepository stores the summaries of notification runs
type HistoryRepository struct {
	db *DB
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// SaveHistory writes h, replacing any record with the same id
func (r *HistoryRepository) SaveHistory(ctx context.Context, h NotificationHistory) error {
	notifications := string(h.MangaNotifications)
	if notifications == "" {
		notifications = "[]"
	}

	query, args, err := sq.Insert("notification_histories").
		Options("OR REPLACE").
		Columns("id", "sent_at", "type", "day", "manga_notifications",
			"total_manga_processed", "total_notifications_sent",
			"total_success", "total_failures", "processing_time_seconds").
		Values(h.ID, h.SentAt.UTC(), h.Type, h.Day, notifications,
			h.TotalMangaProcessed, h.TotalNotificationsSent,
			h.TotalSuccess, h.TotalFailures, h.ProcessingSeconds).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build history insert: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save notification history: %w", err)
	}
	return nil
}

// ListHistories returns notification runs newest first, optionally filtered by day
func (r *HistoryRepository) ListHistories(ctx context.Context, day string, limit int) ([]NotificationHistory, error) {
	query := sq.Select("id", "sent_at", "type", "day", "manga_notifications",
		"total_manga_processed", "total_notifications_sent",
		"total_success", "total_failures", "processing_time_seconds").
		From("notification_histories").
		OrderBy("sent_at DESC")

	if day != "" {
		query = query.Where(sq.Eq{"day": day})
	}
	if limit > 0 {
		query = query.Limit(uint64(limit))
	}

	sqlQuery, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build history query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification histories: %w", err)
	}
	defer rows.Close()

	var histories []NotificationHistory
	for rows.Next() {
		var h NotificationHistory
		var notifications string
		if err := rows.Scan(&h.ID, &h.SentAt, &h.Type, &h.Day, &notifications,
			&h.TotalMangaProcessed, &h.TotalNotificationsSent,
			&h.TotalSuccess, &h.TotalFailures, &h.ProcessingSeconds); err != nil {
			return nil, fmt.Errorf("failed to scan notification history: %w", err)
		}
		h.MangaNotifications = []byte(notifications)
		histories = append(histories, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notification histories: %w", err)
	}

	return histories, nil
}

// PruneHistories deletes runs sent before the cutoff
func (r *HistoryRepository) PruneHistories(ctx context.Context, before time.Time) (int64, error) {
	query, args, err := sq.Delete("notification_histories").
		Where(sq.Lt{"sent_at": before.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build prune query: %w", err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to prune notification histories: %w", err)
	}
	return res.RowsAffected()
}

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// MangaRepository maps client-facing manga ids to source handles and titles
type MangaRepository struct {
	db *DB
}

// NewMangaRepository creates a new manga repository
func NewMangaRepository(db *DB) *MangaRepository {
	return &MangaRepository{db: db}
}

// GetManga returns the manga with the given id, or nil if none exists
func (r *MangaRepository) GetManga(ctx context.Context, id string) (*Manga, error) {
	var m Manga
	err := r.db.QueryRowContext(ctx, `
		SELECT id, hid, title, created_at, updated_at FROM mangas WHERE id = ?
	`, id).Scan(&m.ID, &m.HID, &m.Title, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get manga: %w", err)
	}
	return &m, nil
}

// UpsertManga inserts or updates a manga record
func (r *MangaRepository) UpsertManga(ctx context.Context, id, hid, title string) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mangas (id, hid, title, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			hid = excluded.hid,
			title = excluded.title,
			updated_at = excluded.updated_at
	`, id, hid, title, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert manga: %w", err)
	}
	return nil
}

// GetTitle returns the title stored for hid, falling back to "Manga <hid>"
func (r *MangaRepository) GetTitle(ctx context.Context, hid string) (string, error) {
	var title string
	err := r.db.QueryRowContext(ctx, `
		SELECT title FROM mangas WHERE hid = ? AND title != '' ORDER BY updated_at DESC LIMIT 1
	`, hid).Scan(&title)
	if err == sql.ErrNoRows {
		return "Manga " + hid, nil
	}
	if err != nil {
		return "Manga " + hid, fmt.Errorf("failed to get manga title: %w", err)
	}
	return title, nil
}

package database

import (
	"context"
	"fmt"
	"time"
)

// SubscriptionRepository handles user subscriptions and device tokens
type SubscriptionRepository struct {
	db *DB
}

// NewSubscriptionRepository creates a new subscription repository
func NewSubscriptionRepository(db *DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Subscribe adds hid to the subscriptions of userID
func (r *SubscriptionRepository) Subscribe(ctx context.Context, userID, hid string) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, hid, created_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, hid) DO NOTHING
	`, userID, hid, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return ErrAlreadySubscribed
	}
	return nil
}

// Unsubscribe removes hid from the subscriptions of userID
func (r *SubscriptionRepository) Unsubscribe(ctx context.Context, userID, hid string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM subscriptions WHERE user_id = ? AND hid = ?
	`, userID, hid)
	if err != nil {
		return fmt.Errorf("failed to unsubscribe: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotSubscribed
	}
	return nil
}

// GetSubscribers returns the ids of users subscribed to hid
func (r *SubscriptionRepository) GetSubscribers(ctx context.Context, hid string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id FROM subscriptions WHERE hid = ? ORDER BY created_at, user_id
	`, hid)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscribers: %w", err)
	}
	return scanStrings(rows)
}

// GetUserSubscriptions returns the handles userID is subscribed to
func (r *SubscriptionRepository) GetUserSubscriptions(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT hid FROM subscriptions WHERE user_id = ? ORDER BY created_at, hid
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user subscriptions: %w", err)
	}
	return scanStrings(rows)
}

// ListSubscribedHandles returns the distinct handles across all subscriptions
func (r *SubscriptionRepository) ListSubscribedHandles(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT hid FROM subscriptions ORDER BY hid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribed handles: %w", err)
	}
	return scanStrings(rows)
}

// AddToken registers a device token for userID
func (r *SubscriptionRepository) AddToken(ctx context.Context, userID, token string) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO fcm_tokens (user_id, token, created_at) VALUES (?, ?, ?)
		ON CONFLICT (user_id, token) DO NOTHING
	`, userID, token, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to add token: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return ErrTokenExists
	}
	return nil
}

// RemoveToken removes a device token of userID
func (r *SubscriptionRepository) RemoveToken(ctx context.Context, userID, token string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM fcm_tokens WHERE user_id = ? AND token = ?
	`, userID, token)
	if err != nil {
		return fmt.Errorf("failed to remove token: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return ErrTokenNotFound
	}
	return nil
}

// GetTokens returns the device tokens of userID in registration order
func (r *SubscriptionRepository) GetTokens(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT token FROM fcm_tokens WHERE user_id = ? ORDER BY rowid
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get tokens: %w", err)
	}
	return scanStrings(rows)
}

package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionRepository_Subscriptions(t *testing.T) {
	ctx := context.Background()
	repo := NewSubscriptionRepository(setupTestDB(t))

	require.NoError(t, repo.Subscribe(ctx, "u1", "abc"))
	require.NoError(t, repo.Subscribe(ctx, "u2", "abc"))
	require.NoError(t, repo.Subscribe(ctx, "u1", "xyz"))
	assert.ErrorIs(t, repo.Subscribe(ctx, "u1", "abc"), ErrAlreadySubscribed)

	subscribers, err := repo.GetSubscribers(ctx, "abc")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"u1", "u2"}, subscribers)

	handles, err := repo.ListSubscribedHandles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc", "xyz"}, handles)

	require.NoError(t, repo.Unsubscribe(ctx, "u1", "xyz"))
	assert.ErrorIs(t, repo.Unsubscribe(ctx, "u1", "xyz"), ErrNotSubscribed)

	subs, err := repo.GetUserSubscriptions(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"abc"}, subs)

	handles, err = repo.ListSubscribedHandles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"abc"}, handles)
}

func TestSubscriptionRepository_Tokens(t *testing.T) {
	ctx := context.Background()
	repo := NewSubscriptionRepository(setupTestDB(t))

	require.NoError(t, repo.AddToken(ctx, "u1", "tok-a"))
	require.NoError(t, repo.AddToken(ctx, "u1", "tok-b"))
	// The same token may belong to several users
	require.NoError(t, repo.AddToken(ctx, "u2", "tok-a"))
	assert.ErrorIs(t, repo.AddToken(ctx, "u1", "tok-a"), ErrTokenExists)

	tokens, err := repo.GetTokens(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-a", "tok-b"}, tokens)

	require.NoError(t, repo.RemoveToken(ctx, "u1", "tok-a"))
	assert.ErrorIs(t, repo.RemoveToken(ctx, "u1", "tok-a"), ErrTokenNotFound)

	tokens, err = repo.GetTokens(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"tok-b"}, tokens)

	tokens, err = repo.GetTokens(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestMangaRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMangaRepository(setupTestDB(t))

	manga, err := repo.GetManga(ctx, "42")
	require.NoError(t, err)
	assert.Nil(t, manga)

	title, err := repo.GetTitle(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "Manga abc", title)

	require.NoError(t, repo.UpsertManga(ctx, "42", "abc", "Old Title"))
	require.NoError(t, repo.UpsertManga(ctx, "42", "abc", "One Piece"))

	manga, err = repo.GetManga(ctx, "42")
	require.NoError(t, err)
	require.NotNil(t, manga)
	assert.Equal(t, "abc", manga.HID)
	assert.Equal(t, "One Piece", manga.Title)

	title, err = repo.GetTitle(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "One Piece", title)
}

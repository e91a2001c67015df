package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/manga-notifier/app/database"
)

func (h *Handler) Subscribe(c *gin.Context) {
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "message": err.Error()})
		return
	}

	ctx := c.Request.Context()
	userID := c.GetString(userIDKey)

	manga, ok := h.resolveManga(c, req.MangaID)
	if !ok {
		return
	}

	err := h.Subscriptions.Subscribe(ctx, userID, manga.HID)
	if errors.Is(err, database.ErrAlreadySubscribed) {
		c.JSON(http.StatusConflict, gin.H{"error": "You already subscribed to this manga: " + manga.Title})
		return
	}
	if err != nil {
		slog.Error("Failed to subscribe", "user_id", userID, "hid", manga.HID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to subscribe to manga"})
		return
	}

	slog.Info("User subscribed", "user_id", userID, "manga_id", req.MangaID, "hid", manga.HID, "title", manga.Title)

	// Seed tracking now so the next sweep starts from the current chapters.
	// A failed seed is retried by the sweep.
	if _, err := h.Tracker.Initialize(ctx, manga.HID); err != nil {
		slog.Warn("Failed to initialize tracking", "hid", manga.HID, "error", err)
	}

	h.subscriptionResponse(c, userID, req.MangaID, "Successfully subscribed to manga: "+manga.Title)
}

func (h *Handler) Unsubscribe(c *gin.Context) {
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "message": err.Error()})
		return
	}

	userID := c.GetString(userIDKey)

	manga, ok := h.resolveManga(c, req.MangaID)
	if !ok {
		return
	}

	err := h.Subscriptions.Unsubscribe(c.Request.Context(), userID, manga.HID)
	if errors.Is(err, database.ErrNotSubscribed) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User did not subscribe to this manga: " + manga.Title})
		return
	}
	if err != nil {
		slog.Error("Failed to unsubscribe", "user_id", userID, "hid", manga.HID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to unsubscribe from manga"})
		return
	}

	slog.Info("User unsubscribed", "user_id", userID, "manga_id", req.MangaID, "hid", manga.HID)

	h.subscriptionResponse(c, userID, req.MangaID, "Successfully unsubscribed from manga: "+manga.Title)
}

func (h *Handler) GetSubscriptions(c *gin.Context) {
	userID := c.GetString(userIDKey)

	subscriptions, err := h.Subscriptions.GetUserSubscriptions(c.Request.Context(), userID)
	if err != nil {
		slog.Error("Database error", "operation", "get_user_subscriptions", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":       userID,
		"subscriptions": subscriptions,
	})
}

func (h *Handler) SaveToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "message": err.Error()})
		return
	}

	userID := c.GetString(userIDKey)

	err := h.Subscriptions.AddToken(c.Request.Context(), userID, req.FCMToken)
	if errors.Is(err, database.ErrTokenExists) {
		c.JSON(http.StatusConflict, gin.H{"error": "FCM token already saved"})
		return
	}
	if err != nil {
		slog.Error("Failed to save FCM token", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save FCM token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "FCM token saved successfully",
	})
}

func (h *Handler) RemoveToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "message": err.Error()})
		return
	}

	userID := c.GetString(userIDKey)

	err := h.Subscriptions.RemoveToken(c.Request.Context(), userID, req.FCMToken)
	if errors.Is(err, database.ErrTokenNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "FCM token does not exist"})
		return
	}
	if err != nil {
		slog.Error("Failed to remove FCM token", "user_id", userID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove FCM token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "FCM token removed successfully",
	})
}

func (h *Handler) SendNotification(c *gin.Context) {
	var req notificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "message": err.Error()})
		return
	}

	ctx := c.Request.Context()

	hid, err := h.lookupHID(ctx, req.MangaID)
	if err != nil {
		slog.Error("Database error", "operation", "get_manga", "manga_id", req.MangaID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	outcome, err := h.Dispatcher.SendToManga(ctx, hid, req.Title, req.Body, stringData(req.Data))
	if err != nil {
		slog.Error("Failed to send manga notification", "hid", hid, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to send notification", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"message":           outcome.Message,
		"subscribers_count": outcome.SubscribersCount,
		"tokens_count":      outcome.TokensCount,
		"fcm_response":      outcome,
	})
}

func (h *Handler) SendTestNotification(c *gin.Context) {
	var req testNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "message": err.Error()})
		return
	}

	outcome := h.Dispatcher.SendToTokens(c.Request.Context(), req.Tokens, req.Title, req.Body, stringData(req.Data))

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      fmt.Sprintf("Test notification sent to %d tokens", len(req.Tokens)),
		"tokens_count": len(req.Tokens),
		"fcm_response": outcome,
	})
}

// resolveManga maps a client manga id to its handle, asking the content
// source on a cache miss. It writes the error response itself.
func (h *Handler) resolveManga(c *gin.Context, id string) (*database.Manga, bool) {
	ctx := c.Request.Context()

	manga, err := h.Mangas.GetManga(ctx, id)
	if err != nil {
		slog.Error("Database error", "operation", "get_manga", "manga_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return nil, false
	}
	if manga != nil {
		return manga, true
	}

	info := h.Source.ResolveManga(ctx, id)
	if info == nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "Could not get manga info", "manga_id": id})
		return nil, false
	}

	if err := h.Mangas.UpsertManga(ctx, id, info.HID, info.Title); err != nil {
		slog.Warn("Failed to store manga info", "manga_id", id, "hid", info.HID, "error", err)
	}

	return &database.Manga{ID: id, HID: info.HID, Title: info.Title}, true
}

// lookupHID returns the stored handle for a client id, or the id itself
// when it is not known.
func (h *Handler) lookupHID(ctx context.Context, id string) (string, error) {
	manga, err := h.Mangas.GetManga(ctx, id)
	if err != nil {
		return "", err
	}
	if manga == nil {
		return id, nil
	}
	return manga.HID, nil
}

func (h *Handler) subscriptionResponse(c *gin.Context, userID, mangaID, message string) {
	subscriptions, err := h.Subscriptions.GetUserSubscriptions(c.Request.Context(), userID)
	if err != nil {
		slog.Warn("Failed to list subscriptions", "user_id", userID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       message,
		"manga_id":      mangaID,
		"subscriptions": subscriptions,
	})
}

func stringData(data map[string]any) map[string]string {
	if len(data) == 0 {
		return nil
	}
	out := make(map[string]string, len(data))
	for k, v := range data {
		out[k] = fmt.Sprint(v)
	}
	return out
}

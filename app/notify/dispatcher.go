package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/lysyi3m/manga-notifier/app/database"
)

const (
	DayWednesday = "wednesday"
	DaySaturday  = "saturday"
)

type PendingSource interface {
	ListPendingHandles(ctx context.Context) ([]string, error)
	DrainPending(ctx context.Context, hid string) ([]database.NewChapter, error)
}

type SubscriberSource interface {
	GetSubscribers(ctx context.Context, hid string) ([]string, error)
	GetTokens(ctx context.Context, userID string) ([]string, error)
}

type TitleSource interface {
	GetTitle(ctx context.Context, hid string) (string, error)
}

type NotifiedMarker interface {
	MarkNotified(ctx context.Context, hid string, chapters []string, now time.Time) error
}

type HistoryWriter interface {
	SaveHistory(ctx context.Context, h database.NotificationHistory) error
}

type TokenResult struct {
	Index     int      `json:"index"`
	Token     string   `json:"token"`
	Success   bool     `json:"success"`
	MessageID string   `json:"message_id,omitempty"`
	Error     string   `json:"error,omitempty"`
	Category  Category `json:"category,omitempty"`
}

// Outcome reports a fan-out to a list of device tokens
type Outcome struct {
	Message          string        `json:"message"`
	SubscribersCount int           `json:"subscribers_count"`
	TokensCount      int           `json:"tokens_count"`
	SuccessCount     int           `json:"success_count"`
	FailureCount     int           `json:"failure_count"`
	Skipped          int           `json:"skipped"`
	Results          []TokenResult `json:"results,omitempty"`
}

type MangaResult struct {
	MangaHID         string   `json:"manga_hid"`
	ChaptersSent     []string `json:"chapters_sent"`
	SubscribersCount int      `json:"subscribers_count"`
	SuccessCount     int      `json:"success_count"`
	FailureCount     int      `json:"failure_count"`
	Error            string   `json:"error,omitempty"`
}

type BatchResult struct {
	Day                    string        `json:"day"`
	TotalMangaProcessed    int           `json:"total_manga_processed"`
	TotalNotificationsSent int           `json:"total_notifications_sent"`
	TotalSuccess           int           `json:"total_success"`
	TotalFailures          int           `json:"total_failures"`
	MangaNotifications     []MangaResult `json:"manga_notifications"`
	ProcessingSeconds      float64       `json:"processing_time_seconds"`
}

// Dispatcher delivers pending chapter batches to subscribers' devices
type Dispatcher struct {
	sender        Sender
	pending       PendingSource
	subscriptions SubscriberSource
	titles        TitleSource
	notified      NotifiedMarker
	histories     HistoryWriter

	Now func() time.Time
}

func NewDispatcher(sender Sender, pending PendingSource, subscriptions SubscriberSource, titles TitleSource, notified NotifiedMarker, histories HistoryWriter) *Dispatcher {
	return &Dispatcher{
		sender:        sender,
		pending:       pending,
		subscriptions: subscriptions,
		titles:        titles,
		notified:      notified,
		histories:     histories,
		Now:           func() time.Time { return time.Now().UTC() },
	}
}

// SendScheduled delivers every pending batch and records a scheduled history entry
func (d *Dispatcher) SendScheduled(ctx context.Context, day string) (*BatchResult, error) {
	return d.sendPending(ctx, day, database.HistoryTypeScheduled)
}

// SendManual is SendScheduled for operator-triggered runs
func (d *Dispatcher) SendManual(ctx context.Context, day string) (*BatchResult, error) {
	return d.sendPending(ctx, day, database.HistoryTypeManual)
}

func (d *Dispatcher) sendPending(ctx context.Context, day, historyType string) (*BatchResult, error) {
	start := d.Now()

	day, err := ResolveDay(day, start)
	if err != nil {
		return nil, err
	}

	handles, err := d.pending.ListPendingHandles(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending batches: %w", err)
	}

	slog.Info("Starting notification batch", "day", day, "manga", len(handles))

	result := &BatchResult{
		Day:                day,
		MangaNotifications: []MangaResult{},
	}

	for _, hid := range handles {
		chapters, err := d.pending.DrainPending(ctx, hid)
		if err != nil {
			slog.Error("Failed to drain pending batch", "hid", hid, "error", err)
			result.MangaNotifications = append(result.MangaNotifications, MangaResult{
				MangaHID:     hid,
				ChaptersSent: []string{},
				Error:        err.Error(),
			})
			continue
		}
		if len(chapters) == 0 {
			continue
		}

		mangaResult := d.sendBatch(ctx, hid, chapters)

		if err := d.notified.MarkNotified(ctx, hid, mangaResult.ChaptersSent, d.Now()); err != nil {
			slog.Error("Failed to mark chapters notified", "hid", hid, "error", err)
			if mangaResult.Error == "" {
				mangaResult.Error = err.Error()
			}
		}

		result.MangaNotifications = append(result.MangaNotifications, mangaResult)
		result.TotalMangaProcessed++
		result.TotalNotificationsSent += mangaResult.SubscribersCount
		result.TotalSuccess += mangaResult.SuccessCount
		result.TotalFailures += mangaResult.FailureCount
	}

	end := d.Now()
	result.ProcessingSeconds = end.Sub(start).Seconds()

	d.saveHistory(ctx, result, historyType, end)

	slog.Info("Notification batch completed",
		"day", day,
		"manga", result.TotalMangaProcessed,
		"success", result.TotalSuccess,
		"failures", result.TotalFailures,
		"duration", end.Sub(start))

	return result, nil
}

func (d *Dispatcher) sendBatch(ctx context.Context, hid string, chapters []database.NewChapter) MangaResult {
	result := MangaResult{MangaHID: hid, ChaptersSent: make([]string, 0, len(chapters))}
	for _, ch := range chapters {
		result.ChaptersSent = append(result.ChaptersSent, ch.Chap)
	}

	mangaTitle, err := d.titles.GetTitle(ctx, hid)
	if err != nil {
		slog.Warn("Failed to get manga title", "hid", hid, "error", err)
	}

	title, body := ComposeMessage(mangaTitle, chapters)
	data := map[string]string{
		"type":           "new_chapters",
		"manga_title":    mangaTitle,
		"chapter_count":  strconv.Itoa(len(chapters)),
		"chapters":       chapterList(chapters),
		"latest_chapter": chapters[0].Chap,
		"timestamp":      d.Now().Format(time.RFC3339),
	}

	outcome, err := d.SendToManga(ctx, hid, title, body, data)
	if err != nil {
		slog.Error("Failed to send manga notifications", "hid", hid, "error", err)
		result.Error = err.Error()
		return result
	}

	result.SubscribersCount = outcome.SubscribersCount
	result.SuccessCount = outcome.SuccessCount
	result.FailureCount = outcome.FailureCount

	return result
}

// SendToManga delivers one message to every device of every subscriber of
// hid. Having no subscribers or no tokens is not an error.
func (d *Dispatcher) SendToManga(ctx context.Context, hid, title, body string, data map[string]string) (*Outcome, error) {
	subscribers, err := d.subscriptions.GetSubscribers(ctx, hid)
	if err != nil {
		return nil, fmt.Errorf("failed to get subscribers: %w", err)
	}

	if len(subscribers) == 0 {
		return &Outcome{Message: "No subscribers found for this manga"}, nil
	}

	var tokens []string
	for _, userID := range subscribers {
		userTokens, err := d.subscriptions.GetTokens(ctx, userID)
		if err != nil {
			slog.Warn("Failed to get device tokens", "user", userID, "error", err)
			continue
		}
		tokens = append(tokens, userTokens...)
	}

	if len(tokens) == 0 {
		return &Outcome{
			Message:          "No FCM tokens found for subscribers",
			SubscribersCount: len(subscribers),
		}, nil
	}

	payload := make(map[string]string, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload["manga_hid"] = hid

	outcome := d.SendToTokens(ctx, tokens, title, body, payload)
	outcome.SubscribersCount = len(subscribers)

	return outcome, nil
}

// SendToTokens attempts delivery to every non-empty token independently
func (d *Dispatcher) SendToTokens(ctx context.Context, tokens []string, title, body string, data map[string]string) *Outcome {
	outcome := &Outcome{TokensCount: len(tokens), Results: []TokenResult{}}

	for i, token := range tokens {
		if strings.TrimSpace(token) == "" {
			outcome.Skipped++
			continue
		}

		res := TokenResult{Index: i, Token: maskToken(token)}

		messageID, err := d.sender.Send(ctx, Message{Token: token, Title: title, Body: body, Data: data})
		if err != nil {
			res.Error = err.Error()
			res.Category = Classify(err)
			outcome.FailureCount++

			attrs := []any{"index", i, "token", res.Token, "category", res.Category, "error", err}
			if hint := res.Category.Hint(); hint != "" {
				attrs = append(attrs, "hint", hint)
			}
			slog.Warn("Push delivery failed", attrs...)
		} else {
			res.Success = true
			res.MessageID = messageID
			outcome.SuccessCount++
		}

		outcome.Results = append(outcome.Results, res)
	}

	outcome.Message = fmt.Sprintf("Notification sent to %d tokens", outcome.TokensCount-outcome.Skipped)

	return outcome
}

func (d *Dispatcher) saveHistory(ctx context.Context, result *BatchResult, historyType string, sentAt time.Time) {
	notifications, err := json.Marshal(result.MangaNotifications)
	if err != nil {
		slog.Error("Failed to encode notification history", "error", err)
		return
	}

	err = d.histories.SaveHistory(ctx, database.NotificationHistory{
		ID:                     fmt.Sprintf("notif_%s_%s", sentAt.Format("20060102"), result.Day),
		SentAt:                 sentAt,
		Type:                   historyType,
		Day:                    result.Day,
		MangaNotifications:     notifications,
		TotalMangaProcessed:    result.TotalMangaProcessed,
		TotalNotificationsSent: result.TotalNotificationsSent,
		TotalSuccess:           result.TotalSuccess,
		TotalFailures:          result.TotalFailures,
		ProcessingSeconds:      result.ProcessingSeconds,
	})
	if err != nil {
		slog.Error("Failed to save notification history", "error", err)
	}
}

func maskToken(token string) string {
	if len(token) <= 20 {
		return token
	}
	return token[:20] + "..."
}

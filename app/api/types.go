package api

import (
	"context"
	"time"

	"github.com/lysyi3m/manga-notifier/app/comick"
	"github.com/lysyi3m/manga-notifier/app/database"
	"github.com/lysyi3m/manga-notifier/app/feed"
	"github.com/lysyi3m/manga-notifier/app/notify"
	"github.com/lysyi3m/manga-notifier/app/tasks"
	"github.com/lysyi3m/manga-notifier/app/tracker"
)

type Scheduler interface {
	TriggerSweep(ctx context.Context) (*tracker.SweepResult, error)
	TriggerNotifications(ctx context.Context, day string) (*notify.BatchResult, error)
	State() tasks.State
	NextRuns() []tasks.ScheduledRun
}

var _ Scheduler = (*tasks.Scheduler)(nil)

type ContentSource interface {
	FetchChapters(ctx context.Context, hid string) []comick.Chapter
	FetchChaptersViaProxy(ctx context.Context, hid string) ([]comick.Chapter, error)
	FetchMangaInfo(ctx context.Context, id string) (*comick.MangaInfo, error)
	ResolveManga(ctx context.Context, id string) *comick.MangaInfo
	TestProxy(ctx context.Context) bool
	ProxyEnabled() bool
}

var _ ContentSource = (*comick.Client)(nil)

type SubscriptionStore interface {
	Subscribe(ctx context.Context, userID, hid string) error
	Unsubscribe(ctx context.Context, userID, hid string) error
	GetUserSubscriptions(ctx context.Context, userID string) ([]string, error)
	AddToken(ctx context.Context, userID, token string) error
	RemoveToken(ctx context.Context, userID, token string) error
}

type MangaStore interface {
	GetManga(ctx context.Context, id string) (*database.Manga, error)
	UpsertManga(ctx context.Context, id, hid, title string) error
	GetTitle(ctx context.Context, hid string) (string, error)
}

type TrackingInitializer interface {
	Initialize(ctx context.Context, hid string) (bool, error)
}

type NotificationSender interface {
	SendToManga(ctx context.Context, hid, title, body string, data map[string]string) (*notify.Outcome, error)
	SendToTokens(ctx context.Context, tokens []string, title, body string, data map[string]string) *notify.Outcome
}

type CronJobLister interface {
	ListCronJobs(ctx context.Context) ([]database.CronJob, error)
}

type HistoryLister interface {
	ListHistories(ctx context.Context, day string, limit int) ([]database.NotificationHistory, error)
}

type CacheHealth interface {
	Health(ctx context.Context) map[string]interface{}
}

type PendingCounter interface {
	CountPending(ctx context.Context) (int, error)
}

type DetectedLister interface {
	ListDetected(ctx context.Context, hid string, limit int) ([]database.DetectedChapter, error)
}

// Services are the collaborators the HTTP handlers are built from
type Services struct {
	Scheduler     Scheduler
	Source        ContentSource
	Subscriptions SubscriptionStore
	Mangas        MangaStore
	Tracker       TrackingInitializer
	Dispatcher    NotificationSender
	CronJobs      CronJobLister
	Histories     HistoryLister
	Detected      DetectedLister
	Pending       PendingCounter
	Cache         CacheHealth // optional
	Generator     *feed.Generator
	Version       string
}

type Handler struct {
	Services
	now func() time.Time
}

type subscriptionRequest struct {
	MangaID string `json:"manga_id" binding:"required"`
}

type tokenRequest struct {
	FCMToken string `json:"fcm_token" binding:"required"`
}

type notificationRequest struct {
	MangaID string         `json:"manga_id" binding:"required"`
	Title   string         `json:"title" binding:"required,max=100"`
	Body    string         `json:"body" binding:"required,max=500"`
	Data    map[string]any `json:"data"`
}

type testNotificationRequest struct {
	Tokens []string       `json:"tokens" binding:"required,min=1"`
	Title  string         `json:"title" binding:"required,max=100"`
	Body   string         `json:"body" binding:"required,max=500"`
	Data   map[string]any `json:"data"`
}

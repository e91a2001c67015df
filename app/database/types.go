package database

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrAlreadySubscribed = errors.New("already subscribed")
	ErrNotSubscribed     = errors.New("not subscribed")
	ErrTokenExists       = errors.New("token already registered")
	ErrTokenNotFound     = errors.New("token not found")
)

// Tracking is the per-manga diff state: the newest created_at already seen
// and every chapter number that has been queued or delivered.
type Tracking struct {
	HID              string
	Cursor           string // empty means no cursor yet
	NotifiedChapters []string
	LastCheckedAt    *time.Time
	IsActive         bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsNotified reports whether chap is already in the notified set.
func (t *Tracking) IsNotified(chap string) bool {
	for _, c := range t.NotifiedChapters {
		if c == chap {
			return true
		}
	}
	return false
}

// NewChapter is a detected chapter waiting for the next notification run.
type NewChapter struct {
	ChapterID  int64
	Chap       string
	Title      string
	CreatedAt  string // source timestamp, kept verbatim
	GroupName  []string
	DetectedAt time.Time
}

// DetectedChapter is an entry of the append-only detection log.
type DetectedChapter struct {
	ID  int64
	HID string
	NewChapter
}

type Manga struct {
	ID        string // client-facing id
	HID       string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

const (
	HistoryTypeScheduled = "scheduled"
	HistoryTypeManual    = "manual"
)

type NotificationHistory struct {
	ID                     string // notif_YYYYMMDD_<day>
	SentAt                 time.Time
	Type                   string
	Day                    string
	MangaNotifications     json.RawMessage
	TotalMangaProcessed    int
	TotalNotificationsSent int
	TotalSuccess           int
	TotalFailures          int
	ProcessingSeconds      float64
}

const (
	CronStatusRunning   = "running"
	CronStatusCompleted = "completed"
	CronStatusFailed    = "failed"
)

type CronJob struct {
	Name                   string
	Status                 string
	LastRun                *time.Time
	LastError              string
	RunCount               int
	AverageDurationSeconds float64
}

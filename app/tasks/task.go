package tasks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	TaskTypeBootstrap     TaskType = "bootstrap"
	TaskTypeChapterCheck  TaskType = "chapter_checker"
	TaskTypeNotifications TaskType = "notification_sender"
	TaskTypeMaintenance   TaskType = "maintenance"
)

// guardKey is the mutual exclusion group of a task type. The bootstrap run
// is a sweep and shares its guard.
func (t TaskType) guardKey() TaskType {
	if t == TaskTypeBootstrap {
		return TaskTypeChapterCheck
	}
	return t
}

type TaskInterface interface {
	Execute(ctx context.Context) error
	GetID() string
	GetType() TaskType
	Start()
	GetDuration() time.Duration
}

type Task struct {
	ID        string
	Type      TaskType
	StartedAt *time.Time
}

func (t *Task) GetID() string {
	return t.ID
}

func (t *Task) GetType() TaskType {
	return t.Type
}

func (t *Task) Start() {
	now := time.Now()
	t.StartedAt = &now
}

func (t *Task) GetDuration() time.Duration {
	if t.StartedAt == nil {
		return 0
	}
	return time.Since(*t.StartedAt)
}

func NewTask(taskType TaskType) Task {
	return Task{
		ID:   uuid.NewString(),
		Type: taskType,
	}
}

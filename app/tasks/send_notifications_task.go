package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/manga-notifier/app/notify"
)

type SendNotificationsTask struct {
	Task
	dispatcher Notifier
	Day        string
	Manual     bool
	Result     *notify.BatchResult
}

func NewSendNotificationsTask(dispatcher Notifier, day string, manual bool) *SendNotificationsTask {
	return &SendNotificationsTask{
		Task:       NewTask(TaskTypeNotifications),
		dispatcher: dispatcher,
		Day:        day,
		Manual:     manual,
	}
}

func (t *SendNotificationsTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	send := t.dispatcher.SendScheduled
	if t.Manual {
		send = t.dispatcher.SendManual
	}

	result, err := send(ctx, t.Day)
	if err != nil {
		return fmt.Errorf("failed to send notifications: %w", err)
	}
	t.Result = result

	slog.Info("Task completed",
		"type", string(t.Type),
		"id", t.ID,
		"day", result.Day,
		"duration", t.GetDuration(),
		"manga", result.TotalMangaProcessed,
		"success", result.TotalSuccess,
		"failures", result.TotalFailures)

	return nil
}

package tasks

import (
	"time"

	"github.com/lysyi3m/manga-notifier/app/cfg"
)

// trigger computes the next fire time after the given instant. A zero time
// means the trigger is exhausted and its entry is removed after that run.
type trigger interface {
	Next(after time.Time) time.Time
}

type intervalTrigger struct {
	interval time.Duration
}

func (t intervalTrigger) Next(after time.Time) time.Time {
	return after.Add(t.interval)
}

type weeklyTrigger struct {
	at  cfg.WeeklyTime
	loc *time.Location
}

func (t weeklyTrigger) Next(after time.Time) time.Time {
	local := after.In(t.loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), t.at.Hour, t.at.Minute, 0, 0, t.loc)

	days := (int(t.at.Day) - int(local.Weekday()) + 7) % 7
	candidate = candidate.AddDate(0, 0, days)

	if !candidate.After(after) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}

type oneShotTrigger struct {
	delay time.Duration
	fired bool
}

func (t *oneShotTrigger) Next(after time.Time) time.Time {
	if t.fired {
		return time.Time{}
	}
	t.fired = true
	return after.Add(t.delay)
}

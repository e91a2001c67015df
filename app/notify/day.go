package notify

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrInvalidDay = errors.New("day must be 'wednesday' or 'saturday'")
	ErrUnknownDay = errors.New("unknown day")
)

// autoDay is wednesday on Wednesdays and saturday otherwise
func autoDay(now time.Time) string {
	if now.Weekday() == time.Wednesday {
		return DayWednesday
	}
	return DaySaturday
}

// NormalizeDay validates a day given by an operator. Only the two delivery
// days are accepted; an empty day is resolved from now.
func NormalizeDay(day string, now time.Time) (string, error) {
	day = strings.ToLower(strings.TrimSpace(day))
	if day == "" {
		return autoDay(now), nil
	}

	if day != DayWednesday && day != DaySaturday {
		return "", ErrInvalidDay
	}
	return day, nil
}

// ResolveDay accepts any weekday name so that custom schedules can label
// their runs. An empty day is resolved from now.
func ResolveDay(day string, now time.Time) (string, error) {
	day = strings.ToLower(strings.TrimSpace(day))
	if day == "" {
		return autoDay(now), nil
	}

	for d := time.Sunday; d <= time.Saturday; d++ {
		if day == strings.ToLower(d.String()) {
			return day, nil
		}
	}
	return "", ErrUnknownDay
}

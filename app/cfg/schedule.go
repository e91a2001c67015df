package cfg

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type scheduleFile struct {
	SweepInterval string         `yaml:"sweep_interval"`
	Notifications []weeklyConfig `yaml:"notifications"`
	Maintenance   *weeklyConfig  `yaml:"maintenance"`
}

type weeklyConfig struct {
	Day string `yaml:"day"`
	At  string `yaml:"at"`
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// DefaultSchedule returns the 12h sweep, Wednesday and Saturday 18:00
// notification runs and Sunday 02:00 maintenance.
func DefaultSchedule() Schedule {
	return Schedule{
		SweepInterval: 12 * time.Hour,
		Notifications: []WeeklyTime{
			{Day: time.Wednesday, Hour: 18},
			{Day: time.Saturday, Hour: 18},
		},
		Maintenance: WeeklyTime{Day: time.Sunday, Hour: 2},
	}
}

// LoadSchedule reads a YAML schedule file on top of base. Fields missing
// from the file keep their base values.
func LoadSchedule(path string, base Schedule) (Schedule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read file: %w", err)
	}

	var raw scheduleFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return base, fmt.Errorf("failed to parse YAML: %w", err)
	}

	schedule := base

	if raw.SweepInterval != "" {
		interval, err := time.ParseDuration(raw.SweepInterval)
		if err != nil {
			return base, fmt.Errorf("invalid sweep_interval: %w", err)
		}
		if interval <= 0 {
			return base, fmt.Errorf("sweep_interval must be positive")
		}
		schedule.SweepInterval = interval
	}

	if len(raw.Notifications) > 0 {
		schedule.Notifications = make([]WeeklyTime, 0, len(raw.Notifications))
		for i, n := range raw.Notifications {
			wt, err := n.parse()
			if err != nil {
				return base, fmt.Errorf("invalid notification at index %d: %w", i, err)
			}
			schedule.Notifications = append(schedule.Notifications, wt)
		}
	}

	if raw.Maintenance != nil {
		wt, err := raw.Maintenance.parse()
		if err != nil {
			return base, fmt.Errorf("invalid maintenance: %w", err)
		}
		schedule.Maintenance = wt
	}

	return schedule, nil
}

func (w weeklyConfig) parse() (WeeklyTime, error) {
	day, ok := weekdays[strings.ToLower(strings.TrimSpace(w.Day))]
	if !ok {
		return WeeklyTime{}, fmt.Errorf("unknown day %q", w.Day)
	}

	at, err := time.Parse("15:04", strings.TrimSpace(w.At))
	if err != nil {
		return WeeklyTime{}, fmt.Errorf("invalid time %q, expected HH:MM", w.At)
	}

	return WeeklyTime{Day: day, Hour: at.Hour(), Minute: at.Minute()}, nil
}

func (w WeeklyTime) String() string {
	return fmt.Sprintf("%s %02d:%02d", w.Day, w.Hour, w.Minute)
}

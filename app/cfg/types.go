package cfg

import "time"

type Cfg struct {
	// Database configuration
	DBPath string

	// Application configuration
	Port             string
	BaseUrl          string
	APIAccessKey     string
	JWTSecret        string
	ScheduleFile     string
	HistoryRetention time.Duration

	// Content source configuration
	ComickBaseURL string
	ZenRowsAPIKey string
	ZenRowsURL    string
	FetchTimeout  time.Duration
	RedisAddr     string
	CacheTTL      time.Duration

	// Push transport configuration
	FirebaseCredentials string

	// Scheduler configuration
	Schedule       Schedule
	PollInterval   time.Duration
	BootstrapDelay time.Duration
	BootstrapReset bool

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}

// Schedule holds the wall-clock triggers of the background scheduler.
type Schedule struct {
	SweepInterval time.Duration
	Notifications []WeeklyTime
	Maintenance   WeeklyTime
}

// WeeklyTime is a weekday plus an hour and minute in the configured timezone.
type WeeklyTime struct {
	Day    time.Weekday
	Hour   int
	Minute int
}

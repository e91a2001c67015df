package cfg

import (
	"cmp"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Database configuration
	DBPath string `long:"db-path" env:"DB_PATH" default:"./data/manga.db" description:"SQLite database file"`

	// Application configuration
	Port             string `long:"port" env:"PORT" default:"8000" description:"HTTP server port"`
	BaseUrl          string `long:"base-url" env:"BASE_URL" description:"Public base URL for the service (e.g., https://manga.example.com)"`
	APIAccessKey     string `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for admin endpoints (optional)"`
	JWTSecret        string `long:"jwt-secret" env:"JWT_SECRET" description:"HS256 secret used to verify user tokens (optional)"`
	ScheduleFile     string `long:"schedule-file" env:"SCHEDULE_FILE" description:"YAML file overriding scheduler trigger times"`
	HistoryRetention int    `long:"history-retention" env:"HISTORY_RETENTION_DAYS" default:"30" description:"Days of notification history kept by weekly maintenance"`

	// Content source configuration
	ComickBaseURL string `long:"comick-url" env:"COMICK_BASE_URL" default:"https://api.comick.fun" description:"Content source API base URL"`
	ZenRowsAPIKey string `long:"zenrows-api-key" env:"ZENROWS_API_KEY" description:"ZenRows API key for protected fetches (optional)"`
	ZenRowsURL    string `long:"zenrows-url" env:"ZENROWS_URL" default:"https://api.zenrows.com/v1/" description:"ZenRows endpoint"`
	FetchTimeout  int    `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"30" description:"Direct fetch timeout in seconds"`
	RedisAddr     string `long:"redis-addr" env:"REDIS_ADDR" description:"Redis address for the resolution cache (optional)"`
	CacheTTL      int    `long:"cache-ttl" env:"CACHE_TTL" default:"86400" description:"Resolution cache TTL in seconds"`

	// Push transport configuration
	FirebaseCredentials string `long:"firebase-credentials" env:"FIREBASE_SERVICE_ACCOUNT_KEY" description:"Firebase service account JSON (optional, disables push when empty)"`

	// Scheduler configuration
	SweepInterval  int  `long:"sweep-interval" env:"SWEEP_INTERVAL" default:"43200" description:"Chapter sweep interval in seconds"`
	PollInterval   int  `long:"poll-interval" env:"POLL_INTERVAL" default:"60" description:"Scheduler poll interval in seconds"`
	BootstrapDelay int  `long:"bootstrap-delay" env:"BOOTSTRAP_DELAY" default:"120" description:"Delay before the initial chapter check in seconds"`
	BootstrapReset bool `long:"bootstrap-reset" env:"BOOTSTRAP_RESET" description:"Wipe tracking, pending and history data before the initial chapter check"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"MangaNotifier/1.0" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for scheduled triggers (e.g., UTC, Asia/Jakarta)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	// A missing .env file is not an error
	_ = godotenv.Load()

	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		DBPath:              raw.DBPath,
		Port:                raw.Port,
		BaseUrl:             raw.BaseUrl,
		APIAccessKey:        raw.APIAccessKey,
		JWTSecret:           raw.JWTSecret,
		ScheduleFile:        raw.ScheduleFile,
		HistoryRetention:    time.Duration(raw.HistoryRetention) * 24 * time.Hour,
		ComickBaseURL:       raw.ComickBaseURL,
		ZenRowsAPIKey:       raw.ZenRowsAPIKey,
		ZenRowsURL:          raw.ZenRowsURL,
		FetchTimeout:        time.Duration(raw.FetchTimeout) * time.Second,
		RedisAddr:           raw.RedisAddr,
		CacheTTL:            time.Duration(raw.CacheTTL) * time.Second,
		FirebaseCredentials: raw.FirebaseCredentials,
		Schedule:            DefaultSchedule(),
		PollInterval:        time.Duration(raw.PollInterval) * time.Second,
		BootstrapDelay:      time.Duration(raw.BootstrapDelay) * time.Second,
		BootstrapReset:      raw.BootstrapReset,
		UserAgent:           raw.UserAgent,
		Timezone:            raw.Timezone,
		Debug:               raw.Debug,
		Version:             GetVersion(),
	}
	cfg.Schedule.SweepInterval = time.Duration(raw.SweepInterval) * time.Second

	if cfg.ScheduleFile != "" {
		schedule, err := LoadSchedule(cfg.ScheduleFile, cfg.Schedule)
		if err != nil {
			return nil, fmt.Errorf("failed to load schedule file: %w", err)
		}
		cfg.Schedule = schedule
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}

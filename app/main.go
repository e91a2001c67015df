package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/manga-notifier/app/api"
	"github.com/lysyi3m/manga-notifier/app/cache"
	"github.com/lysyi3m/manga-notifier/app/cfg"
	"github.com/lysyi3m/manga-notifier/app/comick"
	"github.com/lysyi3m/manga-notifier/app/database"
	"github.com/lysyi3m/manga-notifier/app/feed"
	"github.com/lysyi3m/manga-notifier/app/notify"
	"github.com/lysyi3m/manga-notifier/app/tasks"
	"github.com/lysyi3m/manga-notifier/app/tracker"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown
		return
	}

	level := slog.LevelInfo
	if appCfg.Debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	slog.Info("Starting Manga Notifier", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBPath)
	if err != nil {
		slog.Error("Failed to connect to database", "path", appCfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "path", appCfg.DBPath, "schema_version", version, "dirty", dirty)

	trackingRepo := database.NewTrackingRepository(db)
	pendingRepo := database.NewPendingRepository(db)
	detectedRepo := database.NewDetectedRepository(db)
	subscriptionRepo := database.NewSubscriptionRepository(db)
	mangaRepo := database.NewMangaRepository(db)
	historyRepo := database.NewHistoryRepository(db)
	cronRepo := database.NewCronJobRepository(db)

	ctx := context.Background()

	clientOpts := comick.Options{
		BaseURL:     appCfg.ComickBaseURL,
		ProxyURL:    appCfg.ZenRowsURL,
		ProxyAPIKey: appCfg.ZenRowsAPIKey,
		UserAgent:   appCfg.UserAgent,
		Timeout:     appCfg.FetchTimeout,
	}

	var cacheHealth api.CacheHealth
	if appCfg.RedisAddr != "" {
		resolutionCache, err := cache.NewCache(ctx, appCfg.RedisAddr, appCfg.CacheTTL)
		if err != nil {
			slog.Warn("Resolution cache unavailable, continuing without it", "addr", appCfg.RedisAddr, "error", err)
		} else {
			defer resolutionCache.Close()
			clientOpts.Cache = resolutionCache
			cacheHealth = resolutionCache
		}
	}

	if appCfg.ZenRowsAPIKey == "" {
		slog.Warn("ZENROWS_API_KEY not set, fetching chapters directly")
	}
	client := comick.NewClient(clientOpts)

	var sender notify.Sender = notify.NoopSender{}
	if appCfg.FirebaseCredentials != "" {
		fcm, err := notify.NewFCMSender(ctx, appCfg.FirebaseCredentials)
		if err != nil {
			slog.Error("Failed to initialize push transport, notifications disabled", "error", err)
		} else {
			sender = fcm
		}
	} else {
		slog.Warn("FIREBASE_SERVICE_ACCOUNT_KEY not set, notifications disabled")
	}

	chapterTracker := tracker.NewTracker(client, trackingRepo, pendingRepo, detectedRepo, subscriptionRepo)
	dispatcher := notify.NewDispatcher(sender, pendingRepo, subscriptionRepo, mangaRepo, trackingRepo, historyRepo)

	scheduler := tasks.NewScheduler(tasks.Jobs{
		Tracker:    chapterTracker,
		Dispatcher: dispatcher,
		Status:     cronRepo,
		Histories:  historyRepo,
		Detected:   detectedRepo,
		Trackings:  trackingRepo,
	}, tasks.OptionsFromConfig(appCfg))
	scheduler.Start()

	baseURL := appCfg.BaseUrl
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%s", appCfg.Port)
	}

	handler := api.NewHandler(api.Services{
		Scheduler:     scheduler,
		Source:        client,
		Subscriptions: subscriptionRepo,
		Mangas:        mangaRepo,
		Tracker:       chapterTracker,
		Dispatcher:    dispatcher,
		CronJobs:      cronRepo,
		Histories:     historyRepo,
		Detected:      detectedRepo,
		Pending:       pendingRepo,
		Cache:         cacheHealth,
		Generator:     feed.NewGenerator(baseURL, appCfg.Version),
		Version:       appCfg.Version,
	})
	server := api.NewServer(handler, appCfg.APIAccessKey, appCfg.JWTSecret)

	// Manual triggers run inline, so the write timeout leaves room for a full sweep
	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("Starting HTTP server", "port", appCfg.Port, "base_url", baseURL)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	scheduler.Stop()

	slog.Info("Shutdown complete")
}

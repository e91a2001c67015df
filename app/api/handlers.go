package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lysyi3m/manga-notifier/app/comick"
	"github.com/lysyi3m/manga-notifier/app/feed"
	"github.com/lysyi3m/manga-notifier/app/notify"
	"github.com/lysyi3m/manga-notifier/app/tasks"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	feedItemLimit    = 50
	historyListLimit = 20
	previewChapters  = 3
)

func NewHandler(services Services) *Handler {
	return &Handler{
		Services: services,
		now:      time.Now,
	}
}

func (h *Handler) GetFeed(c *gin.Context) {
	ctx := c.Request.Context()
	hid := c.Param("hid")

	chapters, err := h.Detected.ListDetected(ctx, hid, feedItemLimit)
	if err != nil {
		slog.Error("Database error", "operation", "list_detected", "hid", hid, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	channel := feed.Channel{HID: hid, Titles: make(map[string]string)}
	for _, chapter := range chapters {
		if _, ok := channel.Titles[chapter.HID]; ok {
			continue
		}
		title, err := h.Mangas.GetTitle(ctx, chapter.HID)
		if err != nil {
			slog.Warn("Failed to get manga title", "hid", chapter.HID, "error", err)
			continue
		}
		channel.Titles[chapter.HID] = title
	}

	if hid != "" {
		title, err := h.Mangas.GetTitle(ctx, hid)
		if err != nil {
			slog.Warn("Failed to get manga title", "hid", hid, "error", err)
		}
		channel.Title = title
	}

	rss, err := h.Generator.Run(channel, chapters, h.now())
	if err != nil {
		slog.Error("RSS generation error", "hid", hid, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(chapters)))

	c.String(http.StatusOK, rss)
}

func (h *Handler) HealthCheck(c *gin.Context) {
	health := gin.H{
		"status":    "healthy",
		"timestamp": h.now().In(time.Local).Format(time.RFC3339),
		"scheduler": h.Scheduler.State().String(),
		"version":   h.Version,
	}

	if h.Cache != nil {
		health["cache"] = h.Cache.Health(c.Request.Context())
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) TriggerChapterCheck(c *gin.Context) {
	result, err := h.Scheduler.TriggerSweep(c.Request.Context())
	if errors.Is(err, tasks.ErrJobRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": "Chapter check already running"})
		return
	}
	if err != nil {
		slog.Error("Manual chapter check failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to trigger chapter check",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Chapter check completed",
		"results": result,
	})
}

func (h *Handler) TriggerNotifications(c *gin.Context) {
	day, err := notify.NormalizeDay(c.Query("day"), h.now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Day must be 'wednesday' or 'saturday'"})
		return
	}

	result, err := h.Scheduler.TriggerNotifications(c.Request.Context(), day)
	if errors.Is(err, tasks.ErrJobRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": "Notification run already in progress"})
		return
	}
	if err != nil {
		slog.Error("Manual notification run failed", "day", day, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to trigger notifications",
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": cases.Title(language.English).String(day) + " notifications sent",
		"results": result,
	})
}

func (h *Handler) GetCronStatus(c *gin.Context) {
	state := h.Scheduler.State()
	running := state == tasks.StateRunning

	message := "Cron scheduler is stopped"
	if running {
		message = "Cron scheduler is running"
	}

	response := gin.H{
		"scheduler_running": running,
		"state":             state.String(),
		"message":           message,
		"next_runs":         h.Scheduler.NextRuns(),
	}

	jobs, err := h.CronJobs.ListCronJobs(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_cron_jobs", "error", err)
	} else {
		response["jobs"] = jobs
	}

	if pending, err := h.Pending.CountPending(c.Request.Context()); err == nil {
		response["pending_chapters"] = pending
	}

	c.JSON(http.StatusOK, response)
}

func (h *Handler) ListHistories(c *gin.Context) {
	limit := historyListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		limit = parsed
	}

	histories, err := h.Histories.ListHistories(c.Request.Context(), c.Query("day"), limit)
	if err != nil {
		slog.Error("Database error", "operation", "list_histories", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"histories": histories,
		"total":     len(histories),
	})
}

func (h *Handler) TestAPI(c *gin.Context) {
	hid := c.Param("hid")

	chapters := h.Source.FetchChapters(c.Request.Context(), hid)
	if len(chapters) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"success":        false,
			"manga_hid":      hid,
			"error":          "No chapters returned, source unavailable or blocked by protection",
			"chapters_found": 0,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"manga_hid":      hid,
		"chapters_found": len(chapters),
		"first_chapters": firstChapters(chapters),
	})
}

func (h *Handler) TestZenRows(c *gin.Context) {
	connected := h.Source.TestProxy(c.Request.Context())

	message := "Connection failed"
	if connected {
		message = "Connection successful"
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    connected,
		"service":    "ZenRows",
		"message":    message,
		"configured": h.Source.ProxyEnabled(),
	})
}

func (h *Handler) TestZenRowsManga(c *gin.Context) {
	hid := c.Param("hid")

	chapters, err := h.Source.FetchChaptersViaProxy(c.Request.Context(), hid)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"success":        false,
			"service":        "ZenRows",
			"manga_hid":      hid,
			"error":          err.Error(),
			"chapters_found": 0,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"service":        "ZenRows",
		"manga_hid":      hid,
		"chapters_found": len(chapters),
		"first_chapters": firstChapters(chapters),
	})
}

func (h *Handler) TestMangaInfo(c *gin.Context) {
	id := c.Param("id")

	info, err := h.Source.FetchMangaInfo(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"success":  false,
			"manga_id": id,
			"error":    err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"manga_id": id,
		"hid":      info.HID,
		"title":    info.Title,
	})
}

func (h *Handler) TestChaptersByID(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")

	info, err := h.Source.FetchMangaInfo(ctx, id)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{
			"success":  false,
			"manga_id": id,
			"error":    "Could not fetch manga info to get HID",
			"step":     "ID to HID conversion failed",
		})
		return
	}

	chapters := h.Source.FetchChapters(ctx, info.HID)
	if len(chapters) == 0 {
		c.JSON(http.StatusOK, gin.H{
			"success":        false,
			"manga_id":       id,
			"manga_hid":      info.HID,
			"manga_title":    info.Title,
			"error":          "No chapters data returned",
			"chapters_found": 0,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"manga_id":       id,
		"manga_hid":      info.HID,
		"manga_title":    info.Title,
		"chapters_found": len(chapters),
		"first_chapters": firstChapters(chapters),
	})
}

func firstChapters(chapters []comick.Chapter) []comick.Chapter {
	if len(chapters) > previewChapters {
		return chapters[:previewChapters]
	}
	return chapters
}

package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, apiAccessKey, jwtSecret string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health"},
	}))

	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey, jwtSecret)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey, jwtSecret string) {
	r.GET("/feeds", handler.GetFeed)
	r.GET("/feeds/:hid", handler.GetFeed)
	r.GET("/health", handler.HealthCheck)

	if apiAccessKey != "" {
		admin := r.Group("/admin")
		admin.Use(authMiddleware(apiAccessKey))
		{
			admin.POST("/trigger/chapter-check", handler.TriggerChapterCheck)
			admin.POST("/trigger/notifications", handler.TriggerNotifications)
			admin.GET("/cron/status", handler.GetCronStatus)
			admin.GET("/histories", handler.ListHistories)
			admin.GET("/test-api/:hid", handler.TestAPI)
			admin.GET("/test-zenrows", handler.TestZenRows)
			admin.GET("/test-zenrows/:hid", handler.TestZenRowsManga)
			admin.GET("/test-manga-info/:id", handler.TestMangaInfo)
			admin.GET("/test-chapters-by-id/:id", handler.TestChaptersByID)
		}
		slog.Info("Admin endpoints enabled with authentication")
	} else {
		slog.Warn("Admin endpoints disabled (API_ACCESS_KEY not set)")
	}

	if jwtSecret != "" {
		user := r.Group("/")
		user.Use(userAuthMiddleware(jwtSecret))
		{
			user.POST("/manga/subscribe", handler.Subscribe)
			user.POST("/manga/unsubscribe", handler.Unsubscribe)
			user.GET("/manga/subscriptions", handler.GetSubscriptions)
			user.POST("/notifications/token", handler.SaveToken)
			user.DELETE("/notifications/token", handler.RemoveToken)
			user.POST("/notifications/send", handler.SendNotification)
			user.POST("/notifications/test", handler.SendTestNotification)
		}
		slog.Info("User endpoints enabled with JWT authentication")
	} else {
		slog.Warn("User endpoints disabled (JWT_SECRET not set)")
	}

	r.GET("/", func(c *gin.Context) {
		endpoints := map[string]string{
			"feed":   "/feeds/<hid>",
			"feeds":  "/feeds",
			"health": "/health",
		}

		if apiAccessKey != "" {
			endpoints["chapter_check"] = "/admin/trigger/chapter-check (POST, requires X-API-Key header)"
			endpoints["notifications"] = "/admin/trigger/notifications?day=<wednesday|saturday> (POST, requires X-API-Key header)"
			endpoints["cron_status"] = "/admin/cron/status (requires X-API-Key header)"
		}
		if jwtSecret != "" {
			endpoints["subscribe"] = "/manga/subscribe (POST, requires Bearer token)"
			endpoints["token"] = "/notifications/token (POST/DELETE, requires Bearer token)"
		}

		c.JSON(200, gin.H{
			"service":     "Manga Notifier",
			"version":     handler.Version,
			"description": "Manga chapter tracking and push notification service",
			"endpoints":   endpoints,
			"api_status": map[string]interface{}{
				"enabled":       apiAccessKey != "",
				"auth_required": apiAccessKey != "",
				"header":        "X-API-Key",
			},
		})
	})

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}

// authMiddleware creates authentication middleware for admin endpoints
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

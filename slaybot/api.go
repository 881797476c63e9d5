package slaybot

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
)

// newAPIServer builds the read-only status API: a health endpoint and a
// listing of counter rows. It never mutates state.
func newAPIServer(
	cfg *APIConfig,
	db DBI,
	logger *slog.Logger,
) (*http.Server, error) {
	if cfg == nil {
		return nil, errors.New("nil api config")
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(loggerNameKey, "api")

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(ginLogger(logger), gin.Recovery())

	api := engine.Group("/api")
	api.GET("/health", apiHealth())
	api.GET("/counters", apiCounters(db, logger))

	return &http.Server{
		Addr:              cfg.Listen,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}, nil
}

// ginLogger emits one structured log line per request.
func ginLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info(
			"request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

type healthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

func apiHealth() gin.HandlerFunc {
	started := time.Now()
	return func(c *gin.Context) {
		c.JSON(
			http.StatusOK,
			healthResponse{
				Status:        "ok",
				Version:       Version,
				UptimeSeconds: int64(time.Since(started).Seconds()),
			},
		)
	}
}

type countersResponse struct {
	Counters []Counter `json:"counters"`
}

// apiCounters lists every active counter row.
func apiCounters(db DBI, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		counters, err := db.ActiveCounters(c.Request.Context())
		if err != nil {
			logger.Error("counter listing failed", tint.Err(err))
			c.JSON(
				http.StatusInternalServerError,
				gin.H{"error": "unable to list counters"},
			)
			return
		}
		if counters == nil {
			counters = []Counter{}
		}
		c.JSON(http.StatusOK, countersResponse{Counters: counters})
	}
}

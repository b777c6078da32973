package server

import (
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/loykin/braindump/internal/metrics"
)

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
)

// requestID reuses an incoming X-Request-ID or assigns a new one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func accessLog(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", time.Since(start),
			"request_id", c.GetString(requestIDKey),
		}
		switch {
		case status >= 500:
			log.Warn("HTTP request", attrs...)
		case c.Request.URL.Path == "/health":
			log.Debug("HTTP request", attrs...)
		default:
			log.Info("HTTP request", attrs...)
		}
	}
}

// corsConfig allows browser callers from the configured origins; an empty
// list or "*" allows any origin. Entries without an http(s) scheme are
// ignored, since cors.New rejects them.
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", requestIDHeader},
		ExposeHeaders: []string{requestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			cfg.AllowAllOrigins = true
			cfg.AllowOrigins = nil
			return cfg
		}
		if validOrigin(o) {
			cfg.AllowOrigins = append(cfg.AllowOrigins, o)
		}
	}
	switch {
	case len(origins) == 0:
		cfg.AllowAllOrigins = true
	case len(cfg.AllowOrigins) == 0:
		cfg.AllowOriginFunc = func(string) bool { return false }
	}
	return cfg
}

// validOrigin reports whether cors.New accepts o as an allowed origin.
func validOrigin(o string) bool {
	o = strings.TrimSpace(o)
	if o == "*" {
		return true
	}
	return (strings.HasPrefix(o, "http://") || strings.HasPrefix(o, "https://")) && !strings.Contains(o, "*")
}

func observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.ObserveHTTP(route, c.Request.Method, strconv.Itoa(c.Writer.Status()), time.Since(start).Seconds())
	}
}

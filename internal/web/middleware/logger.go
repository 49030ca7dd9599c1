package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RequestObserver receives per-request traffic figures.
type RequestObserver interface {
	ObserveRequest(status int, latency time.Duration)
	ObserveSuspicious()
}

var suspiciousMarkers = []string{
	"../", "..\\", "<script", "union select", "/etc/passwd", "/.env", "/wp-admin", "/.git",
}

// IsSuspicious flags request targets that look like probing.
func IsSuspicious(rawURL string) bool {
	target := rawURL
	if decoded, err := url.QueryUnescape(rawURL); err == nil {
		target = decoded
	}
	target = strings.ToLower(target)
	for _, marker := range suspiciousMarkers {
		if strings.Contains(target, marker) {
			return true
		}
	}
	return false
}

// Logger 日志中间件: access log via zerolog, plus request counters
func Logger(observer RequestObserver) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		suspicious := IsSuspicious(c.Request.URL.RequestURI())

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		if observer != nil {
			observer.ObserveRequest(status, latency)
			if suspicious {
				observer.ObserveSuspicious()
			}
		}

		event := log.Debug()
		if status >= 500 {
			event = log.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Bool("suspicious", suspicious).
			Msg("http request")
	}
}

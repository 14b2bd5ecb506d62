package middleware

import (
	"net/http"

	applogger "BlockTrader/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Allower decides whether a request keyed by client may proceed.
type Allower interface {
	Allow(key string) bool
}

// RateLimit rejects requests over the client's budget with 429.
func RateLimit(a Allower, l *applogger.Logger) echo.MiddlewareFunc {
	if l == nil {
		l = applogger.Nop()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if a.Allow(ip) {
				return next(c)
			}
			l.Warn("rate limited", applogger.String("ip", ip), applogger.String("path", c.Request().URL.Path))
			return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
				"status":  http.StatusTooManyRequests,
				"message": "too many requests",
				"data":    nil,
			})
		}
	}
}

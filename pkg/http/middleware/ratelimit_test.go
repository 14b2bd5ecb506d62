package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

type budget map[string]int

func (b budget) Allow(key string) bool {
	if b[key] <= 0 {
		return false
	}
	b[key]--
	return true
}

func TestRateLimitRejectsOverBudget(t *testing.T) {
	e := echo.New()
	e.Use(RateLimit(budget{"10.0.0.1": 1}, nil))
	e.GET("/api/status", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
		req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status codes %v", codes)
	}
}

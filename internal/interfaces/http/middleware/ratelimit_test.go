package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, limit int, period time.Duration) (*RateLimiter, *time.Time) {
	t.Helper()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(limit, period)
	rl.now = func() time.Time { return now }
	t.Cleanup(rl.Close)
	return rl, &now
}

func TestRateLimiter_Allow(t *testing.T) {
	t.Run("allows requests within limit", func(t *testing.T) {
		rl, _ := newTestLimiter(t, 3, time.Minute)

		for i := range 3 {
			remaining, _, ok := rl.Allow("10.0.0.1")
			require.True(t, ok, "request %d should be allowed", i+1)
			assert.Equal(t, 2-i, remaining)
		}
	})

	t.Run("refuses once the window is used up", func(t *testing.T) {
		rl, now := newTestLimiter(t, 2, time.Minute)

		rl.Allow("10.0.0.1")
		rl.Allow("10.0.0.1")
		*now = now.Add(20 * time.Second)

		remaining, retryAfter, ok := rl.Allow("10.0.0.1")
		assert.False(t, ok)
		assert.Zero(t, remaining)
		assert.Equal(t, 40*time.Second, retryAfter)
	})

	t.Run("keys are independent", func(t *testing.T) {
		rl, _ := newTestLimiter(t, 1, time.Minute)

		_, _, ok := rl.Allow("a")
		assert.True(t, ok)
		_, _, ok = rl.Allow("a")
		assert.False(t, ok)
		_, _, ok = rl.Allow("b")
		assert.True(t, ok)
	})

	t.Run("window resets after the period", func(t *testing.T) {
		rl, now := newTestLimiter(t, 1, time.Minute)

		rl.Allow("a")
		*now = now.Add(time.Minute)

		_, _, ok := rl.Allow("a")
		assert.True(t, ok)
	})
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := NewRateLimiter(50, time.Minute)
	defer rl.Close()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, ok := rl.Allow("shared"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func TestRateLimiter_CloseIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(1, time.Millisecond)
	rl.Close()
	assert.NotPanics(t, rl.Close)
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl, _ := newTestLimiter(t, 2, time.Minute)

	router := gin.New()
	router.Use(RateLimit(rl, nil))
	router.POST("/webhooks/accounting", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/accounting", nil)
		req.RemoteAddr = "192.0.2.10:5555"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := send()
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, send().Code)

	w = send()
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "ERR_RATE_LIMITED")
}

func TestRateLimitMiddleware_CustomKey(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl, _ := newTestLimiter(t, 1, time.Minute)

	router := gin.New()
	router.Use(RateLimit(rl, func(c *gin.Context) string { return c.GetHeader("X-Realm") }))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(realm string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Realm", realm)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, send("r1"))
	assert.Equal(t, http.StatusTooManyRequests, send("r1"))
	assert.Equal(t, http.StatusOK, send("r2"))
}

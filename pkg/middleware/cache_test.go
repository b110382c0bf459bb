package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/mediavault/pkg/cache"
	"github.com/yeisme/mediavault/pkg/internal/storage/kv"
	"github.com/yeisme/mediavault/pkg/middleware"
)

// TestCacheMiddleware 测试按调用方缓存 GET 响应.
func TestCacheMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store, err := kv.NewMemoryKV(context.Background(), nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = store.Close() })

	var calls atomic.Int32

	e := gin.New()
	e.Use(func(c *gin.Context) {
		c.Set("caller", c.GetHeader("X-User"))
		c.Next()
	})
	e.GET("/assets/:id",
		middleware.CacheMiddleware(middleware.DefaultCacheConfig(cache.NewCache(store), time.Minute)),
		func(c *gin.Context) {
			n := calls.Add(1)
			c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "n": n})
		},
	)

	get := func(user string, header ...string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/assets/a1?b=2&a=1", nil)
		req.Header.Set("X-User", user)

		for i := 0; i+1 < len(header); i += 2 {
			req.Header.Set(header[i], header[i+1])
		}

		w := httptest.NewRecorder()
		e.ServeHTTP(w, req)

		return w
	}

	first := get("alice")
	require.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

	second := get("alice")
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.EqualValues(t, 1, calls.Load())

	other := get("bob")
	assert.Equal(t, "MISS", other.Header().Get("X-Cache"))
	assert.EqualValues(t, 2, calls.Load())

	get("alice", middleware.BypassHeader, "1")
	assert.EqualValues(t, 3, calls.Load())
}

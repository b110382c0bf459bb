package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/middleware"
)

func serve(e *gin.Engine, method, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)

	return w
}

// TestRateLimitByCaller 测试按调用方各自计数.
func TestRateLimitByCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)

	e := gin.New()
	e.Use(
		middleware.AuthMiddleware(configs.AuthConfig{Enabled: true}),
		middleware.RateLimitMiddleware(configs.RateLimitConfig{Enabled: true, RPS: 0.001, Burst: 1, Key: "caller"}),
	)
	e.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	alice := map[string]string{"X-Auth-Request-Email": "alice@example.com"}
	bob := map[string]string{"X-Auth-Request-Email": "bob@example.com"}

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/ping", alice).Code)

	w := serve(e, http.MethodGet, "/ping", alice)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), "RateLimited")

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/ping", bob).Code)
}

// TestRequireMinRole 测试角色解析与最小角色限制.
func TestRequireMinRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	e := gin.New()
	e.Use(middleware.RoleMiddleware())
	e.GET("/admin", middleware.RequireMinRole(middleware.RoleAdmin), func(c *gin.Context) {
		c.String(http.StatusOK, middleware.GetRole(c).String())
	})

	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/admin", nil).Code)
	assert.Equal(t, http.StatusForbidden, serve(e, http.MethodGet, "/admin", map[string]string{"X-Role": "member"}).Code)

	w := serve(e, http.MethodGet, "/admin", map[string]string{"X-Role": " ADMIN "})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", w.Body.String())

	assert.Equal(t, middleware.RoleUser, middleware.ParseRole("root"))
}

// TestCircuitBreakerPerRoute 测试一个路由熔断不影响其他路由.
func TestCircuitBreakerPerRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)

	e := gin.New()
	e.Use(middleware.CircuitBreakerMiddleware(configs.CircuitBreakerConfig{
		Enabled:           true,
		FailureRate:       0.5,
		MinRequests:       2,
		IntervalSeconds:   60,
		TimeoutSeconds:    60,
		MaxRequestsInHalf: 1,
	}))
	e.GET("/broken", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })
	e.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusInternalServerError, serve(e, http.MethodGet, "/broken", nil).Code)
	assert.Equal(t, http.StatusInternalServerError, serve(e, http.MethodGet, "/broken", nil).Code)

	w := serve(e, http.MethodGet, "/broken", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "CircuitOpen")

	assert.Equal(t, http.StatusOK, serve(e, http.MethodGet, "/ok", nil).Code)
}

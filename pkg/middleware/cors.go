package middleware

import (
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yeisme/mediavault/pkg/configs"
)

// CORSMiddleware 浏览器直传需要跨域调用 presign/complete，
// 并读取 X-Cache 与 X-Trace-Id 响应头.
func CORSMiddleware(cfg configs.ServerConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Role", BypassHeader, "Traceparent"},
		ExposeHeaders: []string{"X-Cache", "Age", "X-Trace-Id", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}

	if cfg.Debug || len(cfg.AllowOrigins) == 0 || slices.Contains(cfg.AllowOrigins, "*") {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.AllowOrigins
		c.AllowCredentials = true
	}

	return cors.New(c)
}

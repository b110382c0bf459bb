package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/mediavault/pkg/configs"
	ctxPkg "github.com/yeisme/mediavault/pkg/context"
)

// devCaller 非 release 模式且未认证时使用的调用方.
const devCaller = "test-user@example.com"

// AuthMiddleware 基于 oauth2-proxy 注入的请求头做统一身份认证校验，并把调用方写入请求上下文。
//   - 优先读取 X-Auth-Request-Email 或 X-Forwarded-Email
//   - 支持通过配置跳过某些路径（如 /metrics, /health）
//   - 开发模式可允许 X-User 头或 query user 兜底（由 configs.auth.dev_allow_query 控制）.
func AuthMiddleware(conf configs.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if isSkippedPath(c.Request.URL.Path, conf.SkipPaths) {
			c.Next()
			return
		}

		caller := proxiedCaller(c)

		if caller == "" && (conf.DevAllowQuery || !conf.Enabled) {
			caller = devFallbackCaller(c)
		}

		if caller == "" {
			if conf.Enabled {
				abort(c, http.StatusUnauthorized, "Unauthenticated", "unauthorized")
				return
			}

			if gin.Mode() != gin.ReleaseMode {
				caller = devCaller
			}
		}

		if caller != "" {
			c.Set("caller", caller)
			c.Request = c.Request.WithContext(ctxPkg.WithCaller(c.Request.Context(), caller))
		}

		c.Next()
	}
}

func proxiedCaller(c *gin.Context) string {
	email := strings.TrimSpace(c.GetHeader("X-Auth-Request-Email"))
	if email == "" {
		email = strings.TrimSpace(c.GetHeader("X-Forwarded-Email"))
	}

	return email
}

func devFallbackCaller(c *gin.Context) string {
	if u := strings.TrimSpace(c.GetHeader("X-User")); u != "" {
		return u
	}

	return strings.TrimSpace(c.Query("user"))
}

func isSkippedPath(path string, skips []string) bool {
	if path == "" || len(skips) == 0 {
		return false
	}

	for _, p := range skips {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}

		if strings.HasPrefix(path, p) {
			return true
		}
	}

	return false
}

package middleware

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/yeisme/mediavault/pkg/configs"
)

const (
	maxLimiters    = 10000
	limiterIdleTTL = 10 * time.Minute
)

// RateLimitMiddleware 按配置的维度限流. cfg.Key 取值：
//
//	global         全局共用一个令牌桶
//	ip             按客户端 IP
//	caller         按认证后的调用方，未认证时回落到 IP
//	header:<Name>  按请求头，缺失时回落到 IP
func RateLimitMiddleware(cfg configs.RateLimitConfig) gin.HandlerFunc {
	if !cfg.Enabled || cfg.RPS <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	mode := strings.ToLower(strings.TrimSpace(cfg.Key))
	buckets := newLimiterSet(rate.Limit(cfg.RPS), cfg.Burst)

	return func(c *gin.Context) {
		if !buckets.allow(limitKey(c, mode)) {
			c.Header("Retry-After", "1")
			abort(c, http.StatusTooManyRequests, "RateLimited", "rate limit exceeded")

			return
		}

		c.Next()
	}
}

func limitKey(c *gin.Context, mode string) string {
	var key string

	switch {
	case mode == "" || mode == "global":
		return "*"
	case mode == "caller":
		key = c.GetString("caller")
	case strings.HasPrefix(mode, "header:"):
		key = c.GetHeader(strings.TrimPrefix(mode, "header:"))
	}

	if key == "" {
		key = c.ClientIP()
	}

	return key
}

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// limiterSet 按键保存令牌桶. 数量超过上限时清掉闲置的桶.
type limiterSet struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*limiterEntry
}

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{limit: limit, burst: burst, entries: make(map[string]*limiterEntry)}
}

func (s *limiterSet) allow(key string) bool {
	now := time.Now()

	s.mu.Lock()

	e, ok := s.entries[key]
	if !ok {
		if len(s.entries) >= maxLimiters {
			s.evict(now)
		}

		e = &limiterEntry{lim: rate.NewLimiter(s.limit, s.burst)}
		s.entries[key] = e
	}

	e.seen = now
	s.mu.Unlock()

	return e.lim.AllowN(now, 1)
}

// evict 调用方持有锁.
func (s *limiterSet) evict(now time.Time) {
	for k, e := range s.entries {
		if now.Sub(e.seen) > limiterIdleTTL {
			delete(s.entries, k)
		}
	}

	if len(s.entries) >= maxLimiters {
		s.entries = make(map[string]*limiterEntry)
	}
}

package middleware

import (
	"bytes"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/gin-gonic/gin"

	appcache "github.com/yeisme/mediavault/pkg/cache"
	"github.com/yeisme/mediavault/pkg/metrics"
)

const (
	// DefaultMaxBodyBytes 超过该大小的响应不缓存.
	DefaultMaxBodyBytes = 1 << 20
	// BypassHeader 请求带该头时跳过缓存.
	BypassHeader = "X-Cache-Bypass"

	responseKeyPrefix = "mv:resp:"
)

// CacheConfig 读接口缓存配置.
type CacheConfig struct {
	Cache        *appcache.Cache
	TTL          time.Duration
	MaxBodyBytes int
}

// DefaultCacheConfig 返回一份默认配置.
func DefaultCacheConfig(c *appcache.Cache, ttl time.Duration) CacheConfig {
	return CacheConfig{Cache: c, TTL: ttl, MaxBodyBytes: DefaultMaxBodyBytes}
}

// cachedResponse 缓存的响应.
type cachedResponse struct {
	Status      int    `json:"s"`
	ContentType string `json:"c"`
	Body        []byte `json:"b"`
	StoredAt    int64  `json:"t"`
}

// CacheMiddleware 按调用方缓存 GET 响应. 资产详情里的下载地址按调用方签发，
// 所以键里必须带上 caller 与角色. 缓存读写失败时直接走原处理器.
func CacheMiddleware(cfg CacheConfig) gin.HandlerFunc {
	if cfg.Cache == nil || cfg.TTL <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet || c.GetHeader(BypassHeader) != "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := responseKey(c)

		if entry, err := appcache.Get[cachedResponse](ctx, cfg.Cache, key); err == nil {
			age := time.Since(time.Unix(0, entry.StoredAt)).Seconds()
			c.Header("Age", strconv.FormatFloat(age, 'f', 0, 64))
			metrics.CacheResults.WithLabelValues("hit").Inc()
			c.Header("X-Cache", "HIT")
			c.Data(entry.Status, entry.ContentType, entry.Body)
			c.Abort()

			return
		}

		bw := &bodyCaptureWriter{ResponseWriter: c.Writer, max: cfg.MaxBodyBytes}
		c.Writer = bw
		metrics.CacheResults.WithLabelValues("miss").Inc()
		c.Header("X-Cache", "MISS")
		c.Next()

		if c.Writer.Status() != http.StatusOK || bw.truncated {
			return
		}

		entry := cachedResponse{
			Status:      http.StatusOK,
			ContentType: c.Writer.Header().Get("Content-Type"),
			Body:        bytes.Clone(bw.buf.Bytes()),
			StoredAt:    time.Now().UnixNano(),
		}

		if appcache.Set(ctx, cfg.Cache, key, entry, cfg.TTL) == nil {
			metrics.CacheResults.WithLabelValues("store").Inc()
		}
	}
}

// responseKey 方法、路由、排序后的 query、caller 与角色共同决定键.
func responseKey(c *gin.Context) string {
	var b strings.Builder

	b.WriteString(c.GetString("caller"))
	b.WriteByte('|')
	b.WriteString(GetRole(c).String())
	b.WriteByte('|')
	b.WriteString(c.Request.URL.Path)

	if q := c.Request.URL.Query(); len(q) > 0 {
		keys := make([]string, 0, len(q))
		for k := range q {
			keys = append(keys, k)
		}

		sort.Strings(keys)

		for _, k := range keys {
			b.WriteByte('&')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(strings.Join(q[k], ","))
		}
	}

	return responseKeyPrefix + strconv.FormatUint(xxhash.Sum64String(b.String()), 16)
}

// bodyCaptureWriter 边写边复制响应体，超过 max 时放弃缓存.
type bodyCaptureWriter struct {
	gin.ResponseWriter

	buf       bytes.Buffer
	max       int
	truncated bool
}

func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	if !w.truncated {
		if w.max > 0 && w.buf.Len()+len(b) > w.max {
			w.truncated = true
			w.buf.Reset()
		} else {
			w.buf.Write(b)
		}
	}

	return w.ResponseWriter.Write(b)
}

func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

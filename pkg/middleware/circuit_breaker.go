package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sony/gobreaker"

	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/log"
)

// errServerFailure 让 gobreaker 把 5xx 计为失败.
type errServerFailure int

func (e errServerFailure) Error() string { return http.StatusText(int(e)) }

// CircuitBreakerMiddleware 按路由模板各自熔断. 5xx 计为失败，
// 熔断打开或半开请求数已满时直接返回 503.
func CircuitBreakerMiddleware(cfg configs.CircuitBreakerConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) { c.Next() }
	}

	logger := log.Component("breaker")

	var breakers sync.Map

	get := func(route string) *gobreaker.CircuitBreaker {
		if cb, ok := breakers.Load(route); ok {
			return cb.(*gobreaker.CircuitBreaker)
		}

		cb, _ := breakers.LoadOrStore(route, gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        route,
			MaxRequests: cfg.MaxRequestsInHalf,
			Interval:    time.Duration(cfg.IntervalSeconds) * time.Second,
			Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < cfg.MinRequests {
					return false
				}

				return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRate
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn().Str("route", name).Stringer("from", from).Stringer("to", to).Msg("circuit breaker state changed")
			},
		}))

		return cb.(*gobreaker.CircuitBreaker)
	}

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			c.Next()
			return
		}

		_, err := get(route).Execute(func() (any, error) {
			c.Next()

			if status := c.Writer.Status(); status >= http.StatusInternalServerError {
				return nil, errServerFailure(status)
			}

			return nil, nil
		})

		switch err {
		case gobreaker.ErrOpenState, gobreaker.ErrTooManyRequests:
			c.Header("Retry-After", "1")
			abort(c, http.StatusServiceUnavailable, "CircuitOpen", "service temporarily unavailable")
		}
	}
}

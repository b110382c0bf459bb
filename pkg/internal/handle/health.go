package handle

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	ctxPkg "github.com/yeisme/mediavault/pkg/context"
	"github.com/yeisme/mediavault/pkg/internal/storage"
)

const healthTimeout = 2 * time.Second

func probe(ctx context.Context, target storage.HealthChecker) string {
	if target == nil {
		return "disabled"
	}

	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	if err := target.HealthCheck(ctx); err != nil {
		return err.Error()
	}

	return "ok"
}

// Health 并发探测所有已初始化的组件. 任一组件失败返回 503，未启用的组件不影响结果.
func Health(c *gin.Context) {
	var (
		mu     sync.Mutex
		result = map[string]string{}
		g      errgroup.Group
	)

	healthy := true

	for name, target := range ctxPkg.GetManager(c.Request.Context()).Checks() {
		g.Go(func() error {
			status := probe(c.Request.Context(), target)

			mu.Lock()
			defer mu.Unlock()

			result[name] = status
			if status != "ok" && status != "disabled" {
				healthy = false
			}

			return nil
		})
	}

	_ = g.Wait()

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{"healthy": healthy, "components": result})
}

// HealthComponent 探测 :component 指定的单个组件，未初始化时返回 503.
func HealthComponent(c *gin.Context) {
	name := c.Param("component")

	target, known := ctxPkg.GetManager(c.Request.Context()).Checks()[name]
	if !known {
		c.JSON(http.StatusNotFound, gin.H{"component": name, "status": "unknown component"})
		return
	}

	status := probe(c.Request.Context(), target)
	if status != "ok" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"component": name, "status": status})
		return
	}

	c.JSON(http.StatusOK, gin.H{"component": name, "status": status})
}

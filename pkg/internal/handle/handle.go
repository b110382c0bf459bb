// Package handle 把 HTTP 请求转成 service 调用，并把分类错误映射为状态码与原因码.
package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	ctxPkg "github.com/yeisme/mediavault/pkg/context"
	"github.com/yeisme/mediavault/pkg/errs"
	"github.com/yeisme/mediavault/pkg/internal/service"
	"github.com/yeisme/mediavault/pkg/internal/types"
	"github.com/yeisme/mediavault/pkg/log"
	"github.com/yeisme/mediavault/pkg/rule"
)

// Handlers 持有请求处理所需的服务，由应用层构造并注入路由.
type Handlers struct {
	Assets *service.AssetService
	Jobs   *service.JobService

	log zerolog.Logger
}

// New 构造 Handlers.
func New(assets *service.AssetService, jobs *service.JobService) *Handlers {
	return &Handlers{Assets: assets, Jobs: jobs, log: log.Component("http")}
}

// caller 取认证中间件解析出的调用方.
func caller(c *gin.Context) (string, error) {
	user := c.GetString("caller")
	if user == "" {
		user = ctxPkg.Caller(c.Request.Context())
	}

	if err := rule.ValidateVar(user, "required"); err != nil {
		return "", errs.E(errs.Forbidden, "http.caller", "Unauthenticated", err)
	}

	return user, nil
}

// fail 把分类错误映射为 HTTP 状态与原因码.
func (h *Handlers) fail(c *gin.Context, err error) {
	status := errs.HTTPStatus(err)

	l := ctxPkg.Logger(c.Request.Context(), h.log)

	ev := l.Warn()
	if status >= http.StatusInternalServerError {
		ev = l.Error()
	}

	ev.Err(err).
		Str("method", c.Request.Method).
		Str("path", c.FullPath()).
		Int("status", status).
		Msg("request failed")

	c.AbortWithStatusJSON(status, types.ErrorResponse{Error: err.Error(), Reason: errs.Reason(err)})
}

// bindJSON 绑定并校验请求体，失败返回 Validation 错误.
func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return errs.E(errs.Validation, "http.bind", "InvalidBody", err)
	}

	if err := rule.ValidateStruct(dst); err != nil {
		return errs.E(errs.Validation, "http.bind", "InvalidBody", rule.Errors(err))
	}

	return nil
}

// bindQuery 绑定查询参数.
func bindQuery(c *gin.Context, dst any) error {
	if err := c.ShouldBindQuery(dst); err != nil {
		return errs.E(errs.Validation, "http.bind", "InvalidQuery", err)
	}

	return nil
}

// Package context 在 request context 中携带存储管理器与已认证的调用方.
package context

import (
	"context"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/mediavault/pkg/internal/storage"
)

type ctxKey int

const (
	managerKey ctxKey = iota
	callerKey
)

func WithStorageManager(ctx context.Context, mgr *storage.Manager) context.Context {
	return context.WithValue(ctx, managerKey, mgr)
}

// GetManager 未注入时返回 nil，nil Manager 的 Checks 仍可调用.
func GetManager(ctx context.Context) *storage.Manager {
	mgr, _ := ctx.Value(managerKey).(*storage.Manager)
	return mgr
}

// WithCaller 记录已认证的调用方，资产按调用方隔离.
func WithCaller(ctx context.Context, caller string) context.Context {
	return context.WithValue(ctx, callerKey, caller)
}

// Caller 未认证时为空.
func Caller(ctx context.Context) string {
	caller, _ := ctx.Value(callerKey).(string)
	return caller
}

// Logger 给 base 附加调用方与追踪 ID.
func Logger(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	lc := base.With()

	if caller := Caller(ctx); caller != "" {
		lc = lc.Str("caller", caller)
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		lc = lc.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
	}

	return lc.Logger()
}

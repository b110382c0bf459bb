package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeisme/mediavault/pkg/errs"
	"github.com/yeisme/mediavault/pkg/internal/ledger"
	"github.com/yeisme/mediavault/pkg/metrics"
	"github.com/yeisme/mediavault/pkg/queue"
	"github.com/yeisme/mediavault/pkg/tracing"
)

// metaPermanentError 被屏蔽的永久错误写入消息元数据，供生命周期钩子标记 FAILED.
const metaPermanentError = "permanent_error"

// lifecycleMiddleware 出队记 ACTIVE，成功记 COMPLETED，重试耗尽或永久错误记 FAILED.
// redeliver 为 true 时（未启用死信队列）重试耗尽的消息会被 Nack 交还 broker，行保持 ACTIVE 等待重投.
func lifecycleMiddleware(l *ledger.Ledger, worker string, log zerolog.Logger, redeliver bool) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			ref := ledger.JobRef{
				JobID:      msg.UUID,
				AssetID:    msg.Metadata.Get(queue.MetaAssetID),
				WorkerName: worker,
			}
			// 账本写入不受任务超时与关闭影响
			ctx := context.WithoutCancel(msg.Context())
			start := time.Now()

			l.Active(ctx, ref)

			out, err := h(msg)

			metrics.JobDuration.WithLabelValues(worker).Observe(time.Since(start).Seconds())

			jobLog := log.With().
				Str("job_id", ref.JobID).
				Str("asset_id", ref.AssetID).
				Dur("took", time.Since(start)).
				Logger()

			switch {
			case err != nil && redeliver:
				jobLog.Warn().Err(err).Str("kind", errs.KindOf(err).String()).Msg("job nacked for redelivery")
			case err != nil:
				jobLog.Error().Err(err).Str("kind", errs.KindOf(err).String()).Msg("job failed")
				l.Failed(ctx, ref, err)
			case msg.Metadata.Get(metaPermanentError) != "":
				cause := msg.Metadata.Get(metaPermanentError)
				jobLog.Warn().Str("error", cause).Msg("job dropped")
				l.Failed(ctx, ref, errors.New(cause))
			default:
				jobLog.Info().Msg("job completed")
				l.Completed(ctx, ref)
			}

			return out, err
		}
	}
}

// permanentMiddleware 吞掉不可重试的错误，使消息被确认而不是反复重投.
func permanentMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		out, err := h(msg)
		if err != nil && errs.IsPermanent(err) {
			msg.Metadata.Set(metaPermanentError, err.Error())
			return out, nil
		}

		return out, err
	}
}

// tracingMiddleware 每个任务一个 span，接续入队方写入 metadata 的追踪上下文.
func tracingMiddleware(worker string) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			parent := tracing.ExtractMap(msg.Context(), msg.Metadata)

			ctx, span := tracing.StartSpan(parent, "pipeline."+worker,
				trace.WithSpanKind(trace.SpanKindConsumer),
				trace.WithAttributes(
					attribute.String("job.id", msg.UUID),
					attribute.String("job.worker", worker),
					attribute.String("asset.id", msg.Metadata.Get(queue.MetaAssetID)),
					attribute.String("correlation.id", middleware.MessageCorrelationID(msg)),
				),
			)
			defer span.End()

			msg.SetContext(ctx)

			out, err := h(msg)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}

			return out, err
		}
	}
}

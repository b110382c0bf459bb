package pipeline

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/errs"
	"github.com/yeisme/mediavault/pkg/internal/ledger"
	"github.com/yeisme/mediavault/pkg/media"
	"github.com/yeisme/mediavault/pkg/queue"
	"github.com/yeisme/mediavault/pkg/tracing"
)

// Enqueuer 发布流水线消息并在账本中登记 PENDING.
type Enqueuer struct {
	pub    message.Publisher
	ledger *ledger.Ledger
}

// NewEnqueuer 构造 Enqueuer.
func NewEnqueuer(pub message.Publisher, l *ledger.Ledger) *Enqueuer {
	return &Enqueuer{pub: pub, ledger: l}
}

// Publish 只发布不登记，返回任务引用. 调用方在合适的时机调用 Record.
func Publish[T any](ctx context.Context, e *Enqueuer, kind media.Kind, stage queue.Stage, assetID string, payload T) (ledger.JobRef, error) {
	topic := queue.Topic(kind, stage)
	ref := ledger.JobRef{AssetID: assetID, WorkerName: queue.WorkerName(kind, stage)}

	opts := []func(*queue.EventHeader){queue.WithProducer(configs.AppName)}
	if cid := correlationID(ctx); cid != "" {
		opts = append(opts, queue.WithTraceID(cid))
	}

	msg, err := queue.NewWatermillMessage(topic, payload, opts...)
	if err != nil {
		return ref, errs.Wrap(errs.Unknown, "pipeline.publish", err)
	}

	msg.Metadata.Set(queue.MetaAssetID, assetID)
	msg.Metadata.Set(queue.MetaWorker, ref.WorkerName)

	if cid := correlationID(ctx); cid != "" {
		middleware.SetCorrelationID(cid, msg)
	}

	tracing.InjectMap(ctx, msg.Metadata)

	msg.SetContext(ctx)

	if err := e.pub.Publish(topic, msg); err != nil {
		return ref, errs.Wrap(errs.StorageUnavailable, "pipeline.publish", err)
	}

	ref.JobID = msg.UUID

	return ref, nil
}

// Record 登记 PENDING，尽力而为.
func (e *Enqueuer) Record(ctx context.Context, ref ledger.JobRef) {
	e.ledger.Pending(context.WithoutCancel(ctx), ref)
}

// Enqueue 发布并登记.
func Enqueue[T any](ctx context.Context, e *Enqueuer, kind media.Kind, stage queue.Stage, assetID string, payload T) (ledger.JobRef, error) {
	ref, err := Publish(ctx, e, kind, stage, assetID, payload)
	if err != nil {
		return ref, err
	}

	e.Record(ctx, ref)

	return ref, nil
}

type correlationKey struct{}

// WithCorrelationID 把关联 ID 放入 ctx，后续发布的消息沿用它.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

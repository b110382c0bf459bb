package pipeline

import (
	"context"
	"errors"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/yeisme/mediavault/pkg/errs"
	"github.com/yeisme/mediavault/pkg/internal/metadata"
	"github.com/yeisme/mediavault/pkg/internal/model"
	nlog "github.com/yeisme/mediavault/pkg/log"
	"github.com/yeisme/mediavault/pkg/queue"
)

// UploadWorker 推送派生文件并把变体标记为已上传.
type UploadWorker struct {
	Deps

	log zerolog.Logger
}

// NewUploadWorker 构造上传 worker.
func NewUploadWorker(d Deps) *UploadWorker {
	return &UploadWorker{Deps: d, log: nlog.Component("upload")}
}

// Handle 处理一条 upload 消息. 失败时保留本地文件供重投使用.
func (w *UploadWorker) Handle(msg *message.Message) error {
	const op = "pipeline.upload"

	env, err := queue.ParseWatermillMessage[queue.UploadPayload](msg)
	if err != nil {
		return err
	}

	p := env.Payload
	if err := queue.Validate(op, p); err != nil {
		return err
	}

	family := model.MetadataFamily(p.Family)
	if !family.Valid() {
		return errs.E(errs.Validation, op, "UnknownFamily", nil)
	}

	if !w.Files.Exists(p.Source.Path) {
		return errs.E(errs.NotFound, op, "SourceMissing", nil)
	}

	ctx := msg.Context()

	if err := w.put(ctx, p.PresignedURL, p.DestinationKey, p.Source.Path, p.ContentType); err != nil {
		return err
	}

	v := metadata.Variant{
		Path:        p.DestinationKey,
		Width:       p.Width,
		Height:      p.Height,
		Size:        p.Size,
		Duration:    p.Duration,
		ContentType: p.ContentType,
		Uploaded:    true,
	}
	if _, err := w.Metadata.Upsert(ctx, p.AssetID, family, p.Variant, v); err != nil {
		return err
	}

	w.Files.Release(p.Source)

	w.log.Info().
		Str("asset_id", p.AssetID).
		Str("variant", p.Variant).
		Str("key", p.DestinationKey).
		Msg("variant uploaded")

	return nil
}

// put 上传文件，签名过期时重新签名后再试一次.
func (d Deps) put(ctx context.Context, url, key, path, contentType string) error {
	err := d.Uploader.Upload(ctx, url, path, contentType)
	if !errors.Is(err, ErrPresignExpired) {
		return err
	}

	fresh, perr := d.Blob.PresignUpload(ctx, key, d.Config.GetWorkerPresignTTL())
	if perr != nil {
		return errors.Join(err, perr)
	}

	return d.Uploader.Upload(ctx, fresh, path, contentType)
}

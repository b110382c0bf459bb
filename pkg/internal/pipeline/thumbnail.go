package pipeline

import (
	"context"
	"path"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog"

	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/errs"
	"github.com/yeisme/mediavault/pkg/internal/metadata"
	nlog "github.com/yeisme/mediavault/pkg/log"
	"github.com/yeisme/mediavault/pkg/media"
	"github.com/yeisme/mediavault/pkg/queue"
)

// ThumbnailWorker 生成并上传缩略图.
type ThumbnailWorker struct {
	Deps

	log zerolog.Logger
}

// NewThumbnailWorker 构造缩略图 worker.
func NewThumbnailWorker(d Deps) *ThumbnailWorker {
	return &ThumbnailWorker{Deps: d, log: nlog.Component("thumbnail")}
}

// Handle 处理一条 thumbnail 消息.
func (w *ThumbnailWorker) Handle(msg *message.Message) error {
	const op = "pipeline.thumbnail"

	env, err := queue.ParseWatermillMessage[queue.ThumbnailPayload](msg)
	if err != nil {
		return err
	}

	p := env.Payload
	if err := queue.Validate(op, p); err != nil {
		return err
	}

	family, _ := metadata.FamilyOf(p.Kind)
	ctx := msg.Context()

	src := p.Source
	if !w.Files.Exists(src.Path) {
		// 本地副本已丢失（换了节点或被清理），重新下载
		fetched, err := w.Files.Fetch(ctx, w.Blob, p.AssetID, p.StoragePath)
		if err != nil {
			return err
		}

		src = queue.LocalFile{Path: fetched, Release: true}
	}

	base := strings.TrimSuffix(path.Base(p.StoragePath), path.Ext(p.StoragePath))
	out := w.Files.Path(p.AssetID, base+"-"+msg.UUID+"-thumbnail.jpg")

	info, err := w.render(ctx, p.Kind, src.Path, out)
	if err != nil {
		return err
	}
	defer w.Files.Remove(out)

	key := media.ThumbnailKey(p.StoragePath)

	url, err := w.Blob.PresignUpload(ctx, key, w.Config.GetWorkerPresignTTL())
	if err != nil {
		return err
	}

	if err := w.put(ctx, url, key, out, media.ContentTypeJPEG); err != nil {
		return err
	}

	v := metadata.Variant{
		Path:        key,
		Width:       info.Width,
		Height:      info.Height,
		Size:        info.Size,
		ContentType: media.ContentTypeJPEG,
		Uploaded:    true,
	}

	name := metadata.NameThumbnail
	if p.Kind == media.KindImage {
		name = metadata.NameThumbnails
		v.JobID = msg.UUID
	}

	if _, err := w.Metadata.Upsert(ctx, p.AssetID, family, name, v); err != nil {
		return err
	}

	w.Files.Release(src)

	w.log.Info().Str("asset_id", p.AssetID).Str("key", key).Msg("thumbnail uploaded")

	return nil
}

func (w *ThumbnailWorker) render(ctx context.Context, kind media.Kind, in, out string) (media.Info, error) {
	const op = "pipeline.thumbnail.render"

	width := w.Config.ThumbnailWidth
	if width <= 0 {
		width = configs.DefaultThumbnailWidth
	}

	if kind == media.KindImage {
		info, err := w.Tool.ResizeImage(ctx, in, out, width)
		if err != nil {
			return info, errs.E(errs.TranscodeFailure, op, "ResizeFailed", err)
		}

		return info, nil
	}

	probe, err := w.Tool.ProbeVideo(ctx, in)
	if err != nil {
		return probe, errs.E(errs.TranscodeFailure, op, "ProbeFailed", err)
	}

	if err := w.Tool.CaptureFrame(ctx, in, out, media.ThumbnailAt(probe.Duration), width); err != nil {
		return media.Info{}, errs.E(errs.TranscodeFailure, op, "CaptureFailed", err)
	}

	info, err := w.Tool.ProbeImage(ctx, out)
	if err != nil {
		return info, errs.E(errs.TranscodeFailure, op, "ProbeFailed", err)
	}

	return info, nil
}

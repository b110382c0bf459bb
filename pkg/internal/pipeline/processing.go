package pipeline

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/rs/zerolog"

	"github.com/yeisme/mediavault/pkg/errs"
	"github.com/yeisme/mediavault/pkg/internal/metadata"
	"github.com/yeisme/mediavault/pkg/internal/model"
	nlog "github.com/yeisme/mediavault/pkg/log"
	"github.com/yeisme/mediavault/pkg/media"
	"github.com/yeisme/mediavault/pkg/queue"
)

// ProcessingWorker 下载原始文件、探测并扇出缩略图与转码上传任务.
type ProcessingWorker struct {
	Deps

	log zerolog.Logger
}

// NewProcessingWorker 构造处理 worker.
func NewProcessingWorker(d Deps) *ProcessingWorker {
	return &ProcessingWorker{Deps: d, log: nlog.Component("processing")}
}

// Handle 处理一条 processing 消息.
func (w *ProcessingWorker) Handle(msg *message.Message) error {
	const op = "pipeline.process"

	env, err := queue.ParseWatermillMessage[queue.ProcessPayload](msg)
	if err != nil {
		return err
	}

	p := env.Payload
	if err := queue.Validate(op, p); err != nil {
		return err
	}

	family, _ := metadata.FamilyOf(p.Kind)
	ctx := WithCorrelationID(msg.Context(), middleware.MessageCorrelationID(msg))
	log := w.log.With().Str("asset_id", p.AssetID).Str("job_id", msg.UUID).Str("kind", string(p.Kind)).Logger()

	src, err := w.Files.Fetch(ctx, w.Blob, p.AssetID, p.StoragePath)
	if err != nil {
		return err
	}

	info, err := w.probe(ctx, p.Kind, src)
	if err != nil {
		return err
	}

	log.Info().Int("width", info.Width).Int("height", info.Height).Dur("duration", info.Duration).Msg("original probed")

	original := metadata.Variant{
		Path:        p.StoragePath,
		Width:       info.Width,
		Height:      info.Height,
		Size:        info.Size,
		Duration:    info.Duration.Seconds(),
		ContentType: p.MimeType,
		Uploaded:    true,
		JobID:       msg.UUID,
	}
	if _, err := w.Metadata.Upsert(ctx, p.AssetID, family, metadata.NameOriginal, original); err != nil {
		return err
	}

	// 缩略图先于转码入队. 进程内重试跳过已入队的步骤
	if !fannedOut(msg, metadata.NameThumbnail) {
		thumbSrc, err := w.thumbnailSource(p, src)
		if err != nil {
			return err
		}

		if _, err := Enqueue(ctx, w.Enqueuer, p.Kind, queue.StageThumbnail, p.AssetID, queue.ThumbnailPayload{
			AssetID:     p.AssetID,
			StoragePath: p.StoragePath,
			Source:      thumbSrc,
			Kind:        p.Kind,
		}); err != nil {
			return err
		}

		markFannedOut(msg, metadata.NameThumbnail)
	}

	if p.Kind != media.KindVideo {
		return nil
	}

	for _, height := range w.Config.GetResolutions() {
		name := media.VariantName(height)
		if fannedOut(msg, name) {
			continue
		}

		if err := w.derive(ctx, p, family, src, height, log); err != nil {
			return err
		}

		markFannedOut(msg, name)
	}

	w.Files.Remove(src)

	return nil
}

func (w *ProcessingWorker) probe(ctx context.Context, kind media.Kind, src string) (media.Info, error) {
	var (
		info media.Info
		err  error
	)

	if kind == media.KindVideo {
		info, err = w.Tool.ProbeVideo(ctx, src)
	} else {
		info, err = w.Tool.ProbeImage(ctx, src)
	}

	if err != nil {
		return info, errs.E(errs.TranscodeFailure, "pipeline.probe", "ProbeFailed", err)
	}

	return info, nil
}

// thumbnailSource 视频给缩略图阶段一个独立链接，图片直接移交原始文件.
func (w *ProcessingWorker) thumbnailSource(p queue.ProcessPayload, src string) (queue.LocalFile, error) {
	if p.Kind != media.KindVideo {
		return queue.LocalFile{Path: src, Release: true}, nil
	}

	link := w.Files.Path(p.AssetID, "thumbsrc-"+queue.NewJobID()+"-"+filepath.Base(src))
	if err := w.Files.Link(src, link); err != nil {
		return queue.LocalFile{}, errs.Wrap(errs.StorageUnavailable, "pipeline.link", err)
	}

	return queue.LocalFile{Path: link, Release: true}, nil
}

func (w *ProcessingWorker) derive(ctx context.Context, p queue.ProcessPayload, family model.MetadataFamily, src string, height int, log zerolog.Logger) error {
	const op = "pipeline.derive"

	name := media.VariantName(height)
	base := strings.TrimSuffix(path.Base(p.StoragePath), path.Ext(p.StoragePath))
	// 每次转码写入新文件，已入队的上传任务可能仍在读取旧文件
	out := w.Files.Path(p.AssetID, fmt.Sprintf("%s-%s-%s.mp4", base, name, queue.NewJobID()))

	if err := w.Tool.Transcode(ctx, src, out, height); err != nil {
		return errs.E(errs.TranscodeFailure, op, "TranscodeFailed", err)
	}

	info, err := w.Tool.ProbeVideo(ctx, out)
	if err != nil {
		return errs.E(errs.TranscodeFailure, op, "ProbeFailed", err)
	}

	key := media.ResolutionKey(p.StoragePath, height)

	url, err := w.Blob.PresignUpload(ctx, key, w.Config.GetWorkerPresignTTL())
	if err != nil {
		return err
	}

	variant := metadata.Variant{
		Path:        key,
		Width:       info.Width,
		Height:      info.Height,
		Size:        info.Size,
		Duration:    info.Duration.Seconds(),
		ContentType: media.ContentTypeMP4,
	}
	// 先登记变体再入队上传，上传完成时只需翻转 uploaded
	if _, err := w.Metadata.Upsert(ctx, p.AssetID, family, name, variant); err != nil {
		return err
	}

	ref, err := Enqueue(ctx, w.Enqueuer, p.Kind, queue.StageUpload, p.AssetID, queue.UploadPayload{
		AssetID:        p.AssetID,
		Family:         string(family),
		Variant:        name,
		Source:         queue.LocalFile{Path: out, Release: true},
		DestinationKey: key,
		PresignedURL:   url,
		ContentType:    media.ContentTypeMP4,
		Width:          info.Width,
		Height:         info.Height,
		Size:           info.Size,
		Duration:       info.Duration.Seconds(),
		Kind:           p.Kind,
	})
	if err != nil {
		return err
	}

	log.Info().Str("variant", name).Str("upload_job", ref.JobID).Msg("variant transcoded")

	return nil
}

// metaFanOutPrefix 消息元数据中记录已完成扇出步骤的前缀. 重试复用同一条消息，标记随之保留.
const metaFanOutPrefix = "fanout_"

func fannedOut(msg *message.Message, step string) bool {
	return msg.Metadata.Get(metaFanOutPrefix+step) != ""
}

func markFannedOut(msg *message.Message, step string) {
	if msg.Metadata == nil {
		msg.Metadata = message.Metadata{}
	}

	msg.Metadata.Set(metaFanOutPrefix+step, "1")
}

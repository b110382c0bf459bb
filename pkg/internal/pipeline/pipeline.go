// Package pipeline 实现媒体派生流水线：队列路由、生命周期钩子与三类 worker.
//
// 拓扑（每种媒体一套）:
//
//	mv.{kind}.processing ─┬─> mv.{kind}.thumbnail
//	                      └─> mv.{kind}.upload (仅视频，每个目标分辨率一条)
//
// 处理 worker 下载原始文件、探测、写入 original 变体并扇出；缩略图 worker 生成 JPEG 并上传；
// 上传 worker 把本地派生文件推送到预签名地址并把变体标记为 uploaded.
// 每条入队的消息在账本中有一行记录，router 中间件负责把它推进到 ACTIVE 与终态.
package pipeline

import (
	"context"
	"time"

	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/internal/ledger"
	"github.com/yeisme/mediavault/pkg/internal/metadata"
	"github.com/yeisme/mediavault/pkg/media"
)

// BlobStore worker 需要的对象存储能力.
type BlobStore interface {
	Download(ctx context.Context, key, localPath string) error
	PresignUpload(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// MediaTool 探测与转换媒体文件.
type MediaTool interface {
	ProbeVideo(ctx context.Context, path string) (media.Info, error)
	ProbeImage(ctx context.Context, path string) (media.Info, error)
	Transcode(ctx context.Context, in, out string, height int) error
	CaptureFrame(ctx context.Context, in, out string, at time.Duration, width int) error
	ResizeImage(ctx context.Context, in, out string, width int) (media.Info, error)
}

// Uploader 把本地文件 PUT 到预签名地址.
type Uploader interface {
	Upload(ctx context.Context, url, path, contentType string) error
}

// Deps worker 共享的依赖.
type Deps struct {
	Blob     BlobStore
	Tool     MediaTool
	Uploader Uploader
	Metadata *metadata.Store
	Ledger   *ledger.Ledger
	Enqueuer *Enqueuer
	Files    *Workspace
	Config   configs.PipelineConfig
}

var (
	_ MediaTool = (*media.Tool)(nil)
	_ Uploader  = (*HTTPUploader)(nil)
)

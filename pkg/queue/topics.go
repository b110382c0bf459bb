// Package queue 定义消息主题常量与通配模式，供发布/订阅使用.
package queue

import "github.com/yeisme/mediavault/pkg/media"

// 主题命名规范：mv.<媒体类别>.<阶段>，每种媒体每个阶段一个独立队列.
// 阶段：processing(下载+探测+转码)、thumbnail(缩略图)、upload(推送派生文件)

// Stage 流水线阶段.
type Stage string

const (
	StageProcessing Stage = "processing"
	StageThumbnail  Stage = "thumbnail"
	StageUpload     Stage = "upload"
)

const (
	TopicPrefix = "mv."

	TopicVideoProcessing = "mv.video.processing" // 视频下载、探测并扇出转码
	TopicVideoThumbnail  = "mv.video.thumbnail"  // 视频截帧
	TopicVideoUpload     = "mv.video.upload"     // 推送转码结果
	TopicImageProcessing = "mv.image.processing" // 图片下载与探测
	TopicImageThumbnail  = "mv.image.thumbnail"  // 图片缩放
	TopicImageUpload     = "mv.image.upload"     // 推送图片派生文件

	TopicPoison = "mv.pipeline.poison" // 死信队列
)

// Stages 按处理顺序列出阶段.
var Stages = []Stage{StageProcessing, StageThumbnail, StageUpload}

// Kinds 有流水线的媒体类别.
var Kinds = []media.Kind{media.KindVideo, media.KindImage}

// PipelineTopics 全部业务主题.
var PipelineTopics = []string{
	TopicVideoProcessing, TopicVideoThumbnail, TopicVideoUpload,
	TopicImageProcessing, TopicImageThumbnail, TopicImageUpload,
}

// Topic 返回媒体类别与阶段对应的主题.
func Topic(kind media.Kind, stage Stage) string {
	return TopicPrefix + string(kind) + "." + string(stage)
}

// WorkerName 返回账本中记录的 worker 名称，如 video-processing.
func WorkerName(kind media.Kind, stage Stage) string {
	return string(kind) + "-" + string(stage)
}

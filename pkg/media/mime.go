// Package media 封装媒体探测与转换：ffmpeg/ffprobe 处理视频，imaging 处理图片.
package media

import (
	"mime"
	"path"
	"strings"
)

// Kind 媒体类别，决定资产进入哪条处理流水线.
type Kind string

const (
	KindVideo Kind = "video"
	KindImage Kind = "image"
	KindOther Kind = "other"
)

const (
	ContentTypeMP4  = "video/mp4"
	ContentTypeJPEG = "image/jpeg"
)

// Processable 是否有对应的派生流水线.
func (k Kind) Processable() bool {
	return k == KindVideo || k == KindImage
}

// ClassifyMime 按 MIME 主类型分类，忽略参数与大小写.
func ClassifyMime(mimeType string) Kind {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if parsed, _, err := mime.ParseMediaType(mt); err == nil {
		mt = parsed
	}

	switch {
	case strings.HasPrefix(mt, "video/"):
		return KindVideo
	case strings.HasPrefix(mt, "image/"):
		return KindImage
	default:
		return KindOther
	}
}

// GuessMime 在客户端未声明类型时按扩展名推断.
func GuessMime(fileName string) string {
	ext := strings.ToLower(path.Ext(fileName))
	if ext == "" {
		return "application/octet-stream"
	}

	if t, ok := knownTypes[ext]; ok {
		return t
	}

	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}

	return "application/octet-stream"
}

// knownTypes 系统 mime 表缺失时也能识别的常见媒体扩展名.
var knownTypes = map[string]string{
	".mp4":  ContentTypeMP4,
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",
	".jpg":  ContentTypeJPEG,
	".jpeg": ContentTypeJPEG,
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".heic": "image/heic",
	".pdf":  "application/pdf",
}

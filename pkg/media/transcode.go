package media

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"
)

// Transcode 把视频缩放到指定高度并编码为 h264/aac 的 mp4，宽度按比例取偶数.
func (t *Tool) Transcode(ctx context.Context, in, out string, height int) error {
	if height <= 0 {
		return fmt.Errorf("transcode: invalid height %d", height)
	}

	_, err := t.run(ctx, t.FFmpegPath, TranscodeArgs(in, out, height)...)

	return err
}

// TranscodeArgs 构造转码参数.
func TranscodeArgs(in, out string, height int) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-i", in,
		"-vf", "scale=-2:" + strconv.Itoa(height),
		"-c:v", "libx264",
		"-preset", "veryfast",
		"-crf", "23",
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		out,
	}
}

// CaptureFrame 在 at 处截取一帧并缩放到 width 宽，输出 JPEG.
func (t *Tool) CaptureFrame(ctx context.Context, in, out string, at time.Duration, width int) error {
	_, err := t.run(ctx, t.FFmpegPath, FrameArgs(in, out, at, width)...)

	return err
}

// FrameArgs 构造截帧参数，-ss 放在 -i 前以快速定位.
func FrameArgs(in, out string, at time.Duration, width int) []string {
	return []string{
		"-hide_banner", "-nostdin", "-y",
		"-ss", strconv.FormatFloat(at.Seconds(), 'f', 3, 64),
		"-i", in,
		"-frames:v", "1",
		"-vf", "scale=" + strconv.Itoa(width) + ":-2",
		"-q:v", "3",
		out,
	}
}

// ThumbnailAt 缩略图取时长的一半处.
func ThumbnailAt(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}

	return d / 2
}

// VariantName 分辨率变体名，如 720p.
func VariantName(height int) string {
	return strconv.Itoa(height) + "p"
}

// VariantKey 派生文件的对象键：与原始文件同目录，{name}-{suffix}.{ext}.
func VariantKey(storagePath, suffix, ext string) string {
	dir, file := path.Split(storagePath)
	name := strings.TrimSuffix(file, path.Ext(file))

	return dir + name + "-" + suffix + "." + ext
}

// ResolutionKey 分辨率变体对象键，如 assets/{id}/clip-720p.mp4.
func ResolutionKey(storagePath string, height int) string {
	return VariantKey(storagePath, VariantName(height), "mp4")
}

// ThumbnailKey 缩略图对象键，如 assets/{id}/clip-thumbnail.jpg.
func ThumbnailKey(storagePath string) string {
	return VariantKey(storagePath, "thumbnail", "jpg")
}

package media_test

import (
	"context"
	"image/color"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/mediavault/pkg/media"
)

// TestClassifyMime 测试 MIME 分类.
func TestClassifyMime(t *testing.T) {
	cases := map[string]media.Kind{
		"video/mp4":                  media.KindVideo,
		"VIDEO/QuickTime":            media.KindVideo,
		"image/png":                  media.KindImage,
		"image/jpeg; charset=binary": media.KindImage,
		"application/pdf":            media.KindOther,
		"":                           media.KindOther,
	}

	for in, want := range cases {
		assert.Equal(t, want, media.ClassifyMime(in), in)
	}

	assert.True(t, media.KindVideo.Processable())
	assert.False(t, media.KindOther.Processable())
	assert.Equal(t, "video/x-matroska", media.GuessMime("a.mkv"))
	assert.Equal(t, "application/octet-stream", media.GuessMime("README"))
}

// TestVariantKeys 测试派生对象键.
func TestVariantKeys(t *testing.T) {
	assert.Equal(t, "assets/42/clip-720p.mp4", media.ResolutionKey("assets/42/clip.mov", 720))
	assert.Equal(t, "assets/42/clip-thumbnail.jpg", media.ThumbnailKey("assets/42/clip.mov"))
	assert.Equal(t, "assets/42/my.photo-thumbnail.jpg", media.ThumbnailKey("assets/42/my.photo.png"))
	assert.Equal(t, "480p", media.VariantName(480))
	assert.Equal(t, 5*time.Second, media.ThumbnailAt(10*time.Second))
	assert.Equal(t, time.Duration(0), media.ThumbnailAt(0))
}

// TestArgs 测试 ffmpeg 参数.
func TestArgs(t *testing.T) {
	args := media.TranscodeArgs("in.mp4", "out.mp4", 480)
	assert.Contains(t, args, "scale=-2:480")
	assert.Contains(t, args, "+faststart")
	assert.Equal(t, "out.mp4", args[len(args)-1])

	args = media.FrameArgs("in.mp4", "t.jpg", 1500*time.Millisecond, 320)
	assert.Contains(t, args, "1.500")
	assert.Contains(t, args, "scale=320:-2")
}

// TestParseProbe 测试 ffprobe 输出解析.
func TestParseProbe(t *testing.T) {
	raw := []byte(`{
		"streams": [
			{"codec_type": "audio", "codec_name": "aac"},
			{"codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "duration": "12.5"}
		],
		"format": {"format_name": "mov,mp4", "duration": "12.480000", "size": "1048576"}
	}`)

	info, err := media.ParseProbe(raw)
	require.NoError(t, err)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.Equal(t, int64(1048576), info.Size)
	assert.Equal(t, "aac", info.AudioCodec)
	assert.InDelta(t, 12.48, info.Duration.Seconds(), 0.001)

	_, err = media.ParseProbe([]byte(`{"streams": [{"codec_type": "audio"}], "format": {}}`))
	assert.Error(t, err)
}

// TestResizeImage 测试图片缩放与探测.
func TestResizeImage(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.png")
	out := filepath.Join(dir, "thumb.jpg")

	require.NoError(t, imaging.Save(imaging.New(1280, 720, color.NRGBA{R: 200, A: 255}), src))

	tool := media.NewTool("", "")
	ctx := context.Background()

	info, err := tool.ProbeImage(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 1280, info.Width)
	assert.Equal(t, 720, info.Height)

	thumb, err := tool.ResizeImage(ctx, src, out, 320)
	require.NoError(t, err)
	assert.Equal(t, 320, thumb.Width)
	assert.Equal(t, 180, thumb.Height)
	assert.Positive(t, thumb.Size)
}

// TestRunError 测试外部命令失败时返回带 stderr 的错误.
func TestRunError(t *testing.T) {
	tool := media.NewTool("/nonexistent/ffmpeg", "/nonexistent/ffprobe")
	require.Error(t, tool.Available())

	_, err := tool.ProbeVideo(context.Background(), "missing.mp4")
	require.Error(t, err)

	var merr *media.Error
	require.ErrorAs(t, err, &merr)
	assert.Contains(t, merr.Command(), "ffprobe")
}

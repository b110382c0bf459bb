package media

import (
	"context"
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
)

// ProbeImage 解码图片头部获取宽高.
func (t *Tool) ProbeImage(_ context.Context, path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return Info{}, fmt.Errorf("image: decode config: %w", err)
	}

	st, err := f.Stat()
	if err != nil {
		return Info{}, err
	}

	return Info{Width: cfg.Width, Height: cfg.Height, Size: st.Size(), FormatName: format}, nil
}

// ResizeImage 按宽度等比缩放并保存为 JPEG，返回输出尺寸.
func (t *Tool) ResizeImage(ctx context.Context, in, out string, width int) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}

	src, err := imaging.Open(in, imaging.AutoOrientation(true))
	if err != nil {
		return Info{}, fmt.Errorf("image: open: %w", err)
	}

	// 不放大小图
	if src.Bounds().Dx() > width {
		src = imaging.Resize(src, width, 0, imaging.Lanczos)
	}

	if err := imaging.Save(src, out, imaging.JPEGQuality(85)); err != nil {
		return Info{}, fmt.Errorf("image: save: %w", err)
	}

	st, err := os.Stat(out)
	if err != nil {
		return Info{}, err
	}

	b := src.Bounds()

	return Info{Width: b.Dx(), Height: b.Dy(), Size: st.Size(), FormatName: "jpeg"}, nil
}

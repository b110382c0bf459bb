package media

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
)

// Info 探测得到的媒体基础属性.
type Info struct {
	Width      int
	Height     int
	Duration   time.Duration
	Size       int64
	VideoCodec string
	AudioCodec string
	FormatName string
}

type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
		Duration  string `json:"duration"`
	} `json:"streams"`
}

// ProbeVideo 使用 ffprobe 读取视频宽高、时长与大小.
func (t *Tool) ProbeVideo(ctx context.Context, path string) (Info, error) {
	out, err := t.run(ctx, t.FFprobePath,
		"-hide_banner",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return Info{}, err
	}

	info, err := ParseProbe(out)
	if err != nil {
		return Info{}, err
	}

	if info.Size == 0 {
		if st, err := os.Stat(path); err == nil {
			info.Size = st.Size()
		}
	}

	return info, nil
}

// ParseProbe 解析 ffprobe 的 JSON 输出.
func ParseProbe(raw []byte) (Info, error) {
	var output ffprobeOutput
	if err := sonic.Unmarshal(raw, &output); err != nil {
		return Info{}, fmt.Errorf("ffprobe: failed to parse output: %w", err)
	}

	info := Info{FormatName: output.Format.FormatName}
	info.Duration = parseSeconds(output.Format.Duration)

	if output.Format.Size != "" {
		info.Size, _ = strconv.ParseInt(output.Format.Size, 10, 64)
	}

	for _, s := range output.Streams {
		switch s.CodecType {
		case "video":
			// 只取第一路视频流
			if info.VideoCodec == "" {
				info.Width = s.Width
				info.Height = s.Height
				info.VideoCodec = s.CodecName

				if info.Duration == 0 {
					info.Duration = parseSeconds(s.Duration)
				}
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = s.CodecName
			}
		}
	}

	if info.VideoCodec == "" {
		return info, fmt.Errorf("ffprobe: no video stream")
	}

	return info, nil
}

func parseSeconds(s string) time.Duration {
	if s == "" {
		return 0
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}

	return time.Duration(f * float64(time.Second))
}

package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Tool 调用外部 ffmpeg/ffprobe 与 imaging 完成探测和转换.
type Tool struct {
	FFmpegPath  string
	FFprobePath string
}

// NewTool 构造 Tool，路径为空时使用 PATH 中的同名程序.
func NewTool(ffmpegPath, ffprobePath string) *Tool {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	return &Tool{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

// Available 检查 ffmpeg 与 ffprobe 是否可执行.
func (t *Tool) Available() error {
	for _, bin := range []string{t.FFmpegPath, t.FFprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("media: %s not found: %w", bin, err)
		}
	}

	return nil
}

// run 执行命令并返回标准输出. ctx 取消时进程会被杀死.
func (t *Tool) run(ctx context.Context, bin string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, bin, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w (%w)", ctxErr, err)
		}

		return nil, &Error{Bin: bin, Args: args, Stderr: stderr.String(), Err: err}
	}

	return stdout.Bytes(), nil
}

// Error 外部进程执行失败，附带 stderr 便于排查.
type Error struct {
	Bin    string
	Args   []string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	// 只取 stderr 最后几行
	lines := strings.Split(strings.TrimSpace(e.Stderr), "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}

	if tail := strings.Join(lines, "\n"); tail != "" {
		return fmt.Sprintf("%s: %v: %s", e.Bin, e.Err, tail)
	}

	return fmt.Sprintf("%s: %v", e.Bin, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Command 返回执行的完整命令行.
func (e *Error) Command() string {
	return e.Bin + " " + strings.Join(e.Args, " ")
}

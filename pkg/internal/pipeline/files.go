package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/yeisme/mediavault/pkg/errs"
	"github.com/yeisme/mediavault/pkg/queue"
)

// Workspace 管理 {temp_dir}/{asset_id}/ 下的临时文件.
type Workspace struct {
	root string
}

// NewWorkspace 创建工作目录.
func NewWorkspace(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve temp dir: %w", err)
	}

	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}

	return &Workspace{root: abs}, nil
}

// Root 工作目录根.
func (w *Workspace) Root() string { return w.root }

// Dir 资产的工作目录.
func (w *Workspace) Dir(assetID string) string {
	return filepath.Join(w.root, filepath.Base(assetID))
}

// Path 资产工作目录下的文件路径，name 只取最后一段.
func (w *Workspace) Path(assetID, name string) string {
	return filepath.Join(w.Dir(assetID), filepath.Base(name))
}

// Contains 判断 p 是否位于工作目录内.
func (w *Workspace) Contains(p string) bool {
	rel, err := filepath.Rel(w.root, p)
	return err == nil && rel != "." && !strings.HasPrefix(rel, "..")
}

// Exists 本地文件是否存在.
func (w *Workspace) Exists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}

// Fetch 确保对象在本地存在并返回路径. 先下载到临时名再改名，避免半截文件被当作完整文件.
func (w *Workspace) Fetch(ctx context.Context, blob BlobStore, assetID, key string) (string, error) {
	dst := w.Path(assetID, path.Base(key))
	if w.Exists(dst) {
		return dst, nil
	}

	if err := os.MkdirAll(w.Dir(assetID), 0o750); err != nil {
		return "", errs.Wrap(errs.StorageUnavailable, "workspace.fetch", err)
	}

	part := dst + ".part"
	if err := blob.Download(ctx, key, part); err != nil {
		_ = os.Remove(part)
		return "", err
	}

	if err := os.Rename(part, dst); err != nil {
		return "", errs.Wrap(errs.StorageUnavailable, "workspace.fetch", err)
	}

	return dst, nil
}

// Link 为 src 创建一个独立的目录项 dst，优先硬链接，跨设备时复制.
func (w *Workspace) Link(src, dst string) error {
	_ = os.Remove(dst)

	if err := os.Link(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}

	return out.Close()
}

// Remove 删除工作目录内的文件，资产目录空了一并删除.
func (w *Workspace) Remove(p string) {
	if !w.Contains(p) {
		return
	}

	_ = os.Remove(p)
	// 非空时 Remove 失败，忽略即可
	_ = os.Remove(filepath.Dir(p))
}

// Release 按所有权令牌释放文件.
func (w *Workspace) Release(f queue.LocalFile) {
	if f.Release {
		w.Remove(f.Path)
	}
}

// Sweep 删除修改时间早于 olderThan 的文件与空目录，返回删除的文件数.
func (w *Workspace) Sweep(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	removed := 0

	var dirs []string

	err := filepath.WalkDir(w.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return err
		}

		if p == w.root {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		if d.IsDir() {
			if info.ModTime().Before(cutoff) {
				dirs = append(dirs, p)
			}

			return nil
		}

		if info.ModTime().Before(cutoff) {
			if os.Remove(p) == nil {
				removed++
			}
		}

		return nil
	})

	// 由深到浅删除过期的空目录
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i])
	}

	return removed, err
}

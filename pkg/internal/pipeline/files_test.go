package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/mediavault/pkg/internal/pipeline"
	"github.com/yeisme/mediavault/pkg/queue"
)

// TestWorkspaceFetch 测试下载只发生一次且不留下临时文件.
func TestWorkspaceFetch(t *testing.T) {
	ws, err := pipeline.NewWorkspace(t.TempDir())
	require.NoError(t, err)

	blob := &fakeBlob{downloads: map[string]int{}}
	ctx := context.Background()

	p, err := ws.Fetch(ctx, blob, "a1", "assets/a1/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, ws.Path("a1", "clip.mp4"), p)
	assert.FileExists(t, p)
	assert.NoFileExists(t, p+".part")

	_, err = ws.Fetch(ctx, blob, "a1", "assets/a1/clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, 1, blob.downloadCount("assets/a1/clip.mp4"))

	_, err = ws.Fetch(ctx, blob, "a1", "assets/a1/missing.mp4")
	require.Error(t, err)
	assert.NoFileExists(t, ws.Path("a1", "missing.mp4.part"))
}

// TestWorkspacePaths 测试路径被限制在工作目录内.
func TestWorkspacePaths(t *testing.T) {
	ws, err := pipeline.NewWorkspace(t.TempDir())
	require.NoError(t, err)

	p := ws.Path("../../etc", "../passwd")
	assert.True(t, ws.Contains(p))
	assert.False(t, ws.Contains(filepath.Dir(ws.Root())))
	assert.False(t, ws.Contains(ws.Root()))
}

// TestWorkspaceRelease 测试只释放持有所有权的文件，资产目录空了会被删除.
func TestWorkspaceRelease(t *testing.T) {
	ws, err := pipeline.NewWorkspace(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(ws.Dir("a1"), 0o750))

	src := ws.Path("a1", "clip.mp4")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o600))

	link := ws.Path("a1", "thumbsrc-clip.mp4")
	require.NoError(t, ws.Link(src, link))

	ws.Release(queue.LocalFile{Path: link, Release: false})
	assert.FileExists(t, link)

	ws.Release(queue.LocalFile{Path: link, Release: true})
	assert.NoFileExists(t, link)
	assert.FileExists(t, src)

	ws.Remove(src)
	assert.NoDirExists(t, ws.Dir("a1"))

	// 工作目录外的文件不受影响
	outside := filepath.Join(t.TempDir(), "keep.txt")
	require.NoError(t, os.WriteFile(outside, []byte("x"), 0o600))
	ws.Remove(outside)
	assert.FileExists(t, outside)
}

// TestWorkspaceSweep 测试清理过期文件.
func TestWorkspaceSweep(t *testing.T) {
	ws, err := pipeline.NewWorkspace(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(ws.Dir("old"), 0o750))
	require.NoError(t, os.MkdirAll(ws.Dir("new"), 0o750))

	stale := ws.Path("old", "a.mp4")
	fresh := ws.Path("new", "b.mp4")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o600))

	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, past, past))

	n, err := ws.Sweep(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
}

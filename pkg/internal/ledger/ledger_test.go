package ledger_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/mediavault/pkg/errs"
	"github.com/yeisme/mediavault/pkg/internal/ledger"
	"github.com/yeisme/mediavault/pkg/internal/model"
	"github.com/yeisme/mediavault/pkg/internal/storage/db"
	"github.com/yeisme/mediavault/pkg/queue"
)

func setup(t *testing.T) (*ledger.Ledger, string) {
	t.Helper()

	ctx := context.Background()

	client, err := db.NewMemory(ctx, uuid.NewString())
	require.NoError(t, err)

	t.Cleanup(func() { _ = client.Close() })

	asset := model.Asset{
		ID:          uuid.NewString(),
		FileName:    "clip.mp4",
		StoragePath: "assets/x/clip.mp4",
		Owner:       "alice@example.com",
		Status:      model.AssetCompleted,
	}
	require.NoError(t, client.Create(&asset).Error)

	return ledger.New(client), asset.ID
}

// TestForwardOnly 测试状态只前进不倒退.
func TestForwardOnly(t *testing.T) {
	ctx := context.Background()
	l, assetID := setup(t)

	ref := ledger.JobRef{JobID: queue.NewJobID(), AssetID: assetID, WorkerName: "video-processing"}

	l.Pending(ctx, ref)
	l.Active(ctx, ref)
	l.Active(ctx, ref) // 重投
	l.Completed(ctx, ref)
	l.Active(ctx, ref)
	l.Pending(ctx, ref)
	l.Failed(ctx, ref, errors.New("late"))

	job, err := l.Get(ctx, ref.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobCompleted, job.Status)
	assert.Equal(t, model.EventCompleted, job.EventName)
	assert.Equal(t, 2, job.Attempts)
	assert.Empty(t, job.LastError)
	assert.NotNil(t, job.StartedAt)
	assert.NotNil(t, job.FinishedAt)
}

// TestOutOfOrder 测试先收到 ACTIVE 再收到 PENDING.
func TestOutOfOrder(t *testing.T) {
	ctx := context.Background()
	l, assetID := setup(t)

	ref := ledger.JobRef{JobID: queue.NewJobID(), AssetID: assetID, WorkerName: "image-thumbnail"}

	applied, err := l.Transition(ctx, ref, model.JobActive, "")
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = l.Transition(ctx, ref, model.JobPending, "")
	require.NoError(t, err)
	assert.False(t, applied)

	l.Failed(ctx, ref, errors.New("boom"))

	job, err := l.Get(ctx, ref.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobFailed, job.Status)
	assert.Equal(t, "boom", job.LastError)
	assert.Equal(t, 1, job.Attempts)
}

// TestBestEffort 测试写入失败被吞掉.
func TestBestEffort(t *testing.T) {
	ctx := context.Background()
	l, assetID := setup(t)

	assert.NotPanics(t, func() { l.Pending(ctx, ledger.JobRef{AssetID: assetID}) })

	_, err := l.Transition(ctx, ledger.JobRef{AssetID: assetID}, model.JobPending, "")
	assert.True(t, errs.Is(err, errs.LedgerWriteFailure))

	_, err = l.Get(ctx, queue.NewJobID())
	assert.True(t, errs.Is(err, errs.NotFound))
}

// TestQueries 测试列表、聚合与积压查询.
func TestQueries(t *testing.T) {
	ctx := context.Background()
	l, assetID := setup(t)

	for i, worker := range []string{"video-processing", "video-thumbnail", "video-upload", "video-upload"} {
		ref := ledger.JobRef{JobID: queue.NewJobID(), AssetID: assetID, WorkerName: worker}
		l.Pending(ctx, ref)

		if i%2 == 0 {
			l.Active(ctx, ref)
			l.Completed(ctx, ref)
		}
	}

	jobs, total, err := l.List(ctx, ledger.Filter{Owner: "alice@example.com", Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	assert.Len(t, jobs, 2)

	jobs, total, err = l.List(ctx, ledger.Filter{WorkerName: "video-upload"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, jobs, 2)

	_, total, err = l.List(ctx, ledger.Filter{Owner: "bob@example.com"})
	require.NoError(t, err)
	assert.Zero(t, total)

	counts, err := l.Counts(ctx, ledger.Filter{AssetID: assetID})
	require.NoError(t, err)

	var completed, pending int64

	for _, c := range counts {
		switch c.Status {
		case model.JobCompleted:
			completed += c.Count
		case model.JobPending:
			pending += c.Count
		}
	}

	assert.EqualValues(t, 2, completed)
	assert.EqualValues(t, 2, pending)

	stale, err := l.StalePending(ctx, -time.Hour)
	require.NoError(t, err)
	assert.Len(t, stale, 2)

	stale, err = l.StalePending(ctx, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, stale)
}

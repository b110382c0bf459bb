package jobs_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/internal/jobs"
	"github.com/yeisme/mediavault/pkg/internal/ledger"
	"github.com/yeisme/mediavault/pkg/internal/model"
	"github.com/yeisme/mediavault/pkg/internal/pipeline"
	"github.com/yeisme/mediavault/pkg/internal/storage/db"
	"github.com/yeisme/mediavault/pkg/scheduler"
)

// TestSweepTemp 测试只删除过期的临时文件.
func TestSweepTemp(t *testing.T) {
	ws, err := pipeline.NewWorkspace(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(ws.Dir("a"), 0o750))

	old := ws.Path("a", "old.mp4")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o600))

	past := time.Now().Add(-72 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))

	fresh := ws.Path("a", "fresh.mp4")
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o600))

	n, err := jobs.SweepTemp(ws, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, old)
	assert.FileExists(t, fresh)
}

// TestReportStale 测试滞留 PENDING 任务的识别.
func TestReportStale(t *testing.T) {
	ctx := context.Background()

	dbc, err := db.NewMemory(ctx, uuid.NewString())
	require.NoError(t, err)

	t.Cleanup(func() { _ = dbc.Close() })

	asset := model.Asset{
		ID:          uuid.NewString(),
		FileName:    "clip.mp4",
		StoragePath: "assets/x/clip.mp4",
		Owner:       "alice@example.com",
		Status:      model.AssetCompleted,
	}
	require.NoError(t, dbc.Create(&asset).Error)

	stale := model.TranscodingJob{
		JobID:      uuid.NewString(),
		AssetID:    asset.ID,
		WorkerName: "video-processing",
		Status:     model.JobPending,
		EventName:  model.EventEnqueued,
		CreatedAt:  time.Now().UTC().Add(-3 * time.Hour),
	}
	require.NoError(t, dbc.Create(&stale).Error)

	l := ledger.New(dbc)
	l.Pending(ctx, ledger.JobRef{JobID: uuid.NewString(), AssetID: asset.ID, WorkerName: "video-thumbnail"})

	n, err := jobs.ReportStale(ctx, l, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = jobs.ReportStale(ctx, l, -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// TestRegisterCronJobs 测试任务注册到调度器.
func TestRegisterCronJobs(t *testing.T) {
	ctx := context.Background()

	dbc, err := db.NewMemory(ctx, uuid.NewString())
	require.NoError(t, err)

	t.Cleanup(func() { _ = dbc.Close() })

	ws, err := pipeline.NewWorkspace(t.TempDir())
	require.NoError(t, err)

	sched, err := scheduler.NewScheduler()
	require.NoError(t, err)

	t.Cleanup(func() { _ = sched.Shutdown() })

	err = jobs.RegisterCronJobs(ctx, sched, jobs.Deps{
		Files:  ws,
		Ledger: ledger.New(dbc),
		Config: configs.PipelineConfig{
			JanitorCron:     configs.DefaultJanitorCron,
			StaleReportCron: configs.DefaultStaleReportCron,
		},
	})
	require.NoError(t, err)

	names := make([]string, 0, 2)
	for _, info := range sched.GetJobInfos() {
		names = append(names, info.Name)
	}

	assert.ElementsMatch(t, []string{jobs.JobTempSweep, jobs.JobStaleReport}, names)

	require.Error(t, jobs.RegisterCronJobs(ctx, nil, jobs.Deps{}))
}

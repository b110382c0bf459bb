package handle_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/mediavault/pkg/api"
	"github.com/yeisme/mediavault/pkg/cache"
	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/internal/handle"
	"github.com/yeisme/mediavault/pkg/internal/jobs"
	"github.com/yeisme/mediavault/pkg/internal/ledger"
	"github.com/yeisme/mediavault/pkg/internal/metadata"
	"github.com/yeisme/mediavault/pkg/internal/pipeline"
	"github.com/yeisme/mediavault/pkg/internal/service"
	"github.com/yeisme/mediavault/pkg/internal/storage"
	"github.com/yeisme/mediavault/pkg/internal/storage/db"
	"github.com/yeisme/mediavault/pkg/internal/storage/kv"
	"github.com/yeisme/mediavault/pkg/internal/storage/mq"
	"github.com/yeisme/mediavault/pkg/internal/types"
	"github.com/yeisme/mediavault/pkg/middleware"
	"github.com/yeisme/mediavault/pkg/scheduler"
)

const owner = "alice@example.com"

type fakeBlob struct {
	mu      sync.Mutex
	objects map[string]bool
}

func (b *fakeBlob) Exists(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.objects[key], nil
}

func (b *fakeBlob) PresignUpload(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://blob.test/" + key + "?op=put", nil
}

func (b *fakeBlob) PresignDownload(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://blob.test/" + key + "?op=get", nil
}

type server struct {
	engine *gin.Engine
	blob   *fakeBlob
}

func newServer(t *testing.T) *server {
	t.Helper()

	gin.SetMode(gin.TestMode)

	ctx := context.Background()

	dbc, err := db.NewMemory(ctx, uuid.NewString())
	require.NoError(t, err)

	client := mq.NewFromBackend(configs.MQTypeMemory, mq.NewMemoryBackend(watermill.NopLogger{}), nil)

	store, err := kv.NewMemoryKV(ctx, nil)
	require.NoError(t, err)

	sched, err := scheduler.NewScheduler()
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = sched.Shutdown()
		_ = client.Close()
		_ = store.Close()
		_ = dbc.Close()
	})

	ws, err := pipeline.NewWorkspace(t.TempDir())
	require.NoError(t, err)

	l := ledger.New(dbc)
	md := metadata.NewStore(dbc)
	blob := &fakeBlob{objects: map[string]bool{}}
	cfg := configs.PipelineConfig{
		MaxUploadSize:   1 << 30,
		JanitorCron:     configs.DefaultJanitorCron,
		StaleReportCron: configs.DefaultStaleReportCron,
	}

	require.NoError(t, jobs.RegisterCronJobs(ctx, sched, jobs.Deps{Files: ws, Ledger: l, Config: cfg}))

	h := handle.New(
		service.NewAssetService(dbc, blob, pipeline.NewEnqueuer(client.Publisher(), l), md, cfg),
		service.NewJobService(dbc, l, cache.NewCache(store), time.Minute),
	)

	e := gin.New()
	api.RegisterGroup(e, h, nil,
		middleware.AuthMiddleware(configs.AuthConfig{Enabled: true, SkipPaths: []string{"/api/v1/health"}}),
		middleware.RoleMiddleware(),
		middleware.StorageMiddleware(&storage.Manager{DB: dbc}),
		middleware.SchedulerMiddleware(sched),
	)

	return &server{engine: e, blob: blob}
}

func (s *server) do(t *testing.T, method, path, user string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer

	if body != nil {
		b, err := sonic.Marshal(body)
		require.NoError(t, err)
		buf.Write(b)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	if user != "" {
		req.Header.Set("X-Auth-Request-Email", user)
	}

	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &v))

	return v
}

// TestUploadFlow 测试签发、确认与重复确认的 HTTP 映射.
func TestUploadFlow(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/assets/uploads/presign", owner, types.PresignUploadRequest{FileName: "clip.mp4"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	presign := decode[types.PresignUploadResponse](t, w)
	assert.NotEmpty(t, presign.AssetID)
	assert.Contains(t, presign.UploadURL, presign.StoragePath)

	complete := types.CompleteUploadRequest{AssetID: presign.AssetID}

	w = s.do(t, http.MethodPost, "/api/v1/assets/uploads/complete", owner, complete)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "ObjectNotFound", decode[types.ErrorResponse](t, w).Reason)

	s.blob.mu.Lock()
	s.blob.objects[presign.StoragePath] = true
	s.blob.mu.Unlock()

	w = s.do(t, http.MethodPost, "/api/v1/assets/uploads/complete", owner, complete)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/assets/uploads/complete", owner, complete)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "AlreadyCompleted", decode[types.ErrorResponse](t, w).Reason)

	w = s.do(t, http.MethodGet, "/api/v1/assets/"+presign.AssetID, owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode[types.AssetResponse](t, w).Downloads, "original")

	w = s.do(t, http.MethodGet, "/api/v1/assets/"+presign.AssetID, "mallory@example.com", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/assets/jobs?asset_id="+presign.AssetID, owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[types.ListJobsResponse](t, w).Total)
}

// TestRequestRejects 测试认证与参数校验失败.
func TestRequestRejects(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/assets/uploads/presign", "", types.PresignUploadRequest{FileName: "clip.mp4"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/assets/uploads/presign", owner, map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "InvalidBody", decode[types.ErrorResponse](t, w).Reason)

	w = s.do(t, http.MethodPost, "/api/v1/assets/uploads/complete", owner, types.CompleteUploadRequest{AssetID: "not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/assets/jobs?status=RUNNING", owner, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/assets/"+uuid.NewString(), owner, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestSchedulerRoutes 测试调度器路由的角色限制.
func TestSchedulerRoutes(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/scheduler/jobs", owner, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/scheduler/jobs", owner, nil, "X-Role", "admin")
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[struct {
		Jobs []scheduler.JobInfo `json:"jobs"`
	}](t, w)
	assert.Len(t, body.Jobs, 2)

	w = s.do(t, http.MethodGet, "/api/v1/scheduler/jobs/"+jobs.JobTempSweep, owner, nil, "X-Role", "admin")
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/scheduler/jobs/unknown", owner, nil, "X-Role", "admin")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// TestHealth 测试单组件与汇总健康检查.
func TestHealth(t *testing.T) {
	s := newServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/health/db", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/health/s3", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/health/tape", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[struct {
		Healthy    bool              `json:"healthy"`
		Components map[string]string `json:"components"`
	}](t, w)
	assert.True(t, body.Healthy)
	assert.Equal(t, "ok", body.Components["db"])
	assert.Equal(t, "disabled", body.Components["s3"])
}

package s3_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/errs"
	"github.com/yeisme/mediavault/pkg/internal/storage/s3"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *s3.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)

	cli, err := minio.New(u.Host, &minio.Options{
		Creds:  credentials.NewStaticV4("ak", "sk", ""),
		Secure: false,
		Region: "us-east-1",
	})
	require.NoError(t, err)

	return s3.NewWithClient(cli, "media", configs.CircuitBreakerConfig{})
}

// TestExists 测试对象存在、缺失与存储不可用三种情况.
func TestExists(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/present.mp4"):
			w.Header().Set("Content-Length", "3")
			w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
			w.Header().Set("ETag", `"abc"`)
			w.WriteHeader(http.StatusOK)
		case strings.HasSuffix(r.URL.Path, "/denied.mp4"):
			w.WriteHeader(http.StatusForbidden)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	ctx := context.Background()

	ok, err := client.Exists(ctx, "assets/1/present.mp4")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.Exists(ctx, "assets/1/missing.mp4")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = client.Exists(ctx, "assets/1/denied.mp4")
	require.Error(t, err)
	assert.Equal(t, errs.StorageUnavailable, errs.KindOf(err))
}

// TestPresign 测试预签名地址包含对象键与签名.
func TestPresign(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	raw, err := client.PresignUpload(context.Background(), "assets/1/clip.mp4", 15*time.Minute)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/media/assets/1/clip.mp4", u.Path)
	assert.NotEmpty(t, u.Query().Get("X-Amz-Signature"))
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))

	raw, err = client.PresignDownload(context.Background(), "assets/1/clip-720p.mp4", time.Hour)
	require.NoError(t, err)
	assert.Contains(t, raw, "clip-720p.mp4")
}

// TestIsNotFound 测试 minio 错误识别.
func TestIsNotFound(t *testing.T) {
	assert.True(t, s3.IsNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, s3.IsNotFound(minio.ErrorResponse{StatusCode: http.StatusNotFound}))
	assert.False(t, s3.IsNotFound(minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}))
	assert.False(t, s3.IsNotFound(nil))
}

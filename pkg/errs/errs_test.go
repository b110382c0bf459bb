package errs_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yeisme/mediavault/pkg/errs"
)

// TestKindOf 测试包装后的错误仍能取得分类.
func TestKindOf(t *testing.T) {
	base := errs.E(errs.NotFound, "asset.get", "ObjectNotFound", nil)
	wrapped := fmt.Errorf("handler: %w", base)

	assert.Equal(t, errs.NotFound, errs.KindOf(wrapped))
	assert.Equal(t, errs.Unknown, errs.KindOf(errors.New("plain")))
	assert.True(t, errs.Is(wrapped, errs.NotFound))
	assert.True(t, errors.Is(wrapped, &errs.Error{Kind: errs.NotFound}))
	assert.True(t, errors.Is(wrapped, &errs.Error{Kind: errs.NotFound, Msg: "ObjectNotFound"}))
	assert.False(t, errors.Is(wrapped, &errs.Error{Kind: errs.NotFound, Msg: "AssetNotFound"}))
	assert.Equal(t, "ObjectNotFound", errs.Reason(wrapped))
	assert.Equal(t, "InternalError", errs.Reason(errors.New("x")))
}

// TestHTTPStatus 测试错误类别到状态码的映射.
func TestHTTPStatus(t *testing.T) {
	cases := map[errs.Kind]int{
		errs.Validation:         http.StatusBadRequest,
		errs.Forbidden:          http.StatusForbidden,
		errs.NotFound:           http.StatusNotFound,
		errs.Conflict:           http.StatusConflict,
		errs.StorageUnavailable: http.StatusServiceUnavailable,
		errs.TranscodeFailure:   http.StatusInternalServerError,
	}

	for kind, want := range cases {
		assert.Equal(t, want, errs.HTTPStatus(errs.E(kind, "op", "", nil)), kind.String())
	}

	assert.Equal(t, http.StatusInternalServerError, errs.HTTPStatus(errors.New("boom")))
}

// TestIsRetryable 测试重试判定.
func TestIsRetryable(t *testing.T) {
	assert.False(t, errs.IsRetryable(errs.E(errs.Validation, "op", "", nil)))
	assert.False(t, errs.IsRetryable(errs.E(errs.Conflict, "op", "", nil)))
	assert.True(t, errs.IsRetryable(errs.Wrap(errs.StorageUnavailable, "op", errors.New("dial"))))
	assert.True(t, errs.IsRetryable(errs.Wrap(errs.UploadFailure, "op", errors.New("503"))))
	assert.True(t, errs.IsRetryable(errors.New("unknown")))
	assert.False(t, errs.IsPermanent(nil))
	assert.Nil(t, errs.Wrap(errs.UploadFailure, "op", nil))
}

// TestErrorString 测试错误文本格式.
func TestErrorString(t *testing.T) {
	err := errs.E(errs.Conflict, "asset.complete", "AlreadyCompleted", nil)
	assert.Equal(t, "asset.complete: AlreadyCompleted", err.Error())

	err = errs.E(errs.StorageUnavailable, "s3.exists", "", errors.New("timeout"))
	assert.Equal(t, "s3.exists: storage_unavailable: timeout", err.Error())
}

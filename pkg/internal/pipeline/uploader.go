package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/yeisme/mediavault/pkg/errs"
	nlog "github.com/yeisme/mediavault/pkg/log"
)

// ErrPresignExpired 预签名地址过期或被拒绝（HTTP 403）.
var ErrPresignExpired = errs.E(errs.UploadFailure, "upload.put", "PresignExpired", nil)

// HTTPUploader 通过 HTTP PUT 把文件推送到预签名地址.
type HTTPUploader struct {
	client *http.Client
	log    zerolog.Logger
}

// NewHTTPUploader 构造上传器. client 为 nil 时使用不设整体超时的默认客户端，超时由任务上下文控制.
func NewHTTPUploader(client *http.Client) *HTTPUploader {
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				MaxIdleConnsPerHost:   16,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: 2 * time.Minute,
			},
		}
	}

	return &HTTPUploader{client: client, log: nlog.Component("uploader")}
}

// Upload 上传本地文件. 非 2xx 响应与传输错误均为 UploadFailure.
func (u *HTTPUploader) Upload(ctx context.Context, url, path, contentType string) error {
	const op = "upload.put"

	f, err := os.Open(path)
	if err != nil {
		return errs.E(errs.UploadFailure, op, "SourceUnreadable", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return errs.E(errs.UploadFailure, op, "SourceUnreadable", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, f)
	if err != nil {
		return errs.Wrap(errs.UploadFailure, op, err)
	}

	req.ContentLength = info.Size()
	req.Header.Set("Content-Type", contentType)

	start := time.Now()

	resp, err := u.client.Do(req)
	if err != nil {
		return errs.Wrap(errs.UploadFailure, op, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return ErrPresignExpired
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return errs.E(errs.UploadFailure, op, "", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}

	u.log.Debug().
		Str("size", humanize.IBytes(uint64(info.Size()))).
		Dur("took", time.Since(start)).
		Msg("uploaded")

	return nil
}

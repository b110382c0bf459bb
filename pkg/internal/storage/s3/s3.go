// Package s3 封装 S3 兼容对象存储的访问，所有调用都经过熔断器.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/sony/gobreaker"

	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/errs"
	nlog "github.com/yeisme/mediavault/pkg/log"
)

// Client 包装 MinIO 客户端.
type Client struct {
	cli    *minio.Client
	bucket string
	cb     *gobreaker.CircuitBreaker
}

// New 初始化 MinIO 客户端，若 bucket 不存在且允许自动创建则创建.
func New(ctx context.Context, cfg *configs.S3Config, cbCfg configs.CircuitBreakerConfig) (*Client, error) {
	endpoint := cfg.Endpoint
	useSSL := cfg.UseSSL
	// 允许用户传完整 schema endpoint（http:// 或 https://）
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		endpoint = u.Host
		if u.Scheme == "https" {
			useSSL = true
		}
	}

	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	cli.SetAppInfo(configs.AppName, configs.AppVersion)

	c := &Client{cli: cli, bucket: cfg.BucketName, cb: newBreaker(cbCfg)}

	if err := c.ensureBucket(ctx, cfg); err != nil {
		return nil, err
	}

	nlog.Logger().Info().Str("endpoint", cfg.Endpoint).Str("bucket", cfg.BucketName).Msg("s3 connected")

	return c, nil
}

// NewWithClient 用现成的 minio 客户端构造，不做 bucket 检查.
func NewWithClient(cli *minio.Client, bucket string, cbCfg configs.CircuitBreakerConfig) *Client {
	return &Client{cli: cli, bucket: bucket, cb: newBreaker(cbCfg)}
}

func (c *Client) ensureBucket(ctx context.Context, cfg *configs.S3Config) error {
	exists, err := c.cli.BucketExists(ctx, c.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", c.bucket, err)
	}

	if exists {
		return nil
	}

	if !cfg.AutoCreateBucket {
		return fmt.Errorf("bucket %s does not exist", c.bucket)
	}

	if err := c.cli.MakeBucket(ctx, c.bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", c.bucket, err)
	}

	nlog.Logger().Info().Str("bucket", c.bucket).Msg("bucket created")

	return nil
}

func newBreaker(cfg configs.CircuitBreakerConfig) *gobreaker.CircuitBreaker {
	if !cfg.Enabled {
		return nil
	}

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "s3",
		MaxRequests: cfg.MaxRequestsInHalf,
		Interval:    time.Duration(cfg.IntervalSeconds) * time.Second,
		Timeout:     time.Duration(cfg.TimeoutSeconds) * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}

			return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRate
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			nlog.Logger().Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
}

// do 经熔断器执行 fn，失败统一归类为 StorageUnavailable.
func do[T any](c *Client, op string, fn func() (T, error)) (T, error) {
	var zero T

	if c.cb == nil {
		v, err := fn()
		if err != nil {
			return zero, errs.Wrap(errs.StorageUnavailable, op, err)
		}

		return v, nil
	}

	out, err := c.cb.Execute(func() (any, error) { return fn() })
	if err != nil {
		return zero, errs.Wrap(errs.StorageUnavailable, op, err)
	}

	return out.(T), nil
}

// Bucket 返回使用的 bucket 名称.
func (c *Client) Bucket() string {
	return c.bucket
}

// Raw 返回底层 minio 客户端.
func (c *Client) Raw() *minio.Client {
	return c.cli
}

// PresignUpload 生成 PUT 预签名地址.
func (c *Client) PresignUpload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return do(c, "s3.presign_upload", func() (string, error) {
		u, err := c.cli.PresignedPutObject(ctx, c.bucket, key, ttl)
		if err != nil {
			return "", err
		}

		return u.String(), nil
	})
}

// PresignDownload 生成 GET 预签名地址.
func (c *Client) PresignDownload(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return do(c, "s3.presign_download", func() (string, error) {
		u, err := c.cli.PresignedGetObject(ctx, c.bucket, key, ttl, url.Values{})
		if err != nil {
			return "", err
		}

		return u.String(), nil
	})
}

// Exists 判断对象是否存在，对象不存在返回 false 而不是错误.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	return do(c, "s3.exists", func() (bool, error) {
		_, err := c.cli.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{})
		if err == nil {
			return true, nil
		}

		if IsNotFound(err) {
			return false, nil
		}

		return false, err
	})
}

// GetObject 读取整个对象.
func (c *Client) GetObject(ctx context.Context, key string) ([]byte, error) {
	return do(c, "s3.get_object", func() ([]byte, error) {
		obj, err := c.cli.GetObject(ctx, c.bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return nil, err
		}
		defer obj.Close()

		return io.ReadAll(obj)
	})
}

// Download 把对象流式写入本地文件，适合大体积媒体.
func (c *Client) Download(ctx context.Context, key, localPath string) error {
	_, err := do(c, "s3.download", func() (struct{}, error) {
		return struct{}{}, c.cli.FGetObject(ctx, c.bucket, key, localPath, minio.GetObjectOptions{})
	})

	return err
}

// PutObject 写入对象.
func (c *Client) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := do(c, "s3.put_object", func() (struct{}, error) {
		_, err := c.cli.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: contentType})

		return struct{}{}, err
	})

	return err
}

// HealthCheck 检查 bucket 是否可访问.
func (c *Client) HealthCheck(ctx context.Context) error {
	ok, err := c.cli.BucketExists(ctx, c.bucket)
	if err != nil {
		return err
	}

	if !ok {
		return fmt.Errorf("bucket %s not found", c.bucket)
	}

	return nil
}

// Close 关闭 S3 客户端连接（无实际操作，接口兼容）.
func (c *Client) Close() error {
	return nil
}

// IsNotFound 判断 minio 错误是否表示对象不存在.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}

	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return true
	}

	var er minio.ErrorResponse

	return errors.As(err, &er) && er.Code == "NoSuchKey"
}

// Package storage 聚合流水线依赖的外部资源：数据库、对象存储、消息队列与 KV.
//
// Example:
//
//	mgr, err := storage.New(ctx, &cfg, storage.WithMQ(), storage.WithKV())
//	if err != nil {
//		// 处理错误
//	}
//	defer mgr.Close()
//
//	assets := service.NewAssetService(mgr.DB, mgr.S3, ...)
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/yeisme/mediavault/pkg/configs"
	dbc "github.com/yeisme/mediavault/pkg/internal/storage/db"
	kvc "github.com/yeisme/mediavault/pkg/internal/storage/kv"
	mqc "github.com/yeisme/mediavault/pkg/internal/storage/mq"
	s3c "github.com/yeisme/mediavault/pkg/internal/storage/s3"
	nlog "github.com/yeisme/mediavault/pkg/log"
)

// Manager 聚合所有存储资源，由调用方持有并负责关闭.
type Manager struct {
	S3 *s3c.Client
	DB *dbc.Client
	MQ *mqc.Client
	KV *kvc.Client
}

type options struct {
	withDB bool
	withS3 bool
	withMQ bool
	withKV bool
}

// Option 选择要初始化的资源.
type Option func(*options)

// WithMQ 同时初始化消息队列.
func WithMQ() Option { return func(o *options) { o.withMQ = true } }

// WithKV 同时初始化 KV.
func WithKV() Option { return func(o *options) { o.withKV = true } }

// WithoutS3 跳过对象存储，多用于只操作数据库的命令.
func WithoutS3() Option { return func(o *options) { o.withS3 = false } }

// WithoutDB 跳过数据库.
func WithoutDB() Option { return func(o *options) { o.withDB = false } }

// New 按配置初始化资源. 任一资源失败时关闭已打开的资源并返回错误.
func New(ctx context.Context, cfg *configs.AppConfig, opts ...Option) (*Manager, error) {
	o := options{withDB: true, withS3: true}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Manager{}

	fail := func(err error) (*Manager, error) {
		_ = m.Close()
		return nil, err
	}

	if o.withDB {
		db, err := dbc.New(ctx, &cfg.DB, cfg.Metrics.Enabled)
		if err != nil {
			return fail(fmt.Errorf("init db: %w", err))
		}

		m.DB = db
	}

	if o.withS3 {
		s3, err := s3c.New(ctx, &cfg.S3, cfg.CircuitBreaker)
		if err != nil {
			return fail(fmt.Errorf("init s3: %w", err))
		}

		m.S3 = s3
	}

	if o.withMQ {
		mq, err := mqc.New(ctx, &cfg.MQ, mqc.NewLogger(nlog.Logger()))
		if err != nil {
			return fail(fmt.Errorf("init mq: %w", err))
		}

		m.MQ = mq
	}

	if o.withKV {
		kv, err := kvc.NewKVClient(ctx, &cfg.KV)
		if err != nil {
			return fail(fmt.Errorf("init kv: %w", err))
		}

		m.KV = kv
	}

	l := nlog.Component("storage")
	l.Info().
		Bool("db", m.DB != nil).
		Bool("s3", m.S3 != nil).
		Bool("mq", m.MQ != nil).
		Bool("kv", m.KV != nil).
		Msg("storage manager initialized")

	return m, nil
}

// HealthChecker 可被 /health 探测的组件.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Checks 返回 db、s3、mq、kv 四个组件，未初始化的值为 nil.
func (m *Manager) Checks() map[string]HealthChecker {
	out := map[string]HealthChecker{"db": nil, "s3": nil, "mq": nil, "kv": nil}
	if m == nil {
		return out
	}

	if m.DB != nil {
		out["db"] = m.DB
	}

	if m.S3 != nil {
		out["s3"] = m.S3
	}

	if m.MQ != nil {
		out["mq"] = m.MQ
	}

	if m.KV != nil {
		out["kv"] = m.KV
	}

	return out
}

// Close 按与初始化相反的顺序关闭资源.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}

	var errList []error

	if m.KV != nil {
		errList = append(errList, m.KV.Close())
	}

	if m.MQ != nil {
		errList = append(errList, m.MQ.Close())
	}

	if m.S3 != nil {
		errList = append(errList, m.S3.Close())
	}

	if m.DB != nil {
		errList = append(errList, m.DB.Close())
	}

	return errors.Join(errList...)
}

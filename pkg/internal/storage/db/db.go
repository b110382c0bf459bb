// Package db 打开资产、元数据与任务账本共用的关系库. 方言按构建标签注册，
// 时间统一以 UTC 写入.
package db

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	gormPrometheus "gorm.io/plugin/prometheus"

	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/internal/model"
	nlog "github.com/yeisme/mediavault/pkg/log"
)

// DialectorFactory 由 DSN 构造 gorm 方言.
type DialectorFactory func(dsn string) gorm.Dialector

var dialectorFactories = map[configs.DBType]DialectorFactory{}

func RegisterDialectorFactory(dbType configs.DBType, factory DialectorFactory) {
	dialectorFactories[dbType] = factory
}

// GetRegisteredDBTypes 当前二进制编译进来的方言，按名称排序.
func GetRegisteredDBTypes() []configs.DBType {
	return slices.Sorted(maps.Keys(dialectorFactories))
}

// Client 包装 GORM DB.
type Client struct {
	*gorm.DB

	cfg configs.DBConfig
}

// New 建立连接并 ping. enableMetrics 为 true 时挂载 GORM prometheus 插件，
// cfg.AutoMigrate 为 true 时迁移全部表.
func New(ctx context.Context, cfg *configs.DBConfig, enableMetrics bool) (*Client, error) {
	factory, ok := dialectorFactories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported database type %q (built with %v)", cfg.Type, GetRegisteredDBTypes())
	}

	gdb, err := Open(factory(cfg.GetDSN()), cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	// SQLite 只允许单写连接，否则并发事务会遇到 SQLITE_BUSY
	if cfg.IsSQLite() {
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	client := &Client{DB: gdb, cfg: *cfg}

	if err := client.HealthCheck(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.GetDBType(), err)
	}

	if enableMetrics {
		if err := client.Use(gormPrometheus.New(gormPrometheus.Config{
			DBName:          cfg.Database,
			RefreshInterval: 15,
		})); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("register gorm metrics: %w", err)
		}
	}

	if cfg.AutoMigrate {
		if err := client.Migrate(ctx); err != nil {
			_ = client.Close()
			return nil, err
		}
	}

	l := nlog.Component("db")
	l.Info().
		Str("type", cfg.GetDBType()).
		Str("host", cfg.Host).
		Str("database", cfg.Database).
		Bool("metrics", enableMetrics).
		Msg("database connected")

	return client, nil
}

// Open 打开 GORM 实例，SQL 日志走 component=gorm 的 zerolog.
func Open(dialector gorm.Dialector, cfg *configs.DBConfig) (*gorm.DB, error) {
	gl := nlog.Component("gorm")

	gdb, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.New(&gl, logger.Config{
			SlowThreshold:             time.Duration(cfg.SlowMillis) * time.Millisecond,
			LogLevel:                  gormLogLevel(cfg.LogLevel),
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc:                func() time.Time { return time.Now().UTC() },
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialector.Name(), err)
	}

	return gdb, nil
}

func gormLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(level) {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}

// Wrap 用已有的 GORM 实例构造 Client.
func Wrap(gdb *gorm.DB, cfg configs.DBConfig) *Client {
	return &Client{DB: gdb, cfg: cfg}
}

// Migrate 迁移 model.All 中的全部表.
func (c *Client) Migrate(ctx context.Context) error {
	if err := c.WithContext(ctx).AutoMigrate(model.All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	return nil
}

// SupportsRowLocks 当前方言是否支持 SELECT ... FOR UPDATE.
func (c *Client) SupportsRowLocks() bool {
	return c.Dialector.Name() != "sqlite"
}

func (c *Client) HealthCheck(ctx context.Context) error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}

func (c *Client) Close() error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}

	return sqlDB.Close()
}

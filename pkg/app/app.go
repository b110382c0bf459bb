// Package app 组装存储、流水线 worker、定时任务与 HTTP 服务，并负责它们的启动与优雅关闭.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	wmetrics "github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

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
	"github.com/yeisme/mediavault/pkg/log"
	"github.com/yeisme/mediavault/pkg/media"
	"github.com/yeisme/mediavault/pkg/metrics"
	"github.com/yeisme/mediavault/pkg/middleware"
	"github.com/yeisme/mediavault/pkg/scheduler"
	"github.com/yeisme/mediavault/pkg/tracing"
)

// Mode 运行模式.
type Mode int

const (
	// ModeServe HTTP 接口与 worker 同进程运行.
	ModeServe Mode = iota
	// ModeWorker 只运行 worker 与定时任务.
	ModeWorker
)

func (m Mode) String() string {
	if m == ModeWorker {
		return "worker"
	}

	return "serve"
}

// App 持有进程内全部组件.
type App struct {
	Engine *gin.Engine

	config  *configs.AppConfig
	mode    Mode
	storage *storage.Manager
	router  *pipeline.Router
	sched   *scheduler.Scheduler
	cache   *cache.Cache
	debug   *gin.Engine
	log     zerolog.Logger
}

// New 按配置构造应用. 任何组件初始化失败都会关闭已打开的资源.
func New(ctx context.Context, config *configs.AppConfig, mode Mode) (*App, error) {
	if err := tracing.InitTracer(config.Tracing); err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	if err := metrics.InitMetrics(config.Metrics); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}

	manager, err := storage.New(ctx, config, storage.WithMQ(), storage.WithKV())
	if err != nil {
		return nil, err
	}

	a := &App{
		config:  config,
		mode:    mode,
		storage: manager,
		log:     log.Component("app"),
	}

	if err := a.build(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	return a, nil
}

// build 依赖顺序: mq 指标装饰 -> 账本/元数据 -> 入队器 -> worker router -> 服务 -> HTTP.
func (a *App) build(ctx context.Context) error {
	cfg := a.config
	mqc := a.storage.MQ

	if cfg.Metrics.Enabled {
		builder := wmetrics.NewPrometheusMetricsBuilder(metrics.GetRegistry(), configs.AppName, "mq")
		if err := mqc.DecorateMetrics(builder); err != nil {
			return err
		}
	}

	dbc := a.storage.DB
	blob := a.storage.S3

	l := ledger.New(dbc)
	md := metadata.NewStore(dbc)
	enq := pipeline.NewEnqueuer(mqc.Publisher(), l)

	ws, err := pipeline.NewWorkspace(cfg.Pipeline.GetTempDir())
	if err != nil {
		return err
	}

	tool := media.NewTool(cfg.Pipeline.FFmpegPath, cfg.Pipeline.FFprobePath)
	if err := tool.Available(); err != nil {
		a.log.Warn().Err(err).Msg("media tools unavailable, video jobs will fail")
	}

	deps := pipeline.Deps{
		Blob:     blob,
		Tool:     tool,
		Uploader: pipeline.NewHTTPUploader(nil),
		Metadata: md,
		Ledger:   l,
		Enqueuer: enq,
		Files:    ws,
		Config:   cfg.Pipeline,
	}

	var opts []pipeline.RouterOption
	if cfg.Metrics.Enabled {
		opts = append(opts, pipeline.WithRouterMetrics(metrics.GetRegistry()))
	}

	a.router, err = pipeline.NewRouter(mqc, deps, opts...)
	if err != nil {
		return err
	}

	a.sched, err = scheduler.NewScheduler()
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	if err := jobs.RegisterCronJobs(ctx, a.sched, jobs.Deps{Files: ws, Ledger: l, Config: cfg.Pipeline}); err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		a.debug = gin.New()
		a.debug.Use(gin.Recovery())

		if err := metrics.StartMetricsServer(cfg.Metrics, a.debug); err != nil {
			return err
		}
	}

	if a.mode == ModeWorker {
		return nil
	}

	a.cache = cache.NewCache(a.storage.KV)

	assets := service.NewAssetService(dbc, blob, enq, md, cfg.Pipeline)
	jobsSvc := service.NewJobService(dbc, l, a.cache, cfg.Pipeline.MetricsCacheTTL)

	a.Engine = a.engine(handle.New(assets, jobsSvc))

	return nil
}

// engine 构造 HTTP 引擎. 全局中间件作用于所有路由，认证与注入只作用于 /api/v1.
func (a *App) engine(h *handle.Handlers) *gin.Engine {
	cfg := a.config

	gin.DefaultWriter = log.NewGinWriter(log.Logger(), zerolog.InfoLevel)
	gin.DefaultErrorWriter = log.NewGinWriter(log.Logger(), zerolog.ErrorLevel)

	e := gin.New()
	e.Use(
		gin.Recovery(),
		gzip.Gzip(gzip.DefaultCompression),
		middleware.CORSMiddleware(cfg.Server),
		middleware.TracingMiddleware(),
		middleware.PrometheusMiddleware(),
		middleware.GinLoggerMiddleware(),
		middleware.RateLimitMiddleware(cfg.RateLimit),
		middleware.CircuitBreakerMiddleware(cfg.CircuitBreaker),
	)

	reads := []gin.HandlerFunc{
		middleware.CacheMiddleware(middleware.DefaultCacheConfig(a.cache, cfg.Pipeline.MetricsCacheTTL)),
	}

	api.RegisterGroup(e, h, reads,
		middleware.AuthMiddleware(cfg.Auth),
		middleware.RoleMiddleware(),
		middleware.StorageMiddleware(a.storage),
		middleware.SchedulerMiddleware(a.sched),
	)

	return e
}

// Run 启动全部组件并阻塞到 ctx 取消或任一组件失败.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.router.Run(gctx)
	})

	a.sched.Start()
	g.Go(func() error {
		<-gctx.Done()
		return a.sched.Shutdown()
	})

	if a.Engine != nil {
		addr := fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port)
		a.serve(gctx, g, "api", addr, a.Engine)
	}

	if a.debug != nil {
		a.serve(gctx, g, "metrics", a.config.Metrics.Endpoint, a.debug)
	}

	a.log.Info().Str("mode", a.mode.String()).Msg("mediavault started")

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}

	a.log.Info().Err(err).Msg("mediavault stopped")

	return err
}

// serve 在 errgroup 中运行 HTTP 服务，ctx 取消后在 shutdown 时限内优雅关闭.
func (a *App) serve(ctx context.Context, g *errgroup.Group, name, addr string, h http.Handler) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: a.config.Server.GetTimeoutDuration(),
	}

	g.Go(func() error {
		a.log.Info().Str("server", name).Str("addr", addr).Msg("http server listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("%s server: %w", name, err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		sctx, cancel := context.WithTimeout(context.Background(), a.config.Server.GetShutdownDuration())
		defer cancel()

		return srv.Shutdown(sctx)
	})
}

// Close 释放存储资源并刷新追踪数据.
func (a *App) Close() error {
	var errList []error

	if a.router != nil {
		errList = append(errList, a.router.Close())
	}

	errList = append(errList, a.storage.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errList = append(errList, tracing.ShutdownTracer(ctx))

	return errors.Join(errList...)
}

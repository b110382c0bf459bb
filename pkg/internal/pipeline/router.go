package pipeline

import (
	"context"
	"fmt"
	"time"

	wmetrics "github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/internal/storage/mq"
	nlog "github.com/yeisme/mediavault/pkg/log"
	"github.com/yeisme/mediavault/pkg/queue"
)

// Router 承载六个主题的 watermill router.
type Router struct {
	router *message.Router
	log    zerolog.Logger
}

// RouterOption 配置 Router.
type RouterOption func(*routerOptions)

type routerOptions struct {
	registry prometheus.Registerer
}

// WithRouterMetrics 为每个 handler 注册 watermill 的 prometheus 指标.
func WithRouterMetrics(reg prometheus.Registerer) RouterOption {
	return func(o *routerOptions) { o.registry = reg }
}

// NewRouter 为每种媒体的每个阶段注册 handler.
// 后端不支持竞争消费时每个主题只注册一个 handler，否则按配置的并发数注册.
func NewRouter(client *mq.Client, deps Deps, opts ...RouterOption) (*Router, error) {
	var o routerOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg := deps.Config
	log := nlog.Component("pipeline")

	r, err := message.NewRouter(message.RouterConfig{CloseTimeout: cfg.GetCloseTimeout()}, client.Logger())
	if err != nil {
		return nil, fmt.Errorf("create router: %w", err)
	}

	var poison message.HandlerMiddleware
	if cfg.PoisonQueue {
		poison, err = middleware.PoisonQueue(client.Publisher(), queue.TopicPoison)
		if err != nil {
			return nil, fmt.Errorf("create poison queue: %w", err)
		}
	}

	// Timeout 位于 Retry 内层，每次尝试结束都会取消消息 context，重试前需重置.
	retry := middleware.Retry{
		MaxRetries:          cfg.Retry.MaxRetries,
		InitialInterval:     orZero(cfg.Retry.InitialInterval, configs.DefaultRetryInitial),
		MaxInterval:         orZero(cfg.Retry.MaxInterval, configs.DefaultRetryMax),
		Multiplier:          cfg.Retry.Multiplier,
		Logger:              client.Logger(),
		ResetContextOnRetry: true,
	}
	if retry.Multiplier < 1 {
		retry.Multiplier = configs.DefaultRetryMultiplier
	}

	handlers := map[queue.Stage]struct {
		fn          message.NoPublishHandlerFunc
		concurrency int
	}{
		queue.StageProcessing: {NewProcessingWorker(deps).Handle, cfg.Concurrency.Processing},
		queue.StageThumbnail:  {NewThumbnailWorker(deps).Handle, cfg.Concurrency.Thumbnail},
		queue.StageUpload:     {NewUploadWorker(deps).Handle, cfg.Concurrency.Upload},
	}

	for _, kind := range queue.Kinds {
		for _, stage := range queue.Stages {
			h := handlers[stage]
			topic := queue.Topic(kind, stage)
			worker := queue.WorkerName(kind, stage)

			n := 1
			if client.CompetingConsumers() && h.concurrency > 1 {
				n = h.concurrency
			}

			for i := range n {
				name := worker
				if n > 1 {
					name = fmt.Sprintf("%s-%d", worker, i)
				}

				handler := r.AddNoPublisherHandler(name, topic, client.Subscriber(), h.fn)
				handler.AddMiddleware(middleware.CorrelationID, tracingMiddleware(worker))

				if poison != nil {
					handler.AddMiddleware(poison)
				}

				handler.AddMiddleware(
					lifecycleMiddleware(deps.Ledger, worker, log, poison == nil),
					retry.Middleware,
					middleware.Timeout(cfg.GetJobTimeout()),
					permanentMiddleware,
					middleware.Recoverer,
				)
			}

			log.Debug().Str("topic", topic).Int("handlers", n).Msg("handler registered")
		}
	}

	if o.registry != nil {
		wmetrics.NewPrometheusMetricsBuilder(o.registry, "mediavault", "pipeline").AddPrometheusRouterMetrics(r)
	}

	return &Router{router: r, log: log}, nil
}

// Run 阻塞运行直到 ctx 取消或 Close.
func (r *Router) Run(ctx context.Context) error {
	r.log.Info().Strs("topics", queue.PipelineTopics).Msg("pipeline router starting")
	return r.router.Run(ctx)
}

// Running 在所有 handler 订阅完成后关闭.
func (r *Router) Running() chan struct{} {
	return r.router.Running()
}

// Close 停止消费并等待在途任务，最长 close_timeout.
func (r *Router) Close() error {
	return r.router.Close()
}

func orZero(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}

	return d
}

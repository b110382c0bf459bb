// Package metrics 持有进程内的 Prometheus 注册表与全部指标.
//
// 指标始终可写，InitMetrics 只决定是否注册到注册表并对外暴露；
// watermill 的 router 与 publisher 指标也注册到同一个注册表.
package metrics

import (
	"net/http/pprof"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/yeisme/mediavault/pkg/configs"
)

const namespace = "mediavault"

var (
	// HTTPRequests 按路由模板统计的请求数.
	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route template and status",
	}, []string{"method", "route", "status"})

	// HTTPDuration 请求耗时.
	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})

	// HTTPInflight 处理中的请求数.
	HTTPInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "http_inflight_requests",
		Help:      "HTTP requests currently being served",
	})

	// CacheResults 读接口响应缓存命中情况，result 为 hit/miss/store.
	CacheResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "response_cache_total",
		Help:      "Response cache lookups and stores",
	}, []string{"result"})

	// JobsTotal 流水线任务事件，event 为 enqueued/active/completed/failed.
	JobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "pipeline_jobs_total",
		Help:      "Pipeline job lifecycle events",
	}, []string{"worker", "event"})

	// JobDuration 单次处理耗时.
	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pipeline_job_duration_seconds",
		Help:      "Pipeline handler duration",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 900},
	}, []string{"worker"})

	// LedgerWriteFailures 被跳过的账本写入.
	LedgerWriteFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_write_failures_total",
		Help:      "Job ledger writes that failed and were skipped",
	}, []string{"event"})

	// MetadataMerges 元数据合并次数.
	MetadataMerges = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "metadata_merges_total",
		Help:      "Metadata merge operations",
	}, []string{"family"})

	// AssetTransitions 资产状态迁移次数.
	AssetTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "asset_transitions_total",
		Help:      "Asset status transitions",
	}, []string{"to"})

	// TempFilesSwept 清理掉的临时文件数.
	TempFilesSwept = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "temp_files_swept_total",
		Help:      "Temporary work files removed by the janitor",
	})

	registry = prometheus.NewRegistry()
	initOnce sync.Once
)

// InitMetrics 注册全部指标. cfg.Labels 作为常量标签附加到本包的指标上.
func InitMetrics(cfg configs.MetricsConfig) error {
	if !cfg.Enabled {
		return nil
	}

	var err error

	initOnce.Do(func() {
		reg := prometheus.WrapRegistererWith(prometheus.Labels(cfg.Labels), registry)

		if cfg.RuntimeMetrics {
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}),
			)
		}

		for _, c := range []prometheus.Collector{
			HTTPRequests, HTTPDuration, HTTPInflight, CacheResults,
			JobsTotal, JobDuration, LedgerWriteFailures, MetadataMerges, AssetTransitions, TempFilesSwept,
		} {
			if err = reg.Register(c); err != nil {
				return
			}
		}
	})

	return err
}

// StartMetricsServer 在调试引擎上挂载 /metrics，按配置挂载 pprof.
func StartMetricsServer(cfg configs.MetricsConfig, e *gin.Engine) error {
	if !cfg.Enabled {
		return nil
	}

	gatherers := prometheus.Gatherers{registry, prometheus.GathererFunc(gormFamilies)}
	e.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherers, promhttp.HandlerOpts{Registry: registry})))

	if cfg.Pprof {
		g := e.Group("/debug/pprof")
		g.GET("/", gin.WrapF(pprof.Index))
		g.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		g.GET("/profile", gin.WrapF(pprof.Profile))
		g.GET("/symbol", gin.WrapF(pprof.Symbol))
		g.GET("/trace", gin.WrapF(pprof.Trace))
		g.GET("/:name", func(c *gin.Context) { pprof.Handler(c.Param("name")).ServeHTTP(c.Writer, c.Request) })
	}

	return nil
}

// gormFamilies 取出 GORM 插件注册在默认注册表上的连接池指标.
func gormFamilies() ([]*dto.MetricFamily, error) {
	all, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return nil, err
	}

	out := all[:0]
	for _, mf := range all {
		if strings.HasPrefix(mf.GetName(), "gorm_") {
			out = append(out, mf)
		}
	}

	return out, nil
}

// GetRegistry 返回进程内注册表.
func GetRegistry() *prometheus.Registry {
	return registry
}

package configs

import "github.com/spf13/viper"

// MetricsConfig Prometheus 指标. 指标与 pprof 挂在独立的调试端口上.
type MetricsConfig struct {
	Enabled        bool              `mapstructure:"enabled"`
	Endpoint       string            `mapstructure:"endpoint"        rule:"required_if=Enabled true"`
	RuntimeMetrics bool              `mapstructure:"runtime_metrics"`
	Pprof          bool              `mapstructure:"pprof"`
	Labels         map[string]string `mapstructure:"labels"` // 附加到业务指标的常量标签
}

func (c *MetricsConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.endpoint", ":9090")
	v.SetDefault("metrics.runtime_metrics", true)
	v.SetDefault("metrics.pprof", false)
	v.SetDefault("metrics.labels", map[string]string{"version": AppVersion})
}

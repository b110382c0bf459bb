package configs

import "github.com/spf13/viper"

// AuthConfig 认证配置. 调用方来自 oauth2-proxy 注入的 X-Auth-Request-Email 或 X-Forwarded-Email.
type AuthConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// SkipPaths 按前缀跳过认证.
	SkipPaths []string `mapstructure:"skip_paths"`
	// DevAllowQuery 允许 X-User 头或 ?user= 指定调用方，仅用于本地调试.
	DevAllowQuery bool `mapstructure:"dev_allow_query"`
}

// RateLimitConfig 令牌桶限流.
type RateLimitConfig struct {
	Enabled bool    `mapstructure:"enabled"`
	RPS     float64 `mapstructure:"rps"     rule:"min=0"`
	Burst   int     `mapstructure:"burst"   rule:"min=0"`
	// Key 限流维度: global, ip, caller 或 header:<Name>
	Key string `mapstructure:"key"`
}

// CircuitBreakerConfig 按路由熔断.
type CircuitBreakerConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	FailureRate       float64 `mapstructure:"failure_rate"         rule:"min=0,max=1"`
	MinRequests       uint32  `mapstructure:"min_requests"`
	IntervalSeconds   int     `mapstructure:"interval_seconds"     rule:"min=0"`
	TimeoutSeconds    int     `mapstructure:"timeout_seconds"      rule:"min=0"`
	MaxRequestsInHalf uint32  `mapstructure:"max_requests_in_half"`
}

func (c *AuthConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("auth.enabled", true)
	v.SetDefault("auth.dev_allow_query", false)
	v.SetDefault("auth.skip_paths", []string{"/api/v1/health"})
}

func (c *RateLimitConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.rps", 50.0)
	v.SetDefault("rate_limit.burst", 100)
	v.SetDefault("rate_limit.key", "caller")
}

func (c *CircuitBreakerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("circuit_breaker.enabled", false)
	v.SetDefault("circuit_breaker.failure_rate", 0.5)
	v.SetDefault("circuit_breaker.min_requests", 20)
	v.SetDefault("circuit_breaker.interval_seconds", 60)
	v.SetDefault("circuit_breaker.timeout_seconds", 30)
	v.SetDefault("circuit_breaker.max_requests_in_half", 5)
}

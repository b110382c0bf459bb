package configs

import (
	"time"

	"github.com/spf13/viper"
)

// ServerConfig HTTP 服务配置. Timeout 与 Shutdown 以秒为单位.
type ServerConfig struct {
	Host         string   `mapstructure:"host"          rule:"ip"`
	Port         int      `mapstructure:"port"          rule:"min=1,max=65535"`
	Debug        bool     `mapstructure:"debug"`
	ReloadConfig bool     `mapstructure:"reload_config"`
	Timeout      int      `mapstructure:"timeout"       rule:"min=1,max=300"`
	Shutdown     int      `mapstructure:"shutdown"      rule:"min=1,max=600"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// GetTimeoutDuration 读请求头超时.
func (s *ServerConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// GetShutdownDuration 优雅关闭的最长等待.
func (s *ServerConfig) GetShutdownDuration() time.Duration {
	return time.Duration(s.Shutdown) * time.Second
}

func (s *ServerConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("server.reload_config", true)
	v.SetDefault("server.timeout", 30)
	v.SetDefault("server.shutdown", 30)
	v.SetDefault("server.allow_origins", []string{"*"})
}

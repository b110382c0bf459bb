package configs

import (
	"github.com/spf13/viper"
)

// KVConfig 键值存储配置. 缓存与上传去重共用同一个后端.
type KVConfig struct {
	Type       string             `mapstructure:"type"       rule:"oneof=memory redis nats groupcache"`
	Redis      RedisKVConfig      `mapstructure:"redis"`
	NATS       NATSKVConfig       `mapstructure:"nats"`
	Groupcache GroupcacheKVConfig `mapstructure:"groupcache"`
}

type RedisKVConfig struct {
	Addr     string `mapstructure:"addr"     rule:"hostname_port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"       rule:"min=0,max=15"`
}

type NATSKVConfig struct {
	URL      string `mapstructure:"url"      rule:"required"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Bucket   string `mapstructure:"bucket"   rule:"required,excludesall=. *>"`
}

// GroupcacheKVConfig Peers 为空时只在本进程内缓存.
type GroupcacheKVConfig struct {
	Name       string   `mapstructure:"name"        rule:"required"`
	CacheBytes int64    `mapstructure:"cache_bytes" rule:"min=1048576"`
	Peers      []string `mapstructure:"peers"       rule:"dive,url"`
	Self       string   `mapstructure:"self"        rule:"url"`
}

func (c *KVConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("kv.type", "memory")

	v.SetDefault("kv.redis.addr", "localhost:6379")

	v.SetDefault("kv.nats.url", "localhost:4222")
	v.SetDefault("kv.nats.bucket", "mediavault-kv")

	v.SetDefault("kv.groupcache.name", "mediavault-cache")
	v.SetDefault("kv.groupcache.cache_bytes", 512<<20)
	v.SetDefault("kv.groupcache.self", "http://localhost:8080")
}

package configs

import (
	"time"

	"github.com/spf13/viper"
)

// MQType 消息队列类型.
type MQType string

const (
	MQTypeNATS   MQType = "nats"
	MQTypeRedis  MQType = "redis"
	MQTypeMemory MQType = "memory" // 进程内 gochannel，仅用于开发与测试
)

const (
	DefaultRedisConsumerGroup = "mediavault-workers" // 默认消费者组
	DefaultRedisBlockTime     = 2 * time.Second      // XREADGROUP 阻塞时间
	DefaultRedisClaimIdle     = 15 * time.Minute     // 超过该时长未确认的消息会被重新认领
	DefaultRedisMaxLen        = 100000               // 每个 stream 的近似最大长度

	// DefaultConsumerAckWait 需大于单个转码任务耗时（秒）.
	DefaultConsumerAckWait = 900
)

// MQConfig 消息队列配置.
type MQConfig struct {
	Type   MQType         `mapstructure:"type"   rule:"oneof=nats redis memory"`
	Common MQCommonConfig `mapstructure:"common"`
	NATS   MQNATSConfig   `mapstructure:"nats"`
	Redis  MQRedisConfig  `mapstructure:"redis"`
}

// MQCommonConfig 连接参数，目前只有 NATS 使用.
type MQCommonConfig struct {
	URL             string `mapstructure:"url"              rule:"required"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	ClientID        string `mapstructure:"client_id"`
	MaxReconnects   int    `mapstructure:"max_reconnects"   rule:"min=-1,max=100"`
	ReconnectWait   int    `mapstructure:"reconnect_wait"   rule:"min=1,max=300"`
	MaxPingsOut     int    `mapstructure:"max_pings_out"    rule:"min=1,max=10"`
	PingInterval    int    `mapstructure:"ping_interval"    rule:"min=1,max=300"`
	ReconnectJitter bool   `mapstructure:"reconnect_jitter"`
	BufferSize      int    `mapstructure:"buffer_size"      rule:"min=1024,max=1048576"`
}

// MQNATSConfig NATS 与 JetStream 配置.
type MQNATSConfig struct {
	JetStreamEnabled       bool     `mapstructure:"jetstream_enabled"`
	JetStreamAutoProvision bool     `mapstructure:"jetstream_auto_provision"`
	JetStreamTrackMsgID    bool     `mapstructure:"jetstream_track_msg_id"`
	JetStreamAckAsync      bool     `mapstructure:"jetstream_ack_async"`
	JetStreamDurablePrefix string   `mapstructure:"jetstream_durable_prefix"`
	QueueGroupPrefix       string   `mapstructure:"queue_group_prefix"`
	SubscribersCount       int      `mapstructure:"subscribers_count"        rule:"min=1,max=64"`
	ConsumerAckWait        int      `mapstructure:"consumer_ack_wait"        rule:"min=1"`
	ConsumerMaxDeliver     int      `mapstructure:"consumer_max_deliver"     rule:"min=-1"`
	ConsumerMaxAckPending  int      `mapstructure:"consumer_max_ack_pending" rule:"min=0"`
	JWT                    string   `mapstructure:"jwt"`
	NKey                   string   `mapstructure:"nkey"`
	ClusterURLs            []string `mapstructure:"cluster_urls"`
}

// MQRedisConfig Redis Streams 配置.
type MQRedisConfig struct {
	Addr          string        `mapstructure:"addr"           rule:"hostname_port"`
	Password      string        `mapstructure:"password"`
	DB            int           `mapstructure:"db"             rule:"min=0,max=15"`
	ConsumerGroup string        `mapstructure:"consumer_group" rule:"required"`
	Consumer      string        `mapstructure:"consumer"`
	BlockTime     time.Duration `mapstructure:"block_time"`
	ClaimIdle     time.Duration `mapstructure:"claim_idle"`
	MaxLen        int64         `mapstructure:"max_len"        rule:"min=0"`
}

func (c *MQConfig) setDefaults(v *viper.Viper) {
	v.SetDefault("mq.type", MQTypeNATS)

	v.SetDefault("mq.common.url", "localhost:4222")
	v.SetDefault("mq.common.client_id", AppName)
	v.SetDefault("mq.common.max_reconnects", 5)
	v.SetDefault("mq.common.reconnect_wait", 5)
	v.SetDefault("mq.common.max_pings_out", 3)
	v.SetDefault("mq.common.ping_interval", 20)
	v.SetDefault("mq.common.reconnect_jitter", true)
	v.SetDefault("mq.common.buffer_size", 32*1024)

	v.SetDefault("mq.nats.jetstream_enabled", true)
	v.SetDefault("mq.nats.jetstream_auto_provision", true)
	v.SetDefault("mq.nats.jetstream_track_msg_id", true)
	v.SetDefault("mq.nats.jetstream_durable_prefix", "mediavault-durable")
	v.SetDefault("mq.nats.queue_group_prefix", AppName)
	v.SetDefault("mq.nats.subscribers_count", 1)
	v.SetDefault("mq.nats.consumer_ack_wait", DefaultConsumerAckWait)
	v.SetDefault("mq.nats.consumer_max_deliver", 5)
	v.SetDefault("mq.nats.consumer_max_ack_pending", 1000)

	v.SetDefault("mq.redis.addr", "localhost:6379")
	v.SetDefault("mq.redis.consumer_group", DefaultRedisConsumerGroup)
	v.SetDefault("mq.redis.block_time", DefaultRedisBlockTime)
	v.SetDefault("mq.redis.claim_idle", DefaultRedisClaimIdle)
	v.SetDefault("mq.redis.max_len", DefaultRedisMaxLen)
}

// Package mq 提供 NATS 消息队列操作实现。
// 此文件包含 NATS 特定的工厂函数，用于创建配置了可选 JetStream 支持的 Publisher 和 Subscriber 实例。
//
// 支持的功能特性：
//   - 连接池和重连机制
//   - 多种认证方式（JWT、NKey、用户名/密码）
//   - JetStream 持久化消息，ack/nack 重投
//   - 通过队列组实现同主题竞争消费
//
// 配置从 configs.MQConfig 读取，支持集群 URL 以实现高可用性。
package mq

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	nc "github.com/nats-io/nats.go"

	"github.com/yeisme/mediavault/pkg/configs"
)

const (
	DefaultDrainTimeout   = 30 * time.Second
	DefaultFlusherTimeout = 10 * time.Second
)

// init 注册 NATS 工厂.
func init() {
	RegisterFactory(configs.MQTypeNATS, natsFactory)
}

// buildNatsOptions 构建 NATS 连接选项.
func buildNatsOptions(cfg *configs.MQConfig) []nc.Option {
	common := cfg.Common
	opts := []nc.Option{
		nc.Name(common.ClientID),
		nc.MaxReconnects(common.MaxReconnects),
		nc.ReconnectWait(time.Duration(common.ReconnectWait) * time.Second),
		nc.PingInterval(time.Duration(common.PingInterval) * time.Second),
		nc.MaxPingsOutstanding(common.MaxPingsOut),
		nc.ReconnectBufSize(common.BufferSize),
		nc.DrainTimeout(DefaultDrainTimeout),
		nc.FlusherTimeout(DefaultFlusherTimeout),
		nc.RetryOnFailedConnect(true),
	}

	if !common.ReconnectJitter {
		opts = append(opts, nc.ReconnectJitter(0, 0))
	}

	// 添加认证选项
	return appendAuthOptions(opts, cfg)
}

// appendAuthOptions 添加认证选项.
func appendAuthOptions(opts []nc.Option, cfg *configs.MQConfig) []nc.Option {
	switch {
	case cfg.NATS.JWT != "":
		opts = append(opts, nc.UserJWTAndSeed(cfg.NATS.JWT, cfg.NATS.NKey))
	case cfg.NATS.NKey != "":
		opts = append(opts, nc.Nkey(cfg.NATS.NKey, nil))
	case cfg.Common.User != "":
		opts = append(opts, nc.UserInfo(cfg.Common.User, cfg.Common.Password))
	}

	return opts
}

// buildJetStreamConfig 构建 JetStream 配置.
func buildJetStreamConfig(cfg *configs.MQConfig, logger watermill.LoggerAdapter) nats.JetStreamConfig {
	n := cfg.NATS
	jsCfg := nats.JetStreamConfig{
		Disabled: !n.JetStreamEnabled,
	}

	if !n.JetStreamEnabled {
		return jsCfg
	}

	jsCfg.AutoProvision = n.JetStreamAutoProvision
	jsCfg.TrackMsgId = n.JetStreamTrackMsgID
	jsCfg.AckAsync = n.JetStreamAckAsync
	jsCfg.DurablePrefix = n.JetStreamDurablePrefix
	jsCfg.SubscribeOptions = []nc.SubOpt{
		nc.DeliverAll(),
		nc.AckExplicit(),
		nc.MaxDeliver(n.ConsumerMaxDeliver),
		nc.MaxAckPending(n.ConsumerMaxAckPending),
		nc.AckWait(time.Duration(n.ConsumerAckWait) * time.Second),
	}

	logger.Info("JetStream 配置信息", watermill.LogFields{
		"auto_provision": n.JetStreamAutoProvision,
		"track_msg_id":   n.JetStreamTrackMsgID,
		"ack_async":      n.JetStreamAckAsync,
		"durable_prefix": n.JetStreamDurablePrefix,
		"max_deliver":    n.ConsumerMaxDeliver,
		"ack_wait_s":     n.ConsumerAckWait,
	})

	return jsCfg
}

// buildURL 构建连接 URL.
func buildURL(cfg *configs.MQConfig) string {
	if len(cfg.NATS.ClusterURLs) > 0 {
		return strings.Join(cfg.NATS.ClusterURLs, ",")
	}

	return cfg.Common.URL
}

// NATSSubject 把 mv.video.processing 映射为 JetStream 可用的流名与主题 mv_video_processing.
func NATSSubject(topic string) string {
	return strings.ReplaceAll(topic, ".", "_")
}

// natsFactory 创建 NATS Publisher & Subscriber.
func natsFactory(ctx context.Context, cfg *configs.MQConfig, logger watermill.LoggerAdapter) (*Backend, error) {
	opts := buildNatsOptions(cfg)
	jsCfg := buildJetStreamConfig(cfg, logger)
	marshaler := &nats.JSONMarshaler{}

	pub, err := nats.NewPublisher(nats.PublisherConfig{
		URL:         buildURL(cfg),
		NatsOptions: opts,
		JetStream:   jsCfg,
		Marshaler:   marshaler,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create nats publisher: %w", err)
	}

	sub, err := nats.NewSubscriber(nats.SubscriberConfig{
		URL:              buildURL(cfg),
		QueueGroupPrefix: cfg.NATS.QueueGroupPrefix,
		SubscribersCount: cfg.NATS.SubscribersCount,
		AckWaitTimeout:   time.Duration(cfg.NATS.ConsumerAckWait) * time.Second,
		NatsOptions:      opts,
		JetStream:        jsCfg,
		Unmarshaler:      marshaler,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, fmt.Errorf("create nats subscriber: %w", err)
	}

	// 独立连接仅用于健康检查
	conn, err := nc.Connect(buildURL(cfg), opts...)
	if err != nil {
		_ = pub.Close()
		_ = sub.Close()

		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &Backend{
		Publisher:  &mappedPublisher{Publisher: pub, mapTopic: NATSSubject},
		Subscriber: &mappedSubscriber{Subscriber: sub, mapTopic: NATSSubject},
		Competing:  cfg.NATS.QueueGroupPrefix != "",
		Ping: func(ctx context.Context) error {
			if !conn.IsConnected() {
				return fmt.Errorf("nats not connected: %s", conn.Status())
			}

			return conn.FlushWithContext(ctx)
		},
		Close: func() error {
			conn.Close()
			return nil
		},
	}, nil
}

// mappedPublisher 发布前改写主题名.
type mappedPublisher struct {
	message.Publisher

	mapTopic func(string) string
}

func (p *mappedPublisher) Publish(topic string, msgs ...*message.Message) error {
	return p.Publisher.Publish(p.mapTopic(topic), msgs...)
}

// mappedSubscriber 订阅前改写主题名.
type mappedSubscriber struct {
	message.Subscriber

	mapTopic func(string) string
}

func (s *mappedSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return s.Subscriber.Subscribe(ctx, s.mapTopic(topic))
}

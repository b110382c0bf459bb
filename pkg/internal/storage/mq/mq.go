// Package mq 提供基于 Watermill 库的统一消息队列操作接口。
// 支持发布/订阅模式，并通过工厂模式抽象不同的 MQ 实现。
//
// 支持的 MQ 类型：
//   - NATS（支持 JetStream，持久化与 ack/nack 重投）
//   - Redis Streams（消费者组，XADD / XREADGROUP / XACK）
//   - memory（进程内 gochannel，仅用于开发与测试）
//
// 使用示例：
//
//	client, err := mq.New(ctx, &cfg.MQ, mq.NewLogger(nlog.Logger()))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	msg, _ := queue.NewWatermillMessage(queue.TopicVideoProcessing, payload)
//	err = client.Publish(ctx, queue.TopicVideoProcessing, msg)
package mq

import (
	"context"
	"errors"
	"fmt"
	"slices"

	watermill "github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/yeisme/mediavault/pkg/configs"
	nlog "github.com/yeisme/mediavault/pkg/log"
)

// Backend 工厂产出的一组发布/订阅端.
type Backend struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	// Competing 为 true 时同一主题的多个订阅竞争消费，否则每个订阅都会收到全部消息
	Competing bool
	// Ping 健康检查，可为空
	Ping func(ctx context.Context) error
	// Close 释放工厂额外持有的连接，可为空
	Close func() error
}

// Factory 定义创建 Publisher + Subscriber 的工厂函数.
type Factory func(ctx context.Context, cfg *configs.MQConfig, logger watermill.LoggerAdapter) (*Backend, error)

var (
	factories = map[configs.MQType]Factory{}
)

// RegisterFactory 注册指定 MQType 的工厂.
func RegisterFactory(t configs.MQType, f Factory) {
	factories[t] = f
}

// GetRegisteredMQTypes 返回已注册的 MQ 类型，按名称排序.
func GetRegisteredMQTypes() []configs.MQType {
	types := make([]configs.MQType, 0, len(factories))
	for t := range factories {
		types = append(types, t)
	}

	slices.Sort(types)

	return types
}

// Client 封装 watermill Publisher 与 Subscriber.
type Client struct {
	typ        configs.MQType
	backend    *Backend
	publisher  message.Publisher
	subscriber message.Subscriber
	logger     watermill.LoggerAdapter
}

// New 按配置创建 MQ 客户端.
func New(ctx context.Context, cfg *configs.MQConfig, logger watermill.LoggerAdapter) (*Client, error) {
	factory, ok := factories[cfg.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported mq type: %s", cfg.Type)
	}

	if logger == nil {
		logger = NewLogger(nlog.Logger())
	}

	backend, err := factory(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init mq (%s): %w", cfg.Type, err)
	}

	nlog.Logger().Info().Str("type", string(cfg.Type)).Msg("MQ 客户端已初始化")

	return &Client{
		typ:        cfg.Type,
		backend:    backend,
		publisher:  backend.Publisher,
		subscriber: backend.Subscriber,
		logger:     logger,
	}, nil
}

// NewFromBackend 直接用现成的发布/订阅端构造客户端，多用于测试.
func NewFromBackend(typ configs.MQType, backend *Backend, logger watermill.LoggerAdapter) *Client {
	if logger == nil {
		logger = watermill.NopLogger{}
	}

	return &Client{
		typ:        typ,
		backend:    backend,
		publisher:  backend.Publisher,
		subscriber: backend.Subscriber,
		logger:     logger,
	}
}

// Type 返回 MQ 类型.
func (c *Client) Type() configs.MQType { return c.typ }

// Publisher 返回（可能已被指标装饰的）Publisher.
func (c *Client) Publisher() message.Publisher { return c.publisher }

// Subscriber 返回（可能已被指标装饰的）Subscriber.
func (c *Client) Subscriber() message.Subscriber { return c.subscriber }

// Logger 返回 watermill 日志适配器.
func (c *Client) Logger() watermill.LoggerAdapter { return c.logger }

// CompetingConsumers 同主题多订阅是否竞争消费.
func (c *Client) CompetingConsumers() bool { return c.backend.Competing }

// DecorateMetrics 用 watermill prometheus 指标装饰发布/订阅端.
func (c *Client) DecorateMetrics(builder metrics.PrometheusMetricsBuilder) error {
	pub, err := builder.DecoratePublisher(c.publisher)
	if err != nil {
		return fmt.Errorf("decorate publisher with metrics: %w", err)
	}

	sub, err := builder.DecorateSubscriber(c.subscriber)
	if err != nil {
		return fmt.Errorf("decorate subscriber with metrics: %w", err)
	}

	c.publisher, c.subscriber = pub, sub

	return nil
}

// Publish 便捷发布.
func (c *Client) Publish(_ context.Context, topic string, msgs ...*message.Message) error {
	if c == nil || c.publisher == nil {
		return fmt.Errorf("mq publisher not initialized")
	}

	return c.publisher.Publish(topic, msgs...)
}

// Subscribe 便捷订阅.
func (c *Client) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if c == nil || c.subscriber == nil {
		return nil, fmt.Errorf("mq subscriber not initialized")
	}

	return c.subscriber.Subscribe(ctx, topic)
}

// HealthCheck 检查后端连通性.
func (c *Client) HealthCheck(ctx context.Context) error {
	if c == nil || c.publisher == nil {
		return fmt.Errorf("mq client not initialized")
	}

	if c.backend.Ping == nil {
		return nil
	}

	return c.backend.Ping(ctx)
}

// Close 关闭资源.
func (c *Client) Close() error {
	var errList []error

	if c.publisher != nil {
		errList = append(errList, c.publisher.Close())
	}

	// gochannel 的发布端与订阅端是同一个对象
	if c.subscriber != nil && any(c.subscriber) != any(c.publisher) {
		errList = append(errList, c.subscriber.Close())
	}

	if c.backend.Close != nil {
		errList = append(errList, c.backend.Close())
	}

	return errors.Join(errList...)
}

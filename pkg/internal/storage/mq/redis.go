package mq

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/yeisme/mediavault/pkg/configs"
)

const (
	// DefaultChannelBufferSize 订阅输出通道缓冲，保持为 0 以便逐条确认.
	DefaultChannelBufferSize = 0

	fieldUUID     = "uuid"
	fieldPayload  = "payload"
	fieldMetadata = "metadata"

	claimEvery = 10 // 每读取 N 次尝试认领一次超时未确认的消息
)

// init 注册 Redis 工厂.
func init() {
	RegisterFactory(configs.MQTypeRedis, redisFactory)
}

// redisFactory 创建基于 Redis Streams 消费者组的 Publisher & Subscriber.
func redisFactory(ctx context.Context, cfg *configs.MQConfig, logger watermill.LoggerAdapter) (*Backend, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// 测试连接
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	pub := NewRedisPublisher(rdb, cfg.Redis.MaxLen)
	sub := NewRedisSubscriber(rdb, cfg.Redis, logger)

	return &Backend{
		Publisher:  pub,
		Subscriber: sub,
		Competing:  true,
		Ping:       func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		Close:      rdb.Close,
	}, nil
}

// RedisPublisher 使用 XADD 发布消息.
type RedisPublisher struct {
	client redis.UniversalClient
	maxLen int64
}

// NewRedisPublisher 构造 Publisher，maxLen > 0 时按近似长度裁剪 stream.
func NewRedisPublisher(client redis.UniversalClient, maxLen int64) *RedisPublisher {
	return &RedisPublisher{client: client, maxLen: maxLen}
}

// Publish 实现 Publisher 接口.
func (p *RedisPublisher) Publish(topic string, msgs ...*message.Message) error {
	for _, msg := range msgs {
		meta, err := sonic.Marshal(msg.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}

		args := &redis.XAddArgs{
			Stream: topic,
			Values: map[string]any{
				fieldUUID:     msg.UUID,
				fieldPayload:  []byte(msg.Payload),
				fieldMetadata: meta,
			},
		}
		if p.maxLen > 0 {
			args.MaxLen = p.maxLen
			args.Approx = true
		}

		ctx := msg.Context()
		if err := p.client.XAdd(ctx, args).Err(); err != nil {
			return fmt.Errorf("xadd %s: %w", topic, err)
		}
	}

	return nil
}

// Close 实现 Publisher 接口，连接由工厂统一关闭.
func (p *RedisPublisher) Close() error {
	return nil
}

// RedisSubscriber 以消费者组读取 stream，处理成功后 XACK.
type RedisSubscriber struct {
	client    redis.UniversalClient
	cfg       configs.MQRedisConfig
	logger    watermill.LoggerAdapter
	consumers atomic.Int64

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}
	wg      sync.WaitGroup
}

// NewRedisSubscriber 构造 Subscriber.
func NewRedisSubscriber(client redis.UniversalClient, cfg configs.MQRedisConfig, logger watermill.LoggerAdapter) *RedisSubscriber {
	if cfg.ConsumerGroup == "" {
		cfg.ConsumerGroup = configs.DefaultRedisConsumerGroup
	}

	if cfg.BlockTime <= 0 {
		cfg.BlockTime = configs.DefaultRedisBlockTime
	}

	if cfg.ClaimIdle <= 0 {
		cfg.ClaimIdle = configs.DefaultRedisClaimIdle
	}

	if cfg.Consumer == "" {
		host, _ := os.Hostname()
		cfg.Consumer = host + "-" + strconv.Itoa(os.Getpid())
	}

	return &RedisSubscriber{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		closeCh: make(chan struct{}),
	}
}

// Subscribe 实现 Subscriber 接口. 每次调用使用独立的消费者名，同组内竞争消费.
func (s *RedisSubscriber) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.New("redis subscriber closed")
	}

	err := s.client.XGroupCreateMkStream(ctx, topic, s.cfg.ConsumerGroup, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create consumer group %s on %s: %w", s.cfg.ConsumerGroup, topic, err)
	}

	consumer := s.cfg.Consumer + "-" + strconv.FormatInt(s.consumers.Add(1), 10)
	out := make(chan *message.Message, DefaultChannelBufferSize)

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()
		defer close(out)

		s.consume(ctx, topic, consumer, out)
	}()

	return out, nil
}

func (s *RedisSubscriber) consume(ctx context.Context, topic, consumer string, out chan<- *message.Message) {
	logFields := watermill.LogFields{"topic": topic, "consumer": consumer}

	for i := 0; ; i++ {
		if s.stopped(ctx) {
			return
		}

		var entries []redis.XMessage

		if i%claimEvery == 0 {
			claimed, _, err := s.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
				Stream:   topic,
				Group:    s.cfg.ConsumerGroup,
				Consumer: consumer,
				MinIdle:  s.cfg.ClaimIdle,
				Start:    "0-0",
				Count:    1,
			}).Result()
			if err != nil && !errors.Is(err, redis.Nil) && !s.stopped(ctx) {
				s.logger.Error("xautoclaim failed", err, logFields)
			}

			entries = claimed
		}

		if len(entries) == 0 {
			streams, err := s.client.XReadGroup(ctx, &redis.XReadGroupArgs{
				Group:    s.cfg.ConsumerGroup,
				Consumer: consumer,
				Streams:  []string{topic, ">"},
				Count:    1,
				Block:    s.cfg.BlockTime,
			}).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && !s.stopped(ctx) {
					s.logger.Error("xreadgroup failed", err, logFields)
					s.sleep(ctx, time.Second)
				}

				continue
			}

			for _, st := range streams {
				entries = append(entries, st.Messages...)
			}
		}

		for _, entry := range entries {
			if !s.deliver(ctx, topic, entry, out) {
				return
			}
		}
	}
}

// deliver 投递一条消息直到被 Ack；Nack 时在本地重投. 返回 false 表示订阅已结束.
func (s *RedisSubscriber) deliver(ctx context.Context, topic string, entry redis.XMessage, out chan<- *message.Message) bool {
	for {
		msg, err := decodeEntry(entry)
		if err != nil {
			s.logger.Error("drop malformed stream entry", err, watermill.LogFields{"topic": topic, "id": entry.ID})
			_ = s.client.XAck(ctx, topic, s.cfg.ConsumerGroup, entry.ID).Err()

			return true
		}

		msgCtx, cancel := context.WithCancel(ctx)
		msg.SetContext(msgCtx)

		select {
		case out <- msg:
		case <-s.closeCh:
			cancel()
			return false
		case <-ctx.Done():
			cancel()
			return false
		}

		select {
		case <-msg.Acked():
			cancel()

			if err := s.client.XAck(ctx, topic, s.cfg.ConsumerGroup, entry.ID).Err(); err != nil {
				s.logger.Error("xack failed", err, watermill.LogFields{"topic": topic, "id": entry.ID})
			}

			return true
		case <-msg.Nacked():
			cancel()
			// 立即在本地重投，重试退避由 router 中间件负责
			continue
		case <-s.closeCh:
			cancel()
			return false
		case <-ctx.Done():
			cancel()
			return false
		}
	}
}

func decodeEntry(entry redis.XMessage) (*message.Message, error) {
	uuid, _ := entry.Values[fieldUUID].(string)
	payload, _ := entry.Values[fieldPayload].(string)

	if uuid == "" {
		return nil, fmt.Errorf("entry %s has no uuid", entry.ID)
	}

	msg := message.NewMessage(uuid, []byte(payload))

	if raw, ok := entry.Values[fieldMetadata].(string); ok && raw != "" {
		meta := message.Metadata{}
		if err := sonic.UnmarshalString(raw, &meta); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}

		msg.Metadata = meta
	}

	return msg, nil
}

func (s *RedisSubscriber) stopped(ctx context.Context) bool {
	select {
	case <-s.closeCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func (s *RedisSubscriber) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
	case <-s.closeCh:
	case <-ctx.Done():
	}
}

// Close 实现 Subscriber 接口，等待所有消费协程退出.
func (s *RedisSubscriber) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}

	s.closed = true
	close(s.closeCh)
	s.mu.Unlock()

	s.wg.Wait()

	return nil
}

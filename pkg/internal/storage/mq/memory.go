package mq

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/yeisme/mediavault/pkg/configs"
)

// DefaultMemoryBuffer gochannel 输出通道缓冲.
const DefaultMemoryBuffer = 256

// init 注册内存工厂.
func init() {
	RegisterFactory(configs.MQTypeMemory, memoryFactory)
}

// memoryFactory 创建进程内 gochannel. 同主题的多个订阅各自收到全部消息，因此不是竞争消费.
func memoryFactory(_ context.Context, _ *configs.MQConfig, logger watermill.LoggerAdapter) (*Backend, error) {
	return NewMemoryBackend(logger), nil
}

// NewMemoryBackend 构造 gochannel 后端.
func NewMemoryBackend(logger watermill.LoggerAdapter) *Backend {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: DefaultMemoryBuffer,
	}, logger)

	return &Backend{
		Publisher:  ch,
		Subscriber: ch,
		Competing:  false,
	}
}

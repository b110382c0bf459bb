package mq_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/internal/storage/mq"
)

// TestRegisteredTypes 测试三种后端均已注册.
func TestRegisteredTypes(t *testing.T) {
	types := mq.GetRegisteredMQTypes()
	assert.Contains(t, types, configs.MQTypeMemory)
	assert.Contains(t, types, configs.MQTypeNATS)
	assert.Contains(t, types, configs.MQTypeRedis)
}

// TestNATSSubject 测试主题映射.
func TestNATSSubject(t *testing.T) {
	assert.Equal(t, "mv_video_processing", mq.NATSSubject("mv.video.processing"))
	assert.Equal(t, "plain", mq.NATSSubject("plain"))
}

// TestUnsupportedType 测试未知类型报错.
func TestUnsupportedType(t *testing.T) {
	_, err := mq.New(context.Background(), &configs.MQConfig{Type: "kafka"}, watermill.NopLogger{})
	require.Error(t, err)
}

// TestMemoryRoundTrip 测试内存后端的发布与订阅.
func TestMemoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := mq.New(ctx, &configs.MQConfig{Type: configs.MQTypeMemory}, watermill.NopLogger{})
	require.NoError(t, err)

	defer func() { require.NoError(t, client.Close()) }()

	assert.False(t, client.CompetingConsumers())
	require.NoError(t, client.HealthCheck(ctx))

	ch, err := client.Subscribe(ctx, "mv.test")
	require.NoError(t, err)

	msg := message.NewMessage(watermill.NewULID(), []byte(`{"ok":true}`))
	msg.Metadata.Set("k", "v")
	require.NoError(t, client.Publish(ctx, "mv.test", msg))

	select {
	case got := <-ch:
		assert.Equal(t, msg.UUID, got.UUID)
		assert.Equal(t, "v", got.Metadata.Get("k"))
		assert.JSONEq(t, `{"ok":true}`, string(got.Payload))
		got.Ack()
	case <-ctx.Done():
		t.Fatal("message not delivered")
	}
}

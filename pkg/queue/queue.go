// Package queue 管理媒体处理流水线的消息.
//
// 概览
//   - 每种媒体（video/image）每个阶段（processing/thumbnail/upload）一个主题，见 topics.go
//   - 统一的消息封装：Message[Payload] = Header + Payload，负载见 payloads.go
//   - 消息 UUID 使用 ULID，同时作为任务账本中的 job_id
//   - 默认 JSON 编解码（bytedance/sonic）
//
// 消息信封（Envelope）JSON 结构
//
//	{
//	  "header": {
//	    "topic": "mv.video.processing",
//	    "job_id": "01J9Z3K6W4Q8J2M7V5X0C1B2N3",
//	    "producer": "mediavault",
//	    "occurred_at": "2025-01-02T03:04:05.123456Z",
//	    "version": "v1"
//	  },
//	  "payload": { "asset_id": "...", "storage_path": "assets/.../clip.mp4", "kind": "video" }
//	}
//
// 发布示例
//
//	msg, _ := queue.NewWatermillMessage(
//	  queue.TopicVideoProcessing, payload,
//	  queue.WithProducer("mediavault"),
//	)
//	_ = publisher.Publish(queue.TopicVideoProcessing, msg)
//
// 消费端使用 ParseWatermillMessage[T] 解出负载；账本以 msg.UUID 关联任务.
package queue

import (
	crand "crypto/rand"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/bytedance/sonic"
	"github.com/oklog/ulid"

	"github.com/yeisme/mediavault/pkg/errs"
)

const (
	PayloadVersionV1 string = "v1"
)

// 元数据键.
const (
	MetaTopic      = "topic"
	MetaTraceID    = "trace_id"
	MetaProducer   = "producer"
	MetaOccurredAt = "occurred_at"
	MetaVersion    = "version"
	MetaAssetID    = "asset_id"
	MetaWorker     = "worker"
)

var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(crand.Reader, 0)
)

// NewJobID 生成按时间单调递增的 ULID.
func NewJobID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}

// NewEventHeader 便捷创建事件头.
func NewEventHeader(topic string, opts ...func(*EventHeader)) EventHeader {
	hdr := EventHeader{
		Topic:      topic,
		OccurredAt: time.Now().UTC(),
		Version:    PayloadVersionV1,
	}
	for _, opt := range opts {
		opt(&hdr)
	}

	if hdr.JobID == "" {
		hdr.JobID = NewJobID()
	}

	return hdr
}

// WithTraceID 设置 TraceID.
func WithTraceID(id string) func(*EventHeader) { return func(h *EventHeader) { h.TraceID = id } }

// WithProducer 设置 Producer.
func WithProducer(p string) func(*EventHeader) { return func(h *EventHeader) { h.Producer = p } }

// WithJobID 指定任务 ID，通常只在重放时使用.
func WithJobID(id string) func(*EventHeader) { return func(h *EventHeader) { h.JobID = id } }

// Encode 将消息封装为 JSON 字节切片.
func Encode[T any](msg Message[T]) ([]byte, error) { return sonic.Marshal(msg) }

// Decode 从 JSON 字节解码为消息.
func Decode[T any](b []byte) (Message[T], error) {
	var m Message[T]

	err := sonic.Unmarshal(b, &m)

	return m, err
}

// NewWatermillMessage 构造一个 watermill 消息，UUID 即任务 ID.
func NewWatermillMessage[T any](topic string, payload T, opts ...func(*EventHeader)) (*message.Message, error) {
	header := NewEventHeader(topic, opts...)
	env := Message[T]{Header: header, Payload: payload}

	data, err := Encode(env)
	if err != nil {
		return nil, err
	}

	msg := message.NewMessage(header.JobID, data)
	msg.Metadata.Set(MetaTopic, topic)

	if header.TraceID != "" {
		msg.Metadata.Set(MetaTraceID, header.TraceID)
	}

	if header.Producer != "" {
		msg.Metadata.Set(MetaProducer, header.Producer)
	}

	msg.Metadata.Set(MetaOccurredAt, header.OccurredAt.Format(time.RFC3339Nano))

	if header.Version != "" {
		msg.Metadata.Set(MetaVersion, header.Version)
	}

	return msg, nil
}

// ParseWatermillMessage 解出泛型负载，格式错误视为不可重试.
func ParseWatermillMessage[T any](msg *message.Message) (Message[T], error) {
	env, err := Decode[T](msg.Payload)
	if err != nil {
		return env, errs.E(errs.Validation, "queue.decode", "MalformedMessage", err)
	}

	return env, nil
}

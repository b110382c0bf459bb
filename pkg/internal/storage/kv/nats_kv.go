package kv

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/yeisme/mediavault/pkg/configs"
)

// NATSKV 基于 JetStream KeyValue 的实现. 与 mq 共用同一套 NATS 部署.
type NATSKV struct {
	conn *nats.Conn
	kv   jetstream.KeyValue
}

// NewNATSKV 连接 NATS 并创建或更新 bucket.
func NewNATSKV(ctx context.Context, config any) (KVStore, error) {
	cfg, ok := config.(*configs.NATSKVConfig)
	if !ok {
		return nil, fmt.Errorf("invalid NATS kv config %T", config)
	}

	opts := []nats.Option{nats.Name("mediavault-kv")}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "mediavault response and query cache",
		History:     1,
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("kv bucket %s: %w", cfg.Bucket, err)
	}

	return &NATSKV{conn: nc, kv: kv}, nil
}

// NATS 键只允许 [-/_=.A-Za-z0-9]，这里统一做 base64url 编码.
func natsKey(key string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(key))
}

func (n *NATSKV) entry(ctx context.Context, key string) ([]byte, bool, error) {
	e, err := n.kv.Get(ctx, natsKey(key))
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("nats kv get %s: %w", key, err)
	}

	value, live := unseal(e.Value(), time.Now())
	if !live {
		_ = n.kv.Delete(ctx, natsKey(key), jetstream.LastRevision(e.Revision()))
		return nil, false, nil
	}

	return value, true, nil
}

// Get 获取键的值.
func (n *NATSKV) Get(ctx context.Context, key string) ([]byte, error) {
	value, ok, err := n.entry(ctx, key)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}

	return value, nil
}

// Set 设置键的值，ttl 写入值头.
func (n *NATSKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if _, err := n.kv.Put(ctx, natsKey(key), seal(value, ttl)); err != nil {
		return fmt.Errorf("nats kv put %s: %w", key, err)
	}

	return nil
}

// Delete 删除键.
func (n *NATSKV) Delete(ctx context.Context, key string) error {
	if err := n.kv.Delete(ctx, natsKey(key)); err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("nats kv delete %s: %w", key, err)
	}

	return nil
}

// Exists 检查键是否存在且未过期.
func (n *NATSKV) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := n.entry(ctx, key)
	return ok, err
}

// Keys 列出 bucket 中匹配 glob 模式的键.
func (n *NATSKV) Keys(ctx context.Context, pattern string) ([]string, error) {
	lister, err := n.kv.ListKeys(ctx)
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return nil, nil
		}

		return nil, fmt.Errorf("nats kv list: %w", err)
	}

	defer func() { _ = lister.Stop() }()

	var keys []string

	for encoded := range lister.Keys() {
		raw, err := base64.RawURLEncoding.DecodeString(encoded)
		if err != nil {
			continue
		}

		if key := string(raw); matchKey(pattern, key) {
			keys = append(keys, key)
		}
	}

	return keys, nil
}

// Close 断开连接.
func (n *NATSKV) Close() error {
	n.conn.Close()
	return nil
}

func init() {
	RegisterKVFactory(KVTypeNATS, NewNATSKV)
}

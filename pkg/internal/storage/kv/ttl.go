package kv

import (
	"bytes"
	"encoding/binary"
	"time"
)

// 带过期时间的值在原值前加 magic 与 8 字节大端 unix 纳秒，
// 供不支持单键 TTL 的后端（memory、nats、groupcache）共用.
var envelopeMagic = []byte("\x00mvx")

const envelopeHeader = 4 + 8

// seal 在 ttl>0 时为值加上过期头，否则返回副本.
func seal(value []byte, ttl time.Duration) []byte {
	if ttl <= 0 {
		return bytes.Clone(value)
	}

	out := make([]byte, envelopeHeader+len(value))
	copy(out, envelopeMagic)
	binary.BigEndian.PutUint64(out[len(envelopeMagic):], uint64(time.Now().Add(ttl).UnixNano()))
	copy(out[envelopeHeader:], value)

	return out
}

// unseal 去掉过期头. 已过期时 live 为 false.
func unseal(b []byte, now time.Time) (value []byte, live bool) {
	if len(b) < envelopeHeader || !bytes.HasPrefix(b, envelopeMagic) {
		return b, true
	}

	exp := int64(binary.BigEndian.Uint64(b[len(envelopeMagic):envelopeHeader]))
	if now.UnixNano() >= exp {
		return nil, false
	}

	return b[envelopeHeader:], true
}

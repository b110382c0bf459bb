package log_test

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/mediavault/pkg/configs"
	"github.com/yeisme/mediavault/pkg/log"
)

// TestNewLevel 测试级别解析与 debug 模式下调低级别.
func TestNewLevel(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	log.New(configs.LogConfig{Level: "warn", Format: "json"}, false)
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	log.New(configs.LogConfig{Level: "bogus"}, false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	log.New(configs.LogConfig{Level: "error"}, true)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}

// TestNewFileOutput 测试启用文件输出时写入轮转文件.
func TestNewFileOutput(t *testing.T) {
	t.Cleanup(func() { zerolog.SetGlobalLevel(zerolog.InfoLevel) })

	path := filepath.Join(t.TempDir(), "mv.log")

	l := log.New(configs.LogConfig{Level: "info", Format: "json", EnableFile: true, FilePath: path, MaxSize: 1}, false)
	l.Info().Str("asset_id", "a1").Msg("hello")

	require.FileExists(t, path)
}

package configs_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeisme/mediavault/pkg/configs"
)

// TestDefaultValidates 测试默认配置可以通过校验.
func TestDefaultValidates(t *testing.T) {
	cfg := configs.Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, configs.SQLite, cfg.DB.Type)
	assert.Equal(t, "mediavault", cfg.S3.BucketName)
	assert.Equal(t, []int{720, 480}, cfg.Pipeline.GetResolutions())
	assert.Equal(t, 320, cfg.Pipeline.ThumbnailWidth)
	assert.Equal(t, 10*time.Minute, cfg.Pipeline.GetJobTimeout())
	assert.Equal(t, 3, cfg.Pipeline.Retry.MaxRetries)
	assert.Equal(t, 2, cfg.Pipeline.Concurrency.Processing)
	assert.True(t, cfg.Pipeline.PoisonQueue)
}

// TestGetResolutions 测试分辨率按降序去重.
func TestGetResolutions(t *testing.T) {
	p := configs.PipelineConfig{Resolutions: []int{480, 1080, 720, 480}}
	assert.Equal(t, []int{1080, 720, 480}, p.GetResolutions())

	empty := configs.PipelineConfig{}
	assert.Equal(t, configs.DefaultResolutions, empty.GetResolutions())
	assert.Equal(t, configs.DefaultJobTimeout, empty.GetJobTimeout())
	assert.NotEmpty(t, empty.GetTempDir())
}

// TestLoadFileAndEnv 测试配置文件与环境变量覆盖.
func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
pipeline:
  resolutions: [1080, 360]
  thumbnail_width: 256
mq:
  type: memory
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), content, 0o600))

	t.Setenv("MEDIAVAULT_S3_BUCKET_NAME", "from-env")

	v, err := configs.Load(dir)
	require.NoError(t, err)

	var cfg configs.AppConfig
	require.NoError(t, v.Unmarshal(&cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []int{1080, 360}, cfg.Pipeline.GetResolutions())
	assert.Equal(t, 256, cfg.Pipeline.ThumbnailWidth)
	assert.Equal(t, configs.MQTypeMemory, cfg.MQ.Type)
	assert.Equal(t, "from-env", cfg.S3.BucketName)
}

// TestValidateRejectsBadPipeline 测试非法的流水线配置会被拒绝.
func TestValidateRejectsBadPipeline(t *testing.T) {
	cfg := configs.Default()
	cfg.Pipeline.Concurrency.Upload = 0
	assert.Error(t, cfg.Validate())

	cfg = configs.Default()
	cfg.MQ.Type = "kafka"
	assert.Error(t, cfg.Validate())
}

// TestGetDSN 测试各数据库类型的连接串.
func TestGetDSN(t *testing.T) {
	base := configs.DBConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "mv", SSLMode: "disable"}

	cases := map[configs.DBType]string{
		configs.Pg:      "host=db port=5432 user=u password=p dbname=mv sslmode=disable TimeZone=UTC",
		configs.MariaDB: "u:p@tcp(db:5432)/mv?charset=utf8mb4&parseTime=true&loc=UTC",
		configs.SQLite:  "file:mv.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		"oracle":        "",
	}

	for typ, want := range cases {
		cfg := base
		cfg.Type = typ
		assert.Equal(t, want, cfg.GetDSN(), typ)
	}

	mem := configs.DBConfig{Type: configs.SQLite, Database: ":memory:"}
	assert.Contains(t, mem.GetDSN(), "memory")
}

package configs

import (
	"github.com/spf13/viper"
)

// S3Config S3 兼容对象存储（MinIO）配置.
type S3Config struct {
	Endpoint         string `mapstructure:"endpoint"           rule:"required,hostname_port"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	BucketName       string `mapstructure:"bucket_name"        rule:"required,min=3,max=63"`
	Region           string `mapstructure:"region"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"` // 启动时若 bucket 不存在则创建
}

func (c *S3Config) setDefaults(v *viper.Viper) {
	v.SetDefault("s3.endpoint", "localhost:9000")
	v.SetDefault("s3.access_key_id", "minioadmin")
	v.SetDefault("s3.secret_access_key", "minioadmin")
	v.SetDefault("s3.bucket_name", AppName)
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.auto_create_bucket", true)
}

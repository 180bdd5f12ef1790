package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ManagerAPI/pkg/util"
)

// ErrNotFound 对象不存在
var ErrNotFound = errors.New("object not found")

// Store 二进制对象存储，同一个 key 重复写入会覆盖旧内容
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// New 根据驱动创建存储，driver 为 local 或 minio
func New(driver, localPath string) (Store, error) {
	switch strings.ToLower(driver) {
	case "", "local":
		return NewLocalStore(localPath)
	case "minio":
		return NewMinioStore(MinioConfigFromEnv())
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}

// MinioConfigFromEnv 从环境变量读取 MinIO 配置
func MinioConfigFromEnv() MinioConfig {
	useSSL := util.GetEnv("MINIO_USE_SSL") == "1" || util.GetBoolEnv("MINIO_USE_SSL")
	return MinioConfig{
		Endpoint:  util.GetEnv("MINIO_ENDPOINT"),
		AccessKey: util.GetEnv("MINIO_ACCESS_KEY"),
		SecretKey: util.GetEnv("MINIO_SECRET_KEY"),
		Bucket:    util.GetEnvOr("MINIO_BUCKET", "voice-clone"),
		UseSSL:    useSSL,
		Prefix:    util.GetEnv("MINIO_PREFIX"),
	}
}

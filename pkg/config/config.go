package config

import (
	"log"
	"os"
	"time"

	"ManagerAPI/pkg/cache"
	"ManagerAPI/pkg/logger"
	"ManagerAPI/pkg/util"
)

// Config 全局配置，全部来自环境变量（可由 .env 文件提供）
type Config struct {
	DBDriver         string `env:"DB_DRIVER"`
	DSN              string `env:"DSN"`
	Log              logger.LogConfig
	Cache            cache.Config
	Storage          StorageConfig
	Engine           EngineConfig
	Clone            CloneConfig
	Addr             string `env:"ADDR"`
	Mode             string `env:"MODE"`
	APIPrefix        string `env:"API_PREFIX"`
	SessionSecret    string `env:"SESSION_SECRET"`
	SecretExpireDays int    `env:"SESSION_EXPIRE_DAYS"`
	RateLimit        string `env:"RATE_LIMIT"`
	MetricsPath      string `env:"METRICS_PATH"`
	BackupEnabled    bool   `env:"BACKUP_ENABLED"`
	BackupPath       string `env:"BACKUP_PATH"`
	BackupSchedule   string `env:"BACKUP_SCHEDULE"`
}

// StorageConfig 参考音频存储
type StorageConfig struct {
	Driver string `env:"STORAGE_DRIVER"` // local|minio
	Path   string `env:"STORAGE_PATH"`
}

// EngineConfig 克隆引擎
type EngineConfig struct {
	BaseURL string `env:"ENGINE_BASE_URL"`
	APIKey  string `env:"ENGINE_API_KEY"`
}

// CloneConfig 声音克隆训练相关限制
type CloneConfig struct {
	TrainTimeout  time.Duration `env:"CLONE_TRAIN_TIMEOUT"`
	MaxAudioBytes int64         `env:"CLONE_MAX_AUDIO_BYTES"`
	Concurrency   int64         `env:"CLONE_TRAIN_CONCURRENCY"`
	StaleSchedule string        `env:"CLONE_STALE_SCHEDULE"`
}

var GlobalConfig *Config

func Load() (*Config, error) {
	// 1. 根据环境加载 .env 文件
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development" // 默认使用开发环境
	}
	if err := util.LoadEnv(env); err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	// 2. 加载全局配置
	GlobalConfig = &Config{
		DBDriver:         util.GetEnvOr("DB_DRIVER", "sqlite"),
		DSN:              util.GetEnvOr("DSN", "manager.db"),
		Addr:             util.GetEnvOr("ADDR", ":8002"),
		Mode:             util.GetEnvOr("MODE", "development"),
		APIPrefix:        util.GetEnvOr("API_PREFIX", "/xiaozhi"),
		SessionSecret:    util.GetEnv("SESSION_SECRET"),
		SecretExpireDays: int(util.GetIntEnvOr("SESSION_EXPIRE_DAYS", 7)),
		RateLimit:        util.GetEnvOr("RATE_LIMIT", "30-M"),
		MetricsPath:      util.GetEnvOr("METRICS_PATH", "/metrics"),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnvOr("LOG_MAX_SIZE", 100)),
			MaxAge:     int(util.GetIntEnvOr("LOG_MAX_AGE", 30)),
			MaxBackups: int(util.GetIntEnvOr("LOG_MAX_BACKUPS", 5)),
		},
		Cache: cache.Config{
			Type: util.GetEnvOr("CACHE_TYPE", "local"),
			Redis: cache.RedisConfig{
				Addr:         util.GetEnvOr("REDIS_ADDR", "localhost:6379"),
				Password:     util.GetEnv("REDIS_PASSWORD"),
				DB:           int(util.GetIntEnv("REDIS_DB")),
				PoolSize:     int(util.GetIntEnvOr("REDIS_POOL_SIZE", 10)),
				MinIdleConns: int(util.GetIntEnvOr("REDIS_MIN_IDLE_CONNS", 5)),
				DialTimeout:  util.GetDurationEnvOr("REDIS_DIAL_TIMEOUT", 5*time.Second),
				ReadTimeout:  util.GetDurationEnvOr("REDIS_READ_TIMEOUT", 3*time.Second),
				WriteTimeout: util.GetDurationEnvOr("REDIS_WRITE_TIMEOUT", 3*time.Second),
				IdleTimeout:  util.GetDurationEnvOr("REDIS_IDLE_TIMEOUT", 5*time.Minute),
			},
			Local: cache.LocalConfig{
				MaxSize:           int(util.GetIntEnvOr("LOCAL_CACHE_MAX_SIZE", 1000)),
				DefaultExpiration: util.GetDurationEnvOr("LOCAL_CACHE_DEFAULT_EXPIRATION", 5*time.Minute),
				CleanupInterval:   util.GetDurationEnvOr("LOCAL_CACHE_CLEANUP_INTERVAL", 10*time.Minute),
			},
		},
		Storage: StorageConfig{
			Driver: util.GetEnvOr("STORAGE_DRIVER", "local"),
			Path:   util.GetEnvOr("STORAGE_PATH", "data/voice-clone"),
		},
		Engine: EngineConfig{
			BaseURL: util.GetEnv("ENGINE_BASE_URL"),
			APIKey:  util.GetEnv("ENGINE_API_KEY"),
		},
		Clone: CloneConfig{
			TrainTimeout:  util.GetDurationEnvOr("CLONE_TRAIN_TIMEOUT", 5*time.Minute),
			MaxAudioBytes: util.GetIntEnvOr("CLONE_MAX_AUDIO_BYTES", 10<<20),
			Concurrency:   util.GetIntEnvOr("CLONE_TRAIN_CONCURRENCY", 4),
			StaleSchedule: util.GetEnvOr("CLONE_STALE_SCHEDULE", "@every 1m"),
		},
		BackupEnabled:  util.GetBoolEnv("BACKUP_ENABLED"),
		BackupPath:     util.GetEnvOr("BACKUP_PATH", "backup"),
		BackupSchedule: util.GetEnvOr("BACKUP_SCHEDULE", "0 3 * * *"),
	}
	return GlobalConfig, nil
}

package cache

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// NewCache 创建缓存实例
func NewCache(config Config) (Cache, error) {
	switch strings.ToLower(config.Type) {
	case "", "local":
		return NewLocalCache(config.Local), nil
	case "gocache":
		return NewGoCache(config.Local), nil
	case "redis":
		return NewRedisCache(config.Redis)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", config.Type)
	}
}

// NewCacheWithOptions 创建带选项的缓存实例，分布式缓存前可叠加一层本地缓存
func NewCacheWithOptions(config Config, options *Options) (Cache, error) {
	if options == nil {
		options = DefaultOptions()
	}
	typ := strings.ToLower(config.Type)
	if !options.UseLocalCache || typ == "" || typ == "local" || typ == "gocache" {
		return NewCache(config)
	}

	distributed, err := NewCache(config)
	if err != nil {
		return nil, err
	}
	localConfig := config.Local
	if options.LocalExpiration > 0 {
		localConfig.DefaultExpiration = options.LocalExpiration
	}
	return NewLayeredCache(NewLocalCache(localConfig), distributed, options), nil
}

// NewLayeredCache 组合本地缓存和分布式缓存
func NewLayeredCache(local, distributed Cache, options *Options) Cache {
	if options == nil {
		options = DefaultOptions()
	}
	return &layeredCache{local: local, distributed: distributed, options: options}
}

// layeredCache 分层缓存实现
type layeredCache struct {
	local       Cache
	distributed Cache
	options     *Options
}

// Get 从本地缓存获取，如果没有则从分布式缓存获取并回填本地缓存
func (lc *layeredCache) Get(ctx context.Context, key string) (interface{}, bool) {
	if value, exists := lc.local.Get(ctx, key); exists {
		return value, true
	}
	if value, exists := lc.distributed.Get(ctx, key); exists {
		_ = lc.local.Set(ctx, key, value, lc.options.LocalExpiration)
		return value, true
	}
	return nil, false
}

// Set 先写分布式缓存，再写本地缓存
func (lc *layeredCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if err := lc.distributed.Set(ctx, key, value, expiration); err != nil {
		return err
	}
	local := lc.options.LocalExpiration
	if expiration > 0 && expiration < local {
		local = expiration
	}
	return lc.local.Set(ctx, key, value, local)
}

func (lc *layeredCache) Delete(ctx context.Context, key string) error {
	if err := lc.local.Delete(ctx, key); err != nil {
		return err
	}
	return lc.distributed.Delete(ctx, key)
}

func (lc *layeredCache) DeleteMulti(ctx context.Context, keys ...string) error {
	if err := lc.local.DeleteMulti(ctx, keys...); err != nil {
		return err
	}
	return lc.distributed.DeleteMulti(ctx, keys...)
}

func (lc *layeredCache) Exists(ctx context.Context, key string) bool {
	return lc.local.Exists(ctx, key) || lc.distributed.Exists(ctx, key)
}

func (lc *layeredCache) Clear(ctx context.Context) error {
	if err := lc.local.Clear(ctx); err != nil {
		return err
	}
	return lc.distributed.Clear(ctx)
}

func (lc *layeredCache) Close() error {
	if err := lc.local.Close(); err != nil {
		return err
	}
	return lc.distributed.Close()
}

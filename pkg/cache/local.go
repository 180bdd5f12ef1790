package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// localCache 基于 expirable LRU 的进程内缓存，超过 MaxSize 时淘汰最久未使用的键
type localCache struct {
	lru        *expirable.LRU[string, cacheItem]
	defaultTTL time.Duration
}

// cacheItem 缓存项，expiration 用于支持单键过期时间
type cacheItem struct {
	value      interface{}
	expiration time.Time
}

func (it cacheItem) expired(now time.Time) bool {
	return !it.expiration.IsZero() && now.After(it.expiration)
}

// NewLocalCache 创建本地缓存
func NewLocalCache(config LocalConfig) Cache {
	size := config.MaxSize
	if size <= 0 {
		size = 1000
	}
	return &localCache{
		lru:        expirable.NewLRU[string, cacheItem](size, nil, config.DefaultExpiration),
		defaultTTL: config.DefaultExpiration,
	}
}

// Get 获取缓存值
func (lc *localCache) Get(ctx context.Context, key string) (interface{}, bool) {
	item, ok := lc.lru.Get(key)
	if !ok {
		return nil, false
	}
	if item.expired(time.Now()) {
		lc.lru.Remove(key)
		return nil, false
	}
	return item.value, true
}

// Set 设置缓存值
func (lc *localCache) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	if expiration <= 0 {
		expiration = lc.defaultTTL
	}
	item := cacheItem{value: value}
	if expiration > 0 {
		item.expiration = time.Now().Add(expiration)
	}
	lc.lru.Add(key, item)
	return nil
}

// Delete 删除缓存
func (lc *localCache) Delete(ctx context.Context, key string) error {
	lc.lru.Remove(key)
	return nil
}

// DeleteMulti 批量删除
func (lc *localCache) DeleteMulti(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		lc.lru.Remove(key)
	}
	return nil
}

// Exists 检查键是否存在
func (lc *localCache) Exists(ctx context.Context, key string) bool {
	_, ok := lc.Get(ctx, key)
	return ok
}

// Clear 清空所有缓存
func (lc *localCache) Clear(ctx context.Context) error {
	lc.lru.Purge()
	return nil
}

// Close 本地缓存无需关闭
func (lc *localCache) Close() error {
	return nil
}

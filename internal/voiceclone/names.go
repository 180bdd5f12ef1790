package voiceclone

import (
	"context"
	"strconv"
	"time"

	"ManagerAPI/pkg/cache"
	"ManagerAPI/pkg/logger"

	"go.uber.org/zap"
)

const (
	modelNameKeyPrefix = "voice_clone:model_name:"
	usernameKeyPrefix  = "voice_clone:username:"
)

// CachedNames 在 NameSource 之前加一层缓存，不存在的引用也缓存为空字符串
type CachedNames struct {
	source NameSource
	cache  cache.Cache
	ttl    time.Duration
}

func NewCachedNames(source NameSource, c cache.Cache, ttl time.Duration) *CachedNames {
	return &CachedNames{source: source, cache: c, ttl: ttl}
}

func (n *CachedNames) ModelName(ctx context.Context, modelID string) (string, error) {
	return n.lookup(ctx, modelNameKeyPrefix+modelID, func() (string, error) {
		return n.source.ModelName(ctx, modelID)
	})
}

func (n *CachedNames) Username(ctx context.Context, userID int64) (string, error) {
	return n.lookup(ctx, usernameKeyPrefix+strconv.FormatInt(userID, 10), func() (string, error) {
		return n.source.Username(ctx, userID)
	})
}

// InvalidateModel 模型改名或删除后调用
func (n *CachedNames) InvalidateModel(ctx context.Context, modelIDs ...string) {
	keys := make([]string, 0, len(modelIDs))
	for _, id := range modelIDs {
		keys = append(keys, modelNameKeyPrefix+id)
	}
	n.invalidate(ctx, keys)
}

// InvalidateUser 用户删除后调用
func (n *CachedNames) InvalidateUser(ctx context.Context, userIDs ...int64) {
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, usernameKeyPrefix+strconv.FormatInt(id, 10))
	}
	n.invalidate(ctx, keys)
}

func (n *CachedNames) invalidate(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	if err := n.cache.DeleteMulti(ctx, keys...); err != nil {
		logger.Warn("invalidate display names failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (n *CachedNames) lookup(ctx context.Context, key string, load func() (string, error)) (string, error) {
	if v, ok := n.cache.Get(ctx, key); ok {
		if s, ok := v.(string); ok {
			return s, nil
		}
	}
	name, err := load()
	if err != nil {
		return "", err
	}
	// 缓存不可用不影响读取
	if err := n.cache.Set(ctx, key, name, n.ttl); err != nil {
		logger.Debug("cache display name failed", zap.String("key", key), zap.Error(err))
	}
	return name, nil
}

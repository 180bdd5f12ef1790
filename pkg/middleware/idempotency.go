package middleware

import (
	"net/http"
	"strings"
	"time"

	"ManagerAPI/pkg/errors"
	"ManagerAPI/pkg/response"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"github.com/spf13/cast"
)

type IdemStore interface {
	Set(key string, ttl time.Duration) bool // return true if set, false if exists
}

// memoryIdemStore 基于 go-cache 的 Add，检查与写入是原子的
type memoryIdemStore struct {
	c *gocache.Cache
}

func NewMemoryIdemStore(ttl time.Duration) IdemStore {
	return &memoryIdemStore{c: gocache.New(ttl, 2*ttl)}
}

func (s *memoryIdemStore) Set(key string, ttl time.Duration) bool {
	return s.c.Add(key, struct{}{}, ttl) == nil
}

type IdempotencyConfig struct {
	HeaderName string        // Idempotency-Key 的请求头名
	TTL        time.Duration // 决定一段时间内重复请求的拒绝窗口
	Store      IdemStore     // 可选外部存储（如 Redis）
}

// IdempotencyMiddleware 只处理带幂等键的请求，键按用户隔离
func IdempotencyMiddleware(cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.HeaderName == "" {
		cfg.HeaderName = "Idempotency-Key"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryIdemStore(cfg.TTL)
	}
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(cfg.HeaderName))
		if key == "" {
			c.Next()
			return
		}
		key = cast.ToString(c.Value("user_id")) + ":" + c.FullPath() + ":" + key
		if !store.Set(key, cfg.TTL) {
			c.AbortWithStatusJSON(http.StatusConflict, response.Body{Code: errors.CodeConflict, Msg: "duplicate request"})
			return
		}
		c.Next()
	}
}

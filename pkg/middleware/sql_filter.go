package middleware

import (
	"ManagerAPI/pkg/errors"
	"ManagerAPI/pkg/response"
	"ManagerAPI/pkg/util"

	"github.com/gin-gonic/gin"
)

// DefaultFilteredParams 会被拼进 SQL 的查询参数
var DefaultFilteredParams = []string{"orderField", "order"}

// SQLFilter 拒绝在指定查询参数中携带 SQL 关键字的请求
func SQLFilter(params ...string) gin.HandlerFunc {
	if len(params) == 0 {
		params = DefaultFilteredParams
	}
	return func(c *gin.Context) {
		for _, p := range params {
			v, ok := c.GetQuery(p)
			if !ok || v == "" {
				continue
			}
			if _, err := util.SQLInject(v); err != nil {
				response.Error(c, errors.InvalidInput("illegal parameter %s", p))
				return
			}
		}
		c.Next()
	}
}

package util

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 500
)

// PageData 分页结果
type PageData[T any] struct {
	Total int64 `json:"total"`
	List  []T   `json:"list"`
}

// PageParams 分页和排序参数，OrderField 为数据库列名
type PageParams struct {
	Page       int
	Limit      int
	OrderField string
	Asc        bool
}

// ParsePage 解析 page/limit，非法值回退为默认值
func ParsePage(page, limit string) PageParams {
	p := cast.ToInt(page)
	if p < 1 {
		p = 1
	}
	l := cast.ToInt(limit)
	if l < 1 {
		l = DefaultPageSize
	}
	if l > MaxPageSize {
		l = MaxPageSize
	}
	return PageParams{Page: p, Limit: l}
}

// Offset 返回当前页的起始偏移
func (p PageParams) Offset() int {
	return (p.Page - 1) * p.Limit
}

// WithOrder 经过 SQL 过滤并校验白名单后设置排序字段，allowed 的 key 为前端字段名，value 为列名
func (p PageParams) WithOrder(field, order string, allowed map[string]string) (PageParams, error) {
	if field == "" {
		return p, nil
	}
	field, err := SQLInject(field)
	if err != nil {
		return p, err
	}
	col, ok := allowed[field]
	if !ok {
		return p, fmt.Errorf("unsupported order field: %s", field)
	}
	p.OrderField = col
	p.Asc = strings.EqualFold(order, "asc")
	return p, nil
}

// OrderClause 生成 gorm Order 子句，未设置时返回 def
func (p PageParams) OrderClause(def string) string {
	if p.OrderField == "" {
		return def
	}
	if p.Asc {
		return p.OrderField + " ASC"
	}
	return p.OrderField + " DESC"
}

package util

import (
	"errors"
	"strings"
)

var ErrIllegalSQL = errors.New("包含非法字符")

var sqlKeywords = []string{"master", "truncate", "insert", "select", "delete", "update", "declare", "alter", "drop", "union", "exec", "sleep("}

// SQLInject 过滤可能拼接进 SQL 的参数（排序字段等），去掉引号、分号和反斜杠，
// 命中关键字时返回 ErrIllegalSQL
func SQLInject(str string) (string, error) {
	if str == "" {
		return "", nil
	}
	str = strings.NewReplacer("'", "", "\"", "", ";", "", "\\", "").Replace(str)
	lower := strings.ToLower(str)
	for _, kw := range sqlKeywords {
		if strings.Contains(lower, kw) {
			return "", ErrIllegalSQL
		}
	}
	return str, nil
}

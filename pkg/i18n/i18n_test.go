package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTranslate(t *testing.T) {
	s, err := NewI18nSupport()
	require.NoError(t, err)

	assert.Equal(t, "资源不存在", s.Translate("zh-CN,zh;q=0.9,en;q=0.8", "code.10004", "fallback"))
	assert.Equal(t, "fallback", s.Translate("en-US,en;q=0.9", "code.10004", "fallback"))
	assert.Equal(t, "fallback", s.Translate("", "code.10004", "fallback"))
	assert.Equal(t, "fallback", s.Translate("zh-CN", "code.unknown", "fallback"))
}

func TestCodeMessage(t *testing.T) {
	assert.Equal(t, "当前状态不允许该操作: voice clone r1 is training", CodeMessage("zh-CN", 10009, "voice clone r1 is training"))
	assert.Equal(t, "服务器内部错误", CodeMessage("zh", 0, ""))
	assert.Equal(t, "voice clone r1 is training", CodeMessage("en", 10009, "voice clone r1 is training"))
	assert.Equal(t, "detail", CodeMessage("zh", 12345, "detail"))
}

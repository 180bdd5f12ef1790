package i18n

import (
	"embed"
	"encoding/json"
	"strconv"
	"sync"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

var supported = []language.Tag{language.English, language.Chinese}

// I18nSupport 国际化支持结构体，默认语言为英文
type I18nSupport struct {
	bundle  *i18n.Bundle
	matcher language.Matcher
}

// NewI18nSupport 加载内置的中英文消息
func NewI18nSupport() (*I18nSupport, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)
	for _, name := range []string{"locales/en.json", "locales/zh.json"} {
		buf, err := localeFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if _, err := bundle.ParseMessageFileBytes(buf, name); err != nil {
			return nil, err
		}
	}
	return &I18nSupport{bundle: bundle, matcher: language.NewMatcher(supported)}, nil
}

// Translate 按 Accept-Language 翻译 messageID。首选英文或无法匹配时返回 fallback
func (s *I18nSupport) Translate(acceptLanguage, messageID, fallback string) string {
	tags, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(tags) == 0 {
		return fallback
	}
	tag, _, conf := s.matcher.Match(tags...)
	if conf == language.No {
		return fallback
	}
	if base, _ := tag.Base(); base.String() == "en" {
		return fallback
	}
	localizer := i18n.NewLocalizer(s.bundle, tag.String())
	msg, err := localizer.Localize(&i18n.LocalizeConfig{MessageID: messageID})
	if err != nil || msg == "" {
		return fallback
	}
	return msg
}

var (
	once sync.Once
	std  *I18nSupport
)

func defaultSupport() *I18nSupport {
	once.Do(func() {
		s, err := NewI18nSupport()
		if err != nil {
			panic("i18n: load embedded locales: " + err.Error())
		}
		std = s
	})
	return std
}

// CodeMessage 返回业务错误码的本地化标题，detail 非空时附在标题之后
func CodeMessage(acceptLanguage string, code int, detail string) string {
	title := defaultSupport().Translate(acceptLanguage, "code."+strconv.Itoa(code), "")
	switch {
	case title == "":
		return detail
	case detail == "":
		return title
	default:
		return title + ": " + detail
	}
}

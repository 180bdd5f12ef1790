package response

import (
	"net/http"

	"ManagerAPI/pkg/errors"
	"ManagerAPI/pkg/i18n"
	"ManagerAPI/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Body 统一响应结构
type Body struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data any    `json:"data"`
}

func Success(c *gin.Context, msg string, data any) {
	c.JSON(http.StatusOK, Body{Code: 0, Msg: msg, Data: data})
}

func Fail(c *gin.Context, msg string, data any) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Body{Code: errors.CodeInvalidInput, Msg: msg, Data: data})
}

// Error 根据错误码写出对应的 HTTP 状态，未知错误统一按 500 处理且不暴露细节。
// 请求带 Accept-Language 时 msg 前加上错误码的本地化标题
func Error(c *gin.Context, err error) {
	code := errors.GetCode(err)
	status := StatusOf(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		msg = "internal server error"
	}
	if lang := c.GetHeader("Accept-Language"); lang != "" {
		detail := msg
		if status == http.StatusInternalServerError {
			detail = ""
		}
		msg = i18n.CodeMessage(lang, code, detail)
		if msg == "" {
			msg = "internal server error"
		}
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, Body{Code: code, Msg: msg})
}

// StatusOf 业务错误码到 HTTP 状态码
func StatusOf(code int) int {
	switch code {
	case errors.CodeInvalidInput:
		return http.StatusBadRequest
	case errors.CodeInvalidReference:
		return http.StatusUnprocessableEntity
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeConflict:
		return http.StatusConflict
	case errors.CodePrecondition:
		return http.StatusPreconditionFailed
	case errors.CodeUnauthorized:
		return http.StatusUnauthorized
	case errors.CodeForbidden:
		return http.StatusForbidden
	case errors.CodeTooManyRequests:
		return http.StatusTooManyRequests
	case errors.CodeEngineFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

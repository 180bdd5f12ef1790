package handlers

import (
	"ManagerAPI/internal/models"
	"ManagerAPI/internal/voiceclone"
	apperr "ManagerAPI/pkg/errors"
	"ManagerAPI/pkg/response"
	"ManagerAPI/pkg/util"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// fail 把模型层的哨兵错误转换成带业务码的错误后写出
func fail(c *gin.Context, err error) {
	response.Error(c, translate(err))
}

func translate(err error) error {
	switch {
	case apperr.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound("record not found")
	case apperr.Is(err, models.ErrUserExists),
		apperr.Is(err, models.ErrDeviceBound),
		apperr.Is(err, models.ErrModelInUse):
		return apperr.Conflict("%s", err.Error())
	case apperr.Is(err, models.ErrInvalidPassword):
		return apperr.WithCode(apperr.CodeUnauthorized, err.Error())
	case apperr.Is(err, models.ErrUserDisabled):
		return apperr.WithCode(apperr.CodeForbidden, err.Error())
	case apperr.Is(err, models.ErrPasswordTooShort),
		apperr.Is(err, models.ErrInvalidMac),
		apperr.Is(err, util.ErrIllegalSQL):
		return apperr.InvalidInput("%s", err.Error())
	}
	return err
}

func caller(c *gin.Context) voiceclone.Caller {
	u := models.CurrentUser(c)
	return voiceclone.Caller{UserID: u.ID, Username: u.Username, SuperAdmin: u.SuperAdmin}
}

// pageParams 读取 page/limit/orderField/order，orderField 必须出现在 allowed 中
func pageParams(c *gin.Context, allowed map[string]string) (util.PageParams, error) {
	p := util.ParsePage(c.Query("page"), c.Query("limit"))
	p, err := p.WithOrder(c.Query("orderField"), c.Query("order"), allowed)
	if err != nil {
		return p, apperr.InvalidInput("%s", err.Error())
	}
	return p, nil
}

func pageOf[T any](list []T, total int64) *util.PageData[T] {
	if list == nil {
		list = []T{}
	}
	return &util.PageData[T]{Total: total, List: list}
}

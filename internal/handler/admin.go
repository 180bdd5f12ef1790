package handlers

import (
	"ManagerAPI/internal/models"
	apperr "ManagerAPI/pkg/errors"
	"ManagerAPI/pkg/middleware"
	"ManagerAPI/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
)

var userOrderFields = map[string]string{
	"createDate": "create_date",
	"username":   "username",
}

func (h *Handlers) handleListUsers(c *gin.Context) {
	p, err := pageParams(c, userOrderFields)
	if err != nil {
		fail(c, err)
		return
	}
	users, total, err := models.ListUsers(h.db, c.Query("username"), p.Offset(), p.Limit, p.OrderClause("create_date DESC"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "success", pageOf(users, total))
}

// targetUser 解析路径中的用户 ID，不允许操作自己
func targetUser(c *gin.Context) (int64, error) {
	id := cast.ToInt64(c.Param("id"))
	if id <= 0 {
		return 0, apperr.InvalidInput("invalid user id")
	}
	if id == models.CurrentUser(c).ID {
		return 0, apperr.Conflict("cannot modify the current user")
	}
	return id, nil
}

func (h *Handlers) handleUpdateUserStatus(c *gin.Context) {
	id, err := targetUser(c)
	if err != nil {
		fail(c, err)
		return
	}
	var form struct {
		Status *int `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	if *form.Status != models.UserStatusNormal && *form.Status != models.UserStatusDisabled {
		response.Fail(c, "invalid status", nil)
		return
	}
	if _, err := models.GetUserByID(h.db, id); err != nil {
		fail(c, err)
		return
	}
	if err := models.UpdateUserStatus(h.db, models.CurrentUser(c).ID, id, *form.Status); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "status updated", nil)
}

func (h *Handlers) handleResetPassword(c *gin.Context) {
	id := cast.ToInt64(c.Param("id"))
	var form struct {
		Password string `json:"password" binding:"required"`
	}
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	if _, err := models.GetUserByID(h.db, id); err != nil {
		fail(c, err)
		return
	}
	if err := models.ResetPassword(h.db, models.CurrentUser(c).ID, id, form.Password); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "password reset", nil)
}

func (h *Handlers) handleDeleteUser(c *gin.Context) {
	id, err := targetUser(c)
	if err != nil {
		fail(c, err)
		return
	}
	if err := models.DeleteUser(h.db, id); err != nil {
		fail(c, err)
		return
	}
	if h.names != nil {
		h.names.InvalidateUser(c.Request.Context(), id)
	}
	response.Success(c, "user deleted", nil)
}

func (h *Handlers) handleListOperationLogs(c *gin.Context) {
	p, err := pageParams(c, nil)
	if err != nil {
		fail(c, err)
		return
	}
	logs, total, err := middleware.ListOperationLogs(h.db, cast.ToInt64(c.Query("userId")), p.Offset(), p.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "success", pageOf(logs, total))
}

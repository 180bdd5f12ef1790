package handlers

import (
	"ManagerAPI/internal/models"
	"ManagerAPI/pkg/logger"
	"ManagerAPI/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type loginForm struct {
	Username string `json:"username" binding:"required,max=50"`
	Password string `json:"password" binding:"required"`
}

type changePasswordForm struct {
	Password    string `json:"password" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

// handleUserRegister 注册，第一个注册的用户成为超级管理员
func (h *Handlers) handleUserRegister(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	user, err := models.CreateUser(h.db, form.Username, form.Password)
	if err != nil {
		fail(c, err)
		return
	}
	logger.Info("user registered", zap.Int64("userId", user.ID), zap.String("username", user.Username))
	response.Success(c, "register success", user)
}

func (h *Handlers) handleUserLogin(c *gin.Context) {
	var form loginForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	user, err := models.Authenticate(h.db, form.Username, form.Password)
	if err != nil {
		logger.Warn("login failed", zap.String("username", form.Username), zap.Error(err))
		fail(c, err)
		return
	}
	if err := models.Login(c, user); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "login success", user)
}

func (h *Handlers) handleUserLogout(c *gin.Context) {
	if err := models.Logout(c); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "logout success", nil)
}

func (h *Handlers) handleUserInfo(c *gin.Context) {
	response.Success(c, "success", models.CurrentUser(c))
}

func (h *Handlers) handleChangePassword(c *gin.Context) {
	var form changePasswordForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	if err := models.ChangePassword(h.db, models.CurrentUser(c), form.Password, form.NewPassword); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "password changed", nil)
}

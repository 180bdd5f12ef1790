package models

import (
	apperr "ManagerAPI/pkg/errors"
	"ManagerAPI/pkg/response"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const (
	DbField          = "_manager_db"
	UserField        = "_manager_user"
	SessionUserIDKey = "user_id"
)

// InjectDB 把数据库连接放入请求上下文
func InjectDB(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(DbField, db)
		c.Next()
	}
}

// Login 把用户写入会话
func Login(c *gin.Context, user *User) error {
	session := sessions.Default(c)
	session.Set(SessionUserIDKey, user.ID)
	return session.Save()
}

// Logout 清除会话
func Logout(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	return session.Save()
}

// CurrentUser 获取当前登录用户，只在 AuthRequired 之后调用
func CurrentUser(c *gin.Context) *User {
	if v, ok := c.Get(UserField); ok {
		if u, ok := v.(*User); ok {
			return u
		}
	}
	return nil
}

// AuthRequired 从会话中恢复用户，未登录或被禁用时返回 401
func AuthRequired(c *gin.Context) {
	session := sessions.Default(c)
	raw := session.Get(SessionUserIDKey)
	userID, ok := raw.(int64)
	if !ok || userID == 0 {
		response.Error(c, apperr.WithCode(apperr.CodeUnauthorized, "login required"))
		return
	}
	db := c.MustGet(DbField).(*gorm.DB)
	user, err := GetUserByID(db, userID)
	if err != nil || !user.Enabled() {
		response.Error(c, apperr.WithCode(apperr.CodeUnauthorized, "login required"))
		return
	}
	c.Set(UserField, user)
	c.Set("user_id", user.ID)
	c.Set("username", user.Username)
	c.Next()
}

// AdminRequired 仅超级管理员可访问，需放在 AuthRequired 之后
func AdminRequired(c *gin.Context) {
	user := CurrentUser(c)
	if user == nil || !user.SuperAdmin {
		response.Error(c, apperr.WithCode(apperr.CodeForbidden, "permission denied"))
		return
	}
	c.Next()
}

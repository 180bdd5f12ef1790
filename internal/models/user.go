package models

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	UserStatusDisabled = 0
	UserStatusNormal   = 1
)

var (
	ErrUserExists       = errors.New("username already exists")
	ErrInvalidPassword  = errors.New("invalid username or password")
	ErrUserDisabled     = errors.New("user is disabled")
	ErrPasswordTooShort = errors.New("password must be at least 6 characters")
)

// User 系统用户
type User struct {
	ID         int64  `json:"id" gorm:"primaryKey;autoIncrement"`
	Username   string `json:"username" gorm:"size:50;uniqueIndex"`
	Password   string `json:"-" gorm:"size:100"`
	SuperAdmin bool   `json:"superAdmin"`
	Status     int    `json:"status" gorm:"default:1"`
	Audit
}

func (User) TableName() string { return "sys_user" }

// Enabled 用户是否可登录
func (u *User) Enabled() bool {
	return u.Status == UserStatusNormal
}

// SetPassword 以 bcrypt 保存密码
func (u *User) SetPassword(plain string) error {
	if len(plain) < 6 {
		return ErrPasswordTooShort
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.Password = string(hash)
	return nil
}

// CheckPassword 校验明文密码
func (u *User) CheckPassword(plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(plain)) == nil
}

// CreateUser 注册用户，系统中的第一个用户自动成为超级管理员
func CreateUser(db *gorm.DB, username, password string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("username is empty")
	}
	var count int64
	if err := db.Model(&User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUserExists
	}
	var total int64
	if err := db.Model(&User{}).Count(&total).Error; err != nil {
		return nil, err
	}

	user := &User{Username: username, Status: UserStatusNormal, SuperAdmin: total == 0}
	if err := user.SetPassword(password); err != nil {
		return nil, err
	}
	user.StampCreate(0, time.Now())
	if err := db.Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID 按 ID 获取用户
func GetUserByID(db *gorm.DB, id int64) (*User, error) {
	var user User
	if err := db.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByUsername 按用户名获取用户
func GetUserByUsername(db *gorm.DB, username string) (*User, error) {
	var user User
	if err := db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticate 校验用户名密码
func Authenticate(db *gorm.DB, username, password string) (*User, error) {
	user, err := GetUserByUsername(db, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidPassword
		}
		return nil, err
	}
	if !user.CheckPassword(password) {
		return nil, ErrInvalidPassword
	}
	if !user.Enabled() {
		return nil, ErrUserDisabled
	}
	return user, nil
}

// ChangePassword 修改密码，需要校验旧密码
func ChangePassword(db *gorm.DB, user *User, oldPassword, newPassword string) error {
	if !user.CheckPassword(oldPassword) {
		return ErrInvalidPassword
	}
	return ResetPassword(db, user.ID, user.ID, newPassword)
}

// ResetPassword 管理员重置密码
func ResetPassword(db *gorm.DB, operator, userID int64, newPassword string) error {
	var u User
	if err := u.SetPassword(newPassword); err != nil {
		return err
	}
	return db.Model(&User{}).Where("id = ?", userID).
		Updates(UpdateColumns(operator, time.Now(), map[string]any{"password": u.Password})).Error
}

// UpdateUserStatus 启用或禁用用户
func UpdateUserStatus(db *gorm.DB, operator, userID int64, status int) error {
	return db.Model(&User{}).Where("id = ?", userID).
		Updates(UpdateColumns(operator, time.Now(), map[string]any{"status": status})).Error
}

// ListUsers 分页查询用户，keyword 按用户名模糊匹配
func ListUsers(db *gorm.DB, keyword string, offset, limit int, order string) ([]User, int64, error) {
	q := db.Model(&User{})
	if keyword != "" {
		q = q.Where("username LIKE ?", "%"+keyword+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var users []User
	if err := q.Order(order).Offset(offset).Limit(limit).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

// DeleteUser 删除用户及其设备绑定
func DeleteUser(db *gorm.DB, userID int64) error {
	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&Device{}).Error; err != nil {
			return err
		}
		return tx.Delete(&User{}, userID).Error
	})
}

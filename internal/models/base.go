package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Audit 创建者、更新者及时间，由调用方显式填充
type Audit struct {
	Creator    int64     `json:"creator"`
	CreateDate time.Time `json:"createDate" gorm:"index"`
	Updater    int64     `json:"updater"`
	UpdateDate time.Time `json:"updateDate"`
}

// StampCreate 新建时填充创建和更新字段
func (a *Audit) StampCreate(userID int64, now time.Time) {
	a.Creator = userID
	a.CreateDate = now
	a.Updater = userID
	a.UpdateDate = now
}

// StampUpdate 更新时填充更新字段
func (a *Audit) StampUpdate(userID int64, now time.Time) {
	a.Updater = userID
	a.UpdateDate = now
}

// UpdateColumns 返回用于 Updates(map) 的更新字段，fields 会被原地补充
func UpdateColumns(userID int64, now time.Time, fields map[string]any) map[string]any {
	if fields == nil {
		fields = make(map[string]any, 2)
	}
	fields["updater"] = userID
	fields["update_date"] = now
	return fields
}

// NewID 生成 32 位无连字符的主键
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Migrate 自动建表
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&User{},
		&ModelConfig{},
		&TtsVoice{},
		&Device{},
		&VoiceClone{},
	)
}

package models

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	ErrDeviceBound    = errors.New("device already bound")
	ErrInvalidMac     = errors.New("invalid mac address")
	macAddressPattern = regexp.MustCompile(`^([0-9a-f]{2}:){5}[0-9a-f]{2}$`)
)

// Device 用户绑定的终端设备
type Device struct {
	ID              string     `json:"id" gorm:"primaryKey;size:32"`
	UserID          int64      `json:"userId" gorm:"index"`
	MacAddress      string     `json:"macAddress" gorm:"size:50;uniqueIndex"`
	Alias           string     `json:"alias" gorm:"size:64"`
	Board           string     `json:"board" gorm:"size:50"`
	AppVersion      string     `json:"appVersion" gorm:"size:20"`
	AutoUpdate      bool       `json:"autoUpdate"`
	LastConnectedAt *time.Time `json:"lastConnectedAt"`
	Audit
}

func (Device) TableName() string { return "ai_device" }

// NormalizeMac 统一为小写冒号分隔格式
func NormalizeMac(mac string) (string, error) {
	mac = strings.ToLower(strings.TrimSpace(strings.ReplaceAll(mac, "-", ":")))
	if !macAddressPattern.MatchString(mac) {
		return "", ErrInvalidMac
	}
	return mac, nil
}

// BindDevice 绑定设备到用户
func BindDevice(db *gorm.DB, userID int64, mac, board, appVersion string) (*Device, error) {
	mac, err := NormalizeMac(mac)
	if err != nil {
		return nil, err
	}
	var count int64
	if err := db.Model(&Device{}).Where("mac_address = ?", mac).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrDeviceBound
	}
	d := &Device{
		ID:         NewID(),
		UserID:     userID,
		MacAddress: mac,
		Board:      board,
		AppVersion: appVersion,
		AutoUpdate: true,
	}
	d.StampCreate(userID, time.Now())
	if err := db.Create(d).Error; err != nil {
		return nil, err
	}
	return d, nil
}

// GetUserDevices 查询用户的所有设备
func GetUserDevices(db *gorm.DB, userID int64) ([]Device, error) {
	var list []Device
	if err := db.Where("user_id = ?", userID).Order("create_date DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	return list, nil
}

// UpdateDeviceAlias 修改设备别名，只能修改自己的设备
func UpdateDeviceAlias(db *gorm.DB, userID int64, id, alias string) error {
	res := db.Model(&Device{}).Where("id = ? AND user_id = ?", id, userID).
		Updates(UpdateColumns(userID, time.Now(), map[string]any{"alias": alias}))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UnbindDevice 解绑设备
func UnbindDevice(db *gorm.DB, userID int64, id string) error {
	res := db.Where("id = ? AND user_id = ?", id, userID).Delete(&Device{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// 模型类型
const (
	ModelTypeASR    = "ASR"
	ModelTypeVAD    = "VAD"
	ModelTypeLLM    = "LLM"
	ModelTypeTTS    = "TTS"
	ModelTypeMemory = "Memory"
	ModelTypeIntent = "Intent"
)

var ErrModelInUse = errors.New("model config is referenced by voice clones")

// ModelConfig AI 模型配置
type ModelConfig struct {
	ID           string `json:"id" gorm:"primaryKey;size:32"`
	ModelType    string `json:"modelType" gorm:"size:20;index"`
	ModelCode    string `json:"modelCode" gorm:"size:50"`
	ModelName    string `json:"modelName" gorm:"size:50"`
	IsDefault    bool   `json:"isDefault"`
	IsEnabled    bool   `json:"isEnabled"`
	CloneEnabled bool   `json:"cloneEnabled"` // 是否支持声音克隆
	ConfigJSON   string `json:"configJson" gorm:"type:text"`
	DocLink      string `json:"docLink" gorm:"size:200"`
	Remark       string `json:"remark" gorm:"size:255"`
	Sort         int    `json:"sort"`
	Audit
}

func (ModelConfig) TableName() string { return "ai_model_config" }

// CanClone 已启用且支持克隆的 TTS 模型才能作为克隆模型
func (m *ModelConfig) CanClone() bool {
	return m.ModelType == ModelTypeTTS && m.IsEnabled && m.CloneEnabled
}

// CreateModelConfig 新增模型配置
func CreateModelConfig(db *gorm.DB, operator int64, m *ModelConfig) error {
	if m.ID == "" {
		m.ID = NewID()
	}
	m.StampCreate(operator, time.Now())
	return db.Create(m).Error
}

// GetModelConfig 获取单个模型配置
func GetModelConfig(db *gorm.DB, id string) (*ModelConfig, error) {
	var m ModelConfig
	if err := db.First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// UpdateModelConfig 更新模型配置的可编辑字段
func UpdateModelConfig(db *gorm.DB, operator int64, id string, m *ModelConfig) error {
	fields := map[string]any{
		"model_code":    m.ModelCode,
		"model_name":    m.ModelName,
		"is_default":    m.IsDefault,
		"is_enabled":    m.IsEnabled,
		"clone_enabled": m.CloneEnabled,
		"config_json":   m.ConfigJSON,
		"doc_link":      m.DocLink,
		"remark":        m.Remark,
		"sort":          m.Sort,
	}
	res := db.Model(&ModelConfig{}).Where("id = ?", id).Updates(UpdateColumns(operator, time.Now(), fields))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetModelEnabled 启用或停用模型
func SetModelEnabled(db *gorm.DB, operator int64, id string, enabled bool) error {
	res := db.Model(&ModelConfig{}).Where("id = ?", id).
		Updates(UpdateColumns(operator, time.Now(), map[string]any{"is_enabled": enabled}))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListModelConfigs 按类型分页查询，modelName 模糊匹配
func ListModelConfigs(db *gorm.DB, modelType, modelName string, offset, limit int, order string) ([]ModelConfig, int64, error) {
	q := db.Model(&ModelConfig{})
	if modelType != "" {
		q = q.Where("model_type = ?", modelType)
	}
	if modelName != "" {
		q = q.Where("model_name LIKE ?", "%"+modelName+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []ModelConfig
	if err := q.Order(order).Offset(offset).Limit(limit).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// DeleteModelConfig 删除模型配置及其音色，正在被克隆记录使用的模型不允许删除
func DeleteModelConfig(db *gorm.DB, id string) error {
	return db.Transaction(func(tx *gorm.DB) error {
		var inUse int64
		if err := tx.Model(&VoiceClone{}).Where("model_id = ? AND train_status = ?", id, TrainStatusTraining).Count(&inUse).Error; err != nil {
			return err
		}
		if inUse > 0 {
			return ErrModelInUse
		}
		if err := tx.Where("tts_model_id = ?", id).Delete(&TtsVoice{}).Error; err != nil {
			return err
		}
		return tx.Delete(&ModelConfig{}, "id = ?", id).Error
	})
}

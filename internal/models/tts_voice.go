package models

import (
	"time"

	"gorm.io/gorm"
)

// TtsVoice TTS 音色
type TtsVoice struct {
	ID             string `json:"id" gorm:"primaryKey;size:32"`
	TtsModelID     string `json:"ttsModelId" gorm:"size:32;index"`
	Name           string `json:"name" gorm:"size:20"`
	TtsVoice       string `json:"ttsVoice" gorm:"size:50"` // 音色编码
	Languages      string `json:"languages" gorm:"size:50"`
	VoiceDemo      string `json:"voiceDemo" gorm:"size:500"`
	Remark         string `json:"remark" gorm:"size:255"`
	ReferenceAudio string `json:"referenceAudio" gorm:"size:500"`
	ReferenceText  string `json:"referenceText" gorm:"size:500"`
	Sort           int    `json:"sort"`
	Audit
}

func (TtsVoice) TableName() string { return "ai_tts_voice" }

// CreateTtsVoice 新增音色
func CreateTtsVoice(db *gorm.DB, operator int64, v *TtsVoice) error {
	if v.ID == "" {
		v.ID = NewID()
	}
	v.StampCreate(operator, time.Now())
	return db.Create(v).Error
}

// UpdateTtsVoice 更新音色
func UpdateTtsVoice(db *gorm.DB, operator int64, id string, v *TtsVoice) error {
	fields := map[string]any{
		"name":            v.Name,
		"tts_voice":       v.TtsVoice,
		"languages":       v.Languages,
		"voice_demo":      v.VoiceDemo,
		"remark":          v.Remark,
		"reference_audio": v.ReferenceAudio,
		"reference_text":  v.ReferenceText,
		"sort":            v.Sort,
	}
	res := db.Model(&TtsVoice{}).Where("id = ?", id).Updates(UpdateColumns(operator, time.Now(), fields))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListTtsVoices 分页查询某个模型下的音色
func ListTtsVoices(db *gorm.DB, ttsModelID, name string, offset, limit int) ([]TtsVoice, int64, error) {
	q := db.Model(&TtsVoice{}).Where("tts_model_id = ?", ttsModelID)
	if name != "" {
		q = q.Where("name LIKE ?", "%"+name+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []TtsVoice
	if err := q.Order("sort ASC, create_date DESC").Offset(offset).Limit(limit).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// DeleteTtsVoices 批量删除音色
func DeleteTtsVoices(db *gorm.DB, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return db.Where("id IN ?", ids).Delete(&TtsVoice{}).Error
}

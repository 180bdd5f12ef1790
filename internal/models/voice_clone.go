package models

import "time"

// 训练状态，数值与库中存储一致
const (
	TrainStatusPending  = 0
	TrainStatusTraining = 1
	TrainStatusSuccess  = 2
	TrainStatusFailed   = 3
)

// TrainErrorMaxLen train_error 列长度
const TrainErrorMaxLen = 255

// VoiceClone 声音克隆记录
type VoiceClone struct {
	ID             string     `json:"id" gorm:"primaryKey;size:32"`
	Name           string     `json:"name" gorm:"size:64"`
	ModelID        string     `json:"modelId" gorm:"size:32;index:idx_ai_voice_clone_model_user"`
	VoiceID        string     `json:"voiceId" gorm:"size:64;index"`
	UserID         int64      `json:"userId" gorm:"index;index:idx_ai_voice_clone_model_user"`
	TrainStatus    int        `json:"trainStatus" gorm:"default:0"`
	TrainError     string     `json:"trainError" gorm:"size:255"`
	Attempt        string     `json:"-" gorm:"column:attempt_token;size:36"` // 当前训练尝试的令牌
	TrainStartedAt *time.Time `json:"trainStartedAt"`
	Audit
}

func (VoiceClone) TableName() string { return "ai_voice_clone" }

// StatusName 训练状态的文字描述
func StatusName(status int) string {
	switch status {
	case TrainStatusPending:
		return "PENDING"
	case TrainStatusTraining:
		return "TRAINING"
	case TrainStatusSuccess:
		return "SUCCESS"
	case TrainStatusFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

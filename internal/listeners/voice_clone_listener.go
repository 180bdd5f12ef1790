package listeners

import (
	"strconv"

	"ManagerAPI/internal/models"
	"ManagerAPI/internal/voiceclone"
	"ManagerAPI/pkg/logger"
	"ManagerAPI/pkg/metrics"
	"ManagerAPI/pkg/sse"

	"go.uber.org/zap"
)

const (
	EventVoiceClone = "voiceClone"
	AdminGroup      = "admin"
)

// UserGroup 用户的 SSE 分组
func UserGroup(userID int64) string {
	return "user:" + strconv.FormatInt(userID, 10)
}

type statusPayload struct {
	voiceclone.StatusEvent
	StatusName string `json:"trainStatusName"`
}

// InitVoiceCloneListeners 训练状态变更推送给记录所有者和管理员，并记录指标
func InitVoiceCloneListeners(hub *sse.Hub, m *metrics.Metrics) voiceclone.Notifier {
	return voiceclone.NotifierFunc(func(ev voiceclone.StatusEvent) {
		logger.Debug("voice clone status changed",
			zap.String("id", ev.ID),
			zap.String("from", models.StatusName(ev.From)),
			zap.String("to", models.StatusName(ev.To)))

		if m != nil {
			switch {
			case ev.To == models.TrainStatusTraining:
				m.RecordTrainingStarted()
			case ev.From == models.TrainStatusTraining:
				m.RecordTrainingFinished(models.StatusName(ev.To), ev.Duration)
			}
		}

		if hub != nil {
			payload := statusPayload{StatusEvent: ev, StatusName: models.StatusName(ev.To)}
			hub.SendToGroupJSON(UserGroup(ev.UserID), EventVoiceClone, payload)
			hub.SendToGroupJSON(AdminGroup, EventVoiceClone, payload)
		}
	})
}

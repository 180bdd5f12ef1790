package listeners

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ManagerAPI/internal/models"
	"ManagerAPI/internal/voiceclone"
	"ManagerAPI/pkg/metrics"
	"ManagerAPI/pkg/sse"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoiceCloneListener(t *testing.T) {
	hub := sse.NewHub(time.Minute)
	m := metrics.NewMetrics()
	owner := hub.AddClient("owner", UserGroup(7))
	stranger := hub.AddClient("stranger", UserGroup(8))
	admin := hub.AddClient("admin", AdminGroup)
	defer hub.RemoveClient(owner)
	defer hub.RemoveClient(stranger)
	defer hub.RemoveClient(admin)

	n := InitVoiceCloneListeners(hub, m)
	n.OnStatusChange(voiceclone.StatusEvent{ID: "r1", UserID: 7, From: models.TrainStatusPending, To: models.TrainStatusTraining})
	n.OnStatusChange(voiceclone.StatusEvent{
		ID: "r1", UserID: 7,
		From: models.TrainStatusTraining, To: models.TrainStatusSuccess,
		VoiceID: "v1", Duration: 2 * time.Second,
	})

	assert.Len(t, owner.Messages(), 2)
	assert.Len(t, admin.Messages(), 2)
	assert.Empty(t, stranger.Messages())

	first := <-owner.Messages()
	assert.True(t, strings.HasPrefix(first, "event: voiceClone\n"))
	assert.Contains(t, first, `"trainStatusName":"TRAINING"`)
	assert.Contains(t, first, `"id":"r1"`)

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	assert.Contains(t, body, "manager_voice_clone_training_started_total 1")
	assert.Contains(t, body, `manager_voice_clone_training_finished_total{status="SUCCESS"} 1`)
	require.True(t, strings.Contains(body, "manager_voice_clone_training_duration_seconds_count{status=\"SUCCESS\"} 1"))
}

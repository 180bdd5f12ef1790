package handlers

import (
	"ManagerAPI/internal/models"
	"ManagerAPI/pkg/response"

	"github.com/gin-gonic/gin"
)

type ttsVoiceForm struct {
	TtsModelID     string `json:"ttsModelId" binding:"required"`
	Name           string `json:"name" binding:"required,max=20"`
	TtsVoice       string `json:"ttsVoice" binding:"required,max=50"`
	Languages      string `json:"languages" binding:"max=50"`
	VoiceDemo      string `json:"voiceDemo" binding:"max=500"`
	Remark         string `json:"remark" binding:"max=255"`
	ReferenceAudio string `json:"referenceAudio" binding:"max=500"`
	ReferenceText  string `json:"referenceText" binding:"max=500"`
	Sort           int    `json:"sort"`
}

func (f *ttsVoiceForm) toVoice() *models.TtsVoice {
	return &models.TtsVoice{
		TtsModelID:     f.TtsModelID,
		Name:           f.Name,
		TtsVoice:       f.TtsVoice,
		Languages:      f.Languages,
		VoiceDemo:      f.VoiceDemo,
		Remark:         f.Remark,
		ReferenceAudio: f.ReferenceAudio,
		ReferenceText:  f.ReferenceText,
		Sort:           f.Sort,
	}
}

func (h *Handlers) handleListTtsVoices(c *gin.Context) {
	modelID := c.Query("ttsModelId")
	if modelID == "" {
		response.Fail(c, "ttsModelId is required", nil)
		return
	}
	p, err := pageParams(c, nil)
	if err != nil {
		fail(c, err)
		return
	}
	list, total, err := models.ListTtsVoices(h.db, modelID, c.Query("name"), p.Offset(), p.Limit)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "success", pageOf(list, total))
}

func (h *Handlers) handleCreateTtsVoice(c *gin.Context) {
	var form ttsVoiceForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	if _, err := models.GetModelConfig(h.db, form.TtsModelID); err != nil {
		fail(c, err)
		return
	}
	v := form.toVoice()
	if err := models.CreateTtsVoice(h.db, models.CurrentUser(c).ID, v); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "voice created", v)
}

func (h *Handlers) handleUpdateTtsVoice(c *gin.Context) {
	var form ttsVoiceForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	if err := models.UpdateTtsVoice(h.db, models.CurrentUser(c).ID, c.Param("id"), form.toVoice()); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "voice updated", nil)
}

func (h *Handlers) handleDeleteTtsVoices(c *gin.Context) {
	var ids []string
	if err := c.ShouldBindJSON(&ids); err != nil || len(ids) == 0 {
		response.Fail(c, "ids is required", nil)
		return
	}
	if err := models.DeleteTtsVoices(h.db, ids); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "voice deleted", nil)
}

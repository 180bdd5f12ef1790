package handlers

import (
	"strings"

	"ManagerAPI/internal/models"
	"ManagerAPI/pkg/response"

	"github.com/gin-gonic/gin"
)

var modelOrderFields = map[string]string{
	"sort":       "sort",
	"createDate": "create_date",
	"modelName":  "model_name",
}

var modelTypes = map[string]bool{
	models.ModelTypeASR:    true,
	models.ModelTypeVAD:    true,
	models.ModelTypeLLM:    true,
	models.ModelTypeTTS:    true,
	models.ModelTypeMemory: true,
	models.ModelTypeIntent: true,
}

type modelForm struct {
	ModelType    string `json:"modelType"`
	ModelCode    string `json:"modelCode" binding:"required,max=50"`
	ModelName    string `json:"modelName" binding:"required,max=50"`
	IsDefault    bool   `json:"isDefault"`
	IsEnabled    bool   `json:"isEnabled"`
	CloneEnabled bool   `json:"cloneEnabled"`
	ConfigJSON   string `json:"configJson"`
	DocLink      string `json:"docLink" binding:"max=200"`
	Remark       string `json:"remark" binding:"max=255"`
	Sort         int    `json:"sort"`
}

func (f *modelForm) toModel() *models.ModelConfig {
	return &models.ModelConfig{
		ModelType:    f.ModelType,
		ModelCode:    strings.TrimSpace(f.ModelCode),
		ModelName:    strings.TrimSpace(f.ModelName),
		IsDefault:    f.IsDefault,
		IsEnabled:    f.IsEnabled,
		CloneEnabled: f.CloneEnabled,
		ConfigJSON:   f.ConfigJSON,
		DocLink:      f.DocLink,
		Remark:       f.Remark,
		Sort:         f.Sort,
	}
}

func (h *Handlers) handleListModels(c *gin.Context) {
	p, err := pageParams(c, modelOrderFields)
	if err != nil {
		fail(c, err)
		return
	}
	list, total, err := models.ListModelConfigs(h.db, c.Query("modelType"), c.Query("modelName"),
		p.Offset(), p.Limit, p.OrderClause("sort ASC, create_date DESC"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "success", pageOf(list, total))
}

func (h *Handlers) handleGetModel(c *gin.Context) {
	m, err := models.GetModelConfig(h.db, c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "success", m)
}

func (h *Handlers) handleCreateModel(c *gin.Context) {
	var form modelForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	if !modelTypes[form.ModelType] {
		response.Fail(c, "invalid modelType", nil)
		return
	}
	m := form.toModel()
	if err := models.CreateModelConfig(h.db, models.CurrentUser(c).ID, m); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "model created", m)
}

func (h *Handlers) handleUpdateModel(c *gin.Context) {
	var form modelForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	id := c.Param("id")
	if err := models.UpdateModelConfig(h.db, models.CurrentUser(c).ID, id, form.toModel()); err != nil {
		fail(c, err)
		return
	}
	h.invalidateModel(c, id)
	response.Success(c, "model updated", nil)
}

func (h *Handlers) handleEnableModel(c *gin.Context) {
	var form struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	if err := models.SetModelEnabled(h.db, models.CurrentUser(c).ID, c.Param("id"), form.Enabled); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "model updated", nil)
}

func (h *Handlers) handleDeleteModel(c *gin.Context) {
	id := c.Param("id")
	if _, err := models.GetModelConfig(h.db, id); err != nil {
		fail(c, err)
		return
	}
	if err := models.DeleteModelConfig(h.db, id); err != nil {
		fail(c, err)
		return
	}
	h.invalidateModel(c, id)
	response.Success(c, "model deleted", nil)
}

// 模型名称被克隆详情缓存，修改或删除后需要失效
func (h *Handlers) invalidateModel(c *gin.Context, id string) {
	if h.names != nil {
		h.names.InvalidateModel(c.Request.Context(), id)
	}
}

package handlers

import (
	"ManagerAPI/internal/models"
	"ManagerAPI/pkg/response"

	"github.com/gin-gonic/gin"
)

type bindDeviceForm struct {
	MacAddress string `json:"macAddress" binding:"required"`
	Board      string `json:"board" binding:"max=50"`
	AppVersion string `json:"appVersion" binding:"max=20"`
}

func (h *Handlers) handleBindDevice(c *gin.Context) {
	var form bindDeviceForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	d, err := models.BindDevice(h.db, models.CurrentUser(c).ID, form.MacAddress, form.Board, form.AppVersion)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "device bound", d)
}

func (h *Handlers) handleListDevices(c *gin.Context) {
	list, err := models.GetUserDevices(h.db, models.CurrentUser(c).ID)
	if err != nil {
		fail(c, err)
		return
	}
	if list == nil {
		list = []models.Device{}
	}
	response.Success(c, "success", list)
}

func (h *Handlers) handleUpdateDeviceAlias(c *gin.Context) {
	var form struct {
		Alias string `json:"alias" binding:"max=64"`
	}
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	if err := models.UpdateDeviceAlias(h.db, models.CurrentUser(c).ID, c.Param("id"), form.Alias); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "device updated", nil)
}

func (h *Handlers) handleUnbindDevice(c *gin.Context) {
	var form struct {
		DeviceID string `json:"deviceId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	if err := models.UnbindDevice(h.db, models.CurrentUser(c).ID, form.DeviceID); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "device unbound", nil)
}

package handlers

import (
	"io"
	"net/http"
	"strings"

	"ManagerAPI/internal/listeners"
	"ManagerAPI/internal/voiceclone"
	apperr "ManagerAPI/pkg/errors"
	"ManagerAPI/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/spf13/cast"
)

type voiceCloneForm struct {
	Name    string `json:"name" binding:"required"`
	ModelID string `json:"modelId" binding:"required"`
	UserID  int64  `json:"userId"`
}

// authorizeClone 只有记录归属者和超级管理员可以操作
func (h *Handlers) authorizeClone(c *gin.Context, id string) error {
	owner, err := h.clones.Owner(c.Request.Context(), id)
	if err != nil {
		return err
	}
	who := caller(c)
	if !who.SuperAdmin && owner != who.UserID {
		return apperr.WithCode(apperr.CodeForbidden, "permission denied")
	}
	return nil
}

func (h *Handlers) handleCreateVoiceClone(c *gin.Context) {
	var form voiceCloneForm
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	who := caller(c)
	// 只有超级管理员可以替其他用户创建
	if !who.SuperAdmin {
		form.UserID = 0
	}
	rec, err := h.clones.Create(c.Request.Context(), who, voiceclone.CreateRequest{
		Name:    form.Name,
		ModelID: form.ModelID,
		UserID:  form.UserID,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "voice clone created", rec)
}

func (h *Handlers) handleListVoiceClones(c *gin.Context) {
	p, err := pageParams(c, nil)
	if err != nil {
		fail(c, err)
		return
	}
	who := caller(c)
	f := voiceclone.ListFilter{
		UserID:   who.UserID,
		ModelID:  c.Query("modelId"),
		Name:     c.Query("name"),
		Page:     p.Page,
		PageSize: p.Limit,
	}
	if who.SuperAdmin {
		f.UserID = cast.ToInt64(c.Query("userId"))
	}
	page, err := h.clones.List(c.Request.Context(), f)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "success", page)
}

func (h *Handlers) handleGetVoiceClone(c *gin.Context) {
	id := c.Param("id")
	if err := h.authorizeClone(c, id); err != nil {
		fail(c, err)
		return
	}
	d, err := h.clones.GetDetail(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "success", d)
}

func (h *Handlers) handleRenameVoiceClone(c *gin.Context) {
	var form struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&form); err != nil {
		response.Fail(c, err.Error(), nil)
		return
	}
	id := c.Param("id")
	if err := h.authorizeClone(c, id); err != nil {
		fail(c, err)
		return
	}
	if err := h.clones.Rename(c.Request.Context(), caller(c), id, form.Name); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "voice clone renamed", nil)
}

// handleUploadVoiceCloneAudio 支持 multipart 的 file 字段或直接以请求体上传
func (h *Handlers) handleUploadVoiceCloneAudio(c *gin.Context) {
	id := c.Param("id")
	if err := h.authorizeClone(c, id); err != nil {
		fail(c, err)
		return
	}
	audio, err := h.readAudio(c)
	if err != nil {
		fail(c, err)
		return
	}
	if err := h.clones.UploadReferenceAudio(c.Request.Context(), caller(c), id, audio); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "audio uploaded", nil)
}

// readAudio 最多读取上限加一个字节，超限交给服务层判定
func (h *Handlers) readAudio(c *gin.Context) ([]byte, error) {
	limit := h.cfg.Clone.MaxAudioBytes + 1
	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, apperr.InvalidInput("file is required")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, apperr.Wrap(err, "open upload")
		}
		defer f.Close()
		data, err := io.ReadAll(io.LimitReader(f, limit))
		if err != nil {
			return nil, apperr.Wrap(err, "read upload")
		}
		return data, nil
	}
	data, err := io.ReadAll(io.LimitReader(c.Request.Body, limit))
	if err != nil {
		return nil, apperr.InvalidInput("read request body: %v", err)
	}
	return data, nil
}

func (h *Handlers) handleGetVoiceCloneAudio(c *gin.Context) {
	id := c.Param("id")
	if err := h.authorizeClone(c, id); err != nil {
		fail(c, err)
		return
	}
	data, err := h.clones.GetAudio(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}

func (h *Handlers) handleTrainVoiceClone(c *gin.Context) {
	id := c.Param("id")
	if err := h.authorizeClone(c, id); err != nil {
		fail(c, err)
		return
	}
	if _, err := h.clones.StartTraining(c.Request.Context(), caller(c), id); err != nil {
		if apperr.Is(err, voiceclone.ErrClosed) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, response.Body{Code: http.StatusServiceUnavailable, Msg: err.Error()})
			return
		}
		fail(c, err)
		return
	}
	d, err := h.clones.GetDetail(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "training started", d)
}

func (h *Handlers) handleDeleteVoiceClones(c *gin.Context) {
	var ids []string
	if err := c.ShouldBindJSON(&ids); err != nil || len(ids) == 0 {
		response.Fail(c, "ids is required", nil)
		return
	}
	ctx := c.Request.Context()
	who := caller(c)
	if !who.SuperAdmin {
		for _, id := range ids {
			err := h.authorizeClone(c, id)
			if apperr.IsCode(err, apperr.CodeNotFound) {
				continue
			}
			if err != nil {
				fail(c, err)
				return
			}
		}
	}
	n, err := h.clones.Delete(ctx, who, ids)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, "voice clones deleted", gin.H{"deleted": n})
}

// handleVoiceCloneEvents 推送训练状态变化，超级管理员订阅全部记录的事件
func (h *Handlers) handleVoiceCloneEvents(c *gin.Context) {
	who := caller(c)
	group := listeners.UserGroup(who.UserID)
	if who.SuperAdmin {
		group = listeners.AdminGroup
	}
	h.hub.Serve(c, uuid.NewString(), group)
}

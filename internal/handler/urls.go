package handlers

import (
	"net/http"
	"time"

	"ManagerAPI/internal/models"
	"ManagerAPI/internal/voiceclone"
	"ManagerAPI/pkg/config"
	"ManagerAPI/pkg/metrics"
	"ManagerAPI/pkg/middleware"
	"ManagerAPI/pkg/sse"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const sessionName = "manager_session"

type Handlers struct {
	db      *gorm.DB
	cfg     *config.Config
	clones  *voiceclone.Service
	names   *voiceclone.CachedNames
	hub     *sse.Hub
	metrics *metrics.Metrics
	limiter *middleware.RateLimiter
	idem    gin.HandlerFunc
}

// Deps 除 db 和 cfg 以外的依赖，metrics 和 limiter 可以为空
type Deps struct {
	Clones  *voiceclone.Service
	Names   *voiceclone.CachedNames
	Hub     *sse.Hub
	Metrics *metrics.Metrics
	Limiter *middleware.RateLimiter
}

func NewHandlers(db *gorm.DB, cfg *config.Config, deps Deps) *Handlers {
	return &Handlers{
		db:      db,
		cfg:     cfg,
		clones:  deps.Clones,
		names:   deps.Names,
		hub:     deps.Hub,
		metrics: deps.Metrics,
		limiter: deps.Limiter,
		idem:    middleware.IdempotencyMiddleware(middleware.IdempotencyConfig{TTL: 10 * time.Minute}),
	}
}

func (h *Handlers) Register(engine *gin.Engine) {
	if h.metrics != nil {
		engine.GET(h.cfg.MetricsPath, gin.WrapH(h.metrics.Handler()))
	}

	r := engine.Group(h.cfg.APIPrefix)

	store := cookie.NewStore([]byte(h.cfg.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   h.cfg.SecretExpireDays * 24 * 3600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionName, store))
	// Register Global Singleton DB
	r.Use(models.InjectDB(h.db))
	r.Use(middleware.SQLFilter())

	h.registerSystemRoutes(r)
	h.registerUserRoutes(r)
	h.registerAdminRoutes(r)
	h.registerModelRoutes(r)
	h.registerTtsVoiceRoutes(r)
	h.registerDeviceRoutes(r)
	h.registerVoiceCloneRoutes(r)
}

func (h *Handlers) rateLimited() gin.HandlerFunc {
	if h.limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return h.limiter.Middleware()
}

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	system := r.Group("system")
	{
		system.GET("/health", h.HealthCheck)

		system.POST("/rate-limiter/config", models.AuthRequired, models.AdminRequired, h.UpdateRateLimiterConfig)

		system.GET("/operation-logs", models.AuthRequired, models.AdminRequired, h.handleListOperationLogs)
	}
}

// User Module
func (h *Handlers) registerUserRoutes(r *gin.RouterGroup) {
	user := r.Group("user")
	{
		user.POST("/register", h.handleUserRegister)

		user.POST("/login", h.handleUserLogin)

		user.POST("/logout", models.AuthRequired, h.handleUserLogout)

		user.GET("/info", models.AuthRequired, h.handleUserInfo)

		user.PUT("/change-password", models.AuthRequired, middleware.OperationLogMiddleware(h.db), h.handleChangePassword)
	}
}

func (h *Handlers) registerAdminRoutes(r *gin.RouterGroup) {
	admin := r.Group("admin/users")
	admin.Use(models.AuthRequired, models.AdminRequired, middleware.OperationLogMiddleware(h.db))
	{
		admin.GET("", h.handleListUsers)

		admin.PUT("/:id/status", h.handleUpdateUserStatus)

		admin.PUT("/:id/reset-password", h.handleResetPassword)

		admin.DELETE("/:id", h.handleDeleteUser)
	}
}

func (h *Handlers) registerModelRoutes(r *gin.RouterGroup) {
	group := r.Group("models")
	group.Use(models.AuthRequired)
	{
		group.GET("", h.handleListModels)

		group.GET("/:id", h.handleGetModel)

		writes := group.Group("", models.AdminRequired, middleware.OperationLogMiddleware(h.db))

		writes.POST("", h.handleCreateModel)

		writes.PUT("/:id", h.handleUpdateModel)

		writes.PUT("/:id/enable", h.handleEnableModel)

		writes.DELETE("/:id", h.handleDeleteModel)
	}
}

func (h *Handlers) registerTtsVoiceRoutes(r *gin.RouterGroup) {
	group := r.Group("ttsVoice")
	group.Use(models.AuthRequired)
	{
		group.GET("", h.handleListTtsVoices)

		writes := group.Group("", models.AdminRequired, middleware.OperationLogMiddleware(h.db))

		writes.POST("", h.handleCreateTtsVoice)

		writes.PUT("/:id", h.handleUpdateTtsVoice)

		writes.DELETE("", h.handleDeleteTtsVoices)
	}
}

func (h *Handlers) registerDeviceRoutes(r *gin.RouterGroup) {
	group := r.Group("device")
	group.Use(models.AuthRequired, middleware.OperationLogMiddleware(h.db))
	{
		group.POST("/bind", h.handleBindDevice)

		group.GET("/bind", h.handleListDevices)

		group.PUT("/:id", h.handleUpdateDeviceAlias)

		group.POST("/unbind", h.handleUnbindDevice)
	}
}

func (h *Handlers) registerVoiceCloneRoutes(r *gin.RouterGroup) {
	group := r.Group("voiceClone")
	group.Use(models.AuthRequired, middleware.OperationLogMiddleware(h.db))
	{
		group.POST("", h.idem, h.handleCreateVoiceClone)

		group.GET("", h.handleListVoiceClones)

		group.GET("/events", h.handleVoiceCloneEvents)

		group.GET("/:id", h.handleGetVoiceClone)

		group.PUT("/:id/name", h.handleRenameVoiceClone)

		group.POST("/:id/audio", h.rateLimited(), h.handleUploadVoiceCloneAudio)

		group.GET("/:id/audio", h.handleGetVoiceCloneAudio)

		group.POST("/:id/train", h.rateLimited(), h.idem, h.handleTrainVoiceClone)

		group.DELETE("", h.handleDeleteVoiceClones)
	}
}

package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"ManagerAPI/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/mssola/user_agent"
	"github.com/spf13/cast"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OperationLogMiddleware 记录写操作的操作日志，需放在认证中间件之后。
// 写日志失败不影响请求本身。
func OperationLogMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		userAgent := c.GetHeader("User-Agent")
		ua := user_agent.New(userAgent)
		browser, version := ua.Browser()
		device := "Desktop"
		if ua.Mobile() {
			device = "Mobile"
		}
		if ua.Bot() {
			device = "Bot"
		}

		target := c.FullPath()
		if target == "" {
			target = c.Request.URL.Path
		}
		entry := OperationLog{
			UserID:          cast.ToInt64(c.Value("user_id")),
			Username:        cast.ToString(c.Value("username")),
			Action:          c.Request.Method,
			Target:          target,
			Details:         c.Request.URL.RequestURI(),
			Status:          c.Writer.Status(),
			DurationMs:      time.Since(start).Milliseconds(),
			IPAddress:       c.ClientIP(),
			UserAgent:       truncate(userAgent, 255),
			Referer:         truncate(c.GetHeader("Referer"), 255),
			Device:          device,
			Browser:         strings.TrimSpace(browser + " " + version),
			OperatingSystem: ua.OS(),
			RequestMethod:   c.Request.Method,
			CreatedAt:       time.Now(),
		}
		// 请求可能已被取消，日志用独立的 ctx
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := CreateOperationLog(db.WithContext(ctx), &entry); err != nil {
			logger.Warn("record operation log failed", zap.String("target", target), zap.Error(err))
		}
	}
}

// OperationLog 记录用户操作日志
type OperationLog struct {
	ID              int64     `gorm:"primaryKey;autoIncrement;not null" json:"id"`
	UserID          int64     `gorm:"index" json:"userId"`
	Username        string    `gorm:"size:50" json:"username"`
	Action          string    `gorm:"size:10" json:"action"`                 // 请求方法
	Target          string    `gorm:"size:200;index" json:"target"`          // 路由模板
	Details         string    `gorm:"size:500" json:"details"`               // 完整请求 URI
	Status          int       `json:"status"`                                // 响应状态码
	DurationMs      int64     `json:"durationMs"`                            // 处理耗时
	IPAddress       string    `gorm:"size:64" json:"ipAddress"`              // 用户 IP 地址
	UserAgent       string    `gorm:"size:255" json:"userAgent"`             // 用户的浏览器信息
	Referer         string    `gorm:"size:255" json:"referer"`               // 请求来源页面
	Device          string    `gorm:"size:20" json:"device"`                 // Desktop/Mobile/Bot
	Browser         string    `gorm:"size:100" json:"browser"`               // 浏览器及版本
	OperatingSystem string    `gorm:"size:100" json:"operatingSystem"`       // 操作系统
	RequestMethod   string    `gorm:"size:10" json:"requestMethod"`          // HTTP 请求方法
	CreatedAt       time.Time `gorm:"autoCreateTime;index" json:"createdAt"` // 操作时间
}

func (OperationLog) TableName() string { return "sys_operation_log" }

// CreateOperationLog 创建操作日志
func CreateOperationLog(db *gorm.DB, entry *OperationLog) error {
	entry.Details = truncate(entry.Details, 500)
	return db.Create(entry).Error
}

// ListOperationLogs 按时间倒序分页查询，userID 为 0 时不过滤
func ListOperationLogs(db *gorm.DB, userID int64, offset, limit int) ([]OperationLog, int64, error) {
	q := db.Model(&OperationLog{})
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []OperationLog
	if err := q.Order("id DESC").Offset(offset).Limit(limit).Find(&list).Error; err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

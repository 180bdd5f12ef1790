package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ManagerAPI/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const filePrefix = "sys_backup_"

// Backup 定时备份 SQLite 数据库，只保留最近 Keep 份
type Backup struct {
	DB     *gorm.DB
	Driver string
	Dir    string
	Keep   int
	Now    func() time.Time
}

// Run 实现 scheduler.Job
func (b *Backup) Run(ctx context.Context) {
	dst, err := b.Execute(ctx)
	if err != nil {
		logger.Warn("backup failed", zap.Error(err))
		return
	}
	logger.Info("backup completed", zap.String("file", dst))
}

// Execute 根据驱动执行一次备份，返回备份文件路径
func (b *Backup) Execute(ctx context.Context) (string, error) {
	if b.Driver != "sqlite" {
		// mysql/pg 由数据库侧的备份方案负责
		return "", fmt.Errorf("unsupported DB_DRIVER for backup: %s", b.Driver)
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	if err := os.MkdirAll(b.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	dst := filepath.Join(b.Dir, fmt.Sprintf("%s%s.db", filePrefix, now().Format("20060102_150405")))
	if err := BackupSQLiteDatabase(ctx, b.DB, dst); err != nil {
		return "", err
	}
	if err := b.prune(); err != nil {
		logger.Warn("prune old backups failed", zap.Error(err))
	}
	return dst, nil
}

// BackupSQLiteDatabase 使用 VACUUM INTO 生成一致的快照，目标文件必须不存在
func BackupSQLiteDatabase(ctx context.Context, db *gorm.DB, dst string) error {
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("backup file already exists: %s", dst)
	}
	if err := db.WithContext(ctx).Exec("VACUUM INTO ?", dst).Error; err != nil {
		return fmt.Errorf("failed to backup SQLite database: %w", err)
	}
	return nil
}

func (b *Backup) prune() error {
	if b.Keep <= 0 {
		return nil
	}
	entries, err := os.ReadDir(b.Dir)
	if err != nil {
		return err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), filePrefix) {
			files = append(files, e.Name())
		}
	}
	if len(files) <= b.Keep {
		return nil
	}
	// 文件名带时间戳，字典序即时间序
	sort.Strings(files)
	for _, name := range files[:len(files)-b.Keep] {
		if err := os.Remove(filepath.Join(b.Dir, name)); err != nil {
			return err
		}
	}
	return nil
}

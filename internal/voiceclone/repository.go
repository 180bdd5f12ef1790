package voiceclone

import (
	"context"
	"errors"
	"time"

	"ManagerAPI/internal/models"
	apperr "ManagerAPI/pkg/errors"

	"gorm.io/gorm"
)

// ListFilter 列表查询条件，UserID 为 0、ModelID 为空时不过滤
type ListFilter struct {
	UserID   int64
	ModelID  string
	Name     string
	Page     int
	PageSize int
}

// FailFilter 批量置为失败的条件
type FailFilter struct {
	StartedBefore *time.Time
	Exclude       []string // 仍在进行中的 attempt，不能被覆盖
}

// Repository 克隆记录的持久化网关。所有状态迁移都以比较并交换的方式执行，
// 返回 false 表示前置状态不匹配（或记录已删除），没有写入任何数据。
type Repository interface {
	Insert(ctx context.Context, rec *models.VoiceClone) error
	Get(ctx context.Context, id string) (*models.VoiceClone, error)
	UpdateName(ctx context.Context, id, name string, updater int64, now time.Time) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, f ListFilter) ([]models.VoiceClone, int64, error)

	BeginTraining(ctx context.Context, id, attempt string, updater int64, now time.Time) (bool, error)
	CompleteTraining(ctx context.Context, id, attempt string, status int, voiceID, trainErr string, now time.Time) (bool, error)
	ResetToPending(ctx context.Context, id string, updater int64, now time.Time) (bool, error)
	FailTraining(ctx context.Context, f FailFilter, trainErr string, now time.Time) (int64, error)

	ModelConfig(ctx context.Context, id string) (*models.ModelConfig, error)
	NameSource
}

// NameSource 展示名查询，引用不存在时返回空字符串而不是错误
type NameSource interface {
	ModelName(ctx context.Context, modelID string) (string, error)
	Username(ctx context.Context, userID int64) (string, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewGormRepository 基于 gorm 的 Repository 实现
func NewGormRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Insert(ctx context.Context, rec *models.VoiceClone) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *gormRepository) Get(ctx context.Context, id string) (*models.VoiceClone, error) {
	var rec models.VoiceClone
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("voice clone %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *gormRepository) UpdateName(ctx context.Context, id, name string, updater int64, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.VoiceClone{}).Where("id = ?", id).
		Updates(models.UpdateColumns(updater, now, map[string]any{"name": name}))
	return res.RowsAffected == 1, res.Error
}

func (r *gormRepository) Delete(ctx context.Context, id string) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.VoiceClone{})
	return res.RowsAffected == 1, res.Error
}

// List 按创建时间倒序，id 作为第二排序键保证分页稳定
func (r *gormRepository) List(ctx context.Context, f ListFilter) ([]models.VoiceClone, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.VoiceClone{})
	if f.UserID != 0 {
		q = q.Where("user_id = ?", f.UserID)
	}
	if f.ModelID != "" {
		q = q.Where("model_id = ?", f.ModelID)
	}
	if f.Name != "" {
		q = q.Where("name LIKE ?", "%"+f.Name+"%")
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var list []models.VoiceClone
	err := q.Order("create_date DESC").Order("id DESC").
		Offset((f.Page - 1) * f.PageSize).Limit(f.PageSize).
		Find(&list).Error
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// BeginTraining PENDING/FAILED -> TRAINING，同时清空上一次的结果
func (r *gormRepository) BeginTraining(ctx context.Context, id, attempt string, updater int64, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.VoiceClone{}).
		Where("id = ? AND train_status IN ?", id, []int{models.TrainStatusPending, models.TrainStatusFailed}).
		Updates(models.UpdateColumns(updater, now, map[string]any{
			"train_status":     models.TrainStatusTraining,
			"attempt_token":    attempt,
			"train_error":      "",
			"voice_id":         "",
			"train_started_at": now,
		}))
	return res.RowsAffected == 1, res.Error
}

// CompleteTraining TRAINING -> SUCCESS/FAILED，只对当前 attempt 生效
func (r *gormRepository) CompleteTraining(ctx context.Context, id, attempt string, status int, voiceID, trainErr string, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.VoiceClone{}).
		Where("id = ? AND train_status = ? AND attempt_token = ?", id, models.TrainStatusTraining, attempt).
		Updates(map[string]any{
			"train_status": status,
			"voice_id":     voiceID,
			"train_error":  trainErr,
			"update_date":  now,
		})
	return res.RowsAffected == 1, res.Error
}

// ResetToPending SUCCESS/FAILED -> PENDING，新的参考音频使旧结果失效
func (r *gormRepository) ResetToPending(ctx context.Context, id string, updater int64, now time.Time) (bool, error) {
	res := r.db.WithContext(ctx).Model(&models.VoiceClone{}).
		Where("id = ? AND train_status IN ?", id, []int{models.TrainStatusSuccess, models.TrainStatusFailed}).
		Updates(models.UpdateColumns(updater, now, map[string]any{
			"train_status":  models.TrainStatusPending,
			"voice_id":      "",
			"train_error":   "",
			"attempt_token": "",
		}))
	return res.RowsAffected == 1, res.Error
}

func (r *gormRepository) FailTraining(ctx context.Context, f FailFilter, trainErr string, now time.Time) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.VoiceClone{}).Where("train_status = ?", models.TrainStatusTraining)
	if f.StartedBefore != nil {
		q = q.Where("train_started_at < ?", *f.StartedBefore)
	}
	if len(f.Exclude) > 0 {
		q = q.Where("attempt_token NOT IN ?", f.Exclude)
	}
	res := q.Updates(map[string]any{
		"train_status": models.TrainStatusFailed,
		"train_error":  trainErr,
		"update_date":  now,
	})
	return res.RowsAffected, res.Error
}

func (r *gormRepository) ModelConfig(ctx context.Context, id string) (*models.ModelConfig, error) {
	mc, err := models.GetModelConfig(r.db.WithContext(ctx), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.NotFound("model config %s not found", id)
	}
	return mc, err
}

func (r *gormRepository) ModelName(ctx context.Context, modelID string) (string, error) {
	if modelID == "" {
		return "", nil
	}
	var names []string
	err := r.db.WithContext(ctx).Model(&models.ModelConfig{}).Where("id = ?", modelID).Limit(1).Pluck("model_name", &names).Error
	if err != nil || len(names) == 0 {
		return "", err
	}
	return names[0], nil
}

func (r *gormRepository) Username(ctx context.Context, userID int64) (string, error) {
	if userID == 0 {
		return "", nil
	}
	var names []string
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Limit(1).Pluck("username", &names).Error
	if err != nil || len(names) == 0 {
		return "", err
	}
	return names[0], nil
}

// Package voiceclone 管理声音克隆记录的生命周期：创建、上传参考音频、
// 提交克隆引擎训练以及训练结果的回写。
//
// 状态迁移：
//
//	PENDING --startTraining--> TRAINING --引擎返回--> SUCCESS | FAILED
//	FAILED  --startTraining--> TRAINING
//	SUCCESS | FAILED --uploadReferenceAudio--> PENDING
//
// 进入 TRAINING 与写回结果都是带条件的更新，同一记录同一时刻至多只有一个有效的训练尝试。
package voiceclone

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"ManagerAPI/internal/engine"
	"ManagerAPI/internal/models"
	apperr "ManagerAPI/pkg/errors"
	"ManagerAPI/pkg/logger"
	stores "ManagerAPI/pkg/storage"
	"ManagerAPI/pkg/util"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const maxNameLen = 64

// ErrClosed 服务关闭后不再接受新的训练
var ErrClosed = errors.New("voice clone service is shutting down")

// AudioStore 参考音频存储
type AudioStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Engine 克隆引擎
type Engine interface {
	Submit(ctx context.Context, req engine.SubmitRequest) (string, error)
}

// Caller 发起操作的用户，鉴权在 handler 层完成
type Caller struct {
	UserID     int64
	Username   string
	SuperAdmin bool
}

type CreateRequest struct {
	Name    string
	ModelID string
	UserID  int64 // 为 0 时归属调用者
}

// Detail 详情视图，名称引用失效时为空字符串
type Detail struct {
	models.VoiceClone
	ModelName       string `json:"modelName"`
	UserName        string `json:"userName"`
	HasVoice        bool   `json:"hasVoice"`
	TrainStatusName string `json:"trainStatusName"`
}

type Config struct {
	TrainTimeout  time.Duration
	MaxAudioBytes int64
	Concurrency   int64
}

type Option func(*Service)

// WithNotifier 注册状态变更监听
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithNames 替换展示名解析，默认直接查库
func WithNames(n NameSource) Option {
	return func(s *Service) { s.names = n }
}

// WithClock 测试中固定时间
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

type Service struct {
	repo     Repository
	store    AudioStore
	engine   Engine
	names    NameSource
	notifier Notifier
	cfg      Config
	now      func() time.Time

	locks keyLock
	sem   *semaphore.Weighted

	mu       sync.Mutex
	inflight map[string]string // attempt -> record id
	wg       sync.WaitGroup

	life   sync.RWMutex
	closed bool

	// 后台训练的生命周期，Close 超时后取消
	ctx    context.Context
	cancel context.CancelFunc
}

func New(repo Repository, store AudioStore, eng Engine, cfg Config, opts ...Option) *Service {
	if cfg.TrainTimeout <= 0 {
		cfg.TrainTimeout = 5 * time.Minute
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		repo:     repo,
		store:    store,
		engine:   eng,
		names:    repo,
		notifier: nopNotifier{},
		cfg:      cfg,
		now:      time.Now,
		sem:      semaphore.NewWeighted(cfg.Concurrency),
		inflight: make(map[string]string),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func audioKey(id string) string {
	return "voice-clone/" + id
}

func validName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", apperr.InvalidInput("name is required")
	}
	if len([]rune(name)) > maxNameLen {
		return "", apperr.InvalidInput("name exceeds %d characters", maxNameLen)
	}
	return name, nil
}

// Create 新建 PENDING 记录，模型必须存在且支持克隆
func (s *Service) Create(ctx context.Context, caller Caller, req CreateRequest) (*models.VoiceClone, error) {
	name, err := validName(req.Name)
	if err != nil {
		return nil, err
	}
	if req.ModelID == "" {
		return nil, apperr.InvalidInput("modelId is required")
	}
	mc, err := s.repo.ModelConfig(ctx, req.ModelID)
	if apperr.IsCode(err, apperr.CodeNotFound) {
		return nil, apperr.InvalidReference("model %s does not exist", req.ModelID)
	}
	if err != nil {
		return nil, apperr.Wrap(err, "load model config")
	}
	if !mc.CanClone() {
		return nil, apperr.InvalidReference("model %s does not support voice cloning", req.ModelID)
	}

	owner := req.UserID
	if owner == 0 {
		owner = caller.UserID
	}
	rec := &models.VoiceClone{
		ID:          models.NewID(),
		Name:        name,
		ModelID:     req.ModelID,
		UserID:      owner,
		TrainStatus: models.TrainStatusPending,
	}
	rec.StampCreate(caller.UserID, s.now())
	if err := s.repo.Insert(ctx, rec); err != nil {
		return nil, apperr.Wrap(err, "insert voice clone")
	}
	logger.Info("voice clone created", zap.String("id", rec.ID), zap.Int64("userId", owner), zap.String("modelId", rec.ModelID))
	return rec, nil
}

// UploadReferenceAudio 保存参考音频，SUCCESS/FAILED 的记录回到 PENDING
func (s *Service) UploadReferenceAudio(ctx context.Context, caller Caller, id string, audio []byte) error {
	if err := validateAudio(audio, s.cfg.MaxAudioBytes); err != nil {
		return err
	}
	unlock := s.locks.lock(id)
	defer unlock()

	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.TrainStatus == models.TrainStatusTraining {
		return apperr.Conflict("voice clone %s is training", id)
	}
	if err := s.store.Put(ctx, audioKey(id), audio); err != nil {
		return apperr.Wrap(err, "store reference audio")
	}
	if rec.TrainStatus == models.TrainStatusPending {
		return nil
	}
	ok, err := s.repo.ResetToPending(ctx, id, caller.UserID, s.now())
	if err != nil {
		return apperr.Wrap(err, "reset voice clone")
	}
	if ok {
		s.notifier.OnStatusChange(StatusEvent{
			ID:     id,
			UserID: rec.UserID,
			From:   rec.TrainStatus,
			To:     models.TrainStatusPending,
			At:     s.now(),
		})
	}
	return nil
}

// Rename 修改名称，不影响训练状态
func (s *Service) Rename(ctx context.Context, caller Caller, id, name string) error {
	name, err := validName(name)
	if err != nil {
		return err
	}
	ok, err := s.repo.UpdateName(ctx, id, name, caller.UserID, s.now())
	if err != nil {
		return apperr.Wrap(err, "rename voice clone")
	}
	if !ok {
		return apperr.NotFound("voice clone %s not found", id)
	}
	return nil
}

// Delete 删除记录及参考音频，不存在的 id 直接跳过，返回实际删除数
func (s *Service) Delete(ctx context.Context, caller Caller, ids []string) (int, error) {
	seen := make(map[string]struct{}, len(ids))
	deleted := 0
	for _, id := range ids {
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}
		n, err := s.deleteOne(ctx, id)
		if err != nil {
			return deleted, err
		}
		deleted += n
	}
	if deleted > 0 {
		logger.Info("voice clones deleted", zap.Int64("operator", caller.UserID), zap.Int("count", deleted))
	}
	return deleted, nil
}

func (s *Service) deleteOne(ctx context.Context, id string) (int, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	ok, err := s.repo.Delete(ctx, id)
	if err != nil {
		return 0, apperr.Wrap(err, "delete voice clone")
	}
	if !ok {
		return 0, nil
	}
	// 先删记录，进行中的训练回写时找不到记录会被丢弃
	if err := s.store.Delete(ctx, audioKey(id)); err != nil {
		return 1, apperr.Wrapf(err, "delete reference audio of %s", id)
	}
	return 1, nil
}

// Owner 返回记录归属的用户，供 handler 做归属校验
func (s *Service) Owner(ctx context.Context, id string) (int64, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return rec.UserID, nil
}

func (s *Service) GetDetail(ctx context.Context, id string) (*Detail, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.detail(ctx, rec)
}

// List 按创建时间倒序分页
func (s *Service) List(ctx context.Context, f ListFilter) (*util.PageData[Detail], error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = util.DefaultPageSize
	}
	if f.PageSize > util.MaxPageSize {
		f.PageSize = util.MaxPageSize
	}
	list, total, err := s.repo.List(ctx, f)
	if err != nil {
		return nil, apperr.Wrap(err, "list voice clones")
	}
	page := &util.PageData[Detail]{Total: total, List: make([]Detail, 0, len(list))}
	for i := range list {
		d, err := s.detail(ctx, &list[i])
		if err != nil {
			return nil, err
		}
		page.List = append(page.List, *d)
	}
	return page, nil
}

// GetAudio 读取参考音频
func (s *Service) GetAudio(ctx context.Context, id string) ([]byte, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	data, err := s.store.Get(ctx, audioKey(id))
	if errors.Is(err, stores.ErrNotFound) {
		return nil, apperr.NotFound("voice clone %s has no reference audio", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, "load reference audio")
	}
	return data, nil
}

func (s *Service) detail(ctx context.Context, rec *models.VoiceClone) (*Detail, error) {
	modelName, err := s.names.ModelName(ctx, rec.ModelID)
	if err != nil {
		return nil, apperr.Wrap(err, "resolve model name")
	}
	userName, err := s.names.Username(ctx, rec.UserID)
	if err != nil {
		return nil, apperr.Wrap(err, "resolve user name")
	}
	hasVoice, err := s.store.Exists(ctx, audioKey(rec.ID))
	if err != nil {
		return nil, apperr.Wrap(err, "check reference audio")
	}
	return &Detail{
		VoiceClone:      *rec,
		ModelName:       modelName,
		UserName:        userName,
		HasVoice:        hasVoice,
		TrainStatusName: models.StatusName(rec.TrainStatus),
	}, nil
}

package voiceclone

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ManagerAPI/internal/engine"
	"ManagerAPI/internal/models"
	stores "ManagerAPI/pkg/storage"
	"ManagerAPI/pkg/util"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// fakeEngine 默认阻塞到 release 关闭或 ctx 结束
type fakeEngine struct {
	calls   atomic.Int32
	release chan struct{}
	once    sync.Once
	voiceID string
	err     error
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{release: make(chan struct{}), voiceID: "voice-001"}
}

func (e *fakeEngine) Submit(ctx context.Context, req engine.SubmitRequest) (string, error) {
	e.calls.Add(1)
	select {
	case <-e.release:
		return e.voiceID, e.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (e *fakeEngine) Release() {
	e.once.Do(func() { close(e.release) })
}

type recorder struct {
	mu     sync.Mutex
	events []StatusEvent
}

func (r *recorder) OnStatusChange(ev StatusEvent) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) transitions() [][2]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][2]int, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, [2]int{ev.From, ev.To})
	}
	return out
}

type fixture struct {
	db     *gorm.DB
	repo   Repository
	store  *stores.LocalStore
	engine *fakeEngine
	events *recorder
	svc    *Service
	model  *models.ModelConfig
	owner  Caller
	clock  *testClock
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

// Now 每次调用前进一秒，保证创建时间严格递增
func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := util.InitDatabase("sqlite", filepath.Join(t.TempDir(), "manager.db"), "production")
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	db := newTestDB(t)
	store, err := stores.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	user, err := models.CreateUser(db, "alice", "secret123")
	require.NoError(t, err)
	model := &models.ModelConfig{
		ModelType:    models.ModelTypeTTS,
		ModelCode:    "cosyvoice",
		ModelName:    "CosyVoice",
		IsEnabled:    true,
		CloneEnabled: true,
	}
	require.NoError(t, models.CreateModelConfig(db, user.ID, model))

	f := &fixture{
		db:     db,
		repo:   NewGormRepository(db),
		store:  store,
		engine: newFakeEngine(),
		events: &recorder{},
		model:  model,
		owner:  Caller{UserID: user.ID, Username: user.Username},
		clock:  &testClock{now: time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)},
	}
	if cfg.TrainTimeout == 0 {
		cfg.TrainTimeout = 5 * time.Second
	}
	if cfg.MaxAudioBytes == 0 {
		cfg.MaxAudioBytes = 1 << 20
	}
	f.svc = New(f.repo, store, f.engine, cfg, WithNotifier(f.events), WithClock(f.clock.Now))
	t.Cleanup(func() {
		f.engine.Release()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		f.svc.Close(ctx)
	})
	return f
}

func (f *fixture) create(t *testing.T, name string) *models.VoiceClone {
	t.Helper()
	rec, err := f.svc.Create(context.Background(), f.owner, CreateRequest{Name: name, ModelID: f.model.ID})
	require.NoError(t, err)
	return rec
}

func (f *fixture) status(t *testing.T, id string) *models.VoiceClone {
	t.Helper()
	rec, err := f.repo.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func (f *fixture) waitStatus(t *testing.T, id string, status int) *models.VoiceClone {
	t.Helper()
	var rec *models.VoiceClone
	require.Eventually(t, func() bool {
		r, err := f.repo.Get(context.Background(), id)
		if err != nil {
			return false
		}
		rec = r
		return r.TrainStatus == status
	}, 5*time.Second, 10*time.Millisecond)
	return rec
}

// wavFixture 生成 0.1 秒 16kHz 单声道 PCM
func wavFixture(t *testing.T) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ref.wav")
	out, err := os.Create(path)
	require.NoError(t, err)

	enc := wav.NewEncoder(out, 16000, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 16000},
		SourceBitDepth: 16,
		Data:           make([]int, 1600),
	}
	for i := range buf.Data {
		buf.Data[i] = (i%32 - 16) * 512
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, out.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

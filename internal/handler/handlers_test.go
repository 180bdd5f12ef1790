package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ManagerAPI/internal/engine"
	"ManagerAPI/internal/listeners"
	"ManagerAPI/internal/models"
	"ManagerAPI/internal/voiceclone"
	"ManagerAPI/pkg/cache"
	"ManagerAPI/pkg/config"
	"ManagerAPI/pkg/metrics"
	"ManagerAPI/pkg/middleware"
	"ManagerAPI/pkg/sse"
	stores "ManagerAPI/pkg/storage"
	"ManagerAPI/pkg/util"

	"github.com/gin-gonic/gin"
	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const trainURL = "http://engine.local/v1/voice-clone/train"

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

type testServer struct {
	router  *gin.Engine
	svc     *voiceclone.Service
	metrics *metrics.Metrics
	engine  *httpmock.MockTransport
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := util.InitDatabase("sqlite", filepath.Join(t.TempDir(), "manager.db"), "production")
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	require.NoError(t, db.AutoMigrate(&middleware.OperationLog{}))

	cfg := &config.Config{
		APIPrefix:        "/xiaozhi",
		SessionSecret:    "test-session-secret",
		SecretExpireDays: 1,
		MetricsPath:      "/metrics",
		Clone:            config.CloneConfig{TrainTimeout: 5 * time.Second, MaxAudioBytes: 1 << 20, Concurrency: 2},
	}

	mt := httpmock.NewMockTransport()
	mt.RegisterResponder(http.MethodPost, trainURL,
		httpmock.NewJsonResponderOrPanic(http.StatusOK, map[string]any{"success": true, "voice_id": "voice-42"}))
	eng := engine.NewClient("http://engine.local", "", engine.WithHTTPClient(&http.Client{Transport: mt}))

	store, err := stores.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	repo := voiceclone.NewGormRepository(db)
	names := voiceclone.NewCachedNames(repo, cache.NewGoCache(cache.LocalConfig{
		DefaultExpiration: time.Minute,
		CleanupInterval:   time.Minute,
	}), time.Minute)
	m := metrics.NewMetrics()
	hub := sse.NewHub(time.Minute)
	svc := voiceclone.New(repo, store, eng, voiceclone.Config{
		TrainTimeout:  cfg.Clone.TrainTimeout,
		MaxAudioBytes: cfg.Clone.MaxAudioBytes,
		Concurrency:   cfg.Clone.Concurrency,
	}, voiceclone.WithNotifier(listeners.InitVoiceCloneListeners(hub, m)), voiceclone.WithNames(names))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		svc.Close(ctx)
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Rate:          "100-M",
		Identifier:    "user",
		PerRouteRates: map[string]string{"/xiaozhi/voiceClone/:id/train": "3-M"},
	}, nil)

	h := NewHandlers(db, cfg, Deps{Clones: svc, Names: names, Hub: hub, Metrics: m, Limiter: limiter})
	r := gin.New()
	r.Use(metrics.Middleware(m))
	h.Register(r)
	return &testServer{router: r, svc: svc, metrics: m, engine: mt}
}

// session 保存登录后的 cookie
type session struct {
	t       *testing.T
	srv     *testServer
	cookies []*http.Cookie
}

func (s *testServer) anonymous(t *testing.T) *session {
	return &session{t: t, srv: s}
}

// register 注册并登录
func (s *testServer) register(t *testing.T, username string) *session {
	t.Helper()
	sess := s.anonymous(t)
	w := sess.json(http.MethodPost, "/xiaozhi/user/register", map[string]string{"username": username, "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = sess.json(http.MethodPost, "/xiaozhi/user/login", map[string]string{"username": username, "password": "secret123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return sess
}

func (s *session) do(req *http.Request) *httptest.ResponseRecorder {
	for _, c := range s.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	s.srv.router.ServeHTTP(w, req)
	if cookies := w.Result().Cookies(); len(cookies) > 0 {
		s.cookies = cookies
	}
	return w
}

func (s *session) json(method, target string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func wavBytes(t *testing.T) []byte {
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
		buf.Data[i] = (i%40 - 20) * 400
	}
	require.NoError(t, enc.Write(buf))
	require.NoError(t, enc.Close())
	require.NoError(t, out.Close())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

// createCloneModel 由超级管理员创建一个可克隆的 TTS 模型
func createCloneModel(t *testing.T, admin *session) string {
	t.Helper()
	w := admin.json(http.MethodPost, "/xiaozhi/models", map[string]any{
		"modelType":    models.ModelTypeTTS,
		"modelCode":    "cosyvoice",
		"modelName":    "CosyVoice",
		"isEnabled":    true,
		"cloneEnabled": true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[models.ModelConfig](t, w).ID
}

func createClone(t *testing.T, user *session, modelID, name string) string {
	t.Helper()
	w := user.json(http.MethodPost, "/xiaozhi/voiceClone", map[string]any{"name": name, "modelId": modelID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[models.VoiceClone](t, w).ID
}

func uploadRaw(user *session, id string, audio []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/xiaozhi/voiceClone/"+id+"/audio", bytes.NewReader(audio))
	req.Header.Set("Content-Type", "audio/wav")
	return user.do(req)
}

func TestVoiceCloneLifecycle(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.register(t, "alice")
	bob := srv.register(t, "bob")
	carol := srv.register(t, "carol")
	modelID := createCloneModel(t, admin)

	id := createClone(t, bob, modelID, "my voice")

	w := bob.json(http.MethodPost, "/xiaozhi/voiceClone/"+id+"/train", nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	w = uploadRaw(bob, id, wavBytes(t))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = carol.json(http.MethodPost, "/xiaozhi/voiceClone/"+id+"/train", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = bob.json(http.MethodPost, "/xiaozhi/voiceClone/"+id+"/train", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	// 引擎是本地 mock，返回时可能已经训练完成
	assert.Contains(t, []int{models.TrainStatusTraining, models.TrainStatusSuccess}, decode[voiceclone.Detail](t, w).TrainStatus)

	var detail voiceclone.Detail
	require.Eventually(t, func() bool {
		w := bob.json(http.MethodGet, "/xiaozhi/voiceClone/"+id, nil)
		if w.Code != http.StatusOK {
			return false
		}
		detail = decode[voiceclone.Detail](t, w)
		return detail.TrainStatus == models.TrainStatusSuccess
	}, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, "voice-42", detail.VoiceID)
	assert.Equal(t, "CosyVoice", detail.ModelName)
	assert.Equal(t, "bob", detail.UserName)
	assert.True(t, detail.HasVoice)
	assert.Equal(t, "SUCCESS", detail.TrainStatusName)
	assert.Equal(t, 1, srv.engine.GetTotalCallCount())

	// 超级管理员可以查看任何人的记录，普通用户不行
	assert.Equal(t, http.StatusOK, admin.json(http.MethodGet, "/xiaozhi/voiceClone/"+id, nil).Code)
	assert.Equal(t, http.StatusForbidden, carol.json(http.MethodGet, "/xiaozhi/voiceClone/"+id, nil).Code)

	w = bob.json(http.MethodGet, "/xiaozhi/voiceClone/"+id+"/audio", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "audio/wave", w.Header().Get("Content-Type"))

	// 事件在状态落库之后才发出
	assert.Eventually(t, func() bool {
		w := srv.anonymous(t).json(http.MethodGet, "/metrics", nil)
		return w.Code == http.StatusOK &&
			strings.Contains(w.Body.String(), `manager_voice_clone_training_finished_total{status="SUCCESS"} 1`)
	}, 2*time.Second, 20*time.Millisecond)
}

func TestVoiceCloneListScopedToCaller(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.register(t, "alice")
	bob := srv.register(t, "bob")
	carol := srv.register(t, "carol")
	modelID := createCloneModel(t, admin)

	createClone(t, bob, modelID, "bob-1")
	createClone(t, bob, modelID, "bob-2")
	carolID := createClone(t, carol, modelID, "carol-1")

	page := decode[util.PageData[voiceclone.Detail]](t, bob.json(http.MethodGet, "/xiaozhi/voiceClone?page=1&limit=10", nil))
	assert.EqualValues(t, 2, page.Total)
	require.Len(t, page.List, 2)
	assert.Equal(t, "bob-2", page.List[0].Name)

	// 普通用户传 userId 无效
	page = decode[util.PageData[voiceclone.Detail]](t, bob.json(http.MethodGet, fmt.Sprintf("/xiaozhi/voiceClone?userId=%d", 3), nil))
	assert.EqualValues(t, 2, page.Total)

	page = decode[util.PageData[voiceclone.Detail]](t, admin.json(http.MethodGet, "/xiaozhi/voiceClone", nil))
	assert.EqualValues(t, 3, page.Total)

	// 批量删除中包含别人的记录时整体拒绝
	w := bob.json(http.MethodDelete, "/xiaozhi/voiceClone", []string{carolID})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = carol.json(http.MethodDelete, "/xiaozhi/voiceClone", []string{carolID, "missing"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]int{"deleted": 1}, decode[map[string]int](t, w))
}

func TestVoiceCloneValidation(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.register(t, "alice")
	modelID := createCloneModel(t, admin)

	w := admin.json(http.MethodPost, "/xiaozhi/voiceClone", map[string]any{"name": "x", "modelId": "nope"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	w = admin.json(http.MethodPost, "/xiaozhi/voiceClone", map[string]any{"name": strings.Repeat("n", 65), "modelId": modelID})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	id := createClone(t, admin, modelID, "valid")
	w = uploadRaw(admin, id, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = admin.json(http.MethodPut, "/xiaozhi/voiceClone/"+id+"/name", map[string]string{"name": "renamed"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "renamed", decode[voiceclone.Detail](t, admin.json(http.MethodGet, "/xiaozhi/voiceClone/"+id, nil)).Name)

	assert.Equal(t, http.StatusNotFound, admin.json(http.MethodGet, "/xiaozhi/voiceClone/missing", nil).Code)
}

func TestVoiceCloneIdempotencyKey(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.register(t, "alice")
	modelID := createCloneModel(t, admin)

	body, err := json.Marshal(map[string]any{"name": "once", "modelId": modelID})
	require.NoError(t, err)
	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/xiaozhi/voiceClone", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", "k-1")
		return admin.do(req).Code
	}
	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusConflict, send())
}

func TestAuthAndAdminGuards(t *testing.T) {
	srv := newTestServer(t)
	srv.register(t, "alice")
	bob := srv.register(t, "bob")

	assert.Equal(t, http.StatusUnauthorized, srv.anonymous(t).json(http.MethodGet, "/xiaozhi/voiceClone", nil).Code)
	assert.Equal(t, http.StatusForbidden, bob.json(http.MethodGet, "/xiaozhi/admin/users", nil).Code)
	assert.Equal(t, http.StatusForbidden, bob.json(http.MethodPost, "/xiaozhi/models", map[string]any{}).Code)

	w := srv.anonymous(t).json(http.MethodPost, "/xiaozhi/user/login", map[string]string{"username": "bob", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = bob.json(http.MethodPost, "/xiaozhi/user/logout", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusUnauthorized, bob.json(http.MethodGet, "/xiaozhi/user/info", nil).Code)
}

func TestAdminUsersAndOperationLogs(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.register(t, "alice")
	bob := srv.register(t, "bob")

	w := admin.json(http.MethodGet, "/xiaozhi/admin/users?orderField=username&order=asc", nil)
	require.Equal(t, http.StatusOK, w.Code)
	users := decode[util.PageData[models.User]](t, w)
	require.Len(t, users.List, 2)
	assert.Equal(t, "alice", users.List[0].Username)

	w = admin.json(http.MethodGet, "/xiaozhi/admin/users?orderField=password", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	bobID := users.List[1].ID
	w = admin.json(http.MethodPut, fmt.Sprintf("/xiaozhi/admin/users/%d/status", bobID), map[string]int{"status": models.UserStatusDisabled})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, http.StatusUnauthorized, bob.json(http.MethodGet, "/xiaozhi/user/info", nil).Code)

	w = admin.json(http.MethodGet, "/xiaozhi/system/operation-logs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	logs := decode[util.PageData[middleware.OperationLog]](t, w)
	require.NotEmpty(t, logs.List)
	assert.Equal(t, http.MethodPut, logs.List[0].RequestMethod)
	assert.Equal(t, "/xiaozhi/admin/users/:id/status", logs.List[0].Target)
}

func TestDeviceBinding(t *testing.T) {
	srv := newTestServer(t)
	admin := srv.register(t, "alice")
	bob := srv.register(t, "bob")

	w := bob.json(http.MethodPost, "/xiaozhi/device/bind", map[string]string{"macAddress": "AA-BB-CC-DD-EE-FF", "board": "esp32"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	dev := decode[models.Device](t, w)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", dev.MacAddress)

	w = admin.json(http.MethodPost, "/xiaozhi/device/bind", map[string]string{"macAddress": "aa:bb:cc:dd:ee:ff"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = admin.json(http.MethodPost, "/xiaozhi/device/unbind", map[string]string{"deviceId": dev.ID})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = bob.json(http.MethodPut, "/xiaozhi/device/"+dev.ID, map[string]string{"alias": "kitchen"})
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[[]models.Device](t, bob.json(http.MethodGet, "/xiaozhi/device/bind", nil))
	require.Len(t, list, 1)
	assert.Equal(t, "kitchen", list[0].Alias)
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t)
	w := srv.anonymous(t).json(http.MethodGet, "/xiaozhi/system/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"healthy"`)
}

package models

import (
	"path/filepath"
	"testing"

	"ManagerAPI/pkg/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := util.InitDatabase("sqlite", filepath.Join(t.TempDir(), "models.db"), "production")
	require.NoError(t, err)
	require.NoError(t, Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func TestCreateUserAndAuthenticate(t *testing.T) {
	db := newTestDB(t)

	first, err := CreateUser(db, " alice ", "secret123")
	require.NoError(t, err)
	assert.True(t, first.SuperAdmin)
	assert.Equal(t, "alice", first.Username)

	second, err := CreateUser(db, "bob", "secret123")
	require.NoError(t, err)
	assert.False(t, second.SuperAdmin)

	_, err = CreateUser(db, "bob", "another1")
	assert.ErrorIs(t, err, ErrUserExists)
	_, err = CreateUser(db, "carol", "123")
	assert.ErrorIs(t, err, ErrPasswordTooShort)

	u, err := Authenticate(db, "bob", "secret123")
	require.NoError(t, err)
	assert.Equal(t, second.ID, u.ID)
	_, err = Authenticate(db, "bob", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidPassword)
	_, err = Authenticate(db, "nobody", "secret123")
	assert.ErrorIs(t, err, ErrInvalidPassword)

	require.NoError(t, UpdateUserStatus(db, first.ID, second.ID, UserStatusDisabled))
	_, err = Authenticate(db, "bob", "secret123")
	assert.ErrorIs(t, err, ErrUserDisabled)
}

func TestChangePassword(t *testing.T) {
	db := newTestDB(t)
	u, err := CreateUser(db, "alice", "secret123")
	require.NoError(t, err)

	assert.ErrorIs(t, ChangePassword(db, u, "wrong-old", "newsecret"), ErrInvalidPassword)
	require.NoError(t, ChangePassword(db, u, "secret123", "newsecret"))

	_, err = Authenticate(db, "alice", "secret123")
	assert.ErrorIs(t, err, ErrInvalidPassword)
	_, err = Authenticate(db, "alice", "newsecret")
	assert.NoError(t, err)
}

func TestDeviceBinding(t *testing.T) {
	db := newTestDB(t)

	_, err := BindDevice(db, 1, "not-a-mac", "esp32", "1.0.0")
	assert.ErrorIs(t, err, ErrInvalidMac)

	d, err := BindDevice(db, 1, "AA-BB-CC-DD-EE-01", "esp32", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "aa:bb:cc:dd:ee:01", d.MacAddress)

	_, err = BindDevice(db, 2, "aa:bb:cc:dd:ee:01", "esp32", "1.0.0")
	assert.ErrorIs(t, err, ErrDeviceBound)

	assert.ErrorIs(t, UpdateDeviceAlias(db, 2, d.ID, "stolen"), gorm.ErrRecordNotFound)
	require.NoError(t, UpdateDeviceAlias(db, 1, d.ID, "kitchen"))
	assert.ErrorIs(t, UnbindDevice(db, 2, d.ID), gorm.ErrRecordNotFound)
	require.NoError(t, UnbindDevice(db, 1, d.ID))

	list, err := GetUserDevices(db, 1)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDeleteModelConfig(t *testing.T) {
	db := newTestDB(t)
	m := &ModelConfig{ModelType: ModelTypeTTS, ModelCode: "cosyvoice", ModelName: "CosyVoice", IsEnabled: true, CloneEnabled: true}
	require.NoError(t, CreateModelConfig(db, 1, m))
	assert.True(t, m.CanClone())
	require.NoError(t, CreateTtsVoice(db, 1, &TtsVoice{TtsModelID: m.ID, Name: "晓晓", TtsVoice: "xiaoxiao"}))

	training := &VoiceClone{ID: NewID(), Name: "busy", ModelID: m.ID, UserID: 1, TrainStatus: TrainStatusTraining}
	require.NoError(t, db.Create(training).Error)
	assert.ErrorIs(t, DeleteModelConfig(db, m.ID), ErrModelInUse)

	require.NoError(t, db.Model(training).Update("train_status", TrainStatusFailed).Error)
	require.NoError(t, DeleteModelConfig(db, m.ID))

	voices, total, err := ListTtsVoices(db, m.ID, "", 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, voices)
	_, err = GetModelConfig(db, m.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestCanClone(t *testing.T) {
	m := ModelConfig{ModelType: ModelTypeTTS, IsEnabled: true, CloneEnabled: true}
	assert.True(t, m.CanClone())
	m.IsEnabled = false
	assert.False(t, m.CanClone())
	m = ModelConfig{ModelType: ModelTypeLLM, IsEnabled: true, CloneEnabled: true}
	assert.False(t, m.CanClone())
	assert.Equal(t, "TRAINING", StatusName(TrainStatusTraining))
	assert.Equal(t, "UNKNOWN", StatusName(9))
}

package voiceclone

import (
	"context"
	"testing"
	"time"

	"ManagerAPI/internal/models"
	"ManagerAPI/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingSource struct {
	NameSource
	modelCalls int
}

func (c *countingSource) ModelName(ctx context.Context, id string) (string, error) {
	c.modelCalls++
	return c.NameSource.ModelName(ctx, id)
}

func TestCachedNames(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	model := &models.ModelConfig{ModelType: models.ModelTypeTTS, ModelName: "CosyVoice"}
	require.NoError(t, models.CreateModelConfig(db, 0, model))

	src := &countingSource{NameSource: NewGormRepository(db)}
	names := NewCachedNames(src, cache.NewGoCache(cache.LocalConfig{DefaultExpiration: time.Minute}), time.Minute)

	for i := 0; i < 3; i++ {
		name, err := names.ModelName(ctx, model.ID)
		require.NoError(t, err)
		assert.Equal(t, "CosyVoice", name)
	}
	assert.Equal(t, 1, src.modelCalls)

	require.NoError(t, db.Model(&models.ModelConfig{}).Where("id = ?", model.ID).Update("model_name", "CosyVoice2").Error)
	names.InvalidateModel(ctx, model.ID)
	name, err := names.ModelName(ctx, model.ID)
	require.NoError(t, err)
	assert.Equal(t, "CosyVoice2", name)
	assert.Equal(t, 2, src.modelCalls)

	// 不存在的引用缓存为空字符串
	name, err = names.ModelName(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, name)
	name, err = names.Username(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, name)
}

package di

import (
	"testing"

	"github.com/aihub/docqa-go/internal/config"
	"github.com/aihub/docqa-go/internal/services"
	"github.com/aihub/docqa-go/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild_RequiresConfig(t *testing.T) {
	_, err := Build(nil)
	assert.Error(t, err)
}

func TestResolve_WithoutContainer(t *testing.T) {
	Container = nil
	_, err := Resolve[*services.SystemState]()
	assert.Error(t, err)
}

func TestBuild_ResolvesServices(t *testing.T) {
	t.Setenv("VECTOR_STORE_PROVIDER", "memory")
	cfg, err := config.Load()
	require.NoError(t, err)

	container, err := Build(cfg)
	require.NoError(t, err)
	assert.Same(t, container, Container)

	err = container.Invoke(func(task *services.IngestionTask, chat *services.ChatService, state *services.SystemState) {
		assert.NotNil(t, task)
		assert.NotNil(t, chat)
		assert.Equal(t, services.PhaseInitializing, state.Snapshot().Phase)
	})
	assert.NoError(t, err)

	// 状态为单例，问答与摄取共享
	first, err := Resolve[*services.SystemState]()
	require.NoError(t, err)
	second, err := Resolve[*services.SystemState]()
	require.NoError(t, err)
	assert.Same(t, first, second)

	fetcher, err := Resolve[storage.BlobFetcher]()
	require.NoError(t, err)
	assert.NotNil(t, fetcher)

	// Redis 未启用时使用进程内锁
	lock, err := Resolve[services.IngestionLock]()
	require.NoError(t, err)
	assert.IsType(t, &services.LocalLock{}, lock)
}

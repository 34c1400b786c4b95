package database

import (
	"testing"

	"github.com/aihub/docqa-go/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitRedis_Disabled(t *testing.T) {
	client, err := InitRedis(config.RedisConfig{Enabled: false, Addr: "localhost:6379"})
	require.NoError(t, err)
	assert.Nil(t, client)
	assert.NoError(t, CloseRedis())
}

func TestInitRedis_MissingAddr(t *testing.T) {
	_, err := InitRedis(config.RedisConfig{Enabled: true})
	assert.Error(t, err)
}

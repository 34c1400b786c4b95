package bootstrap

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aihub/docqa-go/internal/config"
	"github.com/aihub/docqa-go/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerTimeoutSeconds(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		want    int64
	}{
		{"default when unset", 0, int64(services.DefaultChatTimeout / time.Second)},
		{"whole seconds", 90 * time.Second, 90},
		{"rounds up fractions", 1500 * time.Millisecond, 2},
		{"sub-second", 200 * time.Millisecond, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Server: config.ServerConfig{ChatTimeout: tt.timeout}}
			assert.Equal(t, tt.want, ServerTimeoutSeconds(cfg))
		})
	}
}

func TestApplyPDFLicense_SkipsWhenUnset(t *testing.T) {
	assert.NoError(t, applyPDFLicense(&config.Config{}))
}

func TestStartIngestion_StartupErrorMarksSystemFailed(t *testing.T) {
	state := services.NewSystemState()
	app := &App{State: state, startupErr: errors.New("activate unidoc license: invalid key")}

	app.StartIngestion(context.Background())

	snap := state.Snapshot()
	require.Equal(t, services.PhaseError, snap.Phase)
	assert.Contains(t, snap.Message, "invalid key")
}

package injector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/boardsync/internal/config"
	"github.com/zeusync/boardsync/internal/core/observability/log"
)

func TestInitializeDeployment(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "warn"

	d, cleanup, err := InitializeDeployment(&cfg)
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, d.Hub)
	assert.NotNil(t, d.API)
	assert.NotNil(t, d.Server)
	assert.Equal(t, log.LevelWarn, d.Logger.GetLevel())
}

func TestInitializeDeploymentRejectsServerConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Server.MaxClients = 0

	_, _, err := InitializeDeployment(&cfg)
	assert.Error(t, err)
}

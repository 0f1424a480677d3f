package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/replayproof/engine/internal/common/config"
	"github.com/replayproof/engine/internal/common/configtypes"
)

func TestUpgradeLogger_WritesConfiguredFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "verifier.log")
	cfg := config.Default()
	cfg.Log.Console.Enabled = false
	cfg.Log.File = configtypes.FileLogConfig{
		Enabled: true,
		Path:    path,
		Format:  configtypes.LogFormatJSON,
	}

	log := upgradeLogger(zap.NewNop(), cfg, false)
	log.Info("recorder started")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "recorder started")
}

func TestUpgradeLogger_VerboseForcesDebug(t *testing.T) {
	cfg := config.Default()

	verbose := upgradeLogger(zap.NewNop(), cfg, true)
	assert.True(t, verbose.Core().Enabled(zapcore.DebugLevel))

	quiet := upgradeLogger(zap.NewNop(), cfg, false)
	assert.False(t, quiet.Core().Enabled(zapcore.DebugLevel))
}

func TestUpgradeLogger_KeepsBootstrapOnBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Console.Enabled = false
	cfg.Log.File = configtypes.FileLogConfig{Enabled: true} // no path

	bootstrap := zap.NewNop()
	assert.Same(t, bootstrap, upgradeLogger(bootstrap, cfg, false))
}

package main

import (
	"go.uber.org/zap"

	"github.com/replayproof/engine/internal/common/config"
	"github.com/replayproof/engine/internal/common/configtypes"
	"github.com/replayproof/engine/internal/common/logger"
)

// upgradeLogger swaps the bootstrap CLI logger for one built from the
// configured outputs (console and rotated file). --verbose keeps winning
// over the configured level.
func upgradeLogger(bootstrap *zap.Logger, cfg *config.Config, verbose bool) *zap.Logger {
	logCfg := cfg.Log
	if verbose {
		logCfg.Level = configtypes.LogLevelDebug
		logCfg.Console.Level = ""
		logCfg.File.Level = ""
	}

	l, err := logger.NewLogger(logCfg)
	if err != nil {
		bootstrap.Warn("Keeping CLI logging, configured outputs are unusable", zap.Error(err))
		return bootstrap
	}
	return l
}

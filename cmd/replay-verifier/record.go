package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/replayproof/engine/internal/common/config"
	"github.com/replayproof/engine/internal/common/logger"
	"github.com/replayproof/engine/internal/common/metricsserver"
	"github.com/replayproof/engine/internal/metrics"
	"github.com/replayproof/engine/internal/record"
	"github.com/replayproof/engine/internal/session"
	"github.com/replayproof/engine/pkg/types"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Run the recording proxy in front of a baseline service",
	Args:  cobra.ExactArgs(0),
	RunE:  runRecord,
}

var (
	flagRecordListen  string
	flagRecordTarget  string
	flagRecordConfig  string
	flagRecordVerbose bool
)

func init() {
	f := recordCmd.Flags()
	f.StringVar(&flagRecordListen, "listen", "", "proxy listen address (overrides config)")
	f.StringVar(&flagRecordTarget, "target", "", "baseline service base URL (overrides config)")
	f.StringVarP(&flagRecordConfig, "config", "c", "", "path to configuration file")
	f.BoolVarP(&flagRecordVerbose, "verbose", "v", false, "enable debug logging")
}

func runRecord(cmd *cobra.Command, args []string) error {
	log := logger.NewCLILogger(flagRecordVerbose)
	cfg, err := config.Load(flagRecordConfig, log)
	if err != nil {
		return err
	}
	log = upgradeLogger(log, cfg, flagRecordVerbose)
	defer log.Sync() //nolint:errcheck

	recCfg := cfg.Recorder
	if flagRecordListen != "" {
		recCfg.Listen = flagRecordListen
	}
	if flagRecordTarget != "" {
		recCfg.Target = flagRecordTarget
	}
	if recCfg.Listen == "" {
		recCfg.Listen = "0.0.0.0:8090"
	}
	if recCfg.Target == "" {
		return fmt.Errorf("%w: recorder target is required (--target or recorder.target)", types.ErrInput)
	}

	store, err := openStore(cfg, log)
	if err != nil {
		return err
	}

	recorder, err := record.NewRecorder(recCfg, store, log)
	if err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		pm := metrics.NewPrometheusMetrics(cfg.Metrics.Namespace, log)
		if _, err := metricsserver.Start(true, cfg.Metrics.Listen, cfg.Metrics.Path, pm, log); err != nil {
			return err
		}
	}

	log.Info("Starting recorder",
		zap.String("listen", recCfg.Listen),
		zap.String("target", recCfg.Target))
	return recorder.Serve()
}

// openStore selects the session backend: Redis when configured, files
// otherwise.
func openStore(cfg *config.Config, log *zap.Logger) (session.Store, error) {
	if cfg.Sessions.Redis != nil {
		return session.NewRedisStore(cfg.Sessions.Redis, log)
	}
	return session.NewFileStore(cfg.Sessions.Dir, cfg.Sessions.Codec, log)
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/replayproof/engine/internal/common/config"
	"github.com/replayproof/engine/internal/common/logger"
	"github.com/replayproof/engine/internal/common/metricsserver"
	"github.com/replayproof/engine/internal/contract"
	"github.com/replayproof/engine/internal/metrics"
	"github.com/replayproof/engine/internal/perf"
	"github.com/replayproof/engine/internal/replay"
	"github.com/replayproof/engine/internal/report"
	"github.com/replayproof/engine/internal/route"
	"github.com/replayproof/engine/internal/session"
	"github.com/replayproof/engine/internal/template"
	"github.com/replayproof/engine/internal/verify/compat"
	"github.com/replayproof/engine/internal/verify/diff"
	"github.com/replayproof/engine/internal/verify/tolerance"
	"github.com/replayproof/engine/pkg/types"
)

var replayCmd = &cobra.Command{
	Use:   "replay <session.json>...",
	Short: "Replay recorded sessions and report compatibility",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runReplay,
}

var (
	flagContract         string
	flagTarget           string
	flagOutput           string
	flagFormat           string
	flagThreshold        float64
	flagNoDynamic        bool
	flagConfig           string
	flagVerbose          bool
	flagFailOnThreshold  bool
	flagStrict           bool
	flagTolerant         bool
	flagPreloadTemplates bool
	flagPerformance      bool
	flagFilterMethods    string
	flagFilterRoutes     string
	flagFilterTags       string
	flagFilterSessTags   string
)

func init() {
	f := replayCmd.Flags()
	f.StringVar(&flagContract, "contract", "", "OpenAPI contract to derive response templates from")
	f.StringVar(&flagTarget, "target", "", "base URL of the service to replay against")
	f.StringVarP(&flagOutput, "output", "o", "", "write the JSON report to this file")
	f.StringVar(&flagFormat, "format", "text", "stdout format: json or text")
	f.Float64Var(&flagThreshold, "threshold", 100, "compatibility score threshold (0-100)")
	f.BoolVar(&flagNoDynamic, "no-dynamic", false, "disable template synthesis, always replay live")
	f.StringVarP(&flagConfig, "config", "c", "", "path to configuration file")
	f.BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	f.BoolVar(&flagFailOnThreshold, "fail-on-threshold", false, "exit nonzero when the effective score is below the threshold")
	f.BoolVar(&flagStrict, "strict", false, "strict mode: no tolerances, any deviation fails")
	f.BoolVar(&flagTolerant, "tolerant", false, "tolerant mode: force-enable all tolerance features")
	f.BoolVar(&flagPreloadTemplates, "preload-templates", false, "compile all templates before replaying")
	f.BoolVar(&flagPerformance, "performance", false, "attach a performance block to the report")
	f.StringVar(&flagFilterMethods, "filter-methods", "", "comma-separated HTTP methods to replay")
	f.StringVar(&flagFilterRoutes, "filter-routes", "", "comma-separated route patterns to replay ('*' wildcards)")
	f.StringVar(&flagFilterTags, "filter-tags", "", "comma-separated interaction tags to replay")
	f.StringVar(&flagFilterSessTags, "filter-session-tags", "", "comma-separated session tags required for replay")
}

func runReplay(cmd *cobra.Command, args []string) error {
	if flagStrict && flagTolerant {
		return fmt.Errorf("--strict and --tolerant are mutually exclusive")
	}
	if flagThreshold < 0 || flagThreshold > 100 {
		return fmt.Errorf("--threshold must be between 0 and 100")
	}
	if flagFormat != "text" && flagFormat != "json" {
		return fmt.Errorf("--format must be 'text' or 'json'")
	}

	log := logger.NewCLILogger(flagVerbose)
	cfg, err := config.Load(flagConfig, log)
	if err != nil {
		return err
	}
	if cfg.Log.File.Enabled {
		log = upgradeLogger(log, cfg, flagVerbose)
	}
	defer log.Sync() //nolint:errcheck

	var pm *metrics.PrometheusMetrics
	if cfg.Metrics.Enabled {
		pm = metrics.NewPrometheusMetrics(cfg.Metrics.Namespace, log)
		if _, err := metricsserver.Start(true, cfg.Metrics.Listen, cfg.Metrics.Path, pm, log); err != nil {
			return err
		}
	}

	mode := types.ModeDefault
	if flagStrict {
		mode = types.ModeStrict
	} else if flagTolerant {
		mode = types.ModeTolerant
	}

	contractFile := flagContract
	if contractFile == "" {
		contractFile = cfg.Contract.File
	}
	target := flagTarget
	if target == "" {
		target = cfg.Replay.Target
	}
	if contractFile == "" && target == "" {
		return fmt.Errorf("%w: nothing to replay against, provide --contract or --target", types.ErrInput)
	}

	filter := &replay.Filter{
		Methods:     replay.ParseList(flagFilterMethods),
		Routes:      replay.ParseList(flagFilterRoutes),
		Tags:        replay.ParseList(flagFilterTags),
		SessionTags: replay.ParseList(flagFilterSessTags),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var failed []string
	for _, sessionFile := range args {
		if err := replayOneSession(ctx, cfg, log, pm, mode, contractFile, target, sessionFile, filter, len(args) > 1); err != nil {
			if ctx.Err() != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "%s: %v\n", sessionFile, err)
			failed = append(failed, sessionFile)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d sessions failed verification", len(failed), len(args))
	}
	return nil
}

func replayOneSession(
	ctx context.Context,
	cfg *config.Config,
	log *zap.Logger,
	pm *metrics.PrometheusMetrics,
	mode types.ComparisonMode,
	contractFile, target, sessionFile string,
	filter *replay.Filter,
	batch bool,
) error {
	s, err := session.LoadFile(sessionFile)
	if err != nil {
		return err
	}

	engine, err := buildEngine(cfg, log, mode, contractFile, target, pm)
	if err != nil {
		return err
	}

	var monitor *perf.Monitor
	if flagPerformance {
		monitor = perf.NewMonitor(log)
		monitor.Start()
	}

	result, replayErr := engine.Replay(ctx, s, filter)
	if replayErr != nil && result == nil {
		return replayErr
	}

	var sample *perf.Report
	if monitor != nil {
		sample = monitor.Stop()
	}

	publishScore(pm, result)

	reporter := report.NewReporter(log)
	rep := reporter.Build(result, report.Meta{
		ContractFile: contractFile,
		Target:       target,
		PerfSample:   sample,
		Metrics:      engine.Metrics(),
	})

	if flagOutput != "" {
		path := flagOutput
		if batch {
			path = insertSessionID(path, result.SessionID)
		}
		if err := reporter.SaveFile(path, rep); err != nil {
			return err
		}
	}

	switch flagFormat {
	case "json":
		if err := reporter.WriteJSON(os.Stdout, rep); err != nil {
			return err
		}
	default:
		renderText(os.Stdout, rep)
	}

	if replayErr != nil {
		return replayErr
	}
	return verdict(result, mode)
}

// verdict decides the session's exit status from its summary.
func verdict(result *types.SessionResult, mode types.ComparisonMode) error {
	summary := result.Summary

	if mode == types.ModeStrict && summary.Compatible < summary.Total {
		return fmt.Errorf("strict mode: %d of %d interactions deviated",
			summary.Total-summary.Compatible, summary.Total)
	}
	if flagFailOnThreshold && summary.EffectiveCompatibilityScore < flagThreshold {
		return fmt.Errorf("effective compatibility score %.1f%% is below threshold %.1f%%",
			summary.EffectiveCompatibilityScore, flagThreshold)
	}
	return nil
}

// publishScore pushes the finished session's scores onto the metrics sink.
func publishScore(pm *metrics.PrometheusMetrics, result *types.SessionResult) {
	if pm == nil || result == nil {
		return
	}
	pm.RecordSessionScore(result.SessionID,
		result.Summary.CompatibilityScore,
		result.Summary.EffectiveCompatibilityScore)
}

func buildEngine(
	cfg *config.Config,
	log *zap.Logger,
	mode types.ComparisonMode,
	contractFile, target string,
	sink *metrics.PrometheusMetrics,
) (*replay.Engine, error) {
	tolerances := cfg.Tolerances.ApplyMode(mode)
	classifier, err := tolerance.New(tolerances)
	if err != nil {
		return nil, err
	}
	differ := diff.New(classifier)
	judge := compat.New(differ, cfg.Replay.UnifyAdditions)
	judge.SetStrict(mode == types.ModeStrict)

	compiler := template.NewCompiler(log)
	resolver := route.NewResolver(log)
	if sink != nil {
		resolver.SetSink(sink)
	}
	contexts := route.NewContextBuilder(log)

	templatesAvailable := false
	if contractFile != "" {
		importer := contract.NewImporter(resolver, log)
		importer.SuccessSelection = cfg.Contract.SuccessSelection
		importer.PreferredStatus = cfg.Contract.PreferredStatus
		registered, err := importer.ImportFile(contractFile)
		if err != nil {
			return nil, err
		}
		templatesAvailable = registered > 0
	}

	var client *replay.LiveClient
	if target != "" {
		client = replay.NewLiveClient(target, cfg.Replay.Timeout.ToDuration(), log)
	}

	useDynamic := templatesAvailable
	if cfg.Replay.UseDynamicResponses != nil {
		useDynamic = *cfg.Replay.UseDynamicResponses && templatesAvailable
	}
	if flagNoDynamic {
		useDynamic = false
	}
	if !useDynamic && client == nil {
		return nil, fmt.Errorf("%w: --no-dynamic requires --target", types.ErrInput)
	}

	engine := replay.NewEngine(log, resolver, contexts, compiler, judge, client, replay.Options{
		Mode:                mode,
		UseDynamicResponses: useDynamic,
		PreloadTemplates:    flagPreloadTemplates || cfg.Replay.PreloadTemplates,
	})
	if sink != nil {
		engine.SetSink(sink)
	}
	return engine, nil
}

// insertSessionID turns "out/report.json" into "out/report-<id>.json" for
// batch runs.
func insertSessionID(path, sessionID string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	if ext == "" {
		ext = ".json"
	}
	return base + "-" + sessionID + ext
}

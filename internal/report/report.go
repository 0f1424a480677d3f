// Package report turns a session's replay outcome into the machine-readable
// verification report. Text and table rendering live in the CLI.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/replayproof/engine/internal/perf"
	"github.com/replayproof/engine/internal/route"
	"github.com/replayproof/engine/pkg/types"
)

// Incompatibility kinds surfaced in the report.
const (
	KindStatusMismatch = "statusMismatch"
	KindFieldRemoved   = "fieldRemoved"
	KindTypeChanged    = "typeChanged"
	KindHeaderAdded    = "headerAdded"
	KindHeaderRemoved  = "headerRemoved"
	KindError          = "error"
)

// Incompatibility names one breaking change at one endpoint.
type Incompatibility struct {
	Endpoint string `json:"endpoint"` // "GET /api/orders/123"
	Index    int    `json:"index"`
	Kind     string `json:"kind"`
	Path     string `json:"path,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// ToleratedChange records one difference absorbed by a tolerance rule.
type ToleratedChange struct {
	Endpoint string `json:"endpoint"`
	Index    int    `json:"index"`
	Path     string `json:"path"`
	Rule     string `json:"rule"`
	Old      any    `json:"old,omitempty"`
	New      any    `json:"new,omitempty"`
}

// Performance is the optional performance block.
type Performance struct {
	DurationMs            float64 `json:"durationMs"`
	InteractionsPerSecond float64 `json:"interactionsPerSecond"`
	TemplateCompilations  int64   `json:"templateCompilations"`
	TemplateRenders       int64   `json:"templateRenders"`
	AvgRenderMicros       float64 `json:"avgRenderMicros"`
	RouteCacheHits        int64   `json:"routeCacheHits"`
	RouteCacheMisses      int64   `json:"routeCacheMisses"`
	MemAllocMB            float64 `json:"memAllocMb"`
	SysMemPercent         float64 `json:"sysMemPercent"`
	CPUPercent            float64 `json:"cpuPercent"`
}

// Report is the full JSON document written for one session.
type Report struct {
	SessionID          string                    `json:"sessionId"`
	Timestamp          time.Time                 `json:"timestamp"`
	ComparisonMode     types.ComparisonMode      `json:"comparisonMode"`
	ContractFile       string                    `json:"contractFile,omitempty"`
	Target             string                    `json:"target,omitempty"`
	Summary            types.SessionSummary      `json:"summary"`
	InteractionResults []types.InteractionResult `json:"interactionResults"`
	Filter             string                    `json:"filter,omitempty"`
	FilteredStats      *types.FilteredStats      `json:"filteredStats,omitempty"`
	Incompatibilities  []Incompatibility         `json:"incompatibilities"`
	ToleratedChanges   []ToleratedChange         `json:"toleratedChanges"`
	Performance        *Performance              `json:"performance,omitempty"`
}

// Reporter builds and writes reports.
type Reporter struct {
	logger *zap.Logger
}

// NewReporter creates a reporter.
func NewReporter(logger *zap.Logger) *Reporter {
	return &Reporter{logger: logger}
}

// Meta carries run-level context attached to the report.
type Meta struct {
	ContractFile string
	Target       string
	PerfSample   *perf.Report
	Metrics      *route.Metrics
}

// Build assembles the report from a session result.
func (rp *Reporter) Build(result *types.SessionResult, meta Meta) *Report {
	r := &Report{
		SessionID:          result.SessionID,
		Timestamp:          time.Now().UTC(),
		ComparisonMode:     result.ComparisonMode,
		ContractFile:       meta.ContractFile,
		Target:             meta.Target,
		Summary:            result.Summary,
		InteractionResults: result.InteractionResults,
		Filter:             result.Filter,
		FilteredStats:      result.FilteredStats,
		Incompatibilities:  []Incompatibility{},
		ToleratedChanges:   []ToleratedChange{},
	}

	for i := range result.InteractionResults {
		collect(r, &result.InteractionResults[i])
	}

	if meta.PerfSample != nil {
		r.Performance = buildPerformance(meta.PerfSample, meta.Metrics, result.Summary.Total)
	}

	return r
}

func collect(r *Report, ir *types.InteractionResult) {
	endpoint := ir.Method + " " + ir.Path

	if ir.Error != "" {
		r.Incompatibilities = append(r.Incompatibilities, Incompatibility{
			Endpoint: endpoint,
			Index:    ir.Index,
			Kind:     KindError,
			Detail:   ir.Error,
		})
		return
	}
	if ir.Comparison == nil {
		return
	}
	cmp := ir.Comparison

	if !cmp.StatusMatch {
		r.Incompatibilities = append(r.Incompatibilities, Incompatibility{
			Endpoint: endpoint,
			Index:    ir.Index,
			Kind:     KindStatusMismatch,
			Detail:   fmt.Sprintf("recorded %d, replayed %d", cmp.RecordedStatus, cmp.ReplayedStatus),
		})
	}

	for _, d := range cmp.HeaderDifferences {
		switch d.Kind {
		case types.DiffAdded:
			r.Incompatibilities = append(r.Incompatibilities, Incompatibility{
				Endpoint: endpoint, Index: ir.Index, Kind: KindHeaderAdded, Path: d.Path,
			})
		case types.DiffRemoved:
			r.Incompatibilities = append(r.Incompatibilities, Incompatibility{
				Endpoint: endpoint, Index: ir.Index, Kind: KindHeaderRemoved, Path: d.Path,
			})
		}
		if d.Tolerated {
			r.ToleratedChanges = append(r.ToleratedChanges, ToleratedChange{
				Endpoint: endpoint, Index: ir.Index, Path: d.Path, Rule: d.Tolerance,
				Old: d.Old, New: d.New,
			})
		}
	}

	for _, d := range cmp.Differences {
		if d.Tolerated {
			r.ToleratedChanges = append(r.ToleratedChanges, ToleratedChange{
				Endpoint: endpoint, Index: ir.Index, Path: d.Path, Rule: d.Tolerance,
				Old: d.Old, New: d.New,
			})
			continue
		}
		switch d.Kind {
		case types.DiffRemoved:
			r.Incompatibilities = append(r.Incompatibilities, Incompatibility{
				Endpoint: endpoint, Index: ir.Index, Kind: KindFieldRemoved, Path: d.Path,
				Detail: d.Reason,
			})
		case types.DiffTypeChanged:
			r.Incompatibilities = append(r.Incompatibilities, Incompatibility{
				Endpoint: endpoint, Index: ir.Index, Kind: KindTypeChanged, Path: d.Path,
				Detail: d.Reason,
			})
		}
	}
}

func buildPerformance(sample *perf.Report, metrics *route.Metrics, total int) *Performance {
	p := &Performance{
		DurationMs:    sample.DurationMs,
		MemAllocMB:    float64(sample.HeapAllocBytes) / (1024 * 1024),
		SysMemPercent: sample.SystemMemUsed,
		CPUPercent:    sample.CPUPercent,
	}
	if sample.DurationMs > 0 {
		p.InteractionsPerSecond = float64(total) / (sample.DurationMs / 1000.0)
	}
	if metrics != nil {
		p.TemplateCompilations = metrics.TemplateCompilations
		p.TemplateRenders = metrics.TemplateRenders
		p.AvgRenderMicros = float64(metrics.AvgRenderTime().Microseconds())
		p.RouteCacheHits = metrics.CacheHits
		p.RouteCacheMisses = metrics.CacheMisses
	}
	return p
}

// WriteJSON writes the indented report to w.
func (rp *Reporter) WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("%w: failed to encode report: %v", types.ErrIO, err)
	}
	return nil
}

// SaveFile writes the report to path, creating parent directories.
func (rp *Reporter) SaveFile(path string, r *Report) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: failed to create report directory: %v", types.ErrIO, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: failed to create report file: %v", types.ErrIO, err)
	}
	defer f.Close()

	if err := rp.WriteJSON(f, r); err != nil {
		return err
	}

	rp.logger.Info("Report written",
		zap.String("path", path),
		zap.String("session_id", r.SessionID),
		zap.Float64("score", r.Summary.CompatibilityScore))
	return nil
}

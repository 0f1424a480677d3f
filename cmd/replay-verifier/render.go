package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/replayproof/engine/internal/report"
	"github.com/replayproof/engine/pkg/types"
)

// renderText prints the human-readable verification report.
func renderText(w io.Writer, rep *report.Report) {
	fmt.Fprintf(w, "Session %s  (mode: %s)\n", rep.SessionID, rep.ComparisonMode)
	if rep.ContractFile != "" {
		fmt.Fprintf(w, "Contract: %s\n", rep.ContractFile)
	}
	if rep.Target != "" {
		fmt.Fprintf(w, "Target:   %s\n", rep.Target)
	}
	if rep.Filter != "" {
		fmt.Fprintf(w, "Filter:   %s", rep.Filter)
		if rep.FilteredStats != nil {
			fmt.Fprintf(w, "  (%d of %d interactions selected)",
				rep.FilteredStats.FilteredCount, rep.FilteredStats.OriginalCount)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENDPOINT\tSTATUS\tDIFFS\tTOLERATED\tEFFECTIVE\tVERDICT")
	for _, ir := range rep.InteractionResults {
		fmt.Fprintf(tw, "%s %s\t%s\t%s\n", ir.Method, ir.Path, interactionColumns(&ir), interactionVerdict(&ir))
	}
	tw.Flush()

	s := rep.Summary
	fmt.Fprintf(w, "\nTotal: %d  Compatible: %d  Incompatible: %d  Errors: %d\n",
		s.Total, s.Compatible, s.Incompatible, s.Errors)
	fmt.Fprintf(w, "Changes: %d total, %d tolerated, %d effective\n",
		s.TotalChanges, s.ToleratedChanges, s.EffectiveChanges)
	fmt.Fprintf(w, "Compatibility score: %.1f%%  (effective: %.1f%%)\n",
		s.CompatibilityScore, s.EffectiveCompatibilityScore)

	if len(rep.Incompatibilities) > 0 {
		fmt.Fprintf(w, "\nIncompatibilities (%d):\n", len(rep.Incompatibilities))
		for _, inc := range rep.Incompatibilities {
			line := fmt.Sprintf("  [%s] %s", inc.Kind, inc.Endpoint)
			if inc.Path != "" {
				line += "  " + inc.Path
			}
			if inc.Detail != "" {
				line += "  (" + inc.Detail + ")"
			}
			fmt.Fprintln(w, line)
		}
	}

	if len(rep.ToleratedChanges) > 0 {
		fmt.Fprintf(w, "\nTolerated changes (%d):\n", len(rep.ToleratedChanges))
		for _, tc := range rep.ToleratedChanges {
			fmt.Fprintf(w, "  [%s] %s  %s  %v -> %v\n", tc.Rule, tc.Endpoint, tc.Path, tc.Old, tc.New)
		}
	}

	if p := rep.Performance; p != nil {
		fmt.Fprintf(w, "\nPerformance: %.1fms, %.1f interactions/s, %d renders (avg %.0fus), %d compilations\n",
			p.DurationMs, p.InteractionsPerSecond, p.TemplateRenders, p.AvgRenderMicros, p.TemplateCompilations)
		fmt.Fprintf(w, "Resources: %.1fMB heap, %.1f%% CPU, %.1f%% system memory\n",
			p.MemAllocMB, p.CPUPercent, p.SysMemPercent)
	}
}

func interactionColumns(ir *types.InteractionResult) string {
	if ir.Error != "" || ir.Comparison == nil {
		return "-\t-\t-\t-"
	}
	cmp := ir.Comparison
	status := fmt.Sprintf("%d", cmp.ReplayedStatus)
	if !cmp.StatusMatch {
		status = fmt.Sprintf("%d!=%d", cmp.RecordedStatus, cmp.ReplayedStatus)
	}
	return fmt.Sprintf("%s\t%d\t%d\t%d",
		status, cmp.TotalChanges(), cmp.BodyDiffs.Tolerated, cmp.EffectiveChanges())
}

func interactionVerdict(ir *types.InteractionResult) string {
	switch {
	case ir.Error != "":
		return "ERROR"
	case ir.Comparison == nil:
		return "ERROR"
	case ir.Comparison.IsCompatible:
		return "OK"
	case ir.Comparison.IsEffectivelyCompatible:
		return "OK*"
	default:
		return "BREAKING"
	}
}

// Package compat aggregates diff records into per-interaction verdicts and
// per-session scores.
package compat

import (
	"github.com/replayproof/engine/internal/verify/diff"
	"github.com/replayproof/engine/pkg/types"
)

// Judge turns response pairs into compatibility verdicts.
//
// Removed fields and type changes in bodies are always breaking. Added body
// fields are not breaking, but added headers are - clients routinely break
// on unexpected headers (proxies, signature schemes) while body additions
// are the normal shape of backward-compatible evolution. UnifyAdditions
// opts out of that asymmetry and treats body additions as breaking too.
type Judge struct {
	differ         *diff.Differ
	unifyAdditions bool
	strict         bool
}

// New creates a judge over the given differ.
func New(differ *diff.Differ, unifyAdditions bool) *Judge {
	return &Judge{differ: differ, unifyAdditions: unifyAdditions}
}

// SetStrict makes every non-tolerated difference breaking, including plain
// modifications and body additions.
func (j *Judge) SetStrict(strict bool) { j.strict = strict }

// Compare produces the immutable verdict for one recorded/replayed response
// pair.
func (j *Judge) Compare(recorded, replayed *types.Response) *types.ComparisonResult {
	result := &types.ComparisonResult{
		RecordedStatus: recorded.StatusCode,
		ReplayedStatus: replayed.StatusCode,
		StatusMatch:    recorded.StatusCode == replayed.StatusCode,
	}

	result.HeaderDifferences = j.differ.CompareHeaders(recorded.Headers, replayed.Headers)
	for _, d := range result.HeaderDifferences {
		result.HeaderDiffs.Total++
		if d.Tolerated {
			result.BodyDiffs.Tolerated++
			continue
		}
		switch d.Kind {
		case types.DiffAdded:
			result.HeaderDiffs.Added++
		case types.DiffRemoved:
			result.HeaderDiffs.Removed++
		case types.DiffModified, types.DiffTypeChanged:
			result.HeaderDiffs.Modified++
		}
	}

	result.Differences = j.differ.CompareBodies(recorded.Body, replayed.Body)
	for _, d := range result.Differences {
		result.BodyDiffs.Total++
		if d.Tolerated {
			result.BodyDiffs.Tolerated++
			continue
		}
		switch d.Kind {
		case types.DiffAdded:
			result.BodyDiffs.Added++
		case types.DiffRemoved:
			result.BodyDiffs.Removed++
		case types.DiffModified:
			result.BodyDiffs.Modified++
		case types.DiffTypeChanged:
			result.BodyDiffs.TypeChanged++
		}
	}

	result.IsCompatible = result.StatusMatch &&
		result.HeaderDiffs.Added == 0 &&
		result.HeaderDiffs.Removed == 0 &&
		result.BodyDiffs.Removed == 0 &&
		result.BodyDiffs.TypeChanged == 0
	if j.unifyAdditions && result.BodyDiffs.Added > 0 {
		result.IsCompatible = false
	}
	if j.strict && result.EffectiveChanges() > 0 {
		result.IsCompatible = false
	}

	result.IsEffectivelyCompatible = result.IsCompatible || result.EffectiveChanges() == 0
	// Strict mode keeps both verdicts aligned: a breaking pair with no diff
	// records (a bare status mismatch) must not score as effectively fine.
	if j.strict {
		result.IsEffectivelyCompatible = result.IsCompatible
	}

	return result
}

// Summarize aggregates interaction results into the session summary.
// Invariant: Total == Compatible + Incompatible + Errors.
func Summarize(results []types.InteractionResult) types.SessionSummary {
	var s types.SessionSummary
	s.Total = len(results)

	effectiveCompatible := 0
	for i := range results {
		r := &results[i]
		if r.Error != "" || r.Comparison == nil {
			s.Errors++
			continue
		}
		cmp := r.Comparison
		if cmp.IsCompatible {
			s.Compatible++
		} else {
			s.Incompatible++
		}
		if cmp.IsEffectivelyCompatible {
			effectiveCompatible++
		}
		s.TotalChanges += cmp.TotalChanges()
		s.ToleratedChanges += cmp.BodyDiffs.Tolerated
	}
	s.EffectiveChanges = s.TotalChanges - s.ToleratedChanges

	if s.Total > 0 {
		s.CompatibilityScore = 100 * float64(s.Compatible) / float64(s.Total)
		s.EffectiveCompatibilityScore = 100 * float64(effectiveCompatible) / float64(s.Total)
	}
	return s
}

package types

import "time"

// ComparisonMode selects the tolerance preset applied before diffing.
type ComparisonMode string

const (
	// ModeDefault uses the tolerance configuration as supplied.
	ModeDefault ComparisonMode = "default"
	// ModeStrict zeroes every tolerance; any deviation fails.
	ModeStrict ComparisonMode = "strict"
	// ModeTolerant force-enables all tolerance features with defaults.
	ModeTolerant ComparisonMode = "tolerant"
)

// HeaderDiffStats tallies header-level differences for one interaction.
type HeaderDiffStats struct {
	Added    int `json:"added"`
	Removed  int `json:"removed"`
	Modified int `json:"modified"`
	Total    int `json:"total"`
}

// BodyDiffStats tallies body-level differences for one interaction.
// Tolerated differences are excluded from the kind counters but included in
// Total.
type BodyDiffStats struct {
	Added       int `json:"added"`
	Removed     int `json:"removed"`
	Modified    int `json:"modified"`
	TypeChanged int `json:"typeChanged"`
	Tolerated   int `json:"tolerated"`
	Total       int `json:"total"`
}

// ComparisonResult is the per-interaction verdict. Never mutated after the
// verdict is emitted.
type ComparisonResult struct {
	StatusMatch             bool            `json:"statusMatch"`
	RecordedStatus          int             `json:"recordedStatus"`
	ReplayedStatus          int             `json:"replayedStatus"`
	HeaderDiffs             HeaderDiffStats `json:"headerDiffs"`
	BodyDiffs               BodyDiffStats   `json:"bodyDiffs"`
	IsCompatible            bool            `json:"isCompatible"`
	IsEffectivelyCompatible bool            `json:"isEffectivelyCompatible"`
	Differences             []Difference    `json:"differences,omitempty"`
	HeaderDifferences       []Difference    `json:"headerDifferences,omitempty"`
}

// TotalChanges returns header plus body difference totals.
func (r *ComparisonResult) TotalChanges() int {
	return r.HeaderDiffs.Total + r.BodyDiffs.Total
}

// EffectiveChanges returns the changes remaining after tolerances.
func (r *ComparisonResult) EffectiveChanges() int {
	return r.TotalChanges() - r.BodyDiffs.Tolerated
}

// InteractionResult couples an interaction's endpoint identity with its
// comparison outcome. Exactly one of Comparison or Error is set.
type InteractionResult struct {
	Index       int               `json:"index"`
	Method      string            `json:"method"`
	Path        string            `json:"path"`
	RequestHash string            `json:"requestHash,omitempty"`
	Source      string            `json:"source"` // "template" or "live"
	Comparison  *ComparisonResult `json:"comparison,omitempty"`
	Error       string            `json:"error,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
	ReplayError bool              `json:"replayError,omitempty"`
}

// SessionSummary aggregates verdicts across a session.
// Invariant: Total == Compatible + Incompatible + Errors.
type SessionSummary struct {
	Total                       int     `json:"total"`
	Compatible                  int     `json:"compatible"`
	Incompatible                int     `json:"incompatible"`
	Errors                      int     `json:"errors"`
	TotalChanges                int     `json:"totalChanges"`
	ToleratedChanges            int     `json:"toleratedChanges"`
	EffectiveChanges            int     `json:"effectiveChanges"`
	CompatibilityScore          float64 `json:"compatibilityScore"`
	EffectiveCompatibilityScore float64 `json:"effectiveCompatibilityScore"`
}

// FilteredStats reports original and post-filter interaction counts when a
// session filter was applied.
type FilteredStats struct {
	OriginalCount int `json:"originalCount"`
	FilteredCount int `json:"filteredCount"`
	ExcludedCount int `json:"excludedCount"`
}

// SessionResult is the aggregate verification outcome for one session.
type SessionResult struct {
	SessionID          string              `json:"sessionId"`
	Summary            SessionSummary      `json:"summary"`
	InteractionResults []InteractionResult `json:"interactionResults"`
	ComparisonMode     ComparisonMode      `json:"comparisonMode"`
	Filter             string              `json:"filter,omitempty"`
	FilteredStats      *FilteredStats      `json:"filteredStats,omitempty"`
}

// Package replay orchestrates iteration over a session's interactions,
// choosing template or live-HTTP replay per interaction and aggregating the
// per-session verification result.
package replay

import (
	"fmt"
	"strings"

	"github.com/replayproof/engine/pkg/pattern"
	"github.com/replayproof/engine/pkg/types"
)

// Filter selects which interactions of a session are replayed. Criteria
// within one list are ORed; the lists themselves are ANDed.
type Filter struct {
	// Methods restricts replay to the given HTTP methods (case-insensitive).
	Methods []string
	// Routes restricts replay to paths matching any entry. Entries support
	// glob-like '*' wildcards; entries without a wildcard also match as
	// substrings.
	Routes []string
	// Tags requires the interaction to carry at least one of these tags.
	Tags []string
	// SessionTags requires the session metadata to carry at least one of
	// these tags; otherwise the whole session is excluded.
	SessionTags []string
}

// IsEmpty reports whether the filter selects everything.
func (f *Filter) IsEmpty() bool {
	return f == nil ||
		(len(f.Methods) == 0 && len(f.Routes) == 0 && len(f.Tags) == 0 && len(f.SessionTags) == 0)
}

// Describe returns the report-facing summary of the filter.
func (f *Filter) Describe() string {
	if f.IsEmpty() {
		return ""
	}
	var parts []string
	if len(f.Methods) > 0 {
		parts = append(parts, "methods="+strings.Join(f.Methods, ","))
	}
	if len(f.Routes) > 0 {
		parts = append(parts, "routes="+strings.Join(f.Routes, ","))
	}
	if len(f.Tags) > 0 {
		parts = append(parts, "tags="+strings.Join(f.Tags, ","))
	}
	if len(f.SessionTags) > 0 {
		parts = append(parts, "sessionTags="+strings.Join(f.SessionTags, ","))
	}
	return strings.Join(parts, " ")
}

// Apply returns the interactions selected for replay along with
// original/filtered counts. The session itself is never mutated.
func (f *Filter) Apply(session *types.Session) ([]types.Interaction, *types.FilteredStats) {
	stats := &types.FilteredStats{OriginalCount: len(session.Interactions)}

	if f.IsEmpty() {
		stats.FilteredCount = stats.OriginalCount
		return session.Interactions, stats
	}

	if len(f.SessionTags) > 0 && !f.matchesSessionTags(&session.Metadata) {
		stats.ExcludedCount = stats.OriginalCount
		return nil, stats
	}

	var selected []types.Interaction
	for _, interaction := range session.Interactions {
		if f.Matches(&interaction) {
			selected = append(selected, interaction)
		}
	}

	stats.FilteredCount = len(selected)
	stats.ExcludedCount = stats.OriginalCount - stats.FilteredCount
	return selected, stats
}

// Matches reports whether one interaction passes the per-interaction
// criteria (methods, routes, tags). Session tags are checked separately by
// Apply.
func (f *Filter) Matches(interaction *types.Interaction) bool {
	if len(f.Methods) > 0 {
		found := false
		for _, m := range f.Methods {
			if strings.EqualFold(m, interaction.Request.Method) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(f.Routes) > 0 && !f.matchesRoute(interaction.Request.Path) {
		return false
	}

	if len(f.Tags) > 0 {
		found := false
		for _, t := range f.Tags {
			if interaction.HasTag(t) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

func (f *Filter) matchesRoute(path string) bool {
	for _, r := range f.Routes {
		if strings.Contains(r, "*") {
			if pattern.MatchWildcard(strings.ToLower(path), strings.ToLower(r)) {
				return true
			}
			continue
		}
		if strings.Contains(strings.ToLower(path), strings.ToLower(r)) {
			return true
		}
	}
	return false
}

func (f *Filter) matchesSessionTags(meta *types.SessionMetadata) bool {
	for _, t := range f.SessionTags {
		if meta.HasTag(t) {
			return true
		}
	}
	return false
}

// ParseList splits a comma-separated flag value into trimmed entries.
func ParseList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// String implements fmt.Stringer.
func (f *Filter) String() string {
	if f.IsEmpty() {
		return "<empty>"
	}
	return fmt.Sprintf("Filter(%s)", f.Describe())
}

// Package tolerance decides which textual differences between recorded and
// replayed values are semantically equivalent: timestamp drift, UUID
// normalization, array reordering, and ignore-field masks.
//
// The classifier is a pure predicate layer over (path, key, value); it holds
// no mutable state and is applied by the differ before any difference is
// emitted.
package tolerance

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/replayproof/engine/pkg/pattern"
	"github.com/replayproof/engine/pkg/types"
)

// Tolerance rule names surfaced in diff records and reports.
const (
	RuleTimestampDrift    = "timestamp-drift"
	RuleUUIDNormalization = "uuid-normalization"
)

var (
	// YYYY-MM-DDTHH:MM:SS[.fff][Z or offset]
	isoTimestampRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:?\d{2})?$`)
	// 8-4-4-4-12 hex, case-insensitive, hyphens optional
	uuidRe = regexp.MustCompile(`^[0-9a-fA-F]{8}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{4}-?[0-9a-fA-F]{12}$`)
)

const (
	// Plausible epoch-millisecond lower bound: 2000-01-01T00:00:00Z.
	minPlausibleMillis = 946684800000
	// Values below this are interpreted as epoch seconds (2100-01-01 in
	// seconds is still far below 2000-01-01 in milliseconds).
	secondsUpperBound = 4102444800
)

// Classifier evaluates tolerance rules against a ToleranceConfig.
type Classifier struct {
	cfg            types.ToleranceConfig
	ignorePatterns []*pattern.Pattern
	ignoreHeaders  map[string]struct{}
	now            func() time.Time
}

// New compiles a classifier from the given configuration. Invalid ignore
// patterns are rejected up front so replay never fails mid-session.
func New(cfg types.ToleranceConfig) (*Classifier, error) {
	c := &Classifier{
		cfg:           cfg,
		ignoreHeaders: make(map[string]struct{}, len(cfg.IgnoreHeaders)),
		now:           time.Now,
	}

	for _, raw := range cfg.IgnoreFields {
		p, err := pattern.Compile(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: ignore_fields entry '%s': %v", types.ErrInput, raw, err)
		}
		c.ignorePatterns = append(c.ignorePatterns, p)
	}

	for _, h := range cfg.IgnoreHeaders {
		c.ignoreHeaders[strings.ToLower(h)] = struct{}{}
	}

	return c, nil
}

// Config returns the configuration the classifier was compiled from.
func (c *Classifier) Config() types.ToleranceConfig { return c.cfg }

// SetClock overrides the clock used for the plausible-timestamp upper bound
// (tests only).
func (c *Classifier) SetClock(now func() time.Time) { c.now = now }

// IsIgnoredField reports whether a body path is excluded from diffing.
// A path is ignored when it exactly matches an entry, is dot-prefix-matched
// by one, or matches a wildcard/regex entry. Ignore dominates every other
// classification, including removals.
func (c *Classifier) IsIgnoredField(path string) bool {
	for _, p := range c.ignorePatterns {
		if p.MatchesPath(path) {
			return true
		}
	}
	return false
}

// IsIgnoredHeader reports whether a header (any case) is excluded from
// header diffing.
func (c *Classifier) IsIgnoredHeader(name string) bool {
	_, ok := c.ignoreHeaders[strings.ToLower(name)]
	return ok
}

// ShouldSortArray reports whether the sequence at path must be sorted before
// element-wise comparison. With an empty ArrayFields list the SortArrays
// flag applies to every array; otherwise only listed paths (exact or
// dot-prefix in either direction) are sorted.
func (c *Classifier) ShouldSortArray(path string) bool {
	if !c.cfg.SortArrays && len(c.cfg.ArrayFields) == 0 {
		return false
	}
	if len(c.cfg.ArrayFields) == 0 {
		return c.cfg.SortArrays
	}
	for _, field := range c.cfg.ArrayFields {
		if field == path || strings.HasPrefix(path, field+".") || strings.HasPrefix(field, path+".") {
			return true
		}
	}
	return false
}

// IsTimestamp reports whether (key, value) is timestamp-ish: the key matches
// a configured name fragment, or the value is an ISO-8601 string, or the
// value is a number in the plausible epoch range.
func (c *Classifier) IsTimestamp(key string, value any) bool {
	if c.keyMatchesFragment(key, c.cfg.TimestampFields) {
		return true
	}
	switch v := value.(type) {
	case string:
		return isoTimestampRe.MatchString(v)
	case float64:
		millis := toMillis(v)
		return millis >= minPlausibleMillis && millis <= float64(c.now().UnixMilli())
	}
	return false
}

// IsUUID reports whether (key, value) is UUID-ish: the key matches a
// configured name fragment and the value is a canonical UUID string.
func (c *Classifier) IsUUID(key string, value any) bool {
	if !c.keyMatchesFragment(key, c.cfg.UUIDFields) {
		return false
	}
	s, ok := value.(string)
	return ok && uuidRe.MatchString(s)
}

// Equivalent reports whether two differing leaf values are equivalent under
// the configured tolerances. The returned rule names the tolerance that
// absorbed the difference.
func (c *Classifier) Equivalent(key string, recorded, replayed any) (rule string, ok bool) {
	if c.cfg.IgnoreUUIDs && c.IsUUID(key, recorded) && c.IsUUID(key, replayed) {
		return RuleUUIDNormalization, true
	}

	if c.cfg.TimestampDriftSeconds > 0 && c.IsTimestamp(key, recorded) && c.IsTimestamp(key, replayed) {
		t1, ok1 := timestampMillis(recorded)
		t2, ok2 := timestampMillis(replayed)
		if ok1 && ok2 && math.Abs(t1-t2) <= c.cfg.TimestampDriftSeconds*1000 {
			return RuleTimestampDrift, true
		}
	}

	return "", false
}

func (c *Classifier) keyMatchesFragment(key string, fragments []string) bool {
	if key == "" {
		return false
	}
	lower := strings.ToLower(key)
	for _, f := range fragments {
		if f != "" && strings.Contains(lower, strings.ToLower(f)) {
			return true
		}
	}
	return false
}

// timestampMillis converts a timestamp-ish value to epoch milliseconds.
// ISO-8601 strings and epoch numbers (seconds or milliseconds) are
// supported, so a string and a number encoding the same instant compare
// equal.
func timestampMillis(v any) (float64, bool) {
	switch t := v.(type) {
	case string:
		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04:05.000"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return float64(parsed.UnixMilli()), true
			}
		}
		return 0, false
	case float64:
		return toMillis(t), true
	}
	return 0, false
}

// toMillis widens epoch seconds into milliseconds; values already in the
// millisecond range pass through.
func toMillis(n float64) float64 {
	if n < secondsUpperBound {
		return n * 1000
	}
	return n
}

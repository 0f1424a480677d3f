package types

// ToleranceConfig controls which semantically-equivalent differences are
// absorbed before they reach the breaking-change tally.
type ToleranceConfig struct {
	// TimestampDriftSeconds is the maximum allowed drift between two values
	// detected as timestamps. Zero means any timestamp difference counts.
	TimestampDriftSeconds float64 `yaml:"timestamp_drift_seconds" json:"timestampDriftSeconds"`
	// IgnoreUUIDs treats any two detected UUIDs as equivalent.
	IgnoreUUIDs bool `yaml:"ignore_uuids" json:"ignoreUUIDs"`
	// SortArrays sorts sequences before element-wise comparison. When
	// ArrayFields is non-empty only the listed paths are sorted.
	SortArrays bool `yaml:"sort_arrays" json:"sortArrays"`
	// ArrayFields restricts array sorting to exact or prefix path matches.
	ArrayFields []string `yaml:"array_fields,omitempty" json:"arrayFields,omitempty"`
	// TimestampFields are case-insensitive key fragments marking timestamp
	// fields regardless of value shape.
	TimestampFields []string `yaml:"timestamp_fields,omitempty" json:"timestampFields,omitempty"`
	// UUIDFields are case-insensitive key fragments marking UUID fields.
	UUIDFields []string `yaml:"uuid_fields,omitempty" json:"uuidFields,omitempty"`
	// IgnoreFields are path patterns (exact, dot-prefix, wildcard, or ~regex)
	// excluded from diffing entirely.
	IgnoreFields []string `yaml:"ignore_fields,omitempty" json:"ignoreFields,omitempty"`
	// IgnoreHeaders are header names (lowercased) excluded from header
	// diffing.
	IgnoreHeaders []string `yaml:"ignore_headers,omitempty" json:"ignoreHeaders,omitempty"`
}

// DefaultTolerances returns the tolerance configuration used when none is
// supplied. Field fragments mirror the defaults of the baseline recorder.
func DefaultTolerances() ToleranceConfig {
	return ToleranceConfig{
		TimestampDriftSeconds: 5,
		IgnoreUUIDs:           true,
		SortArrays:            true,
		TimestampFields:       []string{"created_at", "updated_at", "createdAt", "updatedAt", "timestamp"},
		UUIDFields:            []string{"id", "uuid", "orderId", "guid"},
		IgnoreHeaders:         []string{"date", "content-length", "connection", "keep-alive"},
	}
}

// StrictTolerances returns a fully zeroed configuration: no drift, no UUID
// normalization, no array sorting, empty lists.
func StrictTolerances() ToleranceConfig {
	return ToleranceConfig{}
}

// ApplyMode derives the effective tolerance configuration for a comparison
// mode. Strict zeroes everything; tolerant force-enables all features with
// at least the default drift; default returns the supplied config unchanged.
func (c ToleranceConfig) ApplyMode(mode ComparisonMode) ToleranceConfig {
	switch mode {
	case ModeStrict:
		return StrictTolerances()
	case ModeTolerant:
		defaults := DefaultTolerances()
		out := c
		out.IgnoreUUIDs = true
		out.SortArrays = true
		if out.TimestampDriftSeconds < defaults.TimestampDriftSeconds {
			out.TimestampDriftSeconds = defaults.TimestampDriftSeconds
		}
		if len(out.TimestampFields) == 0 {
			out.TimestampFields = defaults.TimestampFields
		}
		if len(out.UUIDFields) == 0 {
			out.UUIDFields = defaults.UUIDFields
		}
		if len(out.IgnoreHeaders) == 0 {
			out.IgnoreHeaders = defaults.IgnoreHeaders
		}
		return out
	default:
		return c
	}
}

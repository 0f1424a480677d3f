package tolerance

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/replayproof/engine/pkg/types"
)

// fixedNow keeps the plausible-timestamp upper bound stable across test runs.
var fixedNow = time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)

func newClassifier(t *testing.T, cfg types.ToleranceConfig) *Classifier {
	t.Helper()
	c, err := New(cfg)
	require.NoError(t, err)
	c.SetClock(func() time.Time { return fixedNow })
	return c
}

func TestNew_RejectsInvalidIgnorePattern(t *testing.T) {
	_, err := New(types.ToleranceConfig{IgnoreFields: []string{"~[broken"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInput)
}

func TestIsIgnoredField(t *testing.T) {
	c := newClassifier(t, types.ToleranceConfig{
		IgnoreFields: []string{"meta", "debug.trace", "items[*].etag", "~*internal"},
	})

	tests := []struct {
		path string
		want bool
	}{
		{"meta", true},
		{"meta.requestId", true},      // dot-prefix of an exact entry
		{"metadata", false},           // not a prefix match
		{"debug.trace", true},
		{"debug.trace.spans", true},
		{"items[0].etag", true},       // wildcard
		{"items[3].etag", true},
		{"items[0].price", false},
		{"some.internalField", true},  // case-insensitive regex
		{"user.email", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.IsIgnoredField(tt.path), tt.path)
	}
}

func TestIsIgnoredHeader(t *testing.T) {
	c := newClassifier(t, types.DefaultTolerances())

	assert.True(t, c.IsIgnoredHeader("date"))
	assert.True(t, c.IsIgnoredHeader("Date"))
	assert.True(t, c.IsIgnoredHeader("CONTENT-LENGTH"))
	assert.False(t, c.IsIgnoredHeader("x-request-id"))
}

func TestShouldSortArray(t *testing.T) {
	t.Run("disabled by default", func(t *testing.T) {
		c := newClassifier(t, types.ToleranceConfig{})
		assert.False(t, c.ShouldSortArray("items"))
	})

	t.Run("global flag sorts everything", func(t *testing.T) {
		c := newClassifier(t, types.ToleranceConfig{SortArrays: true})
		assert.True(t, c.ShouldSortArray("items"))
		assert.True(t, c.ShouldSortArray("deeply.nested.list"))
	})

	t.Run("field list restricts sorting", func(t *testing.T) {
		c := newClassifier(t, types.ToleranceConfig{
			SortArrays:  true,
			ArrayFields: []string{"products"},
		})
		assert.True(t, c.ShouldSortArray("products"))
		assert.True(t, c.ShouldSortArray("products.variants"))
		assert.False(t, c.ShouldSortArray("orders"))
	})
}

func TestIsTimestamp(t *testing.T) {
	c := newClassifier(t, types.DefaultTolerances())

	tests := []struct {
		name  string
		key   string
		value any
		want  bool
	}{
		{"configured key fragment", "created_at", "anything", true},
		{"fragment is substring match", "order_created_at_utc", "x", true},
		{"ISO string without key hint", "when", "2026-08-26T10:00:00Z", true},
		{"ISO with millis and offset", "when", "2026-08-26T10:00:00.123+02:00", true},
		{"plain string is not a timestamp", "when", "yesterday", false},
		{"epoch millis in range", "t", float64(1756200000000), true},
		{"epoch seconds in range", "t", float64(1756200000), true},
		{"small number is not a timestamp", "count", float64(42), false},
		{"future epoch beyond now", "t", float64(fixedNow.UnixMilli() + 86400000), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.IsTimestamp(tt.key, tt.value))
		})
	}
}

func TestIsUUID(t *testing.T) {
	c := newClassifier(t, types.DefaultTolerances())

	assert.True(t, c.IsUUID("id", "0d7e3a52-9c1b-4f2e-8a3d-6b5c4e2f1a09"))
	assert.True(t, c.IsUUID("orderId", "0D7E3A529C1B4F2E8A3D6B5C4E2F1A09")) // hyphenless, upper
	assert.False(t, c.IsUUID("name", "0d7e3a52-9c1b-4f2e-8a3d-6b5c4e2f1a09"))
	assert.False(t, c.IsUUID("id", "not-a-uuid"))
	assert.False(t, c.IsUUID("id", float64(5)))
}

func TestEquivalent_UUIDNormalization(t *testing.T) {
	c := newClassifier(t, types.DefaultTolerances())

	rule, ok := c.Equivalent("id",
		"0d7e3a52-9c1b-4f2e-8a3d-6b5c4e2f1a09",
		"f1e2d3c4-b5a6-4789-9abc-def012345678")
	assert.True(t, ok)
	assert.Equal(t, RuleUUIDNormalization, rule)

	// Disabled normalization keeps UUID changes breaking.
	strict := newClassifier(t, types.StrictTolerances())
	_, ok = strict.Equivalent("id",
		"0d7e3a52-9c1b-4f2e-8a3d-6b5c4e2f1a09",
		"f1e2d3c4-b5a6-4789-9abc-def012345678")
	assert.False(t, ok)
}

func TestEquivalent_TimestampDrift(t *testing.T) {
	c := newClassifier(t, types.DefaultTolerances())

	t.Run("within 5s drift", func(t *testing.T) {
		rule, ok := c.Equivalent("created_at",
			"2026-08-26T10:00:00Z", "2026-08-26T10:00:04Z")
		assert.True(t, ok)
		assert.Equal(t, RuleTimestampDrift, rule)
	})

	t.Run("exactly at boundary is tolerated", func(t *testing.T) {
		_, ok := c.Equivalent("created_at",
			"2026-08-26T10:00:00Z", "2026-08-26T10:00:05Z")
		assert.True(t, ok)
	})

	t.Run("beyond boundary is not", func(t *testing.T) {
		_, ok := c.Equivalent("created_at",
			"2026-08-26T10:00:00Z", "2026-08-26T10:00:06Z")
		assert.False(t, ok)
	})

	t.Run("string and epoch number for the same instant", func(t *testing.T) {
		instant := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)
		_, ok := c.Equivalent("timestamp",
			instant.Format(time.RFC3339), float64(instant.Unix()))
		assert.True(t, ok)
	})

	t.Run("zero drift config disables the rule", func(t *testing.T) {
		strict := newClassifier(t, types.StrictTolerances())
		_, ok := strict.Equivalent("created_at",
			"2026-08-26T10:00:00Z", "2026-08-26T10:00:01Z")
		assert.False(t, ok)
	})
}

func TestApplyMode(t *testing.T) {
	base := types.DefaultTolerances()

	t.Run("strict zeroes everything", func(t *testing.T) {
		got := base.ApplyMode(types.ModeStrict)
		assert.Equal(t, types.StrictTolerances(), got)
	})

	t.Run("tolerant force-enables features", func(t *testing.T) {
		custom := types.ToleranceConfig{TimestampDriftSeconds: 1}
		got := custom.ApplyMode(types.ModeTolerant)
		assert.True(t, got.IgnoreUUIDs)
		assert.True(t, got.SortArrays)
		assert.Equal(t, float64(5), got.TimestampDriftSeconds)
		assert.NotEmpty(t, got.TimestampFields)
	})

	t.Run("tolerant keeps larger custom drift", func(t *testing.T) {
		custom := types.ToleranceConfig{TimestampDriftSeconds: 30}
		got := custom.ApplyMode(types.ModeTolerant)
		assert.Equal(t, float64(30), got.TimestampDriftSeconds)
	})

	t.Run("default passes through", func(t *testing.T) {
		got := base.ApplyMode(types.ModeDefault)
		assert.Equal(t, base, got)
	})
}

func TestEquivalent_DriftMonotonic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	base := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	properties.Property("raising the drift budget never rejects a tolerated pair", prop.ForAll(
		func(drift, extra, offset int) bool {
			a := base.Format(time.RFC3339)
			b := base.Add(time.Duration(offset) * time.Second).Format(time.RFC3339)

			small := newClassifier(t, types.ToleranceConfig{TimestampDriftSeconds: float64(drift)})
			_, okSmall := small.Equivalent("created_at", a, b)
			if !okSmall {
				return true
			}

			large := newClassifier(t, types.ToleranceConfig{TimestampDriftSeconds: float64(drift + extra)})
			_, okLarge := large.Equivalent("created_at", a, b)
			return okLarge
		},
		gen.IntRange(1, 10),
		gen.IntRange(0, 10),
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}

package template

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/replayproof/engine/pkg/types"
)

// Helper is a template helper function. Args arrive evaluated; the returned
// value may be any JSON-shaped type (single-token placeholders surface it
// raw).
type Helper func(args []any, ctx map[string]any) (any, error)

// isoMillisLayout is the default "now" format: ISO-8601 with milliseconds
// and UTC offset.
const isoMillisLayout = "2006-01-02T15:04:05.000Z07:00"

// registerBuiltins installs the required helper set on a compiler.
func (c *Compiler) registerBuiltins() {
	c.helpers["uuid"] = func(_ []any, _ map[string]any) (any, error) {
		return uuid.NewString(), nil
	}

	c.helpers["now"] = func(args []any, _ map[string]any) (any, error) {
		now := c.now()
		if len(args) == 0 {
			return now.Format(isoMillisLayout), nil
		}
		return now.Format(resolveTimeLayout(Stringify(args[0]))), nil
	}

	c.helpers["timestamp"] = func(_ []any, _ map[string]any) (any, error) {
		return c.now().UnixMilli(), nil
	}

	c.helpers["random"] = func(args []any, _ map[string]any) (any, error) {
		min, max := 0, 100
		if len(args) > 0 {
			if n, err := strconv.Atoi(Stringify(args[0])); err == nil {
				min = n
			}
		}
		if len(args) > 1 {
			if n, err := strconv.Atoi(Stringify(args[1])); err == nil {
				max = n
			}
		}
		if max < min {
			min, max = max, min
		}
		return min + c.rand.Intn(max-min+1), nil
	}

	c.helpers["concat"] = func(args []any, _ map[string]any) (any, error) {
		var b strings.Builder
		for _, a := range args {
			b.WriteString(Stringify(a))
		}
		return b.String(), nil
	}

	// Inline (non-block) form of if_eq returns a boolean; the block form is
	// handled by the parser.
	c.helpers["if_eq"] = func(args []any, _ map[string]any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: if_eq requires exactly 2 arguments, got %d", types.ErrRender, len(args))
		}
		return Stringify(args[0]) == Stringify(args[1]), nil
	}
}

// resolveTimeLayout maps friendly format names to Go layouts; anything else
// is taken as a Go layout string.
func resolveTimeLayout(name string) string {
	switch strings.ToLower(name) {
	case "iso", "iso8601":
		return isoMillisLayout
	case "date":
		return "2006-01-02"
	case "time":
		return "15:04:05"
	case "rfc3339":
		return time.RFC3339
	default:
		return name
	}
}

// RegisterHelper installs a user helper on this compiler instance. Helpers
// are compile-time resolved: register before compiling templates that use
// them.
func (c *Compiler) RegisterHelper(name string, fn Helper) {
	c.helpers[name] = fn
}

// SetClock overrides the helper clock (tests only).
func (c *Compiler) SetClock(now func() time.Time) { c.now = now }

// SetRand overrides the helper random source (tests only).
func (c *Compiler) SetRand(r *rand.Rand) { c.rand = r }

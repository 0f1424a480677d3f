package template

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/replayproof/engine/internal/verify/canon"
)

// Compiler compiles template values and holds the instance-scoped helper
// registry and the fingerprint-keyed compilation cache.
//
// Not safe for concurrent use; replay is single-threaded per session.
type Compiler struct {
	helpers map[string]Helper
	cache   map[uint64]*Template
	now     func() time.Time
	rand    *rand.Rand
	logger  *zap.Logger

	// Compilations counts cache-missing Compile calls (metrics surface).
	Compilations int
}

// Template is a compiled, immutable template: a pure function from render
// context to structured value.
type Template struct {
	source      any
	fingerprint uint64
	root        compiledValue
}

// compiledValue rebuilds one node of the template's shape per render.
type compiledValue interface {
	render(c *Compiler, ctx map[string]any) (any, error)
}

// constValue is a leaf with no placeholders: rendering returns the original
// value for every context.
type constValue struct {
	value any
}

func (v *constValue) render(_ *Compiler, _ map[string]any) (any, error) {
	return v.value, nil
}

// exprValue is a leaf string containing placeholders.
type exprValue struct {
	nodes []node
}

func (v *exprValue) render(c *Compiler, ctx map[string]any) (any, error) {
	return renderNodes(c, ctx, v.nodes)
}

// objectValue rebuilds a mapping on each render.
type objectValue struct {
	keys   []string
	values []compiledValue
}

func (v *objectValue) render(c *Compiler, ctx map[string]any) (any, error) {
	out := make(map[string]any, len(v.keys))
	for i, k := range v.keys {
		rendered, err := v.values[i].render(c, ctx)
		if err != nil {
			return nil, err
		}
		out[k] = rendered
	}
	return out, nil
}

// arrayValue rebuilds a sequence on each render.
type arrayValue struct {
	elements []compiledValue
}

func (v *arrayValue) render(c *Compiler, ctx map[string]any) (any, error) {
	out := make([]any, len(v.elements))
	for i, el := range v.elements {
		rendered, err := el.render(c, ctx)
		if err != nil {
			return nil, err
		}
		out[i] = rendered
	}
	return out, nil
}

// NewCompiler creates a compiler with the built-in helper set registered.
func NewCompiler(logger *zap.Logger) *Compiler {
	c := &Compiler{
		helpers: make(map[string]Helper),
		cache:   make(map[uint64]*Template),
		now:     time.Now,
		rand:    rand.New(rand.NewSource(time.Now().UnixNano())),
		logger:  logger,
	}
	c.registerBuiltins()
	return c
}

// Compile compiles a template value. String leaves containing "{{" become
// render expressions; every other leaf is preserved as a constant. Compiled
// templates are memoized by source fingerprint.
func (c *Compiler) Compile(source any) (*Template, error) {
	fp := Fingerprint(source)
	if cached, ok := c.cache[fp]; ok {
		return cached, nil
	}

	root, err := c.compileValue(canon.Value(source))
	if err != nil {
		return nil, err
	}

	c.Compilations++
	tmpl := &Template{source: source, fingerprint: fp, root: root}
	c.cache[fp] = tmpl

	if c.logger != nil {
		c.logger.Debug("Compiled template", zap.Uint64("fingerprint", fp))
	}
	return tmpl, nil
}

func (c *Compiler) compileValue(v any) (compiledValue, error) {
	switch t := v.(type) {
	case string:
		if !containsPlaceholder(t) {
			return &constValue{value: t}, nil
		}
		nodes, err := c.parse(t)
		if err != nil {
			return nil, err
		}
		return &exprValue{nodes: nodes}, nil

	case map[string]any:
		obj := &objectValue{
			keys:   canon.SortedKeys(t),
			values: make([]compiledValue, 0, len(t)),
		}
		for _, k := range obj.keys {
			cv, err := c.compileValue(t[k])
			if err != nil {
				return nil, fmt.Errorf("field '%s': %w", k, err)
			}
			obj.values = append(obj.values, cv)
		}
		return obj, nil

	case []any:
		arr := &arrayValue{elements: make([]compiledValue, 0, len(t))}
		for i, el := range t {
			cv, err := c.compileValue(el)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			arr.elements = append(arr.elements, cv)
		}
		return arr, nil

	default:
		return &constValue{value: v}, nil
	}
}

// Render evaluates the template against a context. Errors are fatal for the
// interaction being replayed; they wrap ErrRender.
func (t *Template) Render(c *Compiler, ctx map[string]any) (any, error) {
	out, err := t.root.render(c, ctx)
	if err != nil {
		return nil, fmt.Errorf("template render failed: %w", err)
	}
	return out, nil
}

// Fingerprint returns the template's source fingerprint.
func (t *Template) Fingerprint() uint64 { return t.fingerprint }

// Source returns the original source value the template was compiled from.
func (t *Template) Source() any { return t.source }

// Fingerprint computes the deterministic hash of a template's source form.
func Fingerprint(source any) uint64 {
	return xxhash.Sum64String(canon.Fingerprint(canon.Value(source)))
}

func containsPlaceholder(s string) bool {
	return strings.Contains(s, "{{")
}

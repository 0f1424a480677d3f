// Package template compiles string and object templates containing {{...}}
// placeholder expressions into pure render functions.
//
// Placeholders are parsed once into a small AST (literal, lookup, helper,
// block) and evaluated against a render context; there is no string
// re-interpolation at render time. Helpers are scoped to a Compiler
// instance, never process-global.
package template

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/replayproof/engine/pkg/types"
)

// node is one parsed segment of a string template.
type node interface {
	eval(c *Compiler, ctx map[string]any) (any, error)
}

// literalNode is verbatim text between placeholders.
type literalNode struct {
	text string
}

func (n *literalNode) eval(_ *Compiler, _ map[string]any) (any, error) {
	return n.text, nil
}

// lookupNode resolves a dotted path ("request.params.id") against the
// context. Unresolved paths are render errors; the literal placeholder text
// must never leak into output.
type lookupNode struct {
	path []string
}

func (n *lookupNode) eval(_ *Compiler, ctx map[string]any) (any, error) {
	var current any = ctx
	for i, seg := range n.path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: cannot resolve '%s': '%s' is not an object",
				types.ErrRender, strings.Join(n.path, "."), strings.Join(n.path[:i], "."))
		}
		current, ok = m[seg]
		if !ok {
			return nil, fmt.Errorf("%w: unresolved placeholder '%s'", types.ErrRender, strings.Join(n.path, "."))
		}
	}
	return current, nil
}

// helperNode invokes a registered helper with evaluated arguments.
type helperNode struct {
	name string
	args []argExpr
}

func (n *helperNode) eval(c *Compiler, ctx map[string]any) (any, error) {
	helper, ok := c.helpers[n.name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown helper '%s'", types.ErrRender, n.name)
	}
	args, err := evalArgs(c, ctx, n.args)
	if err != nil {
		return nil, err
	}
	return helper(args, ctx)
}

// blockNode is the {{#if_eq a b}}...{{else}}...{{/if_eq}} form. The only
// built-in block condition is equality, compared on stringified values.
type blockNode struct {
	name     string
	args     []argExpr
	thenBody []node
	elseBody []node
}

func (n *blockNode) eval(c *Compiler, ctx map[string]any) (any, error) {
	if n.name != "if_eq" {
		return nil, fmt.Errorf("%w: unknown block helper '%s'", types.ErrRender, n.name)
	}
	args, err := evalArgs(c, ctx, n.args)
	if err != nil {
		return nil, err
	}
	if len(args) != 2 {
		return nil, fmt.Errorf("%w: if_eq requires exactly 2 arguments, got %d", types.ErrRender, len(args))
	}

	body := n.elseBody
	if Stringify(args[0]) == Stringify(args[1]) {
		body = n.thenBody
	}
	return renderNodes(c, ctx, body)
}

// argExpr is a helper argument: a literal token or a context lookup.
type argExpr interface {
	eval(c *Compiler, ctx map[string]any) (any, error)
}

// literalArg carries a bare token. Quoted tokens are strings; bare numerics
// stay strings too - helpers parse what they need (random does best-effort
// integer parsing).
type literalArg struct {
	value string
}

func (a *literalArg) eval(_ *Compiler, _ map[string]any) (any, error) {
	return a.value, nil
}

// lookupArg resolves a dotted path argument against the context.
type lookupArg struct {
	node lookupNode
}

func (a *lookupArg) eval(c *Compiler, ctx map[string]any) (any, error) {
	return a.node.eval(c, ctx)
}

func evalArgs(c *Compiler, ctx map[string]any, exprs []argExpr) ([]any, error) {
	args := make([]any, len(exprs))
	for i, e := range exprs {
		v, err := e.eval(c, ctx)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// renderNodes evaluates a node sequence. A single-node sequence surfaces the
// raw helper/lookup value so placeholders can expand to non-string values;
// multi-node sequences concatenate stringified parts.
func renderNodes(c *Compiler, ctx map[string]any, nodes []node) (any, error) {
	if len(nodes) == 1 {
		return nodes[0].eval(c, ctx)
	}
	var b strings.Builder
	for _, n := range nodes {
		v, err := n.eval(c, ctx)
		if err != nil {
			return nil, err
		}
		b.WriteString(Stringify(v))
	}
	return b.String(), nil
}

// Stringify converts a rendered value to its string form for concatenation
// and equality checks. Numbers drop trailing zeros so 42.0 prints as "42".
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return fmt.Sprintf("%v", t)
	}
}

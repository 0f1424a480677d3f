package template

import (
	"fmt"
	"strings"

	"github.com/replayproof/engine/pkg/types"
)

// tag is a raw template segment: literal text or the inside of a {{...}}
// expression.
type tag struct {
	literal bool
	text    string
}

// lex splits a template string into literal and expression segments.
func lex(s string) ([]tag, error) {
	var tags []tag
	for len(s) > 0 {
		open := strings.Index(s, "{{")
		if open < 0 {
			tags = append(tags, tag{literal: true, text: s})
			break
		}
		if open > 0 {
			tags = append(tags, tag{literal: true, text: s[:open]})
		}
		rest := s[open+2:]
		closeIdx := strings.Index(rest, "}}")
		if closeIdx < 0 {
			return nil, fmt.Errorf("%w: unterminated placeholder in template", types.ErrRender)
		}
		expr := strings.TrimSpace(rest[:closeIdx])
		if expr == "" {
			return nil, fmt.Errorf("%w: empty placeholder in template", types.ErrRender)
		}
		tags = append(tags, tag{text: expr})
		s = rest[closeIdx+2:]
	}
	return tags, nil
}

// parse builds the node sequence for a string template. Helper names are
// resolved against the compiler's registry at compile time; everything else
// becomes a context lookup.
func (c *Compiler) parse(s string) ([]node, error) {
	tags, err := lex(s)
	if err != nil {
		return nil, err
	}
	nodes, rest, err := c.parseNodes(tags, "")
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: unexpected '{{%s}}'", types.ErrRender, rest[0].text)
	}
	return nodes, nil
}

// parseNodes consumes tags until the closing tag of the enclosing block (or
// end of input at top level). Returns the parsed nodes and unconsumed tags.
func (c *Compiler) parseNodes(tags []tag, enclosing string) ([]node, []tag, error) {
	var nodes []node
	for len(tags) > 0 {
		t := tags[0]
		if t.literal {
			nodes = append(nodes, &literalNode{text: t.text})
			tags = tags[1:]
			continue
		}

		switch {
		case strings.HasPrefix(t.text, "#"):
			block, rest, err := c.parseBlock(tags)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, block)
			tags = rest

		case t.text == "else", strings.HasPrefix(t.text, "/"):
			if enclosing == "" {
				return nil, nil, fmt.Errorf("%w: '{{%s}}' outside a block", types.ErrRender, t.text)
			}
			return nodes, tags, nil

		default:
			n, err := c.parseExpr(t.text)
			if err != nil {
				return nil, nil, err
			}
			nodes = append(nodes, n)
			tags = tags[1:]
		}
	}
	if enclosing != "" {
		return nil, nil, fmt.Errorf("%w: unclosed block '%s'", types.ErrRender, enclosing)
	}
	return nodes, nil, nil
}

// parseBlock consumes a {{#name args}}...{{else}}...{{/name}} construct.
func (c *Compiler) parseBlock(tags []tag) (node, []tag, error) {
	fields := strings.Fields(strings.TrimPrefix(tags[0].text, "#"))
	if len(fields) == 0 {
		return nil, nil, fmt.Errorf("%w: empty block helper", types.ErrRender)
	}
	name := fields[0]
	args := parseArgs(fields[1:])

	thenBody, rest, err := c.parseNodes(tags[1:], name)
	if err != nil {
		return nil, nil, err
	}

	var elseBody []node
	if len(rest) > 0 && rest[0].text == "else" && !rest[0].literal {
		elseBody, rest, err = c.parseNodes(rest[1:], name)
		if err != nil {
			return nil, nil, err
		}
	}

	if len(rest) == 0 || rest[0].literal || rest[0].text != "/"+name {
		return nil, nil, fmt.Errorf("%w: missing '{{/%s}}'", types.ErrRender, name)
	}

	return &blockNode{name: name, args: args, thenBody: thenBody, elseBody: elseBody}, rest[1:], nil
}

// parseExpr parses a non-block expression: "name", "name arg1 arg2", or a
// dotted context path.
func (c *Compiler) parseExpr(expr string) (node, error) {
	fields := strings.Fields(expr)
	name := fields[0]

	if _, isHelper := c.helpers[name]; isHelper && !strings.Contains(name, ".") {
		return &helperNode{name: name, args: parseArgs(fields[1:])}, nil
	}

	if len(fields) > 1 {
		// Arguments on a non-helper name: report the unknown helper rather
		// than silently treating it as a lookup.
		return nil, fmt.Errorf("%w: unknown helper '%s'", types.ErrRender, name)
	}

	return &lookupNode{path: strings.Split(name, ".")}, nil
}

// parseArgs classifies helper arguments: quoted tokens and bare words are
// literals, dotted names are context lookups.
func parseArgs(fields []string) []argExpr {
	args := make([]argExpr, 0, len(fields))
	for _, f := range fields {
		if len(f) >= 2 && (f[0] == '"' && f[len(f)-1] == '"' || f[0] == '\'' && f[len(f)-1] == '\'') {
			args = append(args, &literalArg{value: f[1 : len(f)-1]})
			continue
		}
		if strings.Contains(f, ".") && !isNumeric(f) {
			args = append(args, &lookupArg{node: lookupNode{path: strings.Split(f, ".")}})
			continue
		}
		args = append(args, &literalArg{value: f})
	}
	return args
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	dot := false
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '-' && i == 0:
		case r == '.' && !dot:
			dot = true
		default:
			return false
		}
	}
	return true
}

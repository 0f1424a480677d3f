// Package pattern provides unified pattern matching for field paths and
// route filters.
//
// Pattern Matching Behavior:
//
//   - Exact (no prefix): Case-insensitive exact match
//     Example: "user.email" matches "user.email", "User.Email"
//
//   - Wildcard (*): Case-insensitive pattern with * matching any characters
//     Example: "/api/products/*" matches "/api/products/42", "/api/products/42/reviews"
//
//   - Regexp (~): Case-sensitive regular expression
//     Example: "~^items\[\d+\]\.sku$" matches "items[3].sku"
//
//   - Regexp (~*): Case-insensitive regular expression
//     Example: "~*secret|token" matches "apiToken", "SECRET_KEY"
package pattern

import (
	"fmt"
	"regexp"
	"strings"
)

// PatternType defines the type of pattern matching
type PatternType int

const (
	PatternTypeWildcard PatternType = iota
	PatternTypeRegexp
	PatternTypeExact
)

// Pattern represents a compiled pattern ready for matching
type Pattern struct {
	Original        string         // Original pattern string
	Type            PatternType    // Pattern type: Exact, Wildcard, or Regexp
	CleanPattern    string         // Pattern with prefix removed (for regexp)
	CaseInsensitive bool           // For ~* prefix
	compiledRegexp  *regexp.Regexp // Pre-compiled regexp (nil for exact/wildcard)
}

// DetectPatternType determines the pattern matching type
// Returns: PatternType, clean pattern (prefix removed), case-insensitive flag
func DetectPatternType(pattern string) (PatternType, string, bool) {
	if strings.HasPrefix(pattern, "~*") {
		return PatternTypeRegexp, pattern[2:], true
	}
	if strings.HasPrefix(pattern, "~") {
		return PatternTypeRegexp, pattern[1:], false
	}

	if strings.Contains(pattern, "*") {
		return PatternTypeWildcard, pattern, false
	}

	return PatternTypeExact, pattern, false
}

// Compile pre-compiles a pattern for efficient matching.
// Call once when the tolerance or filter configuration is loaded.
func Compile(pattern string) (*Pattern, error) {
	if pattern == "" {
		return nil, fmt.Errorf("pattern cannot be empty")
	}

	patternType, cleanPattern, caseInsensitive := DetectPatternType(pattern)

	p := &Pattern{
		Original:        pattern,
		Type:            patternType,
		CleanPattern:    cleanPattern,
		CaseInsensitive: caseInsensitive,
	}

	if patternType == PatternTypeRegexp {
		var re *regexp.Regexp
		var err error

		if caseInsensitive {
			re, err = regexp.Compile("(?i)" + cleanPattern)
		} else {
			re, err = regexp.Compile(cleanPattern)
		}

		if err != nil {
			return nil, fmt.Errorf("invalid regexp pattern '%s': %w", pattern, err)
		}

		p.compiledRegexp = re
	}

	return p, nil
}

// Match tests if input matches the compiled pattern
func (p *Pattern) Match(input string) bool {
	if p == nil {
		return false
	}

	switch p.Type {
	case PatternTypeRegexp:
		if p.compiledRegexp == nil {
			return false
		}
		return p.compiledRegexp.MatchString(input)

	case PatternTypeWildcard:
		// Wildcard matching is case-insensitive
		return MatchWildcard(strings.ToLower(input), strings.ToLower(p.CleanPattern))

	case PatternTypeExact:
		// Exact matching is case-insensitive
		return strings.EqualFold(input, p.CleanPattern)

	default:
		return false
	}
}

// MatchesPath tests a field path against the pattern, additionally treating
// an exact pattern as a dot-prefix: "user" matches "user.email" and
// "user.address.city" but not "username".
func (p *Pattern) MatchesPath(path string) bool {
	if p == nil {
		return false
	}
	if p.Match(path) {
		return true
	}
	if p.Type == PatternTypeExact {
		prefix := p.CleanPattern + "."
		if len(path) >= len(prefix) && strings.EqualFold(path[:len(prefix)], prefix) {
			return true
		}
	}
	return false
}

// MatchWildcard performs wildcard pattern matching on raw strings (utility
// function). For normal use, prefer Compile() + Match().
//
// The wildcard * matches any sequence of characters (including none).
// Multiple wildcards are supported.
//
// Examples:
//   - MatchWildcard("/api/orders/7", "/api/orders/*") → true
//   - MatchWildcard("items[2].price", "items[*].price") → true
//   - MatchWildcard("anything", "*") → true (catch-all)
//
// Note: The wildcard * is always recursive and matches across path segments
func MatchWildcard(text, pattern string) bool {
	if !strings.Contains(pattern, "*") {
		return text == pattern
	}

	parts := strings.Split(pattern, "*")

	if !strings.HasPrefix(text, parts[0]) {
		return false
	}
	text = text[len(parts[0]):]

	if !strings.HasSuffix(text, parts[len(parts)-1]) {
		return false
	}
	text = text[:len(text)-len(parts[len(parts)-1])]

	for i := 1; i < len(parts)-1; i++ {
		if parts[i] == "" {
			continue
		}
		idx := strings.Index(text, parts[i])
		if idx == -1 {
			return false
		}
		text = text[idx+len(parts[i]):]
	}

	return true
}

// Package canon normalizes structured values into a canonical, JSON-shaped
// form used by both the request hasher and the structural differ.
//
// Canonical form is restricted to map[string]any, []any, string, float64,
// bool, and nil. Mapping iteration order is made deterministic by the
// consumers (sorted keys); sequences keep their element order because
// default comparison semantics preserve order - sorting is the tolerance
// layer's decision.
package canon

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Value canonicalizes an arbitrary structured value. Total: no input causes
// failure; unknown types are stringified. Idempotent: Value(Value(x)) equals
// Value(x).
func Value(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case bool, string:
		return t
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int8:
		return float64(t)
	case int16:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case uint:
		return float64(t)
	case uint8:
		return float64(t)
	case uint16:
		return float64(t)
	case uint32:
		return float64(t)
	case uint64:
		return float64(t)
	case json.Number:
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = Value(val)
		}
		return out
	case map[any]any:
		// yaml.v2-style maps; stringify keys
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprintf("%v", k)] = Value(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = Value(el)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, el := range t {
			out[i] = el
		}
		return out
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Body canonicalizes a response body. String bodies whose first non-space
// character is '{' or '[' are parsed as JSON; other strings stay strings.
func Body(body any) any {
	if s, ok := body.(string); ok {
		trimmed := strings.TrimSpace(s)
		if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
			var parsed any
			if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
				return Value(parsed)
			}
		}
		return s
	}
	return Value(body)
}

// SortedKeys returns the lexicographically sorted keys of a canonical
// mapping. All traversal over canonical maps goes through this to keep
// output deterministic across platforms.
func SortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Fingerprint returns a stable textual encoding of a canonical value,
// suitable as a sort key for array elements. Object keys are emitted in
// sorted order.
func Fingerprint(v any) string {
	var b strings.Builder
	writeFingerprint(&b, v)
	return b.String()
}

func writeFingerprint(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		fmt.Fprintf(b, "%t", t)
	case string:
		fmt.Fprintf(b, "%q", t)
	case float64:
		// Trailing-zero-free representation so 1 and 1.0 collate together
		fmt.Fprintf(b, "%g", t)
	case map[string]any:
		b.WriteByte('{')
		for i, k := range SortedKeys(t) {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(b, "%q:", k)
			writeFingerprint(b, t[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, el := range t {
			if i > 0 {
				b.WriteByte(',')
			}
			writeFingerprint(b, el)
		}
		b.WriteByte(']')
	default:
		fmt.Fprintf(b, "%v", t)
	}
}

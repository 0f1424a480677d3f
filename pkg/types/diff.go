package types

import "fmt"

// DiffKind classifies a single divergence between the recorded and the
// replayed response.
type DiffKind int

const (
	// DiffAdded marks a key present only on the replayed side.
	DiffAdded DiffKind = iota
	// DiffRemoved marks a key present only on the recorded side. Removals
	// are always promoted to incompatibilities.
	DiffRemoved
	// DiffModified marks differing leaf values at the same path.
	DiffModified
	// DiffTypeChanged marks a modification where the runtime type category
	// differs. Type changes are always promoted to incompatibilities.
	DiffTypeChanged
)

// String returns the report-facing name of the kind.
func (k DiffKind) String() string {
	switch k {
	case DiffAdded:
		return "added"
	case DiffRemoved:
		return "removed"
	case DiffModified:
		return "modified"
	case DiffTypeChanged:
		return "typeChanged"
	default:
		return fmt.Sprintf("DiffKind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler so kinds serialize by name.
func (k DiffKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Difference is one classified divergence at a path. Paths are dotted for
// object members and use "[i]" suffixes for sequence elements
// (e.g. "products[0].inStock").
type Difference struct {
	Kind      DiffKind `json:"kind"`
	Path      string   `json:"path"`
	Old       any      `json:"old,omitempty"`
	New       any      `json:"new,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	Tolerated bool     `json:"tolerated,omitempty"`
	// Tolerance names the rule that absorbed the difference
	// (e.g. "timestamp-drift", "uuid-normalization").
	Tolerance string `json:"tolerance,omitempty"`
}

// ValueType returns the diff type-category name of a canonicalized value:
// object, array, string, number, boolean, or null.
func ValueType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case float64, float32, int, int32, int64, uint, uint32, uint64:
		return "number"
	default:
		return fmt.Sprintf("%T", v)
	}
}

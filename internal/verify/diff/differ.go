// Package diff walks two canonicalized response trees in parallel and emits
// categorized difference records.
//
// Output is deterministic: depth-first traversal with lexicographically
// sorted object keys and ascending array indexes, so identical inputs always
// produce identical diff sequences.
package diff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/replayproof/engine/internal/verify/canon"
	"github.com/replayproof/engine/internal/verify/tolerance"
	"github.com/replayproof/engine/pkg/types"
)

const reasonFieldRemoved = "Field was removed"

// Differ compares canonical trees under a tolerance classifier. Tolerated
// differences are recorded with Tolerated=true and excluded from the
// breaking-change counters; ignored fields produce no records at all.
type Differ struct {
	classifier *tolerance.Classifier
}

// New creates a differ bound to a compiled tolerance classifier.
func New(classifier *tolerance.Classifier) *Differ {
	return &Differ{classifier: classifier}
}

// CompareBodies diffs two response bodies. Inputs are canonicalized first
// (string bodies that look like JSON are parsed), so callers may pass raw
// decoded values.
func (d *Differ) CompareBodies(recorded, replayed any) []types.Difference {
	var diffs []types.Difference
	d.walk("", canon.Body(recorded), canon.Body(replayed), &diffs)
	return diffs
}

// CompareHeaders diffs two header maps. Header names compare
// case-insensitively; ignored and redacted headers never produce records.
// Unlike bodies, added headers are breaking (the judge applies that rule);
// the differ only classifies.
func (d *Differ) CompareHeaders(recorded, replayed map[string]string) []types.Difference {
	recLower := lowerHeaderMap(recorded)
	repLower := lowerHeaderMap(replayed)

	names := make(map[string]struct{}, len(recLower)+len(repLower))
	for k := range recLower {
		names[k] = struct{}{}
	}
	for k := range repLower {
		names[k] = struct{}{}
	}

	sorted := make([]string, 0, len(names))
	for k := range names {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var diffs []types.Difference
	for _, name := range sorted {
		if d.classifier.IsIgnoredHeader(name) {
			continue
		}
		recVal, inRec := recLower[name]
		repVal, inRep := repLower[name]

		switch {
		case !inRec:
			diffs = append(diffs, types.Difference{Kind: types.DiffAdded, Path: name, New: repVal})
		case !inRep:
			diffs = append(diffs, types.Difference{Kind: types.DiffRemoved, Path: name, Old: recVal, Reason: reasonFieldRemoved})
		case recVal != repVal:
			if recVal == types.RedactedValue || repVal == types.RedactedValue {
				continue
			}
			if rule, ok := d.classifier.Equivalent(name, recVal, repVal); ok {
				diffs = append(diffs, types.Difference{
					Kind: types.DiffModified, Path: name, Old: recVal, New: repVal,
					Tolerated: true, Tolerance: rule,
				})
				continue
			}
			diffs = append(diffs, types.Difference{Kind: types.DiffModified, Path: name, Old: recVal, New: repVal})
		}
	}
	return diffs
}

// lowerHeaderMap returns a copy of m with all keys lowercased so header
// names compare case-insensitively.
func lowerHeaderMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[strings.ToLower(k)] = v
	}
	return out
}

// walk recursively diffs recorded against replayed at the given path.
func (d *Differ) walk(path string, recorded, replayed any, out *[]types.Difference) {
	if path != "" && d.classifier.IsIgnoredField(path) {
		return
	}

	// Redacted fields are opaque: treat both sides as holding the sentinel.
	if recorded == types.RedactedValue || replayed == types.RedactedValue {
		return
	}

	recMap, recIsMap := recorded.(map[string]any)
	repMap, repIsMap := replayed.(map[string]any)
	if recIsMap && repIsMap {
		d.walkMaps(path, recMap, repMap, out)
		return
	}

	recArr, recIsArr := recorded.([]any)
	repArr, repIsArr := replayed.([]any)
	if recIsArr && repIsArr {
		d.walkArrays(path, recArr, repArr, out)
		return
	}

	if valuesEqual(recorded, replayed) {
		return
	}

	key := leafKey(path)

	// Tolerance first: an ISO-8601 string and an epoch number for the same
	// instant are equivalent even though their type categories differ.
	if rule, ok := d.classifier.Equivalent(key, recorded, replayed); ok {
		*out = append(*out, types.Difference{
			Kind: types.DiffModified, Path: path, Old: recorded, New: replayed,
			Tolerated: true, Tolerance: rule,
		})
		return
	}

	recType := types.ValueType(recorded)
	repType := types.ValueType(replayed)
	if recType != repType {
		*out = append(*out, types.Difference{
			Kind: types.DiffTypeChanged, Path: path, Old: recorded, New: replayed,
			Reason: fmt.Sprintf("Type changed from %s to %s", recType, repType),
		})
		return
	}

	*out = append(*out, types.Difference{Kind: types.DiffModified, Path: path, Old: recorded, New: replayed})
}

func (d *Differ) walkMaps(path string, recorded, replayed map[string]any, out *[]types.Difference) {
	keys := make(map[string]struct{}, len(recorded)+len(replayed))
	for k := range recorded {
		keys[k] = struct{}{}
	}
	for k := range replayed {
		keys[k] = struct{}{}
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	for _, k := range sorted {
		childPath := joinPath(path, k)
		recVal, inRec := recorded[k]
		repVal, inRep := replayed[k]

		switch {
		case !inRec:
			if d.classifier.IsIgnoredField(childPath) {
				continue
			}
			*out = append(*out, types.Difference{Kind: types.DiffAdded, Path: childPath, New: repVal})
		case !inRep:
			if d.classifier.IsIgnoredField(childPath) {
				continue
			}
			*out = append(*out, types.Difference{Kind: types.DiffRemoved, Path: childPath, Old: recVal, Reason: reasonFieldRemoved})
		default:
			d.walk(childPath, recVal, repVal, out)
		}
	}
}

func (d *Differ) walkArrays(path string, recorded, replayed []any, out *[]types.Difference) {
	if d.classifier.ShouldSortArray(path) {
		recorded = sortedCopy(recorded)
		replayed = sortedCopy(replayed)
	}

	shared := len(recorded)
	if len(replayed) < shared {
		shared = len(replayed)
	}

	for i := 0; i < shared; i++ {
		d.walk(fmt.Sprintf("%s[%d]", path, i), recorded[i], replayed[i], out)
	}

	// Element removals are incompatibilities, same as removed fields.
	for i := shared; i < len(recorded); i++ {
		elemPath := fmt.Sprintf("%s[%d]", path, i)
		if d.classifier.IsIgnoredField(elemPath) {
			continue
		}
		*out = append(*out, types.Difference{Kind: types.DiffRemoved, Path: elemPath, Old: recorded[i], Reason: reasonFieldRemoved})
	}
	for i := shared; i < len(replayed); i++ {
		elemPath := fmt.Sprintf("%s[%d]", path, i)
		if d.classifier.IsIgnoredField(elemPath) {
			continue
		}
		*out = append(*out, types.Difference{Kind: types.DiffAdded, Path: elemPath, New: replayed[i]})
	}
}

// sortedCopy orders array elements by their canonical fingerprint. Stable
// for equal fingerprints so diff output stays deterministic.
func sortedCopy(arr []any) []any {
	out := make([]any, len(arr))
	copy(out, arr)
	sort.SliceStable(out, func(i, j int) bool {
		return canon.Fingerprint(out[i]) < canon.Fingerprint(out[j])
	})
	return out
}

func valuesEqual(a, b any) bool {
	if a == nil && b == nil {
		return true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	// Containers of differing categories reach here; structural equality is
	// decided by recursion, so anything left is unequal.
	return false
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// leafKey extracts the final object key from a path, stripping array
// indexes: "products[0].inStock" -> "inStock", "items[2]" -> "items".
func leafKey(path string) string {
	if path == "" {
		return ""
	}
	seg := path
	if idx := strings.LastIndex(seg, "."); idx >= 0 {
		seg = seg[idx+1:]
	}
	if idx := strings.Index(seg, "["); idx >= 0 {
		seg = seg[:idx]
	}
	return seg
}

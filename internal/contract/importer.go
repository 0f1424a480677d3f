// Package contract extracts response examples from an OpenAPI-3 style
// document and registers them as template routes, letting replay run
// against a contract instead of a live service.
//
// Only paths.<pattern>.<method>.responses.<status> with its examples/content
// subtree is consulted; the rest of the document is ignored.
package contract

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/replayproof/engine/internal/route"
	"github.com/replayproof/engine/pkg/types"
)

// Success-selection strategies for paths carrying multiple 2xx responses.
const (
	// SelectFirstSuccess registers only the lowest 2xx status seen.
	SelectFirstSuccess = "firstSuccess"
	// SelectPreferStatus registers the preferred status when present,
	// falling back to the first 2xx.
	SelectPreferStatus = "preferStatus"
)

// Document is the consulted subset of an OpenAPI-3 contract.
type Document struct {
	Paths map[string]PathItem `yaml:"paths" json:"paths"`
}

// PathItem maps lowercase HTTP methods to operations. Non-method keys
// (parameters, summary) decode to operations without responses and are
// skipped.
type PathItem map[string]Operation

// Operation holds the responses of one path+method pair.
type Operation struct {
	Responses map[string]Response `yaml:"responses" json:"responses"`
}

// Response carries the example sources consulted for template extraction.
type Response struct {
	Examples map[string]any       `yaml:"examples" json:"examples"`
	Content  map[string]MediaType `yaml:"content" json:"content"`
}

// MediaType is the application/json content entry.
type MediaType struct {
	Example  any            `yaml:"example" json:"example"`
	Examples map[string]any `yaml:"examples" json:"examples"`
}

var httpMethods = map[string]struct{}{
	"get": {}, "post": {}, "put": {}, "delete": {}, "patch": {}, "head": {}, "options": {},
}

// Importer walks contract documents and registers extracted templates on a
// resolver. Templates compile lazily on first render; the engine's preload
// pass compiles them eagerly when requested.
type Importer struct {
	resolver *route.Resolver
	logger   *zap.Logger

	// SuccessSelection picks the registered status when multiple 2xx
	// responses exist. Defaults to SelectFirstSuccess.
	SuccessSelection string
	// PreferredStatus applies under SelectPreferStatus.
	PreferredStatus int
}

// NewImporter creates an importer bound to a resolver.
func NewImporter(resolver *route.Resolver, logger *zap.Logger) *Importer {
	return &Importer{
		resolver:         resolver,
		logger:           logger,
		SuccessSelection: SelectFirstSuccess,
	}
}

// ImportFile loads a contract from a YAML or JSON file and imports it.
// Returns the number of routes registered.
func (im *Importer) ImportFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read contract '%s': %v", types.ErrIO, path, err)
	}

	var doc Document
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return 0, fmt.Errorf("%w: malformed contract '%s': %v", types.ErrInput, path, err)
		}
	case ".json":
		if err := json.Unmarshal(data, &doc); err != nil {
			return 0, fmt.Errorf("%w: malformed contract '%s': %v", types.ErrInput, path, err)
		}
	default:
		return 0, fmt.Errorf("%w: unsupported contract file extension '%s'", types.ErrInput, ext)
	}

	return im.Import(&doc)
}

// Import registers one template route per path+method with a 2xx example.
// Iteration is sorted (paths, methods, statuses) so route order - and
// therefore first-match resolution - is deterministic across runs.
func (im *Importer) Import(doc *Document) (int, error) {
	if doc == nil || len(doc.Paths) == 0 {
		return 0, fmt.Errorf("%w: contract has no paths", types.ErrInput)
	}

	registered := 0

	paths := make([]string, 0, len(doc.Paths))
	for p := range doc.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, pathPattern := range paths {
		item := doc.Paths[pathPattern]

		methods := make([]string, 0, len(item))
		for m := range item {
			if _, ok := httpMethods[strings.ToLower(m)]; ok {
				methods = append(methods, m)
			}
		}
		sort.Strings(methods)

		for _, method := range methods {
			op := item[method]
			status, resp, ok := im.selectSuccess(op.Responses)
			if !ok {
				continue
			}

			example, ok := extractExample(resp)
			if !ok {
				im.logger.Debug("Contract response has no usable example",
					zap.String("path", pathPattern),
					zap.String("method", method),
					zap.Int("status", status))
				continue
			}

			r, err := route.NewRoute(pathPattern, method, status,
				map[string]string{"Content-Type": "application/json"}, example)
			if err != nil {
				return registered, fmt.Errorf("contract route %s %s: %w",
					strings.ToUpper(method), pathPattern, err)
			}

			im.resolver.Register(r)
			registered++
		}
	}

	im.logger.Info("Imported contract templates", zap.Int("routes", registered))
	return registered, nil
}

// selectSuccess picks the 2xx response to register according to the
// configured strategy.
func (im *Importer) selectSuccess(responses map[string]Response) (int, Response, bool) {
	statuses := make([]int, 0, len(responses))
	byStatus := make(map[int]Response, len(responses))
	for code, resp := range responses {
		n, err := strconv.Atoi(code)
		if err != nil || n < 200 || n > 299 {
			continue
		}
		statuses = append(statuses, n)
		byStatus[n] = resp
	}
	if len(statuses) == 0 {
		return 0, Response{}, false
	}
	sort.Ints(statuses)

	if im.SuccessSelection == SelectPreferStatus {
		if resp, ok := byStatus[im.PreferredStatus]; ok {
			return im.PreferredStatus, resp, true
		}
	}
	return statuses[0], byStatus[statuses[0]], true
}

// extractExample applies the example-source precedence:
//  1. response.examples -> first value; JSON-looking strings are parsed,
//     other strings wrapped as {value: s}.
//  2. content["application/json"].example.
//  3. content["application/json"].examples -> first value, unwrapping
//     ".value" when present.
func extractExample(resp Response) (any, bool) {
	if len(resp.Examples) > 0 {
		return normalizeExample(firstValue(resp.Examples)), true
	}

	media, ok := resp.Content["application/json"]
	if !ok {
		return nil, false
	}
	if media.Example != nil {
		return media.Example, true
	}
	if len(media.Examples) > 0 {
		v := firstValue(media.Examples)
		if m, ok := v.(map[string]any); ok {
			if inner, ok := m["value"]; ok {
				return inner, true
			}
		}
		return v, true
	}
	return nil, false
}

// firstValue returns the value of the lexicographically first key, keeping
// "first example" stable across decodes.
func firstValue(m map[string]any) any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return m[keys[0]]
}

func normalizeExample(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	trimmed := strings.TrimSpace(s)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
	}
	return map[string]any{"value": s}
}

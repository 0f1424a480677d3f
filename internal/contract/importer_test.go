package contract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/replayproof/engine/internal/route"
)

const sampleContract = `
paths:
  /api/products:
    get:
      responses:
        "200":
          content:
            application/json:
              example:
                products:
                  - name: Widget
                    price: 9.99
    post:
      responses:
        "201":
          content:
            application/json:
              example:
                created: true
  /api/products/{id}:
    get:
      parameters:
        - name: id
          in: path
      responses:
        "200":
          content:
            application/json:
              example:
                id: "{{request.params.id}}"
                name: Widget
        "404":
          description: not found
  /api/health:
    get:
      responses:
        "204":
          description: no content
`

func writeContract(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newImporter(t *testing.T) (*Importer, *route.Resolver) {
	t.Helper()
	resolver := route.NewResolver(zap.NewNop())
	return NewImporter(resolver, zap.NewNop()), resolver
}

func TestImportFile_YAML(t *testing.T) {
	im, resolver := newImporter(t)

	n, err := im.ImportFile(writeContract(t, "contract.yaml", sampleContract))
	require.NoError(t, err)
	// /api/health has no example; the other three operations register.
	assert.Equal(t, 3, n)
	assert.Len(t, resolver.Routes(), 3)

	match := resolver.Resolve("GET", "/api/products/42")
	require.NotNil(t, match)
	assert.Equal(t, map[string]string{"id": "42"}, match.Params)
	assert.Equal(t, 200, match.Route.StatusCode)
	assert.Equal(t, "application/json", match.Route.Headers["Content-Type"])

	post := resolver.Resolve("POST", "/api/products")
	require.NotNil(t, post)
	assert.Equal(t, 201, post.Route.StatusCode)
}

func TestImportFile_JSON(t *testing.T) {
	im, resolver := newImporter(t)

	content := `{
	  "paths": {
	    "/ping": {
	      "get": {
	        "responses": {
	          "200": {
	            "content": {
	              "application/json": {"example": {"pong": true}}
	            }
	          }
	        }
	      }
	    }
	  }
	}`
	n, err := im.ImportFile(writeContract(t, "contract.json", content))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NotNil(t, resolver.Resolve("GET", "/ping"))
}

func TestImportFile_Errors(t *testing.T) {
	im, _ := newImporter(t)

	t.Run("missing file", func(t *testing.T) {
		_, err := im.ImportFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := im.ImportFile(writeContract(t, "contract.txt", "paths: {}"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := im.ImportFile(writeContract(t, "bad.yaml", "\tpaths: ["))
		assert.Error(t, err)
	})

	t.Run("empty contract", func(t *testing.T) {
		_, err := im.Import(&Document{})
		assert.Error(t, err)
	})
}

func TestImport_SuccessSelection(t *testing.T) {
	doc := &Document{Paths: map[string]PathItem{
		"/multi": {
			"get": Operation{Responses: map[string]Response{
				"200": {Content: map[string]MediaType{
					"application/json": {Example: map[string]any{"status": "ok"}},
				}},
				"202": {Content: map[string]MediaType{
					"application/json": {Example: map[string]any{"status": "accepted"}},
				}},
				"500": {Content: map[string]MediaType{
					"application/json": {Example: map[string]any{"status": "broken"}},
				}},
			}},
		},
	}}

	t.Run("firstSuccess takes the lowest 2xx", func(t *testing.T) {
		im, resolver := newImporter(t)
		n, err := im.Import(doc)
		require.NoError(t, err)
		require.Equal(t, 1, n)
		assert.Equal(t, 200, resolver.Routes()[0].StatusCode)
	})

	t.Run("preferStatus picks the preferred code", func(t *testing.T) {
		im, resolver := newImporter(t)
		im.SuccessSelection = SelectPreferStatus
		im.PreferredStatus = 202
		_, err := im.Import(doc)
		require.NoError(t, err)
		assert.Equal(t, 202, resolver.Routes()[0].StatusCode)
	})

	t.Run("preferStatus falls back when absent", func(t *testing.T) {
		im, resolver := newImporter(t)
		im.SuccessSelection = SelectPreferStatus
		im.PreferredStatus = 299
		_, err := im.Import(doc)
		require.NoError(t, err)
		assert.Equal(t, 200, resolver.Routes()[0].StatusCode)
	})
}

func TestExtractExample_Precedence(t *testing.T) {
	t.Run("response-level examples win", func(t *testing.T) {
		example, ok := extractExample(Response{
			Examples: map[string]any{"a": map[string]any{"from": "examples"}},
			Content: map[string]MediaType{
				"application/json": {Example: map[string]any{"from": "content"}},
			},
		})
		require.True(t, ok)
		assert.Equal(t, map[string]any{"from": "examples"}, example)
	})

	t.Run("JSON-looking example strings are parsed", func(t *testing.T) {
		example, ok := extractExample(Response{
			Examples: map[string]any{"a": `{"parsed": true}`},
		})
		require.True(t, ok)
		assert.Equal(t, map[string]any{"parsed": true}, example)
	})

	t.Run("plain strings are wrapped", func(t *testing.T) {
		example, ok := extractExample(Response{
			Examples: map[string]any{"a": "just text"},
		})
		require.True(t, ok)
		assert.Equal(t, map[string]any{"value": "just text"}, example)
	})

	t.Run("content examples unwrap .value", func(t *testing.T) {
		example, ok := extractExample(Response{
			Content: map[string]MediaType{
				"application/json": {Examples: map[string]any{
					"first": map[string]any{"value": map[string]any{"inner": true}},
				}},
			},
		})
		require.True(t, ok)
		assert.Equal(t, map[string]any{"inner": true}, example)
	})

	t.Run("lexicographically first example is stable", func(t *testing.T) {
		example, ok := extractExample(Response{
			Examples: map[string]any{
				"zebra": map[string]any{"pick": "no"},
				"alpha": map[string]any{"pick": "yes"},
			},
		})
		require.True(t, ok)
		assert.Equal(t, map[string]any{"pick": "yes"}, example)
	})

	t.Run("no usable example", func(t *testing.T) {
		_, ok := extractExample(Response{})
		assert.False(t, ok)

		_, ok = extractExample(Response{
			Content: map[string]MediaType{"text/html": {Example: "<p>"}},
		})
		assert.False(t, ok)
	})
}

package replay

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/replayproof/engine/internal/route"
	"github.com/replayproof/engine/internal/template"
	"github.com/replayproof/engine/internal/verify/compat"
	"github.com/replayproof/engine/internal/verify/diff"
	"github.com/replayproof/engine/internal/verify/tolerance"
	"github.com/replayproof/engine/pkg/types"
)

type engineFixture struct {
	engine   *Engine
	resolver *route.Resolver
	compiler *template.Compiler
}

func newEngineFixture(t *testing.T, client *LiveClient, opts Options) *engineFixture {
	t.Helper()
	classifier, err := tolerance.New(types.DefaultTolerances())
	require.NoError(t, err)
	judge := compat.New(diff.New(classifier), false)

	resolver := route.NewResolver(zap.NewNop())
	compiler := template.NewCompiler(zap.NewNop())
	contexts := route.NewContextBuilder(zap.NewNop())

	return &engineFixture{
		engine:   NewEngine(zap.NewNop(), resolver, contexts, compiler, judge, client, opts),
		resolver: resolver,
		compiler: compiler,
	}
}

func (f *engineFixture) register(t *testing.T, pattern, method string, status int, source any) {
	t.Helper()
	r, err := route.NewRoute(pattern, method, status,
		map[string]string{"content-type": "application/json"}, source)
	require.NoError(t, err)
	f.resolver.Register(r)
}

func productSession() *types.Session {
	return &types.Session{
		SessionID: "engine-test",
		Interactions: []types.Interaction{
			{
				Request: types.Request{Method: "GET", Path: "/api/products/42"},
				Response: types.Response{
					StatusCode: 200,
					Headers:    map[string]string{"content-type": "application/json"},
					Body:       map[string]any{"id": "42", "name": "Widget"},
				},
			},
		},
	}
}

func TestEngine_TemplateReplay(t *testing.T) {
	f := newEngineFixture(t, nil, Options{Mode: types.ModeDefault, UseDynamicResponses: true})
	f.register(t, "/api/products/:id", "GET", 200, map[string]any{
		"id":   "{{request.params.id}}",
		"name": "Widget",
	})

	result, err := f.engine.Replay(context.Background(), productSession(), nil)
	require.NoError(t, err)

	require.Len(t, result.InteractionResults, 1)
	ir := result.InteractionResults[0]
	assert.Equal(t, "template", ir.Source)
	assert.Empty(t, ir.Error)
	require.NotNil(t, ir.Comparison)
	assert.True(t, ir.Comparison.IsCompatible)

	assert.Equal(t, 1, result.Summary.Total)
	assert.Equal(t, 1, result.Summary.Compatible)
	assert.InDelta(t, 100.0, result.Summary.CompatibilityScore, 0.001)
}

func TestEngine_TemplateDetectsBreakingChange(t *testing.T) {
	f := newEngineFixture(t, nil, Options{UseDynamicResponses: true})
	// Template drops the "name" field the recording had.
	f.register(t, "/api/products/:id", "GET", 200, map[string]any{
		"id": "{{request.params.id}}",
	})

	result, err := f.engine.Replay(context.Background(), productSession(), nil)
	require.NoError(t, err)

	ir := result.InteractionResults[0]
	require.NotNil(t, ir.Comparison)
	assert.False(t, ir.Comparison.IsCompatible)
	assert.Equal(t, 1, ir.Comparison.BodyDiffs.Removed)
}

func TestEngine_LiveReplay(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		w.Write([]byte(`{"id": "42", "name": "Widget"}`))
	}))
	defer server.Close()

	client := NewLiveClient(server.URL, time.Second, zap.NewNop())
	f := newEngineFixture(t, client, Options{})

	result, err := f.engine.Replay(context.Background(), productSession(), nil)
	require.NoError(t, err)

	ir := result.InteractionResults[0]
	assert.Equal(t, "live", ir.Source)
	assert.False(t, ir.ReplayError)
	require.NotNil(t, ir.Comparison)
	assert.True(t, ir.Comparison.IsCompatible)
}

func TestEngine_LiveTransportFailureIsContained(t *testing.T) {
	client := NewLiveClient("http://127.0.0.1:1", time.Second, zap.NewNop())
	f := newEngineFixture(t, client, Options{})

	result, err := f.engine.Replay(context.Background(), productSession(), nil)
	require.NoError(t, err)

	ir := result.InteractionResults[0]
	assert.True(t, ir.ReplayError)
	require.NotNil(t, ir.Comparison)
	// Synthetic 500 against the recorded 200.
	assert.False(t, ir.Comparison.StatusMatch)
	assert.Equal(t, 1, result.Summary.Incompatible)
}

func TestEngine_TemplateMissWithoutClientIsAnError(t *testing.T) {
	f := newEngineFixture(t, nil, Options{UseDynamicResponses: true})
	// No routes registered: resolution misses and there is no live fallback.

	result, err := f.engine.Replay(context.Background(), productSession(), nil)
	require.NoError(t, err)

	ir := result.InteractionResults[0]
	assert.Contains(t, ir.Error, "no template route matched")
	assert.Equal(t, 1, result.Summary.Errors)
	assert.Equal(t, result.Summary.Total,
		result.Summary.Compatible+result.Summary.Incompatible+result.Summary.Errors)
}

func TestEngine_TemplateMissFallsBackToLive(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json")
		w.Write([]byte(`{"id": "42", "name": "Widget"}`))
	}))
	defer server.Close()

	client := NewLiveClient(server.URL, time.Second, zap.NewNop())
	f := newEngineFixture(t, client, Options{UseDynamicResponses: true})
	f.register(t, "/some/other/route", "GET", 200, map[string]any{"x": 1})

	result, err := f.engine.Replay(context.Background(), productSession(), nil)
	require.NoError(t, err)
	assert.Equal(t, "live", result.InteractionResults[0].Source)
}

func TestEngine_RenderErrorIsContained(t *testing.T) {
	f := newEngineFixture(t, nil, Options{UseDynamicResponses: true})
	f.register(t, "/api/products/:id", "GET", 200, map[string]any{
		"value": "{{request.params.missing}}",
	})

	result, err := f.engine.Replay(context.Background(), productSession(), nil)
	require.NoError(t, err)

	ir := result.InteractionResults[0]
	assert.Contains(t, ir.Error, "unresolved placeholder")
	assert.Nil(t, ir.Comparison)
	assert.Equal(t, 1, result.Summary.Errors)
}

func TestEngine_PanicIsContained(t *testing.T) {
	f := newEngineFixture(t, nil, Options{UseDynamicResponses: true})
	f.compiler.RegisterHelper("explode", func(args []any, ctx map[string]any) (any, error) {
		panic("helper exploded")
	})
	f.register(t, "/api/products/:id", "GET", 200, map[string]any{"v": "{{explode}}"})

	session := &types.Session{
		SessionID: "panic-test",
		Interactions: []types.Interaction{
			productSession().Interactions[0],
			{
				Request:  types.Request{Method: "GET", Path: "/api/products/7"},
				Response: types.Response{StatusCode: 200},
			},
		},
	}

	result, err := f.engine.Replay(context.Background(), session, nil)
	require.NoError(t, err)

	// Both interactions hit the panicking helper; each is contained.
	require.Len(t, result.InteractionResults, 2)
	for _, ir := range result.InteractionResults {
		assert.Contains(t, ir.Error, "comparison failure")
		assert.Nil(t, ir.Comparison)
	}
	assert.Equal(t, 2, result.Summary.Errors)
}

func TestEngine_CancellationReturnsPartialResult(t *testing.T) {
	f := newEngineFixture(t, nil, Options{UseDynamicResponses: true})
	f.register(t, "/api/products/:id", "GET", 200, map[string]any{"id": "{{request.params.id}}"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.engine.Replay(ctx, productSession(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, result)
	assert.Empty(t, result.InteractionResults)
}

func TestEngine_PreloadTemplates(t *testing.T) {
	f := newEngineFixture(t, nil, Options{UseDynamicResponses: true, PreloadTemplates: true})
	f.register(t, "/a", "GET", 200, map[string]any{"a": "{{uuid}}"})
	f.register(t, "/b", "GET", 200, map[string]any{"b": "{{now}}"})

	session := &types.Session{SessionID: "preload", Interactions: []types.Interaction{
		{Request: types.Request{Method: "GET", Path: "/a"}, Response: types.Response{StatusCode: 200}},
	}}

	_, err := f.engine.Replay(context.Background(), session, nil)
	require.NoError(t, err)
	// Both routes compiled up front even though only one was exercised.
	assert.Equal(t, int64(2), f.engine.Metrics().TemplateCompilations)
}

func TestEngine_PreloadFailureIsTerminal(t *testing.T) {
	f := newEngineFixture(t, nil, Options{UseDynamicResponses: true, PreloadTemplates: true})
	f.register(t, "/bad", "GET", 200, "{{unterminated")

	_, err := f.engine.Replay(context.Background(), productSession(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "preload")
}

func TestEngine_FilterStatsInResult(t *testing.T) {
	f := newEngineFixture(t, nil, Options{UseDynamicResponses: true})
	f.register(t, "/api/products/:id", "GET", 200, map[string]any{"id": "{{request.params.id}}", "name": "Widget"})

	session := productSession()
	session.Interactions = append(session.Interactions, types.Interaction{
		Request:  types.Request{Method: "POST", Path: "/api/orders"},
		Response: types.Response{StatusCode: 201},
	})

	result, err := f.engine.Replay(context.Background(), session, &Filter{Methods: []string{"GET"}})
	require.NoError(t, err)

	assert.Equal(t, "methods=GET", result.Filter)
	require.NotNil(t, result.FilteredStats)
	assert.Equal(t, 2, result.FilteredStats.OriginalCount)
	assert.Equal(t, 1, result.FilteredStats.FilteredCount)
	assert.Len(t, result.InteractionResults, 1)
}

func TestEngine_EmptySelectionYieldsEmptySummary(t *testing.T) {
	f := newEngineFixture(t, nil, Options{UseDynamicResponses: true})

	result, err := f.engine.Replay(context.Background(), productSession(), &Filter{Methods: []string{"PATCH"}})
	require.NoError(t, err)
	assert.Zero(t, result.Summary.Total)
	assert.Empty(t, result.InteractionResults)
}

type recordingSink struct {
	replayed []string
	renders  int
}

func (s *recordingSink) InteractionReplayed(source string, compatible, errored bool) {
	s.replayed = append(s.replayed, source)
}
func (s *recordingSink) RenderObserved(d time.Duration) { s.renders++ }

func TestEngine_SinkObservesReplay(t *testing.T) {
	f := newEngineFixture(t, nil, Options{UseDynamicResponses: true})
	f.register(t, "/api/products/:id", "GET", 200, map[string]any{"id": "{{request.params.id}}", "name": "Widget"})

	sink := &recordingSink{}
	f.engine.SetSink(sink)

	_, err := f.engine.Replay(context.Background(), productSession(), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"template"}, sink.replayed)
	assert.Equal(t, 1, sink.renders)

	m := f.engine.Metrics()
	assert.Equal(t, int64(1), m.TemplateRenders)
	assert.Equal(t, int64(1), m.TemplateCompilations)
}

package replay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/replayproof/engine/internal/route"
	"github.com/replayproof/engine/internal/template"
	"github.com/replayproof/engine/internal/verify/compat"
	"github.com/replayproof/engine/pkg/types"
)

// Sink receives per-interaction replay events; the Prometheus adapter
// implements it.
type Sink interface {
	InteractionReplayed(source string, compatible bool, errored bool)
	RenderObserved(d time.Duration)
}

// Options configure one engine instance.
type Options struct {
	// Mode selects the tolerance preset recorded in the result.
	Mode types.ComparisonMode
	// UseDynamicResponses prefers template routes over live HTTP replay.
	UseDynamicResponses bool
	// PreloadTemplates compiles every registered template before the first
	// interaction instead of lazily on first use.
	PreloadTemplates bool
}

// Engine replays a session's interactions in recording order and collects
// the per-session verification result.
//
// Replay is single-threaded by design: template renders observe a shared
// clock and random source, and the resolver cache is unlocked. Cancellation
// is cooperative between interactions; a cancellation observed mid-HTTP-call
// aborts that call and terminates the session.
type Engine struct {
	logger   *zap.Logger
	resolver *route.Resolver
	contexts *route.ContextBuilder
	compiler *template.Compiler
	judge    *compat.Judge
	client   *LiveClient
	opts     Options
	sink     Sink
}

// NewEngine wires an engine from its collaborators. client may be nil when
// replay is template-only.
func NewEngine(
	logger *zap.Logger,
	resolver *route.Resolver,
	contexts *route.ContextBuilder,
	compiler *template.Compiler,
	judge *compat.Judge,
	client *LiveClient,
	opts Options,
) *Engine {
	return &Engine{
		logger:   logger,
		resolver: resolver,
		contexts: contexts,
		compiler: compiler,
		judge:    judge,
		client:   client,
		opts:     opts,
	}
}

// SetSink attaches a metrics sink (optional).
func (e *Engine) SetSink(sink Sink) { e.sink = sink }

// Metrics returns the resolver/template counters accumulated so far.
func (e *Engine) Metrics() *route.Metrics {
	e.resolver.Metrics.TemplateCompilations = int64(e.compiler.Compilations)
	return &e.resolver.Metrics
}

// Replay verifies one session. A non-nil error is returned only for
// terminal conditions (preload failure, cancellation); per-interaction
// failures are contained in the result's error entries.
func (e *Engine) Replay(ctx context.Context, session *types.Session, filter *Filter) (*types.SessionResult, error) {
	if e.opts.PreloadTemplates {
		if err := e.preloadTemplates(); err != nil {
			return nil, err
		}
	}

	interactions, stats := filter.Apply(session)

	result := &types.SessionResult{
		SessionID:      session.SessionID,
		ComparisonMode: e.opts.Mode,
	}
	if !filter.IsEmpty() {
		result.Filter = filter.Describe()
		result.FilteredStats = stats
	}

	if len(interactions) == 0 {
		e.logger.Warn("No interactions selected for replay",
			zap.String("session_id", session.SessionID),
			zap.Int("original_count", stats.OriginalCount))
		result.Summary = compat.Summarize(nil)
		return result, nil
	}

	e.logger.Info("Starting session replay",
		zap.String("session_id", session.SessionID),
		zap.Int("interactions", len(interactions)),
		zap.String("mode", string(e.opts.Mode)))

	results := make([]types.InteractionResult, 0, len(interactions))
	for i := range interactions {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("Replay cancelled",
				zap.String("session_id", session.SessionID),
				zap.Int("completed", len(results)))
			result.InteractionResults = results
			result.Summary = compat.Summarize(results)
			return result, fmt.Errorf("replay cancelled: %w", err)
		}

		ir := e.replayOne(ctx, i, &interactions[i])
		results = append(results, ir)

		if e.sink != nil {
			compatible := ir.Comparison != nil && ir.Comparison.IsCompatible
			e.sink.InteractionReplayed(ir.Source, compatible, ir.Error != "")
		}
	}

	result.InteractionResults = results
	result.Summary = compat.Summarize(results)

	e.logger.Info("Session replay finished",
		zap.String("session_id", session.SessionID),
		zap.Int("total", result.Summary.Total),
		zap.Int("compatible", result.Summary.Compatible),
		zap.Int("incompatible", result.Summary.Incompatible),
		zap.Int("errors", result.Summary.Errors),
		zap.Float64("score", result.Summary.CompatibilityScore),
		zap.Float64("effective_score", result.Summary.EffectiveCompatibilityScore))

	return result, nil
}

// replayOne replays a single interaction. Panics from the differ or
// renderer are contained as interaction errors; they never abort the
// session.
func (e *Engine) replayOne(ctx context.Context, index int, interaction *types.Interaction) (ir types.InteractionResult) {
	ir = types.InteractionResult{
		Index:       index,
		Method:      strings.ToUpper(interaction.Request.Method),
		Path:        interaction.Request.Path,
		RequestHash: interaction.RequestHash,
		Timestamp:   time.Now().UTC(),
	}

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Interaction replay panicked",
				zap.Int("index", index),
				zap.String("path", ir.Path),
				zap.Any("panic", r))
			ir.Comparison = nil
			ir.Error = fmt.Sprintf("comparison failure: %v", r)
		}
	}()

	replayed, source, err := e.obtainResponse(ctx, interaction)
	if err != nil {
		ir.Error = err.Error()
		return ir
	}
	ir.Source = source
	if source == "live" && ctx.Err() != nil {
		// Cancelled mid-call: the call was aborted, count the interaction
		// as errored and let the loop terminate.
		ir.Error = fmt.Sprintf("replay aborted: %v", ctx.Err())
		return ir
	}

	ir.ReplayError = replayed.replayError
	ir.Comparison = e.judge.Compare(&interaction.Response, replayed.response)
	return ir
}

type obtained struct {
	response    *types.Response
	replayError bool
}

func (e *Engine) obtainResponse(ctx context.Context, interaction *types.Interaction) (*obtained, string, error) {
	req := &interaction.Request

	if e.opts.UseDynamicResponses {
		if match := e.resolver.Resolve(req.Method, req.Path); match != nil {
			resp, err := e.synthesize(match, req)
			if err != nil {
				return nil, "template", err
			}
			return &obtained{response: resp}, "template", nil
		}
	}

	if e.client == nil {
		return nil, "", fmt.Errorf("%w: no template route matched %s %s and no target service configured",
			types.ErrInput, strings.ToUpper(req.Method), req.Path)
	}

	resp, replayErr, err := e.client.Do(ctx, req)
	if err != nil {
		return nil, "live", err
	}
	return &obtained{response: resp, replayError: replayErr}, "live", nil
}

// synthesize renders a template route into a response.
func (e *Engine) synthesize(match *route.Match, req *types.Request) (*types.Response, error) {
	tmpl, err := match.Route.EnsureCompiled(e.compiler)
	if err != nil {
		return nil, err
	}

	renderCtx := e.contexts.Build(req, match.Params)

	start := time.Now()
	body, err := tmpl.Render(e.compiler, renderCtx)
	elapsed := time.Since(start)

	e.resolver.Metrics.RecordRender(elapsed)
	if e.sink != nil {
		e.sink.RenderObserved(elapsed)
	}

	if err != nil {
		return nil, err
	}

	status := match.Route.StatusCode
	if status == 0 {
		status = 200
	}

	headers := make(map[string]string, len(match.Route.Headers))
	for k, v := range match.Route.Headers {
		headers[k] = v
	}

	return &types.Response{
		StatusCode: status,
		Headers:    headers,
		Body:       body,
	}, nil
}

func (e *Engine) preloadTemplates() error {
	for _, r := range e.resolver.Routes() {
		if _, err := r.EnsureCompiled(e.compiler); err != nil {
			return fmt.Errorf("preload: %w", err)
		}
	}
	e.logger.Debug("Preloaded templates", zap.Int("routes", len(e.resolver.Routes())))
	return nil
}

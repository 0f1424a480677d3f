// Package record implements the recording proxy: it forwards live traffic
// to a baseline service, captures each request/response pair, and writes the
// session on stop. Control endpoints /recorder/start and /recorder/stop
// toggle capture without interrupting proxying.
package record

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/replayproof/engine/internal/session"
	"github.com/replayproof/engine/internal/verify/reqhash"
	"github.com/replayproof/engine/pkg/types"
)

// DefaultRedactedHeaders are always replaced with the redaction sentinel in
// captured traffic.
var DefaultRedactedHeaders = []string{"authorization", "cookie", "set-cookie", "x-api-key"}

// Config configures the recording proxy.
type Config struct {
	// Listen is the proxy's own address ("0.0.0.0:8090").
	Listen string `yaml:"listen" json:"listen"`
	// Target is the baseline service traffic is forwarded to.
	Target string `yaml:"target" json:"target"`
	// Environment is stamped into session metadata.
	Environment string `yaml:"environment" json:"environment"`
	// RedactHeaders extends DefaultRedactedHeaders.
	RedactHeaders []string `yaml:"redactHeaders" json:"redactHeaders"`
	// RedactBodyFields lists body field names redacted at any depth.
	RedactBodyFields []string `yaml:"redactBodyFields" json:"redactBodyFields"`
	// ProxyTimeout bounds each upstream call. Zero means 30s.
	ProxyTimeout time.Duration `yaml:"proxyTimeout" json:"proxyTimeout"`
}

type startRequest struct {
	SessionID   string   `json:"sessionId"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Recorder is the proxy server. Proxying always happens; capture only
// between start and stop.
type Recorder struct {
	cfg    Config
	store  session.Store
	logger *zap.Logger
	client *fasthttp.Client

	redactHeaders map[string]struct{}
	redactFields  map[string]struct{}

	mu      sync.Mutex
	current *types.Session
}

// NewRecorder creates a recorder writing finished sessions to store.
func NewRecorder(cfg Config, store session.Store, logger *zap.Logger) (*Recorder, error) {
	if cfg.Target == "" {
		return nil, fmt.Errorf("%w: recorder target is required", types.ErrInput)
	}
	if cfg.ProxyTimeout <= 0 {
		cfg.ProxyTimeout = 30 * time.Second
	}

	redactHeaders := make(map[string]struct{})
	for _, h := range DefaultRedactedHeaders {
		redactHeaders[strings.ToLower(h)] = struct{}{}
	}
	for _, h := range cfg.RedactHeaders {
		redactHeaders[strings.ToLower(h)] = struct{}{}
	}
	redactFields := make(map[string]struct{})
	for _, f := range cfg.RedactBodyFields {
		redactFields[strings.ToLower(f)] = struct{}{}
	}

	return &Recorder{
		cfg:    cfg,
		store:  store,
		logger: logger,
		client: &fasthttp.Client{
			ReadTimeout:  cfg.ProxyTimeout,
			WriteTimeout: cfg.ProxyTimeout,
		},
		redactHeaders: redactHeaders,
		redactFields:  redactFields,
	}, nil
}

// HandleRequest is the fasthttp handler: control endpoints first, then
// proxy-and-capture.
func (r *Recorder) HandleRequest(ctx *fasthttp.RequestCtx) {
	switch string(ctx.Path()) {
	case "/recorder/start":
		r.handleStart(ctx)
	case "/recorder/stop":
		r.handleStop(ctx)
	case "/recorder/status":
		r.handleStatus(ctx)
	default:
		r.proxy(ctx)
	}
}

// Serve runs the proxy until the listener fails.
func (r *Recorder) Serve() error {
	r.logger.Info("Recording proxy listening",
		zap.String("listen", r.cfg.Listen),
		zap.String("target", r.cfg.Target))
	srv := &fasthttp.Server{
		Handler: r.HandleRequest,
		Name:    "replay-verifier-recorder",
	}
	return srv.ListenAndServe(r.cfg.Listen)
}

func (r *Recorder) handleStart(ctx *fasthttp.RequestCtx) {
	if !ctx.IsPost() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "POST required")
		return
	}

	var req startRequest
	if body := ctx.PostBody(); len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, fmt.Sprintf("malformed start request: %v", err))
			return
		}
	}
	if req.SessionID == "" {
		req.SessionID = "session-" + uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		writeError(ctx, fasthttp.StatusConflict,
			fmt.Sprintf("recording already in progress: %s", r.current.SessionID))
		return
	}

	r.current = &types.Session{
		SessionID: req.SessionID,
		Timestamp: time.Now().UTC(),
		Metadata: types.SessionMetadata{
			Tags:        req.Tags,
			Description: req.Description,
			CreatedAt:   time.Now().UTC(),
			Environment: r.cfg.Environment,
		},
	}

	r.logger.Info("Recording started", zap.String("session_id", req.SessionID))
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{"sessionId": req.SessionID, "recording": true})
}

func (r *Recorder) handleStop(ctx *fasthttp.RequestCtx) {
	if !ctx.IsPost() {
		writeError(ctx, fasthttp.StatusMethodNotAllowed, "POST required")
		return
	}

	r.mu.Lock()
	finished := r.current
	r.current = nil
	r.mu.Unlock()

	if finished == nil {
		writeError(ctx, fasthttp.StatusConflict, "no recording in progress")
		return
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := r.store.Save(saveCtx, finished); err != nil {
		r.logger.Error("Failed to save recorded session",
			zap.String("session_id", finished.SessionID), zap.Error(err))
		writeError(ctx, fasthttp.StatusInternalServerError, fmt.Sprintf("failed to save session: %v", err))
		return
	}

	r.logger.Info("Recording stopped",
		zap.String("session_id", finished.SessionID),
		zap.Int("interactions", len(finished.Interactions)))
	writeJSON(ctx, fasthttp.StatusOK, map[string]any{
		"sessionId":    finished.SessionID,
		"interactions": len(finished.Interactions),
	})
}

func (r *Recorder) handleStatus(ctx *fasthttp.RequestCtx) {
	r.mu.Lock()
	defer r.mu.Unlock()
	status := map[string]any{"recording": r.current != nil}
	if r.current != nil {
		status["sessionId"] = r.current.SessionID
		status["interactions"] = len(r.current.Interactions)
	}
	writeJSON(ctx, fasthttp.StatusOK, status)
}

// proxy forwards the request upstream and, when a recording is active,
// appends the captured interaction.
func (r *Recorder) proxy(ctx *fasthttp.RequestCtx) {
	captured := r.captureRequest(ctx)

	upstreamReq := fasthttp.AcquireRequest()
	upstreamResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(upstreamReq)
	defer fasthttp.ReleaseResponse(upstreamResp)

	ctx.Request.CopyTo(upstreamReq)
	upstreamReq.SetRequestURI(strings.TrimSuffix(r.cfg.Target, "/") + string(ctx.RequestURI()))

	start := time.Now()
	if err := r.client.DoTimeout(upstreamReq, upstreamResp, r.cfg.ProxyTimeout); err != nil {
		r.logger.Error("Upstream request failed",
			zap.String("path", string(ctx.Path())), zap.Error(err))
		writeError(ctx, fasthttp.StatusBadGateway, fmt.Sprintf("upstream error: %v", err))
		return
	}
	duration := time.Since(start)

	upstreamResp.CopyTo(&ctx.Response)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return
	}

	interaction := types.Interaction{
		Timestamp:  start.UTC(),
		Request:    captured,
		Response:   r.captureResponse(upstreamResp),
		DurationMs: float64(duration.Microseconds()) / 1000.0,
	}
	if hash, err := reqhash.Hash(&captured); err == nil {
		interaction.RequestHash = hash
	} else {
		r.logger.Warn("Failed to hash captured request",
			zap.String("path", captured.Path), zap.Error(err))
	}

	r.current.Interactions = append(r.current.Interactions, interaction)
	r.logger.Debug("Interaction captured",
		zap.String("session_id", r.current.SessionID),
		zap.String("method", captured.Method),
		zap.String("path", captured.Path),
		zap.Int("status", interaction.Response.StatusCode))
}

func (r *Recorder) captureRequest(ctx *fasthttp.RequestCtx) types.Request {
	req := types.Request{
		Method:  string(ctx.Method()),
		Path:    string(ctx.Path()),
		Headers: map[string]string{},
		Query:   map[string]any{},
	}

	ctx.Request.Header.VisitAll(func(key, value []byte) {
		name := string(key)
		if _, redact := r.redactHeaders[strings.ToLower(name)]; redact {
			req.Headers[name] = types.RedactedValue
			return
		}
		req.Headers[name] = string(value)
	})

	ctx.QueryArgs().VisitAll(func(key, value []byte) {
		k := string(key)
		switch existing := req.Query[k].(type) {
		case nil:
			req.Query[k] = string(value)
		case string:
			req.Query[k] = []any{existing, string(value)}
		case []any:
			req.Query[k] = append(existing, string(value))
		}
	})
	if len(req.Query) == 0 {
		req.Query = nil
	}

	if body := ctx.PostBody(); len(body) > 0 {
		req.Body = r.redactBody(decodeCaptured(body))
	}
	return req
}

func (r *Recorder) captureResponse(resp *fasthttp.Response) types.Response {
	out := types.Response{
		StatusCode:    resp.StatusCode(),
		StatusMessage: fasthttp.StatusMessage(resp.StatusCode()),
		Headers:       map[string]string{},
	}
	resp.Header.VisitAll(func(key, value []byte) {
		name := string(key)
		if _, redact := r.redactHeaders[strings.ToLower(name)]; redact {
			out.Headers[name] = types.RedactedValue
			return
		}
		out.Headers[name] = string(value)
	})
	if body := resp.Body(); len(body) > 0 {
		out.Body = r.redactBody(decodeCaptured(body))
	}
	return out
}

// redactBody replaces configured field values anywhere in the tree.
func (r *Recorder) redactBody(v any) any {
	if len(r.redactFields) == 0 {
		return v
	}
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			if _, redact := r.redactFields[strings.ToLower(k)]; redact {
				t[k] = types.RedactedValue
				continue
			}
			t[k] = r.redactBody(val)
		}
		return t
	case []any:
		for i, el := range t {
			t[i] = r.redactBody(el)
		}
		return t
	default:
		return v
	}
}

func decodeCaptured(raw []byte) any {
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
	}
	return string(raw)
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, payload any) {
	ctx.Response.Header.Set("Content-Type", "application/json")
	ctx.Response.SetStatusCode(status)
	data, _ := json.Marshal(payload)
	ctx.Response.SetBody(data)
}

func writeError(ctx *fasthttp.RequestCtx, status int, message string) {
	writeJSON(ctx, status, map[string]any{"error": message})
}

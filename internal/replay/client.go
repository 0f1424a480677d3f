package replay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/replayproof/engine/internal/verify/canon"
	"github.com/replayproof/engine/pkg/types"
)

// DefaultRequestTimeout bounds each live replay call.
const DefaultRequestTimeout = 30 * time.Second

// LiveClient replays recorded requests against a target base URL. Any
// status code is accepted; transport failures are surfaced as synthetic 500
// responses flagged replayError so the session keeps going.
type LiveClient struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
}

// NewLiveClient creates a client for the given target. A zero timeout
// falls back to DefaultRequestTimeout.
func NewLiveClient(baseURL string, timeout time.Duration, logger *zap.Logger) *LiveClient {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &LiveClient{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
	}
}

// Do replays one recorded request. The returned replayErr flag marks
// transport-level failures (connection refused, timeout); HTTP error
// statuses are ordinary responses.
func (c *LiveClient) Do(ctx context.Context, req *types.Request) (resp *types.Response, replayErr bool, err error) {
	target, err := c.buildURL(req)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", types.ErrInput, err)
	}

	var bodyReader io.Reader
	if req.Body != nil {
		raw, err := json.Marshal(canon.Value(req.Body))
		if err != nil {
			return nil, false, fmt.Errorf("%w: failed to encode request body: %v", types.ErrInput, err)
		}
		bodyReader = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, strings.ToUpper(req.Method), target, bodyReader)
	if err != nil {
		return nil, false, fmt.Errorf("%w: failed to build HTTP request: %v", types.ErrInput, err)
	}

	for name, value := range req.Headers {
		// Redacted credentials cannot be replayed; sending the sentinel
		// would only confuse the target.
		if value == types.RedactedValue || strings.EqualFold(name, "host") {
			continue
		}
		httpReq.Header.Set(name, value)
	}
	if bodyReader != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	start := time.Now().UTC()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Warn("Live replay request failed",
			zap.String("method", req.Method),
			zap.String("url", target),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return &types.Response{
			StatusCode: http.StatusInternalServerError,
			Body:       map[string]any{"error": err.Error()},
		}, true, nil
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return &types.Response{
			StatusCode: http.StatusInternalServerError,
			Body:       map[string]any{"error": fmt.Sprintf("failed to read response body: %v", err)},
		}, true, nil
	}

	response := &types.Response{
		StatusCode:    httpResp.StatusCode,
		StatusMessage: http.StatusText(httpResp.StatusCode),
		Headers:       flattenHeaders(httpResp.Header),
		Body:          decodeBody(raw),
	}

	c.logger.Debug("Live replay completed",
		zap.String("method", req.Method),
		zap.String("url", target),
		zap.Int("status", httpResp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	return response, false, nil
}

func (c *LiveClient) buildURL(req *types.Request) (string, error) {
	u, err := url.Parse(c.baseURL + req.Path)
	if err != nil {
		return "", fmt.Errorf("invalid target URL: %w", err)
	}

	query := u.Query()
	for k, v := range req.Query {
		switch t := v.(type) {
		case []any:
			for _, el := range t {
				query.Add(k, fmt.Sprintf("%v", el))
			}
		case []string:
			for _, el := range t {
				query.Add(k, el)
			}
		default:
			query.Add(k, fmt.Sprintf("%v", t))
		}
	}
	u.RawQuery = query.Encode()
	return u.String(), nil
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) > 0 {
			out[name] = strings.Join(values, ", ")
		}
	}
	return out
}

// decodeBody parses JSON bodies into structured values; anything else stays
// a string. Empty bodies are nil.
func decodeBody(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	trimmed := strings.TrimSpace(string(raw))
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
	}
	return string(raw)
}

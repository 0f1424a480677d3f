package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/replayproof/engine/internal/verify/reqhash"
	"github.com/replayproof/engine/pkg/types"
)

// HAR import converts browser or proxy captures (HTTP Archive 1.2) into
// replayable sessions. Only the request/response subset the verifier
// compares is carried over; timings beyond total duration are dropped.

type harFile struct {
	Log harLog `json:"log"`
}

type harLog struct {
	Entries []harEntry `json:"entries"`
}

type harEntry struct {
	StartedDateTime time.Time   `json:"startedDateTime"`
	Time            float64     `json:"time"` // milliseconds
	Request         harRequest  `json:"request"`
	Response        harResponse `json:"response"`
}

type harRequest struct {
	Method      string     `json:"method"`
	URL         string     `json:"url"`
	Headers     []harNV    `json:"headers"`
	QueryString []harNV    `json:"queryString"`
	PostData    *harPost   `json:"postData,omitempty"`
}

type harPost struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

type harResponse struct {
	Status     int        `json:"status"`
	StatusText string     `json:"statusText"`
	Headers    []harNV    `json:"headers"`
	Content    harContent `json:"content"`
}

type harContent struct {
	MimeType string `json:"mimeType"`
	Text     string `json:"text"`
}

type harNV struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ImportHAR reads a .har (or gzipped .har.gz) capture and converts it into
// a session with the given id. Request hashes are computed during import so
// the session replays exactly like a recorded one.
func ImportHAR(path, sessionID string) (*types.Session, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read HAR '%s': %v", types.ErrIO, path, err)
	}

	if strings.HasSuffix(path, ".gz") {
		reader, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("%w: malformed gzip HAR '%s': %v", types.ErrInput, path, err)
		}
		raw, err = io.ReadAll(reader)
		reader.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: gzip HAR decompression failed: %v", types.ErrIO, err)
		}
	}

	var har harFile
	if err := json.Unmarshal(raw, &har); err != nil {
		return nil, fmt.Errorf("%w: malformed HAR '%s': %v", types.ErrInput, path, err)
	}
	if len(har.Log.Entries) == 0 {
		return nil, fmt.Errorf("%w: HAR '%s' has no entries", types.ErrInput, path)
	}

	if sessionID == "" {
		sessionID = strings.TrimSuffix(strings.TrimSuffix(filepath.Base(path), ".gz"), ".har")
	}

	s := &types.Session{
		SessionID: sessionID,
		Timestamp: har.Log.Entries[0].StartedDateTime,
		Metadata: types.SessionMetadata{
			CreatedAt:   time.Now().UTC(),
			Description: "imported from " + filepath.Base(path),
		},
	}

	for i, entry := range har.Log.Entries {
		interaction, err := convertEntry(&entry)
		if err != nil {
			return nil, fmt.Errorf("%w: HAR entry %d: %v", types.ErrInput, i, err)
		}
		s.Interactions = append(s.Interactions, *interaction)
	}

	return s, nil
}

func convertEntry(entry *harEntry) (*types.Interaction, error) {
	u, err := url.Parse(entry.Request.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid request URL '%s': %v", entry.Request.URL, err)
	}

	req := types.Request{
		Method:  entry.Request.Method,
		Path:    u.Path,
		Headers: nvMap(entry.Request.Headers),
	}
	if req.Path == "" {
		req.Path = "/"
	}

	if len(entry.Request.QueryString) > 0 {
		req.Query = map[string]any{}
		for _, nv := range entry.Request.QueryString {
			switch existing := req.Query[nv.Name].(type) {
			case nil:
				req.Query[nv.Name] = nv.Value
			case string:
				req.Query[nv.Name] = []any{existing, nv.Value}
			case []any:
				req.Query[nv.Name] = append(existing, nv.Value)
			}
		}
	}
	if entry.Request.PostData != nil && entry.Request.PostData.Text != "" {
		req.Body = decodeHARBody(entry.Request.PostData.Text)
	}

	resp := types.Response{
		StatusCode:    entry.Response.Status,
		StatusMessage: entry.Response.StatusText,
		Headers:       nvMap(entry.Response.Headers),
	}
	if entry.Response.Content.Text != "" {
		resp.Body = decodeHARBody(entry.Response.Content.Text)
	}

	interaction := &types.Interaction{
		Timestamp:  entry.StartedDateTime,
		Request:    req,
		Response:   resp,
		DurationMs: entry.Time,
	}
	if hash, err := reqhash.Hash(&req); err == nil {
		interaction.RequestHash = hash
	}
	return interaction, nil
}

func nvMap(pairs []harNV) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	out := make(map[string]string, len(pairs))
	for _, nv := range pairs {
		// HAR repeats headers; joining matches how replay responses are
		// flattened.
		if existing, ok := out[nv.Name]; ok {
			out[nv.Name] = existing + ", " + nv.Value
			continue
		}
		out[nv.Name] = nv.Value
	}
	return out
}

func decodeHARBody(text string) any {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
	}
	return text
}

// Package reqhash computes the canonical request fingerprint used to match
// a replayed request to its recorded response.
//
// The fingerprint covers only method, path, sorted query, and canonicalized
// body. Headers, cookies, and timing never participate, so re-recording the
// same traffic with different client metadata yields identical hashes.
package reqhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gowebpki/jcs"

	"github.com/replayproof/engine/internal/verify/canon"
	"github.com/replayproof/engine/pkg/types"
)

// hashEnvelope is the exact structure serialized for hashing. Field order is
// irrelevant: the JCS transform (RFC 8785) sorts keys and normalizes number
// and string encodings deterministically.
type hashEnvelope struct {
	Method string `json:"method"`
	Path   string `json:"path"`
	Query  any    `json:"query"`
	Body   any    `json:"body"`
}

// Hash returns the 256-bit lowercase-hex fingerprint of a request.
func Hash(req *types.Request) (string, error) {
	envelope := hashEnvelope{
		Method: strings.ToUpper(req.Method),
		Path:   req.Path,
		Query:  canonQuery(req.Query),
		Body:   canon.Value(req.Body),
	}

	raw, err := json.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("%w: failed to encode request for hashing: %v", types.ErrInvariant, err)
	}

	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("%w: failed to canonicalize request encoding: %v", types.ErrInvariant, err)
	}

	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// MustHash is Hash for values already known to be encodable; it panics on
// the (unreachable for JSON-shaped input) error path.
func MustHash(req *types.Request) string {
	h, err := Hash(req)
	if err != nil {
		panic(err)
	}
	return h
}

// canonQuery canonicalizes the query mapping. Single-element value slices
// collapse to the scalar so "?a=1" hashes identically whether the recorder
// stored "1" or ["1"].
func canonQuery(query map[string]any) any {
	if len(query) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(query))
	for k, v := range query {
		cv := canon.Value(v)
		if list, ok := cv.([]any); ok && len(list) == 1 {
			cv = list[0]
		}
		out[k] = cv
	}
	return out
}

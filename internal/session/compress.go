// Package session loads, saves, lists, and tags recorded sessions. Stores
// are directory-backed by default, with an optional Redis backend for
// shared CI environments. Session archives may be compressed; the codec is
// detected from the file extension.
package session

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/snappy"
	"github.com/pierrec/lz4/v4"

	"github.com/replayproof/engine/pkg/types"
)

// Supported archive codecs.
const (
	CodecNone   = "none"
	CodecSnappy = "snappy"
	CodecLZ4    = "lz4"

	ExtJSON   = ".json"
	ExtSnappy = ".json.sz"
	ExtLZ4    = ".json.lz4"
)

// DetectCodec returns the codec implied by a session file path.
func DetectCodec(path string) string {
	switch {
	case strings.HasSuffix(path, ExtSnappy):
		return CodecSnappy
	case strings.HasSuffix(path, ExtLZ4):
		return CodecLZ4
	default:
		return CodecNone
	}
}

// CodecExt returns the file extension for a codec.
func CodecExt(codec string) string {
	switch codec {
	case CodecSnappy:
		return ExtSnappy
	case CodecLZ4:
		return ExtLZ4
	default:
		return ExtJSON
	}
}

// encode compresses raw session JSON with the given codec.
func encode(raw []byte, codec string) ([]byte, error) {
	switch codec {
	case CodecNone, "":
		return raw, nil

	case CodecSnappy:
		return snappy.Encode(nil, raw), nil

	case CodecLZ4:
		// Stream format carries the size; block format would need a
		// side-channel.
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			w.Close()
			return nil, fmt.Errorf("%w: lz4 compression failed: %v", types.ErrIO, err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("%w: lz4 compression close failed: %v", types.ErrIO, err)
		}
		return buf.Bytes(), nil

	default:
		return nil, fmt.Errorf("%w: unknown session codec '%s'", types.ErrInput, codec)
	}
}

// decode decompresses session bytes according to the path's extension.
func decode(raw []byte, path string) ([]byte, error) {
	switch DetectCodec(path) {
	case CodecSnappy:
		out, err := snappy.Decode(nil, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: snappy decompression of '%s' failed: %v", types.ErrIO, path, err)
		}
		return out, nil

	case CodecLZ4:
		r := lz4.NewReader(bytes.NewReader(raw))
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("%w: lz4 decompression of '%s' failed: %v", types.ErrIO, path, err)
		}
		return out, nil

	default:
		return raw, nil
	}
}

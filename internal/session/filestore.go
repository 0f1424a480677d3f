package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/replayproof/engine/pkg/types"
)

// Entry is one session listed from a store.
type Entry struct {
	SessionID    string    `json:"sessionId"`
	Path         string    `json:"path,omitempty"`
	Codec        string    `json:"codec"`
	Interactions int       `json:"interactions"`
	CreatedAt    time.Time `json:"createdAt,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	Description  string    `json:"description,omitempty"`
}

// Store is the session persistence interface shared by the file and Redis
// backends.
type Store interface {
	Load(ctx context.Context, id string) (*types.Session, error)
	Save(ctx context.Context, session *types.Session) error
	List(ctx context.Context) ([]Entry, error)
	Delete(ctx context.Context, id string) error
}

// FileStore keeps sessions as JSON files under one directory, one file per
// session, named "<sessionId><ext>". Compressed archives are read and
// written transparently.
type FileStore struct {
	dir    string
	codec  string
	logger *zap.Logger
}

// NewFileStore creates a store over dir. codec selects the archive format
// for newly saved sessions (CodecNone, CodecSnappy, CodecLZ4); existing
// files keep whatever codec their extension names.
func NewFileStore(dir, codec string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: session directory is required", types.ErrInput)
	}
	if codec == "" {
		codec = CodecNone
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create session directory '%s': %v", types.ErrIO, dir, err)
	}
	return &FileStore{dir: dir, codec: codec, logger: logger}, nil
}

// LoadFile reads a session from an explicit file path, independent of any
// store directory. This is what the replay command uses for positional
// session-file arguments.
func LoadFile(path string) (*types.Session, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read session '%s': %v", types.ErrIO, path, err)
	}
	return Parse(raw, path)
}

// Parse decodes session bytes, decompressing them when path carries an
// archive extension.
func Parse(raw []byte, path string) (*types.Session, error) {
	data, err := decode(raw, path)
	if err != nil {
		return nil, err
	}

	var s types.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: malformed session '%s': %v", types.ErrInput, path, err)
	}
	if err := Validate(&s); err != nil {
		return nil, fmt.Errorf("%w: invalid session '%s': %v", types.ErrInput, path, err)
	}
	return &s, nil
}

// Validate checks the structural invariants of a loaded session.
func Validate(s *types.Session) error {
	if s.SessionID == "" {
		return fmt.Errorf("missing sessionId")
	}
	for i := range s.Interactions {
		req := &s.Interactions[i].Request
		if req.Method == "" {
			return fmt.Errorf("interaction %d: missing request method", i)
		}
		if req.Path == "" || !strings.HasPrefix(req.Path, "/") {
			return fmt.Errorf("interaction %d: request path must start with '/'", i)
		}
	}
	return nil
}

// Load reads a session by id, trying each known extension.
func (fs *FileStore) Load(ctx context.Context, id string) (*types.Session, error) {
	_ = ctx
	path, err := fs.resolve(id)
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// Save writes a session atomically: encode, write to a temp file in the
// same directory, rename over the target.
func (fs *FileStore) Save(ctx context.Context, session *types.Session) error {
	_ = ctx
	if err := Validate(session); err != nil {
		return fmt.Errorf("%w: %v", types.ErrInput, err)
	}

	raw, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to encode session: %v", types.ErrIO, err)
	}
	data, err := encode(raw, fs.codec)
	if err != nil {
		return err
	}

	target := filepath.Join(fs.dir, session.SessionID+CodecExt(fs.codec))
	if err := writeAtomic(target, data); err != nil {
		return err
	}

	fs.logger.Info("Session saved",
		zap.String("session_id", session.SessionID),
		zap.String("path", target),
		zap.Int("interactions", len(session.Interactions)))
	return nil
}

// SaveTo rewrites a session at an explicit path, keeping the path's codec.
// Used by tagging, which must not change where or how a session is stored.
func SaveTo(path string, session *types.Session) error {
	raw, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: failed to encode session: %v", types.ErrIO, err)
	}
	data, err := encode(raw, DetectCodec(path))
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

// List scans the directory for session files, sorted by session id.
func (fs *FileStore) List(ctx context.Context) ([]Entry, error) {
	_ = ctx
	dirents, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read session directory '%s': %v", types.ErrIO, fs.dir, err)
	}

	var entries []Entry
	for _, de := range dirents {
		if de.IsDir() || !isSessionFile(de.Name()) {
			continue
		}
		path := filepath.Join(fs.dir, de.Name())
		s, err := LoadFile(path)
		if err != nil {
			fs.logger.Warn("Skipping unreadable session file",
				zap.String("path", path), zap.Error(err))
			continue
		}
		entries = append(entries, Entry{
			SessionID:    s.SessionID,
			Path:         path,
			Codec:        DetectCodec(path),
			Interactions: len(s.Interactions),
			CreatedAt:    s.Metadata.CreatedAt,
			Tags:         s.Metadata.Tags,
			Description:  s.Metadata.Description,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].SessionID < entries[j].SessionID })
	return entries, nil
}

// Delete removes a session file by id.
func (fs *FileStore) Delete(ctx context.Context, id string) error {
	_ = ctx
	path, err := fs.resolve(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("%w: failed to delete session '%s': %v", types.ErrIO, id, err)
	}
	return nil
}

func (fs *FileStore) resolve(id string) (string, error) {
	for _, ext := range []string{ExtJSON, ExtSnappy, ExtLZ4} {
		path := filepath.Join(fs.dir, id+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: session '%s' not found in '%s'", types.ErrInput, id, fs.dir)
}

func isSessionFile(name string) bool {
	return strings.HasSuffix(name, ExtJSON) ||
		strings.HasSuffix(name, ExtSnappy) ||
		strings.HasSuffix(name, ExtLZ4)
}

func writeAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp session file: %v", types.ErrIO, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: failed to write session file: %v", types.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: failed to close session file: %v", types.ErrIO, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: failed to replace session file '%s': %v", types.ErrIO, target, err)
	}
	return nil
}

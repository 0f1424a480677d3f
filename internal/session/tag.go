package session

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/replayproof/engine/internal/replay"
	"github.com/replayproof/engine/pkg/types"
)

// TagChange describes one tagging operation over a session file.
type TagChange struct {
	// Add lists tags to attach to matching interactions.
	Add []string
	// Remove lists tags to strip from matching interactions.
	Remove []string
	// SessionLevel applies the change to the session metadata instead of
	// individual interactions.
	SessionLevel bool
}

// Tagger rewrites session tags in place.
type Tagger struct {
	logger *zap.Logger
}

// NewTagger creates a tagger.
func NewTagger(logger *zap.Logger) *Tagger {
	return &Tagger{logger: logger}
}

// TagFile loads a session file, applies the change to interactions selected
// by the filter, and rewrites the file atomically with its original codec.
// Returns the number of interactions (or 1 for session-level changes)
// modified.
func (t *Tagger) TagFile(path string, filter *replay.Filter, change TagChange) (int, error) {
	if len(change.Add) == 0 && len(change.Remove) == 0 {
		return 0, fmt.Errorf("%w: nothing to do, specify tags to add or remove", types.ErrInput)
	}

	s, err := LoadFile(path)
	if err != nil {
		return 0, err
	}

	modified := t.Apply(s, filter, change)
	if modified == 0 {
		return 0, nil
	}

	if err := SaveTo(path, s); err != nil {
		return 0, err
	}

	t.logger.Info("Session tags updated",
		zap.String("path", path),
		zap.Int("modified", modified),
		zap.Strings("added", change.Add),
		zap.Strings("removed", change.Remove))
	return modified, nil
}

// Apply mutates the session in memory, returning how many targets changed.
func (t *Tagger) Apply(s *types.Session, filter *replay.Filter, change TagChange) int {
	if change.SessionLevel {
		next, changed := retag(s.Metadata.Tags, change)
		if !changed {
			return 0
		}
		s.Metadata.Tags = next
		return 1
	}

	modified := 0
	for i := range s.Interactions {
		if !filter.IsEmpty() && !filter.Matches(&s.Interactions[i]) {
			continue
		}
		next, changed := retag(s.Interactions[i].Tags, change)
		if changed {
			s.Interactions[i].Tags = next
			modified++
		}
	}
	return modified
}

// retag returns the updated tag list and whether anything changed. Adds are
// deduplicated case-insensitively; removals match case-insensitively.
func retag(tags []string, change TagChange) ([]string, bool) {
	changed := false

	if len(change.Remove) > 0 {
		kept := tags[:0:0]
		for _, tag := range tags {
			if containsFold(change.Remove, tag) {
				changed = true
				continue
			}
			kept = append(kept, tag)
		}
		tags = kept
	}

	for _, tag := range change.Add {
		if tag == "" || containsFold(tags, tag) {
			continue
		}
		tags = append(tags, tag)
		changed = true
	}

	return tags, changed
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

package syncer

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/lippkg/lip-index/internal/persistence"
)

// stateSnapshot is the on-disk form of RefreshState.
type stateSnapshot struct {
	Refreshed map[string]time.Time
}

// RefreshState remembers when each repository was last refreshed.
// An empty path keeps the state in memory only.
type RefreshState struct {
	mu        sync.RWMutex
	path      string
	refreshed map[string]time.Time
}

// LoadState reads the snapshot at path. A missing file yields an empty state.
func LoadState(path string) (*RefreshState, error) {
	s := &RefreshState{path: path, refreshed: make(map[string]time.Time)}
	if path == "" {
		return s, nil
	}

	var snap stateSnapshot
	err := persistence.LoadGob(path, &snap)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading refresh state: %w", err)
	}
	for k, v := range snap.Refreshed {
		s.refreshed[k] = v
	}
	return s, nil
}

// Fresh reports whether key was refreshed less than expire before now.
func (s *RefreshState) Fresh(key string, now time.Time, expire time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	last, ok := s.refreshed[key]
	return ok && now.Sub(last) < expire
}

// LastRefreshed returns when key was last refreshed.
func (s *RefreshState) LastRefreshed(key string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.refreshed[key]
	return t, ok
}

// MarkRefreshed records a refresh of key at t.
func (s *RefreshState) MarkRefreshed(key string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshed[key] = t
}

// Save writes the snapshot to disk.
func (s *RefreshState) Save() error {
	if s.path == "" {
		return nil
	}

	s.mu.RLock()
	snap := stateSnapshot{Refreshed: make(map[string]time.Time, len(s.refreshed))}
	for k, v := range s.refreshed {
		snap.Refreshed[k] = v
	}
	s.mu.RUnlock()

	return persistence.SaveGob(s.path, snap)
}

// Len returns the number of tracked repositories.
func (s *RefreshState) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.refreshed)
}

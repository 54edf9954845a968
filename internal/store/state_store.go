package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// SessionStateStore persists the ordered list of live sessions as a single
// JSON file (spec.md §4.7, §6.4). Saves are atomic (write to a sibling
// temp file, then rename); the store holds no lock between calls.
type SessionStateStore struct {
	path string
	mu   sync.Mutex
}

// NewSessionStateStore opens a state store backed by path (conventionally
// <AppData>/CcDirector/sessions.json).
func NewSessionStateStore(path string) *SessionStateStore {
	return &SessionStateStore{path: path}
}

// LoadResult reports the outcome of Load: a successfully parsed file, an
// absent file (Sessions is empty, FileExistedButFailed is false), or a
// present-but-malformed file (FileExistedButFailed is true and Diagnostic
// explains why).
type LoadResult struct {
	Sessions             []PersistedSession
	FileExistedButFailed bool
	Diagnostic           string
}

// Load reads and parses the state file. A missing file is not an error.
func (s *SessionStateStore) Load() (LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return LoadResult{}, nil
		}
		return LoadResult{}, fmt.Errorf("state store: read %s: %w", s.path, err)
	}

	var sessions []PersistedSession
	if err := json.Unmarshal(data, &sessions); err != nil {
		return LoadResult{
			FileExistedButFailed: true,
			Diagnostic:           err.Error(),
		}, nil
	}
	return LoadResult{Sessions: sessions}, nil
}

// Save atomically overwrites the state file with sessions.
func (s *SessionStateStore) Save(sessions []PersistedSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sessions == nil {
		sessions = []PersistedSession{}
	}
	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("state store: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state store: mkdir %s: %w", dir, err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("state store: write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("state store: rename temp file: %w", err)
	}
	return nil
}

// BackupAndClear copies the current state file to a ".bak" sibling (if
// present) and then removes the original, for recovery flows that choose
// to discard a malformed file rather than ignore it (spec.md §4.7).
func (s *SessionStateStore) BackupAndClear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("state store: read %s: %w", s.path, err)
	}

	backupPath := s.path + ".bak"
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return fmt.Errorf("state store: write backup %s: %w", backupPath, err)
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("state store: remove %s: %w", s.path, err)
	}
	return nil
}

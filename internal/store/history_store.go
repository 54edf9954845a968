package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/thefrederiksen/cc-director-sub002/internal/logging"
)

// SessionHistoryStore persists one JSON file per SessionHistoryEntry under
// a subdirectory (spec.md §4.7, §6.4 — <CcStorage>/director/sessions/<id>.json).
type SessionHistoryStore struct {
	dir string
	log *logging.Logger
	mu  sync.Mutex
}

// NewSessionHistoryStore opens a history store rooted at dir, creating it
// if necessary.
func NewSessionHistoryStore(dir string, log *logging.Logger) (*SessionHistoryStore, error) {
	if log == nil {
		log = logging.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("history store: mkdir %s: %w", dir, err)
	}
	return &SessionHistoryStore{dir: dir, log: log}, nil
}

func (s *SessionHistoryStore) entryPath(id string) string {
	safeID := strings.ReplaceAll(id, "/", "_")
	safeID = strings.ReplaceAll(safeID, "\\", "_")
	return filepath.Join(s.dir, safeID+".json")
}

// Save atomically writes entry to its own file.
func (s *SessionHistoryStore) Save(entry SessionHistoryEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("history store: entry ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("history store: marshal %s: %w", entry.ID, err)
	}

	path := s.entryPath(entry.ID)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("history store: write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("history store: rename temp file: %w", err)
	}
	return nil
}

// LoadAll lists every history file, skipping corrupt ones with a warning,
// and returns entries newest-first by LastUsedAt (spec.md §4.7).
func (s *SessionHistoryStore) LoadAll() ([]SessionHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("history store: read dir %s: %w", s.dir, err)
	}

	var entries []SessionHistoryEntry
	for _, de := range dirEntries {
		if de.IsDir() || filepath.Ext(de.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, de.Name()))
		if err != nil {
			s.log.Warn("history store: failed to read entry, skipping", zap.String("file", de.Name()), zap.Error(err))
			continue
		}
		var entry SessionHistoryEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			s.log.Warn("history store: failed to parse entry, skipping", zap.String("file", de.Name()), zap.Error(err))
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].LastUsedAt.After(entries[j].LastUsedAt)
	})
	return entries, nil
}

// FindByAgentSessionID scans all entries and returns the newest one whose
// LastAgentSessionID matches, or false if none does.
func (s *SessionHistoryStore) FindByAgentSessionID(agentSessionID string) (SessionHistoryEntry, bool, error) {
	entries, err := s.LoadAll()
	if err != nil {
		return SessionHistoryEntry{}, false, err
	}
	for _, e := range entries {
		if e.LastAgentSessionID == agentSessionID {
			return e, true, nil
		}
	}
	return SessionHistoryEntry{}, false, nil
}

// Delete removes the history file for id. Deleting an absent entry is not
// an error.
func (s *SessionHistoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.entryPath(id)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("history store: delete %s: %w", id, err)
	}
	return nil
}

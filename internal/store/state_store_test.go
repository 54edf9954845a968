package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStateStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sessions.json")
	s := NewSessionStateStore(path)

	res, err := s.Load()
	require.NoError(t, err)
	assert.False(t, res.FileExistedButFailed)
	assert.Empty(t, res.Sessions)

	sessions := []PersistedSession{
		{
			SchemaVersion: CurrentSchemaVersion,
			SessionID:     "sess-1",
			RepoPath:      "/repo/one",
			ActivityState: "Working",
			CreatedAt:     time.Now().UTC().Truncate(time.Second),
			SortOrder:     0,
		},
		{
			SchemaVersion: CurrentSchemaVersion,
			SessionID:     "sess-2",
			RepoPath:      "/repo/two",
			ActivityState: "Idle",
			CreatedAt:     time.Now().UTC().Truncate(time.Second),
			SortOrder:     1,
		},
	}
	require.NoError(t, s.Save(sessions))

	res, err = s.Load()
	require.NoError(t, err)
	require.False(t, res.FileExistedButFailed)
	require.Len(t, res.Sessions, 2)
	assert.Equal(t, "sess-1", res.Sessions[0].SessionID)
	assert.Equal(t, "sess-2", res.Sessions[1].SessionID)
}

func TestSessionStateStore_LoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("not json at all"), 0o644))

	s := NewSessionStateStore(path)
	res, err := s.Load()
	require.NoError(t, err)
	assert.True(t, res.FileExistedButFailed)
	assert.NotEmpty(t, res.Diagnostic)
}

func TestSessionStateStore_BackupAndClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	s := NewSessionStateStore(path)
	require.NoError(t, s.BackupAndClear())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	backup, err := os.ReadFile(path + ".bak")
	require.NoError(t, err)
	assert.Equal(t, "garbage", string(backup))
}

func TestSessionStateStore_BackupAndClearMissingFileIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	s := NewSessionStateStore(path)
	require.NoError(t, s.BackupAndClear())
}

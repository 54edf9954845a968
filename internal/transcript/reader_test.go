package transcript

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSONL(t *testing.T, path string, lines ...string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
}

func TestExtractUserPrompts_StringAndBlockShapes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "session.jsonl")
	writeJSONL(t, path,
		`{"type":"user","message":{"role":"user","content":"please refactor foo"}}`,
		`{"type":"assistant","message":{"role":"assistant","content":[{"type":"text","text":"working on it"}]}}`,
		`{"type":"user","message":{"role":"user","content":[{"type":"text","text":"now add a test"}]}}`,
		`not even json`,
		``,
	)

	r := New(dir)
	prompts, err := r.ExtractUserPrompts(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"please refactor foo", "now add a test"}, prompts)
}

func TestReadFirstPromptFromJsonl_Empty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.jsonl")
	writeJSONL(t, path, `{"type":"assistant","message":{"role":"assistant","content":"hi"}}`)

	r := New(dir)
	first, err := r.ReadFirstPromptFromJsonl(path)
	require.NoError(t, err)
	assert.Empty(t, first)
}

func TestVerifySessionFile(t *testing.T) {
	root := t.TempDir()
	r := New(root)
	repo := filepath.Join(t.TempDir(), "myrepo")
	projectDir := r.ProjectDir(repo)
	require.NoError(t, os.MkdirAll(projectDir, 0o755))

	t.Run("file missing", func(t *testing.T) {
		res, err := r.VerifySessionFile("deadbeef", repo, "")
		require.NoError(t, err)
		assert.Equal(t, FileMissing, res.Status)
	})

	t.Run("too short", func(t *testing.T) {
		path := filepath.Join(projectDir, "shortsess.jsonl")
		writeJSONL(t, path, `{"type":"user","message":{"role":"user","content":"hi"}}`)
		res, err := r.VerifySessionFile("shortsess", repo, "")
		require.NoError(t, err)
		assert.Equal(t, NotLinked, res.Status)
	})

	longPrompt := strings.Repeat("please refactor the module carefully ", 2)
	t.Run("verified with no expectation", func(t *testing.T) {
		path := filepath.Join(projectDir, "longsess.jsonl")
		writeJSONL(t, path, `{"type":"user","message":{"role":"user","content":"`+longPrompt+`"}}`)
		res, err := r.VerifySessionFile("longsess", repo, "")
		require.NoError(t, err)
		assert.Equal(t, Verified, res.Status)
		assert.Equal(t, longPrompt, res.FirstPromptSnippet)
	})

	t.Run("content mismatch", func(t *testing.T) {
		path := filepath.Join(projectDir, "mismatch.jsonl")
		writeJSONL(t, path, `{"type":"user","message":{"role":"user","content":"`+longPrompt+`"}}`)
		res, err := r.VerifySessionFile("mismatch", repo, "something else entirely, not matching")
		require.NoError(t, err)
		assert.Equal(t, ContentMismatch, res.Status)
	})
}

func TestScanAllProjects(t *testing.T) {
	root := t.TempDir()
	r := New(root)
	repo := filepath.Join(t.TempDir(), "proj")
	projectDir := r.ProjectDir(repo)
	require.NoError(t, os.MkdirAll(projectDir, 0o755))
	writeJSONL(t, filepath.Join(projectDir, "a.jsonl"), `{"type":"user","message":{"role":"user","content":"hello"}}`)

	infos, err := r.ScanAllProjects()
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "a", infos[0].ID)
	assert.Equal(t, "hello", infos[0].FirstPrompt)
}

func TestListProjectTranscripts_OrderedNewestFirst(t *testing.T) {
	root := t.TempDir()
	r := New(root)
	repo := filepath.Join(t.TempDir(), "ordered-proj")
	projectDir := r.ProjectDir(repo)
	require.NoError(t, os.MkdirAll(projectDir, 0o755))

	older := filepath.Join(projectDir, "older.jsonl")
	writeJSONL(t, older, `{"type":"user","message":{"role":"user","content":"first one"}}`)
	newer := filepath.Join(projectDir, "newer.jsonl")
	writeJSONL(t, newer, `{"type":"user","message":{"role":"user","content":"second one"}}`)

	olderTime := mustStat(t, older).ModTime()
	require.NoError(t, os.Chtimes(newer, olderTime.Add(time.Hour), olderTime.Add(time.Hour)))

	infos, err := r.ListProjectTranscripts(repo)
	require.NoError(t, err)
	require.Len(t, infos, 2)
	assert.Equal(t, "newer", infos[0].ID)
	assert.Equal(t, "older", infos[1].ID)
}

func mustStat(t *testing.T, path string) os.FileInfo {
	t.Helper()
	fi, err := os.Stat(path)
	require.NoError(t, err)
	return fi
}

func TestScanAllProjects_MissingRoot(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "does-not-exist"))
	infos, err := r.ScanAllProjects()
	require.NoError(t, err)
	assert.Empty(t, infos)
}

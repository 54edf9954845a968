// Package transcript implements AgentSessionReader (spec.md §4.5): a
// pure read-only scanner of the agent's on-disk per-project JSON-lines
// transcripts, used for two-stage identity verification by
// internal/session. The dual content-block shape is parsed the way the
// teacher's pkg/claudecode.AssistantMessage.GetContentBlocks()/
// GetContentString() do it — json.RawMessage plus a two-shot unmarshal.
package transcript

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// MinVerificationLength is the minimum byte length a first prompt must
// have to be usable for file verification (spec.md §4.5).
const MinVerificationLength = 50

// VerifyStatus is the result status of verify_session_file.
type VerifyStatus int

const (
	NotLinked VerifyStatus = iota
	FileMissing
	ContentMismatch
	Verified
)

func (s VerifyStatus) String() string {
	switch s {
	case NotLinked:
		return "NotLinked"
	case FileMissing:
		return "FileMissing"
	case ContentMismatch:
		return "ContentMismatch"
	case Verified:
		return "Verified"
	default:
		return "Unknown"
	}
}

// VerifyResult is the outcome of verify_session_file.
type VerifyResult struct {
	Status             VerifyStatus
	FirstPromptSnippet string
}

// transcriptMessage mirrors the subset of the agent's stream-json
// transcript line shape this reader needs: a type discriminator and a
// message whose content is either a plain string or an array of typed
// content blocks (spec.md §6.2).
type transcriptMessage struct {
	Type    string           `json:"type"`
	Message *transcriptInner `json:"message"`
}

type transcriptInner struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// contentString returns the inner message's content as plain text,
// accepting either shape spec.md §6.2 allows.
func (m *transcriptInner) contentString() string {
	if m == nil || len(m.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(m.Content, &s); err == nil {
		return s
	}
	var blocks []contentBlock
	if err := json.Unmarshal(m.Content, &blocks); err == nil {
		var parts []string
		for _, b := range blocks {
			if b.Type == "text" && b.Text != "" {
				parts = append(parts, b.Text)
			}
		}
		return strings.Join(parts, "\n")
	}
	return ""
}

// Reader is a stateless façade over the agent's transcript directory
// layout. All reads use share-read/share-write semantics (plain os.Open,
// no exclusive locking) to coexist with the agent's own concurrent
// writes.
type Reader struct {
	// transcriptsRoot is the directory containing one subdirectory per
	// project (e.g. ~/.claude/projects on the agent's own convention).
	transcriptsRoot string
}

// New constructs a Reader rooted at transcriptsRoot.
func New(transcriptsRoot string) *Reader {
	return &Reader{transcriptsRoot: transcriptsRoot}
}

// ProjectDir computes the agent's per-project transcript directory for a
// repo path. The agent's own convention (mirrored here, not reinvented):
// replace every character of the absolute path that is not an ASCII letter
// or digit (path separators included) with its own `-`; runs are not
// collapsed.
func (r *Reader) ProjectDir(repoPath string) string {
	return filepath.Join(r.transcriptsRoot, sanitizeProjectName(repoPath))
}

func sanitizeProjectName(p string) string {
	abs, err := filepath.Abs(p)
	if err == nil {
		p = abs
	}
	var b strings.Builder
	for _, r := range p {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

// ExtractUserPrompts parses a JSON-lines transcript and returns the
// user's textual prompts in order. Streams the file line by line rather
// than loading it whole; tolerates malformed lines by skipping them.
func (r *Reader) ExtractUserPrompts(jsonlPath string) ([]string, error) {
	f, err := os.Open(jsonlPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var prompts []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var msg transcriptMessage
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			continue
		}
		if msg.Type != "user" || msg.Message == nil || msg.Message.Role != "user" {
			continue
		}
		if text := msg.Message.contentString(); text != "" {
			prompts = append(prompts, text)
		}
	}
	return prompts, nil
}

// ReadFirstPromptFromJsonl returns the earliest user prompt in the
// transcript, or "" if none is present.
func (r *Reader) ReadFirstPromptFromJsonl(jsonlPath string) (string, error) {
	prompts, err := r.ExtractUserPrompts(jsonlPath)
	if err != nil {
		return "", err
	}
	if len(prompts) == 0 {
		return "", nil
	}
	return prompts[0], nil
}

// VerifySessionFile re-reads the transcript for agentSessionID under
// repoPath and compares its first prompt against expectedFirstPrompt, if
// provided (spec.md §4.5 item 4).
func (r *Reader) VerifySessionFile(agentSessionID, repoPath, expectedFirstPrompt string) (VerifyResult, error) {
	path := filepath.Join(r.ProjectDir(repoPath), agentSessionID+".jsonl")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return VerifyResult{Status: FileMissing}, nil
		}
		return VerifyResult{}, err
	}

	firstPrompt, err := r.ReadFirstPromptFromJsonl(path)
	if err != nil {
		return VerifyResult{}, err
	}
	if len(firstPrompt) < MinVerificationLength {
		return VerifyResult{Status: NotLinked, FirstPromptSnippet: firstPrompt}, nil
	}
	if expectedFirstPrompt != "" && firstPrompt != expectedFirstPrompt {
		return VerifyResult{Status: ContentMismatch, FirstPromptSnippet: firstPrompt}, nil
	}
	return VerifyResult{Status: Verified, FirstPromptSnippet: firstPrompt}, nil
}

// TranscriptInfo is lightweight metadata about one transcript file,
// returned by ScanAllProjects.
type TranscriptInfo struct {
	ID          string
	ProjectPath string
	ProjectDir  string
	MessageCount int
	LastModified time.Time
	Summary      string
	FirstPrompt  string
}

// ListProjectTranscripts returns lightweight metadata for every transcript
// belonging to repoPath's project directory, newest-first. Used by
// terminal-based identity verification (spec.md §4.6b) to enumerate
// candidate transcript files for a single session's repo.
func (r *Reader) ListProjectTranscripts(repoPath string) ([]TranscriptInfo, error) {
	projectDir := r.ProjectDir(repoPath)
	files, err := os.ReadDir(projectDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []TranscriptInfo
	for _, fileEntry := range files {
		if fileEntry.IsDir() || !strings.HasSuffix(fileEntry.Name(), ".jsonl") {
			continue
		}
		info, err := r.describeTranscript(projectDir, fileEntry.Name())
		if err != nil {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastModified.After(out[j].LastModified) })
	return out, nil
}

// ScanAllProjects enumerates every project directory under
// transcriptsRoot and returns lightweight metadata per transcript file
// (spec.md §4.5 item 5).
func (r *Reader) ScanAllProjects() ([]TranscriptInfo, error) {
	entries, err := os.ReadDir(r.transcriptsRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []TranscriptInfo
	for _, projectEntry := range entries {
		if !projectEntry.IsDir() {
			continue
		}
		projectDir := filepath.Join(r.transcriptsRoot, projectEntry.Name())
		files, err := os.ReadDir(projectDir)
		if err != nil {
			continue
		}
		for _, fileEntry := range files {
			if fileEntry.IsDir() || !strings.HasSuffix(fileEntry.Name(), ".jsonl") {
				continue
			}
			info, err := r.describeTranscript(projectDir, fileEntry.Name())
			if err != nil {
				continue
			}
			out = append(out, info)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastModified.After(out[j].LastModified) })
	return out, nil
}

func (r *Reader) describeTranscript(projectDir, fileName string) (TranscriptInfo, error) {
	path := filepath.Join(projectDir, fileName)
	stat, err := os.Stat(path)
	if err != nil {
		return TranscriptInfo{}, err
	}

	prompts, err := r.ExtractUserPrompts(path)
	if err != nil {
		return TranscriptInfo{}, err
	}

	var first string
	if len(prompts) > 0 {
		first = prompts[0]
	}

	return TranscriptInfo{
		ID:           strings.TrimSuffix(fileName, ".jsonl"),
		ProjectPath:  projectDir,
		ProjectDir:   projectDir,
		MessageCount: prompts2MessageCount(prompts),
		LastModified: stat.ModTime(),
		Summary:      summarize(first),
		FirstPrompt:  first,
	}, nil
}

func prompts2MessageCount(prompts []string) int { return len(prompts) }

func summarize(firstPrompt string) string {
	const maxLen = 80
	if len(firstPrompt) <= maxLen {
		return firstPrompt
	}
	return firstPrompt[:maxLen] + "…"
}

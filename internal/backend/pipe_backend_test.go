package backend

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeBackend_SendTextSpawnsAndDrains(t *testing.T) {
	p := NewPipeBackend(nil)
	require.NoError(t, p.Start(context.Background(), "echo", nil, t.TempDir(), 0, 0))

	done := make(chan int, 1)
	p.OnProcessExited(func(code int) { done <- code })

	require.NoError(t, p.SendText("hello-pipe"))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("invocation did not complete in time")
	}

	assert.Contains(t, string(p.Buffer().Snapshot()), "> hello-pipe")
	assert.Empty(t, p.AgentSessionID(), "AgentSessionId must clear after exit")
}

func TestPipeBackend_ConcurrentSendTextOnlyOneInFlight(t *testing.T) {
	// A tiny script that ignores whatever args the backend passes it
	// (-p, --resume, the prompt text) and just sleeps, so the test controls
	// invocation duration regardless of PipeBackend's fixed argv shape.
	dir := t.TempDir()
	script := filepath.Join(dir, "slow-agent.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\nsleep 0.5\n"), 0o755))

	p := NewPipeBackend(nil)
	require.NoError(t, p.Start(context.Background(), script, nil, dir, 0, 0))

	done := make(chan struct{}, 2)
	p.OnProcessExited(func(int) { done <- struct{}{} })

	require.NoError(t, p.SendText("1"))
	// Second call while the first is in flight must be a no-op, not a
	// second spawn (spec.md §8 boundary behavior).
	require.NoError(t, p.SendText("2"))

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("first invocation did not complete")
	}

	select {
	case <-done:
		t.Fatal("a second invocation ran concurrently with the first")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestSpillIfLarge(t *testing.T) {
	dir := t.TempDir()
	small := "short text"
	out, err := spillIfLarge(dir, small)
	require.NoError(t, err)
	assert.Equal(t, small, out)

	large := strings.Repeat("x", LargeInputThreshold+1)
	out, err = spillIfLarge(dir, large)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "@"))
	path := strings.TrimPrefix(out, "@")
	assert.True(t, filepath.IsAbs(path) || strings.HasPrefix(path, dir))
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, large, string(content))
}

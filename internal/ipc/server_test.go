package ipc

import (
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thefrederiksen/cc-director-sub002/internal/hookevent"
)

func newTestListener(t *testing.T) net.Listener {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.sock")
	listener, err := net.Listen("unix", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Remove(path) })
	return listener
}

func TestServer_DecodesOneHookEventPerConnection(t *testing.T) {
	listener := newTestListener(t)
	addr := listener.Addr().String()

	s := New(nil)
	require.NoError(t, s.startWithListener(listener, func() {}))
	t.Cleanup(func() { _ = s.Shutdown() })

	received := make(chan hookevent.HookEvent, 1)
	s.OnMessageReceived(func(e hookevent.HookEvent) { received <- e })

	conn, err := net.Dial("unix", addr)
	require.NoError(t, err)
	payload, _ := json.Marshal(hookevent.HookEvent{
		HookEventName: hookevent.UserPromptSubmit,
		SessionID:     "abc123",
		Cwd:           "/repo",
	})
	_, err = conn.Write(append(payload, '\n'))
	require.NoError(t, err)
	_ = conn.Close()

	select {
	case event := <-received:
		assert.Equal(t, hookevent.UserPromptSubmit, event.HookEventName)
		assert.Equal(t, "abc123", event.SessionID)
		assert.False(t, event.ReceivedAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for hook event")
	}
}

func TestServer_DropsMalformedAndEmptyLines(t *testing.T) {
	listener := newTestListener(t)
	addr := listener.Addr().String()

	s := New(nil)
	require.NoError(t, s.startWithListener(listener, func() {}))
	t.Cleanup(func() { _ = s.Shutdown() })

	received := make(chan hookevent.HookEvent, 4)
	s.OnMessageReceived(func(e hookevent.HookEvent) { received <- e })

	for _, line := range []string{"not json\n", "\n", "{}\n"} {
		conn, err := net.Dial("unix", addr)
		require.NoError(t, err)
		_, err = conn.Write([]byte(line))
		require.NoError(t, err)
		_ = conn.Close()
	}

	// "{}\n" is valid JSON (an empty HookEvent), so it should be decoded;
	// the other two lines must produce nothing.
	select {
	case event := <-received:
		assert.Equal(t, hookevent.Name(""), event.HookEventName)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the valid empty-object event")
	}
	select {
	case <-received:
		t.Fatal("unexpected second event decoded from malformed/empty lines")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestServer_OnRawMessageSeesLineBeforeDecoding(t *testing.T) {
	listener := newTestListener(t)
	addr := listener.Addr().String()

	s := New(nil)
	require.NoError(t, s.startWithListener(listener, func() {}))
	t.Cleanup(func() { _ = s.Shutdown() })

	raw := make(chan []byte, 1)
	s.OnRawMessage(func(b []byte) { raw <- b })

	conn, err := net.Dial("unix", addr)
	require.NoError(t, err)
	_, err = conn.Write([]byte("garbage-not-json\n"))
	require.NoError(t, err)
	_ = conn.Close()

	select {
	case b := <-raw:
		assert.Equal(t, "garbage-not-json", string(b))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for raw message callback")
	}
}

func TestServer_ShutdownClosesListener(t *testing.T) {
	listener := newTestListener(t)
	addr := listener.Addr().String()

	s := New(nil)
	require.NoError(t, s.startWithListener(listener, func() {}))
	require.NoError(t, s.Shutdown())

	_, err := net.Dial("unix", addr)
	assert.Error(t, err)
}

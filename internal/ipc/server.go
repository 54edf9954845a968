// Package ipc implements IpcServer (spec.md §4.9): a platform-specific
// transport (Unix domain socket / Windows named pipe) with an identical
// contract — accept connections, read exactly one JSON line per
// connection, deserialize into a HookEvent, and raise OnMessageReceived.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/thefrederiksen/cc-director-sub002/internal/hookevent"
	"github.com/thefrederiksen/cc-director-sub002/internal/logging"
)

// acceptErrorBackoff is the pause after a non-cancellation accept error
// before the accept loop retries (spec.md §4.9).
const acceptErrorBackoff = 100 * time.Millisecond

// maxLineBytes bounds a single hook-event JSON line, generous enough for
// any field in the spec.md §6.3 schema with room to spare.
const maxLineBytes = 1 << 20

// Server is the platform-independent accept loop wrapped around a
// net.Listener built by a platform-specific constructor (listener_unix.go
// / listener_windows.go). The transport is trusted: the server assumes
// OS-level access control on the pipe/socket path is the security
// boundary.
type Server struct {
	log *logging.Logger

	mu       sync.Mutex
	listener net.Listener
	cleanup  func()

	onMessageReceived func(hookevent.HookEvent)
	onRawMessage      func([]byte)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an unstarted Server.
func New(log *logging.Logger) *Server {
	if log == nil {
		log = logging.Default()
	}
	return &Server{log: log}
}

// OnMessageReceived registers the callback fired for each successfully
// decoded HookEvent, with ReceivedAt already stamped.
func (s *Server) OnMessageReceived(fn func(hookevent.HookEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessageReceived = fn
}

// OnRawMessage registers a callback fired with the raw line bytes before
// JSON decoding, for UI observation (spec.md §4.10 step 1).
func (s *Server) OnRawMessage(fn func([]byte)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRawMessage = fn
}

// Start opens the platform transport (named pipe on Windows, Unix domain
// socket on Unix — see newPlatformListener in the build-tagged files) and
// runs the accept loop in the background until Shutdown is called.
func (s *Server) Start() error {
	listener, cleanup, err := newPlatformListener()
	if err != nil {
		return err
	}
	return s.startWithListener(listener, cleanup)
}

// startWithListener runs the accept loop over an already-constructed
// listener, bypassing platform socket/pipe resolution. Exported to tests
// in this package so they can exercise the accept loop over a temp-
// directory Unix socket without touching the real well-known path.
func (s *Server) startWithListener(listener net.Listener, cleanup func()) error {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.listener = listener
	s.cleanup = cleanup
	s.ctx = ctx
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
			}
			s.log.Warn("ipc: accept error, backing off", zap.Error(err))
			time.Sleep(acceptErrorBackoff)
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	if !scanner.Scan() {
		return
	}
	line := scanner.Bytes()
	if len(line) == 0 {
		return
	}

	s.mu.Lock()
	onRaw := s.onRawMessage
	onMsg := s.onMessageReceived
	s.mu.Unlock()

	if onRaw != nil {
		raw := append([]byte(nil), line...)
		onRaw(raw)
	}

	var event hookevent.HookEvent
	if err := json.Unmarshal(line, &event); err != nil {
		s.log.Debug("ipc: dropping malformed hook event line", zap.Error(err))
		return
	}
	event.ReceivedAt = time.Now()

	if onMsg != nil {
		onMsg(event)
	}
}

// Shutdown cancels the accept loop, closes the listener, waits for
// in-flight connection handlers to finish, and then runs the platform
// cleanup (removing the Unix socket file).
func (s *Server) Shutdown() error {
	s.mu.Lock()
	cancel := s.cancel
	listener := s.listener
	cleanup := s.cleanup
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	var err error
	if listener != nil {
		err = listener.Close()
	}
	s.wg.Wait()
	if cleanup != nil {
		cleanup()
	}
	return err
}

package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
)

// maxCommandSize bounds one command line.
const maxCommandSize = 1024 * 1024

// SocketPath returns the control socket path for session.
func SocketPath(session string) string {
	return filepath.Join(os.TempDir(), "veda-"+session+".sock")
}

// Handler executes one decoded command.
type Handler interface {
	Handle(ctx context.Context, cmd Command) Reply
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, cmd Command) Reply

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, cmd Command) Reply { return f(ctx, cmd) }

// Server accepts line-delimited JSON commands on a unix socket and writes
// one JSON Reply line per command.
type Server struct {
	path    string
	handler Handler
	log     *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewServer creates a Server listening on path once started.
func NewServer(path string, handler Handler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		path:    path,
		handler: handler,
		log:     log.With(zap.String("socket", path)),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Path returns the socket path.
func (s *Server) Path() string {
	return s.path
}

// Start listens on the socket and serves until ctx is cancelled or Close
// is called. A stale socket file from a previous run is removed.
func (s *Server) Start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		ln.Close()
		return fmt.Errorf("chmod socket: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	s.wg.Add(1)
	go s.acceptLoop(ctx, ln)

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	s.log.Info("ipc server listening")
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept failed", zap.Error(err))
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.serve(ctx, conn)
	}
}

func (s *Server) serve(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxCommandSize)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var reply Reply
		cmd, err := Decode(line)
		if err != nil {
			s.log.Warn("rejecting ipc command", zap.Error(err))
			reply = Failure(err)
		} else {
			reply = s.handler.Handle(ctx, cmd)
		}

		if err := enc.Encode(reply); err != nil {
			s.log.Debug("write reply failed", zap.Error(err))
			return
		}
	}
}

// Close stops accepting connections, closes open ones and removes the
// socket file. It is safe to call more than once.
func (s *Server) Close() error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.closed = true
	s.mu.Unlock()

	if ln == nil {
		return nil
	}
	// The listener goes first so no connection is accepted after the
	// open set is closed.
	err := ln.Close()

	s.mu.Lock()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	if rmErr := os.Remove(s.path); rmErr != nil && !os.IsNotExist(rmErr) && err == nil {
		err = rmErr
	}
	return err
}

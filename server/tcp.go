package server

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

// TCPListener accepts connections and runs a session on each, one at a
// time: a connection is served to completion before the next Accept.
type TCPListener struct {
	listener net.Listener
	server   *Server

	sessionSeq atomic.Int64
	closed     atomic.Bool
}

// NewTCPListener wraps a listening socket.
func NewTCPListener(ln net.Listener, server *Server) *TCPListener {
	return &TCPListener{
		listener: ln,
		server:   server,
	}
}

// Addr returns the listener's network address.
func (l *TCPListener) Addr() net.Addr {
	return l.listener.Addr()
}

// Serve accepts connections until shutdown is requested or Close is called.
// Accept errors caused by the shutdown are a normal return; other accept
// errors are logged and retried.
func (l *TCPListener) Serve() error {
	log := l.server.Spec.Log
	coord := l.server.Coordinator
	log.Info("TCP listener started", "addr", l.listener.Addr().String())

	var backoff time.Duration
	for !coord.Requested() {
		conn, err := l.listener.Accept()
		if err != nil {
			if coord.Requested() || l.closed.Load() {
				return nil // Normal shutdown
			}
			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("listener closed unexpectedly: %w", err)
			}
			l.server.Spec.Metrics.AcceptErrors.Inc()
			if backoff == 0 {
				backoff = minAcceptBackoff
			} else {
				backoff = min(2*backoff, maxAcceptBackoff)
			}
			log.Error("accept error", "error", err, "retryIn", backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0
		l.handleConnection(conn)
	}
	return nil
}

// handleConnection runs a session for the connection and returns when it
// has ended.
func (l *TCPListener) handleConnection(conn net.Conn) {
	spec := l.server.Spec

	seq := l.sessionSeq.Add(1)
	sessionID := fmt.Sprintf("tcp-%d", seq)
	remote := remoteIP(conn.RemoteAddr())

	spec.Log.Info("Accepted connection from "+remote, "session", sessionID)
	spec.Metrics.Connections.Inc()

	session := NewSession(sessionID, conn, &SessionConfig{
		Store:       spec.Store,
		Log:         spec.Log,
		Metrics:     spec.Metrics,
		Stopping:    l.server.Coordinator.Requested,
		ReadChunk:   spec.Config.ReadChunk,
		MaxBuffered: spec.Config.MaxBuffered,
	})

	if err := session.Run(); err != nil {
		spec.Log.Error("session error", "session", sessionID, "error", err)
		spec.Metrics.SessionErrors.WithLabelValues(errorOp(err)).Inc()
	}

	spec.Log.Info("Closed connection from "+remote, "session", sessionID)
}

// Close stops the listener. Serve returns once the running session, if
// any, has ended.
func (l *TCPListener) Close() error {
	if l.closed.Swap(true) {
		return nil // Already closed
	}
	err := l.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func remoteIP(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	return addr.String()
}

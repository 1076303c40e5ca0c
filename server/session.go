package server

import (
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/signadot/pktlogd/packet"
	"github.com/signadot/pktlogd/storage"
)

// Session serves one client connection.
//
// It reads the peer's bytes, cuts them into packets and for every packet
// appends it to the store and then writes the whole store back to the peer.
// A failed append or echo ends the session; packets still buffered are
// dropped.
type Session struct {
	ID      string
	conn    net.Conn
	store   LogStore
	framer  *packet.Framer
	log     *slog.Logger
	metrics *Metrics

	stopping  func() bool
	readChunk int

	// counters for the session end log
	packets int
	echoed  int64
}

// SessionConfig contains configuration for creating a session.
type SessionConfig struct {
	Store   LogStore
	Log     *slog.Logger
	Metrics *Metrics

	// Stopping reports whether shutdown was requested. It is checked before
	// every read. Nil means never.
	Stopping func() bool

	ReadChunk   int // size of one read from the peer (default 4096)
	MaxBuffered int // framer limit, 0 for unbounded
}

// NewSession creates a new session for the given connection.
func NewSession(id string, conn net.Conn, cfg *SessionConfig) *Session {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	readChunk := cfg.ReadChunk
	if readChunk <= 0 {
		readChunk = storage.DefaultChunkSize
	}
	stopping := cfg.Stopping
	if stopping == nil {
		stopping = func() bool { return false }
	}
	return &Session{
		ID:        id,
		conn:      conn,
		store:     cfg.Store,
		framer:    packet.NewFramer(cfg.MaxBuffered),
		log:       log.With("session", id),
		metrics:   cfg.Metrics,
		stopping:  stopping,
		readChunk: readChunk,
	}
}

// Run serves the connection until the peer closes it, an I/O error occurs
// or shutdown is requested. The connection is closed when Run returns.
// A peer closing the connection is not an error.
func (s *Session) Run() error {
	defer s.close()

	if err := s.store.Ensure(); err != nil {
		return &opError{op: "ensure", err: err}
	}

	buf := make([]byte, s.readChunk)
	for !s.stopping() {
		n, err := s.conn.Read(buf)
		if n > 0 {
			if perr := s.receive(buf[:n]); perr != nil {
				return perr
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return &opError{op: "recv", err: err}
		}
	}
	s.log.Debug("session stopped by shutdown request")
	return nil
}

// receive frames one chunk and handles every packet it completes.
func (s *Session) receive(chunk []byte) error {
	packets, err := s.framer.Feed(chunk)
	if err != nil {
		if !errors.Is(err, packet.ErrBufferFull) {
			return err
		}
		s.log.Warn("discarding incomplete packet bytes", "chunk", len(chunk), "buffered", s.framer.Buffered(), "error", err)
		if s.metrics != nil {
			s.metrics.ChunksDiscarded.Inc()
		}
	}
	for _, p := range packets {
		if err := s.handlePacket(p); err != nil {
			return err
		}
	}
	return nil
}

// handlePacket appends p and echoes the whole log.
func (s *Session) handlePacket(p []byte) error {
	if err := s.store.Append(p); err != nil {
		return &opError{op: "append", err: err}
	}
	s.packets++
	if s.metrics != nil {
		s.metrics.PacketsAppended.Inc()
		s.metrics.BytesAppended.Add(float64(len(p)))
	}

	n, err := s.store.ReadAll(s.conn)
	s.echoed += n
	if s.metrics != nil {
		s.metrics.BytesEchoed.Add(float64(n))
	}
	if err != nil {
		return &opError{op: "echo", err: err}
	}
	return nil
}

func (s *Session) close() {
	if pending := s.framer.Buffered(); pending > 0 {
		s.log.Debug("dropping incomplete packet", "bytes", pending)
	}
	s.framer.Reset()
	if err := s.conn.Close(); err != nil {
		s.log.Debug("error closing connection", "error", err)
	}
	s.log.Debug("session ended", "packets", s.packets, "echoed", s.echoed)
}

// opError records the step of a session that failed.
type opError struct {
	op  string
	err error
}

func (e *opError) Error() string { return e.op + ": " + e.err.Error() }

func (e *opError) Unwrap() error { return e.err }

// errorOp names the step of a session that failed, for metrics.
func errorOp(err error) string {
	var oerr *opError
	if errors.As(err, &oerr) {
		return oerr.op
	}
	return "other"
}

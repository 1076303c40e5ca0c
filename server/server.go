package server

import (
	"context"
	"log/slog"
	"os"

	"github.com/google/uuid"
)

// Server represents the pktlogd server.
type Server struct {
	Spec Spec

	// Coordinator stops the accept loop.
	Coordinator *Coordinator

	// InstanceID identifies this server process in logs.
	InstanceID string

	tcpListener *TCPListener
	metrics     *metricsEndpoint
}

// New creates a new Server instance. coord may be nil, in which case the
// server gets a coordinator of its own that is only stopped by Shutdown.
func New(spec *Spec, coord *Coordinator) *Server {
	if spec.Log == nil {
		spec.Log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slogLevel(spec.Config),
		}))
	}
	if spec.Config == nil {
		spec.Config = DefaultConfig()
	}
	if spec.Metrics == nil {
		spec.Metrics = NewMetrics()
	}
	if coord == nil {
		coord = NewCoordinator(context.Background())
	}

	id := uuid.NewString()
	spec.Log = spec.Log.With("instance", id)

	return &Server{
		Spec:        *spec,
		Coordinator: coord,
		InstanceID:  id,
	}
}

func slogLevel(cfg *Config) slog.Level {
	if os.Getenv("DEBUG") != "" || (cfg != nil && cfg.Debug) {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// Serve puts the bound socket into the listening state, accepts
// connections one at a time until shutdown is requested and then tears
// down: the listener is closed and the data file removed.
//
// sock is consumed. The returned error wraps ErrListen if listening
// failed; teardown has run in that case too.
func (s *Server) Serve(sock *Socket) error {
	defer s.teardown()

	ln, err := sock.Listen(s.Spec.Config.Backlog)
	if err != nil {
		sock.Close()
		s.Spec.Log.Error("listen failed", "error", err)
		return err
	}
	s.tcpListener = NewTCPListener(ln, s)
	s.Coordinator.Attach(s.tcpListener)

	if m := s.Spec.Config.Metrics; m != nil && m.Addr != "" {
		endpoint, err := startMetrics(m.Addr, s.Spec.Metrics, s.Spec.Log)
		if err != nil {
			// the endpoint is optional
			s.Spec.Log.Error("metrics endpoint failed to start", "addr", m.Addr, "error", err)
		}
		s.metrics = endpoint
	}

	return s.tcpListener.Serve()
}

// Shutdown requests shutdown. Serve returns once the running session, if
// any, has ended.
func (s *Server) Shutdown() {
	s.Coordinator.Request()
}

// MetricsAddr returns the metrics endpoint address, or "" if it is not
// running.
func (s *Server) MetricsAddr() string {
	if s.metrics == nil {
		return ""
	}
	return s.metrics.Addr()
}

// teardown releases the listener and removes the data file. Failures are
// logged; they do not change the outcome of Serve.
func (s *Server) teardown() {
	log := s.Spec.Log
	if l := s.Coordinator.Detach(); l != nil {
		if err := l.Close(); err != nil {
			log.Error("error closing listener", "error", err)
		}
	}
	if s.tcpListener != nil {
		if err := s.tcpListener.Close(); err != nil {
			log.Error("error closing listener", "error", err)
		}
	}
	if s.metrics != nil {
		if err := s.metrics.stop(); err != nil {
			log.Error("error stopping metrics endpoint", "error", err)
		}
		s.metrics = nil
	}
	if err := s.Spec.Store.Remove(); err != nil {
		log.Error("failed to remove data file", "path", s.Spec.Store.Path(), "error", err)
		return
	}
	log.Info("removed data file", "path", s.Spec.Store.Path())
}

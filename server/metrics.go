package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	Registry *prometheus.Registry

	Connections     prometheus.Counter
	PacketsAppended prometheus.Counter
	BytesAppended   prometheus.Counter
	BytesEchoed     prometheus.Counter
	ChunksDiscarded prometheus.Counter
	SessionErrors   *prometheus.CounterVec
	AcceptErrors    prometheus.Counter
}

// NewMetrics creates the collectors and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Connections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pktlogd_connections_total",
			Help: "Total number of accepted client connections",
		}),
		PacketsAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pktlogd_packets_appended_total",
			Help: "Total number of packets appended to the data file",
		}),
		BytesAppended: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pktlogd_appended_bytes_total",
			Help: "Total number of packet bytes appended to the data file",
		}),
		BytesEchoed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pktlogd_echoed_bytes_total",
			Help: "Total number of data file bytes sent back to clients",
		}),
		ChunksDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pktlogd_discarded_chunks_total",
			Help: "Total number of times incomplete packet bytes were dropped at the buffer limit",
		}),
		SessionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pktlogd_session_errors_total",
			Help: "Total number of sessions ended by an error",
		}, []string{"op"}),
		AcceptErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pktlogd_accept_errors_total",
			Help: "Total number of failed accept calls not caused by shutdown",
		}),
	}
	m.Registry.MustRegister(
		m.Connections,
		m.PacketsAppended,
		m.BytesAppended,
		m.BytesEchoed,
		m.ChunksDiscarded,
		m.SessionErrors,
		m.AcceptErrors,
	)
	return m
}

// metricsEndpoint serves /metrics over HTTP.
type metricsEndpoint struct {
	srv *http.Server
	ln  net.Listener
}

func startMetrics(addr string, m *Metrics, log *slog.Logger) (*metricsEndpoint, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	e := &metricsEndpoint{
		srv: &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := e.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics endpoint failed", "error", err)
		}
	}()
	log.Info("metrics endpoint started", "addr", ln.Addr().String())
	return e, nil
}

func (e *metricsEndpoint) Addr() string {
	return e.ln.Addr().String()
}

func (e *metricsEndpoint) stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.srv.Shutdown(ctx)
}

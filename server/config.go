package server

import (
	"io"
	"log/slog"
)

// Spec holds the runtime specification for the server.
// Config contains the serializable settings loaded from a file.
type Spec struct {
	Config *Config
	Store  LogStore
	Log    *slog.Logger

	// Metrics is optional; New creates one when nil.
	Metrics *Metrics
}

// LogStore is the packet log used by sessions.
// *storage.Store implements it.
type LogStore interface {
	Ensure() error
	Append(packet []byte) error
	ReadAll(sink io.Writer) (int64, error)
	Remove() error
	Path() string
}

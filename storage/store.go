package storage

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"os"
)

const (
	// DefaultPath is the well-known location of the packet log.
	DefaultPath = "/var/tmp/aesdsocketdata"

	// DefaultChunkSize is the read size used when streaming the log.
	DefaultChunkSize = 4096

	defaultPerm fs.FileMode = 0644
)

// Options configures a Store.
type Options struct {
	// ChunkSize is the size of reads in ReadAll. Defaults to DefaultChunkSize.
	ChunkSize int
	// Sync forces an fsync after every append.
	Sync bool
	// Perm is the mode of a newly created file. Defaults to 0644.
	Perm fs.FileMode
	// Logger receives debug traces of failed operations. Defaults to
	// slog.Default().
	Logger *slog.Logger
}

// Store is the append-only packet log.
//
// Every operation opens the file, does its work and closes it again. No
// handle is kept between calls, so appends from any number of writers land
// at the true end of the file.
type Store struct {
	path      string
	chunkSize int
	sync      bool
	perm      fs.FileMode
	logger    *slog.Logger
}

// New returns a Store backed by the file at path. The file is not touched
// until the first operation.
func New(path string, opts *Options) *Store {
	if opts == nil {
		opts = &Options{}
	}
	s := &Store{
		path:      path,
		chunkSize: opts.ChunkSize,
		sync:      opts.Sync,
		perm:      opts.Perm,
		logger:    opts.Logger,
	}
	if s.chunkSize <= 0 {
		s.chunkSize = DefaultChunkSize
	}
	if s.perm == 0 {
		s.perm = defaultPerm
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Ensure creates the backing file if it does not exist. An existing file is
// left as is.
func (s *Store) Ensure() error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_RDWR, s.perm)
	if err != nil {
		return s.fail(OpEnsure, err)
	}
	if err := f.Close(); err != nil {
		return s.fail(OpEnsure, err)
	}
	return nil
}

// Append writes packet at the end of the log.
func (s *Store) Append(packet []byte) error {
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, s.perm)
	if err != nil {
		return s.fail(OpAppend, err)
	}
	if err := writeFull(f, packet); err != nil {
		f.Close()
		return s.fail(OpAppend, err)
	}
	if s.sync {
		if err := f.Sync(); err != nil {
			f.Close()
			return s.fail(OpAppend, err)
		}
	}
	if err := f.Close(); err != nil {
		return s.fail(OpAppend, err)
	}
	return nil
}

// ReadAll streams the whole log to sink and returns the number of bytes
// written. Failures reading the file are reported with OpRead, failures
// writing to sink with OpSend.
func (s *Store) ReadAll(sink io.Writer) (int64, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return 0, s.fail(OpRead, err)
	}
	defer f.Close()

	buf := make([]byte, s.chunkSize)
	var total int64
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if err := writeFull(sink, buf[:n]); err != nil {
				return total, s.fail(OpSend, err)
			}
			total += int64(n)
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, s.fail(OpRead, rerr)
		}
	}
}

// Remove deletes the backing file. A missing file is not an error.
func (s *Store) Remove() error {
	err := os.Remove(s.path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return s.fail(OpRemove, err)
}

// fail wraps err. Callers report the failure; the store only traces it.
func (s *Store) fail(op Op, err error) error {
	msg := "data file operation failed"
	if op == OpSend {
		msg = "sending data file failed"
	}
	s.logger.Debug(msg, "op", string(op), "path", s.path, "error", err)
	return &Error{Op: op, Path: s.path, Err: err}
}

// writeFull writes all of p, retrying short writes.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}

package server

import (
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/signadot/pktlogd/storage"
)

// testServer is a Server serving on an ephemeral port.
type testServer struct {
	*Server
	addr string
	done chan error
}

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	return storage.New(filepath.Join(t.TempDir(), "aesdsocketdata"), &storage.Options{Logger: quietLog()})
}

func startServer(t *testing.T, store LogStore) *testServer {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Port = 0
	sock, err := Bind(cfg.Port)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	port, err := sock.Port()
	if err != nil {
		t.Fatalf("Port() error = %v", err)
	}

	srv := New(&Spec{Config: cfg, Store: store, Log: quietLog()}, nil)
	ts := &testServer{
		Server: srv,
		addr:   net.JoinHostPort("127.0.0.1", strconv.Itoa(port)),
		done:   make(chan error, 1),
	}
	go func() {
		ts.done <- srv.Serve(sock)
	}()

	t.Cleanup(func() {
		ts.Shutdown()
		select {
		case <-ts.done:
		case <-time.After(5 * time.Second):
			t.Error("server did not stop")
		}
	})
	return ts
}

// stop shuts the server down and waits for Serve to return.
func (ts *testServer) stop(t *testing.T) error {
	t.Helper()
	ts.Shutdown()
	select {
	case err := <-ts.done:
		ts.done <- nil // for Cleanup
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
		return nil
	}
}

func (ts *testServer) dial(t *testing.T) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", ts.addr)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn net.Conn, data string) {
	t.Helper()
	if _, err := conn.Write([]byte(data)); err != nil {
		t.Fatalf("failed to write %q: %v", data, err)
	}
}

// expectEcho reads exactly len(want) bytes and compares them to want.
func expectEcho(t *testing.T, conn net.Conn, want string) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, len(want))
	n, err := io.ReadFull(conn, buf)
	got := string(buf[:n])
	if err != nil {
		t.Fatalf("failed to read echo (got %q so far): %v", got, err)
	}
	if got != want {
		dmp := diffmatchpatch.New()
		t.Fatalf("echo mismatch:\n%s", dmp.DiffPrettyText(dmp.DiffMain(want, got, false)))
	}
}

// expectClosed checks that the server has closed conn.
func expectClosed(t *testing.T, conn net.Conn) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 1)
	n, err := conn.Read(buf)
	if err == nil {
		t.Fatalf("expected closed connection, read %q", buf[:n])
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		t.Fatalf("connection still open: %v", err)
	}
}

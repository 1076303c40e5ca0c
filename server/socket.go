package server

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// DefaultPort is the TCP port pktlogd binds by default.
const DefaultPort = 9000

// DefaultBacklog is the default pending connection backlog.
const DefaultBacklog = 10

// Socket is a bound, not yet listening, IPv4 TCP socket.
//
// Binding and listening are separate steps so that a process can bind,
// detach into the background and only then start listening with the
// inherited descriptor.
type Socket struct {
	fd int
}

// Bind creates an IPv4 TCP socket with SO_REUSEADDR set and binds it to
// port on all addresses. Port 0 picks an ephemeral port.
// All errors wrap ErrSocketSetup.
func Bind(port int) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: socket: %w", ErrSocketSetup, err)
	}
	unix.CloseOnExec(fd)

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: setsockopt(SO_REUSEADDR): %w", ErrSocketSetup, err)
	}

	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: bind port %d: %w", ErrSocketSetup, port, err)
	}
	return &Socket{fd: fd}, nil
}

// SocketFromFile takes over a bound socket handed down by a parent process.
// f is closed.
func SocketFromFile(f *os.File) (*Socket, error) {
	defer f.Close()
	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return nil, fmt.Errorf("%w: dup inherited socket: %w", ErrSocketSetup, err)
	}
	unix.CloseOnExec(fd)
	if _, err := unix.Getsockname(fd); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: inherited descriptor is not a socket: %w", ErrSocketSetup, err)
	}
	return &Socket{fd: fd}, nil
}

// Port returns the bound port.
func (s *Socket) Port() (int, error) {
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return 0, err
	}
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return 0, fmt.Errorf("unexpected socket address %T", sa)
	}
	return in4.Port, nil
}

// File returns a duplicate of the socket descriptor for handing to a child
// process. The caller owns the returned file.
func (s *Socket) File() (*os.File, error) {
	fd, err := unix.Dup(s.fd)
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(fd)
	return os.NewFile(uintptr(fd), "pktlogd-socket"), nil
}

// Listen marks the socket as accepting connections and returns it as a
// net.Listener. The Socket must not be used afterwards; closing the listener
// closes the socket. Errors wrap ErrListen.
func (s *Socket) Listen(backlog int) (net.Listener, error) {
	if s.fd < 0 {
		return nil, fmt.Errorf("%w: socket closed", ErrListen)
	}
	if err := unix.Listen(s.fd, backlog); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListen, err)
	}

	f := os.NewFile(uintptr(s.fd), "pktlogd-socket")
	s.fd = -1
	// FileListener dups the descriptor
	ln, err := net.FileListener(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrListen, err)
	}
	return ln, nil
}

// Close closes the socket if Listen has not taken it over.
func (s *Socket) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}

// Package daemon detaches pktlogd into the background.
//
// Go programs cannot fork, so detaching re-executes the running binary in a
// new session with its standard streams on the null device and its working
// directory at "/". The already bound listening socket is handed to the child
// as an inherited descriptor, so binding happens (and can fail visibly)
// before the process detaches.
package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"golang.org/x/sys/unix"
)

// EnvSocketFD names the environment variable through which the parent tells
// the child which descriptor holds the listening socket.
const EnvSocketFD = "PKTLOGD_SOCKET_FD"

// socketFD is the descriptor number of the first entry of exec.Cmd.ExtraFiles.
const socketFD = 3

// IsChild reports whether this process was started by Detach.
func IsChild() bool {
	return os.Getenv(EnvSocketFD) != ""
}

// Options configures Detach.
type Options struct {
	// Path is the executable to run. Defaults to os.Executable().
	Path string
	// Args are the command line arguments, without the program name.
	// Defaults to os.Args[1:].
	Args []string
	// Dir is the child's working directory. Defaults to "/".
	Dir string
}

// Detach starts a detached copy of the current program that inherits
// socket, and returns its pid. The caller keeps ownership of socket and
// should close it and exit.
func Detach(socket *os.File, opts *Options) (int, error) {
	if opts == nil {
		opts = &Options{}
	}
	path := opts.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return 0, fmt.Errorf("failed to locate executable: %w", err)
		}
		path = exe
	}
	args := opts.Args
	if args == nil {
		args = os.Args[1:]
	}
	dir := opts.Dir
	if dir == "" {
		dir = "/"
	}

	cmd := exec.Command(path, args...)
	cmd.Env = append(os.Environ(), EnvSocketFD+"="+strconv.Itoa(socketFD))
	cmd.Dir = dir
	// nil standard streams are connected to the null device
	cmd.Stdin, cmd.Stdout, cmd.Stderr = nil, nil, nil
	cmd.ExtraFiles = []*os.File{socket}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start daemon: %w", err)
	}
	pid := cmd.Process.Pid
	// the child is not waited for
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("failed to release daemon process: %w", err)
	}
	return pid, nil
}

// Setup finishes detaching inside the child: the file creation mask is
// cleared and the working directory moved to "/".
func Setup() error {
	unix.Umask(0)
	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("chdir /: %w", err)
	}
	return nil
}

// InheritedSocket returns the socket passed down by Detach.
func InheritedSocket() (*os.File, error) {
	v := os.Getenv(EnvSocketFD)
	if v == "" {
		return nil, fmt.Errorf("%s not set", EnvSocketFD)
	}
	fd, err := strconv.Atoi(v)
	if err != nil || fd < socketFD {
		return nil, fmt.Errorf("invalid %s %q", EnvSocketFD, v)
	}
	os.Unsetenv(EnvSocketFD)
	return os.NewFile(uintptr(fd), "pktlogd-socket"), nil
}

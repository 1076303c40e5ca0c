package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/gops/agent"
	"github.com/scott-cotton/cli"

	"github.com/signadot/pktlogd/daemon"
	"github.com/signadot/pktlogd/server"
	"github.com/signadot/pktlogd/storage"
)

const (
	exitUsage       = 1
	exitListen      = 254
	exitSocketSetup = 255
)

func pktlogd(cfg *MainConfig, cc *cli.Context, args []string) error {
	args, err := cfg.Main.Parse(cc, args)
	if err != nil {
		cfg.Main.Usage(cc, err)
		return cli.ExitCodeErr(exitUsage)
	}
	if len(args) != 0 {
		cfg.Main.Usage(cc, fmt.Errorf("%w: unexpected arguments %q", cli.ErrUsage, args))
		return cli.ExitCodeErr(exitUsage)
	}

	child := daemon.IsChild()
	srvCfg, err := loadConfig(cfg.Config)
	if err != nil {
		if child {
			// stderr is the null device in the daemon
			log, closeLog := newLogger(cc.Out, false, true)
			log.Error("failed to load configuration", "config", cfg.Config, "error", err)
			closeLog()
		}
		fmt.Fprintf(cc.Err, "pktlogd: %v\n", err)
		return cli.ExitCodeErr(exitUsage)
	}

	log, closeLog := newLogger(cc.Out, srvCfg.Debug, child)
	defer closeLog()

	parent := cc.Go
	if parent == nil {
		parent = context.Background()
	}
	coord := server.NewCoordinator(parent)
	stop := coord.Notify(func(sig os.Signal) {
		log.Info("Caught signal, exiting", "signal", sig.String())
	})
	defer stop()

	var sock *server.Socket
	if child {
		sock, err = inheritSocket()
	} else {
		sock, err = server.Bind(srvCfg.Port)
	}
	if err != nil {
		log.Error("socket setup failed", "port", srvCfg.Port, "error", err)
		return exitStatus(err)
	}

	if cfg.D && !child {
		return detach(cfg, sock, log)
	}

	if srvCfg.Gops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Warn("gops agent failed", "error", err)
		} else {
			defer agent.Close()
		}
	}

	store := storage.New(srvCfg.DataFile, &storage.Options{
		ChunkSize: srvCfg.ReadChunk,
		Sync:      srvCfg.Sync,
		Logger:    log,
	})
	srv := server.New(&server.Spec{
		Config: srvCfg,
		Store:  store,
		Log:    log,
	}, coord)
	log.Info("pktlogd serving", "port", srvCfg.Port, "dataFile", srvCfg.DataFile, "pid", os.Getpid())

	err = srv.Serve(sock)
	if err != nil && !errors.Is(err, server.ErrListen) {
		log.Error("server stopped", "error", err)
	}
	return exitStatus(err)
}

// exitStatus maps the outcome of starting and running the server to the
// process exit status.
func exitStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, server.ErrSocketSetup):
		return cli.ExitCodeErr(exitSocketSetup)
	case errors.Is(err, server.ErrListen):
		return cli.ExitCodeErr(exitListen)
	default:
		return cli.ExitCodeErr(exitUsage)
	}
}

func loadConfig(path string) (*server.Config, error) {
	cfg := server.DefaultConfig()
	if path != "" {
		var err error
		cfg, err = server.LoadConfig(path)
		if err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// inheritSocket finishes detaching in the daemon child and takes over the
// socket bound by the parent.
func inheritSocket() (*server.Socket, error) {
	if err := daemon.Setup(); err != nil {
		return nil, fmt.Errorf("%w: %w", server.ErrSocketSetup, err)
	}
	f, err := daemon.InheritedSocket()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", server.ErrSocketSetup, err)
	}
	return server.SocketFromFile(f)
}

// daemonArgs returns the command line for the daemon child. The child runs
// in "/", so file arguments are made absolute.
func daemonArgs(cfg *MainConfig) ([]string, error) {
	args := []string{"-d"}
	if cfg.Config != "" {
		path, err := filepath.Abs(cfg.Config)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
		args = append(args, "-config", path)
	}
	return args, nil
}

// detach hands sock to a background copy of this process. The data file is
// left alone; it belongs to the daemon.
func detach(cfg *MainConfig, sock *server.Socket, log *slog.Logger) error {
	defer sock.Close()
	args, err := daemonArgs(cfg)
	if err != nil {
		log.Error("failed to start daemon", "error", err)
		return cli.ExitCodeErr(exitUsage)
	}
	f, err := sock.File()
	if err != nil {
		log.Error("failed to pass socket to daemon", "error", err)
		return cli.ExitCodeErr(exitUsage)
	}
	defer f.Close()
	pid, err := daemon.Detach(f, &daemon.Options{Args: args})
	if err != nil {
		log.Error("failed to start daemon", "error", err)
		return cli.ExitCodeErr(exitUsage)
	}
	log.Info("daemon started", "pid", pid)
	return nil
}

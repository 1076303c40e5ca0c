package main

import (
	"github.com/scott-cotton/cli"
)

type MainConfig struct {
	Main   *cli.Command
	D      bool   `cli:"name=d desc='run as a daemon'"`
	Config string `cli:"name=config desc='configuration file (yaml)'"`
}

func MainCommand() *cli.Command {
	return newMainCommand(&MainConfig{})
}

func newMainCommand(cfg *MainConfig) *cli.Command {
	opts, err := cli.StructOpts(cfg)
	if err != nil {
		panic(err)
	}
	return cli.NewCommandAt(&cfg.Main, "pktlogd").
		WithSynopsis("pktlogd [-d] [-config <file>]").
		WithDescription(mainDescription).
		WithOpts(opts...).
		WithRun(func(cc *cli.Context, args []string) error {
			return pktlogd(cfg, cc, args)
		})
}

const mainDescription = `pktlogd is a packet logging server.

pktlogd listens on TCP port 9000. Each newline terminated packet a client
sends is appended to /var/tmp/aesdsocketdata, after which the whole file is
sent back to that client. Clients are served one at a time.

With -d, pktlogd binds the port and then detaches into the background,
logging to syslog.

SIGINT and SIGTERM stop the server; the data file is removed on the way out.

Exit status

  0    clean shutdown, or daemon started
  1    usage or configuration error
  254  the bound socket could not listen
  255  the socket could not be created or bound

Configuration

A YAML file given with -config may set port, dataFile, backlog, readChunk,
maxBuffered, sync, debug, gops and metrics.addr. PKTLOGD_PORT,
PKTLOGD_DATA_FILE, PKTLOGD_METRICS_ADDR and DEBUG override the file.`

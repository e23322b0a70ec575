// Command rudp-send is the listening half of the transfer: it binds one
// UDP socket, answers handshakes from any number of receivers, and runs
// one connection state machine per peer until that peer says Done.
package main

import (
	"os"
	"strconv"

	cli "gopkg.in/urfave/cli.v1"

	"rudpfile/internal/audit"
	"rudpfile/internal/config"
	"rudpfile/internal/sender"
	"rudpfile/pkg/logger"
)

const version = "1.0.0"

func main() {
	app := cli.NewApp()
	app.Name = "rudp-send"
	app.Usage = "serve files to rudp-recv clients over a lossy UDP channel"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.IntFlag{Name: "port", Value: 9000, Usage: "UDP port to bind"},
		cli.Float64Flag{Name: "error-rate", Value: 0, Usage: "artificial loss/corruption probability in [0,1)"},
		cli.StringFlag{Name: "config", Usage: "optional TOML config file overlay"},
		cli.StringFlag{Name: "audit-db", Value: "rudp-send.audit.db", Usage: "bbolt database recording completed transfers"},
		cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn, error"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		os.Exit(exitCode(err))
	}
}

func run(ctx *cli.Context) error {
	port := ctx.Int("port")
	errorRate := ctx.Float64("error-rate")
	auditDB := ctx.String("audit-db")
	logLevel := ctx.String("log-level")
	listenAddr := ":" + strconv.Itoa(port)
	var lossSeed int64

	if path := ctx.String("config"); path != "" {
		f, err := config.Load(path)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		// A file value applies only where the flag still holds its default.
		if errorRate == 0 {
			errorRate = config.Float64Or(f.LossRate, errorRate)
		}
		if auditDB == "rudp-send.audit.db" {
			auditDB = config.StringOr(f.AuditDB, auditDB)
		}
		if logLevel == "info" {
			logLevel = config.StringOr(f.LogLevel, logLevel)
		}
		if port == 9000 {
			listenAddr = config.StringOr(f.ListenAddr, listenAddr)
		}
		lossSeed = config.Int64Or(f.LossSeed, lossSeed)
	}

	if errorRate < 0 || errorRate >= 1 {
		return cli.NewExitError("error-rate must be in [0,1)", 1)
	}

	logger.SetLevel(logLevel)
	logger.Banner(ctx.App.Name, version)

	ledger, err := audit.Open(auditDB)
	if err != nil {
		logger.Error("rudp-send: audit ledger unavailable, continuing without it", "err", err)
		ledger = nil
	} else {
		defer ledger.Close()
	}

	l, err := sender.NewListener(listenAddr, ledger, errorRate, lossSeed)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	defer l.Close()

	logger.Info("listening", "addr", l.Addr(), "error_rate", errorRate)
	if err := l.Serve(); err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	return nil
}

// exitCode extracts the status code cli.NewExitError carries, defaulting
// to 2 (fatal runtime error) for anything else the framework might
// surface, such as a flag parse failure.
func exitCode(err error) int {
	if ec, ok := err.(cli.ExitCoder); ok {
		return ec.ExitCode()
	}
	return 2
}

// Command rudp-recv requests one file from a rudp-send peer and writes it
// to a local path, driving internal/receiver's state machine to Done.
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/net/idna"
	cli "gopkg.in/urfave/cli.v1"

	"rudpfile/internal/channel"
	"rudpfile/internal/config"
	"rudpfile/internal/lossy"
	"rudpfile/internal/receiver"
	"rudpfile/pkg/frame"
	"rudpfile/pkg/logger"
)

const version = "1.0.0"

func main() {
	app := cli.NewApp()
	app.Name = "rudp-recv"
	app.Usage = "rudp-recv <local-output-path> <remote-input-path> <window-size> <buffer-size> <error-rate> <remote-host> <remote-port>"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{Name: "config", Usage: "optional TOML config file overlay"},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		os.Exit(exitCode(err))
	}
}

func run(ctx *cli.Context) error {
	args := ctx.Args()
	if len(args) != 7 {
		return cli.NewExitError(fmt.Sprintf("usage: %s", ctx.App.Usage), 1)
	}
	outputPath := args[0]
	remotePath := args[1]

	w, err := parseUint16(args[2])
	if err != nil {
		return cli.NewExitError("window-size: "+err.Error(), 1)
	}
	b, err := parseUint16(args[3])
	if err != nil {
		return cli.NewExitError("buffer-size: "+err.Error(), 1)
	}
	errorRate, err := strconv.ParseFloat(args[4], 64)
	if err != nil {
		return cli.NewExitError("error-rate: "+err.Error(), 1)
	}
	if errorRate < 0 || errorRate >= 1 {
		return cli.NewExitError("error-rate must be in [0,1)", 1)
	}
	if len(remotePath) > 100 {
		return cli.NewExitError("remote-input-path exceeds 100 bytes", 1)
	}

	host, err := idna.Lookup.ToASCII(args[5])
	if err != nil {
		return cli.NewExitError("remote-host: "+err.Error(), 1)
	}
	port := args[6]

	logLevel := "info"
	if path := ctx.String("config"); path != "" {
		f, err := config.Load(path)
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		logLevel = config.StringOr(f.LogLevel, logLevel)
	}
	logger.SetLevel(logLevel)
	logger.Banner(ctx.App.Name, version)

	ch, err := channel.Dial(host + ":" + port)
	if err != nil {
		return cli.NewExitError(err.Error(), 2)
	}
	defer ch.Close()

	// The reference puts error-rate on the client's command line because
	// it is the client that owns the simulated-lossy socket wrapper in
	// the original design; this repo keeps that same split, injecting
	// loss/corruption on the client's outbound acks rather than the
	// server's outbound data.
	if errorRate > 0 {
		inj, err := lossy.New(errorRate, int64(w)<<16|int64(b))
		if err != nil {
			return cli.NewExitError(err.Error(), 1)
		}
		ch.SetInjector(inj)
	}

	r := receiver.New(ch, outputPath, remotePath, w, b)
	outcome := r.Run()

	switch outcome {
	case receiver.OutcomeCompleted:
		return nil
	case receiver.OutcomeFileMissing:
		return cli.NewExitError("remote reports file missing: "+remotePath, 2)
	default:
		return cli.NewExitError("transfer failed: "+outcome.String(), 2)
	}
}

func parseUint16(s string) (uint16, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, err
	}
	if n == 0 || n > frame.MaxPayload {
		return 0, fmt.Errorf("must be in 1..%d", frame.MaxPayload)
	}
	return uint16(n), nil
}

func exitCode(err error) int {
	if ec, ok := err.(cli.ExitCoder); ok {
		return ec.ExitCode()
	}
	return 2
}

// Package logger provides the leveled, structured logging surface used by
// every command and state machine in this repository. The API shape
// mirrors a small hand-rolled logger one might reach for first, but the
// implementation is backed by charmbracelet/log so that call sites can
// attach structured fields (peer address, sequence number, retry count)
// instead of formatting them into a string.
package logger

import (
	"os"
	"time"

	charmlog "github.com/charmbracelet/log"
)

var base = charmlog.NewWithOptions(os.Stderr, charmlog.Options{
	ReportTimestamp: true,
	TimeFormat:      "15:04:05",
})

// SetLevel sets the minimum log level by name: debug, info, warn, error.
func SetLevel(name string) {
	lvl, err := charmlog.ParseLevel(name)
	if err != nil {
		lvl = charmlog.InfoLevel
	}
	base.SetLevel(lvl)
}

// L returns the package's shared logger, for call sites that want to
// attach structured fields via With before logging.
func L() *charmlog.Logger {
	return base
}

func Debug(msg string, kv ...interface{}) { base.Debug(msg, kv...) }
func Info(msg string, kv ...interface{})  { base.Info(msg, kv...) }
func Warn(msg string, kv ...interface{})  { base.Warn(msg, kv...) }
func Error(msg string, kv ...interface{}) { base.Error(msg, kv...) }

// Fatal logs msg at error level and exits the process with status 2,
// matching the "fatal host faults ... terminate the process" rule in the
// error handling design.
func Fatal(msg string, kv ...interface{}) {
	base.Error(msg, kv...)
	os.Exit(2)
}

// Section prints a short banner line marking the start of a logical
// phase (handshake, transfer, shutdown) in the log stream.
func Section(title string) {
	base.Info("── " + title + " ──")
}

// Banner announces process startup with its name, version and the time
// it came up, replacing the teacher's ASCII-art splash with a single
// structured line that a log aggregator can still parse.
func Banner(name, version string) {
	base.Info("starting", "component", name, "version", version, "pid", os.Getpid(), "started_at", time.Now().Format(time.RFC3339))
}

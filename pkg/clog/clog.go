// Package clog owns the daemon's process-wide apex/log configuration: one
// swappable handler whose level and output operators can change at runtime
// through the web API, plus helpers that tag entries with the transfer or
// digital object they belong to so one transfer's lines can be filtered
// out of the combined log.
package clog

import (
	"io"
	"os"
	"strconv"
	"sync"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

var (
	mu       sync.Mutex
	handler  = NewHandler(os.Stdout)
	curLevel = log.InfoLevel
	output   = "stdout"
)

// Setup installs the clog handler process-wide. The daemon calls this once
// before anything logs; calling it again just reapplies the current state.
func Setup() {
	mu.Lock()
	defer mu.Unlock()
	log.SetHandler(handler)
	log.SetLevel(curLevel)
}

// SetLevel switches the process-wide log level.
func SetLevel(level log.Level) {
	mu.Lock()
	defer mu.Unlock()
	curLevel = level
	log.SetLevel(level)
}

// SetLevelFromString is SetLevel for the web API, which gets the level as a
// string.
func SetLevelFromString(s string) error {
	level, err := log.ParseLevel(s)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %s", s)
	}

	SetLevel(level)
	return nil
}

// Level returns the current process-wide log level.
func Level() log.Level {
	mu.Lock()
	defer mu.Unlock()
	return curLevel
}

// SetOutputPath points the handler at "stdout", "stderr" or a file path.
// The file is created before the switch, so a path that cannot be written
// leaves the current output in place.
func SetOutputPath(path string) error {
	var w io.WriteCloser
	switch path {
	case "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.Create(path)
		if err != nil {
			return errors.Wrapf(err, "failed to open log output %s", path)
		}
		w = f
	}

	mu.Lock()
	defer mu.Unlock()
	handler.SetOutput(w)
	output = path
	return nil
}

// Output returns the name of the current log output ("stdout", "stderr" or
// a file path).
func Output() string {
	mu.Lock()
	defer mu.Unlock()
	return output
}

// ForTransfer returns an entry tagged with the transfer id.
func ForTransfer(transferID int64) *log.Entry {
	return log.WithField("transfer", strconv.FormatInt(transferID, 10))
}

// ForObject returns an entry tagged with the digital object id.
func ForObject(objectID string) *log.Entry {
	return log.WithField("object", objectID)
}

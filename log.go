package ddcci

import (
	"encoding/hex"
	"io"
	"os"

	"github.com/charmbracelet/log"
)

// Verbosity selects how much the library logs. It propagates
// Client -> Device -> Control at construction time.
type Verbosity int

const (
	// VerboseNone silences all logging.
	VerboseNone Verbosity = iota
	// VerboseOverview logs high-level events (the decoded EDID identity,
	// the capability parse summary, and warnings such as failed opens and
	// capability retries). Close and the startup handshake log nothing.
	VerboseOverview
	// VerboseProtocol additionally dumps every raw I2C buffer in hex.
	VerboseProtocol
)

// logger is the handle every component logs through; an alias over
// charmbracelet/log.Logger so Device/Control/Client don't need to import
// the log package directly.
type logger = log.Logger

// newComponentLogger builds a logger scoped to one component instance
// (e.g. the device's bus path), silenced entirely at VerboseNone.
func newComponentLogger(v Verbosity, component, scope string) *logger {
	if v == VerboseNone {
		return log.New(io.Discard)
	}
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: false,
		Prefix:          component + " " + scope,
	})
	if v >= VerboseProtocol {
		l.SetLevel(log.DebugLevel)
	} else {
		l.SetLevel(log.InfoLevel)
	}
	return l
}

// dumpHex prints a labeled raw I2C buffer at debug level.
func dumpHex(l *logger, label string, data []byte) {
	l.Debug(label, "bytes", hex.EncodeToString(data), "len", len(data))
}

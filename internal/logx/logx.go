// Package logx sets up the structured logger shared by both nodes. It
// keeps the teacher's notion of a small fixed set of message severities
// (src/textcolor.go's DW_COLOR_* enum) but expresses it through
// charmbracelet/log's level and field conventions instead of ANSI color
// codes.
package logx

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// Severity mirrors the teacher's dw_color_e: a handful of named message
// kinds rather than a generic log-level scale, because the radio/host
// split only ever needs to distinguish "informational", "received",
// "decoded", "transmitted", "error", and "debug" traffic.
type Severity int

const (
	Info Severity = iota
	Received
	Decoded
	Transmitted
	Error
	Debug
)

var fields = map[Severity]string{
	Info:        "info",
	Received:    "rx",
	Decoded:     "decoded",
	Transmitted: "tx",
	Error:       "error",
	Debug:       "debug",
}

// New builds a logger for the given node name ("radio" or "host"),
// writing structured, timestamped entries to stderr.
func New(node string) *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	})
	return l.With("node", node)
}

// Event logs one message at the given severity, attaching a "kind" field
// derived from it so downstream log processors can filter on the same
// six-way distinction the teacher made with text colors.
func Event(l *log.Logger, sev Severity, msg string, kv ...any) {
	lvl := log.InfoLevel
	if sev == Error {
		lvl = log.ErrorLevel
	} else if sev == Debug {
		lvl = log.DebugLevel
	}
	args := append([]any{"kind", fields[sev]}, kv...)
	l.Log(lvl, msg, args...)
}

// trailerPattern is the strftime layout Timestamp renders (grounded on
// src/xmit.go's and src/tq.go's use of strftime for queue/beacon
// timestamps). Frame trailer lines carry no timestamp.
var trailerPattern = strftime.MustNew("%Y-%m-%dT%H:%M:%S%z")

// Timestamp renders t in the same format the teacher's beacon/transmit
// queue logging uses.
func Timestamp(t time.Time) string {
	return trailerPattern.FormatString(t)
}

package wlog

import (
	"fmt"
	"io"
	"sync"
)

// Permission gates whether a Log()/Logf() call is actually recorded.
type Permission interface {
	AllowLogging() bool
}

type allowPermission struct{}

func (allowPermission) AllowLogging() bool { return true }

// Allow is a Permission that always allows logging.
var Allow Permission = allowPermission{}

type verbosePermission struct{}

func (verbosePermission) AllowLogging() bool { return verbose }

// Verbose is a Permission that allows logging only when SetVerbose(true) has
// been called, i.e. when WACHY_PROGRAM_TRACE=1 was set at startup.
var Verbose Permission = verbosePermission{}

var verbose bool

// SetVerbose toggles the Verbose permission for the remainder of the
// process's lifetime.
func SetVerbose(v bool) {
	verbose = v
}

type entry struct {
	tag    string
	detail string
}

func (e entry) String() string {
	return fmt.Sprintf("%s: %s\n", e.tag, e.detail)
}

// Logger is a capped ring buffer of log entries.
type Logger struct {
	crit     sync.Mutex
	capacity int
	entries  []entry
}

// NewLogger is the preferred method of initialisation for the Logger type.
func NewLogger(capacity int) *Logger {
	return &Logger{
		capacity: capacity,
		entries:  make([]entry, 0, capacity),
	}
}

// Log records detail under tag, if permission allows it. detail is
// formatted according to its type: errors and fmt.Stringer use their own
// string forms, everything else falls through to "%v".
func (log *Logger) Log(permission Permission, tag string, detail interface{}) {
	if !permission.AllowLogging() {
		return
	}
	log.append(tag, formatDetail(detail))
}

// Logf is like Log() but the detail is built from a format string.
func (log *Logger) Logf(permission Permission, tag string, format string, args ...interface{}) {
	if !permission.AllowLogging() {
		return
	}
	log.append(tag, fmt.Sprintf(format, args...))
}

func formatDetail(detail interface{}) string {
	switch d := detail.(type) {
	case error:
		return d.Error()
	case fmt.Stringer:
		return d.String()
	case string:
		return d
	default:
		return fmt.Sprintf("%v", d)
	}
}

func (log *Logger) append(tag, detail string) {
	log.crit.Lock()
	defer log.crit.Unlock()

	if len(log.entries) >= log.capacity {
		log.entries = log.entries[1:]
	}
	log.entries = append(log.entries, entry{tag: tag, detail: detail})
}

// Write dumps every entry currently in the buffer to w.
func (log *Logger) Write(w io.Writer) {
	log.crit.Lock()
	defer log.crit.Unlock()

	for _, e := range log.entries {
		io.WriteString(w, e.String())
	}
}

// Tail dumps the most recent n entries to w. Asking for more entries than
// exist is fine; the whole buffer is dumped in that case.
func (log *Logger) Tail(w io.Writer, n int) {
	log.crit.Lock()
	defer log.crit.Unlock()

	if n > len(log.entries) {
		n = len(log.entries)
	}

	for _, e := range log.entries[len(log.entries)-n:] {
		io.WriteString(w, e.String())
	}
}

// Clear empties the buffer.
func (log *Logger) Clear() {
	log.crit.Lock()
	defer log.crit.Unlock()

	log.entries = log.entries[:0]
}

// central is the package-level logger used by the convenience functions
// below, which is what most of the module actually calls.
var central = NewLogger(1000)

// Log records detail under tag on the central logger, gated by permission.
func Log(permission Permission, tag string, detail interface{}) {
	central.Log(permission, tag, detail)
}

// Logf is like Log() but the detail is built from a format string.
func Logf(permission Permission, tag string, format string, args ...interface{}) {
	central.Logf(permission, tag, format, args...)
}

// Write dumps the central logger's buffer to w.
func Write(w io.Writer) {
	central.Write(w)
}

// Tail dumps the most recent n entries from the central logger to w.
func Tail(w io.Writer, n int) {
	central.Tail(w, n)
}

// Clear empties the central logger's buffer.
func Clear() {
	central.Clear()
}

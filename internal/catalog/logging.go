package catalog

import (
	"fmt"
	"os"
	"sync"

	"github.com/fatih/color"
)

// Status, warning, and drop diagnostics during catalogue build. The core
// never logs on the query hot path; the CLI prints one status line per
// query output file written. Per-record
// chatter during ingestion would defeat the point of streaming through a
// bounded cache.
var (
	statusColor = color.New(color.FgCyan)
	warnColor   = color.New(color.FgYellow)
	logMu       sync.Mutex

	// Verbose gates per-record drop diagnostics. Phase-boundary status
	// lines always print; Verbose additionally prints one line per
	// dropped input record, which can be large for a noisy dataset.
	Verbose = false
)

// Status prints a phase-boundary status line (ingest started, index N
// sorted, friend-flag pass complete, ...).
func Status(format string, args ...any) {
	logMu.Lock()
	defer logMu.Unlock()
	statusColor.Fprintf(os.Stderr, format+"\n", args...)
}

// Warn prints a recoverable-failure diagnostic: a dropped record, a
// failed cache write-back, a skipped query line.
func Warn(format string, args ...any) {
	logMu.Lock()
	defer logMu.Unlock()
	warnColor.Fprintf(os.Stderr, format+"\n", args...)
}

// warnDrop logs a single dropped-record diagnostic, gated by Verbose.
func warnDrop(kind string, reason dropReason, context string) {
	if !Verbose {
		return
	}
	Warn("drop %s: %s (%s)", kind, reason, context)
}

// FatalInvariant reports a fatal programmer-error invariant violation and
// aborts the process. Per §7 this is the one class of failure that is
// never recoverable: "abort with diagnostic."
func FatalInvariant(err error) {
	fmt.Fprintf(os.Stderr, "%s%s%s\n", "\033[31m\033[1m", err.Error(), "\033[0m")
	panic(err)
}

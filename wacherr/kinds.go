package wacherr

// Kind patterns for the errors this module raises, passed as the pattern
// argument to Errorf() and matched with Is()/Has(). Grouped by the error
// handling policy in spec.md §7.

// Startup-class errors: reported to stderr, process exits non-zero before
// the UI starts.
const (
	BinaryOpenFailed    = "could not open binary: %v"
	BinaryParseFailed   = "could not parse binary: %v"
	MissingDebugInfo    = "binary has no usable debug info: %v"
	DebugLinkCRCMismatch = "debug-link companion file failed CRC check: %s"
	NoMatchingFunction  = "no unique function named %q"
)

// Per-function navigation errors: shown as a modal dialog, user can
// continue.
const (
	DynamicSymbolNotEnterable = "%q is a dynamically linked symbol and cannot be entered"
	NoDebugInfoForFunction    = "no debug info for function %q"
)

// Tracer-class errors: shown as a modal and the session quits.
const (
	FatalError = "tracer failed: %v"
)

// Package wlog is a small tag-based logger, used throughout this module
// instead of returning diagnostic detail as errors. Log entries are kept in
// a capped ring buffer; Write() dumps the whole buffer, Tail() dumps only
// the most recent N entries. (The stderr tail that accompanies a tracer
// FatalError is kept by package tracer itself, not by this logger.)
//
// A log call is gated by a Permission, an interface with a single
// AllowLogging() bool method. Allow always permits logging. Verbose only
// permits logging when the WACHY_PROGRAM_TRACE environment variable was set
// at startup (spec.md §6), so diagnostic lines such as binaryindex.Load's
// (the loaded file's size, the DWARF and symbol-table fallbacks) and the
// tracer's reader-loop start do not appear by default. Load does not log
// individual symbols, relocations or instructions.
package wlog

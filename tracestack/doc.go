// Package tracestack implements the Trace Stack (component C): the
// ordered sequence of disasm.FrameInfo the user has drilled into, plus the
// set of call sites currently active for tracing in the top frame.
//
// A TraceStack is shared between a single writer (the Controller, which
// pushes/pops frames and toggles call sites) and a single reader (the
// Tracer, which takes snapshots to rebuild its tracing script). Every
// mutation is guarded by one mutex and bumps a monotonic version counter;
// the Tracer tags its output with the version of the snapshot it acted on,
// and the Controller uses IsCurrent to discard output from a stale one.
package tracestack

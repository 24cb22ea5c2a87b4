// Package tracer implements the Tracer (component D): it renders a
// dynamic-tracing script from a tracestack.Snapshot, runs it in a child
// process, and parses the child's periodic aggregate dumps into
// version-tagged TraceData for the Controller.
package tracer

package tracestack

import (
	"sync"

	"github.com/cloudnepal/wachy/binaryindex"
	"github.com/cloudnepal/wachy/disasm"
)

// ActiveCallsite is one call site the user has toggled on for tracing in
// the current top frame.
type ActiveCallsite struct {
	Line        int
	Instruction disasm.CallInstruction
}

// Snapshot is the atomic, read-only projection handed to the Tracer at
// restart time (spec.md §4.C snapshot()). It carries everything the Tracer
// needs to render a script without holding the stack's lock.
type Snapshot struct {
	Version   uint64
	Function  binaryindex.FunctionName
	Callsites []ActiveCallsite
}

// TraceStack is the ordered sequence of drilled-into frames plus the set
// of active call sites in the top one (spec.md §4.C). The zero value is
// not usable; construct with New.
type TraceStack struct {
	crit sync.Mutex

	frames  []*disasm.FrameInfo
	active  map[int]disasm.CallInstruction
	version uint64

	// changed is a single-producer/single-consumer, signal-only channel:
	// every mutating operation attempts a non-blocking send so the
	// Controller's event pump never has to wait for it (spec.md §5).
	changed chan struct{}
}

// New constructs a TraceStack with root as its only (and un-poppable)
// frame.
func New(root *disasm.FrameInfo) *TraceStack {
	return &TraceStack{
		frames:  []*disasm.FrameInfo{root},
		active:  make(map[int]disasm.CallInstruction),
		changed: make(chan struct{}, 1),
	}
}

// Changed returns the channel the Controller polls (try-receive) to learn
// that a mutation occurred since it last checked.
func (ts *TraceStack) Changed() <-chan struct{} {
	return ts.changed
}

func (ts *TraceStack) notify() {
	select {
	case ts.changed <- struct{}{}:
	default:
	}
}

// Push appends frame as the new top of the stack, clearing the active
// call-site set (the new frame starts with nothing being traced) and
// bumping the version.
func (ts *TraceStack) Push(frame *disasm.FrameInfo) {
	ts.crit.Lock()
	ts.frames = append(ts.frames, frame)
	ts.active = make(map[int]disasm.CallInstruction)
	ts.version++
	ts.crit.Unlock()

	ts.notify()
}

// Pop removes and returns the top frame. The root frame can never be
// popped: if only one frame remains, Pop returns (nil, false) and the
// stack is unchanged.
func (ts *TraceStack) Pop() (*disasm.FrameInfo, bool) {
	ts.crit.Lock()
	if len(ts.frames) <= 1 {
		ts.crit.Unlock()
		return nil, false
	}

	top := ts.frames[len(ts.frames)-1]
	ts.frames = ts.frames[:len(ts.frames)-1]
	ts.active = make(map[int]disasm.CallInstruction)
	ts.version++
	ts.crit.Unlock()

	ts.notify()
	return top, true
}

// CurrentFunction returns the top frame's function.
func (ts *TraceStack) CurrentFunction() binaryindex.FunctionName {
	ts.crit.Lock()
	defer ts.crit.Unlock()
	return ts.frames[len(ts.frames)-1].Function
}

// CurrentFrame returns the top frame itself, for display purposes.
func (ts *TraceStack) CurrentFrame() *disasm.FrameInfo {
	ts.crit.Lock()
	defer ts.crit.Unlock()
	return ts.frames[len(ts.frames)-1]
}

// Depth reports how many frames are on the stack.
func (ts *TraceStack) Depth() int {
	ts.crit.Lock()
	defer ts.crit.Unlock()
	return len(ts.frames)
}

// CallsitesAt returns the call instructions the top frame's mapping
// records at line, regardless of whether any of them are active.
func (ts *TraceStack) CallsitesAt(line int) []disasm.CallInstruction {
	ts.crit.Lock()
	defer ts.crit.Unlock()
	top := ts.frames[len(ts.frames)-1]
	return top.Mapping[line]
}

// AddCallsite marks line as actively traced, using ci as the call
// instruction to generate a probe for. Bumps the version.
func (ts *TraceStack) AddCallsite(line int, ci disasm.CallInstruction) {
	ts.crit.Lock()
	ts.active[line] = ci
	ts.version++
	ts.crit.Unlock()

	ts.notify()
}

// RemoveCallsite clears line from the active set, if present. Reports
// whether anything was removed, and only bumps the version when it was.
func (ts *TraceStack) RemoveCallsite(line int) bool {
	ts.crit.Lock()
	_, existed := ts.active[line]
	if existed {
		delete(ts.active, line)
		ts.version++
	}
	ts.crit.Unlock()

	if existed {
		ts.notify()
	}
	return existed
}

// IsActive reports whether line currently has an active call site.
func (ts *TraceStack) IsActive(line int) bool {
	ts.crit.Lock()
	defer ts.crit.Unlock()
	_, ok := ts.active[line]
	return ok
}

// Snapshot takes an atomic, lock-free-to-use copy of the current version,
// top function, and active call sites (spec.md §4.C snapshot()).
func (ts *TraceStack) Snapshot() Snapshot {
	ts.crit.Lock()
	defer ts.crit.Unlock()

	sites := make([]ActiveCallsite, 0, len(ts.active))
	for line, ci := range ts.active {
		sites = append(sites, ActiveCallsite{Line: line, Instruction: ci})
	}

	return Snapshot{
		Version:   ts.version,
		Function:  ts.frames[len(ts.frames)-1].Function,
		Callsites: sites,
	}
}

// IsCurrent reports whether version still matches the stack's current
// version, in constant time (spec.md §4.C is_current()).
func (ts *TraceStack) IsCurrent(version uint64) bool {
	ts.crit.Lock()
	defer ts.crit.Unlock()
	return ts.version == version
}

// Version returns the current version without taking a snapshot.
func (ts *TraceStack) Version() uint64 {
	ts.crit.Lock()
	defer ts.crit.Unlock()
	return ts.version
}

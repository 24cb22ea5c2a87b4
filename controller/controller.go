package controller

import (
	"context"

	"github.com/cloudnepal/wachy/binaryindex"
	"github.com/cloudnepal/wachy/disasm"
	"github.com/cloudnepal/wachy/tracer"
	"github.com/cloudnepal/wachy/tracestack"
	"github.com/cloudnepal/wachy/wlog"
)

// EventKind distinguishes the UI-originated events the Controller reacts
// to (spec.md §6 "UI bindings").
type EventKind int

const (
	// EventToggleTrace is the `x` binding.
	EventToggleTrace EventKind = iota
	// EventDescend is the `Enter` binding.
	EventDescend
	// EventEscape is the `Esc` binding.
	EventEscape
	// EventSelectCandidate answers a pending SearchCandidates dialog with
	// the chosen index, or a free-text Query when the user picked the
	// "indirect" widening entry.
	EventSelectCandidate
)

// Event is one UI-originated input, pulled from a collaborator-supplied
// UIEvents source.
type Event struct {
	Kind  EventKind
	Line  int
	Index int
	Query string
}

// UIEvents is the Controller's source of input events. PollEvent must
// never block: it reports (zero, false) when nothing is pending.
type UIEvents interface {
	PollEvent() (Event, bool)
}

// SearchCandidate is one entry in a callee- or callsite-disambiguation
// dialog (spec.md §6).
type SearchCandidate struct {
	Label    string
	Target   binaryindex.FunctionName
	Widening bool // the synthetic "indirect" entry that widens to all symbols
}

// Display is the Controller's output-side collaborator contract. It is
// the only place a concrete terminal UI library needs to be imported.
type Display interface {
	ShowFrame(frame *disasm.FrameInfo)
	UpdateAggregate(line int, agg tracer.LineAggregate)
	ShowModal(message string)
	ShowSearchCandidates(candidates []SearchCandidate)
	Notify(message string)
	ConfirmQuit()
	Quit()
	Refresh()
}

type pendingMode int

const (
	pendingNone pendingMode = iota
	pendingToggle
	pendingDescend
)

type pendingSelection struct {
	mode    pendingMode
	line    int
	options []disasm.CallInstruction
}

// Controller owns the event pump (spec.md §4.E).
type Controller struct {
	Index  *binaryindex.Index
	Stack  *tracestack.TraceStack
	Tracer *tracer.Tracer

	Display Display
	Events  UIEvents

	pending     *pendingSelection
	quitConfirm bool
	quit        bool
}

// New constructs a Controller already showing the trace stack's root
// frame.
func New(index *binaryindex.Index, stack *tracestack.TraceStack, tr *tracer.Tracer, display Display, events UIEvents) *Controller {
	c := &Controller{
		Index:   index,
		Stack:   stack,
		Tracer:  tr,
		Display: display,
		Events:  events,
	}
	display.ShowFrame(stack.CurrentFrame())
	return c
}

// Run drives Tick in a loop until the user quits or a fatal tracer error
// arrives (spec.md §4.E/§5: "single-threaded cooperative" main loop).
func (c *Controller) Run(ctx context.Context) {
	for {
		if c.Tick() {
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// Tick performs one iteration of the event pump (spec.md §4.E): pull one
// UI event, drain the trace-stack change signal, drain pending trace data,
// refresh. Returns true once the session should end.
func (c *Controller) Tick() bool {
	if ev, ok := c.Events.PollEvent(); ok {
		c.dispatch(ev)
	}

	select {
	case <-c.Stack.Changed():
		c.Tracer.RequestRestart()
	default:
	}

	c.drainTraceData()

	c.Display.Refresh()
	return c.quit
}

func (c *Controller) drainTraceData() {
	for {
		select {
		case msg := <-c.Tracer.Data:
			c.applyTraceData(msg)
		default:
			return
		}
	}
}

func (c *Controller) applyTraceData(msg tracer.Message) {
	if msg.Err != nil {
		c.Display.ShowModal(msg.Err.Error())
		c.quit = true
		return
	}

	if !c.Stack.IsCurrent(msg.Data.Version) {
		// spec.md §8: "if is_current(D.version) is false at receipt then
		// the UI state is unchanged" — discard silently.
		return
	}

	for line, agg := range msg.Data.Lines {
		c.Display.UpdateAggregate(line, agg)
	}
}

func (c *Controller) dispatch(ev Event) {
	switch ev.Kind {
	case EventToggleTrace:
		c.toggleTrace(ev.Line)
	case EventDescend:
		c.descend(ev.Line)
	case EventEscape:
		c.escape()
	case EventSelectCandidate:
		c.resolveSelection(ev)
	}
}

// toggleTrace implements the `x` binding (spec.md §6).
func (c *Controller) toggleTrace(line int) {
	if c.Stack.IsActive(line) {
		c.Stack.RemoveCallsite(line)
		return
	}

	options := c.Stack.CallsitesAt(line)
	switch len(options) {
	case 0:
		c.Display.ShowModal("no call site on this line")
	case 1:
		c.Stack.AddCallsite(line, options[0])
	default:
		c.pending = &pendingSelection{mode: pendingToggle, line: line, options: options}
		c.Display.ShowSearchCandidates(toggleCandidates(c.Index, options))
	}
}

// descend implements the `Enter` binding (spec.md §6). Per
// original_source/src/controller.rs's direct_calls filter, a call to a
// dynamic symbol counts as a direct call for this purpose, same as a call
// to a known local function: only Register and Unknown call instructions
// count as indirect.
func (c *Controller) descend(line int) {
	options := c.Stack.CallsitesAt(line)
	direct := directCalls(options)

	if len(direct) == 1 && len(options) == 1 {
		c.pushCallee(direct[0].Target)
		return
	}

	if len(options) == 0 {
		c.Display.ShowModal("no call site on this line")
		return
	}

	c.pending = &pendingSelection{mode: pendingDescend, line: line, options: direct}
	c.Display.ShowSearchCandidates(descendCandidates(c.Index, direct))
}

// directCalls filters options to the call instructions that name a known
// target directly: KindDirectFunction and KindDynamicSymbol. The index of
// a surviving entry here is the index the caller must use to interpret an
// EventSelectCandidate against the same slice handed to descendCandidates.
func directCalls(options []disasm.CallInstruction) []disasm.CallInstruction {
	out := make([]disasm.CallInstruction, 0, len(options))
	for _, ci := range options {
		if ci.Kind == disasm.KindDirectFunction || ci.Kind == disasm.KindDynamicSymbol {
			out = append(out, ci)
		}
	}
	return out
}

// escape implements the `Esc` binding (spec.md §6): pop any overlay first,
// then pop the trace stack, then ask for a quit confirmation at the root.
func (c *Controller) escape() {
	if c.pending != nil {
		c.pending = nil
		return
	}

	if _, ok := c.Stack.Pop(); ok {
		c.Display.ShowFrame(c.Stack.CurrentFrame())
		return
	}

	if c.quitConfirm {
		c.quit = true
		c.Display.Quit()
		return
	}

	c.quitConfirm = true
	c.Display.ConfirmQuit()
}

func (c *Controller) resolveSelection(ev Event) {
	p := c.pending
	c.pending = nil
	if p == nil {
		return
	}

	switch p.mode {
	case pendingToggle:
		if ev.Index < 0 || ev.Index >= len(p.options) {
			return
		}
		c.Stack.AddCallsite(p.line, p.options[ev.Index])

	case pendingDescend:
		if ev.Query != "" {
			fn, err := c.Index.FindUniqueFunction(ev.Query)
			if err != nil {
				c.Display.ShowModal(err.Error())
				return
			}
			c.pushCallee(fn)
			return
		}
		// p.options is already filtered to direct calls (see directCalls);
		// ev.Index == len(p.options) is the synthetic "indirect: search all
		// symbols" entry, answered via ev.Query instead, above.
		if ev.Index < 0 || ev.Index >= len(p.options) {
			return
		}
		c.pushCallee(p.options[ev.Index].Target)
	}
}

func (c *Controller) pushCallee(fn binaryindex.FunctionName) {
	sym, ok := c.Index.Symbol(fn)
	if !ok || sym.Address == 0 {
		c.Display.Notify("cannot descend into a dynamically linked symbol")
		return
	}

	entryFile := c.Stack.CurrentFrame().SourceFile
	if loc, ok := c.Index.AddressToSource(sym.Address); ok {
		entryFile = loc.File
	}

	frame, err := disasm.Analyze(c.Index, fn, entryFile)
	if err != nil {
		c.Display.ShowModal(err.Error())
		return
	}

	c.Stack.Push(frame)
	c.Display.ShowFrame(frame)
	wlog.Logf(wlog.Allow, "controller", "descended into %s", c.Index.DisplayName(fn))
}

func toggleCandidates(index *binaryindex.Index, options []disasm.CallInstruction) []SearchCandidate {
	out := make([]SearchCandidate, 0, len(options))
	for _, ci := range options {
		out = append(out, SearchCandidate{Label: callLabel(index, ci), Target: ci.Target})
	}
	return out
}

// descendCandidates builds the dialog entries for an already-filtered
// directCalls() slice, in the same order, plus a trailing synthetic
// "indirect" entry for widening to a free-text symbol search.
func descendCandidates(index *binaryindex.Index, direct []disasm.CallInstruction) []SearchCandidate {
	out := make([]SearchCandidate, 0, len(direct)+1)
	for _, ci := range direct {
		out = append(out, SearchCandidate{Label: callLabel(index, ci), Target: ci.Target})
	}
	out = append(out, SearchCandidate{Label: "indirect: search all symbols", Widening: true})
	return out
}

func callLabel(index *binaryindex.Index, ci disasm.CallInstruction) string {
	switch ci.Kind {
	case disasm.KindDirectFunction:
		return index.DisplayName(ci.Target)
	case disasm.KindDynamicSymbol:
		return index.DisplayName(ci.Target) + "@plt"
	case disasm.KindRegister:
		if ci.HasDisplacement {
			return "register " + ci.Register + " +disp"
		}
		return "register " + ci.Register
	default:
		return "unknown"
	}
}

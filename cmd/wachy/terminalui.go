package main

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"sync"
	"syscall"

	"github.com/cloudnepal/wachy/controller"
	"github.com/cloudnepal/wachy/disasm"
	"github.com/cloudnepal/wachy/tracer"

	"github.com/pkg/term/termios"
)

// terminalUI is a minimal raw-mode terminal implementing both
// controller.Display and controller.UIEvents. It is grounded on the
// teacher's debugger/terminal/colorterm/easyterm package: the same
// termios save/restore-on-cleanup discipline, trimmed to what a
// line-cursor-and-dialog UI needs rather than a full interactive
// debugger console.
type terminalUI struct {
	in  *os.File
	out *os.File

	canAttr syscall.Termios
	rawAttr syscall.Termios

	reader *bufio.Reader

	mu         sync.Mutex
	frame      *disasm.FrameInfo
	aggregates map[int]tracer.LineAggregate
	cursor     int // index into frame.Lines()

	candidates []controller.SearchCandidate
	dialogOpen bool
}

func newTerminalUI(in, out *os.File) (*terminalUI, error) {
	t := &terminalUI{
		in:         in,
		out:        out,
		reader:     bufio.NewReader(in),
		aggregates: make(map[int]tracer.LineAggregate),
	}

	if err := termios.Tcgetattr(in.Fd(), &t.canAttr); err != nil {
		return nil, err
	}
	t.rawAttr = t.canAttr
	termios.Cfmakeraw(&t.rawAttr)
	if err := termios.Tcsetattr(in.Fd(), termios.TCIFLUSH, &t.rawAttr); err != nil {
		return nil, err
	}

	return t, nil
}

// Close restores the terminal to its original (canonical) mode. Mirrors
// easyterm.CleanUp's restore-on-exit discipline.
func (t *terminalUI) Close() error {
	return termios.Tcsetattr(t.in.Fd(), termios.TCIFLUSH, &t.canAttr)
}

// --- controller.Display ---

func (t *terminalUI) ShowFrame(frame *disasm.FrameInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frame = frame
	t.aggregates = make(map[int]tracer.LineAggregate)
	t.cursor = 0
	t.dialogOpen = false
}

func (t *terminalUI) UpdateAggregate(line int, agg tracer.LineAggregate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.aggregates[line] = agg
}

func (t *terminalUI) ShowModal(message string) {
	fmt.Fprintf(t.out, "\r\n[!] %s\r\n", message)
}

func (t *terminalUI) ShowSearchCandidates(candidates []controller.SearchCandidate) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.candidates = candidates
	t.dialogOpen = true

	fmt.Fprintf(t.out, "\r\nselect a target:\r\n")
	for i, c := range candidates {
		fmt.Fprintf(t.out, "  %d: %s\r\n", i, c.Label)
	}
}

func (t *terminalUI) Notify(message string) {
	fmt.Fprintf(t.out, "\r\n%s\r\n", message)
}

func (t *terminalUI) ConfirmQuit() {
	fmt.Fprintf(t.out, "\r\npress Esc again to quit\r\n")
}

func (t *terminalUI) Quit() {
	fmt.Fprintf(t.out, "\r\n")
}

func (t *terminalUI) Refresh() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.frame == nil {
		return
	}

	lines := t.frame.Lines()
	sort.Ints(lines)

	fmt.Fprintf(t.out, "\r\n--- %s ---\r\n", t.frame.SourceFile)
	for i, l := range lines {
		marker := "  "
		if i == t.cursor && !t.dialogOpen {
			marker = "> "
		}
		agg := t.aggregates[l]
		fmt.Fprintf(t.out, "%sline %4d  count=%d  sum_ns=%d\r\n", marker, l, agg.Count, agg.SumNs)
	}
}

// --- controller.UIEvents ---

// PollEvent reads at most one keystroke without blocking beyond the
// single byte already buffered from the terminal's raw input.
func (t *terminalUI) PollEvent() (controller.Event, bool) {
	if t.reader.Buffered() == 0 {
		return controller.Event{}, false
	}

	b, err := t.reader.ReadByte()
	if err != nil {
		return controller.Event{}, false
	}

	t.mu.Lock()
	dialogOpen := t.dialogOpen
	cursor := t.cursor
	var lines []int
	if t.frame != nil {
		lines = t.frame.Lines()
	}
	t.mu.Unlock()

	if dialogOpen {
		if b >= '0' && b <= '9' {
			return controller.Event{Kind: controller.EventSelectCandidate, Index: int(b - '0')}, true
		}
		if b == 0x1b {
			return controller.Event{Kind: controller.EventEscape}, true
		}
		return controller.Event{}, false
	}

	switch b {
	case 'x':
		if cursor < len(lines) {
			return controller.Event{Kind: controller.EventToggleTrace, Line: lines[cursor]}, true
		}
	case '\r', '\n':
		if cursor < len(lines) {
			return controller.Event{Kind: controller.EventDescend, Line: lines[cursor]}, true
		}
	case 0x1b:
		return controller.Event{Kind: controller.EventEscape}, true
	case 'j':
		t.moveCursor(1, lines)
	case 'k':
		t.moveCursor(-1, lines)
	}

	return controller.Event{}, false
}

func (t *terminalUI) moveCursor(delta int, lines []int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(lines) == 0 {
		return
	}
	t.cursor += delta
	if t.cursor < 0 {
		t.cursor = 0
	}
	if t.cursor >= len(lines) {
		t.cursor = len(lines) - 1
	}
}

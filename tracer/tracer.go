package tracer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/cloudnepal/wachy/assert"
	"github.com/cloudnepal/wachy/binaryindex"
	"github.com/cloudnepal/wachy/disasm"
	"github.com/cloudnepal/wachy/tracestack"
	"github.com/cloudnepal/wachy/wacherr"
	"github.com/cloudnepal/wachy/wlog"
)

// dumpInterval is the periodic aggregate-dump period emitted by the
// rendered script (spec.md §6's "interval:s:1").
const dumpInterval = time.Second

// defaultRestartDebounce bounds how quickly repeated trace-stack mutations
// are allowed to spawn a new child, per original_source/src/controller.rs.
const defaultRestartDebounce = 50 * time.Millisecond

const dumpBeginMarker = "===WACHY-DUMP==="
const dumpEndMarker = "===WACHY-END==="

// LineAggregate is one line's worth of a single dump (spec.md §4.D step 4).
type LineAggregate struct {
	Count uint64
	SumNs uint64
}

// TraceData is one complete, version-tagged aggregate dump (spec.md §3).
type TraceData struct {
	Version  uint64
	Interval time.Duration
	Lines    map[int]LineAggregate
}

// Message is what the trace-data channel actually carries: either a
// TraceData or a terminal error, never both (spec.md §5).
type Message struct {
	Data *TraceData
	Err  error
}

// Tracer renders a tracing script from the current tracestack.Snapshot,
// runs it as a child process, and republishes its output as TraceData
// (spec.md §4.D).
type Tracer struct {
	// TracerPath is the external tracing tool invoked for each script,
	// analogous to uci.go's pathToEngine for the chess engine subprocess.
	TracerPath string
	BinaryPath string

	Index *binaryindex.Index
	Stack *tracestack.TraceStack

	// RestartDebounce batches rapid trace-stack mutations into a single
	// restart (SPEC_FULL.md §4.D, resolving the rapid-toggling case from
	// spec.md §8 scenario 4).
	RestartDebounce time.Duration

	// Data is the single-producer/single-consumer trace-data channel the
	// Controller drains with a try-receive.
	Data chan Message

	crit    sync.Mutex
	current *runningChild

	// restartRequested is the Tracer's own internal single-consumer
	// channel. The TraceStack's change-notification channel (spec.md §5)
	// has exactly one consumer, the Controller; the Controller forwards
	// that signal here via RequestRestart whenever its Tick observes a
	// mutation, so the Tracer's background loop never itself touches the
	// TraceStack's channel.
	restartRequested chan struct{}
}

// New constructs a Tracer. RestartDebounce defaults to 50ms if left zero.
func New(tracerPath, binaryPath string, index *binaryindex.Index, stack *tracestack.TraceStack) *Tracer {
	return &Tracer{
		TracerPath:       tracerPath,
		BinaryPath:       binaryPath,
		Index:            index,
		Stack:            stack,
		RestartDebounce:  defaultRestartDebounce,
		Data:             make(chan Message, 16),
		restartRequested: make(chan struct{}, 1),
	}
}

// RequestRestart is called by the Controller's Tick when it drains a
// mutation off the TraceStack's change channel (spec.md §4.E step 2). It
// never blocks: a restart already pending absorbs this one.
func (tr *Tracer) RequestRestart() {
	select {
	case tr.restartRequested <- struct{}{}:
	default:
	}
}

// Run is the Tracer's supervising loop: it blocks on a restart request,
// debounces a burst of them into one restart, and restarts the child
// tracing process accordingly; each child's output is read by its own
// readLoop goroutine. Run returns once ctx is cancelled or a restart fails
// (the failure is sent on Data first). A FatalError reported by a child's
// readLoop is sent on Data and does not stop Run.
func (tr *Tracer) Run(ctx context.Context) {
	defer tr.killCurrent()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tr.restartRequested:
		}

		tr.debounce(ctx)
		if ctx.Err() != nil {
			return
		}

		if err := tr.restart(ctx); err != nil {
			tr.send(Message{Err: err})
			return
		}
	}
}

func (tr *Tracer) debounce(ctx context.Context) {
	d := tr.RestartDebounce
	if d <= 0 {
		d = defaultRestartDebounce
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tr.restartRequested:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(d)
		case <-timer.C:
			return
		}
	}
}

// restart implements spec.md §4.D/§5's cancel-then-respawn protocol: kill
// and join whatever child is currently running, take a fresh snapshot,
// render its script, and spawn the replacement. At most one live child
// exists at any moment.
func (tr *Tracer) restart(ctx context.Context) error {
	tr.killCurrent()

	snap := tr.Stack.Snapshot()

	script, err := renderScript(tr.BinaryPath, tr.Index, snap)
	if err != nil {
		return err
	}

	rc, err := tr.spawn(ctx, script)
	if err != nil {
		return wacherr.Errorf(wacherr.FatalError, err)
	}

	tr.crit.Lock()
	tr.current = rc
	tr.crit.Unlock()

	go tr.readLoop(rc, snap.Version)

	return nil
}

func (tr *Tracer) killCurrent() {
	tr.crit.Lock()
	rc := tr.current
	tr.current = nil
	tr.crit.Unlock()

	if rc != nil {
		rc.killAndWait()
	}
}

func (tr *Tracer) send(msg Message) {
	tr.Data <- msg
}

// runningChild is the scoped child-process resource described in spec.md
// §9 ("a scoped resource whose destruction signals and joins"), modelled
// on uci.go's UCI type.
type runningChild struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	tail   *stderrTail

	killedMu  sync.Mutex
	killed    bool
	waitOnce  sync.Once
	waitErr   error
}

func (tr *Tracer) spawn(ctx context.Context, script string) (*runningChild, error) {
	cmd := exec.CommandContext(ctx, tr.TracerPath, "-e", script)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	tail := newStderrTail(20)

	if err := cmd.Start(); err != nil {
		return nil, err
	}

	go drainStderr(stderr, tail)

	return &runningChild{cmd: cmd, stdout: stdout, tail: tail}, nil
}

func (rc *runningChild) killAndWait() {
	rc.killedMu.Lock()
	rc.killed = true
	rc.killedMu.Unlock()

	if rc.cmd.Process != nil {
		_ = rc.cmd.Process.Kill()
	}
	rc.wait()
}

func (rc *runningChild) wait() error {
	rc.waitOnce.Do(func() {
		rc.waitErr = rc.cmd.Wait()
	})
	return rc.waitErr
}

func (rc *runningChild) wasKilled() bool {
	rc.killedMu.Lock()
	defer rc.killedMu.Unlock()
	return rc.killed
}

// readLoop is the tracer reader thread (spec.md §5): it blocks on the
// child's stdout, parses dump blocks, and emits one TraceData per complete
// dump tagged with version. A per-line parse failure discards that dump
// only (Transient, spec.md §7). A child that exits on its own (not through
// killAndWait) before ever producing a dump is FatalError; one that exits
// on its own after at least one dump ends the loop without an error.
func (tr *Tracer) readLoop(rc *runningChild, version uint64) {
	wlog.Logf(wlog.Verbose, "tracer", "reader loop for version %d running on goroutine %d", version, assert.GetGoRoutineID())

	scanner := bufio.NewScanner(rc.stdout)

	var inDump bool
	var sawAnyDump bool
	lines := make(map[int]LineAggregate)
	lastDump := time.Now()

	for scanner.Scan() {
		text := scanner.Text()

		switch {
		case text == dumpBeginMarker:
			inDump = true
			lines = make(map[int]LineAggregate)
			continue

		case text == dumpEndMarker:
			if inDump {
				now := time.Now()
				tr.send(Message{Data: &TraceData{
					Version:  version,
					Interval: now.Sub(lastDump),
					Lines:    lines,
				}})
				lastDump = now
				sawAnyDump = true
			}
			inDump = false
			continue
		}

		if !inDump {
			continue
		}

		line, agg, ok := parseDumpLine(text)
		if !ok {
			wlog.Logf(wlog.Allow, "tracer", "discarding unparseable dump line: %q", text)
			inDump = false
			continue
		}
		lines[line] = agg
	}

	rc.wait()

	if rc.wasKilled() {
		return
	}

	if !sawAnyDump {
		tr.send(Message{Err: wacherr.Errorf(wacherr.FatalError, fmt.Sprintf("child exited before producing any dump: %s", rc.tail.String()))})
	}
}

// parseDumpLine parses one "line <N> count <C> sum_ns <S>" record.
func parseDumpLine(s string) (int, LineAggregate, bool) {
	var line int
	var count, sumNs uint64
	n, err := fmt.Sscanf(s, "line %d count %d sum_ns %d", &line, &count, &sumNs)
	if err != nil || n != 3 {
		return 0, LineAggregate{}, false
	}
	return line, LineAggregate{Count: count, SumNs: sumNs}, true
}

// renderScript builds the tracing script text for snap (spec.md §6's
// grammar): one entry/return probe pair per active call site, plus a
// periodic dump of every active line's aggregate.
func renderScript(binaryPath string, index *binaryindex.Index, snap tracestack.Snapshot) (string, error) {
	sym, ok := index.Symbol(snap.Function)
	if !ok {
		return "", wacherr.Errorf(wacherr.FatalError, "current function has no symbol info")
	}

	var b strings.Builder

	for _, site := range snap.Callsites {
		entry := sym.Address + site.Instruction.RelativeOffset
		ret := entry + uint64(site.Instruction.Length)

		fmt.Fprintf(&b, "probe %s:%#x {\n", binaryPath, entry)
		b.WriteString("    @start[tid] = nsecs;\n")
		if site.Instruction.Kind == disasm.KindRegister {
			if expr, ok := registerExpr(site.Instruction.Register); ok {
				fmt.Fprintf(&b, "    @target[tid] = %s;\n", expr)
			}
		}
		b.WriteString("}\n")

		fmt.Fprintf(&b, "probe %s:%#x {\n", binaryPath, ret)
		b.WriteString("    $d = nsecs - @start[tid];\n")
		fmt.Fprintf(&b, "    @count[%d] = count();\n", site.Line)
		fmt.Fprintf(&b, "    @sum_ns[%d] = sum($d);\n", site.Line)
		b.WriteString("}\n")
	}

	fmt.Fprintf(&b, "interval:s:%d {\n", int(dumpInterval.Seconds()))
	fmt.Fprintf(&b, "    printf(\"%s\\n\");\n", dumpBeginMarker)
	for _, site := range snap.Callsites {
		fmt.Fprintf(&b, "    printf(\"line %d count %%d sum_ns %%d\\n\", @count[%d], @sum_ns[%d]);\n",
			site.Line, site.Line, site.Line)
	}
	fmt.Fprintf(&b, "    printf(\"%s\\n\");\n", dumpEndMarker)
	b.WriteString("    clear(@count); clear(@sum_ns);\n")
	b.WriteString("}\n")

	return b.String(), nil
}

// stderrTail keeps the most recent lines of a child's stderr, for
// inclusion in a FatalError message.
type stderrTail struct {
	mu    sync.Mutex
	lines []string
	cap   int
}

func newStderrTail(cap int) *stderrTail {
	return &stderrTail{cap: cap}
}

func (s *stderrTail) add(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.lines) >= s.cap {
		s.lines = s.lines[1:]
	}
	s.lines = append(s.lines, line)
}

func (s *stderrTail) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.Join(s.lines, "\n")
}

func drainStderr(r io.ReadCloser, tail *stderrTail) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		tail.add(scanner.Text())
	}
}

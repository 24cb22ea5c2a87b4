package tracestack

import (
	"testing"

	"github.com/cloudnepal/wachy/binaryindex"
	"github.com/cloudnepal/wachy/disasm"
)

func root() *disasm.FrameInfo {
	return &disasm.FrameInfo{
		Function: binaryindex.FunctionName(1),
		Mapping: map[int][]disasm.CallInstruction{
			10: {{Kind: disasm.KindDirectFunction, Target: binaryindex.FunctionName(2)}},
			20: {{Kind: disasm.KindDynamicSymbol, Target: binaryindex.FunctionName(3)}},
		},
	}
}

func TestPushPopRoot(t *testing.T) {
	ts := New(root())

	if _, ok := ts.Pop(); ok {
		t.Fatal("Pop() on a single-frame stack should fail")
	}

	child := &disasm.FrameInfo{Function: binaryindex.FunctionName(2)}
	ts.Push(child)
	if ts.Depth() != 2 {
		t.Fatalf("Depth() = %d, want 2", ts.Depth())
	}
	if got := ts.CurrentFunction(); got != binaryindex.FunctionName(2) {
		t.Fatalf("CurrentFunction() = %v, want 2", got)
	}

	popped, ok := ts.Pop()
	if !ok || popped.Function != binaryindex.FunctionName(2) {
		t.Fatalf("Pop() = %v, %v", popped, ok)
	}
	if ts.Depth() != 1 {
		t.Fatalf("Depth() after pop = %d, want 1", ts.Depth())
	}
}

func TestPushClearsActiveCallsites(t *testing.T) {
	ts := New(root())
	ts.AddCallsite(10, disasm.CallInstruction{Kind: disasm.KindDirectFunction})

	if !ts.IsActive(10) {
		t.Fatal("expected line 10 to be active")
	}

	ts.Push(&disasm.FrameInfo{Function: binaryindex.FunctionName(2)})
	if ts.IsActive(10) {
		t.Fatal("Push should clear active call sites")
	}
}

func TestAddRemoveCallsiteVersioning(t *testing.T) {
	ts := New(root())
	v0 := ts.Version()

	ts.AddCallsite(10, disasm.CallInstruction{Kind: disasm.KindDirectFunction})
	v1 := ts.Version()
	if v1 == v0 {
		t.Fatal("AddCallsite should bump version")
	}

	if removed := ts.RemoveCallsite(999); removed {
		t.Fatal("RemoveCallsite on an absent line should report false")
	}
	if ts.Version() != v1 {
		t.Fatal("a no-op RemoveCallsite should not bump version")
	}

	if removed := ts.RemoveCallsite(10); !removed {
		t.Fatal("RemoveCallsite on an active line should report true")
	}
	if ts.Version() == v1 {
		t.Fatal("RemoveCallsite that actually removed something should bump version")
	}
}

func TestSnapshotAndIsCurrent(t *testing.T) {
	ts := New(root())
	ts.AddCallsite(10, disasm.CallInstruction{Kind: disasm.KindDirectFunction})

	snap := ts.Snapshot()
	if !ts.IsCurrent(snap.Version) {
		t.Fatal("IsCurrent should hold for the version just snapshotted")
	}
	if len(snap.Callsites) != 1 || snap.Callsites[0].Line != 10 {
		t.Fatalf("unexpected snapshot callsites: %+v", snap.Callsites)
	}

	ts.AddCallsite(20, disasm.CallInstruction{Kind: disasm.KindDynamicSymbol})
	if ts.IsCurrent(snap.Version) {
		t.Fatal("IsCurrent should be false for a stale version")
	}
}

func TestChangedNotifiesWithoutBlocking(t *testing.T) {
	ts := New(root())

	ts.AddCallsite(10, disasm.CallInstruction{})
	ts.AddCallsite(20, disasm.CallInstruction{})

	select {
	case <-ts.Changed():
	default:
		t.Fatal("expected a pending notification after two mutations")
	}

	// the channel is capacity-1 so a second notification should already
	// have been coalesced; this send must not have blocked either add above
}

func TestCallsitesAt(t *testing.T) {
	ts := New(root())
	cis := ts.CallsitesAt(10)
	if len(cis) != 1 || cis[0].Kind != disasm.KindDirectFunction {
		t.Fatalf("CallsitesAt(10) = %+v", cis)
	}
	if cis := ts.CallsitesAt(999); len(cis) != 0 {
		t.Fatalf("CallsitesAt(999) = %+v, want empty", cis)
	}
}

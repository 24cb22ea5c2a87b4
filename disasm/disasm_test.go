package disasm

import (
	"debug/elf"
	"testing"

	"github.com/cloudnepal/wachy/binaryindex"
)

// buildAnalyzeFixture assembles a tiny synthetic function body exercising
// spec.md §4.B's algorithm end to end:
//
//	0x1000: call 0x2000   ; direct call, same source line as entry
//	0x1005: call 0x3000   ; direct call, but resolves to another file:
//	                      ; an inlined body, and must be dropped
//	0x100a: ret
func buildAnalyzeFixture() (idx *binaryindex.Index, entryFn binaryindex.FunctionName) {
	body := []byte{
		0xe8, 0xfb, 0x0f, 0x00, 0x00, // call rel32 -> 0x2000
		0xe8, 0xf6, 0x1f, 0x00, 0x00, // call rel32 -> 0x3000
		0xc3, // ret
	}

	idx = binaryindex.NewSynthetic(&elf.File{
		Sections: []*elf.Section{
			{SectionHeader: elf.SectionHeader{Addr: 0x1000, Size: uint64(len(body)), Offset: 0}},
		},
	}, body)

	entryFn = idx.AddSymbol("entry", binaryindex.SymbolInfo{Address: 0x1000, Size: uint64(len(body))})
	idx.AddSymbol("callee", binaryindex.SymbolInfo{Address: 0x2000})
	idx.AddSymbol("inlined_callee", binaryindex.SymbolInfo{Address: 0x3000})

	idx.AddLine(0x1000, "main.c", 5)
	idx.AddLine(0x1005, "header.h", 42)
	idx.AddEndSequence(0x100b)

	return idx, entryFn
}

func TestAnalyzeClassifiesDirectCallsAndDropsInlinedBody(t *testing.T) {
	idx, entryFn := buildAnalyzeFixture()

	frame, err := Analyze(idx, entryFn, "main.c")
	if err != nil {
		t.Fatalf("Analyze returned an error: %v", err)
	}

	if frame.EntryLine != 5 {
		t.Fatalf("EntryLine = %d, want 5", frame.EntryLine)
	}

	if frame.DroppedInlinedCalls != 1 {
		t.Fatalf("DroppedInlinedCalls = %d, want 1 (the call resolving to header.h)", frame.DroppedInlinedCalls)
	}

	calls, ok := frame.Mapping[5]
	if !ok || len(calls) != 1 {
		t.Fatalf("Mapping[5] = %+v, want exactly one surviving call instruction", calls)
	}
	if calls[0].Kind != KindDirectFunction {
		t.Fatalf("surviving call Kind = %v, want KindDirectFunction", calls[0].Kind)
	}
	if name := idx.Name(calls[0].Target); name != "callee" {
		t.Fatalf("surviving call Target = %q, want %q", name, "callee")
	}

	if lines := frame.Lines(); len(lines) != 1 || lines[0] != 5 {
		t.Fatalf("Lines() = %v, want [5]", lines)
	}
}

func TestAnalyzeFailsForDynamicSymbolWithZeroAddress(t *testing.T) {
	idx := binaryindex.NewSynthetic(&elf.File{}, nil)
	fn := idx.AddSymbol("puts", binaryindex.SymbolInfo{})

	if _, err := Analyze(idx, fn, ""); err == nil {
		t.Fatal("expected an error analyzing a symbol with address 0 (a dynamic symbol)")
	}
}

func TestAnalyzeFailsWithoutDebugInfoForEntry(t *testing.T) {
	idx := binaryindex.NewSynthetic(&elf.File{
		Sections: []*elf.Section{
			{SectionHeader: elf.SectionHeader{Addr: 0x1000, Size: 1, Offset: 0}},
		},
	}, []byte{0xc3})
	fn := idx.AddSymbol("no_debug_info", binaryindex.SymbolInfo{Address: 0x1000, Size: 1})

	if _, err := Analyze(idx, fn, ""); err == nil {
		t.Fatal("expected an error analyzing a function with no DWARF line entry at its address")
	}
}

func TestCallKindString(t *testing.T) {
	cases := map[CallKind]string{
		KindDirectFunction: "direct",
		KindDynamicSymbol:  "dynamic-symbol",
		KindRegister:       "register",
		KindUnknown:        "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Errorf("CallKind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestFrameInfoLinesSorted(t *testing.T) {
	f := &FrameInfo{
		Mapping: map[int][]CallInstruction{
			42: {{Kind: KindUnknown}},
			7:  {{Kind: KindRegister}},
			13: {{Kind: KindDirectFunction}},
		},
	}

	lines := f.Lines()
	want := []int{7, 13, 42}
	if len(lines) != len(want) {
		t.Fatalf("Lines() = %v, want %v", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("Lines() = %v, want %v", lines, want)
		}
	}
}

func TestFrameInfoLinesEmpty(t *testing.T) {
	f := &FrameInfo{Mapping: map[int][]CallInstruction{}}
	if lines := f.Lines(); len(lines) != 0 {
		t.Errorf("Lines() on empty mapping = %v, want empty", lines)
	}
}

package disasm

import (
	"sort"

	"github.com/cloudnepal/wachy/binaryindex"
	"github.com/cloudnepal/wachy/wacherr"

	"golang.org/x/arch/x86/x86asm"
)

// CallKind distinguishes the four ways a call instruction's target can
// resolve (spec.md §3 CallInstruction).
type CallKind int

const (
	// KindDirectFunction is an absolute-address call to a known local
	// symbol.
	KindDirectFunction CallKind = iota
	// KindDynamicSymbol is a call whose target is a PLT-like stub resolved
	// at load time to a named external symbol.
	KindDynamicSymbol
	// KindRegister is an indirect call via register, optionally with a
	// memory displacement.
	KindRegister
	// KindUnknown is a call whose target cannot be resolved statically.
	KindUnknown
)

func (k CallKind) String() string {
	switch k {
	case KindDirectFunction:
		return "direct"
	case KindDynamicSymbol:
		return "dynamic-symbol"
	case KindRegister:
		return "register"
	default:
		return "unknown"
	}
}

// CallInstruction is one call-class instruction found in a function's body
// (spec.md §3). Exactly one of the Kind-specific fields is meaningful for a
// given Kind.
type CallInstruction struct {
	RelativeOffset uint64 // from the owning function's start address
	Length         int    // instruction length in bytes

	Kind CallKind

	// valid when Kind == KindDirectFunction or KindDynamicSymbol
	Target binaryindex.FunctionName
	// valid when Kind == KindDynamicSymbol: the stub's own symbol info, so
	// a collaborator can still look up any debug info the stub itself has
	TargetInfo binaryindex.SymbolInfo

	// valid when Kind == KindRegister
	Register        string
	HasDisplacement bool
	Displacement    int64
}

// FrameInfo is one drill-down level: a function, its source location, and
// every surviving call instruction grouped by the source line it occurs on
// (spec.md §3). Immutable after construction.
type FrameInfo struct {
	Function   binaryindex.FunctionName
	SourceFile string
	EntryLine  int

	Mapping map[int][]CallInstruction

	// DroppedInlinedCalls counts call instructions that mapped to a
	// different source file (an inlined body from another translation
	// unit) and were dropped per spec.md §4.B step 4. Not part of the
	// core's behaviour; exposed only so an optional collaborator can
	// surface it as an informational annotation.
	DroppedInlinedCalls int
}

// Lines returns the frame's source lines with at least one surviving call
// instruction, in ascending order.
func (f *FrameInfo) Lines() []int {
	lines := make([]int, 0, len(f.Mapping))
	for l := range f.Mapping {
		lines = append(lines, l)
	}
	sort.Ints(lines)
	return lines
}

// Analyze disassembles fn's body and produces its FrameInfo (spec.md
// §4.B). entrySourceFile is the source file that owns fn; a call
// instruction whose own resolved file differs from it is treated as coming
// from an inlined body of another translation unit and dropped.
func Analyze(index *binaryindex.Index, fn binaryindex.FunctionName, entrySourceFile string) (*FrameInfo, error) {
	sym, ok := index.Symbol(fn)
	if !ok || sym.Address == 0 {
		return nil, wacherr.Errorf(wacherr.DynamicSymbolNotEnterable, index.DisplayName(fn))
	}

	loc, ok := index.AddressToSource(sym.Address)
	if !ok {
		return nil, wacherr.Errorf(wacherr.NoDebugInfoForFunction, index.DisplayName(fn))
	}

	frame := &FrameInfo{
		Function:   fn,
		SourceFile: entrySourceFile,
		EntryLine:  loc.Line,
		Mapping:    make(map[int][]CallInstruction),
	}

	body, err := functionBody(index, sym)
	if err != nil {
		return nil, err
	}

	const mode = 64
	for off := 0; off < len(body); {
		inst, derr := x86asm.Decode(body[off:], mode)
		if derr != nil || inst.Len == 0 {
			off++
			continue
		}

		if !isCallInstruction(inst) {
			off += inst.Len
			continue
		}

		addr := sym.Address + uint64(off)
		ci := classifyCall(index, inst, addr)
		ci.RelativeOffset = uint64(off)
		ci.Length = inst.Len

		callLoc, ok := index.AddressToSource(addr)
		if ok && callLoc.File != entrySourceFile {
			frame.DroppedInlinedCalls++
			off += inst.Len
			continue
		}

		line := loc.Line
		if ok {
			line = callLoc.Line
		}
		frame.Mapping[line] = append(frame.Mapping[line], ci)

		off += inst.Len
	}

	return frame, nil
}

// functionBody returns the raw bytes of sym's body, read from the main
// executable's image (never from a debug-link companion).
func functionBody(index *binaryindex.Index, sym binaryindex.SymbolInfo) ([]byte, error) {
	return index.Bytes(sym.Address, sym.Size)
}

func isCallInstruction(inst x86asm.Inst) bool {
	return inst.Op == x86asm.CALL
}

// classifyCall implements spec.md §4.B step 3's operand-based
// classification.
func classifyCall(index *binaryindex.Index, inst x86asm.Inst, addr uint64) CallInstruction {
	if len(inst.Args) == 0 {
		return CallInstruction{Kind: KindUnknown}
	}

	switch arg := inst.Args[0].(type) {
	case x86asm.Reg:
		return CallInstruction{Kind: KindRegister, Register: arg.String()}

	case x86asm.Mem:
		if arg.Base != 0 {
			return CallInstruction{
				Kind:            KindRegister,
				Register:        arg.Base.String(),
				HasDisplacement: arg.Disp != 0,
				Displacement:    arg.Disp,
			}
		}
		return CallInstruction{Kind: KindUnknown}

	case x86asm.Rel:
		target := addr + uint64(inst.Len) + uint64(int64(arg))
		return resolveDirectTarget(index, target)

	case x86asm.Imm:
		return resolveDirectTarget(index, uint64(arg))

	default:
		return CallInstruction{Kind: KindUnknown}
	}
}

func resolveDirectTarget(index *binaryindex.Index, target uint64) CallInstruction {
	if index.InDynamicStub(target) {
		if fn, ok := index.AddressToFunction(target); ok {
			info, _ := index.Symbol(fn)
			return CallInstruction{Kind: KindDynamicSymbol, Target: fn, TargetInfo: info}
		}
	}
	if fn, ok := index.AddressToFunction(target); ok {
		return CallInstruction{Kind: KindDirectFunction, Target: fn}
	}
	return CallInstruction{Kind: KindUnknown}
}

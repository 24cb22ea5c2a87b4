package tracer

import "strings"

// registerArgument maps a System V AMD64 ABI general-purpose register name
// (as disasm.CallInstruction.Register records it, e.g. "RAX") to the
// bpftrace-style argument name a tracing script can read it back as. This
// is the open question spec.md §9 flags as a TODO in the source ("the
// register-name-to-tracer-register mapping... may require per-architecture
// calibration"); SPEC_FULL.md §9 resolves it to this static table rather
// than leaving the mapping unimplemented.
var registerArgument = map[string]string{
	"RAX": "reg(\"ax\")",
	"RBX": "reg(\"bx\")",
	"RCX": "reg(\"cx\")",
	"RDX": "reg(\"dx\")",
	"RSI": "reg(\"si\")",
	"RDI": "reg(\"di\")",
	"RBP": "reg(\"bp\")",
	"RSP": "reg(\"sp\")",
	"R8":  "reg(\"r8\")",
	"R9":  "reg(\"r9\")",
	"R10": "reg(\"r10\")",
	"R11": "reg(\"r11\")",
	"R12": "reg(\"r12\")",
	"R13": "reg(\"r13\")",
	"R14": "reg(\"r14\")",
	"R15": "reg(\"r15\")",
}

// registerExpr resolves reg to the tracing-script expression that reads it,
// widening any sub-register name (EAX, AX, AL, ...) to its 64-bit parent
// first. Returns false if the register has no known mapping.
func registerExpr(reg string) (string, bool) {
	expr, ok := registerArgument[widenToParent(reg)]
	return expr, ok
}

// widenToParent maps a partial-width register name to its 64-bit parent, so
// "EAX"/"AX"/"AL" all resolve through the same table entry as "RAX".
func widenToParent(reg string) string {
	reg = strings.ToUpper(reg)
	if _, ok := registerArgument[reg]; ok {
		return reg
	}

	subToParent := map[string]string{
		"EAX": "RAX", "AX": "RAX", "AL": "RAX", "AH": "RAX",
		"EBX": "RBX", "BX": "RBX", "BL": "RBX", "BH": "RBX",
		"ECX": "RCX", "CX": "RCX", "CL": "RCX", "CH": "RCX",
		"EDX": "RDX", "DX": "RDX", "DL": "RDX", "DH": "RDX",
		"ESI": "RSI", "SI": "RSI", "SIL": "RSI",
		"EDI": "RDI", "DI": "RDI", "DIL": "RDI",
		"EBP": "RBP", "BP": "RBP", "BPL": "RBP",
		"ESP": "RSP", "SP": "RSP", "SPL": "RSP",
		"R8D": "R8", "R8W": "R8", "R8B": "R8",
		"R9D": "R9", "R9W": "R9", "R9B": "R9",
		"R10D": "R10", "R10W": "R10", "R10B": "R10",
		"R11D": "R11", "R11W": "R11", "R11B": "R11",
		"R12D": "R12", "R12W": "R12", "R12B": "R12",
		"R13D": "R13", "R13W": "R13", "R13B": "R13",
		"R14D": "R14", "R14W": "R14", "R14B": "R14",
		"R15D": "R15", "R15W": "R15", "R15B": "R15",
	}
	if parent, ok := subToParent[reg]; ok {
		return parent
	}
	return reg
}

package binaryindex

import "debug/elf"

// NewSynthetic constructs an Index directly from already-decoded
// components, bypassing Load's file I/O and ELF/DWARF parsing. It exists
// so other packages' tests (disasm's Analyze, in particular) can exercise
// the real lookup and classification logic against a small, controlled
// fixture instead of requiring a real binary mmapped from disk.
func NewSynthetic(mainELF *elf.File, image []byte) *Index {
	return &Index{
		names:     newNameTable(),
		symbols:   make(map[FunctionName]SymbolInfo),
		byAddress: make(map[uint64]FunctionName),
		dynStubs:  make(map[uint64]FunctionName),
		versioned: make(map[string]string),
		mainELF:   mainELF,
		mainImage: &mappedFile{data: image},
	}
}

// AddSymbol registers a symbol directly, the way buildSymbolTable would
// from a real symbol table entry.
func (idx *Index) AddSymbol(name string, info SymbolInfo) FunctionName {
	fn := idx.names.intern(name)
	info.Name = fn
	idx.symbols[fn] = info
	if info.Address != 0 {
		idx.byAddress[info.Address] = fn
	}
	return fn
}

// AddDynamicRange marks [start, end) as occupied by a PLT-like stub
// section, the way buildDynamicStubs would from a real .plt section.
func (idx *Index) AddDynamicRange(start, end uint64) {
	idx.dynRanges = append(idx.dynRanges, addrRange{start: start, end: end})
}

// AddDynamicStub registers addr as a jump-instruction address resolving to
// fn, the way scanPLTSection would from a real relocation match.
func (idx *Index) AddDynamicStub(addr uint64, fn FunctionName) {
	idx.dynStubs[addr] = fn
}

// AddLine appends one row to the address-sorted source-line table, the way
// buildLineTable would from a real DWARF line program. Callers must add
// entries in ascending address order.
func (idx *Index) AddLine(addr uint64, file string, line int) {
	idx.lines = append(idx.lines, lineEntry{addr: addr, file: file, line: line})
}

// AddEndSequence appends an end-of-sequence marker at addr: no code maps
// to addr or beyond until the next AddLine entry.
func (idx *Index) AddEndSequence(addr uint64) {
	idx.lines = append(idx.lines, lineEntry{addr: addr, end: true})
}

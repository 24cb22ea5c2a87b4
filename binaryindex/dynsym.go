package binaryindex

import (
	"debug/elf"
	"encoding/binary"

	"golang.org/x/arch/x86/x86asm"
)

// elf64Rela mirrors the on-disk Elf64_Rela layout: Offset, Info, Addend,
// each a little-endian 8-byte field. debug/elf does not expose relocations
// for PLT stubs directly, so these are read straight out of the section,
// the same way the teacher's coprocessor/developer/relocate.go walks a
// relocation table by hand.
type elf64Rela struct {
	Offset uint64
	Info   uint64
	Addend int64
}

// buildDynamicStubs resolves each PLT-style call stub to the dynamic symbol
// it ultimately jumps to (spec.md §4.A "a call into a PLT stub must resolve
// to the dynamic symbol it targets, not to the PLT stub's own nameless
// address"). It is a best-effort pass: a binary with no .rela.plt, or a PLT
// section whose layout x86asm cannot make sense of, simply yields no
// dynamic stubs rather than failing Load.
func (idx *Index) buildDynamicStubs() error {
	relocs, err := idx.parsePLTRelocations()
	if err != nil || len(relocs) == 0 {
		return nil
	}

	for _, secName := range []string{".plt", ".plt.sec", ".plt.got"} {
		sec := idx.mainELF.Section(secName)
		if sec == nil {
			continue
		}
		idx.scanPLTSection(sec, relocs)
	}

	return nil
}

// parsePLTRelocations reads .rela.plt (the table associating each PLT slot
// with the dynamic symbol it resolves to at runtime) and returns a map from
// the relocation's GOT offset to the symbol name.
func (idx *Index) parsePLTRelocations() (map[uint64]string, error) {
	sec := idx.mainELF.Section(".rela.plt")
	if sec == nil {
		return nil, nil
	}

	data, err := sec.Data()
	if err != nil {
		return nil, err
	}

	dynSyms, err := idx.mainELF.DynamicSymbols()
	if err != nil {
		return nil, err
	}

	const entrySize = 24
	relocs := make(map[uint64]string, len(data)/entrySize)

	for off := 0; off+entrySize <= len(data); off += entrySize {
		var r elf64Rela
		r.Offset = binary.LittleEndian.Uint64(data[off:])
		r.Info = binary.LittleEndian.Uint64(data[off+8:])
		r.Addend = int64(binary.LittleEndian.Uint64(data[off+16:]))

		symIdx := r.Info >> 32
		if symIdx == 0 || int(symIdx) > len(dynSyms) {
			continue
		}
		sym := dynSyms[symIdx-1]
		if sym.Name == "" {
			continue
		}
		relocs[r.Offset] = sym.Name
	}

	return relocs, nil
}

// scanPLTSection disassembles a PLT-like section instruction by instruction
// looking for indirect jumps through the GOT, and registers a dynStubs
// entry for each one that resolves to a known relocation. PLT0 (the
// resolver stub) and any jump whose target cannot be matched to a
// relocation are silently skipped, per spec.md's note that an unresolved
// indirect jump inside a stub section is not itself an error.
func (idx *Index) scanPLTSection(sec *elf.Section, relocs map[uint64]string) {
	data, err := sec.Data()
	if err != nil {
		return
	}

	mode := 64
	base := sec.Addr
	idx.dynRanges = append(idx.dynRanges, addrRange{start: base, end: base + uint64(len(data))})

	for off := 0; off < len(data); {
		inst, err := x86asm.Decode(data[off:], mode)
		if err != nil || inst.Len == 0 {
			off++
			continue
		}

		instAddr := base + uint64(off)
		if inst.Op == x86asm.JMP {
			if target, ok := resolveJumpTarget(inst, instAddr); ok {
				if name, ok := relocs[target]; ok {
					name = resolveVersionedName(idx.versioned, name)
					fn := idx.names.intern(name)
					idx.dynStubs[instAddr] = fn
					if _, exists := idx.symbols[fn]; !exists {
						idx.symbols[fn] = SymbolInfo{
							Name:      fn,
							Demangled: idx.demangle(name),
						}
					}
				}
			}
		}

		off += inst.Len
	}
}

// resolveVersionedName rewrites name to its registered "name@@version" form
// (spec.md §4.A step 2's versioned-symbol rewrite), if the dynamic symbol
// table enumeration recorded one for it. A PLT relocation's symbol name is
// always the bare, unversioned form, but the dynamic-symbol-table entry for
// the same runtime symbol is often recorded as "name@@version" — without
// this rewrite the two would intern to different FunctionName handles for
// what is, at runtime, a single symbol.
func resolveVersionedName(versioned map[string]string, name string) string {
	if v, ok := versioned[name]; ok {
		return v
	}
	return name
}

// resolveJumpTarget computes the absolute GOT address an indirect "jmp
// *disp(%rip)" (PIE) or "jmp *addr" (non-PIE) instruction reads through, so
// it can be matched against a relocation's offset. A direct near jump (as
// PLT0 often contains) yields its branch target, which points back into
// the PLT and so matches no relocation. Any other jump shape (through a
// register, or through memory addressed by a register other than RIP) is
// reported as unresolved rather than guessed at.
func resolveJumpTarget(inst x86asm.Inst, addr uint64) (uint64, bool) {
	if len(inst.Args) == 0 {
		return 0, false
	}

	switch arg := inst.Args[0].(type) {
	case x86asm.Mem:
		if arg.Base == x86asm.RIP {
			return addr + uint64(inst.Len) + uint64(arg.Disp), true
		}
		if arg.Base == 0 && arg.Index == 0 {
			return uint64(arg.Disp), true
		}
	case x86asm.Rel:
		return addr + uint64(inst.Len) + uint64(int64(arg)), true
	}

	return 0, false
}

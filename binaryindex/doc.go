// Package binaryindex is the binary introspection layer (component A):
// it loads a native ELF executable, enumerates its text symbols, builds
// address<->name maps, resolves dynamic-symbol (PLT) stubs via the
// relocation table plus a disassembly of the PLT section, and serves
// address-to-source-line lookups backed by DWARF debug-line data.
//
// The executable is mapped into memory once at Load() and treated as a
// single owned byte arena (grounded on the teacher's coprocessor ELF/DWARF
// loading in coprocessor/developer/dwarf.go): every string this package
// hands out (symbol names, file paths) is copied out of the mapping rather
// than returned as a slice into it, so the mapping can be released without
// leaving dangling references.
package binaryindex

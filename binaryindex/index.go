package binaryindex

import (
	"debug/dwarf"
	"debug/elf"
	"fmt"
	"os"
	"sort"

	"github.com/cloudnepal/wachy/wacherr"
	"github.com/cloudnepal/wachy/wlog"
)

// SymbolInfo describes a single text symbol as recorded at load time. It is
// immutable once built. Address 0 marks a dynamically linked (undefined)
// symbol, per spec.md's invariant that every DynamicSymbol variant resolves
// to a SymbolInfo with Address == 0 and Size == 0.
type SymbolInfo struct {
	Name       FunctionName
	Demangled  string // empty if no demangler configured, or demangling failed
	Section    string
	Address    uint64
	Size       uint64
}

// SourceLocation is a file/line pair. Both fields are always populated: a
// lookup that cannot determine both returns (SourceLocation{}, false)
// instead.
type SourceLocation struct {
	File string
	Line int
}

// Demangler turns a raw (possibly mangled) symbol name into a
// human-readable display form. It is supplied by the caller: demangling
// itself is explicitly out of scope for this module (spec.md §1).
type Demangler func(string) string

// Index is the binary introspection layer (component A). It owns the
// memory-mapped executable (and, if present, its debug-info companion) for
// the lifetime of the session and is read-only and freely shareable once
// Load returns.
type Index struct {
	path string

	mainImage *mappedFile
	debugImage *mappedFile // == mainImage unless a debug-link companion was loaded

	mainELF  *elf.File
	debugELF *elf.File // where symbols/DWARF are actually read from

	dwarfData *dwarf.Data

	names *nameTable

	// local text symbols, keyed by FunctionName
	symbols map[FunctionName]SymbolInfo

	// address -> FunctionName, for symbols with a non-zero address
	byAddress map[uint64]FunctionName

	// versioned-symbol rewrite: unversioned prefix -> full "name@@version"
	versioned map[string]string

	// dynamic-stub resolution, built once at load (see dynsym.go)
	dynStubs  map[uint64]FunctionName // PLT jump-instruction address -> resolved external name
	dynRanges []addrRange             // address ranges occupied by PLT-like stub sections

	// address-sorted DWARF line table (see lines.go)
	lines []lineEntry

	demangler Demangler
}

type addrRange struct {
	start, end uint64 // [start, end)
}

func (r addrRange) contains(addr uint64) bool {
	return addr >= r.start && addr < r.end
}

// SetDemangler installs the function used to compute SymbolInfo.Demangled
// for symbols registered after this call. Existing entries are not
// recomputed. Load creates the Index and registers every symbol before it
// returns, so symbols loaded by Load have an empty Demangled field.
func (idx *Index) SetDemangler(d Demangler) {
	idx.demangler = d
}

// Load opens path, memory-maps it, and builds the full symbol/relocation/
// debug-line index. It fails with a wacherr-kind error from §7 if the file
// cannot be opened, parsed, or lacks usable debug info.
func Load(path string) (*Index, error) {
	idx := &Index{
		path:      path,
		names:     newNameTable(),
		symbols:   make(map[FunctionName]SymbolInfo),
		byAddress: make(map[uint64]FunctionName),
		versioned: make(map[string]string),
		dynStubs:  make(map[uint64]FunctionName),
	}

	mf, err := openMapped(path)
	if err != nil {
		return nil, wacherr.Errorf(wacherr.BinaryOpenFailed, err)
	}
	idx.mainImage = mf

	ef, err := elf.NewFile(mf.reader())
	if err != nil {
		return nil, wacherr.Errorf(wacherr.BinaryParseFailed, err)
	}
	idx.mainELF = ef
	idx.debugELF = ef
	idx.debugImage = mf

	wlog.Log(wlog.Verbose, "binaryindex", fmt.Sprintf("loaded %s (%d bytes)", path, len(mf.data)))

	if err := idx.resolveDebugInfo(); err != nil {
		return nil, err
	}

	if err := idx.buildSymbolTable(); err != nil {
		return nil, err
	}

	if err := idx.buildLineTable(); err != nil {
		return nil, err
	}

	if err := idx.buildDynamicStubs(); err != nil {
		return nil, err
	}

	return idx, nil
}

// resolveDebugInfo finds .debug_line/DWARF data, either directly in the
// executable or via a validated debug-link companion (debuglink.go),
// failing with MissingDebugInfo if neither is available.
func (idx *Index) resolveDebugInfo() error {
	if idx.mainELF.Section(".debug_line") != nil {
		d, err := idx.mainELF.DWARF()
		if err == nil {
			idx.dwarfData = d
			return nil
		}
		wlog.Logf(wlog.Verbose, "binaryindex", "debug_line present but DWARF() failed: %v", err)
	}

	companionELF, companionImage, err := idx.loadDebugLinkCompanion()
	if err != nil {
		return err
	}
	if companionELF == nil {
		return wacherr.Errorf(wacherr.MissingDebugInfo, idx.path)
	}

	d, err := companionELF.DWARF()
	if err != nil {
		return wacherr.Errorf(wacherr.MissingDebugInfo, err)
	}

	idx.debugELF = companionELF
	idx.debugImage = companionImage
	idx.dwarfData = d
	return nil
}

// buildSymbolTable enumerates text symbols, preferring the executable's own
// symbol table and falling back to the debug companion's (spec.md §4.A).
func (idx *Index) buildSymbolTable() error {
	syms, err := idx.mainELF.Symbols()
	if err != nil || len(syms) == 0 {
		wlog.Log(wlog.Verbose, "binaryindex", "executable symbol table empty or stripped, trying debug companion")
		syms, err = idx.debugELF.Symbols()
		if err != nil {
			syms = nil
		}
	}

	// candidates for the same address, for the alias tie-break in resolveAliases
	byAddrCandidates := make(map[uint64][]aliasCandidate)

	register := func(name string, info SymbolInfo, bind elf.SymBind) {
		if addr := info.Address; addr != 0 {
			byAddrCandidates[addr] = append(byAddrCandidates[addr], aliasCandidate{info: info, bind: bind})
		} else {
			fn := idx.names.intern(name)
			info.Name = fn
			idx.symbols[fn] = info
		}
		if prefix, versioned, ok := splitVersioned(name); ok {
			idx.versioned[prefix] = versioned
		}
	}

	for _, s := range syms {
		if elf.ST_TYPE(s.Info) != elf.STT_FUNC {
			continue
		}
		if s.Name == "" {
			continue
		}

		section := ""
		if int(s.Section) < len(idx.mainELF.Sections) && s.Section != elf.SHN_UNDEF {
			section = idx.mainELF.Sections[s.Section].Name
		}

		fn := idx.names.intern(s.Name)
		register(s.Name, SymbolInfo{
			Name:      fn,
			Demangled: idx.demangle(s.Name),
			Section:   section,
			Address:   s.Value,
			Size:      s.Size,
		}, elf.ST_BIND(s.Info))
	}

	// dynamic symbol table: this is where address-0 (undefined) PLT targets
	// get their SymbolInfo, satisfying the invariant that a DynamicSymbol's
	// FunctionName always resolves with address==0, size==0
	dynSyms, err := idx.mainELF.DynamicSymbols()
	if err == nil {
		for _, s := range dynSyms {
			if elf.ST_TYPE(s.Info) != elf.STT_FUNC || s.Name == "" {
				continue
			}
			fn := idx.names.intern(s.Name)
			if _, exists := idx.symbols[fn]; !exists {
				idx.symbols[fn] = SymbolInfo{
					Name:      fn,
					Demangled: idx.demangle(s.Name),
					Address:   s.Value,
					Size:      s.Size,
				}
			}
			if prefix, versioned, ok := splitVersioned(s.Name); ok {
				idx.versioned[prefix] = versioned
			}
		}
	}

	idx.resolveAliases(byAddrCandidates)
	return nil
}

// aliasCandidate pairs a SymbolInfo with its ELF binding, so resolveAliases
// can prefer a global definition over a local one.
type aliasCandidate struct {
	info SymbolInfo
	bind elf.SymBind
}

// resolveAliases picks a single FunctionName per address when more than one
// symbol aliases it (spec.md §9 open question): prefer a GLOBAL/WEAK bound
// symbol over a LOCAL one, then the lexicographically first name.
func (idx *Index) resolveAliases(byAddr map[uint64][]aliasCandidate) {
	rank := func(b elf.SymBind) int {
		if b == elf.STB_LOCAL {
			return 1
		}
		return 0
	}

	for addr, candidates := range byAddr {
		sort.Slice(candidates, func(i, j int) bool {
			ri, rj := rank(candidates[i].bind), rank(candidates[j].bind)
			if ri != rj {
				return ri < rj
			}
			return idx.names.raw(candidates[i].info.Name) < idx.names.raw(candidates[j].info.Name)
		})
		chosen := candidates[0].info
		idx.symbols[chosen.Name] = chosen
		idx.byAddress[addr] = chosen.Name
	}
}

func (idx *Index) demangle(name string) string {
	if idx.demangler == nil {
		return ""
	}
	return idx.demangler(name)
}

// splitVersioned recognises the "name@@version" form recorded while
// enumerating symbols (spec.md §4.A): it returns the unversioned prefix and
// the full versioned name.
func splitVersioned(name string) (prefix, full string, ok bool) {
	for i := 0; i+1 < len(name); i++ {
		if name[i] == '@' && name[i+1] == '@' {
			return name[:i], name, true
		}
	}
	return "", "", false
}

// Symbol returns the SymbolInfo for fn.
func (idx *Index) Symbol(fn FunctionName) (SymbolInfo, bool) {
	s, ok := idx.symbols[fn]
	return s, ok
}

// Name returns the raw (possibly mangled) string for fn.
func (idx *Index) Name(fn FunctionName) string {
	return idx.names.raw(fn)
}

// DisplayName returns the demangled form for fn if one was computed, else
// the raw name.
func (idx *Index) DisplayName(fn FunctionName) string {
	if s, ok := idx.symbols[fn]; ok && s.Demangled != "" {
		return s.Demangled
	}
	return idx.Name(fn)
}

// FindUniqueFunction resolves a user-supplied name (as matched against the
// demangled symbol table per spec.md §6) to exactly one FunctionName,
// failing with NoMatchingFunction if zero or more than one symbol matches.
func (idx *Index) FindUniqueFunction(query string) (FunctionName, error) {
	var matches []FunctionName
	for fn, s := range idx.symbols {
		if idx.Name(fn) == query || (s.Demangled != "" && s.Demangled == query) {
			matches = append(matches, fn)
		}
	}
	if len(matches) != 1 {
		return invalidName, wacherr.Errorf(wacherr.NoMatchingFunction, query)
	}
	return matches[0], nil
}

// AddressToFunction classifies addr by first checking the dynamic-stub map,
// then the local text-symbol map (spec.md §4.A).
func (idx *Index) AddressToFunction(addr uint64) (FunctionName, bool) {
	if fn, ok := idx.dynStubs[addr]; ok {
		return fn, true
	}
	fn, ok := idx.byAddress[addr]
	return fn, ok
}

// InDynamicStub reports whether addr falls within a PLT-like dynamic call
// stub's address range.
func (idx *Index) InDynamicStub(addr uint64) bool {
	for _, r := range idx.dynRanges {
		if r.contains(addr) {
			return true
		}
	}
	return false
}

// Bytes returns the size bytes of the executable's image starting at
// virtual address addr, resolving addr to a file offset via whichever ELF
// section contains it. Used by the function analyzer to read a function's
// raw instruction bytes for disassembly. The bytes are a copy, not a view
// into the mapping.
func (idx *Index) Bytes(addr, size uint64) ([]byte, error) {
	for _, sec := range idx.mainELF.Sections {
		if sec.Addr == 0 || addr < sec.Addr || addr >= sec.Addr+sec.Size {
			continue
		}
		start := sec.Offset + (addr - sec.Addr)
		end := start + size
		if end > uint64(len(idx.mainImage.data)) {
			return nil, wacherr.Errorf(wacherr.BinaryParseFailed, "function body runs past end of file")
		}
		out := make([]byte, size)
		copy(out, idx.mainImage.data[start:end])
		return out, nil
	}
	return nil, wacherr.Errorf(wacherr.BinaryParseFailed, "no section contains address")
}

// Close releases the memory-mapped file(s) backing this index.
func (idx *Index) Close() error {
	var err error
	if idx.mainImage != nil {
		err = idx.mainImage.Close()
	}
	if idx.debugImage != nil && idx.debugImage != idx.mainImage {
		if e := idx.debugImage.Close(); e != nil && err == nil {
			err = e
		}
	}
	return err
}

// fileExists is a tiny helper shared by debuglink.go.
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

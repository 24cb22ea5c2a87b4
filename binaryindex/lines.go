package binaryindex

import (
	"debug/dwarf"
	"io"
	"sort"
)

// lineEntry is one row of the flattened, address-sorted view of every
// compile unit's DWARF line program.
type lineEntry struct {
	addr uint64
	file string
	line int
	end  bool // true for an end-of-sequence marker: no code maps here onward
}

// buildLineTable flattens every compile unit's line program into a single
// address-sorted slice, so AddressToSource can binary-search it. This is
// the same debug/dwarf plumbing the teacher's coprocessor/developer/dwarf.go
// uses for the ARM coprocessor's ELF, applied here to the session's
// top-level native binary.
func (idx *Index) buildLineTable() error {
	r := idx.dwarfData.Reader()
	for {
		entry, err := r.Next()
		if err != nil {
			return err
		}
		if entry == nil {
			break
		}
		if entry.Tag != dwarf.TagCompileUnit {
			r.SkipChildren()
			continue
		}

		lr, err := idx.dwarfData.LineReader(entry)
		if err != nil || lr == nil {
			r.SkipChildren()
			continue
		}

		var le dwarf.LineEntry
		for {
			if err := lr.Next(&le); err != nil {
				if err == io.EOF {
					break
				}
				break
			}
			if le.EndSequence {
				idx.lines = append(idx.lines, lineEntry{addr: le.Address, end: true})
				continue
			}
			file := ""
			if le.File != nil {
				file = le.File.Name
			}
			idx.lines = append(idx.lines, lineEntry{addr: le.Address, file: file, line: le.Line})
		}

		r.SkipChildren()
	}

	sort.Slice(idx.lines, func(i, j int) bool {
		return idx.lines[i].addr < idx.lines[j].addr
	})

	return nil
}

// AddressToSource returns the SourceLocation for addr, if the debug-line
// data has both a file and a line number for it (spec.md §4.A). On a miss
// it returns a zero-value, false pair; it never panics on an out-of-range
// address.
func (idx *Index) AddressToSource(addr uint64) (SourceLocation, bool) {
	if len(idx.lines) == 0 {
		return SourceLocation{}, false
	}

	// find the last entry with addr' <= addr
	i := sort.Search(len(idx.lines), func(i int) bool {
		return idx.lines[i].addr > addr
	})
	if i == 0 {
		return SourceLocation{}, false
	}
	e := idx.lines[i-1]
	if e.end || e.file == "" || e.line <= 0 {
		return SourceLocation{}, false
	}
	return SourceLocation{File: e.file, Line: e.line}, true
}

package binaryindex

import "testing"

// newTestIndex builds an Index with only the fields AddressToSource needs,
// bypassing Load (and therefore the need for a real mmapped ELF).
func newTestIndex() *Index {
	return &Index{names: newNameTable()}
}

func TestAddressToSourceFindsEnclosingLine(t *testing.T) {
	idx := newTestIndex()
	idx.lines = []lineEntry{
		{addr: 0x1000, file: "main.c", line: 10},
		{addr: 0x1010, file: "main.c", line: 11},
		{addr: 0x1020, file: "main.c", line: 12},
		{addr: 0x1030, end: true},
	}

	loc, ok := idx.AddressToSource(0x1015)
	if !ok {
		t.Fatal("expected a match for an address inside the line table's range")
	}
	if loc.File != "main.c" || loc.Line != 11 {
		t.Fatalf("got %+v, want file=main.c line=11", loc)
	}
}

func TestAddressToSourceExactMatch(t *testing.T) {
	idx := newTestIndex()
	idx.lines = []lineEntry{
		{addr: 0x1000, file: "main.c", line: 10},
		{addr: 0x1010, end: true},
	}

	loc, ok := idx.AddressToSource(0x1000)
	if !ok || loc.Line != 10 {
		t.Fatalf("got (%+v, %v), want (Line:10, true)", loc, ok)
	}
}

func TestAddressToSourceBeforeFirstEntry(t *testing.T) {
	idx := newTestIndex()
	idx.lines = []lineEntry{
		{addr: 0x1000, file: "main.c", line: 10},
	}

	if _, ok := idx.AddressToSource(0x0fff); ok {
		t.Fatal("expected no match for an address before the first recorded entry")
	}
}

func TestAddressToSourcePastEndSequenceMarker(t *testing.T) {
	idx := newTestIndex()
	idx.lines = []lineEntry{
		{addr: 0x1000, file: "main.c", line: 10},
		{addr: 0x1010, end: true},
	}

	// an address past the end-of-sequence marker has no enclosing line
	if _, ok := idx.AddressToSource(0x1020); ok {
		t.Fatal("expected no match past an end-of-sequence marker")
	}
}

func TestAddressToSourceEmptyLineTable(t *testing.T) {
	idx := newTestIndex()
	if _, ok := idx.AddressToSource(0x1000); ok {
		t.Fatal("expected no match when no line table has been built")
	}
}

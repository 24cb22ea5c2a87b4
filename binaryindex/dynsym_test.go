package binaryindex

import "testing"

func TestResolveVersionedNameRewritesWhenRegistered(t *testing.T) {
	versioned := map[string]string{"memcpy": "memcpy@@GLIBC_2.14"}

	got := resolveVersionedName(versioned, "memcpy")
	if got != "memcpy@@GLIBC_2.14" {
		t.Fatalf("got %q, want %q", got, "memcpy@@GLIBC_2.14")
	}
}

func TestResolveVersionedNameLeavesUnversionedNameAlone(t *testing.T) {
	versioned := map[string]string{"memcpy": "memcpy@@GLIBC_2.14"}

	got := resolveVersionedName(versioned, "puts")
	if got != "puts" {
		t.Fatalf("got %q, want %q (unchanged)", got, "puts")
	}
}

// TestPLTRelocationNameInternsToVersionedForm repeats the rewrite-then-intern
// sequence scanPLTSection applies to each matched relocation (without
// calling scanPLTSection, which needs a real ELF section): a PLT relocation
// resolving to a bare name must intern to the same FunctionName already
// registered for that symbol's "name@@version" form, not a second, distinct
// handle.
func TestPLTRelocationNameInternsToVersionedForm(t *testing.T) {
	idx := newTestIndex()
	idx.symbols = make(map[FunctionName]SymbolInfo)
	idx.dynStubs = make(map[uint64]FunctionName)
	idx.versioned = map[string]string{"memcpy": "memcpy@@GLIBC_2.14"}

	// simulate the dynamic-symbol-table entry already having been
	// registered under its versioned form, as buildSymbolTable does
	versionedFn := idx.names.intern("memcpy@@GLIBC_2.14")
	idx.symbols[versionedFn] = SymbolInfo{Name: versionedFn}

	relocs := map[uint64]string{0x4000: "memcpy"}

	name := resolveVersionedName(idx.versioned, relocs[0x4000])
	fn := idx.names.intern(name)

	if fn != versionedFn {
		t.Fatalf("PLT relocation for a versioned symbol interned to a different FunctionName (%v) than the dynamic-symbol-table entry (%v)", fn, versionedFn)
	}
}

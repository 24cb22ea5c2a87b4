package binaryindex

import (
	"debug/elf"
	"testing"
)

func TestSplitVersioned(t *testing.T) {
	prefix, full, ok := splitVersioned("memcpy@@GLIBC_2.14")
	if !ok || prefix != "memcpy" || full != "memcpy@@GLIBC_2.14" {
		t.Fatalf("got (%q, %q, %v), want (%q, %q, true)", prefix, full, ok, "memcpy", "memcpy@@GLIBC_2.14")
	}
}

func TestSplitVersionedNoVersion(t *testing.T) {
	if _, _, ok := splitVersioned("puts"); ok {
		t.Fatal("expected no version split for an unversioned name")
	}
}

func TestResolveAliasesPrefersGlobalOverLocal(t *testing.T) {
	idx := newTestIndex()
	idx.symbols = make(map[FunctionName]SymbolInfo)
	idx.byAddress = make(map[uint64]FunctionName)

	localFn := idx.names.intern("local_alias")
	globalFn := idx.names.intern("global_alias")

	byAddr := map[uint64][]aliasCandidate{
		0x1000: {
			{info: SymbolInfo{Name: localFn, Address: 0x1000}, bind: elf.STB_LOCAL},
			{info: SymbolInfo{Name: globalFn, Address: 0x1000}, bind: elf.STB_GLOBAL},
		},
	}

	idx.resolveAliases(byAddr)

	got, ok := idx.byAddress[0x1000]
	if !ok || got != globalFn {
		t.Fatalf("byAddress[0x1000] = (%v, %v), want (%v, true): expected global binding to win over local", got, ok, globalFn)
	}
}

func TestResolveAliasesTieBreaksLexicographically(t *testing.T) {
	idx := newTestIndex()
	idx.symbols = make(map[FunctionName]SymbolInfo)
	idx.byAddress = make(map[uint64]FunctionName)

	bFn := idx.names.intern("bbb")
	aFn := idx.names.intern("aaa")

	byAddr := map[uint64][]aliasCandidate{
		0x2000: {
			{info: SymbolInfo{Name: bFn, Address: 0x2000}, bind: elf.STB_GLOBAL},
			{info: SymbolInfo{Name: aFn, Address: 0x2000}, bind: elf.STB_GLOBAL},
		},
	}

	idx.resolveAliases(byAddr)

	got := idx.byAddress[0x2000]
	if got != aFn {
		t.Fatalf("expected the lexicographically first name (%v) to win a same-binding tie, got %v", aFn, got)
	}
}

func TestFindUniqueFunctionRequiresExactlyOneMatch(t *testing.T) {
	idx := newTestIndex()
	idx.symbols = make(map[FunctionName]SymbolInfo)

	fn := idx.names.intern("main")
	idx.symbols[fn] = SymbolInfo{Name: fn}

	got, err := idx.FindUniqueFunction("main")
	if err != nil || got != fn {
		t.Fatalf("FindUniqueFunction(main) = (%v, %v), want (%v, nil)", got, err, fn)
	}

	if _, err := idx.FindUniqueFunction("nonexistent"); err == nil {
		t.Fatal("expected an error for a name with zero matches")
	}
}

func TestFindUniqueFunctionAmbiguousDemangledName(t *testing.T) {
	idx := newTestIndex()
	idx.symbols = make(map[FunctionName]SymbolInfo)

	a := idx.names.intern("_Z3fooi")
	b := idx.names.intern("_Z3foof")
	idx.symbols[a] = SymbolInfo{Name: a, Demangled: "foo"}
	idx.symbols[b] = SymbolInfo{Name: b, Demangled: "foo"}

	if _, err := idx.FindUniqueFunction("foo"); err == nil {
		t.Fatal("expected an error when a demangled name matches more than one symbol")
	}
}

func TestAddressToFunctionPrefersDynamicStub(t *testing.T) {
	idx := newTestIndex()
	idx.byAddress = make(map[uint64]FunctionName)
	idx.dynStubs = make(map[uint64]FunctionName)

	localFn := idx.names.intern("local")
	stubFn := idx.names.intern("puts")

	idx.byAddress[0x1000] = localFn
	idx.dynStubs[0x1000] = stubFn

	got, ok := idx.AddressToFunction(0x1000)
	if !ok || got != stubFn {
		t.Fatalf("expected dynamic-stub mapping to take priority, got (%v, %v)", got, ok)
	}
}

func TestInDynamicStub(t *testing.T) {
	idx := newTestIndex()
	idx.dynRanges = []addrRange{{start: 0x2000, end: 0x2010}}

	if !idx.InDynamicStub(0x2005) {
		t.Fatal("expected 0x2005 to fall inside the [0x2000, 0x2010) range")
	}
	if idx.InDynamicStub(0x2010) {
		t.Fatal("range end is exclusive: 0x2010 should not be considered in-range")
	}
	if idx.InDynamicStub(0x1fff) {
		t.Fatal("expected an address before the range to report false")
	}
}

// Package wacherr is a helper package for the plain Go language error type.
// Curated errors implement the error interface.
//
// Curated errors are created with the Errorf() function. This is similar to
// the Errorf() function in the fmt package. It takes a formatting pattern,
// placeholder values and returns an error.
//
// The Is() function can be used to check whether an error was created with a
// particular pattern. For example:
//
//	a := 10
//	e := wacherr.Errorf("error: value = %d", a)
//
//	if wacherr.Is(e, "error: value = %d") {
//		fmt.Println("true")
//	}
//
// The Has() function is similar but checks if a pattern occurs somewhere in
// the error chain:
//
//	a := 10
//	e := wacherr.Errorf("error: value = %d", a)
//	f := wacherr.Errorf("fatal: %v", e)
//
//	if wacherr.Has(f, "error: value = %d") {
//		fmt.Println("true")
//	}
//
// Note that Is(f, ...) would fail in that example because f wraps e inside
// the pattern "fatal: %v" rather than matching it directly.
//
// The IsAny() function answers whether the error was created by
// wacherr.Errorf() at all - put another way, whether the error is 'expected'
// (curated) or 'unexpected' (anything else).
//
// The Error() function implementation for curated errors ensures that the
// error chain is normalised: it does not contain duplicate adjacent parts,
// where a "part" is a substring separated by ": " (as on p239 of "The Go
// Programming Language", Donovan & Kernighan). That means a function can
// freely wrap an error returned from a callee without worrying about whether
// the callee already added the same prefix:
//
//	func A() error {
//		if err := B(); err != nil {
//			return wacherr.Errorf("error: %v", err)
//		}
//		return nil
//	}
//
//	func B() error {
//		return wacherr.Errorf("error: not yet implemented")
//	}
//
// A() returns "error: not yet implemented", not
// "error: error: not yet implemented".
//
// Kind constants for the errors the engine raises (spec.md §7) live in
// kinds.go: StartupError-class patterns fail process startup before the UI
// begins; DynamicSymbolNotEnterable/NoDebugInfoForFunction surface as modal
// dialogs the user can dismiss without quitting; FatalError ends the
// session.
package wacherr

// Command wachy is an interactive terminal tool for observing, live, how
// often and how expensively a compiled native program's functions are
// calling into the call sites you choose to watch.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/cloudnepal/wachy/binaryindex"
	"github.com/cloudnepal/wachy/controller"
	"github.com/cloudnepal/wachy/disasm"
	"github.com/cloudnepal/wachy/tracer"
	"github.com/cloudnepal/wachy/tracestack"
	"github.com/cloudnepal/wachy/wlog"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("wachy", flag.ContinueOnError)
	tracerPath := fs.String("tracer", "bpftrace", "path to the dynamic-tracing tool to invoke for each script")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if fs.NArg() != 2 {
		fmt.Fprintln(os.Stderr, "usage: wachy <binary-path> <function-name>")
		return 2
	}
	binaryPath := fs.Arg(0)
	functionName := fs.Arg(1)

	if os.Getenv("WACHY_PROGRAM_TRACE") == "1" {
		wlog.SetVerbose(true)
	}

	index, err := binaryindex.Load(binaryPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wachy: %v\n", err)
		return 1
	}
	defer index.Close()

	fn, err := index.FindUniqueFunction(functionName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wachy: %v\n", err)
		return 1
	}

	sym, ok := index.Symbol(fn)
	if !ok || sym.Address == 0 {
		fmt.Fprintf(os.Stderr, "wachy: %q is a dynamically linked symbol and cannot be traced\n", functionName)
		return 1
	}

	entryFile := ""
	if loc, ok := index.AddressToSource(sym.Address); ok {
		entryFile = loc.File
	}

	root, err := disasm.Analyze(index, fn, entryFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wachy: %v\n", err)
		return 1
	}

	stack := tracestack.New(root)
	tr := tracer.New(*tracerPath, binaryPath, index, stack)

	term, err := newTerminalUI(os.Stdin, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "wachy: could not initialise terminal: %v\n", err)
		return 1
	}
	defer term.Close()

	ctrl := controller.New(index, stack, tr, term, term)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go tr.Run(ctx)

	ctrl.Run(ctx)

	return 0
}

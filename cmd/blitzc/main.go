// Command blitzc lowers a Wasm 1.0 binary module to one of several
// ahead-of-time code-generation targets.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/wasm-blitz/blitzc/internal/compiler"
	"github.com/wasm-blitz/blitzc/internal/wasm"
)

func main() {
	os.Exit(doMain(os.Stdout, os.Stderr))
}

// doMain is separated out for the purpose of unit testing.
func doMain(stdOut, stdErr io.Writer) int {
	logger := log.New(stdErr, "blitzc: ", 0)

	flags := flag.NewFlagSet("blitzc", flag.ContinueOnError)
	flags.SetOutput(stdErr)

	var targetFlag, outPath string
	var noDCE, noCoalescing bool
	flags.StringVar(&targetFlag, "target", "", "Output target: x64-naive, x64-fast, riscv64, js, or wasm.")
	flags.StringVar(&outPath, "o", "", "Output file path.")
	flags.BoolVar(&noDCE, "no-dce", false, "Disable the dead-code-elimination pass.")
	flags.BoolVar(&noCoalescing, "no-coalescing", false, "Disable the load/store-coalescing pass.")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 1
	}

	if targetFlag == "" || outPath == "" {
		fmt.Fprintln(stdErr, "-target and -o are required: usage: blitzc -target=<target> -o <output> <input.wasm>")
		return 1
	}
	if flags.NArg() != 1 {
		fmt.Fprintln(stdErr, "usage: blitzc -target=<target> -o <output> <input.wasm>")
		return 1
	}

	target, err := compiler.ParseTarget(targetFlag)
	if err != nil {
		logger.Println(err)
		return 1
	}

	input := flags.Arg(0)
	raw, err := os.ReadFile(input)
	if err != nil {
		logger.Printf("reading %s: %v", input, err)
		return 1
	}

	mod, err := wasm.DecodeModule(bytes.NewReader(raw))
	if err != nil {
		logger.Printf("decoding %s: %v", input, err)
		return 1
	}

	cfg := compiler.NewConfig(
		compiler.WithTarget(target),
		compiler.WithDCE(!noDCE),
		compiler.WithCoalescing(!noCoalescing),
	)

	out, err := compiler.Compile(context.Background(), mod, cfg)
	if err != nil {
		logger.Println(err)
		return 1
	}

	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		logger.Println(fmt.Errorf("%w: writing %s: %v", compiler.ErrWriter, outPath, err))
		return 1
	}

	fmt.Fprintf(stdOut, "compiled %s (%s) -> %s\n", input, target, outPath)
	return 0
}

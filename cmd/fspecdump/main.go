// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Command fspecdump loads a compiled fspec bytecode program, feeds
// it a binary input, and writes the interpreter's rendered dump to
// stdout. It does not implement any part of the front end (the
// declarative grammar that compiles down to bytecode); it only
// consumes the compiled form.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/fspecgo/fspec/bc/decl"
	"github.com/fspecgo/fspec/bc/mem"
	"github.com/fspecgo/fspec/filter"
	"github.com/fspecgo/fspec/interp"
)

func main() {
	trace := flag.Bool("trace", false, "print the run id, declaration count and entry declaration to stderr")
	filtersPath := flag.String("filters", "", "path to a YAML file of additional named filter aliases")
	declQuery := flag.String("decl", "", "look up a declaration by name and print its kind/id/bounds to stderr before running")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: %s [-trace] [-filters path.yaml] [-decl name] <bytecode-path> [input...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		flag.Usage()
		os.Exit(2)
	}
	bcPath := args[0]
	inputs := args[1:]
	if len(inputs) == 0 {
		inputs = []string{"-"}
	}

	registry := filter.NewDefaultRegistry()
	if *filtersPath != "" {
		if err := loadFilterAliases(registry, *filtersPath); err != nil {
			fmt.Fprintf(os.Stderr, "fspecdump: %s\n", err)
			os.Exit(1)
		}
	}

	raw, err := os.ReadFile(bcPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fspecdump: can't read bytecode %q: %s\n", bcPath, err)
		os.Exit(1)
	}
	code, data, err := splitContainer(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fspecdump: %s: %s\n", bcPath, err)
		os.Exit(1)
	}

	warnIfStdinIsTerminal(inputs)

	out := bufio.NewWriter(os.Stdout)
	for _, path := range inputs {
		if err := dumpOne(code, data, registry, path, out, *trace, *declQuery); err != nil {
			out.Flush()
			fmt.Fprintf(os.Stderr, "fspecdump: %s: %s\n", path, err)
			os.Exit(1)
		}
	}
	if err := out.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// dumpOne runs the bytecode program once against the input named by
// path (or stdin, for "-"), writing the rendered dump to out. Each
// input gets its own declaration table: buffers are per-run state,
// so re-running decl.Setup is both correct and cheap relative to a
// single pass over the input.
func dumpOne(code []byte, data mem.Region, registry *filter.Registry, path string, out *bufio.Writer, trace bool, declQuery string) error {
	table, err := decl.Setup(code, data, len(code))
	if err != nil {
		return fmt.Errorf("setup: %w", err)
	}
	if table.Entry == nil {
		return fmt.Errorf("bytecode declares no STRUCT entry point")
	}

	if declQuery != "" {
		printDeclByName(table, declQuery)
	}

	var in *os.File
	if path == "-" {
		in = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	ctx := interp.NewContext(code, data, table, in, registry, out)
	ctx.Warn = os.Stderr
	if trace {
		fmt.Fprintf(os.Stderr, "fspecdump: run %s: %d declarations, entry %q (id %d)\n",
			ctx.RunID, len(table.Decls), table.Entry.Name, table.Entry.ID)
	}
	return interp.RunProgram(ctx, table)
}

// printDeclByName resolves name through the declaration table's
// siphash-keyed index, a lookup the interpreter itself never needs
// (it always resolves VAR arguments by dense id), useful only for a
// user poking at a bytecode file from the command line.
func printDeclByName(table *decl.Table, name string) {
	d := table.ByName(name)
	if d == nil {
		fmt.Fprintf(os.Stderr, "fspecdump: decl %q: not found\n", name)
		return
	}
	fmt.Fprintf(os.Stderr, "fspecdump: decl %q: kind %s id %d bytecode[%d:%d)\n",
		name, d.Kind, d.ID, d.Start, d.End)
}

// warnIfStdinIsTerminal hints at a likely user mistake (forgetting to
// redirect a binary file into stdin) without treating it as fatal:
// the interpreter happily reads zero bytes from an interactive
// terminal and renders every field as a short read.
func warnIfStdinIsTerminal(inputs []string) {
	for _, in := range inputs {
		if in == "-" && isTerminal(os.Stdin.Fd()) {
			fmt.Fprintln(os.Stderr, "fspecdump: warning: reading from a terminal; expected redirected binary input")
			return
		}
	}
}

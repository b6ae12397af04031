// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package unit prints debug information about a compiled unit
// file.
package unit

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/pterm/pterm"

	"github.com/lewurm/opal/obj"
)

var program = filepath.Base(os.Args[0])

var headingStyle = pterm.NewStyle(pterm.FgLightCyan, pterm.Bold)

// Main prints debug information about a compiled unit file.
func Main(ctx context.Context, w io.Writer, args []string) error {
	flags := flag.NewFlagSet("unit", flag.ExitOnError)

	var help, header, functions, code bool
	flags.BoolVar(&help, "h", false, "Show this message and exit.")
	flags.BoolVar(&header, "header", true, "Print information about the unit header.")
	flags.BoolVar(&functions, "functions", false, "Print the set of functions defined.")
	flags.BoolVar(&code, "code", false, "Print each function's machine code.")

	flags.Usage = func() {
		log.Printf("Usage:\n  %s %s [OPTIONS] UNIT\n\n", program, flags.Name())
		flags.PrintDefaults()
		os.Exit(2)
	}

	err := flags.Parse(args)
	if err != nil || help {
		flags.Usage()
	}

	filenames := flags.Args()
	if len(filenames) != 1 {
		flags.Usage()
		os.Exit(2)
	}

	name := filenames[0]
	data, err := os.ReadFile(name)
	if err != nil {
		return fmt.Errorf("failed to read %s: %v", name, err)
	}

	unit, err := obj.Decode(data)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %v", name, err)
	}

	if header {
		fmt.Fprintf(w, "%s\n", headingStyle.Sprint("header"))
		fmt.Fprintf(w, "  unit:         %s\n", unit.Name)
		fmt.Fprintf(w, "  architecture: %s\n", unit.Arch.Name)
		fmt.Fprintf(w, "  functions:    %d\n", len(unit.Funcs))
	}

	if functions || code {
		for _, fn := range unit.Funcs {
			fmt.Fprintf(w, "%s\n", headingStyle.Sprintf("%s (%s, %d bytes)", fn.Name, fn.Kind, len(fn.Code)))
			if !code {
				continue
			}

			for i := 0; i+4 <= len(fn.Code); i += 4 {
				fmt.Fprintf(w, "  %#04x: %08x\n", i, binary.LittleEndian.Uint32(fn.Code[i:]))
			}
		}
	}

	return nil
}

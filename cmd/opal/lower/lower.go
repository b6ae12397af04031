// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

// Package lower compiles one of the builtin array comparison
// routines and prints or stores the result.
package lower

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

	"github.com/lewurm/opal/compiler"
	"github.com/lewurm/opal/lir"
	"github.com/lewurm/opal/lir/aarch64"
	"github.com/lewurm/opal/obj"
	"github.com/lewurm/opal/ssair"
	"github.com/lewurm/opal/stamp"
	"github.com/lewurm/opal/sys"
)

var program = filepath.Base(os.Args[0])

var headingStyle = pterm.NewStyle(pterm.FgLightCyan, pterm.Bold)

func parseKind(s string) (lir.Kind, error) {
	switch s {
	case "byte":
		return lir.KindByte, nil
	case "char":
		return lir.KindChar, nil
	case "short":
		return lir.KindShort, nil
	case "int":
		return lir.KindInt, nil
	case "long":
		return lir.KindLong, nil
	default:
		return 0, fmt.Errorf("unknown element kind %q", s)
	}
}

// Main compiles an array comparison routine and prints its
// listing, its machine code, or both, optionally writing the
// compiled unit to a file.
func Main(ctx context.Context, w io.Writer, args []string) error {
	flags := flag.NewFlagSet("lower", flag.ExitOnError)

	var help, offsets, listing, hex bool
	var op, kind1Name, kind2Name, tuningPath, name, out string
	var baseOffset1, baseOffset2 int64
	flags.BoolVar(&help, "h", false, "Show this message and exit.")
	flags.StringVar(&op, "op", "equals", "The comparison to compile ('equals' or 'compare').")
	flags.StringVar(&kind1Name, "kind", "byte", "The element kind of the first array.")
	flags.StringVar(&kind2Name, "kind2", "", "The element kind of the second array (compare only, defaults to -kind).")
	flags.Int64Var(&baseOffset1, "base-offset1", 0, "The constant byte offset of the first array's elements.")
	flags.Int64Var(&baseOffset2, "base-offset2", 0, "The constant byte offset of the second array's elements.")
	flags.BoolVar(&offsets, "offsets", false, "Take per-call byte offsets as extra operands (equals only).")
	flags.StringVar(&tuningPath, "tuning", "", "A TOML file with backend tuning.")
	flags.StringVar(&name, "name", "", "The routine name (defaults to the descriptor name).")
	flags.StringVar(&out, "o", "", "Write the compiled unit to this file.")
	flags.BoolVar(&listing, "listing", true, "Print the instruction listing.")
	flags.BoolVar(&hex, "hex", false, "Print the encoded instruction words.")

	flags.Usage = func() {
		log.Printf("Usage:\n  %s %s [OPTIONS]\n\n", program, flags.Name())
		flags.PrintDefaults()
		os.Exit(2)
	}

	err := flags.Parse(args)
	if err != nil || help {
		flags.Usage()
	}

	if flags.NArg() != 0 {
		flags.Usage()
		os.Exit(2)
	}

	kind1, err := parseKind(kind1Name)
	if err != nil {
		return err
	}

	if kind2Name == "" {
		kind2Name = kind1Name
	}
	kind2, err := parseKind(kind2Name)
	if err != nil {
		return err
	}

	tuning, err := aarch64.LoadTuning(tuningPath)
	if err != nil {
		return err
	}

	g := ssair.NewGraph()
	array1 := g.NewParam(stamp.PointerOf(stamp.NonNull))
	array2 := g.NewParam(stamp.PointerOf(stamp.NonNull))
	length := stamp.IntOf(32)
	length.Lo = 0

	switch op {
	case "equals":
		inputs := []*ssair.Node{array1, array2, g.NewParam(length)}
		if offsets {
			offset1 := g.NewParam(stamp.IntOf(64))
			offset2 := g.NewParam(stamp.IntOf(64))
			inputs = []*ssair.Node{array1, offset1, array2, offset2, inputs[2]}
		}

		n := g.NewValue(ssair.OpArrayEquals, stamp.IntOf(32), inputs...)
		n.Extra = compiler.ArrayEqualsParams{
			Name:        name,
			Kind:        kind1,
			BaseOffset1: baseOffset1,
			BaseOffset2: baseOffset2,
			WithOffsets: offsets,
		}
	case "compare":
		length1 := g.NewParam(length)
		length2 := g.NewParam(length)
		n := g.NewValue(ssair.OpArrayCompare, stamp.IntOf(32), array1, array2, length1, length2)
		n.Extra = compiler.ArrayCompareParams{
			Name:        name,
			Kind1:       kind1,
			Kind2:       kind2,
			BaseOffset1: baseOffset1,
			BaseOffset2: baseOffset2,
		}
	default:
		return fmt.Errorf("unknown comparison %q", op)
	}

	pkg, err := compiler.Compile(sys.AArch64, "opal/lowered", g, tuning)
	if err != nil {
		return err
	}

	for _, fn := range pkg.Funcs {
		fmt.Fprintf(w, "%s\n", headingStyle.Sprintf("%s (%s, %d bytes)", fn.Name, fn.Kind, len(fn.Code)))
		if listing {
			fmt.Fprintln(w, fn.Stream.String())
		}

		if hex {
			for i := 0; i+4 <= len(fn.Code); i += 4 {
				fmt.Fprintf(w, "  %#04x: %08x\n", i, binary.LittleEndian.Uint32(fn.Code[i:]))
			}
		}
	}

	if out != "" {
		data, err := obj.Encode(pkg.Unit())
		if err != nil {
			return err
		}

		if err := os.WriteFile(out, data, 0o666); err != nil {
			return fmt.Errorf("failed to write %s: %v", out, err)
		}
	}

	return nil
}

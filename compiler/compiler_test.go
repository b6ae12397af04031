// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package compiler

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/lewurm/opal/lir"
	"github.com/lewurm/opal/lir/aarch64"
	"github.com/lewurm/opal/obj"
	"github.com/lewurm/opal/ssair"
	"github.com/lewurm/opal/stamp"
	"github.com/lewurm/opal/sys"
)

var testTuning = aarch64.Tuning{SIMDThreshold: 32, UseSIMD: true}

func nonNullPointer() stamp.Pointer { return stamp.PointerOf(stamp.NonNull) }

func byteLength() stamp.Int {
	s := stamp.IntOf(32)
	s.Lo = 0
	return s
}

func TestCompileArrayEquals(t *testing.T) {
	g := ssair.NewGraph()
	array1 := g.NewParam(nonNullPointer())
	array2 := g.NewParam(nonNullPointer())
	length := g.NewParam(byteLength())

	n := g.NewValue(ssair.OpArrayEquals, stamp.IntOf(32), array1, array2, length)
	n.Extra = ArrayEqualsParams{Kind: lir.KindByte, BaseOffset1: 16, BaseOffset2: 16}

	pkg, err := Compile(sys.AArch64, "test/equals", g, testTuning)
	if err != nil {
		t.Fatalf("Compile(): %v", err)
	}

	if len(pkg.Funcs) != 1 {
		t.Fatalf("Compile(): got %d functions, want 1", len(pkg.Funcs))
	}

	fn := pkg.Funcs[0]
	if fn.Kind != "array.equals.byte" {
		t.Errorf("Compile(): got kind %q, want %q", fn.Kind, "array.equals.byte")
	}
	if fn.Name != "array.equals.byte" {
		t.Errorf("Compile(): got default name %q, want %q", fn.Name, "array.equals.byte")
	}
	if fn.Node != n.ID() {
		t.Errorf("Compile(): got node %s, want %s", fn.Node, n)
	}

	if len(fn.Code) == 0 || len(fn.Code)%4 != 0 {
		t.Errorf("Compile(): got %d bytes of code, want a positive multiple of 4", len(fn.Code))
	}
	// Alignment pseudos pad to a variable number of bytes, so
	// check the code against a fresh encoding of the stream.
	code, err := aarch64.Encode(fn.Stream)
	if err != nil {
		t.Fatalf("Encode(): %v", err)
	}
	if !bytes.Equal(fn.Code, code) {
		t.Errorf("Compile(): code does not match its stream: %d bytes, want %d", len(fn.Code), len(code))
	}

	if err := lir.CheckAllocation(fn.Desc, fn.Alloc); err != nil {
		t.Errorf("Compile(): allocation does not satisfy the descriptor: %v", err)
	}
}

func TestCompileArrayCompareCanonicalizes(t *testing.T) {
	g := ssair.NewGraph()
	array1 := g.NewParam(nonNullPointer())
	array2 := g.NewParam(nonNullPointer())
	length1 := g.NewParam(byteLength())
	length2 := g.NewParam(byteLength())

	// Wide-then-narrow argument order: the descriptor swaps
	// the operands, so the kind is still narrow-before-wide.
	n := g.NewValue(ssair.OpArrayCompare, stamp.IntOf(32), array1, array2, length1, length2)
	n.Extra = ArrayCompareParams{
		Name:  "compareToUL",
		Kind1: lir.KindChar,
		Kind2: lir.KindByte,
	}

	pkg, err := Compile(sys.AArch64, "test/compare", g, testTuning)
	if err != nil {
		t.Fatalf("Compile(): %v", err)
	}

	if len(pkg.Funcs) != 1 {
		t.Fatalf("Compile(): got %d functions, want 1", len(pkg.Funcs))
	}

	fn := pkg.Funcs[0]
	if fn.Name != "compareToUL" {
		t.Errorf("Compile(): got name %q, want %q", fn.Name, "compareToUL")
	}
	if fn.Kind != "array.compare.byte.char" {
		t.Errorf("Compile(): got kind %q, want %q", fn.Kind, "array.compare.byte.char")
	}

	desc, ok := fn.Desc.(*lir.ArrayCompare)
	if !ok {
		t.Fatalf("Compile(): got descriptor %T, want *lir.ArrayCompare", fn.Desc)
	}
	if !desc.Swapped {
		t.Errorf("Compile(): wide-then-narrow descriptor was not swapped")
	}
}

// A loop phi over a non-null entry value with only itself on
// the back edge starts maybe-null; stamp inference sharpens it
// before lowering checks the preconditions.
func TestCompileSharpensLoopPhi(t *testing.T) {
	g := ssair.NewGraph()
	entry := g.NewParam(nonNullPointer())
	loop := g.NewLoopBegin(2)
	phi := g.NewPhi(loop, stamp.PointerOf(stamp.MaybeNull), entry)
	g.AddInput(phi, phi)

	array2 := g.NewParam(nonNullPointer())
	length := g.NewParam(byteLength())

	n := g.NewValue(ssair.OpArrayEquals, stamp.IntOf(32), phi, array2, length)
	n.Extra = ArrayEqualsParams{Kind: lir.KindChar}

	if _, err := Compile(sys.AArch64, "test/loop", g, testTuning); err != nil {
		t.Fatalf("Compile(): %v", err)
	}

	ptr, ok := phi.Stamp().(stamp.Pointer)
	if !ok || !ptr.IsNonNull() {
		t.Errorf("loop phi stamp = %s, want non-null pointer", phi.Stamp())
	}
}

func TestCompileUnit(t *testing.T) {
	g := ssair.NewGraph()
	array1 := g.NewParam(nonNullPointer())
	array2 := g.NewParam(nonNullPointer())
	length1 := g.NewParam(byteLength())
	length2 := g.NewParam(byteLength())

	eq := g.NewValue(ssair.OpArrayEquals, stamp.IntOf(32), array1, array2, length1)
	eq.Extra = ArrayEqualsParams{Name: "equalsL", Kind: lir.KindByte}

	cmpNode := g.NewValue(ssair.OpArrayCompare, stamp.IntOf(32), array1, array2, length1, length2)
	cmpNode.Extra = ArrayCompareParams{Name: "compareLU", Kind1: lir.KindByte, Kind2: lir.KindChar}

	pkg, err := Compile(sys.AArch64, "test/unit", g, testTuning)
	if err != nil {
		t.Fatalf("Compile(): %v", err)
	}

	data, err := obj.Encode(pkg.Unit())
	if err != nil {
		t.Fatalf("Encode(): %v", err)
	}

	unit, err := obj.Decode(data)
	if err != nil {
		t.Fatalf("Decode(): %v", err)
	}

	if unit.Name != "test/unit" {
		t.Errorf("Decode(): got unit name %q, want %q", unit.Name, "test/unit")
	}

	want := []obj.Function{
		{Name: "equalsL", Kind: "array.equals.byte", Code: pkg.Funcs[0].Code},
		{Name: "compareLU", Kind: "array.compare.byte.char", Code: pkg.Funcs[1].Code},
	}

	if diff := cmp.Diff(want, unit.Funcs); diff != "" {
		t.Fatalf("unit functions changed in round trip (-want, +got):\n%s", diff)
	}
}

func TestCompileErrors(t *testing.T) {
	maybeNull := stamp.PointerOf(stamp.MaybeNull)

	tests := []struct {
		name  string
		build func(g *ssair.Graph)
		want  string
	}{
		{
			name: "maybe-null array",
			build: func(g *ssair.Graph) {
				array1 := g.NewParam(maybeNull)
				array2 := g.NewParam(nonNullPointer())
				length := g.NewParam(byteLength())
				n := g.NewValue(ssair.OpArrayEquals, stamp.IntOf(32), array1, array2, length)
				n.Extra = ArrayEqualsParams{Kind: lir.KindByte}
			},
			want: "non-null",
		},
		{
			name: "possibly negative length",
			build: func(g *ssair.Graph) {
				array1 := g.NewParam(nonNullPointer())
				array2 := g.NewParam(nonNullPointer())
				length := g.NewParam(stamp.IntOf(32))
				n := g.NewValue(ssair.OpArrayEquals, stamp.IntOf(32), array1, array2, length)
				n.Extra = ArrayEqualsParams{Kind: lir.KindByte}
			},
			want: "non-negative",
		},
		{
			name: "integer array operand",
			build: func(g *ssair.Graph) {
				array1 := g.NewParam(stamp.IntOf(64))
				array2 := g.NewParam(nonNullPointer())
				length := g.NewParam(byteLength())
				n := g.NewValue(ssair.OpArrayEquals, stamp.IntOf(32), array1, array2, length)
				n.Extra = ArrayEqualsParams{Kind: lir.KindByte}
			},
			want: "want a pointer",
		},
		{
			name: "missing parameters",
			build: func(g *ssair.Graph) {
				array1 := g.NewParam(nonNullPointer())
				array2 := g.NewParam(nonNullPointer())
				length := g.NewParam(byteLength())
				g.NewValue(ssair.OpArrayEquals, stamp.IntOf(32), array1, array2, length)
			},
			want: "no parameters",
		},
		{
			name: "wrong input count",
			build: func(g *ssair.Graph) {
				array1 := g.NewParam(nonNullPointer())
				array2 := g.NewParam(nonNullPointer())
				n := g.NewValue(ssair.OpArrayEquals, stamp.IntOf(32), array1, array2)
				n.Extra = ArrayEqualsParams{Kind: lir.KindByte}
			},
			want: "2 inputs, want 3",
		},
		{
			name: "floating-point kind",
			build: func(g *ssair.Graph) {
				array1 := g.NewParam(nonNullPointer())
				array2 := g.NewParam(nonNullPointer())
				length := g.NewParam(byteLength())
				n := g.NewValue(ssair.OpArrayEquals, stamp.IntOf(32), array1, array2, length)
				n.Extra = ArrayEqualsParams{Kind: lir.KindDouble}
			},
			want: "floating-point",
		},
		{
			name: "unsupported compare kinds",
			build: func(g *ssair.Graph) {
				array1 := g.NewParam(nonNullPointer())
				array2 := g.NewParam(nonNullPointer())
				length1 := g.NewParam(byteLength())
				length2 := g.NewParam(byteLength())
				n := g.NewValue(ssair.OpArrayCompare, stamp.IntOf(32), array1, array2, length1, length2)
				n.Extra = ArrayCompareParams{Kind1: lir.KindInt, Kind2: lir.KindInt}
			},
			want: "unsupported element kind pair",
		},
		{
			name: "incompatible phi stamps",
			build: func(g *ssair.Graph) {
				merge := g.NewMerge(2)
				ptr := g.NewParam(nonNullPointer())
				num := g.NewParam(stamp.IntOf(64))
				g.NewPhi(merge, stamp.PointerOf(stamp.MaybeNull), ptr, num)
			},
			want: "not compatible",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			g := ssair.NewGraph()
			test.build(g)

			_, err := Compile(sys.AArch64, "test/defect", g, testTuning)
			if err == nil {
				t.Fatalf("Compile(): expected error")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Fatalf("Compile(): got error %q, want it to mention %q", err, test.want)
			}
		})
	}
}

func TestCompileInvalidTuning(t *testing.T) {
	g := ssair.NewGraph()

	bad := aarch64.Tuning{SIMDThreshold: math.MinInt64, UseSIMD: true}
	if _, err := Compile(sys.AArch64, "test/tuning", g, bad); err == nil {
		t.Fatalf("Compile(): expected error for negative threshold")
	}
}

// Copyright 2026 The Opal Authors.
//
// Use of this source code is governed by a BSD 3-clause
// license that can be found in the LICENSE file.

package stamp

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMeet(t *testing.T) {
	tests := []struct {
		Name string
		A, B Stamp
		Want Stamp
	}{
		{
			Name: "identical ints",
			A:    IntOf(64),
			B:    IntOf(64),
			Want: IntOf(64),
		},
		{
			Name: "int range union",
			A:    Int{Bits: 32, Lo: 0, Hi: 10},
			B:    Int{Bits: 32, Lo: 5, Hi: 20},
			Want: Int{Bits: 32, Lo: 0, Hi: 20},
		},
		{
			Name: "disjoint int ranges",
			A:    Int{Bits: 32, Lo: -4, Hi: -1},
			B:    Int{Bits: 32, Lo: 7, Hi: 9},
			Want: Int{Bits: 32, Lo: -4, Hi: 9},
		},
		{
			Name: "mismatched widths are illegal",
			A:    IntOf(32),
			B:    IntOf(64),
			Want: Illegal,
		},
		{
			Name: "int and pointer are illegal",
			A:    IntOf(64),
			B:    PointerOf(NonNull),
			Want: Illegal,
		},
		{
			Name: "pointer nullability agreement",
			A:    PointerOf(NonNull),
			B:    PointerOf(NonNull),
			Want: PointerOf(NonNull),
		},
		{
			Name: "always-null and non-null meet to maybe-null",
			A:    PointerOf(AlwaysNull),
			B:    PointerOf(NonNull),
			Want: PointerOf(MaybeNull),
		},
		{
			Name: "maybe-null absorbs non-null",
			A:    PointerOf(MaybeNull),
			B:    PointerOf(NonNull),
			Want: PointerOf(MaybeNull),
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			got := test.A.Meet(test.B)
			if diff := cmp.Diff(test.Want, got); diff != "" {
				t.Fatalf("Meet(): (-want, +got)\n%s", diff)
			}

			// Meet must be commutative.
			swapped := test.B.Meet(test.A)
			if diff := cmp.Diff(got, swapped); diff != "" {
				t.Fatalf("Meet() is not commutative: (-ab, +ba)\n%s", diff)
			}
		})
	}
}

func TestMeetAssociative(t *testing.T) {
	stamps := []Stamp{
		IntOf(32),
		Int{Bits: 32, Lo: 0, Hi: 100},
		Int{Bits: 32, Lo: -5, Hi: 3},
		IntConst(32, 42),
		IntOf(64),
		PointerOf(MaybeNull),
		PointerOf(NonNull),
		PointerOf(AlwaysNull),
	}

	for _, a := range stamps {
		for _, b := range stamps {
			for _, c := range stamps {
				left := a.Meet(b).Meet(c)
				right := a.Meet(b.Meet(c))
				if diff := cmp.Diff(left, right); diff != "" {
					t.Fatalf("meet(%s, %s, %s) is not associative: (-left, +right)\n%s", a, b, c, diff)
				}
			}
		}
	}
}

func TestMeetMonotone(t *testing.T) {
	// Re-meeting the same stamp must not change the result.
	pairs := []struct{ A, B Stamp }{
		{Int{Bits: 32, Lo: 0, Hi: 10}, Int{Bits: 32, Lo: 5, Hi: 25}},
		{PointerOf(NonNull), PointerOf(AlwaysNull)},
		{IntOf(64), IntConst(64, -1)},
	}

	for _, pair := range pairs {
		once := pair.A.Meet(pair.B)
		twice := once.Meet(pair.B)
		if diff := cmp.Diff(once, twice); diff != "" {
			t.Fatalf("meet(%s, %s) is not idempotent: (-once, +twice)\n%s", pair.A, pair.B, diff)
		}
	}
}

func TestJoinNarrows(t *testing.T) {
	tests := []struct {
		Name string
		Cur  Stamp
		Cand Stamp
		Want Stamp
	}{
		{
			Name: "int range intersection",
			Cur:  Int{Bits: 32, Lo: 0, Hi: 10},
			Cand: Int{Bits: 32, Lo: 5, Hi: 20},
			Want: Int{Bits: 32, Lo: 5, Hi: 10},
		},
		{
			Name: "join against unrestricted is identity",
			Cur:  Int{Bits: 64, Lo: -3, Hi: 3},
			Cand: IntOf(64),
			Want: Int{Bits: 64, Lo: -3, Hi: 3},
		},
		{
			Name: "maybe-null narrowed by non-null",
			Cur:  PointerOf(MaybeNull),
			Cand: PointerOf(NonNull),
			Want: PointerOf(NonNull),
		},
		{
			Name: "contradictory nullability is illegal",
			Cur:  PointerOf(AlwaysNull),
			Cand: PointerOf(NonNull),
			Want: Illegal,
		},
	}

	for _, test := range tests {
		t.Run(test.Name, func(t *testing.T) {
			got := test.Cur.Join(test.Cand)
			if diff := cmp.Diff(test.Want, got); diff != "" {
				t.Fatalf("Join(): (-want, +got)\n%s", diff)
			}
		})
	}
}

func TestJoinNeverWidens(t *testing.T) {
	// For compatible int stamps, the joined range must sit
	// within the current range.
	ranges := []Int{
		{Bits: 32, Lo: 0, Hi: 10},
		{Bits: 32, Lo: -100, Hi: 100},
		{Bits: 32, Lo: 7, Hi: 7},
	}

	for _, cur := range ranges {
		for _, cand := range ranges {
			got, ok := cur.Join(cand).(Int)
			if !ok {
				t.Fatalf("Join(%s, %s): unexpected kind change", cur, cand)
			}

			if got.Lo < cur.Lo || got.Hi > cur.Hi {
				t.Fatalf("Join(%s, %s) = %s: widened beyond current stamp", cur, cand, got)
			}
		}
	}
}

func TestAsNonNull(t *testing.T) {
	for _, null := range []Nullability{MaybeNull, NonNull} {
		got := PointerOf(null).AsNonNull()
		if !got.IsNonNull() {
			t.Fatalf("PointerOf(%s).AsNonNull() = %s: not non-null", null, got)
		}
	}
}

func TestIsCompatible(t *testing.T) {
	if IntOf(32).IsCompatible(IntOf(64)) {
		t.Errorf("i32 must not be compatible with i64")
	}
	if !IntOf(32).IsCompatible(IntConst(32, 9)) {
		t.Errorf("i32 must be compatible with i32 constant")
	}
	if IntOf(64).IsCompatible(PointerOf(MaybeNull)) {
		t.Errorf("int must not be compatible with pointer")
	}
	if !PointerOf(AlwaysNull).IsCompatible(PointerOf(NonNull)) {
		t.Errorf("pointers must be kind-compatible regardless of nullability")
	}
	if Illegal.IsCompatible(Illegal) {
		t.Errorf("illegal must not be compatible with anything")
	}
}
